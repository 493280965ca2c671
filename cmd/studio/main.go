// Package main provides the studio command line client.
// It drives the content workflow over the server's socket and REST API.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ashureev/estate-studio/internal/apiclient"
	"github.com/ashureev/estate-studio/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	appName  = "studio"
	tokenEnv = "ESTATE_TOKEN"
)

func main() {
	_ = godotenv.Load()

	if err := rootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	profilePath string
	serverURL   string
	tokenFile   string
	logLevel    string
}

func rootCmd(in io.Reader, out io.Writer) *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Estate studio workflow client",
		Long: `Studio turns a real-estate business idea into branding, a visual
concept, a launch post and listing descriptions.

Configuration is read from ~/.estate-studio.yaml and can be overridden
with flags. The bearer token comes from $ESTATE_TOKEN or the profile's
token file.`,
		SilenceUsage: true,
	}
	cmd.SetIn(in)
	cmd.SetOut(out)

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.profilePath, "profile", "", "Profile file (default ~/"+config.ProfileFileName+")")
	pf.StringVar(&opts.serverURL, "server", "", "Server base URL")
	pf.StringVar(&opts.tokenFile, "token-file", "", "File holding the bearer token")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		chatCmd(opts),
		listingCmd(opts),
		profileCmd(opts),
		sessionIDCmd(),
		tokenCmd(),
	)
	return cmd
}

// resolvedProfile loads the profile file and applies flag overrides.
func (o *globalOptions) resolvedProfile() (config.Profile, error) {
	path := o.profilePath
	if path == "" {
		def, err := config.DefaultProfilePath()
		if err != nil {
			return config.DefaultProfile(), err
		}
		path = def
	}

	p, err := config.LoadProfile(path)
	if err != nil {
		return p, err
	}
	if o.serverURL != "" {
		p.ServerURL = o.serverURL
	}
	if o.tokenFile != "" {
		p.TokenFile = o.tokenFile
	}
	return p, p.Validate()
}

func (o *globalOptions) logger() *slog.Logger {
	level := slog.LevelWarn
	switch strings.ToLower(o.logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func credentials(p config.Profile) apiclient.CredentialProvider {
	return apiclient.Chain{
		apiclient.EnvToken(tokenEnv),
		apiclient.FileToken{Path: p.TokenFile},
	}
}

func (o *globalOptions) client() (*apiclient.Client, config.Profile, *slog.Logger, error) {
	p, err := o.resolvedProfile()
	if err != nil {
		return nil, p, nil, fmt.Errorf("load profile: %w", err)
	}
	logger := o.logger()
	slog.SetDefault(logger)
	return apiclient.New(p.ServerURL, credentials(p), apiclient.WithLogger(logger)), p, logger, nil
}
