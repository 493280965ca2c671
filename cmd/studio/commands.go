package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ashureev/estate-studio/internal/apiclient"
	"github.com/ashureev/estate-studio/internal/config"
	"github.com/ashureev/estate-studio/internal/domain"
	"github.com/ashureev/estate-studio/internal/identity"
	"github.com/ashureev/estate-studio/internal/session"
	"github.com/spf13/cobra"
)

func listingCmd(opts *globalOptions) *cobra.Command {
	var req domain.ListingRequest

	cmd := &cobra.Command{
		Use:   "listing",
		Short: "Generate a listing description",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := req.Validate(); err != nil {
				return err
			}
			api, _, _, err := opts.client()
			if err != nil {
				return err
			}
			resp, err := api.GenerateListing(cmd.Context(), req)
			if err != nil {
				return describe(err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), resp.Listing)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Template, "template", "modern", "Listing template")
	f.StringVar(&req.Address, "address", "", "Street address")
	f.StringVar(&req.City, "city", "", "City")
	f.StringVar(&req.State, "state", "", "State")
	f.Float64Var(&req.Price, "price", 0, "Asking price")
	f.IntVar(&req.Bedrooms, "bedrooms", 0, "Number of bedrooms")
	f.Float64Var(&req.Bathrooms, "bathrooms", 0, "Number of bathrooms")
	f.StringSliceVar(&req.Features, "feature", nil, "Feature to highlight (repeatable)")
	return cmd
}

func profileCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, p, _, err := opts.client()
			if err != nil {
				return err
			}
			me, err := api.Profile(cmd.Context())
			if err != nil {
				return describe(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "server:   %s\n", p.ServerURL)
			fmt.Fprintf(out, "user_id:  %s\n", me.UserID)
			fmt.Fprintf(out, "username: %s\n", me.Username)
			if me.Demo {
				fmt.Fprintln(out, "demo:     true")
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Write the current settings to the profile file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := opts.resolvedProfile()
			if err != nil {
				return fmt.Errorf("load profile: %w", err)
			}
			path := opts.profilePath
			if path == "" {
				if path, err = config.DefaultProfilePath(); err != nil {
					return err
				}
			}
			if err := p.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
			return nil
		},
	})
	return cmd
}

func sessionIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session-id",
		Short: "Print a new workflow session id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), session.NewID())
			return err
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		userID   string
		username string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with $JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			if username == "" {
				username = userID
			}
			tok, err := identity.IssueToken(secret, userID, username, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id (subject)")
	cmd.Flags().StringVar(&username, "username", "", "Display name (defaults to the user id)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// describe turns API failures into the server's detail message.
func describe(err error) error {
	var apiErr *apiclient.APIError
	switch {
	case errors.Is(err, apiclient.ErrUnauthorized):
		return fmt.Errorf("%w: set $%s or token_file in the profile", err, tokenEnv)
	case errors.As(err, &apiErr) && apiErr.Detail != "":
		return errors.New(apiErr.Detail)
	}
	return err
}
