package apiclient

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoToken is returned by providers that have nothing to offer. Requests
// are then sent without an Authorization header.
var ErrNoToken = errors.New("no token available")

// CredentialProvider supplies the bearer token for REST calls.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

// Token returns the token itself.
func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoToken
	}
	return string(t), nil
}

// EnvToken reads the token from the named environment variable on every call.
type EnvToken string

// Token returns the variable's value.
func (e EnvToken) Token(context.Context) (string, error) {
	v := strings.TrimSpace(os.Getenv(string(e)))
	if v == "" {
		return "", ErrNoToken
	}
	return v, nil
}

// FileToken reads the token from a file on every call, so a token rotated
// on disk is picked up without restarting.
type FileToken struct {
	Path string
}

// Token returns the trimmed file contents.
func (f FileToken) Token(context.Context) (string, error) {
	if f.Path == "" {
		return "", ErrNoToken
	}
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// Chain tries each provider in order and returns the first token found.
type Chain []CredentialProvider

// Token returns the first available token.
func (c Chain) Token(ctx context.Context) (string, error) {
	for _, p := range c {
		tok, err := p.Token(ctx)
		if errors.Is(err, ErrNoToken) {
			continue
		}
		return tok, err
	}
	return "", ErrNoToken
}
