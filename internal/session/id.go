// Package session generates per-client workflow session identifiers.
package session

import "github.com/google/uuid"

// NewID returns a fresh version-4 UUID used to correlate one socket
// connection with one workflow run.
func NewID() string {
	return uuid.NewString()
}

// Valid reports whether id parses as a UUID.
func Valid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
