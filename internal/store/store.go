// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/estate-studio/internal/domain"
)

// ErrNotFound is returned when an update targets a missing row.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for persisting users, properties,
// listings and posts.
type Repository interface {
	// GetUser retrieves a user by their user ID. It returns nil, nil when
	// the user does not exist.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// CreateProperty stores a property, assigning an ID when empty.
	CreateProperty(ctx context.Context, p *domain.Property) error

	// GetProperty returns ownerID's property, or nil, nil.
	GetProperty(ctx context.Context, ownerID, id string) (*domain.Property, error)

	// ListProperties returns ownerID's properties, newest first.
	ListProperties(ctx context.Context, ownerID string) ([]*domain.Property, error)

	// CreateListing stores a generated listing, assigning an ID when empty.
	CreateListing(ctx context.Context, l *domain.Listing) error

	// CreatePost stores a post, assigning an ID when empty.
	CreatePost(ctx context.Context, p *domain.Post) error

	// MarkPostPublished flips a post to published.
	MarkPostPublished(ctx context.Context, id, message string, at time.Time) error

	// ListPosts returns posts on ownerID's properties, newest first. An
	// empty status matches every post.
	ListPosts(ctx context.Context, ownerID string, status domain.PostStatus) ([]*domain.Post, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
