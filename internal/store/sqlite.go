package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/estate-studio/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db         *sql.DB
	maxRetries int
	baseDelay  time.Duration
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, maxRetries: 3, baseDelay: 100 * time.Millisecond}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		demo INTEGER NOT NULL DEFAULT 0,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS properties (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		location TEXT NOT NULL,
		price TEXT NOT NULL,
		bedrooms TEXT NOT NULL,
		features_json TEXT NOT NULL,
		post_to_facebook INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_properties_owner ON properties(owner_id, created_at);

	CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		request_json TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		property_id TEXT NOT NULL,
		content TEXT NOT NULL,
		image_path TEXT,
		status TEXT NOT NULL,
		publish_message TEXT,
		created_at INTEGER NOT NULL,
		published_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_posts_property ON posts(property_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, demo, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	var user domain.User
	var lastSeen, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID, &user.Username, &user.Demo,
		&lastSeen, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, demo, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		demo = excluded.demo,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.exec(ctx, "upsert user", query,
		user.UserID, user.Username, user.Demo,
		user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	return err
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.exec(ctx, "update last_seen", query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}
	return nil
}

// CreateProperty stores a property.
func (s *SQLiteStore) CreateProperty(ctx context.Context, p *domain.Property) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	features, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}

	query := `
	INSERT INTO properties (id, owner_id, location, price, bedrooms, features_json, post_to_facebook, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.exec(ctx, "create property", query,
		p.ID, p.OwnerID, p.Location, p.Price, p.Bedrooms,
		string(features), p.PostToFacebook, p.CreatedAt.Unix(),
	)
	return err
}

const propertyColumns = `id, owner_id, location, price, bedrooms, features_json, post_to_facebook, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProperty(row scanner) (*domain.Property, error) {
	var p domain.Property
	var features string
	var createdAt int64
	if err := row.Scan(
		&p.ID, &p.OwnerID, &p.Location, &p.Price, &p.Bedrooms,
		&features, &p.PostToFacebook, &createdAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	if p.Features == nil {
		p.Features = []string{}
	}
	p.CreatedAt = time.Unix(createdAt, 0)
	return &p, nil
}

// GetProperty retrieves one of ownerID's properties.
func (s *SQLiteStore) GetProperty(ctx context.Context, ownerID, id string) (*domain.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE id = ? AND owner_id = ?`
	p, err := scanProperty(s.db.QueryRowContext(ctx, query, id, ownerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan property row: %w", err)
	}
	return p, nil
}

// ListProperties returns ownerID's properties, newest first.
func (s *SQLiteStore) ListProperties(ctx context.Context, ownerID string) ([]*domain.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE owner_id = ? ORDER BY created_at DESC, rowid DESC`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query properties: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close property rows", "error", closeErr)
		}
	}()

	props := []*domain.Property{}
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan property row: %w", err)
		}
		props = append(props, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate properties: %w", err)
	}
	return props, nil
}

// CreateListing stores a generated listing.
func (s *SQLiteStore) CreateListing(ctx context.Context, l *domain.Listing) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	req, err := json.Marshal(l.Request)
	if err != nil {
		return fmt.Errorf("encode listing request: %w", err)
	}

	query := `INSERT INTO listings (id, owner_id, request_json, content, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err = s.exec(ctx, "create listing", query, l.ID, l.OwnerID, string(req), l.Content, l.CreatedAt.Unix())
	return err
}

// CreatePost stores a post.
func (s *SQLiteStore) CreatePost(ctx context.Context, p *domain.Post) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	var publishedAt any
	if p.PublishedAt != nil {
		publishedAt = p.PublishedAt.Unix()
	}

	query := `
	INSERT INTO posts (id, property_id, content, image_path, status, publish_message, created_at, published_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.exec(ctx, "create post", query,
		p.ID, p.PropertyID, p.Content, p.ImagePath, string(p.Status),
		p.PublishMessage, p.CreatedAt.Unix(), publishedAt,
	)
	return err
}

// MarkPostPublished records a successful publish.
func (s *SQLiteStore) MarkPostPublished(ctx context.Context, id, message string, at time.Time) error {
	query := `UPDATE posts SET status = ?, publish_message = ?, published_at = ? WHERE id = ?`
	result, err := s.exec(ctx, "mark post published", query, string(domain.PostPublished), message, at.Unix(), id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("mark post %s published: %w", id, ErrNotFound)
	}
	return nil
}

// ListPosts returns posts on ownerID's properties, newest first.
func (s *SQLiteStore) ListPosts(ctx context.Context, ownerID string, status domain.PostStatus) ([]*domain.Post, error) {
	query := `
		SELECT p.id, p.property_id, p.content, p.image_path, p.status,
		       p.publish_message, p.created_at, p.published_at
		FROM posts p JOIN properties pr ON pr.id = p.property_id
		WHERE pr.owner_id = ?`
	args := []any{ownerID}
	if status != "" {
		query += ` AND p.status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY p.created_at DESC, p.rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close post rows", "error", closeErr)
		}
	}()

	posts := []*domain.Post{}
	for rows.Next() {
		var p domain.Post
		var imagePath, publishMessage sql.NullString
		var status string
		var createdAt int64
		var publishedAt sql.NullInt64
		if err := rows.Scan(
			&p.ID, &p.PropertyID, &p.Content, &imagePath, &status,
			&publishMessage, &createdAt, &publishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan post row: %w", err)
		}
		p.ImagePath = imagePath.String
		p.PublishMessage = publishMessage.String
		p.Status = domain.PostStatus(status)
		p.CreatedAt = time.Unix(createdAt, 0)
		if publishedAt.Valid {
			ts := time.Unix(publishedAt.Int64, 0)
			p.PublishedAt = &ts
		}
		posts = append(posts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}
