// Package identity authenticates requests with bearer JWTs.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/estate-studio/internal/domain"
	"github.com/ashureev/estate-studio/internal/store"
	"github.com/golang-jwt/jwt/v5"
)

// Demo identity used when fallback is enabled and the token is unusable.
const (
	DemoUserID   = "demo-user"
	DemoUsername = "demo"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

type contextKey int

const (
	userIDKey contextKey = iota
	usernameKey
	demoKey
)

// Claims are the JWT claims the server issues and accepts.
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for userID valid for ttl.
func IssueToken(secret, userID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates tokenString and returns its claims.
func ParseToken(secret, tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// UsernameFromContext extracts the username from the request context.
func UsernameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(usernameKey).(string); ok {
		return v
	}
	return ""
}

// IsDemo reports whether the request runs under the demo identity.
func IsDemo(ctx context.Context) bool {
	v, _ := ctx.Value(demoKey).(bool)
	return v
}

// WithUser returns ctx carrying the given identity.
func WithUser(ctx context.Context, userID, username string, demo bool) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, usernameKey, username)
	return context.WithValue(ctx, demoKey, demo)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func authenticate(r *http.Request, secret string) (*Claims, error) {
	tok := bearerToken(r)
	if tok == "" {
		return nil, ErrMissingToken
	}
	return ParseToken(secret, tok)
}

func ensureUser(ctx context.Context, repo store.Repository, userID, username string, demo bool) error {
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	now := time.Now()
	if user != nil {
		return repo.UpdateLastSeen(ctx, userID, now)
	}
	if username == "" {
		username = userID
	}
	return repo.UpsertUser(ctx, &domain.User{
		UserID:     userID,
		Username:   username,
		Demo:       demo,
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// Middleware authenticates the bearer token and makes sure the user exists.
// With demoFallback set, requests whose token is missing or invalid run as
// the demo identity instead of being rejected.
func Middleware(repo store.Repository, secret string, demoFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, username, demo := "", "", false

			claims, err := authenticate(r, secret)
			switch {
			case err == nil:
				userID, username = claims.Subject, claims.Username
			case demoFallback:
				slog.Debug("Falling back to demo identity", "error", err, "ip", IPFromRequest(r))
				userID, username, demo = DemoUserID, DemoUsername, true
			default:
				detail := "Invalid or expired token"
				if errors.Is(err, ErrMissingToken) {
					detail = "Not authenticated"
				}
				writeDetail(w, http.StatusUnauthorized, detail)
				return
			}

			if err := ensureUser(r.Context(), repo, userID, username, demo); err != nil {
				slog.Error("Failed to ensure user", "user_id", userID, "error", err)
				writeDetail(w, http.StatusInternalServerError, "failed to initialize user")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID, username, demo)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
