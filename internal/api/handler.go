// Package api provides HTTP handlers for the studio REST API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/estate-studio/internal/domain"
	"github.com/ashureev/estate-studio/internal/generator"
	"github.com/ashureev/estate-studio/internal/store"
)

// DetailsSink receives submitted property details for a waiting workflow run.
type DetailsSink interface {
	Deliver(ownerID, clientID, propertyID string, details domain.PropertyDetails) bool
}

// Handler provides the REST endpoints and their shared dependencies.
type Handler struct {
	repo    store.Repository
	gen     generator.Generator
	sink    DetailsSink
	limiter *RateLimiter
}

// NewHandler creates a Handler. gen and sink may be nil when content
// generation is disabled.
func NewHandler(repo store.Repository, gen generator.Generator, sink DetailsSink, limiter *RateLimiter) *Handler {
	return &Handler{repo: repo, gen: gen, sink: sink, limiter: limiter}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"detail": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, detail string) {
	JSON(w, status, map[string]string{"detail": detail})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}
