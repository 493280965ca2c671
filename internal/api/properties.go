package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/estate-studio/internal/domain"
	"github.com/ashureev/estate-studio/internal/identity"
	"github.com/go-chi/chi/v5"
)

// Responses to a details submission.
const (
	PropertySavedMessage   = "Property details saved."
	PropertyResumedMessage = "Property details saved. Writing your post..."
)

// RegisterRoutes registers the REST routes. Callers wrap r with the
// identity middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/auth/me", h.GetMe)
		r.Post("/smart-properties", h.CreateProperty)
		r.Get("/smart-properties", h.ListProperties)
		r.Get("/smart-properties/{id}", h.GetProperty)
		r.Post("/listings/generate", h.GenerateListing)
		r.Get("/posts", h.ListPosts)
	})
}

// GetMe returns the caller's profile.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		slog.Error("Failed to load user", "user_id", userID, "error", err)
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	profile := user.Profile()
	profile.Demo = profile.Demo || identity.IsDemo(r.Context())
	if profile.Username == "" {
		profile.Username = identity.UsernameFromContext(r.Context())
	}
	JSON(w, http.StatusOK, profile)
}

// CreateProperty stores submitted details and resumes the workflow run
// named by client_id when it is waiting for them.
func (h *Handler) CreateProperty(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var details domain.PropertyDetails
	if err := decode(w, r, &details); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := details.Validate(); err != nil {
		Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	prop := domain.NewProperty(userID, details)
	if err := h.repo.CreateProperty(r.Context(), prop); err != nil {
		slog.Error("Failed to store property", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to save property")
		return
	}

	resumed := false
	if details.ClientID != "" && h.sink != nil {
		resumed = h.sink.Deliver(userID, details.ClientID, prop.ID, details)
	}
	slog.Info("Property saved", "user_id", userID, "property_id", prop.ID, "client_id", details.ClientID, "resumed", resumed)

	msg := PropertySavedMessage
	if resumed {
		msg = PropertyResumedMessage
	}
	JSON(w, http.StatusCreated, domain.SmartPropertyResponse{ID: prop.ID, Message: msg, Resumed: resumed})
}

// ListProperties returns the caller's properties.
func (h *Handler) ListProperties(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	props, err := h.repo.ListProperties(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list properties", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list properties")
		return
	}
	JSON(w, http.StatusOK, props)
}

// GetProperty returns one of the caller's properties.
func (h *Handler) GetProperty(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	prop, err := h.repo.GetProperty(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		slog.Error("Failed to load property", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load property")
		return
	}
	if prop == nil {
		Error(w, http.StatusNotFound, "Property not found")
		return
	}
	JSON(w, http.StatusOK, prop)
}

// GenerateListing writes a listing description for the submitted property.
func (h *Handler) GenerateListing(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if h.gen == nil {
		Error(w, http.StatusServiceUnavailable, "Content generation is not configured")
		return
	}
	if h.limiter != nil && !h.limiter.Allow(userID) {
		slog.Warn("Listing generation rate limited", "user_id", userID)
		Error(w, http.StatusTooManyRequests, "Too many requests, please slow down")
		return
	}

	var req domain.ListingRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	content, err := h.gen.Listing(r.Context(), req)
	if err != nil {
		slog.Error("Listing generation failed", "user_id", userID, "error", err)
		Error(w, http.StatusBadGateway, "Failed to generate listing")
		return
	}

	listing := &domain.Listing{OwnerID: userID, Request: req, Content: content, CreatedAt: time.Now()}
	if err := h.repo.CreateListing(r.Context(), listing); err != nil {
		slog.Error("Failed to store listing", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to save listing")
		return
	}

	JSON(w, http.StatusOK, domain.ListingResponse{ID: listing.ID, Listing: content})
}

var errBadStatus = errors.New("status must be draft or published")

func parseStatus(s string) (domain.PostStatus, error) {
	switch domain.PostStatus(s) {
	case "", domain.PostDraft, domain.PostPublished:
		return domain.PostStatus(s), nil
	}
	return "", errBadStatus
}

// ListPosts returns posts on the caller's properties, optionally filtered
// by ?status=.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	status, err := parseStatus(r.URL.Query().Get("status"))
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	posts, err := h.repo.ListPosts(r.Context(), userID, status)
	if err != nil {
		slog.Error("Failed to list posts", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list posts")
		return
	}
	JSON(w, http.StatusOK, posts)
}
