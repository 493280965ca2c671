package domain

import (
	"strings"
	"time"
)

// ListingRequest is the body of POST /api/listings/generate.
type ListingRequest struct {
	Template  string   `json:"template"`
	Address   string   `json:"address"`
	City      string   `json:"city"`
	State     string   `json:"state"`
	Price     float64  `json:"price"`
	Bedrooms  int      `json:"bedrooms"`
	Bathrooms float64  `json:"bathrooms"`
	Features  []string `json:"features"`
}

// Validate checks the fields a listing cannot be written without.
func (r ListingRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Template) == "" {
		missing = append(missing, "template")
	}
	if strings.TrimSpace(r.Address) == "" {
		missing = append(missing, "address")
	}
	if strings.TrimSpace(r.City) == "" {
		missing = append(missing, "city")
	}
	if len(missing) > 0 {
		return &FieldError{Fields: missing}
	}
	return nil
}

// Listing is a generated listing description.
type Listing struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"owner_id"`
	Request   ListingRequest `json:"request"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
}

// ListingResponse is returned by POST /api/listings/generate.
type ListingResponse struct {
	ID      string `json:"id"`
	Listing string `json:"listing"`
}
