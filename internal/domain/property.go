package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrMissingField is wrapped by validation errors for required fields.
var ErrMissingField = errors.New("missing required field")

// PropertyDetails is the body of POST /api/smart-properties.
type PropertyDetails struct {
	Location       string   `json:"location"`
	Price          string   `json:"price"`
	Bedrooms       string   `json:"bedrooms"`
	Features       []string `json:"features"`
	PostToFacebook bool     `json:"post_to_facebook"`
	// ClientID names the workflow session waiting for these details, if any.
	ClientID string `json:"client_id,omitempty"`
}

// Validate checks the required fields.
func (d PropertyDetails) Validate() error {
	var missing []string
	if strings.TrimSpace(d.Location) == "" {
		missing = append(missing, "location")
	}
	if strings.TrimSpace(d.Price) == "" {
		missing = append(missing, "price")
	}
	if strings.TrimSpace(d.Bedrooms) == "" {
		missing = append(missing, "bedrooms")
	}
	if len(missing) > 0 {
		return &FieldError{Fields: missing}
	}
	return nil
}

// FieldError lists missing required fields.
type FieldError struct {
	Fields []string
}

func (e *FieldError) Error() string {
	return "missing required field(s): " + strings.Join(e.Fields, ", ")
}

func (e *FieldError) Unwrap() error { return ErrMissingField }

// Property is a stored smart property.
type Property struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Location       string    `json:"location"`
	Price          string    `json:"price"`
	Bedrooms       string    `json:"bedrooms"`
	Features       []string  `json:"features"`
	PostToFacebook bool      `json:"post_to_facebook"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewProperty creates a property owned by ownerID from submitted details.
func NewProperty(ownerID string, d PropertyDetails) *Property {
	features := d.Features
	if features == nil {
		features = []string{}
	}
	return &Property{
		OwnerID:        ownerID,
		Location:       strings.TrimSpace(d.Location),
		Price:          strings.TrimSpace(d.Price),
		Bedrooms:       strings.TrimSpace(d.Bedrooms),
		Features:       features,
		PostToFacebook: d.PostToFacebook,
		CreatedAt:      time.Now(),
	}
}

// SmartPropertyResponse is returned after a property is stored.
type SmartPropertyResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	// Resumed is true when a waiting workflow run received the details.
	Resumed bool `json:"resumed"`
}
