package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashureev/estate-studio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL+"/", "key-1", 5*time.Second, nil)
}

func TestBrandingSendsKeyAndInput(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/branding", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2BHK in Kharadi", body["input"])
		_, _ = w.Write([]byte(`{"text":"Skyline Residences"}`))
	})

	out, err := c.Branding(context.Background(), "2BHK in Kharadi")
	require.NoError(t, err)
	assert.Equal(t, "Skyline Residences", out)
}

func TestImageReturnsPath(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images", r.URL.Path)
		_, _ = w.Write([]byte(`{"image_path":"/static/img/abc.png"}`))
	})

	out, err := c.Image(context.Background(), "sunset facade")
	require.NoError(t, err)
	assert.Equal(t, "/static/img/abc.png", out)
}

func TestPostSendsDetails(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req PostRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Goa", req.Details.Location)
		assert.Equal(t, "Brand", req.Brand)
		_, _ = w.Write([]byte(`{"text":"Come home to Goa."}`))
	})

	out, err := c.Post(context.Background(), PostRequest{Brand: "Brand", Details: domain.PropertyDetails{Location: "Goa"}})
	require.NoError(t, err)
	assert.Equal(t, "Come home to Goa.", out)
}

func TestNon2xxIsError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"upstream model unavailable"}`))
	})

	_, err := c.Publish(context.Background(), "post", "")
	require.Error(t, err)
	var genErr *Error
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, http.StatusBadGateway, genErr.Status)
	assert.Equal(t, "upstream model unavailable", genErr.Detail)
	assert.Contains(t, err.Error(), "publish:")
}

func TestEmptyResult(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"  "}`))
	})

	_, err := c.Listing(context.Background(), domain.ListingRequest{Template: "luxury"})
	assert.ErrorIs(t, err, ErrEmptyResult)
}

func TestDetailFallsBackToBody(t *testing.T) {
	assert.Equal(t, "boom", detail([]byte(`{"error":"boom"}`)))
	assert.Equal(t, "plain text", detail([]byte("plain text\n")))
}
