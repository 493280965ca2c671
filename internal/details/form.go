// Package details collects property details once the workflow asks for them
// and submits them over REST.
package details

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ashureev/estate-studio/internal/domain"
	"github.com/ashureev/estate-studio/internal/workflow"
)

// Messages appended after a submission when the server response carries none.
const (
	DefaultSavedMessage = "Property details saved. Generating your post..."
	SavedOnlyMessage    = "Property details saved."
	NoRunWaitingMessage = "No workflow run is waiting for these details. Send a new idea to start one."
)

// Form holds the raw field values as typed.
type Form struct {
	Location       string
	Price          string
	Bedrooms       string
	Features       string
	PostToFacebook bool
}

// ParseFeatures splits a comma-separated list, trimming entries and
// dropping empty ones.
func ParseFeatures(s string) []string {
	out := []string{}
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Payload composes the REST body for clientID's session.
func (f Form) Payload(clientID string) domain.PropertyDetails {
	return domain.PropertyDetails{
		Location:       strings.TrimSpace(f.Location),
		Price:          strings.TrimSpace(f.Price),
		Bedrooms:       strings.TrimSpace(f.Bedrooms),
		Features:       ParseFeatures(f.Features),
		PostToFacebook: f.PostToFacebook,
		ClientID:       clientID,
	}
}

// Validate enforces the required fields.
func (f Form) Validate() error {
	return f.Payload("").Validate()
}

// Creator stores submitted details.
type Creator interface {
	CreateSmartProperty(ctx context.Context, details domain.PropertyDetails) (*domain.SmartPropertyResponse, error)
}

// Submit validates the form, marks the post steps in flight, POSTs the
// payload and appends the outcome to the chat. It does not wait for any
// socket event.
func Submit(ctx context.Context, api Creator, store *workflow.Store, clientID string, f Form) (*domain.SmartPropertyResponse, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	payload := f.Payload(clientID)

	store.HideDetails()
	store.SetLoading(workflow.StepBasePost, true)
	if payload.PostToFacebook {
		store.SetLoading(workflow.StepPublish, true)
	}

	resp, err := api.CreateSmartProperty(ctx, payload)
	if err != nil {
		clearPostFlags(store, payload.PostToFacebook)
		store.ShowDetails()
		store.AppendAssistant("Could not save property details: " + err.Error())
		return nil, fmt.Errorf("submit details: %w", err)
	}

	msg := resp.Message
	if !resp.Resumed {
		// No run took the details, so no update will clear the flags.
		clearPostFlags(store, payload.PostToFacebook)
		if msg == "" {
			msg = SavedOnlyMessage
		}
		store.AppendAssistant(msg)
		store.AppendAssistant(NoRunWaitingMessage)
		return resp, nil
	}
	if msg == "" {
		msg = DefaultSavedMessage
	}
	store.AppendAssistant(msg)
	return resp, nil
}

func clearPostFlags(store *workflow.Store, publish bool) {
	store.SetLoading(workflow.StepBasePost, false)
	if publish {
		store.SetLoading(workflow.StepPublish, false)
	}
}

// ErrAborted is returned by Read when input ends before the form is complete.
var ErrAborted = errors.New("details entry aborted")

// Read prompts for each field on w and reads answers line by line,
// re-asking required fields until they are non-empty.
func Read(sc *bufio.Scanner, w io.Writer) (Form, error) {
	var f Form
	var err error
	if f.Location, err = ask(sc, w, "Location", true); err != nil {
		return Form{}, err
	}
	if f.Price, err = ask(sc, w, "Price", true); err != nil {
		return Form{}, err
	}
	if f.Bedrooms, err = ask(sc, w, "Bedrooms", true); err != nil {
		return Form{}, err
	}
	if f.Features, err = ask(sc, w, "Features (comma separated)", false); err != nil {
		return Form{}, err
	}
	post, err := ask(sc, w, "Post to Facebook? [y/N]", false)
	if err != nil {
		return Form{}, err
	}
	switch strings.ToLower(post) {
	case "y", "yes", "true", "1":
		f.PostToFacebook = true
	}
	return f, nil
}

func ask(sc *bufio.Scanner, w io.Writer, label string, required bool) (string, error) {
	for {
		if _, err := fmt.Fprintf(w, "%s: ", label); err != nil {
			return "", err
		}
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", ErrAborted
		}
		v := strings.TrimSpace(sc.Text())
		if v != "" || !required {
			return v, nil
		}
		if _, err := fmt.Fprintf(w, "%s is required.\n", label); err != nil {
			return "", err
		}
	}
}
