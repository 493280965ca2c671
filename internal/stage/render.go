// Package stage derives the sequential workflow panels from a store snapshot.
package stage

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/estate-studio/internal/workflow"
)

// Kind names one of the five fixed stages.
type Kind string

const (
	Branding Kind = "branding"
	Visual   Kind = "visual"
	Details  Kind = "details"
	Post     Kind = "post"
	Publish  Kind = "publish"
)

// DetailsPrompt is shown in the details panel.
const DetailsPrompt = "Tell us about the property: location, price, bedrooms and key features."

// Panel is one rendered stage.
type Panel struct {
	Stage    Kind
	Title    string
	Loading  bool
	Stalled  bool
	Body     string
	ImageURL string
}

// Options tunes rendering.
type Options struct {
	// ImageBase resolves server-relative image paths.
	ImageBase string
	// StallTimeout marks in-flight steps older than this as stalled. Zero disables it.
	StallTimeout time.Duration
	Now          time.Time
}

type definition struct {
	kind  Kind
	title string
	slot  string
	steps []string
}

var definitions = []definition{
	{Branding, "Brand Identity", workflow.SlotBrandSuggestions, []string{workflow.StepBranding}},
	{Visual, "Visual Concept", workflow.SlotImagePath, []string{workflow.StepVisuals, workflow.StepImage}},
	{Details, "Property Details", "", nil},
	{Post, "Launch Post", workflow.SlotBasePost, []string{workflow.StepBasePost}},
	{Publish, "Publishing", workflow.SlotPostResult, []string{workflow.StepPublish}},
}

// Render returns the panels to show, in stage order. Stages with neither a
// result nor a loading flag are omitted.
func Render(snap workflow.Snapshot, opts Options) []Panel {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	stalled := make(map[string]bool)
	for _, step := range snap.Stalled(now, opts.StallTimeout) {
		stalled[step] = true
	}

	var panels []Panel
	for _, def := range definitions {
		if def.kind == Details {
			if snap.DetailsRequested {
				panels = append(panels, Panel{Stage: Details, Title: def.title, Body: DetailsPrompt})
			}
			continue
		}

		_, hasResult := snap.State[def.slot]
		tracked, loading, isStalled := false, false, false
		for _, step := range def.steps {
			if snap.Tracked(step) {
				tracked = true
			}
			if snap.Loading(step) {
				loading = true
			}
			if stalled[step] {
				isStalled = true
			}
		}
		if !hasResult && !tracked {
			continue
		}

		p := Panel{Stage: def.kind, Title: def.title, Loading: loading, Stalled: isStalled}
		if !loading {
			fillContent(&p, snap, opts)
		}
		panels = append(panels, p)
	}
	return panels
}

func fillContent(p *Panel, snap workflow.Snapshot, opts Options) {
	switch p.Stage {
	case Branding:
		p.Body, _ = snap.BrandSuggestions()
	case Visual:
		p.Body, _ = snap.Text(workflow.SlotVisualPrompt)
		if path, ok := snap.ImagePath(); ok {
			p.ImageURL = ResolveImage(opts.ImageBase, path)
		}
	case Post:
		p.Body, _ = snap.BasePost()
	case Publish:
		p.Body, _ = snap.PostResultMessage()
	}
}

// ResolveImage joins a server-relative image path onto base. Absolute URLs
// and an empty base return path unchanged.
func ResolveImage(base, path string) string {
	if path == "" || base == "" {
		return path
	}
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path
	}
	b, err := url.Parse(base)
	if err != nil {
		return path
	}
	ref, err := url.Parse(path)
	if err != nil {
		return path
	}
	if !strings.HasPrefix(ref.Path, "/") {
		b.Path = strings.TrimSuffix(b.Path, "/") + "/"
	}
	return b.ResolveReference(ref).String()
}

// Write prints panels as plain text.
func Write(w io.Writer, panels []Panel) error {
	for _, p := range panels {
		if _, err := fmt.Fprintf(w, "== %s ==\n", p.Title); err != nil {
			return err
		}
		var body string
		switch {
		case p.Loading && p.Stalled:
			body = "... still working (this is taking longer than expected)"
		case p.Loading:
			body = "... working"
		default:
			body = strings.TrimSpace(p.Body)
			if p.ImageURL != "" {
				if body != "" {
					body += "\n"
				}
				body += "Image: " + p.ImageURL
			}
		}
		if _, err := fmt.Fprintf(w, "%s\n\n", body); err != nil {
			return err
		}
	}
	return nil
}
