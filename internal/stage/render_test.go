package stage

import (
	"bytes"
	"testing"
	"time"

	"github.com/ashureev/estate-studio/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(panels []Panel) []Kind {
	out := make([]Kind, 0, len(panels))
	for _, p := range panels {
		out = append(out, p.Stage)
	}
	return out
}

func TestRenderEmptyStore(t *testing.T) {
	assert.Empty(t, Render(workflow.NewStore().Snapshot(), Options{}))
}

func TestRenderAfterBeginRun(t *testing.T) {
	s := workflow.NewStore()
	s.BeginRun("luxury villas in Goa")

	panels := Render(s.Snapshot(), Options{})
	assert.Equal(t, []Kind{Branding, Visual}, kinds(panels))
	for _, p := range panels {
		assert.True(t, p.Loading)
		assert.Empty(t, p.Body)
	}
}

func TestRenderBrandingContent(t *testing.T) {
	s := workflow.NewStore()
	s.BeginRun("luxury villas in Goa")
	require.NoError(t, s.Apply(workflow.Update(workflow.StepBranding, map[string]any{"brand_suggestions": "# Goa Grand"})))

	panels := Render(s.Snapshot(), Options{})
	require.Len(t, panels, 2)
	assert.False(t, panels[0].Loading)
	assert.Equal(t, "# Goa Grand", panels[0].Body)
	assert.True(t, panels[1].Loading)
}

func TestRenderFullRun(t *testing.T) {
	s := workflow.NewStore()
	s.BeginRun("idea")
	for _, ev := range []workflow.Event{
		workflow.Update(workflow.StepBranding, map[string]any{"brand_suggestions": "brand"}),
		workflow.Update(workflow.StepVisuals, map[string]any{"visual_prompt": "sea facing villa"}),
		workflow.Update(workflow.StepImage, map[string]any{"image_path": "/static/images/a.png"}),
		workflow.RequestInput(),
	} {
		require.NoError(t, s.Apply(ev))
	}
	s.SetLoading(workflow.StepBasePost, true)
	s.SetLoading(workflow.StepPublish, true)
	require.NoError(t, s.Apply(workflow.Update(workflow.StepBasePost, map[string]any{"base_post": "Live by the sea."})))
	require.NoError(t, s.Apply(workflow.Update(workflow.StepPublish, map[string]any{"post_result": map[string]any{"message": "Posted to Facebook"}})))

	panels := Render(s.Snapshot(), Options{ImageBase: "https://crm.example.com"})
	assert.Equal(t, []Kind{Branding, Visual, Details, Post, Publish}, kinds(panels))
	assert.Equal(t, "sea facing villa", panels[1].Body)
	assert.Equal(t, "https://crm.example.com/static/images/a.png", panels[1].ImageURL)
	assert.Equal(t, DetailsPrompt, panels[2].Body)
	assert.Equal(t, "Live by the sea.", panels[3].Body)
	assert.Equal(t, "Posted to Facebook", panels[4].Body)
}

func TestRenderIsIdempotent(t *testing.T) {
	s := workflow.NewStore()
	s.BeginRun("idea")
	snap := s.Snapshot()
	opts := Options{Now: time.Now()}
	assert.Equal(t, Render(snap, opts), Render(snap, opts))
}

func TestRenderStalled(t *testing.T) {
	s := workflow.NewStore()
	s.BeginRun("idea")
	snap := s.Snapshot()

	panels := Render(snap, Options{StallTimeout: time.Minute, Now: time.Now().Add(2 * time.Minute)})
	require.NotEmpty(t, panels)
	assert.True(t, panels[0].Stalled)

	panels = Render(snap, Options{Now: time.Now().Add(2 * time.Minute)})
	assert.False(t, panels[0].Stalled)
}

func TestResolveImage(t *testing.T) {
	assert.Equal(t, "/a.png", ResolveImage("", "/a.png"))
	assert.Equal(t, "https://cdn.example.com/x.png", ResolveImage("http://host", "https://cdn.example.com/x.png"))
	assert.Equal(t, "http://host/api/images/x.png", ResolveImage("http://host/api", "images/x.png"))
	assert.Equal(t, "http://host/images/x.png", ResolveImage("http://host/api", "/images/x.png"))
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, []Panel{
		{Title: "Brand Identity", Body: "brand"},
		{Title: "Visual Concept", Loading: true},
		{Title: "Visual Concept", ImageURL: "http://host/a.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, "== Brand Identity ==\nbrand\n\n== Visual Concept ==\n... working\n\n== Visual Concept ==\nImage: http://host/a.png\n\n", buf.String())
}
