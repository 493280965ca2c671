package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdatesShallowMergeInArrivalOrder(t *testing.T) {
	s := NewStore()
	events := []Event{
		Update(StepBranding, map[string]any{"brand_suggestions": "v1", "extra": 1.0}),
		Update(StepVisuals, map[string]any{"visual_prompt": "sunset"}),
		Update(StepBranding, map[string]any{"brand_suggestions": "v2"}),
		Update(StepBasePost, map[string]any{"post_result": map[string]any{"message": "a", "id": "x"}}),
		Update(StepPublish, map[string]any{"post_result": map[string]any{"message": "b"}}),
	}
	for _, ev := range events {
		require.NoError(t, s.Apply(ev))
	}

	snap := s.Snapshot()
	assert.Equal(t, map[string]any{
		"brand_suggestions": "v2",
		"extra":             1.0,
		"visual_prompt":     "sunset",
		"post_result":       map[string]any{"message": "b"},
	}, snap.State)

	msg, ok := snap.PostResultMessage()
	require.True(t, ok)
	assert.Equal(t, "b", msg)
}

func TestBeginRunResetsToOptimisticFlags(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Apply(Update(StepBasePost, map[string]any{"base_post": "old"})))
	s.SetLoading(StepPublish, true)
	require.NoError(t, s.Apply(RequestInput()))

	s.BeginRun("luxury villas in Goa")

	snap := s.Snapshot()
	assert.Empty(t, snap.State)
	assert.Equal(t, map[string]bool{
		StepBranding: true,
		StepVisuals:  true,
		StepImage:    true,
	}, snap.Flags)
	assert.False(t, snap.DetailsRequested)

	last := snap.Messages[len(snap.Messages)-1]
	assert.Equal(t, SpeakerUser, last.Speaker)
	assert.Equal(t, "luxury villas in Goa", last.Text)
}

func TestBrandingUpdateClearsOnlyItsFlag(t *testing.T) {
	s := NewStore()
	s.BeginRun("luxury villas in Goa")

	ev, err := ParseEvent([]byte(`{"type":"update","step":"create_branding","data":{"brand_suggestions":"**Goa Grand**"}}`))
	require.NoError(t, err)
	require.NoError(t, s.Apply(ev))

	snap := s.Snapshot()
	text, ok := snap.BrandSuggestions()
	require.True(t, ok)
	assert.Equal(t, "**Goa Grand**", text)
	assert.False(t, snap.Loading(StepBranding))
	assert.True(t, snap.Loading(StepVisuals))
	assert.True(t, snap.Loading(StepImage))
}

func TestErrorClearsEveryFlagAndAddsNoState(t *testing.T) {
	s := NewStore()
	s.BeginRun("idea")
	s.SetLoading(StepPublish, true)
	require.NoError(t, s.Apply(Update(StepBranding, map[string]any{"brand_suggestions": "x"})))
	before := s.Snapshot()

	require.NoError(t, s.Apply(Failure("generator unavailable")))

	snap := s.Snapshot()
	assert.Equal(t, before.State, snap.State)
	require.Len(t, snap.Flags, len(before.Flags))
	for step, v := range snap.Flags {
		assert.False(t, v, "flag %s should be cleared", step)
	}
	assert.Equal(t, "generator unavailable", snap.Messages[len(snap.Messages)-1].Text)
}

func TestFinalClearsOnlyPublishFlag(t *testing.T) {
	s := NewStore()
	s.BeginRun("idea")
	s.SetLoading(StepPublish, true)

	require.NoError(t, s.Apply(Final("")))

	snap := s.Snapshot()
	assert.False(t, snap.Loading(StepPublish))
	assert.True(t, snap.Loading(StepBranding))
	assert.True(t, snap.Loading(StepVisuals))
	assert.True(t, snap.Loading(StepImage))
	assert.Equal(t, DefaultFinalMessage, snap.Messages[len(snap.Messages)-1].Text)
}

func TestFinalDoesNotInventPublishFlag(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Apply(Final("done")))
	assert.False(t, s.Snapshot().Tracked(StepPublish))
}

func TestUnknownEventLeavesStoreUnchanged(t *testing.T) {
	s := NewStore()
	s.BeginRun("idea")
	before := s.Snapshot()

	err := s.Apply(Event{Type: "progress", Step: StepBranding, Data: map[string]any{"brand_suggestions": "x"}})
	assert.True(t, errors.Is(err, ErrUnknownEvent))

	after := s.Snapshot()
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, before.Flags, after.Flags)
	assert.Equal(t, before.Messages, after.Messages)
}

func TestRequestInputShowsDetails(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Apply(RequestInput()))

	snap := s.Snapshot()
	assert.True(t, snap.DetailsRequested)
	assert.Equal(t, DetailsRequestedMessage, snap.Messages[0].Text)
	assert.Equal(t, SpeakerAssistant, snap.Messages[0].Speaker)

	s.HideDetails()
	assert.False(t, s.Snapshot().DetailsRequested)
}

func TestSubscribeCalledOnChange(t *testing.T) {
	s := NewStore()
	calls := 0
	s.Subscribe(func() { calls++ })

	s.AppendAssistant("hello")
	require.NoError(t, s.Apply(Final("done")))
	_ = s.Apply(Event{Type: "bogus"})

	assert.Equal(t, 2, calls)
}

func TestStalled(t *testing.T) {
	s := NewStore()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return start }
	s.BeginRun("idea")
	require.NoError(t, s.Apply(Update(StepBranding, nil)))

	snap := s.Snapshot()
	assert.Nil(t, snap.Stalled(start.Add(time.Hour), 0))
	assert.Empty(t, snap.Stalled(start.Add(time.Second), time.Minute))
	assert.Equal(t, []string{StepVisuals, StepImage}, snap.Stalled(start.Add(2*time.Minute), time.Minute))
}

func TestMessagesAreAppendOnly(t *testing.T) {
	s := NewStore()
	s.AppendAssistant("one")
	first := s.Messages()
	s.AppendUser("two")
	s.BeginRun("three")

	all := s.Messages()
	require.Len(t, all, 3)
	assert.Equal(t, first[0], all[0])
	assert.Equal(t, "two", all[1].Text)
	assert.Equal(t, "three", all[2].Text)
}
