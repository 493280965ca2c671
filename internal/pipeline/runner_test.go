package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/estate-studio/internal/domain"
	"github.com/ashureev/estate-studio/internal/generator"
	"github.com/ashureev/estate-studio/internal/metrics"
	"github.com/ashureev/estate-studio/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	failStep string
	gotPost  generator.PostRequest
}

func (g *fakeGenerator) result(step, out string) (string, error) {
	if g.failStep == step {
		return "", errors.New("boom")
	}
	return out, nil
}

func (g *fakeGenerator) Branding(context.Context, string) (string, error) {
	return g.result(workflow.StepBranding, "Skyline Residences")
}

func (g *fakeGenerator) Visuals(context.Context, string, string) (string, error) {
	return g.result(workflow.StepVisuals, "Glass facade at dusk")
}

func (g *fakeGenerator) Image(context.Context, string) (string, error) {
	return g.result(workflow.StepImage, "/static/img/skyline.png")
}

func (g *fakeGenerator) Post(_ context.Context, req generator.PostRequest) (string, error) {
	g.gotPost = req
	return g.result(workflow.StepBasePost, "Your new home awaits in Kharadi.")
}

func (g *fakeGenerator) Publish(context.Context, string, string) (string, error) {
	return g.result(workflow.StepPublish, "Posted to Facebook page")
}

func (g *fakeGenerator) Listing(context.Context, domain.ListingRequest) (string, error) {
	return "A listing.", nil
}

type fakePosts struct {
	mu        sync.Mutex
	created   []*domain.Post
	published map[string]string
	createErr error
}

func (f *fakePosts) CreatePost(_ context.Context, p *domain.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	p.ID = "post-1"
	f.created = append(f.created, p)
	return nil
}

func (f *fakePosts) MarkPostPublished(_ context.Context, id, message string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.published == nil {
		f.published = make(map[string]string)
	}
	f.published[id] = message
	return nil
}

// fakeConversation records events; RequestDetails returns delivery unless
// block is set, in which case it waits for ctx.
type fakeConversation struct {
	events   []workflow.Event
	delivery Delivery
	block    bool
	onWait   func()
}

func (c *fakeConversation) Send(_ context.Context, ev workflow.Event) error {
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConversation) RequestDetails(ctx context.Context) (Delivery, error) {
	c.events = append(c.events, workflow.RequestInput())
	if c.onWait != nil {
		c.onWait()
	}
	if c.block {
		<-ctx.Done()
		return Delivery{}, ctx.Err()
	}
	return c.delivery, nil
}

func (c *fakeConversation) types() []workflow.EventType {
	out := make([]workflow.EventType, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Type
	}
	return out
}

func kharadi(publish bool) Delivery {
	return Delivery{
		PropertyID: "prop-1",
		Details: domain.PropertyDetails{
			Location:       "Kharadi, Pune",
			Price:          "1.5 Cr",
			Bedrooms:       "2 BHK",
			Features:       []string{"Sea view", "Gym"},
			PostToFacebook: publish,
		},
	}
}

func TestRunWithoutPublishing(t *testing.T) {
	gen := &fakeGenerator{}
	posts := &fakePosts{}
	conv := &fakeConversation{delivery: kharadi(false)}
	r := NewRunner(gen, posts, time.Minute, metrics.New(), nil)

	outcome := r.Run(context.Background(), conv, "c1", "2BHK in Kharadi")
	assert.Equal(t, metrics.OutcomeFinal, outcome)

	assert.Equal(t, []workflow.EventType{
		workflow.EventUpdate, workflow.EventUpdate, workflow.EventUpdate,
		workflow.EventRequestInput, workflow.EventUpdate, workflow.EventFinal,
	}, conv.types())
	assert.Equal(t, workflow.StepBranding, conv.events[0].Step)
	assert.Equal(t, "Skyline Residences", conv.events[0].Data[workflow.SlotBrandSuggestions])
	assert.Equal(t, "/static/img/skyline.png", conv.events[2].Data[workflow.SlotImagePath])
	assert.Equal(t, workflow.StepBasePost, conv.events[4].Step)
	assert.Equal(t, PostReadyMessage, conv.events[5].Message)

	assert.Equal(t, "Skyline Residences", gen.gotPost.Brand)
	assert.Equal(t, []string{"Sea view", "Gym"}, gen.gotPost.Details.Features)

	require.Len(t, posts.created, 1)
	assert.Equal(t, "prop-1", posts.created[0].PropertyID)
	assert.Equal(t, domain.PostDraft, posts.created[0].Status)
	assert.Empty(t, posts.published)
}

func TestRunWithPublishing(t *testing.T) {
	posts := &fakePosts{}
	conv := &fakeConversation{delivery: kharadi(true)}
	r := NewRunner(&fakeGenerator{}, posts, time.Minute, nil, nil)

	outcome := r.Run(context.Background(), conv, "c1", "2BHK in Kharadi")
	assert.Equal(t, metrics.OutcomeFinal, outcome)

	n := len(conv.events)
	require.GreaterOrEqual(t, n, 2)
	publish := conv.events[n-2]
	assert.Equal(t, workflow.StepPublish, publish.Step)
	assert.Equal(t, map[string]any{"message": "Posted to Facebook page"}, publish.Data[workflow.SlotPostResult])
	assert.Equal(t, workflow.Final("Posted to Facebook page"), conv.events[n-1])
	assert.Equal(t, "Posted to Facebook page", posts.published["post-1"])
}

func TestRunStepFailureSendsError(t *testing.T) {
	conv := &fakeConversation{delivery: kharadi(false)}
	r := NewRunner(&fakeGenerator{failStep: workflow.StepVisuals}, &fakePosts{}, time.Minute, nil, nil)

	outcome := r.Run(context.Background(), conv, "c1", "input")
	assert.Equal(t, metrics.OutcomeError, outcome)
	assert.Equal(t, []workflow.EventType{workflow.EventUpdate, workflow.EventError}, conv.types())
	assert.Equal(t, "Visual concept failed: boom", conv.events[1].Message)
}

func TestRunPublishFailure(t *testing.T) {
	posts := &fakePosts{}
	conv := &fakeConversation{delivery: kharadi(true)}
	r := NewRunner(&fakeGenerator{failStep: workflow.StepPublish}, posts, time.Minute, nil, nil)

	outcome := r.Run(context.Background(), conv, "c1", "input")
	assert.Equal(t, metrics.OutcomeError, outcome)
	last := conv.events[len(conv.events)-1]
	assert.Equal(t, workflow.EventError, last.Type)
	assert.Equal(t, "Publishing failed: boom", last.Message)
	require.Len(t, posts.created, 1)
	assert.Empty(t, posts.published)
}

func TestRunSavePostFailure(t *testing.T) {
	conv := &fakeConversation{delivery: kharadi(false)}
	r := NewRunner(&fakeGenerator{}, &fakePosts{createErr: errors.New("disk full")}, time.Minute, nil, nil)

	outcome := r.Run(context.Background(), conv, "c1", "input")
	assert.Equal(t, metrics.OutcomeError, outcome)
	assert.Equal(t, workflow.Failure(SavePostFailedMessage), conv.events[len(conv.events)-1])
}

func TestRunDetailsTimeout(t *testing.T) {
	conv := &fakeConversation{block: true}
	r := NewRunner(&fakeGenerator{}, &fakePosts{}, 20*time.Millisecond, nil, nil)

	outcome := r.Run(context.Background(), conv, "c1", "input")
	assert.Equal(t, metrics.OutcomeTimeout, outcome)
	assert.Equal(t, workflow.Failure(DetailsTimeoutMessage), conv.events[len(conv.events)-1])
}

func TestRunCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	conv := &fakeConversation{block: true, onWait: cancel}
	r := NewRunner(&fakeGenerator{}, &fakePosts{}, time.Minute, nil, nil)

	outcome := r.Run(ctx, conv, "c1", "input")
	assert.Equal(t, metrics.OutcomeCancelled, outcome)
	assert.Equal(t, workflow.EventRequestInput, conv.events[len(conv.events)-1].Type)
}
