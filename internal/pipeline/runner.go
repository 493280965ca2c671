package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/estate-studio/internal/domain"
	"github.com/ashureev/estate-studio/internal/generator"
	"github.com/ashureev/estate-studio/internal/metrics"
	"github.com/ashureev/estate-studio/internal/workflow"
)

// Messages sent by the runner.
const (
	DetailsTimeoutMessage = "Timed out waiting for property details."
	PostReadyMessage      = "Your post is ready."
	SavePostFailedMessage = "Could not save the generated post."
)

var stepLabels = map[string]string{
	workflow.StepBranding: "Branding",
	workflow.StepVisuals:  "Visual concept",
	workflow.StepImage:    "Image generation",
	workflow.StepBasePost: "Post writing",
	workflow.StepPublish:  "Publishing",
}

// PostStore persists the posts a run produces.
type PostStore interface {
	CreatePost(ctx context.Context, p *domain.Post) error
	MarkPostPublished(ctx context.Context, id, message string, at time.Time) error
}

// Runner executes the content pipeline for one request.
type Runner struct {
	gen            generator.Generator
	posts          PostStore
	detailsTimeout time.Duration
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// NewRunner creates a runner. detailsTimeout bounds the wait for the
// property details form.
func NewRunner(gen generator.Generator, posts PostStore, detailsTimeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{gen: gen, posts: posts, detailsTimeout: detailsTimeout, metrics: m, logger: logger}
}

// errStop ends a run after an error event has already been sent.
var errStop = errors.New("run stopped")

// Run drives one request through the pipeline. Every outcome is reported
// to conv; the returned string is the outcome label.
func (r *Runner) Run(ctx context.Context, conv Conversation, clientID, input string) string {
	r.metrics.RunStarted()
	outcome := r.run(ctx, conv, clientID, input)
	r.metrics.RunFinished(outcome)
	r.logger.Info("Workflow run finished", "client_id", clientID, "outcome", outcome)
	return outcome
}

func (r *Runner) run(ctx context.Context, conv Conversation, clientID, input string) string {
	brand, err := r.step(ctx, conv, workflow.StepBranding, workflow.SlotBrandSuggestions, func() (string, error) {
		return r.gen.Branding(ctx, input)
	})
	if err != nil {
		return r.outcome(ctx, err)
	}

	visual, err := r.step(ctx, conv, workflow.StepVisuals, workflow.SlotVisualPrompt, func() (string, error) {
		return r.gen.Visuals(ctx, input, brand)
	})
	if err != nil {
		return r.outcome(ctx, err)
	}

	imagePath, err := r.step(ctx, conv, workflow.StepImage, workflow.SlotImagePath, func() (string, error) {
		return r.gen.Image(ctx, visual)
	})
	if err != nil {
		return r.outcome(ctx, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, r.detailsTimeout)
	delivery, err := conv.RequestDetails(waitCtx)
	cancel()
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			r.logger.Info("Timed out waiting for details", "client_id", clientID, "timeout", r.detailsTimeout)
			r.fail(ctx, conv, DetailsTimeoutMessage)
			return metrics.OutcomeTimeout
		}
		return r.outcome(ctx, err)
	}

	base, err := r.step(ctx, conv, workflow.StepBasePost, workflow.SlotBasePost, func() (string, error) {
		return r.gen.Post(ctx, generator.PostRequest{
			Input:        input,
			Brand:        brand,
			VisualPrompt: visual,
			ImagePath:    imagePath,
			Details:      delivery.Details,
		})
	})
	if err != nil {
		return r.outcome(ctx, err)
	}

	post := domain.NewPost(delivery.PropertyID, base, imagePath)
	if err := r.posts.CreatePost(ctx, post); err != nil {
		r.logger.Error("Failed to store post", "client_id", clientID, "property_id", delivery.PropertyID, "error", err)
		r.fail(ctx, conv, SavePostFailedMessage)
		return metrics.OutcomeError
	}

	if !delivery.Details.PostToFacebook {
		if err := conv.Send(ctx, workflow.Final(PostReadyMessage)); err != nil {
			return r.outcome(ctx, err)
		}
		return metrics.OutcomeFinal
	}

	start := time.Now()
	message, err := r.gen.Publish(ctx, base, imagePath)
	r.metrics.ObserveStep(workflow.StepPublish, time.Since(start))
	if err != nil {
		return r.outcome(ctx, r.stepFailed(ctx, conv, workflow.StepPublish, err))
	}
	if err := conv.Send(ctx, workflow.Update(workflow.StepPublish, map[string]any{
		workflow.SlotPostResult: map[string]any{"message": message},
	})); err != nil {
		return r.outcome(ctx, err)
	}
	if err := r.posts.MarkPostPublished(ctx, post.ID, message, time.Now()); err != nil {
		r.logger.Warn("Failed to mark post published", "post_id", post.ID, "error", err)
	}
	if err := conv.Send(ctx, workflow.Final(message)); err != nil {
		return r.outcome(ctx, err)
	}
	return metrics.OutcomeFinal
}

// step calls fn and emits its result as an update for step under slot.
func (r *Runner) step(ctx context.Context, conv Conversation, step, slot string, fn func() (string, error)) (string, error) {
	start := time.Now()
	out, err := fn()
	r.metrics.ObserveStep(step, time.Since(start))
	if err != nil {
		return "", r.stepFailed(ctx, conv, step, err)
	}
	if err := conv.Send(ctx, workflow.Update(step, map[string]any{slot: out})); err != nil {
		return "", err
	}
	return out, nil
}

func (r *Runner) stepFailed(ctx context.Context, conv Conversation, step string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.logger.Warn("Workflow step failed", "step", step, "error", err)
	r.fail(ctx, conv, stepLabels[step]+" failed: "+err.Error())
	return errStop
}

func (r *Runner) fail(ctx context.Context, conv Conversation, message string) {
	if err := conv.Send(ctx, workflow.Failure(message)); err != nil {
		r.logger.Debug("Failed to send error event", "error", err)
	}
}

func (r *Runner) outcome(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, errStop):
		return metrics.OutcomeError
	case ctx.Err() != nil:
		return metrics.OutcomeCancelled
	default:
		r.logger.Debug("Workflow run aborted", "error", err)
		return metrics.OutcomeError
	}
}
