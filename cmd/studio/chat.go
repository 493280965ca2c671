package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ashureev/estate-studio/internal/details"
	"github.com/ashureev/estate-studio/internal/session"
	"github.com/ashureev/estate-studio/internal/socket"
	"github.com/ashureev/estate-studio/internal/stage"
	"github.com/ashureev/estate-studio/internal/workflow"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	quitCommand = "/quit"
	detailsHint = "Press Enter to fill in the property details."
	restartNote = "Starting over: the run in progress will be cancelled."
)

func chatCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Run the interactive content workflow",
		Long: `Chat opens a workflow session with the server. Describe your
business idea and the server streams back branding, a visual concept and,
once you fill in the property details, a launch post.

Type /quit or send EOF to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, p, logger, err := opts.client()
			if err != nil {
				return err
			}

			sessionID := session.NewID()
			url, err := socket.ChatURL(p.ServerURL, sessionID)
			if err != nil {
				return err
			}
			logger.Debug("Starting chat", "session_id", sessionID, "url", url)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store := workflow.NewStore()
			client := socket.New(store, socket.Options{
				URL:            url,
				ReconnectDelay: p.ReconnectDelay,
				Logger:         logger,
			})

			c := &chat{
				store:     store,
				client:    client,
				api:       api,
				sessionID: sessionID,
				out:       &lockedWriter{w: cmd.OutOrStdout()},
				render:    stage.Options{ImageBase: p.ServerURL, StallTimeout: p.StallTimeout},
			}
			return c.run(ctx, cmd.InOrStdin())
		},
	}
}

// chat ties the socket client, the store and the terminal together.
type chat struct {
	store     *workflow.Store
	client    *socket.Client
	api       details.Creator
	sessionID string
	out       io.Writer
	render    stage.Options

	printed    int
	lastPanels string
	hinted     bool
}

func (c *chat) run(parent context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	changed := make(chan struct{}, 1)
	c.store.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	c.client.Start(ctx)
	defer c.client.Close()

	// Stdin cannot be interrupted, so the pump lives outside the group.
	lines := make(chan string)
	go pumpLines(ctx, in, lines)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.renderLoop(gctx, changed)
	})
	g.Go(func() error {
		defer cancel()
		return c.inputLoop(gctx, bufio.NewScanner(&lineSource{ctx: gctx, lines: lines}))
	})
	return g.Wait()
}

func (c *chat) renderLoop(ctx context.Context, changed <-chan struct{}) error {
	var tick <-chan time.Time
	if c.render.StallTimeout > 0 {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		case <-tick:
		}
		if err := c.draw(); err != nil {
			return err
		}
	}
}

// draw prints chat messages not yet shown and the stage panels when they
// changed since the last draw.
func (c *chat) draw() error {
	msgs := c.store.Messages()
	for _, m := range msgs[c.printed:] {
		if m.Speaker != workflow.SpeakerAssistant {
			continue
		}
		if _, err := fmt.Fprintf(c.out, "assistant> %s\n", m.Text); err != nil {
			return err
		}
	}
	c.printed = len(msgs)

	snap := c.store.Snapshot()
	opts := c.render
	opts.Now = time.Now()
	var buf bytes.Buffer
	if err := stage.Write(&buf, stage.Render(snap, opts)); err != nil {
		return err
	}
	if panels := buf.String(); panels != c.lastPanels {
		c.lastPanels = panels
		if _, err := io.WriteString(c.out, panels); err != nil {
			return err
		}
	}

	if snap.DetailsRequested && !c.hinted {
		if _, err := fmt.Fprintln(c.out, detailsHint); err != nil {
			return err
		}
	}
	c.hinted = snap.DetailsRequested
	return nil
}

func (c *chat) inputLoop(ctx context.Context, sc *bufio.Scanner) error {
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == quitCommand:
			return nil
		case c.store.Snapshot().DetailsRequested:
			if err := c.collectDetails(ctx, sc); err != nil {
				if errors.Is(err, details.ErrAborted) {
					return nil
				}
				return err
			}
		case line == "":
		default:
			if c.store.Snapshot().AnyLoading() {
				if _, err := fmt.Fprintln(c.out, restartNote); err != nil {
					return err
				}
			}
			err := c.client.SendInitialInput(ctx, line)
			if err != nil && !errors.Is(err, socket.ErrNotOpen) {
				return err
			}
		}
	}
	return sc.Err()
}

func (c *chat) collectDetails(ctx context.Context, sc *bufio.Scanner) error {
	for {
		form, err := details.Read(sc, c.out)
		if err != nil {
			return err
		}
		if err := form.Validate(); err != nil {
			if _, werr := fmt.Fprintln(c.out, err.Error()); werr != nil {
				return werr
			}
			continue
		}
		// Failures are reported in the chat and the form is shown again.
		_, _ = details.Submit(ctx, c.api, c.store, c.sessionID, form)
		return nil
	}
}

func pumpLines(ctx context.Context, in io.Reader, lines chan<- string) {
	defer close(lines)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		select {
		case lines <- sc.Text():
		case <-ctx.Done():
			return
		}
	}
}

// lineSource replays pumped lines as a reader so prompts can share one
// scanner with the chat loop.
type lineSource struct {
	ctx   context.Context
	lines <-chan string
	buf   []byte
}

func (l *lineSource) Read(p []byte) (int, error) {
	if len(l.buf) == 0 {
		select {
		case <-l.ctx.Done():
			return 0, io.EOF
		case line, ok := <-l.lines:
			if !ok {
				return 0, io.EOF
			}
			l.buf = append(l.buf[:0], line...)
			l.buf = append(l.buf, '\n')
		}
	}
	n := copy(p, l.buf)
	l.buf = l.buf[n:]
	return n, nil
}

// lockedWriter serializes the render loop and the prompts.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
