// Package session implements the bounded, single-shot wait used by the
// interactive persona create and update flows.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/edgard/personabot/internal/platform"
)

// Errors returned by Wait.Next.
var (
	// ErrTimeout means the deadline passed with no matching event.
	ErrTimeout = errors.New("timed out waiting for a reply")
	// ErrSuperseded means a newer wait replaced this one for the same caller.
	ErrSuperseded = errors.New("wait superseded by a newer session")
)

// Key identifies one pending wait: the origin plus the caller within it.
// Waits for different keys run concurrently.
type Key struct {
	Origin string
	Sender string
}

// KeyFor builds the wait key for an inbound event.
func KeyFor(ev *platform.Event) Key {
	return Key{Origin: ev.OriginKey(), Sender: ev.SenderID}
}

// Controller routes inbound events to pending waits. At most one wait is
// pending per key; beginning another supersedes the first.
type Controller struct {
	logger *slog.Logger

	mu    sync.Mutex
	waits map[Key]*Wait
}

// NewController creates an empty wait controller.
func NewController(logger *slog.Logger) *Controller {
	return &Controller{
		logger: logger.With("component", "session_controller"),
		waits:  make(map[Key]*Wait),
	}
}

// Wait is a single pending wait for the next event from one caller.
type Wait struct {
	key        Key
	controller *Controller
	events     chan *platform.Event
	superseded chan struct{}
	endOnce    sync.Once
}

// Begin registers a wait for key. A wait already pending for the same key
// is superseded: its Next returns ErrSuperseded.
func (c *Controller) Begin(key Key) *Wait {
	w := &Wait{
		key:        key,
		controller: c,
		events:     make(chan *platform.Event, 1),
		superseded: make(chan struct{}),
	}

	c.mu.Lock()
	if prev, ok := c.waits[key]; ok {
		close(prev.superseded)
		c.logger.Warn("Superseding pending session", "origin", key.Origin, "sender_id", key.Sender)
	}
	c.waits[key] = w
	c.mu.Unlock()

	return w
}

// Deliver hands ev to the wait pending for its caller, if any, and reports
// whether the event was consumed. A consumed event must not reach the rest
// of the dispatch pipeline.
func (c *Controller) Deliver(ev *platform.Event) bool {
	key := KeyFor(ev)

	c.mu.Lock()
	w, ok := c.waits[key]
	if ok {
		delete(c.waits, key)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}

	// The wait was removed from the map above, so this single send on the
	// buffered channel cannot block.
	w.events <- ev
	return true
}

// Next blocks until the next matching event arrives, the timeout elapses,
// the wait is superseded, or ctx is done. On every path except delivery the
// wait is deregistered before returning, so a late event flows to the
// normal pipeline instead of being swallowed.
func (w *Wait) Next(ctx context.Context, timeout time.Duration) (*platform.Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-w.events:
		return ev, nil
	case <-timer.C:
		w.End()
		return nil, ErrTimeout
	case <-w.superseded:
		w.End()
		return nil, ErrSuperseded
	case <-ctx.Done():
		w.End()
		return nil, ctx.Err()
	}
}

// End deregisters the wait. It is idempotent and safe to call after
// delivery or supersession.
func (w *Wait) End() {
	w.endOnce.Do(func() {
		w.controller.mu.Lock()
		if current, ok := w.controller.waits[w.key]; ok && current == w {
			delete(w.controller.waits, w.key)
		}
		w.controller.mu.Unlock()
	})
}
