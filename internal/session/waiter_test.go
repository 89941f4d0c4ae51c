package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/edgard/personabot/internal/platform"
	"github.com/edgard/personabot/internal/session"
)

func newController() *session.Controller {
	return session.NewController(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func eventFrom(chatID, senderID string) *platform.Event {
	return &platform.Event{Platform: "test", ChatID: chatID, SenderID: senderID}
}

func TestDeliverToPendingWait(t *testing.T) {
	t.Parallel()

	c := newController()
	ev := eventFrom("chat1", "user1")
	wait := c.Begin(session.KeyFor(ev))

	if !c.Deliver(ev) {
		t.Fatal("Deliver() = false, want the pending wait to consume the event")
	}

	got, err := wait.Next(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Next() error = %v, want nil", err)
	}
	if got != ev {
		t.Errorf("Next() = %p, want the delivered event %p", got, ev)
	}

	// Consumed means consumed; the same sender's next message flows on.
	if c.Deliver(eventFrom("chat1", "user1")) {
		t.Error("Deliver() = true after the wait was satisfied")
	}
}

func TestDeliverWithoutWait(t *testing.T) {
	t.Parallel()

	c := newController()
	if c.Deliver(eventFrom("chat1", "user1")) {
		t.Error("Deliver() = true with no wait pending")
	}
}

func TestDeliverMatchesSender(t *testing.T) {
	t.Parallel()

	c := newController()
	wait := c.Begin(session.KeyFor(eventFrom("chat1", "user1")))

	if c.Deliver(eventFrom("chat1", "user2")) {
		t.Error("Deliver() consumed another sender's event")
	}
	if c.Deliver(eventFrom("chat2", "user1")) {
		t.Error("Deliver() consumed an event from another chat")
	}
	if !c.Deliver(eventFrom("chat1", "user1")) {
		t.Error("Deliver() = false for the matching sender")
	}

	if _, err := wait.Next(context.Background(), time.Second); err != nil {
		t.Errorf("Next() error = %v, want nil", err)
	}
}

func TestNextTimeout(t *testing.T) {
	t.Parallel()

	c := newController()
	ev := eventFrom("chat1", "user1")
	wait := c.Begin(session.KeyFor(ev))

	if _, err := wait.Next(context.Background(), 20*time.Millisecond); !errors.Is(err, session.ErrTimeout) {
		t.Fatalf("Next() error = %v, want %v", err, session.ErrTimeout)
	}

	// A timed-out wait is deregistered; late events go to the pipeline.
	if c.Deliver(ev) {
		t.Error("Deliver() = true after the wait timed out")
	}
}

func TestBeginSupersedesPendingWait(t *testing.T) {
	t.Parallel()

	c := newController()
	ev := eventFrom("chat1", "user1")
	key := session.KeyFor(ev)

	first := c.Begin(key)
	second := c.Begin(key)

	if _, err := first.Next(context.Background(), time.Second); !errors.Is(err, session.ErrSuperseded) {
		t.Fatalf("first Next() error = %v, want %v", err, session.ErrSuperseded)
	}

	if !c.Deliver(ev) {
		t.Fatal("Deliver() = false, want the newer wait to consume the event")
	}
	got, err := second.Next(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("second Next() error = %v, want nil", err)
	}
	if got != ev {
		t.Errorf("second Next() = %p, want the delivered event %p", got, ev)
	}
}

func TestNextContextCancelled(t *testing.T) {
	t.Parallel()

	c := newController()
	ev := eventFrom("chat1", "user1")
	wait := c.Begin(session.KeyFor(ev))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := wait.Next(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("Next() error = %v, want %v", err, context.Canceled)
	}
	if c.Deliver(ev) {
		t.Error("Deliver() = true after the wait was cancelled")
	}
}

func TestEndKeepsNewerWait(t *testing.T) {
	t.Parallel()

	c := newController()
	ev := eventFrom("chat1", "user1")
	key := session.KeyFor(ev)

	first := c.Begin(key)
	second := c.Begin(key)

	// Ending the superseded wait must not tear down its replacement.
	first.End()
	first.End()

	if !c.Deliver(ev) {
		t.Fatal("Deliver() = false, the newer wait should still be pending")
	}
	if _, err := second.Next(context.Background(), time.Second); err != nil {
		t.Errorf("second Next() error = %v, want nil", err)
	}
}

func TestIndependentKeysWaitConcurrently(t *testing.T) {
	t.Parallel()

	c := newController()
	evA := eventFrom("chat1", "user1")
	evB := eventFrom("chat1", "user2")

	waitA := c.Begin(session.KeyFor(evA))
	waitB := c.Begin(session.KeyFor(evB))

	if !c.Deliver(evB) {
		t.Fatal("Deliver(evB) = false, want user2's wait to consume it")
	}
	if !c.Deliver(evA) {
		t.Fatal("Deliver(evA) = false, want user1's wait to consume it")
	}

	gotA, err := waitA.Next(context.Background(), time.Second)
	if err != nil || gotA != evA {
		t.Errorf("waitA.Next() = (%p, %v), want (%p, nil)", gotA, err, evA)
	}
	gotB, err := waitB.Next(context.Background(), time.Second)
	if err != nil || gotB != evB {
		t.Errorf("waitB.Next() = (%p, %v), want (%p, nil)", gotB, err, evB)
	}
}
