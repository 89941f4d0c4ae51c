package bot_test

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/edgard/personabot/internal/bot"
	"github.com/edgard/personabot/internal/bot/handlers"
	"github.com/edgard/personabot/internal/bot/tasks"
	"github.com/edgard/personabot/internal/config"
	"github.com/edgard/personabot/internal/platform"
	"github.com/edgard/personabot/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// callRecorder tracks which handlers and middleware ran, in order.
type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *callRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.calls...)
}

func (r *callRecorder) handler(name string) platform.HandlerFunc {
	return func(_ context.Context, _ *platform.Event) {
		r.record(name)
	}
}

func (r *callRecorder) middleware(name string) platform.Middleware {
	return func(next platform.HandlerFunc) platform.HandlerFunc {
		return func(ctx context.Context, ev *platform.Event) {
			r.record(name)
			next(ctx, ev)
		}
	}
}

func testRegistry(rec *callRecorder) map[string]handlers.RegisteredHandler {
	return map[string]handlers.RegisteredHandler{
		"help": {Handler: rec.handler("help")},
		"list": {Handler: rec.handler("list")},
		"create": {
			Handler:    rec.handler("create"),
			Middleware: []platform.Middleware{rec.middleware("admin")},
		},
	}
}

func newTestBot(rec *callRecorder, mw ...platform.Middleware) (*bot.Bot, *session.Controller) {
	logger := discardLogger()
	waiter := session.NewController(logger)
	cfg := &config.Config{Commands: config.DefaultCommands}
	b := bot.NewBot(logger, cfg, waiter, testRegistry(rec), rec.handler("keyword"), rec.handler("mention"), nil, mw...)

	return b, waiter
}

func eventWithText(text string) *platform.Event {
	return &platform.Event{
		Platform:  "test",
		SelfID:    "bot1",
		ChatID:    "chat1",
		MessageID: "1",
		SenderID:  "user1",
		Text:      text,
	}
}

func TestRouteDispatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"subcommand routes to its handler", "/persona list", []string{"list"}},
		{"alias command routes the same", "/ps list", []string{"list"}},
		{"bare command shows help", "/persona", []string{"help"}},
		{"start shows help", "/start", []string{"help"}},
		{"help shows help", "/help", []string{"help"}},
		{"unknown subcommand falls back to help", "/persona bogus", []string{"help"}},
		{"botname suffix is ignored", "/persona@PersonaBot list", []string{"list"}},
		{"command casing is ignored", "/PERSONA LIST", []string{"list"}},
		{"plain text reaches keyword and mention", "hello there", []string{"keyword", "mention"}},
		{"unknown command reaches keyword and mention", "/frobnicate now", []string{"keyword", "mention"}},
		{"empty text reaches keyword and mention", "", []string{"keyword", "mention"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec := &callRecorder{}
			b, _ := newTestBot(rec)
			b.HandleEvent(context.Background(), eventWithText(tc.text))

			if got := rec.snapshot(); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("HandleEvent(%q) calls = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestGlobalMiddlewareWrapsCommandMiddleware(t *testing.T) {
	t.Parallel()

	rec := &callRecorder{}
	b, _ := newTestBot(rec, rec.middleware("global"))
	b.HandleEvent(context.Background(), eventWithText("/persona create pirate"))

	want := []string{"global", "admin", "create"}
	if got := rec.snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestPendingWaitConsumesEvent(t *testing.T) {
	t.Parallel()

	rec := &callRecorder{}
	b, waiter := newTestBot(rec)

	ev := eventWithText("the persona content")
	wait := waiter.Begin(session.KeyFor(ev))
	defer wait.End()

	b.HandleEvent(context.Background(), ev)

	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("handler calls = %v, want none while a wait is pending", got)
	}

	got, err := wait.Next(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Next() error = %v, want nil", err)
	}
	if got != ev {
		t.Errorf("Next() = %+v, want the dispatched event", got)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	t.Parallel()

	cfg := &config.SchedulerConfig{Tasks: map[string]config.TaskConfig{
		"sql_maintenance": {Enabled: true, Schedule: "0 4 * * *"},
		"avatar_sweep":    {Enabled: false, Schedule: "30 4 * * *"},
	}}
	taskMap := map[string]tasks.ScheduledTaskFunc{
		"sql_maintenance": func(_ context.Context) error { return nil },
	}

	s := bot.NewScheduler(discardLogger(), cfg, taskMap)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start() error = nil, want an already-running error")
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() error = %v, want nil", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() when already stopped error = %v, want nil", err)
	}
}
