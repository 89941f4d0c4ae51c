// Package bot implements the core bot application, event dispatch,
// and component lifecycle for personabot.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/personabot/internal/bot/handlers"
	"github.com/edgard/personabot/internal/config"
	"github.com/edgard/personabot/internal/platform"
	"github.com/edgard/personabot/internal/session"
)

// Runner is a long-lived component supervised by Bot.Run, typically a
// platform adapter's receive loop. Run blocks until the context is
// cancelled or the component fails.
type Runner interface {
	Name() string
	Run(ctx context.Context) error
}

// Bot routes inbound events through the pending-wait check, the command
// registry, keyword switching, and mention replies, and supervises the
// platform runners and the scheduler.
type Bot struct {
	logger    *slog.Logger
	cfg       *config.Config
	waiter    *session.Controller
	registry  map[string]handlers.RegisteredHandler
	commands  map[string]struct{}
	keyword   platform.HandlerFunc
	mention   platform.HandlerFunc
	dispatch  platform.HandlerFunc
	runners   []Runner
	scheduler *Scheduler
}

// NewBot creates the bot application with its dispatch pipeline. The
// optional middleware wraps every dispatched event, outermost first.
func NewBot(
	logger *slog.Logger,
	cfg *config.Config,
	waiter *session.Controller,
	registry map[string]handlers.RegisteredHandler,
	keywordHandler platform.HandlerFunc,
	mentionHandler platform.HandlerFunc,
	scheduler *Scheduler,
	middleware ...platform.Middleware,
) *Bot {
	commands := make(map[string]struct{}, len(cfg.Commands))
	for _, c := range cfg.Commands {
		commands["/"+strings.ToLower(c.Command)] = struct{}{}
	}

	b := &Bot{
		logger:    logger.With("component", "bot_orchestrator"),
		cfg:       cfg,
		waiter:    waiter,
		registry:  registry,
		commands:  commands,
		keyword:   keywordHandler,
		mention:   mentionHandler,
		scheduler: scheduler,
	}
	b.dispatch = applyMiddleware(b.route, middleware)

	return b
}

// AddRunner registers a long-lived component to be supervised by Run.
// All runners must be added before Run is called.
func (b *Bot) AddRunner(r Runner) {
	b.runners = append(b.runners, r)
}

// HandleEvent is the entry point platform adapters dispatch inbound
// events to.
func (b *Bot) HandleEvent(ctx context.Context, ev *platform.Event) {
	b.dispatch(ctx, ev)
}

// route implements the dispatch order: a pending management wait consumes
// the event first, then command routing, then the passive keyword matcher,
// then mention replies. The keyword matcher does not consume the event, so
// a matching message can both switch the persona and receive an AI reply.
func (b *Bot) route(ctx context.Context, ev *platform.Event) {
	if b.waiter.Deliver(ev) {
		b.logger.DebugContext(ctx, "Event consumed by pending wait", "origin", ev.OriginKey(), "sender_id", ev.SenderID)
		return
	}

	if sub, ok := b.commandSub(ev.Text); ok {
		reg, found := b.registry[sub]
		if !found {
			reg = b.registry["help"]
		}
		if reg.Handler == nil {
			b.logger.WarnContext(ctx, "No handler registered for command", "subcommand", sub)
			return
		}
		applyMiddleware(reg.Handler, reg.Middleware)(ctx, ev)

		return
	}

	if b.keyword != nil {
		b.keyword(ctx, ev)
	}
	if b.mention != nil {
		b.mention(ctx, ev)
	}
}

// commandSub extracts the subcommand from a command message. A bare
// command defaults to "help", as do /start and /help; a trailing
// @botname suffix on the command word is ignored.
func (b *Bot) commandSub(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}

	cmd := fields[0]
	if !strings.HasPrefix(cmd, "/") {
		return "", false
	}
	cmd, _, _ = strings.Cut(cmd, "@")
	cmd = strings.ToLower(cmd)

	if cmd == "/start" || cmd == "/help" {
		return "help", true
	}
	if _, ok := b.commands[cmd]; !ok {
		return "", false
	}
	if len(fields) < 2 {
		return "help", true
	}

	return strings.ToLower(fields[1]), true
}

// applyMiddleware wraps a handler function with a slice of middleware.
// Middleware are applied in reverse order so the first one in the slice
// is the outermost.
func applyMiddleware(handler platform.HandlerFunc, mw []platform.Middleware) platform.HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler
}

// Run starts all registered runners and the scheduler, handling graceful
// shutdown on context cancellation. It returns an error if any component
// fails during startup or execution.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	for _, r := range b.runners {
		g.Go(func() error {
			b.logger.Info("Starting platform runner...", "runner", r.Name())

			if err := r.Run(gCtx); err != nil {
				b.logger.Error("Platform runner stopped with error", "runner", r.Name(), "error", err)
				return fmt.Errorf("%s runner: %w", r.Name(), err)
			}
			b.logger.Info("Platform runner stopped.", "runner", r.Name())

			if gCtx.Err() == nil {
				b.logger.Warn("Platform runner stopped unexpectedly without context cancellation.", "runner", r.Name())

				return fmt.Errorf("%s runner stopped unexpectedly", r.Name())
			}
			return nil
		})
	}

	g.Go(func() error {
		b.logger.Info("Starting scheduler...")
		if err := b.scheduler.Start(); err != nil {
			b.logger.Error("Failed to start scheduler", "error", err)
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}

		return nil
	})

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}
