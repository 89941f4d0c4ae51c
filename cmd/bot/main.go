// Package main contains the entrypoint for the personabot application.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgard/personabot/internal/bot"
	"github.com/edgard/personabot/internal/bot/handlers"
	"github.com/edgard/personabot/internal/bot/tasks"
	"github.com/edgard/personabot/internal/config"
	"github.com/edgard/personabot/internal/database"
	"github.com/edgard/personabot/internal/discord"
	"github.com/edgard/personabot/internal/gemini"
	"github.com/edgard/personabot/internal/logger"
	"github.com/edgard/personabot/internal/persona"
	"github.com/edgard/personabot/internal/profilesync"
	"github.com/edgard/personabot/internal/session"
	"github.com/edgard/personabot/internal/telegram"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger, db,
// ai client, adapters, bot, scheduler), handles graceful shutdown, and
// returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db) // Ensure DB is closed on function exit
	store := database.NewStore(db, log)

	var gemClient gemini.Client
	if cfg.Gemini.APIKey != "" {
		gemClient, err = gemini.NewClient(ctx, cfg.Gemini, log)
		if err != nil {
			log.Error("Failed to initialize Gemini client", "error", err)
			return 1
		}
	} else {
		log.Warn("No Gemini API key configured, mention replies disabled")
	}

	syncer := profilesync.New(
		cfg.Persona.SyncNicknameOnSwitch,
		cfg.Persona.SyncAvatarOnSwitch,
		cfg.Persona.NicknameTemplate,
		cfg.Data.Dir,
		log,
	)
	waiter := session.NewController(log)
	gate := persona.NewGate(cfg.Persona.RequireAdminForManage, cfg.Persona.AdminIDs, store, log)
	matcher := persona.NewMatcher(persona.ParseMappingRules(cfg.Persona.KeywordMappings, cfg.Persona.MatchCaseSensitive, log))
	switcher := persona.NewSwitcher(store, syncer, persona.Scope(cfg.Persona.AutoSwitchScope), cfg.Persona.ClearContextOnSwitch, log)

	hDeps := handlers.HandlerDeps{
		Logger:       log,
		Config:       cfg,
		Store:        store,
		GeminiClient: gemClient,
		Waiter:       waiter,
		Gate:         gate,
		Matcher:      matcher,
		Switcher:     switcher,
		Syncer:       syncer,
	}
	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Syncer: syncer,
		Config: cfg,
	}

	sched := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	app := bot.NewBot(
		log,
		cfg,
		waiter,
		handlers.RegisterAllCommands(hDeps),
		handlers.NewKeywordHandler(hDeps),
		handlers.NewMentionHandler(hDeps),
		sched,
		logger.Middleware(log),
	)

	tg, err := telegram.NewAdapter(cfg.Telegram, cfg.Commands, log, app.HandleEvent)
	if err != nil {
		log.Error("Failed to create Telegram adapter", "error", err)
		return 1
	}
	app.AddRunner(tg)

	if cfg.Discord.Enabled {
		dc, err := discord.NewAdapter(cfg.Discord, log, app.HandleEvent)
		if err != nil {
			log.Error("Failed to create Discord adapter", "error", err)
			return 1
		}
		app.AddRunner(dc)
	}

	// Keyword rules are the only hot-reloaded setting; everything else is
	// read once at startup.
	config.WatchReload(log, func(newCfg *config.Config) {
		matcher.Reload(persona.ParseMappingRules(newCfg.Persona.KeywordMappings, newCfg.Persona.MatchCaseSensitive, log))
	})

	log.Info("Starting bot...")
	runErr := app.Run(ctx) // Run blocks until context is cancelled or an error occurs
	log.Info("Bot run loop finished. Initiating shutdown...")

	// Check if the error is significant (not just context cancellation)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		// Allow logs to flush before exiting on error
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	// Allow logs to flush before exiting gracefully
	time.Sleep(time.Second)
	return 0
}
