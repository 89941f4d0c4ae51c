// Package logger provides structured logging functionality for PersonaBot.
// It uses Go's slog package for logging with configurable levels and formats.
package logger

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/edgard/personabot/internal/platform"
)

// NewLogger creates a new slog Logger with the specified level and format.
// If jsonOutput is true, logs will be formatted as JSON, otherwise as text.
func NewLogger(levelStr string, jsonOutput bool) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// Middleware creates a logging middleware for the event dispatcher. It logs
// information about incoming events and how long their handling took.
func Middleware(log *slog.Logger) platform.Middleware {
	return func(next platform.HandlerFunc) platform.HandlerFunc {
		return func(ctx context.Context, ev *platform.Event) {
			startTime := time.Now()

			logEntry := log.With(
				"platform", ev.Platform,
				"chat_id", ev.ChatID,
				"message_id", ev.MessageID,
				"sender_id", ev.SenderID,
				"direct", ev.IsDirect,
				"parts", len(ev.Parts),
				"text_preview", truncateString(ev.Text, 50),
			)

			logEntry.InfoContext(ctx, "Processing event")

			next(ctx, ev)

			duration := time.Since(startTime)
			logEntry.InfoContext(ctx, "Finished processing event", "duration", duration)
		}
	}
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
