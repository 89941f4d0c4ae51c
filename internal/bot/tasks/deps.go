// Package tasks implements the scheduled maintenance tasks for personabot.
// It includes task definitions, dependencies, and registration mechanisms.
package tasks

import (
	"log/slog"

	"github.com/edgard/personabot/internal/config"
	"github.com/edgard/personabot/internal/database"
	"github.com/edgard/personabot/internal/profilesync"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
	Syncer *profilesync.Syncer
	Config *config.Config
}
