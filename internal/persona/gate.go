package persona

import (
	"context"
	"log/slog"
	"slices"

	"github.com/edgard/personabot/internal/database"
	"github.com/edgard/personabot/internal/platform"
)

// Operation classifies a command for permission checks.
type Operation int

const (
	// OpRead covers list, view, and other non-mutating commands.
	OpRead Operation = iota
	// OpManage covers create, update, delete, and profile mutations.
	OpManage
)

// settingsReader is the slice of the store the gate needs.
type settingsReader interface {
	GetScopedSettings(ctx context.Context, scopeKey string) (*database.ScopedSettings, error)
}

// Gate decides whether a caller may perform an operation.
type Gate struct {
	requireAdminForManage bool
	globalAdminIDs        []string
	settings              settingsReader
	logger                *slog.Logger
}

// NewGate creates a permission gate backed by the scoped settings store.
func NewGate(requireAdminForManage bool, globalAdminIDs []string, settings settingsReader, logger *slog.Logger) *Gate {
	return &Gate{
		requireAdminForManage: requireAdminForManage,
		globalAdminIDs:        globalAdminIDs,
		settings:              settings,
		logger:                logger.With("component", "permission_gate"),
	}
}

// RequiresAdmin reports whether the operation needs admin rights. force
// marks operations that always do, regardless of configuration. Read
// operations never require admin.
func (g *Gate) RequiresAdmin(op Operation, force bool) bool {
	if force {
		return true
	}
	return op == OpManage && g.requireAdminForManage
}

// IsAdmin reports whether the event's sender has admin rights: flagged by
// the transport, listed in the global admin list, or listed in the
// origin's scoped admins. An origin with no scoped settings contributes an
// empty list.
func (g *Gate) IsAdmin(ctx context.Context, ev *platform.Event) bool {
	if ev.IsAdmin {
		return true
	}
	if slices.Contains(g.globalAdminIDs, ev.SenderID) {
		return true
	}

	settings, err := g.settings.GetScopedSettings(ctx, ev.OriginKey())
	if err != nil {
		g.logger.WarnContext(ctx, "Failed to load scoped settings for admin check",
			"origin", ev.OriginKey(), "sender_id", ev.SenderID, "error", err)
		return false
	}

	return slices.Contains(settings.Admins, ev.SenderID)
}
