// Package handlers contains the persona command and message handlers,
// along with their registration logic and middleware.
package handlers

import (
	"context"

	"github.com/edgard/personabot/internal/persona"
	"github.com/edgard/personabot/internal/platform"
)

// RequireAdmin creates a middleware enforcing the permission gate on
// management subcommands. force marks operations that need admin rights no
// matter how the gate is configured.
func RequireAdmin(deps HandlerDeps, force bool) platform.Middleware {
	return func(next platform.HandlerFunc) platform.HandlerFunc {
		return func(ctx context.Context, ev *platform.Event) {
			if !deps.Gate.RequiresAdmin(persona.OpManage, force) {
				next(ctx, ev)
				return
			}

			if deps.Gate.IsAdmin(ctx, ev) {
				next(ctx, ev)
				return
			}

			log := deps.Logger.With("middleware", "RequireAdmin")
			log.WarnContext(ctx, "Unauthorized manage attempt",
				"sender_id", ev.SenderID, "origin", ev.OriginKey())
			replyOrLog(ctx, log, ev, deps.Config.Messages.RequireAdmin)
		}
	}
}
