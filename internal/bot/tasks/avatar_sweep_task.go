package tasks

import (
	"context"
	"fmt"
	"time"
)

// newAvatarSweepTask creates the scheduled task function that removes
// avatar assets whose persona no longer exists in the store.
func newAvatarSweepTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "avatar_sweep")

	return func(ctx context.Context) error {
		startTime := time.Now()

		assets, err := deps.Syncer.Assets()
		if err != nil {
			return fmt.Errorf("listing avatar assets: %w", err)
		}
		if len(assets) == 0 {
			log.DebugContext(ctx, "No avatar assets to sweep")
			return nil
		}

		personas, err := deps.Store.ListPersonas(ctx)
		if err != nil {
			return fmt.Errorf("listing personas: %w", err)
		}
		known := make(map[string]struct{}, len(personas))
		for _, p := range personas {
			known[p.ID] = struct{}{}
		}

		removed := 0
		for _, id := range assets {
			if _, ok := known[id]; ok {
				continue
			}
			if err := deps.Syncer.DeleteAvatar(ctx, id); err != nil {
				log.WarnContext(ctx, "Failed to remove orphaned avatar", "persona_id", id, "error", err)
				continue
			}
			removed++
		}

		log.InfoContext(ctx, "Avatar sweep completed", "assets", len(assets), "removed", removed, "duration", time.Since(startTime))
		return nil
	}
}
