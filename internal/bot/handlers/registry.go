package handlers

import (
	"github.com/edgard/personabot/internal/platform"
)

// RegisteredHandler represents a persona subcommand with its description
// and middleware chain.
type RegisteredHandler struct {
	Description string
	Handler     platform.HandlerFunc
	Middleware  []platform.Middleware
}

// RegisterAllCommands initializes and returns the map of persona
// subcommands keyed by their name. Management subcommands go through the
// permission gate; delete always requires admin rights.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)

	handlers["help"] = RegisteredHandler{
		Description: "Show persona commands",
		Handler:     NewHelpHandler(deps),
	}
	handlers["list"] = RegisteredHandler{
		Description: "List available personas",
		Handler:     NewListHandler(deps),
	}
	handlers["view"] = RegisteredHandler{
		Description: "Show one persona's content",
		Handler:     NewViewHandler(deps),
	}

	manageMiddleware := []platform.Middleware{RequireAdmin(deps, false)}
	forceAdminMiddleware := []platform.Middleware{RequireAdmin(deps, true)}

	handlers["create"] = RegisteredHandler{
		Description: "Create a persona interactively",
		Handler:     NewCreateHandler(deps),
		Middleware:  manageMiddleware,
	}
	handlers["update"] = RegisteredHandler{
		Description: "Replace a persona's content interactively",
		Handler:     NewUpdateHandler(deps),
		Middleware:  manageMiddleware,
	}
	handlers["delete"] = RegisteredHandler{
		Description: "Delete a persona",
		Handler:     NewDeleteHandler(deps),
		Middleware:  forceAdminMiddleware,
	}
	handlers["avatar"] = RegisteredHandler{
		Description: "Save an attached image as a persona's avatar",
		Handler:     NewAvatarHandler(deps),
		Middleware:  manageMiddleware,
	}
	handlers["sync"] = RegisteredHandler{
		Description: "Push nickname and avatar to the platform",
		Handler:     NewSyncHandler(deps),
		Middleware:  manageMiddleware,
	}

	return handlers
}
