package config

// Default values for configuration.
const (
	// Log defaults
	DefaultLogLevel = "info"
	DefaultLogJSON  = true

	// Database and data defaults
	DefaultDatabasePath = "storage.db"
	DefaultDataDir      = "data"

	// Gemini defaults
	DefaultGeminiModel       = "gemini-2.0-flash"
	DefaultGeminiTemperature = 1.0
	DefaultGeminiMaxRetries  = 3
	DefaultGeminiRetryDelay  = 5 // seconds
	DefaultGeminiHistory     = 20
	DefaultGeminiInstruction = "You are a helpful assistant in a group chat. Keep replies short and conversational."

	// Persona defaults
	DefaultAutoSwitchScope   = "conversation"
	DefaultManageWaitSeconds = 120
	DefaultNicknameTemplate  = "{persona_id}"

	// Scheduler defaults
	DefaultMaintenanceSchedule = "0 4 * * *"
	DefaultAvatarSweepSchedule = "30 4 * * *"
)

// DefaultMessages holds the stock user-facing reply texts.
var DefaultMessages = MessagesConfig{
	Help: "Persona commands:\n" +
		"/persona list - show available personas\n" +
		"/persona view <id> - show one persona\n" +
		"/persona create <id> - create a persona, then send its content\n" +
		"/persona update <id> - replace a persona's content\n" +
		"/persona delete <id> - delete a persona\n" +
		"/persona avatar <id> - save an attached image as the persona's avatar\n" +
		"/persona sync [id] - push nickname and avatar to the platform\n" +
		"/ps works as a short alias.",
	GeneralError:       "An error occurred. Please try again later.",
	RequireAdmin:       "Only admins can manage personas.",
	PersonaNotFoundFmt: "Persona %q does not exist.",
	PersonaExistsFmt:   "Persona %q already exists. Use /persona update to change it.",
	InvalidPersonaID:   "Persona ids may only contain letters, digits, '-' and '_'.",
	PersonaListHeader:  "Available personas:",
	PersonaListEmpty:   "No personas defined yet. Create one with /persona create <id>.",
	SendContentFmt:     "Now send the content for persona %q within %d seconds: plain text, or JSON with system_prompt and optional begin_dialogs, or a .txt/.md/.json file.",
	ManageTimeout:      "Timed out waiting for persona content. Nothing was changed.",
	ManageCancelled:    "This persona session was replaced by a newer one. Nothing was changed.",
	ManageFailedFmt:    "Could not save persona: %s",
	PersonaCreatedFmt:  "Persona %q created.",
	PersonaUpdatedFmt:  "Persona %q updated.",
	PersonaDeletedFmt:  "Persona %q deleted.",
	AvatarSavedFmt:     "Avatar saved for persona %q.",
	AvatarUsage:        "Attach an image (or reply to one) when calling avatar.",
	SyncTriggeredFmt:   "Profile sync triggered for persona %q.",
	AutoSwitchAnnounce: "Switched to persona {persona_id}.",
	MentionEmptyPrompt: "Please include a message for me to respond to.",
}

// DefaultCommands holds the stock command menu registered on platforms
// that support one.
var DefaultCommands = []CommandConfig{
	{Command: "persona", Description: "Manage and switch chat personas"},
	{Command: "ps", Description: "Short alias for /persona"},
}
