// Package config handles loading, validation, and hot reload of the
// application configuration from file and environment variables.
package config

// Config holds all application configuration loaded from the config file
// and environment overrides.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"log"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Discord   DiscordConfig   `mapstructure:"discord"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Data      DataConfig      `mapstructure:"data"`
	Persona   PersonaConfig   `mapstructure:"persona"`
	Commands  []CommandConfig `mapstructure:"commands"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// LoggerConfig controls log output.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds Telegram transport settings.
type TelegramConfig struct {
	Token        string  `mapstructure:"token"          validate:"required"`
	AdminUserIDs []int64 `mapstructure:"admin_user_ids"`
}

// DiscordConfig holds Discord transport settings. The adapter only starts
// when Enabled is set.
type DiscordConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Token        string   `mapstructure:"token"          validate:"required_if=Enabled true"`
	AdminUserIDs []string `mapstructure:"admin_user_ids"`
}

// GeminiConfig holds settings for the Gemini AI client. An empty APIKey
// disables mention replies without affecting the rest of the bot.
type GeminiConfig struct {
	APIKey             string  `mapstructure:"api_key"`
	ModelName          string  `mapstructure:"model_name"          validate:"required"`
	Temperature        float32 `mapstructure:"temperature"         validate:"min=0,max=2"`
	MaxRetries         int     `mapstructure:"max_retries"         validate:"min=0,max=10"`
	RetryDelaySeconds  int     `mapstructure:"retry_delay_seconds" validate:"min=1,max=60"`
	DefaultInstruction string  `mapstructure:"default_instruction"`
	HistoryLimit       int     `mapstructure:"history_limit"       validate:"min=1,max=200"`
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// DataConfig locates the writable data directory for derived assets such
// as persona avatars.
type DataConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

// PersonaConfig controls the persona rule engine, switch behavior, and
// profile sync.
type PersonaConfig struct {
	// KeywordMappings is read outside Unmarshal so non-string values can be
	// coerced with a warning instead of failing the load.
	KeywordMappings          string   `mapstructure:"-"`
	MatchCaseSensitive       bool     `mapstructure:"match_case_sensitive"`
	AutoSwitchScope          string   `mapstructure:"auto_switch_scope" validate:"oneof=conversation session global"`
	EnableKeywordSwitching   bool     `mapstructure:"enable_keyword_switching"`
	EnableAutoSwitchAnnounce bool     `mapstructure:"enable_auto_switch_announce"`
	RequireAdminForManage    bool     `mapstructure:"require_admin_for_manage"`
	ClearContextOnSwitch     bool     `mapstructure:"clear_context_on_switch"`
	ManageWaitTimeoutSeconds int      `mapstructure:"manage_wait_timeout_seconds"`
	SyncNicknameOnSwitch     bool     `mapstructure:"sync_nickname_on_switch"`
	SyncAvatarOnSwitch       bool     `mapstructure:"sync_avatar_on_switch"`
	NicknameTemplate         string   `mapstructure:"nickname_template"`
	AdminIDs                 []string `mapstructure:"admin_ids"`
}

// CommandConfig describes one bot command for platform command menus.
type CommandConfig struct {
	Command     string `mapstructure:"command"     validate:"required"`
	Description string `mapstructure:"description" validate:"required"`
}

// SchedulerConfig holds settings for scheduled background tasks.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig holds settings for an individual scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// MessagesConfig holds user-facing bot reply texts. Fields with the Fmt
// suffix are fmt format strings; AutoSwitchAnnounce takes the {persona_id}
// placeholder instead.
type MessagesConfig struct {
	Help               string `mapstructure:"help"`
	GeneralError       string `mapstructure:"general_error"`
	RequireAdmin       string `mapstructure:"require_admin"`
	PersonaNotFoundFmt string `mapstructure:"persona_not_found"`
	PersonaExistsFmt   string `mapstructure:"persona_exists"`
	InvalidPersonaID   string `mapstructure:"invalid_persona_id"`
	PersonaListHeader  string `mapstructure:"persona_list_header"`
	PersonaListEmpty   string `mapstructure:"persona_list_empty"`
	SendContentFmt     string `mapstructure:"send_content"`
	ManageTimeout      string `mapstructure:"manage_timeout"`
	ManageCancelled    string `mapstructure:"manage_cancelled"`
	ManageFailedFmt    string `mapstructure:"manage_failed"`
	PersonaCreatedFmt  string `mapstructure:"persona_created"`
	PersonaUpdatedFmt  string `mapstructure:"persona_updated"`
	PersonaDeletedFmt  string `mapstructure:"persona_deleted"`
	AvatarSavedFmt     string `mapstructure:"avatar_saved"`
	AvatarUsage        string `mapstructure:"avatar_usage"`
	SyncTriggeredFmt   string `mapstructure:"sync_triggered"`
	AutoSwitchAnnounce string `mapstructure:"auto_switch_announce"`
	MentionEmptyPrompt string `mapstructure:"mention_empty_prompt"`
}
