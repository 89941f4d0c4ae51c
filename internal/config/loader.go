package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// LoadConfig loads and validates configuration from, in order of
// precedence: PERSONABOT_* environment variables, the config file at path,
// and built-in defaults. A missing config file is not an error.
func LoadConfig(path string) (*Config, error) {
	setDefaults()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("PERSONABOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	return buildConfig()
}

// WatchReload re-reads the config file whenever it changes and hands the
// fresh config to onChange. A config that fails to parse or validate is
// logged and discarded, keeping the previous one in effect.
func WatchReload(logger *slog.Logger, onChange func(*Config)) {
	viper.OnConfigChange(func(event fsnotify.Event) {
		cfg, err := buildConfig()
		if err != nil {
			logger.Warn("Ignoring config change that failed to load", "file", event.Name, "error", err)

			return
		}

		logger.Info("Config file changed, applying reload", "file", event.Name)
		onChange(cfg)
	})
	viper.WatchConfig()
}

// buildConfig unmarshals the current viper state into a validated Config.
func buildConfig() (*Config, error) {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Persona.KeywordMappings = readKeywordMappings()

	coerceValues(cfg)

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// readKeywordMappings fetches persona.keyword_mappings, coercing
// unexpected value types to their string form with a warning.
func readKeywordMappings() string {
	raw := viper.Get("persona.keyword_mappings")
	if raw == nil {
		return ""
	}

	if s, ok := raw.(string); ok {
		return s
	}

	slog.Warn("persona.keyword_mappings is not a string, coercing", "type", fmt.Sprintf("%T", raw))

	return fmt.Sprintf("%v", raw)
}

// coerceValues repairs out-of-range values that have a safe fallback.
func coerceValues(cfg *Config) {
	if cfg.Persona.ManageWaitTimeoutSeconds <= 0 {
		slog.Warn("persona.manage_wait_timeout_seconds must be positive, using default",
			"configured", cfg.Persona.ManageWaitTimeoutSeconds,
			"default", DefaultManageWaitSeconds)
		cfg.Persona.ManageWaitTimeoutSeconds = DefaultManageWaitSeconds
	}
}

// setDefaults registers default values for all optional configuration keys.
// Credential keys default to empty strings: viper only exposes
// automatic-env values for keys it already knows, so every key that may
// arrive solely through the environment must be registered here.
func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", DefaultLogLevel)
	viper.SetDefault("log.json", DefaultLogJSON)

	// Transport and provider credentials
	viper.SetDefault("telegram.token", "")
	viper.SetDefault("telegram.admin_user_ids", []int64{})
	viper.SetDefault("discord.enabled", false)
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.admin_user_ids", []string{})
	viper.SetDefault("gemini.api_key", "")
	viper.SetDefault("persona.admin_ids", []string{})
	viper.SetDefault("persona.keyword_mappings", "")

	// Database and data defaults
	viper.SetDefault("database.path", DefaultDatabasePath)
	viper.SetDefault("data.dir", DefaultDataDir)

	// Gemini defaults
	viper.SetDefault("gemini.model_name", DefaultGeminiModel)
	viper.SetDefault("gemini.temperature", DefaultGeminiTemperature)
	viper.SetDefault("gemini.max_retries", DefaultGeminiMaxRetries)
	viper.SetDefault("gemini.retry_delay_seconds", DefaultGeminiRetryDelay)
	viper.SetDefault("gemini.history_limit", DefaultGeminiHistory)
	viper.SetDefault("gemini.default_instruction", DefaultGeminiInstruction)

	// Persona defaults
	viper.SetDefault("persona.match_case_sensitive", false)
	viper.SetDefault("persona.auto_switch_scope", DefaultAutoSwitchScope)
	viper.SetDefault("persona.enable_keyword_switching", true)
	viper.SetDefault("persona.enable_auto_switch_announce", false)
	viper.SetDefault("persona.require_admin_for_manage", false)
	viper.SetDefault("persona.clear_context_on_switch", false)
	viper.SetDefault("persona.manage_wait_timeout_seconds", DefaultManageWaitSeconds)
	viper.SetDefault("persona.sync_nickname_on_switch", true)
	viper.SetDefault("persona.sync_avatar_on_switch", false)
	viper.SetDefault("persona.nickname_template", DefaultNicknameTemplate)

	// Scheduler defaults
	viper.SetDefault("scheduler.tasks.sql_maintenance.enabled", true)
	viper.SetDefault("scheduler.tasks.sql_maintenance.schedule", DefaultMaintenanceSchedule)
	viper.SetDefault("scheduler.tasks.avatar_sweep.enabled", true)
	viper.SetDefault("scheduler.tasks.avatar_sweep.schedule", DefaultAvatarSweepSchedule)

	// Command menu defaults
	viper.SetDefault("commands", DefaultCommands)

	// Message defaults
	viper.SetDefault("messages.help", DefaultMessages.Help)
	viper.SetDefault("messages.general_error", DefaultMessages.GeneralError)
	viper.SetDefault("messages.require_admin", DefaultMessages.RequireAdmin)
	viper.SetDefault("messages.persona_not_found", DefaultMessages.PersonaNotFoundFmt)
	viper.SetDefault("messages.persona_exists", DefaultMessages.PersonaExistsFmt)
	viper.SetDefault("messages.invalid_persona_id", DefaultMessages.InvalidPersonaID)
	viper.SetDefault("messages.persona_list_header", DefaultMessages.PersonaListHeader)
	viper.SetDefault("messages.persona_list_empty", DefaultMessages.PersonaListEmpty)
	viper.SetDefault("messages.send_content", DefaultMessages.SendContentFmt)
	viper.SetDefault("messages.manage_timeout", DefaultMessages.ManageTimeout)
	viper.SetDefault("messages.manage_cancelled", DefaultMessages.ManageCancelled)
	viper.SetDefault("messages.manage_failed", DefaultMessages.ManageFailedFmt)
	viper.SetDefault("messages.persona_created", DefaultMessages.PersonaCreatedFmt)
	viper.SetDefault("messages.persona_updated", DefaultMessages.PersonaUpdatedFmt)
	viper.SetDefault("messages.persona_deleted", DefaultMessages.PersonaDeletedFmt)
	viper.SetDefault("messages.avatar_saved", DefaultMessages.AvatarSavedFmt)
	viper.SetDefault("messages.avatar_usage", DefaultMessages.AvatarUsage)
	viper.SetDefault("messages.sync_triggered", DefaultMessages.SyncTriggeredFmt)
	viper.SetDefault("messages.auto_switch_announce", DefaultMessages.AutoSwitchAnnounce)
	viper.SetDefault("messages.mention_empty_prompt", DefaultMessages.MentionEmptyPrompt)
}
