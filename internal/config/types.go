// Package config loads the bot configuration from a YAML file, BOT_*
// environment variables and built-in defaults, and validates the result.
package config

import (
	"errors"
	"time"
	_ "time/tzdata" // report timezones must resolve on minimal images
)

// ErrValidation wraps every configuration validation failure.
var ErrValidation = errors.New("config validation error")

// Config is the complete application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Responder ResponderConfig `mapstructure:"responder"`
	Reports   ReportsConfig   `mapstructure:"reports"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// LoggerConfig controls log output.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the bot credentials.
type TelegramConfig struct {
	Token       string `mapstructure:"token"         validate:"required"`
	AdminUserID int64  `mapstructure:"admin_user_id" validate:"gt=0"`
}

// LLMConfig selects and tunes the language model provider.
type LLMConfig struct {
	Provider   string        `mapstructure:"provider"    validate:"required,oneof=gemini openai"`
	Timeout    time.Duration `mapstructure:"timeout"     validate:"min=1s,max=10m"`
	MaxRetries int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"min=0s,max=1m"`
	Gemini     GeminiConfig  `mapstructure:"gemini"`
	OpenAI     OpenAIConfig  `mapstructure:"openai"`
}

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"       validate:"required"`
	Temperature float32 `mapstructure:"temperature" validate:"min=0,max=2"`
}

// OpenAIConfig configures any OpenAI-compatible chat completion endpoint.
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"    validate:"omitempty,url"`
	Model       string  `mapstructure:"model"       validate:"required"`
	Temperature float32 `mapstructure:"temperature" validate:"min=0,max=2"`
	MaxTokens   int     `mapstructure:"max_tokens"  validate:"min=0"`
}

// StorageConfig sets the snapshot location and retention windows.
type StorageConfig struct {
	SnapshotPath     string        `mapstructure:"snapshot_path"     validate:"required"`
	MessageTTL       time.Duration `mapstructure:"message_ttl"       validate:"min=1m"`
	StatsTTL         time.Duration `mapstructure:"stats_ttl"         validate:"min=1m"`
	RetentionHorizon time.Duration `mapstructure:"retention_horizon" validate:"min=1h"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"  validate:"min=1m"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"    validate:"min=1s,max=1h"`
}

// ResponderConfig shapes the prompt sent for each conversational reply.
type ResponderConfig struct {
	ContextCount     int      `mapstructure:"context_count"     validate:"min=0,max=100"`
	MaxHistoryChars  int      `mapstructure:"max_history_chars" validate:"min=200,max=500"`
	BotSenderID      string   `mapstructure:"bot_sender_id"     validate:"required"`
	SystemDirectives []string `mapstructure:"system_directives"`
	FallbackReply    string   `mapstructure:"fallback_reply"    validate:"required"`
}

// ReportsConfig configures scheduled and on-demand reports.
type ReportsConfig struct {
	GroupIDs            []int64 `mapstructure:"group_ids"`
	TopUsers            int     `mapstructure:"top_users"             validate:"min=1,max=50"`
	SummaryMessageLimit int     `mapstructure:"summary_message_limit" validate:"min=1,max=1000"`
	Timezone            string  `mapstructure:"timezone"              validate:"required"`
}

// Location returns the report timezone, falling back to UTC.
func (r ReportsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SchedulerConfig lists the scheduled tasks by name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig enables a task and sets its cron schedule (seconds optional).
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"omitempty,cron"`
}

// DatabaseConfig locates the SQLite report archive.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// AdminConfig controls the operator HTTP API.
type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// MessagesConfig holds user-visible bot strings.
type MessagesConfig struct {
	Welcome       string `mapstructure:"welcome"        validate:"required"`
	Help          string `mapstructure:"help"           validate:"required"`
	NotAuthorized string `mapstructure:"not_authorized" validate:"required"`
	GeneralError  string `mapstructure:"general_error"  validate:"required"`
	ReportFailed  string `mapstructure:"report_failed"  validate:"required"`
	InvalidDate   string `mapstructure:"invalid_date"   validate:"required"`
	GroupOnly     string `mapstructure:"group_only"     validate:"required"`
	CleanupDone   string `mapstructure:"cleanup_done"   validate:"required"`
}
