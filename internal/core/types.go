package core

import "time"

// Config represents the complete discordbackend configuration structure
type Config struct {
	BotIdentity      BotIdentityConfig  `yaml:"bot_identity"`
	BotPrefix        string             `yaml:"bot_prefix"`
	ChatroomPresence []string           `yaml:"chatroom_presence"` // Room addresses joined on connect, e.g. "#general"
	Discord          DiscordConfig      `yaml:"discord"`
	Security         SecurityConfig     `yaml:"security"`
	StatusServer     StatusServerConfig `yaml:"status_server"`
	Logging          LoggingConfig      `yaml:"logging"`
}

// BotIdentityConfig holds the credentials the backend logs in with
type BotIdentityConfig struct {
	Token string `yaml:"token"`
}

// DiscordConfig represents Discord backend tuning
type DiscordConfig struct {
	RoomOperationTimeout string `yaml:"room_operation_timeout"` // Bounded wait for room create/destroy/invite (default: 10s)
	ShutdownTimeout      string `yaml:"shutdown_timeout"`       // Logout and task cancellation budget (default: 15s)
	PrivilegedIntents    bool   `yaml:"privileged_intents"`     // Request members, presences and message content intents
	TaskQueueSize        int    `yaml:"task_queue_size"`        // Outbound task queue capacity (default: 256)
}

// RoomTimeout returns the parsed room operation timeout
func (d DiscordConfig) RoomTimeout() time.Duration {
	v, _ := time.ParseDuration(d.RoomOperationTimeout)
	return v
}

// Shutdown returns the parsed shutdown timeout
func (d DiscordConfig) Shutdown() time.Duration {
	v, _ := time.ParseDuration(d.ShutdownTimeout)
	return v
}

// SecurityConfig represents security and access control configuration
type SecurityConfig struct {
	WhitelistEnabled bool                `yaml:"whitelist_enabled"`
	AllowedUsers     map[string][]string `yaml:"allowed_users"`
	Admins           map[string][]string `yaml:"admins"`
}

// StatusServerConfig represents the HTTP status server configuration
type StatusServerConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`         // debug, info, warn, error
	File         string `yaml:"file"`          // Log file path
	MaxSize      int    `yaml:"max_size"`      // Single file max size in MB (default: 100)
	MaxBackups   int    `yaml:"max_backups"`   // Number of backups to keep (default: 5)
	MaxAge       int    `yaml:"max_age"`       // Maximum days to retain (default: 30)
	Compress     bool   `yaml:"compress"`      // Whether to compress old logs (default: true)
	EnableStdout bool   `yaml:"enable_stdout"` // Also output to stdout (default: true)
}
