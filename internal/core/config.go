// Package core provides configuration management and the host engine that
// drives the Discord backend.
//
// It handles:
//
//   - Configuration loading and validation (from YAML files and .env)
//   - Built-in chat commands answered through the backend
//   - Access control (whitelist and admins)
//
// # Configuration
//
// Configuration is loaded from a YAML file with the following main sections:
//
//   - bot_identity: Discord bot token
//   - bot_prefix: command prefix, e.g. "!"
//   - chatroom_presence: rooms joined on connect
//   - discord: backend timeouts, intents and queue size
//   - security: access control and whitelisting
//   - status_server: optional HTTP status endpoint
//   - logging: log configuration
//
// # Example Configuration
//
//	bot_identity:
//	  token: "${DISCORD_TOKEN}"
//	bot_prefix: "!"
//	chatroom_presence:
//	  - "#general"
//	discord:
//	  room_operation_timeout: "10s"
//	security:
//	  whitelist_enabled: true
//	  allowed_users:
//	    discord:
//	      - "123456789012345678"
package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/keepmind9/discordbackend/internal/logger"
	"github.com/keepmind9/discordbackend/pkg/constants"
	"gopkg.in/yaml.v3"
)

// Platform is the key used for Discord users in security lists
const Platform = "discord"

const (
	DefaultBotPrefix       = "!"
	DefaultLogLevel        = "info"
	DefaultLogMaxSize      = constants.DefaultLogMaxSize // MB
	DefaultLogMaxBackups   = 5
	DefaultLogMaxAge       = constants.DefaultLogMaxAge // days
	DefaultLogCompress     = true
	DefaultLogEnableStdout = true
)

// LoadConfig loads configuration from file and expands environment variables.
// A .env file next to the config file, or in the working directory, is
// loaded first; variables already set in the environment win.
func LoadConfig(configPath string) (*Config, error) {
	loadDotEnv(configPath)

	// Read configuration file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	expandedData, err := expandEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	// Parse YAML
	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func loadDotEnv(configPath string) {
	seen := make(map[string]bool)
	for _, path := range []string{filepath.Join(filepath.Dir(configPath), ".env"), ".env"} {
		abs, err := filepath.Abs(path)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true

		if _, err := os.Stat(abs); err != nil {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			logger.WithField("file", abs).Warnf("failed-to-load-env-file: %v", err)
			continue
		}
		logger.WithField("file", abs).Debug("loaded-env-file")
	}
}

// expandEnv replaces ${VAR_NAME} patterns with environment variable values
func expandEnv(input string) (string, error) {
	var missingVars []string

	result := os.Expand(input, func(key string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		missingVars = append(missingVars, key)
		return "" // Return empty string to let config parsing fail
	})

	if len(missingVars) > 0 {
		return "", fmt.Errorf("missing required environment variables: %s",
			strings.Join(missingVars, ", "))
	}

	return result, nil
}

// validateConfig fills defaults and rejects unusable configurations
func validateConfig(config *Config) error {
	if strings.TrimSpace(config.BotIdentity.Token) == "" {
		return fmt.Errorf("bot_identity.token is required")
	}

	if config.BotPrefix == "" {
		config.BotPrefix = DefaultBotPrefix
	}

	for _, room := range config.ChatroomPresence {
		if !strings.HasPrefix(room, "#") || strings.TrimLeft(room, "#") == "" {
			return fmt.Errorf("chatroom_presence entry %q must look like #name or ##name", room)
		}
	}

	// Discord backend defaults
	if config.Discord.RoomOperationTimeout == "" {
		config.Discord.RoomOperationTimeout = constants.DefaultRoomOperationTimeout.String()
	}
	if config.Discord.ShutdownTimeout == "" {
		config.Discord.ShutdownTimeout = constants.DefaultShutdownTimeout.String()
	}
	if err := validateDuration("discord.room_operation_timeout", config.Discord.RoomOperationTimeout, 100*time.Millisecond, 5*time.Minute); err != nil {
		return err
	}
	if err := validateDuration("discord.shutdown_timeout", config.Discord.ShutdownTimeout, 100*time.Millisecond, 5*time.Minute); err != nil {
		return err
	}
	if config.Discord.TaskQueueSize == 0 {
		config.Discord.TaskQueueSize = constants.DefaultTaskQueueSize
	}
	if config.Discord.TaskQueueSize < 0 {
		return fmt.Errorf("discord.task_queue_size must be positive (got %d)", config.Discord.TaskQueueSize)
	}

	// Status server
	if config.StatusServer.Port == 0 {
		config.StatusServer.Port = constants.DefaultStatusPort
	}
	if config.StatusServer.Port < 1 || config.StatusServer.Port > 65535 {
		return fmt.Errorf("status_server.port must be between 1 and 65535 (got %d)", config.StatusServer.Port)
	}

	// Set default logging configuration
	if config.Logging.Level == "" {
		config.Logging.Level = DefaultLogLevel
	}
	if config.Logging.MaxSize == 0 {
		config.Logging.MaxSize = DefaultLogMaxSize
	}
	if config.Logging.MaxBackups == 0 {
		config.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if config.Logging.MaxAge == 0 {
		config.Logging.MaxAge = DefaultLogMaxAge
	}
	if !config.Logging.Compress {
		config.Logging.Compress = DefaultLogCompress
	}
	if !config.Logging.EnableStdout {
		config.Logging.EnableStdout = DefaultLogEnableStdout
	}

	// Validate security settings
	if config.Security.WhitelistEnabled {
		if len(config.Security.AllowedUsers[Platform]) == 0 {
			return fmt.Errorf("security.allowed_users.%s cannot be empty when whitelist is enabled", Platform)
		}
	}

	return nil
}

func validateDuration(field, value string, min, max time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	if d < min || d > max {
		return fmt.Errorf("%s must be between %v and %v (got %v)", field, min, max, d)
	}
	return nil
}

// IsUserAuthorized checks if a user is in the whitelist
func (c *Config) IsUserAuthorized(platform, userID string) bool {
	// If whitelist is disabled, allow all users (warning: not recommended for production)
	if !c.Security.WhitelistEnabled {
		return true
	}

	for _, uid := range c.Security.AllowedUsers[platform] {
		if uid == userID {
			return true
		}
	}
	return false
}

// IsAdmin checks if a user is an admin
func (c *Config) IsAdmin(platform, userID string) bool {
	for _, adminID := range c.Security.Admins[platform] {
		if adminID == userID {
			return true
		}
	}
	return false
}
