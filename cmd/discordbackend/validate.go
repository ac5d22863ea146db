package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/keepmind9/discordbackend/internal/core"
	"github.com/spf13/cobra"
)

var (
	validateConfig string
	validateShow   bool
	validateJSON   bool
)

// ValidationResult represents the validation result
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Config   string   `json:"config"`
	Rooms    int      `json:"rooms"`
	Admins   int      `json:"admins"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate discordbackend configuration file",
	Long: `Validate the discordbackend configuration file without connecting to Discord.

This command checks:
  - YAML syntax
  - Required fields (bot token)
  - Room addresses in chatroom_presence
  - Timeouts and status server port
  - Security settings

Exit codes:
  0 - Configuration is valid
  1 - Configuration has errors`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()

		configFile := validateConfig
		if configFile == "" {
			configFile = findConfigFile()
		}

		if configFile == "" {
			fmt.Fprintln(out, "❌ No configuration file found")
			fmt.Fprintln(out, "\nSpecify a config file with --config or ensure one exists at:")
			for _, loc := range defaultConfigLocations() {
				fmt.Fprintf(out, "  - %s\n", loc)
			}
			os.Exit(1)
		}

		result, cfg := runValidation(configFile)

		if validateShow && cfg != nil {
			showConfig(out, configFile, cfg)
		}

		outputValidationResult(out, result, validateJSON)

		if !result.Valid {
			os.Exit(1)
		}
	},
}

func defaultConfigLocations() []string {
	return []string{
		"config.yaml",
		filepath.Join(os.Getenv("HOME"), ".config/discordbackend/config.yaml"),
		"/etc/discordbackend/config.yaml",
	}
}

func findConfigFile() string {
	for _, loc := range defaultConfigLocations() {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// runValidation loads configFile and collects errors and warnings
func runValidation(configFile string) (ValidationResult, *core.Config) {
	cfg, err := core.LoadConfig(configFile)
	if err != nil {
		return ValidationResult{
			Valid:  false,
			Config: configFile,
			Errors: []string{err.Error()},
		}, nil
	}

	return ValidationResult{
		Valid:    true,
		Config:   configFile,
		Rooms:    len(cfg.ChatroomPresence),
		Admins:   len(cfg.Security.Admins[core.Platform]),
		Warnings: validateConfigDetails(cfg),
	}, cfg
}

func validateConfigDetails(cfg *core.Config) []string {
	var warnings []string

	if !cfg.Security.WhitelistEnabled {
		warnings = append(warnings, "Whitelist is disabled - this is a security risk")
	}

	if len(cfg.Security.Admins[core.Platform]) == 0 {
		warnings = append(warnings, "No admins configured - presence and room commands are unavailable")
	}

	if len(cfg.ChatroomPresence) > 0 && !cfg.Discord.PrivilegedIntents {
		warnings = append(warnings, "privileged_intents is off - message content and presence updates may be empty")
	}

	if cfg.StatusServer.Enabled && cfg.StatusServer.Port < 1024 {
		warnings = append(warnings, fmt.Sprintf("Status server port %d is privileged", cfg.StatusServer.Port))
	}

	return warnings
}

func showConfig(out io.Writer, configFile string, cfg *core.Config) {
	fmt.Fprintf(out, "✓ Configuration loaded: %s\n\n", configFile)
	fmt.Fprintf(out, "Command prefix: %s\n", cfg.BotPrefix)
	fmt.Fprintf(out, "Room operation timeout: %s\n", cfg.Discord.RoomTimeout())
	fmt.Fprintf(out, "Shutdown timeout: %s\n", cfg.Discord.Shutdown())
	fmt.Fprintf(out, "\nRooms (%d):\n", len(cfg.ChatroomPresence))
	for _, room := range cfg.ChatroomPresence {
		fmt.Fprintf(out, "  - %s\n", room)
	}
	statusState := "disabled"
	if cfg.StatusServer.Enabled {
		statusState = fmt.Sprintf("enabled on port %d", cfg.StatusServer.Port)
	}
	fmt.Fprintf(out, "\nStatus server: %s\n\n", statusState)
}

func outputValidationResult(out io.Writer, result ValidationResult, jsonFormat bool) {
	if jsonFormat {
		output, err := json.Marshal(result)
		if err != nil {
			fmt.Fprintf(out, "{\"error\": \"failed to marshal json: %v\"}\n", err)
			return
		}
		fmt.Fprintln(out, string(output))
		return
	}

	if result.Valid {
		fmt.Fprintln(out, "✓ Configuration is valid")
		fmt.Fprintf(out, "  - Config: %s\n", result.Config)
		fmt.Fprintf(out, "  - Rooms joined on connect: %d\n", result.Rooms)
		fmt.Fprintf(out, "  - Admins: %d\n", result.Admins)
		if len(result.Warnings) > 0 {
			fmt.Fprintln(out, "\n⚠️  Warnings:")
			for _, warning := range result.Warnings {
				fmt.Fprintf(out, "  - %s\n", warning)
			}
		}
		return
	}

	fmt.Fprintln(out, "❌ Configuration validation failed:")
	if len(result.Errors) > 0 {
		fmt.Fprintln(out, "\nErrors:")
		for _, errMsg := range result.Errors {
			fmt.Fprintf(out, "  - %s\n", errMsg)
		}
	}
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfig, "config", "c", "", "Configuration file path")
	validateCmd.Flags().BoolVar(&validateShow, "show", false, "Show full configuration details")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output in JSON format")

	serveCmd.Flags().Bool("validate", false, "Validate configuration and exit")
}
