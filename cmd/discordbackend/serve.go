package main

import (
	"context"
	"fmt"
	"log"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/keepmind9/discordbackend/internal/core"
	"github.com/keepmind9/discordbackend/internal/discord"
	"github.com/keepmind9/discordbackend/internal/logger"
	"github.com/keepmind9/discordbackend/internal/status"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile string

	serveCmd = &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Connect to Discord and serve until interrupted",
		Long:    "Log in to Discord, bridge events to the engine, and run until SIGINT or SIGTERM",
		Run: func(cmd *cobra.Command, args []string) {
			config, err := core.LoadConfig(configFile)
			if err != nil {
				log.Fatalf("Failed to load config: %v", err)
			}

			if validateOnly, _ := cmd.Flags().GetBool("validate"); validateOnly {
				fmt.Printf("✓ Configuration is valid: %s\n", configFile)
				return
			}

			fmt.Printf("Starting discordbackend with config: %s\n", configFile)
			fmt.Printf("Command prefix: %s\n", config.BotPrefix)
			fmt.Printf("Whitelist enabled: %v\n", config.Security.WhitelistEnabled)

			if err := logger.InitLogger(loggerConfig(config)); err != nil {
				log.Fatalf("Failed to initialize logger: %v", err)
			}

			logger.WithFields(logrus.Fields{
				"config_file": configFile,
				"log_level":   config.Logging.Level,
				"log_file":    config.Logging.File,
			}).Info("logger-initialized")

			engine := core.NewEngine(config)
			backend := discord.NewBackend(backendOptions(config), engine)
			engine.Attach(backend)

			operations := map[string]gfshutdown.Operation{}

			if config.StatusServer.Enabled {
				srv := status.NewServer(backend)
				if err := srv.Start(fmt.Sprintf("127.0.0.1:%d", config.StatusServer.Port)); err != nil {
					log.Fatalf("Failed to start status server: %v", err)
				}
				operations["status-server"] = srv.Shutdown
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var serveErr error
			served := make(chan struct{})
			go func() {
				defer close(served)
				_, serveErr = backend.ServeOnce(ctx)
			}()

			operations["discord-backend"] = func(shutdownCtx context.Context) error {
				cancel()
				select {
				case <-served:
					return serveErr
				case <-shutdownCtx.Done():
					return shutdownCtx.Err()
				}
			}

			fmt.Println("\ndiscordbackend starting...")
			fmt.Println("Press Ctrl+C to stop")

			wait := gfshutdown.GracefulShutdown(context.Background(), config.Discord.Shutdown(), operations)

			select {
			case <-served:
				// ServeOnce returns early only when the login failed
				if serveErr != nil {
					log.Fatalf("Discord backend error: %v", serveErr)
				}
				exitCode := <-wait
				logger.WithField("exit_code", exitCode).Info("discordbackend-stopped")
				os.Exit(exitCode)
			case exitCode := <-wait:
				logger.WithField("exit_code", exitCode).Info("discordbackend-stopped")
				os.Exit(exitCode)
			}
		},
	}
)

func loggerConfig(config *core.Config) logger.Config {
	return logger.Config{
		Level:        config.Logging.Level,
		File:         config.Logging.File,
		MaxSize:      config.Logging.MaxSize,
		MaxBackups:   config.Logging.MaxBackups,
		MaxAge:       config.Logging.MaxAge,
		Compress:     config.Logging.Compress,
		EnableStdout: config.Logging.EnableStdout,
	}
}

func backendOptions(config *core.Config) discord.Options {
	return discord.Options{
		Token:                config.BotIdentity.Token,
		RoomOperationTimeout: config.Discord.RoomTimeout(),
		ShutdownTimeout:      config.Discord.Shutdown(),
		PrivilegedIntents:    config.Discord.PrivilegedIntents,
		TaskQueueSize:        config.Discord.TaskQueueSize,
	}
}

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "Configuration file path")
}
