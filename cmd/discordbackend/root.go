package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "discordbackend",
	Short: "discordbackend connects a chatbot framework to Discord",
	Long: `discordbackend is a Discord backend for a chatbot framework. It bridges
gateway events into framework callbacks, sends chunked messages and cards,
manages presence, and creates or destroys rooms and categories.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(newVersionCmd())
}
