package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/keepmind9/discordbackend/internal/status"
	"github.com/keepmind9/discordbackend/pkg/constants"
	"github.com/spf13/cobra"
)

var (
	statusURL  string
	statusJSON bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show discordbackend status",
	Long:  "Query the status server of a running discordbackend and display its connection state",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()

		resp, err := status.Fetch(context.Background(), strings.TrimRight(statusURL, "/"))
		if err != nil {
			fmt.Fprintf(out, "❌ %v\n", err)
			fmt.Fprintln(out, "\nIs discordbackend running with status_server.enabled: true?")
			os.Exit(1)
		}

		if statusJSON {
			output, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				fmt.Fprintf(out, "{\"error\": \"failed to marshal json: %v\"}\n", err)
				return
			}
			fmt.Fprintln(out, string(output))
			return
		}

		printStatus(cmd, resp)
	},
}

func printStatus(cmd *cobra.Command, resp *status.Response) {
	out := cmd.OutOrStdout()

	state := "❌ disconnected"
	if resp.Connected {
		state = "✅ connected"
	}

	fmt.Fprintln(out, "discordbackend status:")
	fmt.Fprintf(out, "  - Backend: %s (%s)\n", resp.Mode, state)
	if resp.BotName != "" {
		fmt.Fprintf(out, "  - Bot: %s (%s)\n", resp.BotName, resp.BotID)
	}
	fmt.Fprintf(out, "  - Guilds: %d\n", resp.Guilds)
	fmt.Fprintf(out, "  - Pending tasks: %d\n", resp.PendingTasks)
	fmt.Fprintf(out, "  - Uptime: %s\n", resp.Uptime)
	if len(resp.Rooms) > 0 {
		fmt.Fprintf(out, "  - Rooms (%d):\n", len(resp.Rooms))
		for _, room := range resp.Rooms {
			fmt.Fprintf(out, "      %s\n", room)
		}
	}
}

func init() {
	statusCmd.Flags().StringVar(&statusURL, "url", fmt.Sprintf("http://127.0.0.1:%d", constants.DefaultStatusPort), "Status server base URL")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
}
