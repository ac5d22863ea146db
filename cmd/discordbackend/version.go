package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Overridden with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = ""
)

const discordgoModule = "github.com/bwmarrin/discordgo"

type buildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Discordgo string `json:"discordgo,omitempty"`
	Go        string `json:"go"`
	Platform  string `json:"platform"`
}

// currentBuild fills the commit and library version from the module build
// info when the linker did not set them
func currentBuild() buildInfo {
	info := buildInfo{
		Version:  version,
		Commit:   commit,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, dep := range bi.Deps {
		if dep.Path == discordgoModule {
			info.Discordgo = dep.Version
		}
	}
	if info.Commit == "" {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				info.Commit = s.Value
			}
		}
	}
	return info
}

func newVersionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show build and library versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printVersion(cmd.OutOrStdout(), currentBuild(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func printVersion(out io.Writer, info buildInfo, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Fprintf(out, "discordbackend %s (%s, %s)\n", info.Version, info.Go, info.Platform)
	if info.Commit != "" {
		fmt.Fprintf(out, "  commit:    %s\n", info.Commit)
	}
	if info.Discordgo != "" {
		fmt.Fprintf(out, "  discordgo: %s\n", info.Discordgo)
	}
	return nil
}
