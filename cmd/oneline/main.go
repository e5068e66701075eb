// Oneline boots a command runtime from the environment and serves its
// domain commands over the CLI, HTTP or MCP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "oneline",
	Short: "Oneline runs domain commands, plain and agent-backed, behind one boot.",
	Long: `Oneline resolves the deployment mode and layered dotenv files, activates
the LLM capabilities whose credentials are present, opens the configured
persistence driver and registers the domain commands.

Without a subcommand it serves the HTTP API.`,
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&bootDir, "dir", ".", "directory holding the dotenv files and oneline.yaml (or ONELINE_DIR)")
	rootCmd.AddCommand(commandsCmd, runCmd, askCmd, serveCmd, mcpCmd, envCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
