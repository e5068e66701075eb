package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jkaninda/oneline/internal/command"
)

var commandsJSON bool

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List the registered commands",
	Args:  cobra.NoArgs,
	RunE:  runCommands,
}

func init() {
	commandsCmd.Flags().BoolVar(&commandsJSON, "json", false, "print names, descriptions and input schemas as JSON")
}

type commandListing struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	AgentBacked bool           `json:"agent_backed"`
	InputSchema map[string]any `json:"input_schema"`
}

func runCommands(_ *cobra.Command, _ []string) error {
	rt, err := startRuntime(context.Background())
	if err != nil {
		return err
	}
	defer rt.Close()

	var listing []commandListing
	for _, cmd := range rt.Commands.All() {
		listing = append(listing, commandListing{
			Name:        cmd.Name(),
			Description: cmd.Description(),
			AgentBacked: command.IsAgentBacked(cmd),
			InputSchema: cmd.InputSchema(),
		})
	}
	if commandsJSON {
		return writeJSON(os.Stdout, listing)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMMAND\tKIND\tDESCRIPTION")
	for _, c := range listing {
		kind := "plain"
		if c.AgentBacked {
			kind = "agent"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, kind, firstLine(c.Description))
	}
	return tw.Flush()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
