package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jkaninda/oneline/internal/agentcmd"
	"github.com/jkaninda/oneline/internal/boot"
	"github.com/jkaninda/oneline/internal/command"
)

var runCmd = &cobra.Command{
	Use:   "run <Command> [inputs-json|-]",
	Short: "Run one command and print its result as JSON",
	Long: `Run a registered command once. Inputs are a JSON object given as the
second argument, or read from stdin when it is "-". Omitted inputs are {}.

Examples:
  oneline run CreateLoanFile '{"applicant_name": "Ada", "requested_amount": 250000}'
  echo '{"id": "..."}' | oneline run FindLoanFile -`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRun,
}

var askCmd = &cobra.Command{
	Use:   "ask <goal>",
	Short: "Ask the agent to accomplish a goal using the plain commands",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		goal := strings.Join(args, " ")
		return runOnce(agentcmd.AccomplishGoalName, map[string]any{"goal": goal})
	},
}

func runRun(_ *cobra.Command, args []string) error {
	inputs := map[string]any{}
	if len(args) == 2 {
		raw := []byte(args[1])
		if args[1] == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading inputs from stdin: %w", err)
			}
			raw = data
		}
		if strings.TrimSpace(string(raw)) != "" {
			if err := json.Unmarshal(raw, &inputs); err != nil {
				return fmt.Errorf("inputs must be a JSON object: %w", err)
			}
		}
	}
	return runOnce(args[0], inputs)
}

// runOnce boots, runs name and prints the result. A failed run prints the
// error body and exits non-zero.
func runOnce(name string, inputs map[string]any) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := startRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	return runCommand(ctx, rt, os.Stdout, name, inputs)
}

func runCommand(ctx context.Context, rt *boot.Runtime, w io.Writer, name string, inputs map[string]any) error {
	result, err := rt.Commands.Run(ctx, name, inputs)
	if err != nil {
		ce := command.AsError(err)
		if werr := writeJSON(w, map[string]any{"error": ce}); werr != nil {
			return werr
		}
		return ce
	}
	return writeJSON(w, result)
}
