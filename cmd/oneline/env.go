package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/jkaninda/oneline/internal/boot"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Boot and print the resolved environment as JSON",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		rt, err := startRuntime(context.Background())
		if err != nil {
			return err
		}
		defer rt.Close()
		return writeJSON(os.Stdout, describeRuntime(rt))
	},
}

type runtimeReport struct {
	Mode         string   `json:"mode"`
	DotenvFiles  []string `json:"dotenv_files"`
	Manifest     string   `json:"manifest"`
	DataDir      string   `json:"data_dir"`
	Capabilities []string `json:"capabilities"`
	Provider     string   `json:"provider,omitempty"`
	Driver       string   `json:"driver"`
	MultiProcess bool     `json:"multi_process"`
	Commands     []string `json:"commands"`
}

func describeRuntime(rt *boot.Runtime) runtimeReport {
	r := runtimeReport{
		Mode:         rt.Mode,
		DotenvFiles:  rt.DotenvFiles,
		Manifest:     rt.Manifest.Source,
		DataDir:      rt.Workspace.Root,
		Capabilities: rt.Capabilities.Active(),
		Driver:       rt.Driver.Name(),
		MultiProcess: rt.Driver.MultiProcess(),
		Commands:     rt.Commands.List(),
	}
	if rt.Provider != nil {
		r.Provider = rt.Provider.Name()
	}
	return r
}
