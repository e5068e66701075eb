package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/oneline/internal/boot"
)

var bootDir string

// startRuntime boots from the --dir flag, or ONELINE_DIR when the flag was
// left at its default.
func startRuntime(ctx context.Context) (*boot.Runtime, error) {
	dir := bootDir
	if dir == "." {
		dir = goutils.Env("ONELINE_DIR", dir)
	}
	return boot.Boot(ctx, boot.Options{Dir: dir, Version: version})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
