// Inspect a checkpoint written by the engine or by BPlusTree.Checkpoint.
// Usage: go run ./cmd/inspect_idx <checkpoint-dir-or-file>
// Example: go run ./cmd/inspect_idx databases/demo/checkpoint
package main

import (
	"fmt"
	"os"

	bplus "bplusindex/bplustree"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:      "inspect_idx",
		Usage:     "print the meta page and every node of a checkpoint",
		ArgsUsage: "<path>",
		Version:   versioninfo.Short(),
		Action: func(cctx *cli.Context) error {
			path := cctx.Args().First()
			if path == "" {
				return fmt.Errorf("need to provide path to a checkpoint (pebble directory or page file)")
			}
			return bplus.InspectIndexFile(path)
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
