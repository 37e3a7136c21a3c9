// bench drives a tree through a workload and reports timings and shape.
// Run: go run ./cmd/bench --order 16 --n 100000 --workload random
package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	bplus "bplusindex/bplustree"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:    "bench",
		Usage:   "run insert/select/delete workloads against the B+tree",
		Version: versioninfo.Short(),
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "order",
				Usage: "tree order",
				Value: 32,
			},
			&cli.IntFlag{
				Name:  "n",
				Usage: "number of keys",
				Value: 100_000,
			},
			&cli.StringSliceFlag{
				Name:  "workload",
				Usage: "ascending, random, mixed or range (repeatable)",
				Value: cli.NewStringSlice("ascending", "random", "mixed", "range"),
			},
			&cli.Uint64Flag{
				Name:  "seed",
				Usage: "random seed",
				Value: 1,
			},
			&cli.StringFlag{
				Name:  "csv",
				Usage: "also append results as CSV rows to this file",
			},
		},
		Action: runBench,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		os.Exit(1)
	}
}

func runBench(cctx *cli.Context) error {
	cfg := bplus.Config{
		Order:           cctx.Int("order"),
		AllowDuplicates: true,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	n := cctx.Int("n")
	if n <= 0 {
		return fmt.Errorf("--n must be positive")
	}

	var w *csv.Writer
	if path := cctx.String("csv"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		defer f.Close()
		w = csv.NewWriter(f)
		defer w.Flush()
	}

	for _, name := range cctx.StringSlice("workload") {
		wl, ok := workloads[name]
		if !ok {
			return fmt.Errorf("unknown workload %q", name)
		}
		results, err := wl(cfg, n, cctx.Uint64("seed"))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Printf("== %s (order %d, n %d) ==\n", name, cfg.Order, n)
		for _, res := range results {
			fmt.Println(res)
			if w != nil {
				record(w, name, cfg.Order, res)
			}
		}
		fmt.Println()
	}
	return nil
}

func record(w *csv.Writer, workload string, order int, res result) {
	w.Write([]string{
		workload,
		strconv.Itoa(order),
		res.Operation,
		strconv.Itoa(res.Ops),
		strconv.FormatInt(res.NsPerOp(), 10),
		strconv.FormatUint(res.Height, 10),
		strconv.FormatUint(res.Nodes, 10),
		strconv.FormatUint(res.Records, 10),
		strconv.FormatUint(res.HeapBytes, 10),
	})
}
