package main

import (
	"fmt"
	"log/slog"
	"os"

	bplus "bplusindex/bplustree"
	"bplusindex/engine"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:      "bplusindex",
		Usage:     "interactive driver for the B+tree index",
		ArgsUsage: " ",
		Version:   versioninfo.Short(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Usage: "engine directory (write-ahead log and checkpoints); empty runs an in-memory tree",
			},
			&cli.IntFlag{
				Name:  "order",
				Usage: "maximum children per node",
				Value: bplus.DefaultOrder,
			},
			&cli.BoolFlag{
				Name:  "no-dups",
				Usage: "reject inserts of keys that are already present",
			},
			&cli.IntFlag{
				Name:  "max-nodes",
				Usage: "cap on live nodes (0 means no cap)",
			},
			&cli.BoolFlag{
				Name:  "sync",
				Usage: "fsync the log after every mutation",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "debug logging",
			},
		},
		Action: runRepl,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		os.Exit(1)
	}
}

func configLogger(cctx *cli.Context) *slog.Logger {
	level := slog.LevelWarn
	if cctx.Bool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func runRepl(cctx *cli.Context) error {
	logger := configLogger(cctx)
	cfg := bplus.Config{
		Order:           cctx.Int("order"),
		AllowDuplicates: !cctx.Bool("no-dups"),
		MaxNodes:        cctx.Int("max-nodes"),
		Logger:          logger,
	}

	var s *session
	if dir := cctx.String("dir"); dir != "" {
		opts := engine.DefaultOptions()
		opts.Config = cfg
		opts.SyncWrites = cctx.Bool("sync")
		opts.Logger = logger
		eng, err := engine.Open(dir, opts)
		if err != nil {
			return err
		}
		defer eng.Close()
		s = newEngineSession(eng, os.Stdout)
	} else {
		tree, err := bplus.New(cfg)
		if err != nil {
			return err
		}
		s = newTreeSession(tree, os.Stdout)
		// restore swaps the session's tree
		defer func() { s.tree.Destroy() }()
	}

	return s.run(os.Stdin, "bpt> ")
}
