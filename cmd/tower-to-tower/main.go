// Package main implements the tower-to-tower CLI: it computes a path profile
// for every ordered pair of towers in a tower table and writes the results as
// a table of two-vertex paths (T2T_pathprofile.csv).
//
// Usage:
//
//	go run ./cmd/tower-to-tower --towers=towers.yaml
//	go run ./cmd/tower-to-tower --towers=towers.csv --network=Lakeside --out=./results
//
// Pairs are processed one at a time with PAIR_DELAY between them. A pair the
// service rejects at the tower's own resolution is retried once at 30 m.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"rfcoverage/internal/app"
	"rfcoverage/internal/input"
	"rfcoverage/internal/pairs"
	"rfcoverage/internal/types"
)

const tool = "tower-to-tower"

func main() {
	towersFlag := flag.String("towers", "", "Tower table (YAML or CSV)")
	networkFlag := flag.String("network", "", "Only use towers of this network (default: all)")
	outFlag := flag.String("out", "", "Output directory (default: tower table directory)")
	envFileFlag := flag.String("env-file", "", "Dotenv file to load (default: ./.env when present)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tower-to-tower --towers=FILE [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Compute path profiles between every ordered pair of towers.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *towersFlag == "" {
		fmt.Fprintf(os.Stderr, "error: --towers is required\n\n")
		flag.Usage()
		os.Exit(1)
	}
	out := *outFlag
	if out == "" {
		out = filepath.Dir(*towersFlag)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *towersFlag, *networkFlag, out, *envFileFlag); err != nil {
		cancel()
		fmt.Fprintln(os.Stderr, app.Diagnostic(tool, err))
		os.Exit(1)
	}
}

func run(ctx context.Context, towersPath, network, out, envFile string) error {
	env, err := app.Setup(os.Stderr, tool, envFile)
	if err != nil {
		return err
	}
	ctx = env.Context(ctx)

	towers, err := input.LoadTowers(towersPath)
	if err != nil {
		return err
	}
	towers = input.FilterNetwork(towers, network)
	if len(towers) < 2 {
		return types.NewAppError(types.ErrCodeValidationInvalidInput,
			fmt.Sprintf("%s: at least two towers are needed, found %d", towersPath, len(towers)), nil)
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return types.NewAppError(types.ErrCodeInternalIO, "cannot create output directory "+out, err)
	}

	e := pairs.NewEnumerator(env.Client, env.Logger)
	e.Delay = env.Config.Pacing.PairDelay

	path := filepath.Join(out, pairs.FileName)
	env.Logger.InfoContext(ctx, "tower-to-tower run started",
		"towers", len(towers), "pairs", len(pairs.Permutations(len(towers))), "output", path)

	sum, err := e.WriteTable(ctx, path, towers)
	if err != nil {
		return err
	}
	env.Logger.InfoContext(ctx, "tower-to-tower run complete",
		"pairs", sum.Pairs, "succeeded", sum.Succeeded, "fallbacks", sum.Fallbacks, "failed", sum.Failed)
	fmt.Printf("Wrote %s (%d of %d pairs)\n", path, sum.Succeeded, sum.Pairs)
	return nil
}
