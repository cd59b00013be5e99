// Package main implements the create-network CLI: it submits an area
// coverage request for every tower in a tower table so the propagation
// service registers each site under its network. Best-signal runs query
// those networks by name.
//
// Usage:
//
//	go run ./cmd/create-network --towers=towers.yaml
//	go run ./cmd/create-network --towers=towers.csv --network=Lakeside
//
// Towers are submitted one at a time with NETWORK_DELAY between them; each
// request can take 90 seconds or more. Failed towers are reported and the
// exit code is 1.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"rfcoverage/internal/app"
	"rfcoverage/internal/input"
	"rfcoverage/internal/network"
	"rfcoverage/internal/types"
)

const tool = "create-network"

func main() {
	towersFlag := flag.String("towers", "", "Tower table (YAML or CSV)")
	networkFlag := flag.String("network", "", "Only submit towers of this network (default: all)")
	envFileFlag := flag.String("env-file", "", "Dotenv file to load (default: ./.env when present)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: create-network --towers=FILE [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Create or update tower networks on the propagation service.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *towersFlag == "" {
		fmt.Fprintf(os.Stderr, "error: --towers is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *towersFlag, *networkFlag, *envFileFlag); err != nil {
		cancel()
		fmt.Fprintln(os.Stderr, app.Diagnostic(tool, err))
		os.Exit(1)
	}
}

func run(ctx context.Context, towersPath, networkName, envFile string) error {
	env, err := app.Setup(os.Stderr, tool, envFile)
	if err != nil {
		return err
	}
	ctx = env.Context(ctx)

	towers, err := input.LoadTowers(towersPath)
	if err != nil {
		return err
	}
	towers = input.FilterNetwork(towers, networkName)
	if len(towers) == 0 {
		return types.NewAppError(types.ErrCodeValidationInvalidInput, towersPath+": no towers to submit", nil)
	}

	c := network.NewCreator(env.Client, env.Logger)
	c.Delay = env.Config.Pacing.NetworkDelay

	results, err := c.Run(ctx, towers)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Println(app.Diagnostic(r.Site, r.Err))
			continue
		}
		fmt.Printf("%s: area %g km2, coverage %g%%\n", r.Site, r.Area.Area, r.Area.Coverage)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d towers failed", failed, len(results))
	}
	return nil
}
