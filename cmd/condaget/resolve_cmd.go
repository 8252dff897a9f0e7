package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mambapkg/condaget/internal/logging"
	"github.com/mambapkg/condaget/resolver"
	"github.com/mambapkg/condaget/specs"
)

// ResolveCmd solves a set of package specs against one or more channels
// and prints the resulting install plan, without downloading anything.
type ResolveCmd struct {
	Channel []string `help:"Channel references, e.g. conda-forge" default:"conda-forge"`
	Spec    []string `arg:"" help:"Match-spec strings to install, e.g. 'numpy>=1.20'"`
}

func (cmd *ResolveCmd) Run(g *Globals) error {
	log := logging.New(os.Stderr, g.Verbose)
	ctx := context.Background()

	db, err := loadDatabase(ctx, log, newCircuitBreakerFetcher(), g.CacheRoot, g.Platform, g.Offline, cmd.Channel)
	if err != nil {
		return err
	}

	var jobs []resolver.Job
	for _, s := range cmd.Spec {
		ms, err := specs.ParseMatchSpec(s)
		if err != nil {
			return fmt.Errorf("parsing spec %q: %w", s, err)
		}
		jobs = append(jobs, resolver.Install(ms))
	}

	sol, err := resolver.Solve(db, resolver.Request{Jobs: jobs})
	if err != nil {
		return err
	}
	fmt.Print(sol.String())
	return nil
}
