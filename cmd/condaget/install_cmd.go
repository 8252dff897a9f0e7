package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mambapkg/condaget/fetch"
	"github.com/mambapkg/condaget/internal/logging"
	"github.com/mambapkg/condaget/resolver"
	"github.com/mambapkg/condaget/specs"
	"github.com/mambapkg/condaget/transaction"
)

// InstallCmd solves and executes an install plan against a prefix:
// resolve, download, extract, and link, in one step.
type InstallCmd struct {
	Prefix  string   `help:"Target environment prefix" required:""`
	Channel []string `help:"Channel references, e.g. conda-forge" default:"conda-forge"`
	Spec    []string `arg:"" help:"Match-spec strings to install, e.g. 'numpy>=1.20'"`
}

func (cmd *InstallCmd) Run(g *Globals) error {
	log := logging.New(os.Stderr, g.Verbose)
	ctx := context.Background()
	cbf := newCircuitBreakerFetcher()

	db, err := loadDatabase(ctx, log, cbf, g.CacheRoot, g.Platform, g.Offline, cmd.Channel)
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
	log.Info("resolved install plan", "actions", len(sol.Actions))

	engine := fetch.NewEngine(cbf.Client())
	executor := transaction.NewExecutor(engine, transaction.Config{
		CacheRoot: g.CacheRoot,
		Prefix:    cmd.Prefix,
		Policy:    transaction.AllowSoftlinks,
	})

	results, err := executor.Execute(ctx, sol)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Err != nil {
			log.Error("package failed", "name", r.Name, "action", r.Action.String(), "error", r.Err.Error())
			continue
		}
		log.Info("package done", "name", r.Name, "action", r.Action.String(), "trashed", r.Trashed)
	}
	return nil
}
