package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mambapkg/condaget/internal/logging"
)

// FetchRepodataCmd refreshes the on-disk repodata cache for one or more
// channels and reports how many solvables each repo now holds, without
// solving anything.
type FetchRepodataCmd struct {
	Channel []string `arg:"" help:"Channel references, e.g. conda-forge"`
}

func (cmd *FetchRepodataCmd) Run(g *Globals) error {
	log := logging.New(os.Stderr, g.Verbose)
	db, err := loadDatabase(context.Background(), log, newCircuitBreakerFetcher(), g.CacheRoot, g.Platform, g.Offline, cmd.Channel)
	if err != nil {
		return err
	}
	for _, r := range db.Repos() {
		fmt.Printf("%s: %d solvables\n", r.Name, r.Len())
	}
	return nil
}
