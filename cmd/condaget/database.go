package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mambapkg/condaget/channel"
	"github.com/mambapkg/condaget/fetch"
	"github.com/mambapkg/condaget/internal/secrets"
	"github.com/mambapkg/condaget/repocache"
	"github.com/mambapkg/condaget/solvable"
)

// newCircuitBreakerFetcher builds the shared DNS-cached, circuit-breaking
// HTTP client every subcommand loads channels and downloads packages
// through.
func newCircuitBreakerFetcher() *fetch.CircuitBreakerFetcher {
	return fetch.NewCircuitBreakerFetcher(fetch.NewFetcher(fetch.WithUserAgent("condaget/1.0")))
}

// loadDatabase resolves every channel reference and loads each into its
// own solvable.Repo, priority ordered by channel then platform declaration
// order (first-declared-wins on ties, per the channel-resolution design
// decision). Each channel's mirrors are tried through a channel.MirrorSet,
// and reachability is probed through a circuit breaker shared across every
// load in this call, so a channel with several dead mirrors fails fast on
// later subdirs instead of retrying each one to exhaustion.
func loadDatabase(ctx context.Context, log *slog.Logger, cbf *fetch.CircuitBreakerFetcher, cacheRoot, platform string, offline bool, channelRefs []string) (*solvable.Database, error) {
	db := solvable.NewDatabase()
	cfg := repocache.Config{
		CacheRoot:   cacheRoot,
		TTLMode:     repocache.TTLHonorMaxAge,
		Offline:     offline,
		LockTimeout: 30 * time.Second,
	}

	params := channel.ResolveParams{
		Platforms:    []string{platform},
		ChannelAlias: "https://conda.anaconda.org",
	}

	priority := 0
	for _, ref := range channelRefs {
		chans, err := channel.Resolve(ref, params)
		if err != nil {
			return nil, fmt.Errorf("resolving channel %q: %w", ref, err)
		}
		for _, ch := range chans {
			mirrors := channel.NewMirrorSet(ch.Mirrors)
			for subpriority, subdir := range ch.Platforms {
				baseURL, repodataURL, err := pickReachableMirror(ctx, log, cbf, mirrors, subdir, offline)
				if err != nil {
					log.Warn("channel unreachable, skipping subdir", slog.String("channel", ch.DisplayName), slog.String("subdir", subdir), slog.String("error", err.Error()))
					continue
				}

				log.Debug("loading repodata", slog.String("channel", ch.DisplayName), slog.String("subdir", subdir), slog.String("url", secrets.Hide(repodataURL)))
				repo, err := repocache.Load(ctx, cbf.Client(), cacheRoot, ch, repodataURL, baseURL+"/"+subdir, ch.CanonicalID, priority, subpriority, cfg, false)
				if err != nil {
					return nil, fmt.Errorf("loading %s: %w", secrets.Hide(repodataURL), err)
				}
				db.AddRepo(repo)
			}
		}
		priority++
	}

	db.ApplyPipAsPythonDependency()
	return db, nil
}

// pickReachableMirror tries mirrors.Next() in order for subdir's
// repodata.json, recording each attempt's outcome on mirrors, and returns
// the first that answers (or, offline, simply the first declared mirror).
func pickReachableMirror(ctx context.Context, log *slog.Logger, cbf *fetch.CircuitBreakerFetcher, mirrors *channel.MirrorSet, subdir string, offline bool) (baseURL, repodataURL string, err error) {
	candidates := mirrors.Next()
	if len(candidates) == 0 {
		return "", "", fmt.Errorf("channel has no mirrors")
	}
	if offline {
		base := candidates[0]
		return base, base + "/" + subdir + "/repodata.json", nil
	}

	var lastErr error
	for _, base := range candidates {
		url := base + "/" + subdir + "/repodata.json"
		if _, _, headErr := cbf.Head(ctx, url); headErr != nil {
			mirrors.RecordFailure(base)
			log.Debug("mirror unreachable, trying next", slog.String("url", secrets.Hide(url)), slog.String("error", secrets.Hide(headErr.Error())))
			lastErr = headErr
			continue
		}
		mirrors.RecordSuccess(base)
		return base, url, nil
	}
	return "", "", lastErr
}
