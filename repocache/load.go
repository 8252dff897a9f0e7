package repocache

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mambapkg/condaget/channel"
	"github.com/mambapkg/condaget/solvable"
)

// Load ensures the cache entry for ch is fresh (refreshing over the
// network if needed) and returns the resulting *solvable.Repo, preferring
// the solv cache when it is still valid for a faster load than
// re-parsing repodata.json.
func Load(ctx context.Context, client *http.Client, cacheRoot string, ch *channel.Channel, repodataURL, baseURL, channelID string, priority, subpriority int, cfg Config, pipAdded bool) (*solvable.Repo, error) {
	e := NewEntry(cacheRoot, repodataURL, channelID)

	validity, st, err := Check(e, cfg)
	if err != nil {
		return nil, err
	}

	if validity == ValidityStale || validity == ValidityMissing {
		if cfg.Offline {
			return nil, fmt.Errorf("offline and no usable repodata cache in %s", e.Dir)
		}
		hasZst := false
		var probed *hasZstEntry
		if !NeedsZstProbe(st) {
			hasZst = st.HasZst.Value
		} else {
			hasZst = ProbeZst(ctx, client, repodataURL, cfg.AuthHeader)
			probed = &hasZstEntry{Value: hasZst, CheckedAtNS: time.Now().UnixNano()}
		}
		newState, changed, err := Refresh(ctx, client, e, repodataURL, st, hasZst, cfg)
		if err != nil {
			return nil, err
		}
		if probed != nil {
			newState.HasZst = probed
			if err := writeState(e.StatePath, newState); err != nil {
				return nil, err
			}
		}
		st = newState
		if changed {
			return rebuildFromJSON(e, ch, baseURL, channelID, priority, subpriority)
		}
	}

	if st != nil && SolvCacheValid(e, st, pipAdded) {
		if repo, err := loadFromSolvCache(e, ch, priority, subpriority, repodataURL, st); err == nil {
			return repo, nil
		}
	}

	return rebuildFromJSON(e, ch, baseURL, channelID, priority, subpriority)
}

func rebuildFromJSON(e Entry, ch *channel.Channel, baseURL, channelID string, priority, subpriority int) (*solvable.Repo, error) {
	data, err := os.ReadFile(e.RepodataPath)
	if err != nil {
		return nil, err
	}
	return solvable.AddRepoFromRepodataJSON(data, baseURL, channelID, ch, priority, subpriority)
}

func loadFromSolvCache(e Entry, ch *channel.Channel, priority, subpriority int, repodataURL string, st *state) (*solvable.Repo, error) {
	f, err := os.Open(e.SolvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	origin := solvable.CacheOrigin{URL: repodataURL, ETag: st.ETag, Mod: st.LastModified}
	repo, _, err := solvable.ReadSolvCache(f, ch, origin, priority, subpriority)
	return repo, err
}

// SaveSolvCache writes r's solv-cache snapshot to the entry's solv path,
// for reuse by a later Load.
func SaveSolvCache(e Entry, r *solvable.Repo, repodataURL string, st *state, pipAdded bool) error {
	f, err := os.Create(e.SolvPath)
	if err != nil {
		return err
	}
	defer f.Close()
	origin := solvable.CacheOrigin{URL: repodataURL, ETag: st.ETag, Mod: st.LastModified}
	return solvable.WriteSolvCache(f, r, origin, pipAdded)
}
