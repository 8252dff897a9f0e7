// Package solvable implements the in-memory solvable database: repos of
// interned PackageInfo records, a whatprovides reverse index keyed by
// name, and native binary (solv-cache) serialization.
package solvable

import (
	"sort"

	"github.com/mambapkg/condaget/channel"
	"github.com/mambapkg/condaget/specs"
)

// SolvableType distinguishes a real package from synthetic solvables
// injected for pins and virtual packages.
type SolvableType uint8

const (
	TypePackage SolvableType = iota
	TypePin
	TypeVirtual
)

// SolvableID is an index into a Repo's package array. Dependencies are
// kept as match-spec strings and resolved by name through the whatprovides
// table, never as direct package-to-package pointers (the dependency graph is
// cyclic by nature, e.g. pip<->python).
type SolvableID int

// Solvable is one repo-owned package record plus resolver bookkeeping.
type Solvable struct {
	Info      specs.PackageInfo
	Type      SolvableType
	Installed bool
}

// Repo owns a contiguous array of solvables for one (channel, subdir) or
// for the installed-package set.
type Repo struct {
	Name        string
	Channel     *channel.Channel
	Priority    int
	Subpriority int

	solvables    []Solvable
	whatprovides map[string][]SolvableID

	pipAdded bool
}

// NewRepo creates an empty repo.
func NewRepo(name string, ch *channel.Channel, priority, subpriority int) *Repo {
	return &Repo{
		Name:         name,
		Channel:      ch,
		Priority:     priority,
		Subpriority:  subpriority,
		whatprovides: make(map[string][]SolvableID),
	}
}

// AddPackage interns one PackageInfo as a Solvable and indexes it by name.
func (r *Repo) AddPackage(info specs.PackageInfo, typ SolvableType) SolvableID {
	id := SolvableID(len(r.solvables))
	r.solvables = append(r.solvables, Solvable{Info: info, Type: typ})
	r.whatprovides[info.Name] = append(r.whatprovides[info.Name], id)
	return id
}

// Get returns the solvable at id.
func (r *Repo) Get(id SolvableID) Solvable { return r.solvables[id] }

// Len returns the number of solvables in the repo.
func (r *Repo) Len() int { return len(r.solvables) }

// All returns every solvable id in the repo, in insertion order.
func (r *Repo) All() []SolvableID {
	ids := make([]SolvableID, len(r.solvables))
	for i := range r.solvables {
		ids[i] = SolvableID(i)
	}
	return ids
}

// ByName returns the whatprovides entry for an exact package name.
func (r *Repo) ByName(name string) []SolvableID {
	return r.whatprovides[name]
}

// PackagesMatchingIDs returns every solvable id whose package satisfies
// ms. If ms names an exact (non-glob) package name, the whatprovides index
// is consulted directly; otherwise every solvable in the repo is scanned.
// installedExcluded, when true, drops any solvable marked Installed (used
// for channel-qualified specs so --force-reinstall sees a fresh provider).
func (r *Repo) PackagesMatchingIDs(ms *specs.MatchSpec, installedExcluded bool) []SolvableID {
	if ms.ChannelRef != "" && !r.channelRefMatches(ms.ChannelRef) {
		return nil
	}

	var candidates []SolvableID
	if name, ok := exactName(ms); ok {
		candidates = r.whatprovides[name]
	} else {
		candidates = r.All()
	}

	var out []SolvableID
	for _, id := range candidates {
		sv := r.solvables[id]
		if sv.Type != TypePackage {
			continue
		}
		if installedExcluded && sv.Installed && ms.ChannelRef != "" {
			continue
		}
		if ms.Contains(sv.Info, r.Channel) {
			out = append(out, id)
		}
	}
	return out
}

// channelRefMatches reports whether an unresolved channel reference (as
// carried on a MatchSpec before resolution) names this repo's channel, by
// display name or canonical id. A repo with no channel never satisfies a
// channel-qualified spec.
func (r *Repo) channelRefMatches(ref string) bool {
	if r.Channel == nil {
		return false
	}
	return ref == r.Channel.DisplayName || ref == r.Channel.CanonicalID
}

// exactName reports the literal name ms matches, if its name component is
// not a glob pattern.
func exactName(ms *specs.MatchSpec) (string, bool) {
	s := ms.Name.String()
	if s == "" || s == "*" {
		return "", false
	}
	for _, r := range s {
		if r == '*' {
			return "", false
		}
	}
	return s, true
}

// MarkInstalled flags id as part of the installed-package set. At most one
// repo is designated installed at a time by the Database.
func (r *Repo) MarkInstalled(id SolvableID) { r.solvables[id].Installed = true }

// SortedByVersionDescending returns ids sorted newest-version-first, used
// by callers picking a default candidate among several providers.
func (r *Repo) SortedByVersionDescending(ids []SolvableID) []SolvableID {
	out := append([]SolvableID(nil), ids...)
	sort.Slice(out, func(i, j int) bool {
		return r.solvables[out[j]].Info.Version.Less(r.solvables[out[i]].Info.Version)
	})
	return out
}
