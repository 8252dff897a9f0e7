package solvable

import (
	"fmt"
	"strings"

	"github.com/mambapkg/condaget/specs"
)

// Database owns every repo loaded for a solve: one or more package repos
// plus at most one installed repo.
type Database struct {
	repos              []*Repo
	installed          *Repo
	pipAsPythonApplied bool
}

// NewDatabase creates an empty database.
func NewDatabase() *Database { return &Database{} }

// AddRepo registers a package repo (from repodata.json, a solv cache, or
// an in-memory package list).
func (db *Database) AddRepo(r *Repo) { db.repos = append(db.repos, r) }

// SetInstalledRepo designates r as the installed-package repo. Only one
// repo may hold this role; a second call replaces the first.
func (db *Database) SetInstalledRepo(r *Repo) {
	db.installed = r
	db.AddRepo(r)
}

// InstalledRepo returns the designated installed repo, or nil.
func (db *Database) InstalledRepo() *Repo { return db.installed }

// Repos returns every repo in priority order (as added; callers sort by
// Priority/Subpriority themselves when it matters for candidate
// preference).
func (db *Database) Repos() []*Repo { return db.repos }

// PackagesMatching aggregates PackagesMatchingIDs across every repo.
func (db *Database) PackagesMatching(ms *specs.MatchSpec) map[*Repo][]SolvableID {
	out := make(map[*Repo][]SolvableID)
	installedExcluded := ms.ChannelRef != ""
	for _, r := range db.repos {
		if ids := r.PackagesMatchingIDs(ms, installedExcluded); len(ids) > 0 {
			out[r] = ids
		}
	}
	return out
}

// ApplyPipAsPythonDependency runs the optional post-load step: every
// "python>=2" solvable gains a synthetic dependency on "pip", and every
// "pip" solvable gains a synthetic dependency on "python" (prereq-marker
// semantics: the cycle is resolved by the SAT engine treating it as a
// soft/optional edge, not a hard requirement loop). Idempotent: calling it
// twice on the same database is a no-op the second time.
func (db *Database) ApplyPipAsPythonDependency() {
	if db.pipAsPythonApplied {
		return
	}
	db.pipAsPythonApplied = true

	pythonV2, _ := specs.ParseVersionSpec(">=2")

	for _, r := range db.repos {
		for i := range r.solvables {
			sv := &r.solvables[i]
			if sv.Type != TypePackage {
				continue
			}
			switch sv.Info.Name {
			case "python":
				if pythonV2.Contains(sv.Info.Version) {
					if !hasDependencyNamed(sv.Info.Dependencies, "pip") {
						sv.Info.Dependencies = append(sv.Info.Dependencies, "pip")
					}
				}
			case "pip":
				if !hasDependencyNamed(sv.Info.Dependencies, "python") {
					sv.Info.Dependencies = append(sv.Info.Dependencies, "python")
				}
			}
		}
		r.pipAdded = true
	}
}

// PipAsPythonApplied reports whether the post-load step has run, used by
// the cache-coherence layer to decide whether a cached solv dump that
// disagrees on this flag must be discarded.
func (db *Database) PipAsPythonApplied() bool { return db.pipAsPythonApplied }

func hasDependencyNamed(deps []string, name string) bool {
	for _, d := range deps {
		if strings.HasPrefix(strings.TrimSpace(d), name) {
			rest := strings.TrimPrefix(strings.TrimSpace(d), name)
			if rest == "" || rest[0] == ' ' || strings.ContainsAny(string(rest[0]), "=<>!") {
				return true
			}
		}
	}
	return false
}

// ErrNoInstalledRepo is returned when an operation requires an installed
// repo but none has been designated.
var ErrNoInstalledRepo = fmt.Errorf("no installed repo designated")
