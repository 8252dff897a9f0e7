// Package transaction executes a resolved Solution against a target
// prefix: downloading package archives into the local cache, validating
// them, extracting them, authoring repodata_record.json, and linking
// files into the prefix, trash-renaming on conflict.
package transaction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mambapkg/condaget/fetch"
	"github.com/mambapkg/condaget/resolver"
)

// LinkPolicy controls how extracted package files are placed into a prefix.
type LinkPolicy int

const (
	// AllowSoftlinks hardlinks when possible, falling back to a copy
	// across filesystems; this is the default mamba behavior.
	AllowSoftlinks LinkPolicy = iota
	// AlwaysCopy never links, even within the same filesystem.
	AlwaysCopy
	// AlwaysSoftlink always places a symlink back to the cache, never a
	// hardlink or copy.
	AlwaysSoftlink
)

// Config controls where the executor stores archives/extracted packages
// and how it wires them into a prefix.
type Config struct {
	CacheRoot   string
	Prefix      string
	Policy      LinkPolicy
	LockTimeout time.Duration
}

// Executor drives a Solution's downloads, extraction, and linking.
type Executor struct {
	engine *fetch.Engine
	cfg    Config

	// writeMu serializes this process's appends to urls.txt and
	// mamba_trash.txt; cross-process serialization is via a file lock
	// (see internal/filelock) taken per append: the cache root for
	// urls.txt, the prefix's conda-meta directory for mamba_trash.txt.
	writeMu sync.Mutex
}

// NewExecutor builds an Executor that downloads through engine into cfg's
// cache, linking into cfg.Prefix.
func NewExecutor(engine *fetch.Engine, cfg Config) *Executor {
	return &Executor{engine: engine, cfg: cfg}
}

// PackageResult is the outcome of processing one Solution Action.
type PackageResult struct {
	Name    string
	Action  resolver.ActionKind
	Trashed bool // true if linking hit a conflict handled via trash rename
	Err     error
}

// Execute downloads, validates, extracts, and links every non-Remove,
// non-Omit action in sol, and unlinks prefix entries for Remove actions.
// Per spec.md §4.G/§5 ordering: a package's download completes and is
// validated before its own extraction begins; packages are otherwise
// unordered relative to each other.
func (e *Executor) Execute(ctx context.Context, sol *resolver.Solution) ([]PackageResult, error) {
	var toFetch []resolver.Action
	for _, a := range sol.Actions {
		if a.Kind == resolver.ActionRemove || a.Kind == resolver.ActionOmit {
			continue
		}
		toFetch = append(toFetch, a)
	}

	reqs := make([]fetch.Request, len(toFetch))
	for i, a := range toFetch {
		reqs[i] = fetch.Request{
			Name:           a.New.Name,
			URL:            a.New.PackageURL,
			TargetFilename: e.archivePath(a.New.Filename),
			ExpectedSize:   a.New.Size,
			KeepCompressed: true,
		}
	}

	var dlResults []fetch.Result
	if len(reqs) > 0 {
		results, err := e.engine.Run(ctx, reqs, true)
		if err != nil {
			return nil, fmt.Errorf("downloading packages: %w", err)
		}
		dlResults = results
	}

	out := make([]PackageResult, 0, len(sol.Actions))
	for i, a := range toFetch {
		out = append(out, e.processOne(a, dlResults[i]))
	}
	for _, a := range sol.Actions {
		if a.Kind != resolver.ActionRemove {
			continue
		}
		if err := e.unlink(a.New); err != nil {
			out = append(out, PackageResult{Name: a.New.Name, Action: a.Kind, Err: err})
		} else {
			out = append(out, PackageResult{Name: a.New.Name, Action: a.Kind})
		}
	}
	return out, nil
}

func (e *Executor) processOne(a resolver.Action, dl fetch.Result) PackageResult {
	res := PackageResult{Name: a.New.Name, Action: a.Kind}

	if dl.Err != nil {
		res.Err = fmt.Errorf("downloading %s: %w", a.New.Filename, dl.Err)
		return res
	}

	archivePath := e.archivePath(a.New.Filename)
	if err := validateArchive(archivePath, a.New); err != nil {
		_ = os.Remove(archivePath)
		res.Err = err
		return res
	}

	pkgDir := e.packageDir(a.New.Filename)
	if err := extractArchive(archivePath, pkgDir); err != nil {
		res.Err = fmt.Errorf("extracting %s: %w", a.New.Filename, err)
		return res
	}

	if err := writeRepodataRecord(pkgDir, a.New); err != nil {
		res.Err = err
		return res
	}

	if err := e.appendURLsTxt(a.New.PackageURL); err != nil {
		res.Err = err
		return res
	}

	trashed, err := e.link(pkgDir, a.New.Name)
	if err != nil {
		res.Err = fmt.Errorf("linking %s: %w", a.New.Name, err)
		return res
	}
	res.Trashed = trashed
	return res
}

func (e *Executor) archivePath(filename string) string {
	return filepath.Join(e.cfg.CacheRoot, filename)
}

// packageDir is the per-package extraction directory: the archive
// filename with its container extension stripped.
func (e *Executor) packageDir(filename string) string {
	name := stripArchiveExt(filename)
	return filepath.Join(e.cfg.CacheRoot, name)
}

func stripArchiveExt(filename string) string {
	switch {
	case hasSuffix(filename, ".tar.bz2"):
		return filename[:len(filename)-len(".tar.bz2")]
	case hasSuffix(filename, ".conda"):
		return filename[:len(filename)-len(".conda")]
	default:
		return filename
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
