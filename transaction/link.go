package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mambapkg/condaget/specs"
)

// condaMetaRecord is the per-installed-package manifest this executor
// writes to <prefix>/conda-meta/<name>-<version>-<build>.json, recording
// which prefix-relative paths it placed so a later Remove can undo
// exactly what was linked.
type condaMetaRecord struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Build       string   `json:"build"`
	LinkedFiles []string `json:"linked_files"`
}

func metaPath(prefix string, info specs.PackageInfo) string {
	return filepath.Join(prefix, "conda-meta", fmt.Sprintf("%s-%s-%s.json", info.Name, info.VersionString, info.BuildString))
}

// link places every file under pkgDir (excluding info/) into e.cfg.Prefix
// at the same relative path, per policy, per spec.md §4.G step 5. It
// returns true if any existing file had to be trash-renamed to make room,
// per step 6.
func (e *Executor) link(pkgDir string, name string) (bool, error) {
	var rels []string
	trashedAny := false

	err := filepath.WalkDir(pkgDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(pkgDir, p)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		if rel == "info" || strings.HasPrefix(rel, "info"+string(filepath.Separator)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		target := filepath.Join(e.cfg.Prefix, rel)
		trashed, linkErr := e.placeOne(p, target)
		if linkErr != nil {
			return fmt.Errorf("placing %s: %w", rel, linkErr)
		}
		if trashed {
			trashedAny = true
		}
		rels = append(rels, rel)
		return nil
	})
	if err != nil {
		return trashedAny, err
	}

	// info/repodata_record.json travels with the package record, not into
	// the prefix tree, but conda-meta needs to know what to undo.
	if err := e.writeCondaMeta(pkgDir, name, rels); err != nil {
		return trashedAny, err
	}
	return trashedAny, nil
}

func (e *Executor) writeCondaMeta(pkgDir, name string, rels []string) error {
	recordPath := filepath.Join(pkgDir, "info", "repodata_record.json")
	data, err := os.ReadFile(recordPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", recordPath, err)
	}
	var rec struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Build   string `json:"build"`
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("parsing %s: %w", recordPath, err)
	}

	meta := condaMetaRecord{Name: rec.Name, Version: rec.Version, Build: rec.Build, LinkedFiles: rels}
	out, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Join(e.cfg.Prefix, "conda-meta")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, fmt.Sprintf("%s-%s-%s.json", rec.Name, rec.Version, rec.Build)), out, 0o644)
}

// placeOne links or copies src onto target, trash-renaming target first
// if it already exists (spec.md §4.G step 6).
func (e *Executor) placeOne(src, target string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return false, err
	}

	trashed := false
	if _, err := os.Lstat(target); err == nil {
		if err := e.trashExisting(target); err != nil {
			return false, fmt.Errorf("trashing conflicting %s: %w", target, err)
		}
		trashed = true
	}

	switch e.cfg.Policy {
	case AlwaysCopy:
		return trashed, copyFile(src, target)
	case AlwaysSoftlink:
		return trashed, os.Symlink(src, target)
	default: // AllowSoftlinks: hardlink, falling back to copy across filesystems
		if err := os.Link(src, target); err != nil {
			if errors.Is(err, syscall.EXDEV) {
				return trashed, copyFile(src, target)
			}
			return trashed, err
		}
		return trashed, nil
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	fi, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fi.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// unlink removes a previously-linked package's files from the prefix
// using its conda-meta manifest, and removes the manifest itself.
func (e *Executor) unlink(old specs.PackageInfo) error {
	mp := metaPath(e.cfg.Prefix, old)
	data, err := os.ReadFile(mp)
	if err != nil {
		return fmt.Errorf("reading conda-meta for %s: %w", old.Name, err)
	}
	var meta condaMetaRecord
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("parsing conda-meta for %s: %w", old.Name, err)
	}
	for _, rel := range meta.LinkedFiles {
		_ = os.Remove(filepath.Join(e.cfg.Prefix, rel))
	}
	return os.Remove(mp)
}
