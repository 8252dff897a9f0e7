package transaction

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mambapkg/condaget/internal/filelock"
)

const trashSuffix = ".mamba_trash"

// trashExisting renames an in-use file so a new one can take its place,
// and appends the trash name to conda-meta/mamba_trash.txt, per spec.md
// §4.G step 6. Writes are serialized in-process by e.writeMu and
// cross-process by a lock on the prefix's conda-meta directory.
func (e *Executor) trashExisting(path string) error {
	trashName := path + trashSuffix
	for i := 1; ; i++ {
		if _, err := os.Lstat(trashName); os.IsNotExist(err) {
			break
		}
		trashName = fmt.Sprintf("%s%s.%d", path, trashSuffix, i)
	}
	if err := os.Rename(path, trashName); err != nil {
		return err
	}
	return e.appendTrashRecord(trashName)
}

func (e *Executor) appendTrashRecord(trashName string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	metaDir := filepath.Join(e.cfg.Prefix, "conda-meta")
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return err
	}
	lock, err := filelock.Acquire(context.Background(), metaDir, e.cfg.LockTimeout)
	if err != nil {
		return fmt.Errorf("locking conda-meta: %w", err)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(filepath.Join(metaDir, "mamba_trash.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, trashName)
	return err
}

// appendURLsTxt records a package's source URL in the cache's urls.txt,
// single-writer per spec.md §4.G step 4 / §5 "Shared resources".
func (e *Executor) appendURLsTxt(url string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	lock, err := filelock.Acquire(context.Background(), e.cfg.CacheRoot, e.cfg.LockTimeout)
	if err != nil {
		return fmt.Errorf("locking cache root: %w", err)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(filepath.Join(e.cfg.CacheRoot, "urls.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, url)
	return err
}

// CleanTrash sweeps prefix/conda-meta/mamba_trash.txt, best-effort
// removing every listed file and dropping only the entries that
// succeeded, per the original implementation's `clean --trash` loop
// (read trash file, attempt removal, keep failures for next time).
func CleanTrash(prefix string) (removed int, err error) {
	trashFile := filepath.Join(prefix, "conda-meta", "mamba_trash.txt")
	f, err := os.Open(trashFile)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var remaining []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry := scanner.Text()
		if entry == "" {
			continue
		}
		if rmErr := os.Remove(entry); rmErr != nil && !os.IsNotExist(rmErr) {
			remaining = append(remaining, entry)
			continue
		}
		removed++
	}
	scanErr := scanner.Err()
	_ = f.Close()
	if scanErr != nil {
		return removed, scanErr
	}

	if len(remaining) == 0 {
		return removed, os.Remove(trashFile)
	}
	out, err := os.Create(trashFile)
	if err != nil {
		return removed, err
	}
	defer out.Close()
	w := bufio.NewWriter(out)
	for _, entry := range remaining {
		fmt.Fprintln(w, entry)
	}
	return removed, w.Flush()
}
