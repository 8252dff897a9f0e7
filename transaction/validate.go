package transaction

import (
	"crypto/md5" //nolint:gosec // package index integrity, not a security boundary
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/mambapkg/condaget/specs"
)

// validateArchive checks a downloaded archive's size and then its sha256
// (preferred) or md5 against info. A mismatch on either is fatal, per
// spec.md §4.G step 2; the caller is responsible for deleting the file.
func validateArchive(path string, info specs.PackageInfo) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size != 0 && fi.Size() != info.Size {
		return fmt.Errorf("%s: size mismatch: got %d, expected %d", info.Filename, fi.Size(), info.Size)
	}

	if info.SHA256 == "" && info.MD5 == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if info.SHA256 != "" {
		h := sha256.New()
		if _, err := io.Copy(h, f); err != nil {
			return fmt.Errorf("hashing %s: %w", path, err)
		}
		got := hex.EncodeToString(h.Sum(nil))
		if got != info.SHA256 {
			return fmt.Errorf("%s: sha256 mismatch: got %s, expected %s", info.Filename, got, info.SHA256)
		}
		return nil
	}

	h := md5.New() //nolint:gosec
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hashing %s: %w", path, err)
	}
	got := hex.EncodeToString(h.Sum(nil))
	if got != info.MD5 {
		return fmt.Errorf("%s: md5 mismatch: got %s, expected %s", info.Filename, got, info.MD5)
	}
	return nil
}
