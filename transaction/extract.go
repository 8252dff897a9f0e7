package transaction

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// extractArchive extracts a .tar.bz2 or .conda package archive at path
// into dir, per spec.md §4.G step 3 / §6.4. .conda is a zip container
// holding pkg-*.tar.zst and info-*.tar.zst members, each zstd-compressed
// tars extracted in turn; .tar.bz2 is a single bzip2-compressed tar.
func extractArchive(archivePath, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	switch {
	case strings.HasSuffix(archivePath, ".conda"):
		return extractConda(archivePath, dir)
	case strings.HasSuffix(archivePath, ".tar.bz2"):
		return extractTarBz2(archivePath, dir)
	default:
		return fmt.Errorf("unrecognized archive format: %s", archivePath)
	}
}

func extractTarBz2(archivePath, dir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()
	return extractTar(tar.NewReader(bzip2.NewReader(f)), dir)
}

func extractConda(archivePath, dir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening .conda zip: %w", err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		if !strings.HasSuffix(zf.Name, ".tar.zst") {
			continue
		}
		if err := extractCondaMember(zf, dir); err != nil {
			return fmt.Errorf("extracting %s: %w", zf.Name, err)
		}
	}
	return nil
}

func extractCondaMember(zf *zip.File, dir string) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	zr, err := zstd.NewReader(rc)
	if err != nil {
		return fmt.Errorf("zstd decompress: %w", err)
	}
	defer zr.Close()

	return extractTar(tar.NewReader(zr), dir)
}

// extractTar walks a tar stream, writing each entry under dir. Entry
// names are path.Clean'd and rejected if they would resolve outside dir,
// the same zip/tar-slip guard datawire-ocibuild's layer reader applies.
func extractTar(tr *tar.Reader, dir string) error {
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		cleanName := path.Clean(hdr.Name)
		if strings.HasPrefix(cleanName, "/") || strings.HasPrefix(cleanName, "../") || cleanName == ".." {
			return fmt.Errorf("archive entry outside extraction root: %q", hdr.Name)
		}
		target := filepath.Join(dir, cleanName)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode&0o777))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				_ = out.Close()
				return fmt.Errorf("writing %s: %w", target, err)
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
}
