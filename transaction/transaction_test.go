package transaction

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/mambapkg/condaget/fetch"
	"github.com/mambapkg/condaget/resolver"
	"github.com/mambapkg/condaget/specs"
)

func buildTar(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func zstdCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := zw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// buildConda assembles a minimal .conda archive: a zip holding one
// pkg-*.tar.zst and one info-*.tar.zst member, matching §6.4's container
// shape.
func buildConda(t *testing.T, infoFiles, pkgFiles map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	writeMember := func(name string, files map[string]string) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(zstdCompress(t, buildTar(t, files))); err != nil {
			t.Fatal(err)
		}
	}
	writeMember("info-widget-1.0-0.tar.zst", infoFiles)
	writeMember("pkg-widget-1.0-0.tar.zst", pkgFiles)

	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractTarRoundTrip(t *testing.T) {
	data := buildTar(t, map[string]string{
		"info/index.json": `{"name":"widget"}`,
		"lib/widget.so":   "binary-ish content",
	})
	dir := t.TempDir()
	if err := extractTar(tar.NewReader(bytes.NewReader(data)), dir); err != nil {
		t.Fatalf("extractTar error: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "lib", "widget.so"))
	if err != nil {
		t.Fatalf("reading extracted file: %v", err)
	}
	if string(got) != "binary-ish content" {
		t.Errorf("got %q", got)
	}
}

func TestExtractTarRejectsPathTraversal(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	_ = tw.WriteHeader(&tar.Header{Name: "../../etc/passwd", Mode: 0o644, Size: 0})
	_ = tw.Close()

	dir := t.TempDir()
	err := extractTar(tar.NewReader(bytes.NewReader(buf.Bytes())), dir)
	if err == nil {
		t.Fatal("expected an error for a path-traversal entry")
	}
}

func TestExtractCondaRoundTrip(t *testing.T) {
	condaBytes := buildConda(t,
		map[string]string{"info/index.json": `{"name":"widget","version":"1.0","build":"0"}`},
		map[string]string{"bin/widget": "#!/bin/sh\necho hi\n"},
	)
	archivePath := filepath.Join(t.TempDir(), "widget-1.0-0.conda")
	if err := os.WriteFile(archivePath, condaBytes, 0o644); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := extractArchive(archivePath, dir); err != nil {
		t.Fatalf("extractArchive error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "bin", "widget")); err != nil {
		t.Errorf("expected pkg member extracted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "info", "index.json")); err != nil {
		t.Errorf("expected info member extracted: %v", err)
	}
}

func TestValidateArchiveDetectsSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg.conda")
	if err := os.WriteFile(path, []byte("short"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := validateArchive(path, specs.PackageInfo{Filename: "pkg.conda", Size: 9999})
	if err == nil {
		t.Fatal("expected a size mismatch error")
	}
}

func TestValidateArchiveDetectsSHA256Mismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg.conda")
	content := []byte("archive bytes")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	err := validateArchive(path, specs.PackageInfo{Filename: "pkg.conda", Size: int64(len(content)), SHA256: "0000"})
	if err == nil {
		t.Fatal("expected a sha256 mismatch error")
	}
}

func TestValidateArchiveAcceptsMatchingSHA256(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg.conda")
	content := []byte("archive bytes")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(content)
	info := specs.PackageInfo{Filename: "pkg.conda", Size: int64(len(content)), SHA256: hex.EncodeToString(sum[:])}
	if err := validateArchive(path, info); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExecuteDownloadsExtractsAndLinksConda(t *testing.T) {
	condaBytes := buildConda(t,
		map[string]string{"info/index.json": `{"name":"widget","version":"1.0","build":"0"}`},
		map[string]string{"bin/widget": "#!/bin/sh\necho hi\n"},
	)
	sum := sha256.Sum256(condaBytes)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(condaBytes)
	}))
	defer server.Close()

	cacheRoot := t.TempDir()
	prefix := t.TempDir()
	engine := fetch.NewEngine(server.Client())
	ex := NewExecutor(engine, Config{CacheRoot: cacheRoot, Prefix: prefix, Policy: AlwaysCopy})

	info := specs.PackageInfo{
		Name:          "widget",
		VersionString: "1.0",
		BuildString:   "0",
		Filename:      "widget-1.0-0.conda",
		PackageURL:    server.URL + "/widget-1.0-0.conda",
		Size:          int64(len(condaBytes)),
		SHA256:        hex.EncodeToString(sum[:]),
	}
	sol := &resolver.Solution{Actions: []resolver.Action{{Kind: resolver.ActionInstall, New: info}}}

	results, err := ex.Execute(t.Context(), sol)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("unexpected results: %+v", results)
	}

	linked := filepath.Join(prefix, "bin", "widget")
	if _, err := os.Stat(linked); err != nil {
		t.Errorf("expected %s to be linked: %v", linked, err)
	}
	metaFiles, _ := filepath.Glob(filepath.Join(prefix, "conda-meta", "*.json"))
	if len(metaFiles) != 1 {
		t.Errorf("got %d conda-meta files, want 1", len(metaFiles))
	}
	urlsTxt, err := os.ReadFile(filepath.Join(cacheRoot, "urls.txt"))
	if err != nil || len(urlsTxt) == 0 {
		t.Errorf("expected urls.txt to record the source URL: %v", err)
	}
}

func TestExecuteRemoveUnlinksFiles(t *testing.T) {
	prefix := t.TempDir()
	info := specs.PackageInfo{Name: "widget", VersionString: "1.0", BuildString: "0"}

	binPath := filepath.Join(prefix, "bin", "widget")
	if err := os.MkdirAll(filepath.Dir(binPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(binPath, []byte("x"), 0o755); err != nil {
		t.Fatal(err)
	}
	ex := NewExecutor(fetch.NewEngine(http.DefaultClient), Config{Prefix: prefix})
	if err := os.MkdirAll(filepath.Join(prefix, "conda-meta"), 0o755); err != nil {
		t.Fatal(err)
	}
	meta := condaMetaRecord{Name: info.Name, Version: info.VersionString, Build: info.BuildString, LinkedFiles: []string{"bin/widget"}}
	data, err := json.Marshal(meta)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(metaPath(prefix, info), data, 0o644); err != nil {
		t.Fatal(err)
	}

	sol := &resolver.Solution{Actions: []resolver.Action{{Kind: resolver.ActionRemove, New: info}}}
	results, err := ex.Execute(t.Context(), sol)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("unexpected results: %+v", results)
	}
	if _, err := os.Stat(binPath); !os.IsNotExist(err) {
		t.Error("expected bin/widget to be removed")
	}
}
