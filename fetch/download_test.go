package fetch

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunSucceedsForEachRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("package contents for " + r.URL.Path))
	}))
	defer server.Close()

	dir := t.TempDir()
	engine := NewEngine(server.Client())
	reqs := []Request{
		{Name: "a", URL: server.URL + "/a.tar.bz2", TargetFilename: filepath.Join(dir, "a.tar.bz2"), KeepCompressed: true},
		{Name: "b", URL: server.URL + "/b.tar.bz2", TargetFilename: filepath.Join(dir, "b.tar.bz2"), KeepCompressed: true},
	}

	results, err := engine.Run(t.Context(), reqs, false)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for i, res := range results {
		if res.Err != nil {
			t.Errorf("result %d: unexpected error %v", i, res.Err)
		}
	}
}

func TestRunKeepCompressedPreservesRawBytes(t *testing.T) {
	content := "BZh9 not actually valid bzip2 but bytes must survive untouched"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(content))
	}))
	defer server.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "numpy-1.26.0-py311.tar.bz2")
	engine := NewEngine(server.Client())
	reqs := []Request{
		{Name: "numpy", URL: server.URL + "/numpy-1.26.0-py311.tar.bz2", TargetFilename: target, KeepCompressed: true},
	}

	results, err := engine.Run(t.Context(), reqs, false)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if results[0].Err != nil {
		t.Fatalf("unexpected error: %v", results[0].Err)
	}
	if results[0].Success.Filename != target {
		t.Errorf("Filename = %q, want %q (unchanged, not decompression-suffix-stripped)", results[0].Success.Filename, target)
	}
	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(got) != content {
		t.Errorf("downloaded content was altered: got %q, want %q", got, content)
	}
}

func TestRunFailFastAbortsBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dir := t.TempDir()
	engine := NewEngine(server.Client(), WithFailFast(true))
	reqs := []Request{
		{Name: "missing", URL: server.URL + "/missing.tar.bz2", TargetFilename: filepath.Join(dir, "missing.tar.bz2")},
	}

	_, err := engine.Run(t.Context(), reqs, false)
	if err != ErrAborted {
		t.Errorf("got %v, want ErrAborted", err)
	}
}

func TestRunRetriesOn503ThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	dir := t.TempDir()
	engine := NewEngine(server.Client(), WithEngineMaxRetries(5))
	reqs := []Request{
		{Name: "flaky", URL: server.URL + "/flaky.tar.bz2", TargetFilename: filepath.Join(dir, "flaky.tar.bz2"), KeepCompressed: true},
	}

	results, err := engine.Run(t.Context(), reqs, false)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if results[0].Err != nil {
		t.Fatalf("expected eventual success, got %v", results[0].Err)
	}
	if attempts != 3 {
		t.Errorf("got %d attempts, want 3", attempts)
	}
}

func TestRun404IsFatalNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dir := t.TempDir()
	engine := NewEngine(server.Client())
	reqs := []Request{
		{Name: "gone", URL: server.URL + "/gone.tar.bz2", TargetFilename: filepath.Join(dir, "gone.tar.bz2")},
	}

	results, _ := engine.Run(t.Context(), reqs, false)
	if results[0].Err == nil {
		t.Fatal("expected an error for 404")
	}
	if attempts != 1 {
		t.Errorf("got %d attempts, want 1 (404 must not retry)", attempts)
	}
	if !strings.Contains(results[0].Err.Error(), "404") {
		t.Errorf("error %q does not mention 404", results[0].Err.Error())
	}
}
