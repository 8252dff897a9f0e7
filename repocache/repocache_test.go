package repocache

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCheckMissingWhenNoState(t *testing.T) {
	dir := t.TempDir()
	e := NewEntry(dir, "https://example.com/conda-forge/linux-64/repodata.json", "conda-forge")

	v, _, err := Check(e, Config{})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if v != ValidityMissing {
		t.Errorf("got %v, want ValidityMissing", v)
	}
}

func TestCheckStaleWhenRepodataDiffersFromState(t *testing.T) {
	dir := t.TempDir()
	e := NewEntry(dir, "https://example.com/conda-forge/linux-64/repodata.json", "conda-forge")
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(e.RepodataPath, []byte(`{"packages":{}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	// state.json records a size that no longer matches the file on disk.
	st := &state{Size: 999999, ModTimeNS: 1, FetchedAtNS: time.Now().UnixNano()}
	if err := writeState(e.StatePath, st); err != nil {
		t.Fatal(err)
	}

	v, _, err := Check(e, Config{TTLMode: TTLFixedSeconds, FixedTTL: time.Hour})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if v != ValidityStale {
		t.Errorf("got %v, want ValidityStale", v)
	}
}

func TestCheckFreshWithinTTL(t *testing.T) {
	dir := t.TempDir()
	e := NewEntry(dir, "https://example.com/conda-forge/linux-64/repodata.json", "conda-forge")
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	body := []byte(`{"packages":{}}`)
	if err := os.WriteFile(e.RepodataPath, body, 0o644); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Stat(e.RepodataPath)
	if err != nil {
		t.Fatal(err)
	}
	st := &state{Size: fi.Size(), ModTimeNS: fi.ModTime().UnixNano(), FetchedAtNS: time.Now().UnixNano()}
	if err := writeState(e.StatePath, st); err != nil {
		t.Fatal(err)
	}

	v, _, err := Check(e, Config{TTLMode: TTLFixedSeconds, FixedTTL: time.Hour})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if v != ValidityFresh {
		t.Errorf("got %v, want ValidityFresh", v)
	}
}

func TestRefresh200ReplacesAtomically(t *testing.T) {
	content := `{"info":{"subdir":"linux-64"},"packages":{}}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Cache-Control", "max-age=3600")
		_, _ = w.Write([]byte(content))
	}))
	defer server.Close()

	dir := t.TempDir()
	e := NewEntry(dir, server.URL, "conda-forge")

	st, changed, err := Refresh(t.Context(), server.Client(), e, server.URL, nil, false, Config{})
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if !changed {
		t.Error("expected changed=true on first fetch")
	}
	if st.ETag != `"v1"` {
		t.Errorf("ETag = %q, want %q", st.ETag, `"v1"`)
	}
	if st.URL != server.URL {
		t.Errorf("URL = %q, want %q", st.URL, server.URL)
	}
	got, err := os.ReadFile(e.RepodataPath)
	if err != nil {
		t.Fatalf("reading cached repodata: %v", err)
	}
	if string(got) != content {
		t.Errorf("cached content = %q, want %q", got, content)
	}
	if _, err := os.Stat(filepath.Join(e.Dir, "repodata.json.tmp")); !os.IsNotExist(err) {
		t.Error("expected temp file to be renamed away, not left behind")
	}
}

func TestRefresh304ExtendsFreshness(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	dir := t.TempDir()
	e := NewEntry(dir, server.URL, "conda-forge")

	st, _, err := Refresh(t.Context(), server.Client(), e, server.URL, nil, false, Config{})
	if err != nil {
		t.Fatalf("first Refresh error: %v", err)
	}

	st2, changed, err := Refresh(t.Context(), server.Client(), e, server.URL, st, false, Config{})
	if err != nil {
		t.Fatalf("second Refresh error: %v", err)
	}
	if changed {
		t.Error("expected changed=false on 304")
	}
	if st2.FetchedAtNS <= st.FetchedAtNS {
		t.Error("expected FetchedAtNS to advance on 304")
	}
	if st2.URL != server.URL {
		t.Errorf("URL = %q, want %q carried over from prevState", st2.URL, server.URL)
	}
	if calls != 2 {
		t.Errorf("got %d requests, want 2", calls)
	}
}
