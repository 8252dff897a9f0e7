// Package repocache manages the on-disk repodata cache: per (channel,
// platform) a (repodata.json, <name>.state.json, <name>.solv) triple
// under a directory named from a hash of the repodata URL, with
// conditional-refresh coherence against the upstream server.
package repocache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/mambapkg/condaget/internal/filelock"
	"github.com/mambapkg/condaget/solvable"
)

// ErrCacheNotLoaded wraps solvable.ErrCacheNotLoaded so callers that only
// import repocache still satisfy errors.Is against the solvable sentinel.
var ErrCacheNotLoaded = solvable.ErrCacheNotLoaded

// TTLMode selects how local_repodata_ttl is interpreted.
type TTLMode int

const (
	// TTLAlwaysRefetch corresponds to local_repodata_ttl == 0.
	TTLAlwaysRefetch TTLMode = iota
	// TTLHonorMaxAge corresponds to local_repodata_ttl == 1: honor the
	// server's Cache-Control: max-age.
	TTLHonorMaxAge
	// TTLFixedSeconds uses a configured duration regardless of the server.
	TTLFixedSeconds
)

// Config controls cache directory layout and freshness policy.
type Config struct {
	CacheRoot   string
	TTLMode     TTLMode
	FixedTTL    time.Duration
	Offline     bool
	LockTimeout time.Duration
	AuthHeader  func(url string) (name, value string)
}

// state is the JSON sidecar recorded next to repodata.json.
type state struct {
	URL                string       `json:"url"`
	Size               int64        `json:"size"`
	ModTimeNS          int64        `json:"mtime_ns"`
	ETag               string       `json:"etag,omitempty"`
	LastModified       string       `json:"last_modified,omitempty"`
	CacheControlMaxAge int          `json:"cache_control_max_age,omitempty"`
	FetchedAtNS        int64        `json:"fetched_at_ns"`
	HasZst             *hasZstEntry `json:"has_zst,omitempty"`
	PipAdded           bool         `json:"pip_added"`
	ToolVersion        string       `json:"tool_version"`
}

type hasZstEntry struct {
	Value       bool  `json:"value"`
	CheckedAtNS int64 `json:"checked_at_ns"`
}

const hasZstTTL = 14 * 24 * time.Hour

// Dir returns the cache directory for a repodata URL: a hex-encoded
// sha1 hash of the URL, so two channel aliases that resolve to the same
// upstream share a cache entry.
func Dir(cacheRoot, repodataURL string) string {
	sum := sha1.Sum([]byte(repodataURL))
	return filepath.Join(cacheRoot, hex.EncodeToString(sum[:]))
}

// Entry names the three files for a (channel, platform) pair within its
// cache directory.
type Entry struct {
	Dir          string
	RepodataPath string
	StatePath    string
	SolvPath     string
}

// NewEntry builds the file triple for a cache directory and base name.
func NewEntry(cacheRoot, repodataURL, name string) Entry {
	dir := Dir(cacheRoot, repodataURL)
	return Entry{
		Dir:          dir,
		RepodataPath: filepath.Join(dir, "repodata.json"),
		StatePath:    filepath.Join(dir, name+".state.json"),
		SolvPath:     filepath.Join(dir, name+".solv"),
	}
}

// Validity reports what a Load needs to do.
type Validity int

const (
	// ValidityFresh means the on-disk repodata.json can be used as-is.
	ValidityFresh Validity = iota
	// ValidityStale means a conditional refresh must be attempted.
	ValidityStale
	// ValidityMissing means there is nothing on disk to validate.
	ValidityMissing
)

// Check implements the 3-step validity check from the cache coherence
// protocol: state.json agreement with the on-disk file, then TTL, with
// the solv-cache checked independently once the JSON is accepted.
func Check(e Entry, cfg Config) (Validity, *state, error) {
	st, err := readState(e.StatePath)
	if err != nil {
		return ValidityMissing, nil, nil
	}

	fi, err := os.Stat(e.RepodataPath)
	if err != nil {
		return ValidityMissing, nil, nil
	}
	if fi.Size() != st.Size || fi.ModTime().UnixNano() != st.ModTimeNS {
		return ValidityStale, st, nil
	}

	if cfg.Offline {
		return ValidityFresh, st, nil
	}

	switch cfg.TTLMode {
	case TTLAlwaysRefetch:
		return ValidityStale, st, nil
	case TTLHonorMaxAge:
		age := time.Since(time.Unix(0, st.FetchedAtNS))
		maxAge := time.Duration(st.CacheControlMaxAge) * time.Second
		if age > maxAge {
			return ValidityStale, st, nil
		}
		return ValidityFresh, st, nil
	default: // TTLFixedSeconds
		age := time.Since(time.Unix(0, st.FetchedAtNS))
		if age > cfg.FixedTTL {
			return ValidityStale, st, nil
		}
		return ValidityFresh, st, nil
	}
}

// SolvCacheValid reports whether the solv cache at e.SolvPath can be
// trusted given the already-validated JSON state: its mtime must be no
// older than repodata.json, and the state's pip_added flag and
// tool_version must match what the caller expects. The solv cache's own
// recorded origin is not checked here; ReadSolvCache checks it on load.
func SolvCacheValid(e Entry, st *state, expectedPipAdded bool) bool {
	solvInfo, err := os.Stat(e.SolvPath)
	if err != nil {
		return false
	}
	jsonInfo, err := os.Stat(e.RepodataPath)
	if err != nil {
		return false
	}
	if solvInfo.ModTime().Before(jsonInfo.ModTime()) {
		return false
	}
	if st.PipAdded != expectedPipAdded {
		return false
	}
	if st.ToolVersion != solvable.ToolVersion {
		return false
	}
	return true
}

func readState(path string) (*state, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// NeedsZstProbe reports whether the cached has_zst flag is missing or
// older than the 14-day probe TTL.
func NeedsZstProbe(st *state) bool {
	if st == nil || st.HasZst == nil {
		return true
	}
	return time.Since(time.Unix(0, st.HasZst.CheckedAtNS)) > hasZstTTL
}

// ProbeZst issues a HEAD request for repodataURL+".zst" and reports
// whether the server has it.
func ProbeZst(ctx context.Context, client *http.Client, repodataURL string, authHeader func(string) (string, string)) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, repodataURL+".zst", nil)
	if err != nil {
		return false
	}
	if authHeader != nil {
		if name, value := authHeader(repodataURL); name != "" {
			req.Header.Set(name, value)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Refresh performs a conditional GET against repodataURL (or its .zst
// variant, if hasZst is true), updates repodata.json and state.json
// under a directory lock, and returns the new state plus whether
// repodata.json was rewritten (false on a 304).
func Refresh(ctx context.Context, client *http.Client, e Entry, repodataURL string, prevState *state, hasZst bool, cfg Config) (*state, bool, error) {
	lock, err := filelock.Acquire(ctx, e.Dir, cfg.LockTimeout)
	if err != nil {
		return nil, false, fmt.Errorf("acquiring cache lock: %w", err)
	}
	defer lock.Unlock()

	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return nil, false, err
	}

	fetchURL := repodataURL
	if hasZst {
		fetchURL += ".zst"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, false, err
	}
	if prevState != nil {
		if prevState.ETag != "" {
			req.Header.Set("If-None-Match", prevState.ETag)
		}
		if prevState.LastModified != "" {
			req.Header.Set("If-Modified-Since", prevState.LastModified)
		}
	}
	if cfg.AuthHeader != nil {
		if name, value := cfg.AuthHeader(repodataURL); name != "" {
			req.Header.Set(name, value)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("fetching repodata: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotModified {
		st := *prevState
		st.FetchedAtNS = time.Now().UnixNano()
		if err := writeState(e.StatePath, &st); err != nil {
			return nil, false, err
		}
		return &st, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, fetchURL)
	}

	if _, err := writeDecompressedAtomic(fetchURL, e.RepodataPath, resp); err != nil {
		return nil, false, err
	}

	fi, err := os.Stat(e.RepodataPath)
	if err != nil {
		return nil, false, err
	}

	maxAge := 0
	if cc := resp.Header.Get("Cache-Control"); cc != "" {
		maxAge = parseMaxAge(cc)
	}

	st := &state{
		URL:                repodataURL,
		Size:               fi.Size(),
		ModTimeNS:          fi.ModTime().UnixNano(),
		ETag:               strings.TrimSpace(resp.Header.Get("ETag")),
		LastModified:       strings.TrimSpace(resp.Header.Get("Last-Modified")),
		CacheControlMaxAge: maxAge,
		FetchedAtNS:        time.Now().UnixNano(),
		ToolVersion:        solvable.ToolVersion,
	}
	if prevState != nil {
		st.HasZst = prevState.HasZst
	}

	if err := writeState(e.StatePath, st); err != nil {
		return nil, false, err
	}
	return st, true, nil
}

// writeDecompressedAtomic streams resp's body (decompressing if fetchURL
// ends in .zst, via fetch's shared decompression helper semantics) to a
// temp file and atomically renames it onto target.
func writeDecompressedAtomic(fetchURL, target string, resp *http.Response) (int64, error) {
	tmp := target + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}

	var n int64
	var reader io.Reader = resp.Body
	if strings.HasSuffix(fetchURL, ".zst") {
		zr, zerr := zstd.NewReader(resp.Body)
		if zerr != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return 0, fmt.Errorf("zstd decompress: %w", zerr)
		}
		defer zr.Close()
		reader = zr
	}

	n, err = io.Copy(f, reader)
	closeErr := f.Close()
	if err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if closeErr != nil {
		_ = os.Remove(tmp)
		return 0, closeErr
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	return n, nil
}

func writeState(path string, st *state) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func parseMaxAge(cacheControl string) int {
	for _, part := range strings.Split(cacheControl, ",") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "max-age="); ok {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
	}
	return 0
}
