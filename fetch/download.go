package fetch

import (
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// ErrAborted is returned by Run when fail_fast is set and a non-
// ignore_failure request fails, whether after its retries or at once on a
// fatal error.
var ErrAborted = errors.New("download batch aborted")

// TrackerState is one DownloadTracker's position in its state machine:
// Waiting -> Preparing -> Running -> {Finished | Waiting (retry) | Failed}.
type TrackerState int

const (
	StateWaiting TrackerState = iota
	StatePreparing
	StateRunning
	StateFinished
	StateFailed
)

// Request is an immutable description of one download.
type Request struct {
	Name            string
	URL             string
	TargetFilename  string
	IgnoreFailure   bool
	ExpectedSize    int64 // 0 if unknown
	IfNoneMatch     string
	IfModifiedSince string

	// KeepCompressed disables the URL-suffix decompression writeDecompressed
	// otherwise applies: package archives (.tar.bz2, .conda) must reach disk
	// byte-for-byte so their sha256/md5 can be verified against the index.
	KeepCompressed bool

	OnProgress func(downloaded, total int64)
	OnSuccess  func(Result)
	OnFailure  func(error)
}

// Transfer captures the response metadata for a completed attempt.
type Transfer struct {
	HTTPStatus     int
	EffectiveURL   string
	DownloadedSize int64
	AverageSpeed   float64 // bytes/sec
}

// Result is the outcome of a download request: exactly one of Success or
// Err is populated.
type Result struct {
	Name    string
	Success *DownloadSuccess
	Err     *DownloadError
}

// DownloadSuccess is returned for a request that completed (possibly via a
// 304, which is also a success: nothing needed re-fetching).
type DownloadSuccess struct {
	Filename     string
	Transfer     Transfer
	CacheControl string
	ETag         string
	LastModified string
	NotModified  bool
}

// DownloadError is returned for a request that failed after retries or was
// rejected outright (e.g. 404).
type DownloadError struct {
	Message          string
	RetryWaitSeconds int
	Transfer         *Transfer
}

func (e *DownloadError) Error() string { return e.Message }

// tracker is the mutable per-request state driven by the engine.
type tracker struct {
	req       Request
	state     TrackerState
	attempt   int
	nextRetry time.Time
}

// Engine runs a bounded-parallelism batch of downloads.
type Engine struct {
	client          *http.Client
	userAgent       string
	downloadThreads int
	maxRetries      int
	baseTimeout     time.Duration
	backoff         float64
	failFast        bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithDownloadThreads sets the parallelism cap.
func WithDownloadThreads(n int) EngineOption {
	return func(e *Engine) { e.downloadThreads = n }
}

// WithEngineMaxRetries sets the maximum retry count per request.
func WithEngineMaxRetries(n int) EngineOption {
	return func(e *Engine) { e.maxRetries = n }
}

// WithFailFast aborts the whole batch on the first non-ignore_failure
// request that fails, whether after its retries or at once on a fatal
// error.
func WithFailFast(v bool) EngineOption {
	return func(e *Engine) { e.failFast = v }
}

// NewEngine creates a download engine that sends every request through
// httpClient; it sets no transport or timeouts of its own.
func NewEngine(httpClient *http.Client, opts ...EngineOption) *Engine {
	e := &Engine{
		client:          httpClient,
		userAgent:       "condaget/1.0",
		downloadThreads: 5,
		maxRetries:      5,
		baseTimeout:     time.Second,
		backoff:         2.0,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes every request in reqs, honoring download_threads
// parallelism, and returns one Result per request in the same order.
// When sortBySize is true, requests are scheduled largest-expected-size first.
func (e *Engine) Run(ctx context.Context, reqs []Request, sortBySize bool) ([]Result, error) {
	order := make([]int, len(reqs))
	for i := range order {
		order[i] = i
	}
	if sortBySize {
		sort.SliceStable(order, func(i, j int) bool {
			return reqs[order[i]].ExpectedSize > reqs[order[j]].ExpectedSize
		})
	}

	results := make([]Result, len(reqs))
	sem := make(chan struct{}, e.downloadThreads)
	var wg sync.WaitGroup
	var aborted sync.Once
	abortErr := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, idx := range order {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			res := e.runOne(runCtx, reqs[i])
			results[i] = res

			if res.Err != nil {
				if reqs[i].OnFailure != nil {
					reqs[i].OnFailure(res.Err)
				}
				if e.failFast && !reqs[i].IgnoreFailure {
					aborted.Do(func() {
						abortErr <- ErrAborted
						cancel()
					})
				}
				return
			}
			if reqs[i].OnSuccess != nil {
				reqs[i].OnSuccess(res)
			}
		}(idx)
	}

	wg.Wait()

	select {
	case err := <-abortErr:
		return results, err
	default:
		return results, nil
	}
}

func (e *Engine) runOne(ctx context.Context, req Request) Result {
	t := &tracker{req: req, state: StateWaiting}

	for {
		select {
		case <-ctx.Done():
			return Result{Name: req.Name, Err: &DownloadError{Message: ctx.Err().Error()}}
		default:
		}

		if !t.nextRetry.IsZero() {
			wait := time.Until(t.nextRetry)
			if wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return Result{Name: req.Name, Err: &DownloadError{Message: ctx.Err().Error()}}
				}
			}
		}

		t.state = StatePreparing
		t.state = StateRunning
		success, transientErr, fatalErr, retryAfter := e.attempt(ctx, req)
		if success != nil {
			t.state = StateFinished
			return Result{Name: req.Name, Success: success}
		}
		if fatalErr != nil {
			t.state = StateFailed
			return Result{Name: req.Name, Err: fatalErr}
		}

		t.attempt++
		if t.attempt > e.maxRetries {
			t.state = StateFailed
			return Result{Name: req.Name, Err: &DownloadError{Message: transientErr.Error(), RetryWaitSeconds: retryAfter}}
		}

		t.state = StateWaiting
		delay := time.Duration(float64(e.baseTimeout) * math.Pow(e.backoff, float64(t.attempt-1)))
		if retryAfter > 0 {
			ra := time.Duration(retryAfter) * time.Second
			if ra > delay {
				delay = ra
			}
		}
		t.nextRetry = time.Now().Add(delay)
	}
}

// attempt runs one HTTP round trip. It returns exactly one of: a success,
// a transient (retryable) error, or a fatal error. retryAfter carries a
// server-provided Retry-After value in seconds, or 0.
func (e *Engine) attempt(ctx context.Context, req Request) (success *DownloadSuccess, transient error, fatal *DownloadError, retryAfter int) {
	if strings.HasPrefix(req.URL, "file://") {
		s, err := e.attemptFile(req)
		if err != nil {
			return nil, nil, &DownloadError{Message: err.Error()}, 0
		}
		return s, nil, nil, 0
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, nil, &DownloadError{Message: err.Error()}, 0
	}
	httpReq.Header.Set("User-Agent", e.userAgent)
	if req.IfNoneMatch != "" {
		httpReq.Header.Set("If-None-Match", req.IfNoneMatch)
	}
	if req.IfModifiedSince != "" {
		httpReq.Header.Set("If-Modified-Since", req.IfModifiedSince)
	}

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transport error: %w", err), nil, 0
	}
	defer func() { _ = resp.Body.Close() }()

	cacheControl := cleanHeader(resp.Header.Get("Cache-Control"))
	etag := cleanHeader(resp.Header.Get("ETag"))
	lastModified := cleanHeader(resp.Header.Get("Last-Modified"))

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return &DownloadSuccess{
			Filename:     req.TargetFilename,
			NotModified:  true,
			CacheControl: cacheControl,
			ETag:         etag,
			LastModified: lastModified,
			Transfer:     Transfer{HTTPStatus: resp.StatusCode, EffectiveURL: req.URL},
		}, nil, nil, 0

	case resp.StatusCode == http.StatusOK:
		n, err := writeDecompressed(req.URL, req.TargetFilename, resp.Body, req.OnProgress, req.KeepCompressed)
		if err != nil {
			_ = os.Remove(req.TargetFilename)
			return nil, nil, &DownloadError{Message: err.Error()}, 0
		}
		elapsed := time.Since(start).Seconds()
		speed := 0.0
		if elapsed > 0 {
			speed = float64(n) / elapsed
		}
		return &DownloadSuccess{
			Filename:     targetFilename(req.URL, req.TargetFilename, req.KeepCompressed),
			CacheControl: cacheControl,
			ETag:         etag,
			LastModified: lastModified,
			Transfer: Transfer{
				HTTPStatus:     resp.StatusCode,
				EffectiveURL:   req.URL,
				DownloadedSize: n,
				AverageSpeed:   speed,
			},
		}, nil, nil, 0

	case resp.StatusCode == http.StatusNotFound:
		return nil, nil, &DownloadError{Message: fmt.Sprintf("404: %s", req.URL)}, 0

	case resp.StatusCode == http.StatusRequestEntityTooLarge, resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		ra := 0
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				ra = secs
			}
		}
		return nil, fmt.Errorf("retryable status %d", resp.StatusCode), nil, ra

	default:
		return nil, nil, &DownloadError{Message: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, req.URL)}, 0
	}
}

func (e *Engine) attemptFile(req Request) (*DownloadSuccess, error) {
	path := strings.TrimPrefix(req.URL, "file://")
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	n, err := writeDecompressed(req.URL, req.TargetFilename, f, req.OnProgress, req.KeepCompressed)
	if err != nil {
		return nil, err
	}
	return &DownloadSuccess{
		Filename: targetFilename(req.URL, req.TargetFilename, req.KeepCompressed),
		Transfer: Transfer{EffectiveURL: req.URL, DownloadedSize: n},
	}, nil
}

// writeDecompressed streams src through the decompressor implied by url's
// suffix (.zst or .bz2), writing plaintext bytes to target (with the
// compression suffix stripped), unless keepCompressed is set, in which
// case src is copied to target verbatim. Progress callbacks report bytes
// of compressed input consumed, which is the only size the caller knows
// in advance (ExpectedSize refers to the compressed transfer).
func writeDecompressed(url, target string, src io.Reader, onProgress func(int64, int64), keepCompressed bool) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	out, err := os.Create(targetFilename(url, target, keepCompressed))
	if err != nil {
		return 0, err
	}
	defer out.Close()

	counting := &countingReader{r: src, onProgress: onProgress}

	var reader io.Reader = counting
	var closer func()

	if !keepCompressed {
		switch {
		case strings.HasSuffix(url, ".zst"):
			zr, err := zstd.NewReader(counting)
			if err != nil {
				return 0, fmt.Errorf("zstd decompress: %w", err)
			}
			reader = zr
			closer = zr.Close
		case strings.HasSuffix(url, ".bz2"):
			reader = bzip2.NewReader(counting)
		}
	}

	n, err := io.Copy(out, reader)
	if closer != nil {
		closer()
	}
	if err != nil {
		return 0, fmt.Errorf("decompress write failed: %w", err)
	}
	return n, nil
}

// targetFilename is the on-disk name writeDecompressed writes to: target
// unchanged when keepCompressed, otherwise target with its own .zst/.bz2
// suffix stripped (url is not consulted).
func targetFilename(url, target string, keepCompressed bool) string {
	if keepCompressed {
		return target
	}
	return stripCompressionSuffix(target)
}

type countingReader struct {
	r          io.Reader
	n          int64
	onProgress func(int64, int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.onProgress != nil {
		c.onProgress(c.n, 0)
	}
	return n, err
}

func stripCompressionSuffix(name string) string {
	name = strings.TrimSuffix(name, ".zst")
	name = strings.TrimSuffix(name, ".bz2")
	return name
}

func cleanHeader(v string) string {
	v = strings.ReplaceAll(v, "\r", "")
	v = strings.ReplaceAll(v, "\n", "")
	return strings.TrimSpace(v)
}
