package solvable

import (
	"bytes"
	"encoding/gob"
	"errors"
	"io"

	"github.com/mambapkg/condaget/channel"
	"github.com/mambapkg/condaget/specs"
)

// ErrCacheNotLoaded is returned when a solv cache's origin metadata or
// tool version doesn't match what the caller expected: the cache is
// ignored and repodata.json must be re-parsed instead. Callers that need
// a richer error (e.g. which field mismatched) should wrap this with
// errors.Is-compatible context rather than replacing it.
var ErrCacheNotLoaded = errors.New("solv cache not loaded: origin or tool version mismatch")

// CacheOrigin is the triple a solv cache is tagged with at write time and
// checked against at read time.
type CacheOrigin struct {
	URL  string
	ETag string
	Mod  string
}

type solvCacheHeader struct {
	ToolVersion string
	Origin      CacheOrigin
	PipAdded    bool
}

type solvCacheRecord struct {
	Info specs.PackageInfo
	Type SolvableType
}

type solvCacheFile struct {
	Header   solvCacheHeader
	Records  []solvCacheRecord
	RepoName string
}

// ToolVersion is this engine's solv-cache format tag: "2.0_<solver lib
// version>" per the data model; the solver-library component here is a
// constant since there is no separate native SAT library version to
// encode.
const ToolVersion = "2.0_condaget1"

// WriteSolvCache serializes r's package set into a tool-versioned binary
// dump tagged with origin and the database's pip-as-python flag.
func WriteSolvCache(w io.Writer, r *Repo, origin CacheOrigin, pipAdded bool) error {
	file := solvCacheFile{
		Header: solvCacheHeader{
			ToolVersion: ToolVersion,
			Origin:      origin,
			PipAdded:    pipAdded,
		},
		RepoName: r.Name,
	}
	for _, sv := range r.solvables {
		file.Records = append(file.Records, solvCacheRecord{Info: sv.Info, Type: sv.Type})
	}
	return gob.NewEncoder(w).Encode(&file)
}

// ReadSolvCache deserializes a solv cache, trusting it only if its origin
// and tool version exactly match what the caller expects; otherwise it
// returns ErrCacheNotLoaded and the caller falls back to parsing
// repodata.json.
func ReadSolvCache(r io.Reader, ch *channel.Channel, expectedOrigin CacheOrigin, priority, subpriority int) (*Repo, bool, error) {
	var file solvCacheFile
	if err := gob.NewDecoder(r).Decode(&file); err != nil {
		return nil, false, err
	}

	if file.Header.ToolVersion != ToolVersion || file.Header.Origin != expectedOrigin {
		return nil, false, ErrCacheNotLoaded
	}

	repo := NewRepo(file.RepoName, ch, priority, subpriority)
	repo.pipAdded = file.Header.PipAdded
	for _, rec := range file.Records {
		repo.AddPackage(rec.Info, rec.Type)
	}
	return repo, file.Header.PipAdded, nil
}

// Bytes serializes r to an in-memory buffer, a convenience for callers
// that want the blob before deciding where to persist it (e.g. atomic
// rename in repocache).
func Bytes(r *Repo, origin CacheOrigin, pipAdded bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteSolvCache(&buf, r, origin, pipAdded); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
