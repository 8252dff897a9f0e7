package solvable

import (
	"bytes"
	"errors"
	"testing"

	"github.com/mambapkg/condaget/specs"
)

func TestSolvCacheRoundTrip(t *testing.T) {
	r := NewRepo("conda-forge/linux-64", nil, 0, 0)
	r.AddPackage(specs.PackageInfo{Name: "numpy", Version: mustVersion(t, "1.24.0"), Filename: "numpy-1.24.0-py310h1.tar.bz2"}, TypePackage)
	r.AddPackage(specs.PackageInfo{Name: "scipy", Version: mustVersion(t, "1.10.0"), Filename: "scipy-1.10.0-py310h1.tar.bz2"}, TypePackage)

	origin := CacheOrigin{URL: "https://conda.anaconda.org/conda-forge/linux-64/repodata.json", ETag: "e1", Mod: "m1"}

	var buf bytes.Buffer
	if err := WriteSolvCache(&buf, r, origin, true); err != nil {
		t.Fatalf("WriteSolvCache error: %v", err)
	}

	got, pipAdded, err := ReadSolvCache(bytes.NewReader(buf.Bytes()), nil, origin, 0, 0)
	if err != nil {
		t.Fatalf("ReadSolvCache with matching origin failed: %v", err)
	}
	if !pipAdded {
		t.Error("expected pipAdded flag to round-trip as true")
	}
	if got.Len() != r.Len() {
		t.Fatalf("got %d packages, want %d", got.Len(), r.Len())
	}
	for _, id := range got.All() {
		if got.Get(id).Info.Name != r.Get(id).Info.Name {
			t.Errorf("package %d name mismatch: got %q want %q", id, got.Get(id).Info.Name, r.Get(id).Info.Name)
		}
	}

	wrongOrigin := origin
	wrongOrigin.ETag = "different"
	_, _, err = ReadSolvCache(bytes.NewReader(buf.Bytes()), nil, wrongOrigin, 0, 0)
	if !errors.Is(err, ErrCacheNotLoaded) {
		t.Errorf("expected ErrCacheNotLoaded for mismatched origin, got %v", err)
	}
}
