// Package specs implements the conda match-spec and version algebra: Version
// comparison, VersionSpec/BuildNumberSpec/GlobSpec/RegexSpec/ChimeraStringSpec
// predicates, and the composite MatchSpec over PackageInfo.
package specs

import (
	"fmt"
	"strconv"
	"strings"
)

// atomKind distinguishes the two kinds of Version atom.
type atomKind uint8

const (
	atomInt atomKind = iota
	atomStr
)

// special string-atom ranks. rankEmpty is the implicit padding atom used
// when one version has fewer segments than the other, i.e. the "final
// release" position. Unrecognized string atoms (alpha/beta/rc-style
// pre-release tags included) rank below that, and "dev" ranks below
// those, so that e.g.
// "1.0a" < "1.0": a trailing letter tag marks a pre-release, not a
// successor. Plain (non-special) string atoms share rankMid and are then
// ordered lexicographically among themselves.
const (
	rankDev   = -3
	rankMid   = -2
	rankEmpty = -1
	rankPost  = 1
)

type atom struct {
	kind atomKind
	n    int64
	s    string // lowercased; only meaningful when kind == atomStr
}

func rankOf(s string) int {
	switch s {
	case "dev":
		return rankDev
	case "":
		return rankEmpty
	case "post":
		return rankPost
	default:
		return rankMid
	}
}

func compareAtoms(a, b atom) int {
	switch {
	case a.kind == atomInt && b.kind == atomInt:
		switch {
		case a.n < b.n:
			return -1
		case a.n > b.n:
			return 1
		default:
			return 0
		}
	case a.kind == atomStr && b.kind == atomStr:
		ra, rb := rankOf(a.s), rankOf(b.s)
		if ra != rb {
			return cmpInt(ra, rb)
		}
		return strings.Compare(a.s, b.s)
	case a.kind == atomInt && b.kind == atomStr:
		// A bare number outranks any string atom, except "post" which
		// marks a post-release and so outranks any additional numeric
		// suffix.
		if rankOf(b.s) == rankPost {
			return -1
		}
		return 1
	default: // a is string, b is int
		return -compareAtoms(b, a)
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// segment is an ordered run of atoms produced by splitting a "."/"-"/"_"
// delimited piece of the version string into alternating digit/non-digit
// runs.
type segment []atom

func compareSegments(a, b segment) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		av := emptyAtom()
		if i < len(a) {
			av = a[i]
		}
		bv := emptyAtom()
		if i < len(b) {
			bv = b[i]
		}
		if c := compareAtoms(av, bv); c != 0 {
			return c
		}
	}
	return 0
}

func emptyAtom() atom { return atom{kind: atomStr, s: ""} }

// Version is a parsed conda-style version: an epoch, a sequence of
// segments (each itself a sequence of atoms), and an optional local
// version (same segment/atom shape).
type Version struct {
	epoch    int64
	segments []segment
	local    []segment
	orig     string
}

// ParseVersion parses a conda-style version string. Parsing is total on
// well-formed input: `epoch!segments[+local]`.
func ParseVersion(s string) (Version, error) {
	orig := s
	if s == "" {
		return Version{}, &ParseError{Input: orig, Reason: "empty version"}
	}

	var epoch int64
	rest := s
	if idx := strings.IndexByte(s, '!'); idx >= 0 {
		epochStr := s[:idx]
		n, err := strconv.ParseInt(epochStr, 10, 64)
		if err != nil {
			return Version{}, &ParseError{Input: orig, Reason: "malformed epoch"}
		}
		epoch = n
		rest = s[idx+1:]
	}

	var localPart string
	if idx := strings.IndexByte(rest, '+'); idx >= 0 {
		localPart = rest[idx+1:]
		rest = rest[:idx]
	}

	segs, err := parseSegments(rest)
	if err != nil {
		return Version{}, &ParseError{Input: orig, Reason: err.Error()}
	}

	var localSegs []segment
	if localPart != "" {
		localSegs, err = parseSegments(localPart)
		if err != nil {
			return Version{}, &ParseError{Input: orig, Reason: err.Error()}
		}
	}

	return Version{epoch: epoch, segments: segs, local: localSegs, orig: orig}, nil
}

func parseSegments(s string) ([]segment, error) {
	if s == "" {
		return nil, fmt.Errorf("empty version body")
	}
	parts := splitAny(s, ".-_")
	segs := make([]segment, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("empty version segment")
		}
		segs = append(segs, parseAtoms(p))
	}
	return segs, nil
}

func splitAny(s string, seps string) []string {
	isSep := func(r rune) bool { return strings.ContainsRune(seps, r) }
	return strings.FieldsFunc(s, isSep)
}

// parseAtoms splits a segment into alternating digit/non-digit runs.
func parseAtoms(s string) segment {
	var atoms segment
	i := 0
	for i < len(s) {
		j := i
		isDigit := isDigitByte(s[i])
		for j < len(s) && isDigitByte(s[j]) == isDigit {
			j++
		}
		run := s[i:j]
		if isDigit {
			n, _ := strconv.ParseInt(run, 10, 64)
			atoms = append(atoms, atom{kind: atomInt, n: n})
		} else {
			atoms = append(atoms, atom{kind: atomStr, s: strings.ToLower(run)})
		}
		i = j
	}
	if len(atoms) == 0 {
		atoms = append(atoms, emptyAtom())
	}
	return atoms
}

func isDigitByte(b byte) bool { return b >= '0' && b <= '9' }

// Compare returns -1, 0, or 1 per epoch-first, segment-wise,
// local-version-tiebreak ordering.
func (v Version) Compare(o Version) int {
	if v.epoch != o.epoch {
		return cmpInt64(v.epoch, o.epoch)
	}
	if c := compareSegmentLists(v.segments, o.segments); c != 0 {
		return c
	}
	if len(v.local) == 0 || len(o.local) == 0 {
		// A local part sorts after its absence: "1.0+local" > "1.0".
		return cmpInt(len(v.local), len(o.local))
	}
	return compareSegmentLists(v.local, o.local)
}

func compareSegmentLists(a, b []segment) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	emptySeg := segment{emptyAtom()}
	for i := 0; i < n; i++ {
		as, bs := emptySeg, emptySeg
		if i < len(a) {
			as = a[i]
		}
		if i < len(b) {
			bs = b[i]
		}
		if c := compareSegments(as, bs); c != 0 {
			return c
		}
	}
	return 0
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Less reports whether v sorts strictly before o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// Equal reports whether v and o compare equal (same ordering key; not
// necessarily the same original string).
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }

// String returns the canonical form: "epoch!segments[+local]", with the
// epoch prefix omitted when zero and the local suffix omitted when absent.
func (v Version) String() string {
	var b strings.Builder
	if v.epoch != 0 {
		fmt.Fprintf(&b, "%d!", v.epoch)
	}
	writeSegments(&b, v.segments)
	if len(v.local) > 0 {
		b.WriteByte('+')
		writeSegments(&b, v.local)
	}
	return b.String()
}

// GobEncode encodes v as its original version string, since Version's
// fields are unexported and invisible to encoding/gob.
func (v Version) GobEncode() ([]byte, error) { return []byte(v.orig), nil }

// GobDecode parses data written by GobEncode; empty data yields the zero
// Version.
func (v *Version) GobDecode(data []byte) error {
	if len(data) == 0 {
		*v = Version{}
		return nil
	}
	parsed, err := ParseVersion(string(data))
	*v = parsed
	return err
}

func writeSegments(b *strings.Builder, segs []segment) {
	for i, seg := range segs {
		if i > 0 {
			b.WriteByte('.')
		}
		for _, a := range seg {
			if a.kind == atomInt {
				fmt.Fprintf(b, "%d", a.n)
			} else {
				b.WriteString(a.s)
			}
		}
	}
}

// NextAt increments the segment at index idx (0-based) and truncates
// everything after it, which is what both `~=` and the `*`/starts-with
// forms need (at different idx values). For the `~=` compatible-release
// operator idx is the second-to-last segment: `~=1.4.2` means
// `>=1.4.2,<1.5`.
func (v Version) NextAt(idx int) Version {
	segs := append([]segment(nil), v.segments...)
	if idx >= len(segs) {
		idx = len(segs) - 1
	}
	if idx < 0 {
		return Version{epoch: v.epoch, segments: []segment{{atom{kind: atomInt, n: 1}}}}
	}
	incremented := incrementSegment(segs[idx])
	return Version{epoch: v.epoch, segments: append(append([]segment{}, segs[:idx]...), incremented)}
}

func incrementSegment(s segment) segment {
	out := append(segment(nil), s...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].kind == atomInt {
			out[i].n++
			return out[:i+1]
		}
	}
	return append(out, atom{kind: atomInt, n: 1})
}

// SegmentCount returns the number of "."/"-"/"_"-delimited segments.
func (v Version) SegmentCount() int { return len(v.segments) }
