package specs

import "strings"

type intervalKind uint8

const (
	intervalEmpty intervalKind = iota
	intervalFree
	intervalSingleton
	intervalLower
	intervalUpper
	intervalBounded
)

// VersionInterval is one of: empty, free, singleton, lower-bounded,
// upper-bounded, or doubly bounded (lower < upper). Constructors normalize
// degenerate cases: [v,v] becomes a singleton; any [a,b] with a>b, or with
// equal endpoints and at least one open bound, becomes empty.
type VersionInterval struct {
	kind      intervalKind
	lower     Version
	lowerOpen bool
	upper     Version
	upperOpen bool
	point     Version
}

// EmptyInterval contains no version.
func EmptyInterval() VersionInterval { return VersionInterval{kind: intervalEmpty} }

// FreeInterval contains every version.
func FreeInterval() VersionInterval { return VersionInterval{kind: intervalFree} }

// SingletonInterval contains exactly v.
func SingletonInterval(v Version) VersionInterval {
	return VersionInterval{kind: intervalSingleton, point: v}
}

// LowerBoundedInterval contains every version >= v (or > v if open).
func LowerBoundedInterval(v Version, open bool) VersionInterval {
	return VersionInterval{kind: intervalLower, lower: v, lowerOpen: open}
}

// UpperBoundedInterval contains every version <= v (or < v if open).
func UpperBoundedInterval(v Version, open bool) VersionInterval {
	return VersionInterval{kind: intervalUpper, upper: v, upperOpen: open}
}

// BoundedInterval contains every version between lo and hi, normalizing
// degenerate cases per the type's invariants.
func BoundedInterval(lo Version, loOpen bool, hi Version, hiOpen bool) VersionInterval {
	c := lo.Compare(hi)
	if c > 0 {
		return EmptyInterval()
	}
	if c == 0 {
		if loOpen || hiOpen {
			return EmptyInterval()
		}
		return SingletonInterval(lo)
	}
	return VersionInterval{kind: intervalBounded, lower: lo, lowerOpen: loOpen, upper: hi, upperOpen: hiOpen}
}

// Contains reports whether v lies within the interval.
func (iv VersionInterval) Contains(v Version) bool {
	switch iv.kind {
	case intervalEmpty:
		return false
	case intervalFree:
		return true
	case intervalSingleton:
		return v.Equal(iv.point)
	case intervalLower:
		c := v.Compare(iv.lower)
		if iv.lowerOpen {
			return c > 0
		}
		return c >= 0
	case intervalUpper:
		c := v.Compare(iv.upper)
		if iv.upperOpen {
			return c < 0
		}
		return c <= 0
	case intervalBounded:
		cl := v.Compare(iv.lower)
		cu := v.Compare(iv.upper)
		lowOK := cl > 0
		if !iv.lowerOpen {
			lowOK = cl >= 0
		}
		highOK := cu < 0
		if !iv.upperOpen {
			highOK = cu <= 0
		}
		return lowOK && highOK
	default:
		return false
	}
}

func (iv VersionInterval) String() string {
	switch iv.kind {
	case intervalEmpty:
		return ">0a0,<0a0" // unsatisfiable by construction; never produced from well-formed input
	case intervalFree:
		return "*"
	case intervalSingleton:
		return "==" + iv.point.String()
	case intervalLower:
		if iv.lowerOpen {
			return ">" + iv.lower.String()
		}
		return ">=" + iv.lower.String()
	case intervalUpper:
		if iv.upperOpen {
			return "<" + iv.upper.String()
		}
		return "<=" + iv.upper.String()
	case intervalBounded:
		var b strings.Builder
		if iv.lowerOpen {
			b.WriteString(">" + iv.lower.String())
		} else {
			b.WriteString(">=" + iv.lower.String())
		}
		b.WriteByte(',')
		if iv.upperOpen {
			b.WriteString("<" + iv.upper.String())
		} else {
			b.WriteString("<=" + iv.upper.String())
		}
		return b.String()
	default:
		return ""
	}
}

// VersionSpec is a boolean combination (AND of ORs, or a general tree) of
// VersionInterval leaves, plus two leaf kinds ("!=" and mid-string globs)
// that are not themselves expressible as a single interval.
type VersionSpec interface {
	Contains(v Version) bool
	String() string
}

type intervalSpec struct{ iv VersionInterval }

func (s intervalSpec) Contains(v Version) bool { return s.iv.Contains(v) }
func (s intervalSpec) String() string          { return s.iv.String() }

type notEqualSpec struct{ point Version }

func (s notEqualSpec) Contains(v Version) bool { return !v.Equal(s.point) }
func (s notEqualSpec) String() string          { return "!=" + s.point.String() }

type andSpec struct{ parts []VersionSpec }

func (s andSpec) Contains(v Version) bool {
	for _, p := range s.parts {
		if !p.Contains(v) {
			return false
		}
	}
	return true
}
func (s andSpec) String() string { return joinParts(s.parts, ",") }

type orSpec struct{ parts []VersionSpec }

func (s orSpec) Contains(v Version) bool {
	for _, p := range s.parts {
		if p.Contains(v) {
			return true
		}
	}
	return false
}
func (s orSpec) String() string { return joinParts(s.parts, "|") }

func joinParts(parts []VersionSpec, sep string) string {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = p.String()
	}
	return strings.Join(strs, sep)
}

// ParseVersionSpec parses a conda-style version spec string: comma is AND
// (higher precedence), "|" is OR; comparison prefixes ==, !=, <, <=, >, >=;
// starts-with suffix "=v" (=1.2 == >=1.2,<1.3); compatible release "~=v"
// (>=v,<next_major(v)); glob "*"; "=*" and "*" are free.
func ParseVersionSpec(s string) (VersionSpec, error) {
	orig := s
	p := &specParser{input: orig, s: s}
	spec, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.s != "" {
		return nil, &ParseError{Input: orig, Reason: "trailing input: " + p.s}
	}
	return spec, nil
}

type specParser struct {
	input string
	s     string
}

func (p *specParser) skipSpace() { p.s = strings.TrimLeft(p.s, " \t") }

func (p *specParser) parseOr() (VersionSpec, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	parts := []VersionSpec{first}
	for {
		p.skipSpace()
		if strings.HasPrefix(p.s, "|") {
			p.s = p.s[1:]
			next, err := p.parseAnd()
			if err != nil {
				return nil, err
			}
			parts = append(parts, next)
			continue
		}
		break
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return orSpec{parts: parts}, nil
}

func (p *specParser) parseAnd() (VersionSpec, error) {
	first, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	parts := []VersionSpec{first}
	for {
		p.skipSpace()
		if strings.HasPrefix(p.s, ",") {
			p.s = p.s[1:]
			next, err := p.parseFactor()
			if err != nil {
				return nil, err
			}
			parts = append(parts, next)
			continue
		}
		break
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return andSpec{parts: parts}, nil
}

func (p *specParser) parseFactor() (VersionSpec, error) {
	p.skipSpace()
	if strings.HasPrefix(p.s, "(") {
		p.s = p.s[1:]
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if !strings.HasPrefix(p.s, ")") {
			return nil, &ParseError{Input: p.input, Reason: "unmatched parenthesis"}
		}
		p.s = p.s[1:]
		return inner, nil
	}
	return p.parseComparator()
}

func (p *specParser) parseComparator() (VersionSpec, error) {
	p.skipSpace()
	if p.s == "" {
		return nil, &ParseError{Input: p.input, Reason: "expected comparator, got end of input"}
	}

	token, rest := splitToken(p.s)
	p.s = rest

	if token == "*" || token == "=*" {
		return intervalSpec{iv: FreeInterval()}, nil
	}

	op, rest2 := splitOperator(token)
	switch op {
	case "==":
		v, err := ParseVersion(rest2)
		if err != nil {
			return nil, &ParseError{Input: p.input, Reason: err.Error()}
		}
		return intervalSpec{iv: SingletonInterval(v)}, nil
	case "!=":
		v, err := ParseVersion(rest2)
		if err != nil {
			return nil, &ParseError{Input: p.input, Reason: err.Error()}
		}
		return notEqualSpec{point: v}, nil
	case ">=":
		v, err := ParseVersion(rest2)
		if err != nil {
			return nil, &ParseError{Input: p.input, Reason: err.Error()}
		}
		return intervalSpec{iv: LowerBoundedInterval(v, false)}, nil
	case ">":
		v, err := ParseVersion(rest2)
		if err != nil {
			return nil, &ParseError{Input: p.input, Reason: err.Error()}
		}
		return intervalSpec{iv: LowerBoundedInterval(v, true)}, nil
	case "<=":
		v, err := ParseVersion(rest2)
		if err != nil {
			return nil, &ParseError{Input: p.input, Reason: err.Error()}
		}
		return intervalSpec{iv: UpperBoundedInterval(v, false)}, nil
	case "<":
		v, err := ParseVersion(rest2)
		if err != nil {
			return nil, &ParseError{Input: p.input, Reason: err.Error()}
		}
		return intervalSpec{iv: UpperBoundedInterval(v, true)}, nil
	case "~=":
		return parseCompatibleRelease(p.input, rest2)
	case "=":
		return parseStartsWith(p.input, rest2)
	case "":
		if strings.Contains(rest2, "*") {
			return parseVersionGlob(p.input, rest2)
		}
		v, err := ParseVersion(rest2)
		if err != nil {
			return nil, &ParseError{Input: p.input, Reason: err.Error()}
		}
		return intervalSpec{iv: SingletonInterval(v)}, nil
	default:
		return nil, &ParseError{Input: p.input, Reason: "malformed operator " + op}
	}
}

func splitOperator(token string) (op, rest string) {
	for _, candidate := range []string{"==", "!=", ">=", "<=", "~=", ">", "<", "="} {
		if strings.HasPrefix(token, candidate) {
			return candidate, token[len(candidate):]
		}
	}
	return "", token
}

// splitToken consumes up to the next ',', '|', or ')' as one comparator
// token, respecting none of them as escapable (conda spec strings don't
// quote these characters).
func splitToken(s string) (token, rest string) {
	idx := strings.IndexAny(s, ",|)")
	if idx < 0 {
		return strings.TrimSpace(s), ""
	}
	return strings.TrimSpace(s[:idx]), s[idx:]
}

func parseStartsWith(input, v string) (VersionSpec, error) {
	if v == "" || v == "*" {
		return intervalSpec{iv: FreeInterval()}, nil
	}
	v = strings.TrimSuffix(v, ".*")
	base, err := ParseVersion(v)
	if err != nil {
		return nil, &ParseError{Input: input, Reason: err.Error()}
	}
	upper := base.NextAt(base.SegmentCount() - 1)
	return intervalSpec{iv: BoundedInterval(base, false, upper, true)}, nil
}

func parseCompatibleRelease(input, v string) (VersionSpec, error) {
	base, err := ParseVersion(v)
	if err != nil {
		return nil, &ParseError{Input: input, Reason: err.Error()}
	}
	idx := base.SegmentCount() - 2
	if idx < 0 {
		idx = 0
	}
	upper := base.NextAt(idx)
	return intervalSpec{iv: BoundedInterval(base, false, upper, true)}, nil
}

// versionGlobSpec matches a version against a pattern with "*" wildcards
// at arbitrary segment/atom positions (3.2: "A glob segment * in a version
// string parses into a version predicate that matches any atom at that
// position").
type versionGlobSpec struct {
	pattern string
	segs    []string // "*" or a literal segment
}

func parseVersionGlob(input, v string) (VersionSpec, error) {
	if strings.HasSuffix(v, ".*") {
		return parseStartsWith(input, v)
	}
	parts := strings.FieldsFunc(v, func(r rune) bool {
		return r == '.' || r == '-' || r == '_'
	})
	return versionGlobSpec{pattern: v, segs: parts}, nil
}

func (g versionGlobSpec) Contains(v Version) bool {
	if len(g.segs) != len(v.segments) {
		return false
	}
	for i, pat := range g.segs {
		if pat == "*" {
			continue
		}
		want, err := ParseVersion(pat)
		if err != nil {
			return false
		}
		if compareSegments(v.segments[i], want.segments[0]) != 0 {
			return false
		}
	}
	return true
}

func (g versionGlobSpec) String() string { return g.pattern }
