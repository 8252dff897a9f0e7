package specs

import (
	"regexp"
	"strings"
)

// GlobSpec is a predicate with only the "*" wildcard, greedy. "*" alone is
// the free pattern.
type GlobSpec struct {
	pattern string
	re      *regexp.Regexp
	free    bool
}

// FreeGlobSpec matches every string.
func FreeGlobSpec() GlobSpec { return GlobSpec{pattern: "*", free: true} }

// ParseGlobSpec compiles a glob pattern.
func ParseGlobSpec(pattern string) GlobSpec {
	if pattern == "*" || pattern == "" {
		return FreeGlobSpec()
	}
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		if r == '*' {
			b.WriteString(".*")
		} else {
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return GlobSpec{pattern: pattern, re: regexp.MustCompile(b.String())}
}

// Contains reports whether s matches the glob.
func (g GlobSpec) Contains(s string) bool {
	if g.free {
		return true
	}
	return g.re.MatchString(s)
}

func (g GlobSpec) String() string { return g.pattern }

// RegexSpec is a predicate anchored between "^" and "$"; any "*" not
// preceded by "." is rewritten to ".*" to keep glob-flavored patterns
// working as regexes.
type RegexSpec struct {
	pattern string
	re      *regexp.Regexp
}

// ParseRegexSpec compiles a regex pattern, rewriting bare "*" to ".*" and
// anchoring it if not already anchored.
func ParseRegexSpec(pattern string) (RegexSpec, error) {
	body := strings.TrimPrefix(pattern, "^")
	body = strings.TrimSuffix(body, "$")

	var b strings.Builder
	for i, r := range body {
		if r == '*' && (i == 0 || body[i-1] != '.') {
			b.WriteString(".*")
		} else {
			b.WriteRune(r)
		}
	}

	anchored := "^" + b.String() + "$"
	re, err := regexp.Compile(anchored)
	if err != nil {
		return RegexSpec{}, &ParseError{Input: pattern, Reason: err.Error()}
	}
	return RegexSpec{pattern: pattern, re: re}, nil
}

// Contains reports whether s matches the regex.
func (r RegexSpec) Contains(s string) bool { return r.re.MatchString(s) }

func (r RegexSpec) String() string { return r.pattern }

// ChimeraStringSpec is either a glob or a regex: strings starting with "^"
// or ending with "$" are tried as regex first, otherwise glob. The free
// chimera always equals the free glob.
type ChimeraStringSpec struct {
	glob  *GlobSpec
	regex *RegexSpec
}

// FreeChimeraStringSpec matches every string (equals the free glob).
func FreeChimeraStringSpec() ChimeraStringSpec {
	g := FreeGlobSpec()
	return ChimeraStringSpec{glob: &g}
}

// ParseChimeraStringSpec parses a chimera (glob-or-regex) build-string
// style pattern.
func ParseChimeraStringSpec(pattern string) (ChimeraStringSpec, error) {
	if pattern == "*" || pattern == "" {
		return FreeChimeraStringSpec(), nil
	}
	if strings.HasPrefix(pattern, "^") || strings.HasSuffix(pattern, "$") {
		re, err := ParseRegexSpec(pattern)
		if err != nil {
			return ChimeraStringSpec{}, err
		}
		return ChimeraStringSpec{regex: &re}, nil
	}
	g := ParseGlobSpec(pattern)
	return ChimeraStringSpec{glob: &g}, nil
}

// Contains reports whether s matches the underlying glob or regex.
func (c ChimeraStringSpec) Contains(s string) bool {
	if c.regex != nil {
		return c.regex.Contains(s)
	}
	if c.glob != nil {
		return c.glob.Contains(s)
	}
	return true
}

func (c ChimeraStringSpec) String() string {
	if c.regex != nil {
		return c.regex.String()
	}
	if c.glob != nil {
		return c.glob.String()
	}
	return "*"
}
