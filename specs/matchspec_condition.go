package specs

import (
	"strings"

	"github.com/mambapkg/condaget/channel"
)

// MatchSpecCondition is a boolean tree over match-spec leaves with AND/OR
// and parentheses, parsed from the text following "; if" in a dependency
// expression. A node is true iff its leaf match-spec matches the probe
// package in isolation; full environment-level evaluation (whether the
// referenced package is actually installed/selected) is the resolver's
// responsibility, not this type's.
type MatchSpecCondition struct {
	leaf *MatchSpec
	and  []*MatchSpecCondition
	or   []*MatchSpecCondition
	raw  string
}

// ParseMatchSpecCondition parses a boolean match-spec-leaf expression.
func ParseMatchSpecCondition(s string) (*MatchSpecCondition, error) {
	p := &condParser{input: s, s: s}
	c, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.s != "" {
		return nil, &ParseError{Input: s, Reason: "trailing input in condition: " + p.s}
	}
	return c, nil
}

// Evaluate reports whether probe satisfies the condition in isolation.
func (c *MatchSpecCondition) Evaluate(probe PackageInfo, resolved *channel.Channel) bool {
	if c.leaf != nil {
		return c.leaf.Contains(probe, resolved)
	}
	if len(c.and) > 0 {
		for _, sub := range c.and {
			if !sub.Evaluate(probe, resolved) {
				return false
			}
		}
		return true
	}
	if len(c.or) > 0 {
		for _, sub := range c.or {
			if sub.Evaluate(probe, resolved) {
				return true
			}
		}
		return false
	}
	return true
}

func (c *MatchSpecCondition) String() string { return c.raw }

type condParser struct {
	input string
	s     string
}

func (p *condParser) skipSpace() { p.s = strings.TrimLeft(p.s, " \t") }

func (p *condParser) parseOr() (*MatchSpecCondition, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	parts := []*MatchSpecCondition{first}
	for {
		p.skipSpace()
		if consumeKeyword(p, "or") {
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
	return &MatchSpecCondition{or: parts, raw: joinCond(parts, " or ")}, nil
}

func (p *condParser) parseAnd() (*MatchSpecCondition, error) {
	first, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	parts := []*MatchSpecCondition{first}
	for {
		p.skipSpace()
		if consumeKeyword(p, "and") {
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
	return &MatchSpecCondition{and: parts, raw: joinCond(parts, " and ")}, nil
}

func (p *condParser) parseFactor() (*MatchSpecCondition, error) {
	p.skipSpace()
	if strings.HasPrefix(p.s, "(") {
		p.s = p.s[1:]
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if !strings.HasPrefix(p.s, ")") {
			return nil, &ParseError{Input: p.input, Reason: "unmatched parenthesis in condition"}
		}
		p.s = p.s[1:]
		return inner, nil
	}

	idx := findKeywordBoundary(p.s)
	tok := strings.TrimSpace(p.s[:idx])
	p.s = p.s[idx:]

	ms, err := ParseMatchSpec(tok)
	if err != nil {
		return nil, err
	}
	return &MatchSpecCondition{leaf: ms, raw: tok}, nil
}

func joinCond(parts []*MatchSpecCondition, sep string) string {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = p.String()
	}
	return strings.Join(strs, sep)
}

func consumeKeyword(p *condParser, kw string) bool {
	if strings.HasPrefix(p.s, kw) {
		after := p.s[len(kw):]
		if after == "" || after[0] == ' ' || after[0] == '\t' || after[0] == ')' {
			p.s = strings.TrimLeft(after, " \t")
			return true
		}
	}
	return false
}

// findKeywordBoundary finds where a leaf match-spec token ends: at the
// next " and ", " or ", ")" or end of string.
func findKeywordBoundary(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return i
			}
			depth--
		}
		if depth == 0 {
			if strings.HasPrefix(s[i:], " and ") || strings.HasPrefix(s[i:], " or ") {
				return i
			}
		}
	}
	return len(s)
}
