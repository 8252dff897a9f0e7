package specs

import "fmt"

// ParseError reports a malformed version, spec, or match-spec string. It
// always carries the original input snippet, per the design notes'
// "parse and validation errors must carry the originating input" rule.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %q: %s", e.Input, e.Reason)
}
