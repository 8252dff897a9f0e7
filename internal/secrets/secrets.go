// Package secrets redacts credentials from strings before they reach any
// log, error message, or other sink.
package secrets

import "regexp"

const redacted = "*****"

var (
	tokenPath = regexp.MustCompile(`/t/[^/\s]+`)
	userinfo  = regexp.MustCompile(`://[^/@\s:]+:[^/@\s]+@`)
	bearer    = regexp.MustCompile(`(?i)(Authorization:\s*Bearer\s+)\S+`)
)

// Hide replaces bearer tokens, `/t/<token>` channel-auth segments, and
// basic-auth userinfo in s with a fixed redaction marker. Hide is a fixed
// point on strings that contain none of these: calling it twice never
// changes a once-redacted string further.
func Hide(s string) string {
	s = tokenPath.ReplaceAllString(s, "/t/"+redacted)
	s = userinfo.ReplaceAllString(s, "://"+redacted+"@")
	s = bearer.ReplaceAllString(s, "${1}"+redacted)
	return s
}
