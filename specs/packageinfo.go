package specs

import "encoding/json"

// NoarchKind classifies a package's architecture independence.
type NoarchKind uint8

const (
	NoarchNo NoarchKind = iota
	NoarchGeneric
	NoarchPython
)

func (k NoarchKind) String() string {
	switch k {
	case NoarchGeneric:
		return "generic"
	case NoarchPython:
		return "python"
	default:
		return ""
	}
}

// PackageInfo is the canonical record for one candidate package, shared by
// the match-spec algebra, the solvable database, and the transaction
// executor.
type PackageInfo struct {
	Name          string
	VersionString string
	Version       Version
	BuildString   string
	BuildNumber   int64
	ChannelID     string // stable Channel.CanonicalID, not a raw URL
	PackageURL    string // full URL of the package archive
	Platform      string // subdir, e.g. "linux-64" or "noarch"
	Filename      string
	License       string
	Size          int64
	TimestampSec  int64
	MD5           string
	SHA256        string
	Noarch        NoarchKind
	Dependencies  []string // match-spec strings
	Constrains    []string // match-spec strings
	TrackFeatures []string
	Signatures    json.RawMessage
}

// Key is the deduplication identity described in 3.5: two PackageInfo
// values with identical (channel_id, filename) are considered identical.
func (p PackageInfo) Key() [2]string { return [2]string{p.ChannelID, p.Filename} }

// NormalizeTimestamp converts a millisecond timestamp to seconds. Per the
// design notes: values greater than 253402300799 (year 9999 in seconds)
// are interpreted as milliseconds.
func NormalizeTimestamp(ts int64) int64 {
	const maxSeconds = 253402300799
	if ts > maxSeconds {
		return ts / 1000
	}
	return ts
}
