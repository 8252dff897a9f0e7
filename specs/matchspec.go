package specs

import (
	"strings"

	"github.com/mambapkg/condaget/channel"
)

// MatchSpec is a composite predicate over PackageInfo: optional channel
// spec, name (glob), version (VersionSpec), build_string (chimera), build
// number (BuildNumberSpec), optional namespace, bracket attributes, and an
// optional conditional clause.
type MatchSpec struct {
	raw string

	ChannelRef string // unresolved channel reference, empty if unqualified
	Subdir     string // explicit platform qualifier from the channel ref, if any
	Namespace  string

	Name        GlobSpec
	hasName     bool
	VersionSpec VersionSpec
	hasVersion  bool
	BuildString ChimeraStringSpec
	hasBuild    bool
	BuildNumber BuildNumberSpec
	hasBuildNum bool

	MD5           string
	SHA256        string
	URL           string
	TrackFeatures []string
	License       string
	Filename      string

	Condition *MatchSpecCondition
}

// ParseMatchSpec parses a conda match-spec string.
func ParseMatchSpec(s string) (*MatchSpec, error) {
	orig := s
	ms := &MatchSpec{raw: orig}

	body := s
	if idx := strings.Index(body, "; if "); idx >= 0 {
		condStr := body[idx+len("; if "):]
		body = body[:idx]
		cond, err := ParseMatchSpecCondition(condStr)
		if err != nil {
			return nil, &ParseError{Input: orig, Reason: err.Error()}
		}
		ms.Condition = cond
	}

	body = strings.TrimSpace(body)

	if idx := strings.Index(body, "::"); idx >= 0 {
		ref := body[:idx]
		ref, subdir := splitChannelSubdir(ref)
		ms.ChannelRef = ref
		ms.Subdir = subdir
		body = body[idx+2:]
	}

	var bracket string
	if idx := strings.IndexByte(body, '['); idx >= 0 {
		end := strings.LastIndexByte(body, ']')
		if end < idx {
			return nil, &ParseError{Input: orig, Reason: "unmatched '['"}
		}
		bracket = body[idx+1 : end]
		body = body[:idx] + body[end+1:]
	}

	fields := strings.Fields(body)
	if len(fields) == 0 && bracket == "" {
		return nil, &ParseError{Input: orig, Reason: "empty match-spec"}
	}

	if len(fields) > 0 {
		name, version, hasVersion := splitNameVersion(fields[0])
		nsName, name := splitNamespace(name)
		ms.Namespace = nsName
		ms.Name = ParseGlobSpec(name)
		ms.hasName = name != "*" && name != ""
		if hasVersion {
			vs, err := ParseVersionSpec(version)
			if err != nil {
				return nil, &ParseError{Input: orig, Reason: err.Error()}
			}
			ms.VersionSpec = vs
			ms.hasVersion = true
		}
		if len(fields) > 1 {
			cs, err := ParseChimeraStringSpec(fields[1])
			if err != nil {
				return nil, &ParseError{Input: orig, Reason: err.Error()}
			}
			ms.BuildString = cs
			ms.hasBuild = true
		}
	}

	if bracket != "" {
		if err := ms.applyBracket(orig, bracket); err != nil {
			return nil, err
		}
	}

	return ms, nil
}

func splitChannelSubdir(ref string) (string, string) {
	known := []string{"linux-64", "linux-aarch64", "linux-ppc64le", "osx-64", "osx-arm64", "win-64", "noarch"}
	for _, sd := range known {
		if strings.HasSuffix(ref, "/"+sd) {
			return strings.TrimSuffix(ref, "/"+sd), sd
		}
	}
	return ref, ""
}

func splitNamespace(name string) (namespace, rest string) {
	if idx := strings.Index(name, ":"); idx >= 0 && !strings.Contains(name[:idx], "/") {
		return name[:idx], name[idx+1:]
	}
	return "", name
}

// splitNameVersion splits a token like "numpy>=1.20" into name and version
// spec text; a bare token with no comparator character is a name-only
// match (free version).
func splitNameVersion(tok string) (name, version string, hasVersion bool) {
	idx := strings.IndexAny(tok, "=<>!")
	if idx < 0 {
		return tok, "", false
	}
	return tok[:idx], tok[idx:], true
}

func (ms *MatchSpec) applyBracket(orig, bracket string) error {
	for _, kv := range splitBracketFields(bracket) {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			return &ParseError{Input: orig, Reason: "malformed bracket attribute " + kv}
		}
		key := strings.TrimSpace(kv[:eq])
		val := strings.Trim(strings.TrimSpace(kv[eq+1:]), `"'`)
		switch key {
		case "version":
			vs, err := ParseVersionSpec(val)
			if err != nil {
				return &ParseError{Input: orig, Reason: err.Error()}
			}
			ms.VersionSpec = vs
			ms.hasVersion = true
		case "build":
			cs, err := ParseChimeraStringSpec(val)
			if err != nil {
				return &ParseError{Input: orig, Reason: err.Error()}
			}
			ms.BuildString = cs
			ms.hasBuild = true
		case "build_number":
			bn, err := ParseBuildNumberSpec(val)
			if err != nil {
				return &ParseError{Input: orig, Reason: err.Error()}
			}
			ms.BuildNumber = bn
			ms.hasBuildNum = true
		case "channel":
			ms.ChannelRef = val
		case "subdir":
			ms.Subdir = val
		case "md5":
			ms.MD5 = val
		case "sha256":
			ms.SHA256 = val
		case "url":
			ms.URL = val
		case "license":
			ms.License = val
		case "fn":
			ms.Filename = val
		case "track_features":
			ms.TrackFeatures = strings.Split(val, ",")
		default:
			// Unknown bracket attributes are accepted and ignored, per
			// real-world match-spec strings carrying forward-compatible
			// keys mamba itself doesn't interpret.
		}
	}
	return nil
}

func splitBracketFields(bracket string) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range bracket {
		switch r {
		case '"', '\'':
			depth ^= 1 // toggle "inside quotes"; good enough, no escaped quotes in match-specs
		case ',':
			if depth == 0 {
				out = append(out, bracket[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, bracket[start:])
	return out
}

// ContainsExceptChannel reports whether p matches every component of ms
// except the channel qualifier.
func (ms *MatchSpec) ContainsExceptChannel(p PackageInfo) bool {
	if ms.hasName && !ms.Name.Contains(p.Name) {
		return false
	}
	if ms.hasVersion && !ms.VersionSpec.Contains(p.Version) {
		return false
	}
	if ms.hasBuild && !ms.BuildString.Contains(p.BuildString) {
		return false
	}
	if ms.hasBuildNum && !ms.BuildNumber.Contains(p.BuildNumber) {
		return false
	}
	if ms.MD5 != "" && ms.MD5 != p.MD5 {
		return false
	}
	if ms.SHA256 != "" && ms.SHA256 != p.SHA256 {
		return false
	}
	if ms.URL != "" && ms.URL != p.PackageURL {
		return false
	}
	if ms.Filename != "" && ms.Filename != p.Filename {
		return false
	}
	if ms.License != "" && ms.License != p.License {
		return false
	}
	for _, want := range ms.TrackFeatures {
		want = strings.TrimSpace(want)
		if want == "" {
			continue
		}
		found := false
		for _, have := range p.TrackFeatures {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Contains reports whether p matches ms, including the channel qualifier
// when one is present, checked against resolved (a nil resolved never
// matches a channel-qualified spec).
func (ms *MatchSpec) Contains(p PackageInfo, resolved *channel.Channel) bool {
	if !ms.ContainsExceptChannel(p) {
		return false
	}
	if ms.ChannelRef == "" {
		return true
	}
	if resolved == nil {
		return false
	}
	result := resolved.ContainsPackage(p.PackageURL, p.Platform)
	return result == channel.Full
}

func (ms *MatchSpec) String() string { return ms.raw }
