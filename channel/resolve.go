package channel

import (
	"net/url"
	"strings"

	"github.com/git-pkgs/purl"
)

// ResolveParams is the environment a channel reference is resolved against.
// Mirrors the "(platforms, channel_alias, custom_channels map,
// custom_multichannels map, auth DB, home dir, cwd)" tuple from the data
// model: HomeDir and Cwd are accepted for parity with the source algorithm;
// Resolve does not read them.
type ResolveParams struct {
	Platforms           []string
	ChannelAlias        string
	CustomChannels      *WeakeningMap[string]
	CustomMultichannels map[string][]string
	AuthDB              map[string]string // host -> bearer token; not read by Resolve or by the fetch layer
	HomeDir             string
	Cwd                 string
}

// Resolve turns an unresolved channel reference into one or more Channels
// (several only when a multichannel expands), each carrying every platform
// the reference is crossed with in its Platforms list (step 5 of 4.B). The
// resolver is pure: it performs no I/O and is deterministic given identical
// params.
func Resolve(ref string, params ResolveParams) ([]*Channel, error) {
	return resolveDepth(ref, params, 0)
}

func resolveDepth(ref string, params ResolveParams, depth int) ([]*Channel, error) {
	if depth > 8 {
		return nil, &Error{Ref: ref, Msg: "multichannel expansion too deep"}
	}

	ref, explicitSubdir := splitTrailingSubdir(ref)

	// Step 1: URL with a scheme is kept as-is.
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return []*Channel{buildChannel(ref, ref, explicitSubdir, params.Platforms)}, nil
	}

	// Step 2: custom multichannel name expands to its member list.
	if members, ok := params.CustomMultichannels[ref]; ok {
		var out []*Channel
		for _, m := range members {
			chans, err := resolveDepth(m, params, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, chans...)
		}
		return out, nil
	}

	// Step 3: custom_channels map, weakening-key lookup.
	if params.CustomChannels != nil {
		if base, ok := params.CustomChannels.AtWeaken(ref); ok {
			joined := joinURL(base, strings.TrimPrefix(ref, channelsMatchedPrefix(params.CustomChannels, ref)))
			return []*Channel{buildChannel(ref, joined, explicitSubdir, params.Platforms)}, nil
		}
	}

	// Step 4: join with channel_alias.
	base := joinURL(params.ChannelAlias, ref)
	return []*Channel{buildChannel(ref, base, explicitSubdir, params.Platforms)}, nil
}

// channelsMatchedPrefix recovers the weakened prefix that actually matched,
// so only the remainder of ref is appended to the matched base URL. This
// mirrors the informal "strip the matched prefix" behavior implied by the
// weakening-map lookup in 3.8: a ref "myorg/extra" matching custom_channels
// key "myorg" should resolve to base/extra, not base/myorg/extra.
func channelsMatchedPrefix(m *WeakeningMap[string], ref string) string {
	key := ref
	if _, ok := m.At(key); ok {
		return key
	}
	for {
		weakened := DecreaseWeakener(key)
		if weakened == key {
			return ""
		}
		if _, ok := m.At(weakened); ok {
			return weakened
		}
		if weakened == "" {
			return ""
		}
		key = weakened
	}
}

func splitTrailingSubdir(ref string) (string, string) {
	knownSubdirs := []string{
		"linux-64", "linux-32", "linux-aarch64", "linux-armv6l", "linux-armv7l", "linux-ppc64le", "linux-ppc64", "linux-s390x",
		"osx-64", "osx-arm64",
		"win-64", "win-32", "win-arm64",
		"noarch",
	}
	for _, sd := range knownSubdirs {
		if strings.HasSuffix(ref, "/"+sd) {
			return strings.TrimSuffix(ref, "/"+sd), sd
		}
	}
	return ref, ""
}

func joinURL(base, ref string) string {
	base = strings.TrimSuffix(base, "/")
	ref = strings.TrimPrefix(ref, "/")
	if ref == "" {
		return base
	}
	return base + "/" + ref
}

func buildChannel(ref, base string, explicitSubdir string, platforms []string) *Channel {
	plats := append([]string(nil), platforms...)
	if explicitSubdir != "" {
		plats = []string{explicitSubdir}
	}
	plats = withNoarch(plats)

	canonical := "pkg:conda/" + strings.TrimPrefix(ref, "/")
	if _, err := purl.Parse(canonical); err != nil {
		// Not every channel reference is PURL-safe (e.g. raw URLs with
		// userinfo); fall back to the base URL as the identifier.
		canonical = base
	}

	return &Channel{
		Mirrors:     []string{base},
		DisplayName: ref,
		CanonicalID: canonical,
		Platforms:   plats,
	}
}

// withNoarch ensures "noarch" is enumerated alongside every requested
// platform, per the Platform subdir normalization design note.
func withNoarch(platforms []string) []string {
	for _, p := range platforms {
		if p == "noarch" {
			return platforms
		}
	}
	return append(append([]string(nil), platforms...), "noarch")
}
