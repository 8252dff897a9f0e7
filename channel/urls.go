package channel

import (
	"fmt"
	"strings"

	"github.com/mambapkg/condaget/client"
)

// anacondaOrgURLs builds the anaconda.org/PURL link set for a package
// resolved against a single channel, using its DisplayName as the
// anaconda.org username/org segment.
type anacondaOrgURLs struct {
	channel string
}

func (u *anacondaOrgURLs) Registry(name, version string) string {
	if version == "" {
		return fmt.Sprintf("https://anaconda.org/%s/%s", u.channel, name)
	}
	return fmt.Sprintf("https://anaconda.org/%s/%s/%s", u.channel, name, version)
}

func (u *anacondaOrgURLs) Download(name, version string) string {
	// No single download URL: the actual artifact URL depends on subdir,
	// build string, and extension, all carried on PackageInfo.PackageURL.
	return ""
}

func (u *anacondaOrgURLs) Documentation(name, version string) string {
	return u.Registry(name, version)
}

func (u *anacondaOrgURLs) PURL(name, version string) string {
	if version == "" {
		return fmt.Sprintf("pkg:conda/%s/%s", u.channel, name)
	}
	return fmt.Sprintf("pkg:conda/%s/%s@%s", u.channel, name, version)
}

// InfoURLs returns the registry/docs/purl link set for name/version as
// resolved against c, keyed "registry", "docs", and "purl" ("download" is
// always absent: see anacondaOrgURLs.Download). c.DisplayName is used as
// the anaconda.org channel segment, falling back to "conda-forge" style
// bare-name channels unchanged.
func (c *Channel) InfoURLs(name, version string) map[string]string {
	chanName := c.DisplayName
	if idx := strings.Index(chanName, "://"); idx >= 0 {
		// A URL-shaped display name (custom channel) has no anaconda.org
		// analogue; fall back to the last path segment.
		parts := strings.Split(strings.TrimSuffix(chanName, "/"), "/")
		chanName = parts[len(parts)-1]
	}
	return client.BuildURLs(&anacondaOrgURLs{channel: chanName}, name, version)
}
