package channel

import "testing"

func TestInfoURLsBareChannel(t *testing.T) {
	c := &Channel{DisplayName: "conda-forge"}
	urls := c.InfoURLs("numpy", "1.26.0")

	if got, want := urls["registry"], "https://anaconda.org/conda-forge/numpy/1.26.0"; got != want {
		t.Errorf("registry = %q, want %q", got, want)
	}
	if got, want := urls["purl"], "pkg:conda/conda-forge/numpy@1.26.0"; got != want {
		t.Errorf("purl = %q, want %q", got, want)
	}
	if _, ok := urls["download"]; ok {
		t.Error("expected no download URL")
	}
}

func TestInfoURLsCustomChannelURL(t *testing.T) {
	c := &Channel{DisplayName: "https://my.org/channels/internal"}
	urls := c.InfoURLs("widget", "")

	if got, want := urls["purl"], "pkg:conda/internal/widget"; got != want {
		t.Errorf("purl = %q, want %q", got, want)
	}
}
