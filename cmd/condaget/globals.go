package main

// Globals are the flags every subcommand receives, in the same shape
// a-h-depot's cmd/globals.Globals is threaded through Run methods.
type Globals struct {
	Verbose   bool   `help:"Enable debug logging" env:"CONDAGET_VERBOSE"`
	CacheRoot string `help:"Repodata and package cache directory" default:"${default_cache_root}" env:"CONDAGET_CACHE_ROOT"`
	Platform  string `help:"Target platform subdir, e.g. linux-64" default:"${default_platform}" env:"CONDAGET_PLATFORM"`
	Offline   bool   `help:"Never touch the network; fail if the cache can't satisfy a request" env:"CONDAGET_OFFLINE"`
}
