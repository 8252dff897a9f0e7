package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
)

type CLI struct {
	Globals

	Version       VersionCmd       `cmd:"" help:"Show version information"`
	Resolve       ResolveCmd       `cmd:"" help:"Solve a set of package specs against one or more channels"`
	FetchRepodata FetchRepodataCmd `cmd:"fetch-repodata" help:"Refresh the on-disk repodata cache"`
	Install       InstallCmd       `cmd:"" help:"Resolve and install packages into a prefix"`
}

var buildVersion = "dev"

type VersionCmd struct{}

func (cmd *VersionCmd) Run(g *Globals) error {
	fmt.Println(buildVersion)
	return nil
}

func defaultCacheRoot() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".condaget", "pkgs")
	}
	return ".condaget-cache"
}

func main() {
	cli := CLI{}

	ctx := kong.Parse(&cli,
		kong.Name("condaget"),
		kong.Description("Resolve, fetch, and install conda packages"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Vars{
			"default_cache_root": defaultCacheRoot(),
			"default_platform":   hostPlatform(),
		},
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
