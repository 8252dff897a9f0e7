package resolver

import (
	"errors"
	"testing"

	"github.com/mambapkg/condaget/channel"
	"github.com/mambapkg/condaget/solvable"
	"github.com/mambapkg/condaget/specs"
)

func mustVersion(t *testing.T, s string) specs.Version {
	t.Helper()
	v, err := specs.ParseVersion(s)
	if err != nil {
		t.Fatalf("ParseVersion(%q): %v", s, err)
	}
	return v
}

func mustSpec(t *testing.T, s string) *specs.MatchSpec {
	t.Helper()
	ms, err := specs.ParseMatchSpec(s)
	if err != nil {
		t.Fatalf("ParseMatchSpec(%q): %v", s, err)
	}
	return ms
}

// TestChannelSpecificMatchSpecIsolatesProviders implements scenario 6 from
// the testable-properties list: two repos both provide numpy-1.26.0, but a
// conda-forge::numpy spec must resolve only against the conda-forge repo.
func TestChannelSpecificMatchSpecIsolatesProviders(t *testing.T) {
	condaForge := &channel.Channel{
		Mirrors:     []string{"https://conda.anaconda.org/conda-forge"},
		DisplayName: "conda-forge",
		CanonicalID: "conda-forge",
		Platforms:   []string{"linux-64", "noarch"},
	}
	other := &channel.Channel{
		Mirrors:     []string{"https://conda.anaconda.org/other"},
		DisplayName: "other",
		CanonicalID: "other",
		Platforms:   []string{"linux-64", "noarch"},
	}

	db := solvable.NewDatabase()

	forgeRepo := solvable.NewRepo("conda-forge/linux-64", condaForge, 0, 0)
	forgeRepo.AddPackage(specs.PackageInfo{
		Name: "numpy", VersionString: "1.26.0", Version: mustVersion(t, "1.26.0"),
		BuildString: "py310h1", Platform: "linux-64",
		PackageURL: "https://conda.anaconda.org/conda-forge/linux-64/numpy-1.26.0-py310h1.tar.bz2",
	}, solvable.TypePackage)
	db.AddRepo(forgeRepo)

	otherRepo := solvable.NewRepo("other/linux-64", other, 1, 0)
	otherRepo.AddPackage(specs.PackageInfo{
		Name: "numpy", VersionString: "1.26.0", Version: mustVersion(t, "1.26.0"),
		BuildString: "py310h1", Platform: "linux-64",
		PackageURL: "https://conda.anaconda.org/other/linux-64/numpy-1.26.0-py310h1.tar.bz2",
	}, solvable.TypePackage)
	db.AddRepo(otherRepo)

	req := Request{Jobs: []Job{Install(mustSpec(t, "conda-forge::numpy"))}}

	sol, err := Solve(db, req)
	if err != nil {
		t.Fatalf("Solve error: %v", err)
	}
	if len(sol.Actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(sol.Actions))
	}
	got := sol.Actions[0].New
	if got.PackageURL != "https://conda.anaconda.org/conda-forge/linux-64/numpy-1.26.0-py310h1.tar.bz2" {
		t.Errorf("resolved wrong provider: %s", got.PackageURL)
	}
}

// TestForceReinstallTriggersReinstallEvenWhenVersionsMatch covers the
// --force-reinstall flag: installing an already-installed exact version
// must still produce a Reinstall action, not an Omit.
func TestForceReinstallTriggersReinstallEvenWhenVersionsMatch(t *testing.T) {
	db := solvable.NewDatabase()

	installed := solvable.NewRepo("installed", nil, 0, 0)
	installed.AddPackage(specs.PackageInfo{
		Name: "numpy", VersionString: "1.26.0", Version: mustVersion(t, "1.26.0"), BuildString: "py310h1",
	}, solvable.TypePackage)
	db.SetInstalledRepo(installed)

	avail := solvable.NewRepo("conda-forge/linux-64", nil, 0, 0)
	avail.AddPackage(specs.PackageInfo{
		Name: "numpy", VersionString: "1.26.0", Version: mustVersion(t, "1.26.0"), BuildString: "py310h1",
	}, solvable.TypePackage)
	db.AddRepo(avail)

	req := Request{
		Jobs:  []Job{Install(mustSpec(t, "numpy"))},
		Flags: Flags{ForceReinstall: true},
	}

	sol, err := Solve(db, req)
	if err != nil {
		t.Fatalf("Solve error: %v", err)
	}
	if len(sol.Actions) != 1 || sol.Actions[0].Kind != ActionReinstall {
		t.Fatalf("got actions %v, want a single Reinstall", sol.Actions)
	}
}

// TestSameVersionWithoutForceReinstallIsOmitted is the complementary case:
// without --force-reinstall, installing an already-satisfied spec is a
// no-op (Omit), not a Reinstall.
func TestSameVersionWithoutForceReinstallIsOmitted(t *testing.T) {
	db := solvable.NewDatabase()

	installed := solvable.NewRepo("installed", nil, 0, 0)
	installed.AddPackage(specs.PackageInfo{
		Name: "numpy", VersionString: "1.26.0", Version: mustVersion(t, "1.26.0"), BuildString: "py310h1",
	}, solvable.TypePackage)
	db.SetInstalledRepo(installed)

	avail := solvable.NewRepo("conda-forge/linux-64", nil, 0, 0)
	avail.AddPackage(specs.PackageInfo{
		Name: "numpy", VersionString: "1.26.0", Version: mustVersion(t, "1.26.0"), BuildString: "py310h1",
	}, solvable.TypePackage)
	db.AddRepo(avail)

	req := Request{Jobs: []Job{Install(mustSpec(t, "numpy"))}}

	sol, err := Solve(db, req)
	if err != nil {
		t.Fatalf("Solve error: %v", err)
	}
	if len(sol.Actions) != 1 || sol.Actions[0].Kind != ActionOmit {
		t.Fatalf("got actions %v, want a single Omit", sol.Actions)
	}
}

func TestUnsatisfiableWhenNoProvider(t *testing.T) {
	db := solvable.NewDatabase()
	db.AddRepo(solvable.NewRepo("conda-forge/linux-64", nil, 0, 0))

	req := Request{Jobs: []Job{Install(mustSpec(t, "numpy>=2.0"))}}

	_, err := Solve(db, req)
	var unsat *Unsatisfiable
	if !errors.As(err, &unsat) {
		t.Fatalf("expected Unsatisfiable, got %v", err)
	}
}

func TestUpgradeClassification(t *testing.T) {
	db := solvable.NewDatabase()

	installed := solvable.NewRepo("installed", nil, 0, 0)
	installed.AddPackage(specs.PackageInfo{
		Name: "numpy", VersionString: "1.24.0", Version: mustVersion(t, "1.24.0"), BuildString: "py310h0",
	}, solvable.TypePackage)
	db.SetInstalledRepo(installed)

	avail := solvable.NewRepo("conda-forge/linux-64", nil, 0, 0)
	avail.AddPackage(specs.PackageInfo{
		Name: "numpy", VersionString: "1.26.0", Version: mustVersion(t, "1.26.0"), BuildString: "py310h1",
	}, solvable.TypePackage)
	db.AddRepo(avail)

	req := Request{Jobs: []Job{Install(mustSpec(t, "numpy"))}}

	sol, err := Solve(db, req)
	if err != nil {
		t.Fatalf("Solve error: %v", err)
	}
	if len(sol.Actions) != 1 || sol.Actions[0].Kind != ActionUpgrade {
		t.Fatalf("got actions %v, want a single Upgrade", sol.Actions)
	}
}
