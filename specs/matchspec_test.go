package specs

import "testing"

func mustPkg(t *testing.T, name, version, build string, buildNumber int64) PackageInfo {
	t.Helper()
	v, err := ParseVersion(version)
	if err != nil {
		t.Fatalf("ParseVersion(%q) error: %v", version, err)
	}
	return PackageInfo{Name: name, VersionString: version, Version: v, BuildString: build, BuildNumber: buildNumber}
}

func TestMatchSpecBasic(t *testing.T) {
	ms, err := ParseMatchSpec("numpy>=1.20,<2")
	if err != nil {
		t.Fatalf("ParseMatchSpec error: %v", err)
	}

	good := mustPkg(t, "numpy", "1.24.0", "py310h1", 0)
	if !ms.ContainsExceptChannel(good) {
		t.Error("expected numpy 1.24.0 to match numpy>=1.20,<2")
	}

	bad := mustPkg(t, "numpy", "2.1.0", "py310h1", 0)
	if ms.ContainsExceptChannel(bad) {
		t.Error("expected numpy 2.1.0 to not match numpy>=1.20,<2")
	}

	wrongName := mustPkg(t, "scipy", "1.24.0", "py310h1", 0)
	if ms.ContainsExceptChannel(wrongName) {
		t.Error("expected scipy to not match a numpy spec")
	}
}

func TestMatchSpecIgnoresChannel(t *testing.T) {
	ms, err := ParseMatchSpec("conda-forge::numpy>=1.20")
	if err != nil {
		t.Fatalf("ParseMatchSpec error: %v", err)
	}
	pkg := mustPkg(t, "numpy", "1.24.0", "py310h1", 0)
	pkg.PackageURL = "https://repo.anaconda.com/pkgs/main/linux-64/numpy-1.24.0.tar.bz2"
	pkg.Platform = "linux-64"

	if !ms.ContainsExceptChannel(pkg) {
		t.Error("ContainsExceptChannel must ignore the channel qualifier")
	}
	if ms.Contains(pkg, nil) {
		t.Error("Contains with an unresolved channel-qualified spec and no resolved channel should reject")
	}
}

func TestMatchSpecBracketAttributes(t *testing.T) {
	ms, err := ParseMatchSpec(`numpy[version=">=1.20", build="py310*", build_number=">=2"]`)
	if err != nil {
		t.Fatalf("ParseMatchSpec error: %v", err)
	}

	match := mustPkg(t, "numpy", "1.24.0", "py310h1", 3)
	if !ms.ContainsExceptChannel(match) {
		t.Error("expected bracketed match-spec to match")
	}

	wrongBuildNumber := mustPkg(t, "numpy", "1.24.0", "py310h1", 1)
	if ms.ContainsExceptChannel(wrongBuildNumber) {
		t.Error("expected build_number=\">=2\" to reject build_number 1")
	}
}

func TestMatchSpecCondition(t *testing.T) {
	cond, err := ParseMatchSpecCondition("python>=3.8")
	if err != nil {
		t.Fatalf("ParseMatchSpecCondition error: %v", err)
	}
	python310 := mustPkg(t, "python", "3.10.0", "h1", 0)
	if !cond.Evaluate(python310, nil) {
		t.Error("expected python 3.10.0 to satisfy condition python>=3.8")
	}
	python27 := mustPkg(t, "python", "2.7.0", "h1", 0)
	if cond.Evaluate(python27, nil) {
		t.Error("expected python 2.7.0 to fail condition python>=3.8")
	}

	tree, err := ParseMatchSpecCondition("python>=3.8 and python<4")
	if err != nil {
		t.Fatalf("ParseMatchSpecCondition error: %v", err)
	}
	if !tree.Evaluate(python310, nil) {
		t.Error("expected python 3.10.0 to satisfy the AND condition")
	}
}

func TestParseMatchSpecRejectsUnmatchedBracket(t *testing.T) {
	if _, err := ParseMatchSpec("numpy[version=1.0"); err == nil {
		t.Error("expected error for unmatched '['")
	}
}
