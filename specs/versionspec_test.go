package specs

import "testing"

func TestVersionSpecContains(t *testing.T) {
	spec, err := ParseVersionSpec(">=1.0,<2|==3.0")
	if err != nil {
		t.Fatalf("ParseVersionSpec error: %v", err)
	}

	tests := []struct {
		version string
		want    bool
	}{
		{"1.0", true},
		{"1.5", true},
		{"2.0", false},
		{"2.5", false},
		{"3.0", true},
		{"0.9", false},
	}
	for _, tt := range tests {
		v, err := ParseVersion(tt.version)
		if err != nil {
			t.Fatalf("ParseVersion(%q) error: %v", tt.version, err)
		}
		if got := spec.Contains(v); got != tt.want {
			t.Errorf("spec.Contains(%q) = %v, want %v", tt.version, got, tt.want)
		}
	}
}

func TestVersionSpecStartsWith(t *testing.T) {
	spec, err := ParseVersionSpec("=1.2")
	if err != nil {
		t.Fatalf("ParseVersionSpec error: %v", err)
	}
	for _, tt := range []struct {
		version string
		want    bool
	}{
		{"1.2", true},
		{"1.2.5", true},
		{"1.3", false},
		{"1.1.9", false},
	} {
		v, _ := ParseVersion(tt.version)
		if got := spec.Contains(v); got != tt.want {
			t.Errorf("=1.2 Contains(%q) = %v, want %v", tt.version, got, tt.want)
		}
	}
}

func TestVersionSpecCompatibleRelease(t *testing.T) {
	spec, err := ParseVersionSpec("~=1.4.2")
	if err != nil {
		t.Fatalf("ParseVersionSpec error: %v", err)
	}
	for _, tt := range []struct {
		version string
		want    bool
	}{
		{"1.4.2", true},
		{"1.4.9", true},
		{"1.5.0", false},
		{"1.4.1", false},
	} {
		v, _ := ParseVersion(tt.version)
		if got := spec.Contains(v); got != tt.want {
			t.Errorf("~=1.4.2 Contains(%q) = %v, want %v", tt.version, got, tt.want)
		}
	}
}

func TestVersionSpecFree(t *testing.T) {
	for _, s := range []string{"*", "=*"} {
		spec, err := ParseVersionSpec(s)
		if err != nil {
			t.Fatalf("ParseVersionSpec(%q) error: %v", s, err)
		}
		v, _ := ParseVersion("9999.0")
		if !spec.Contains(v) {
			t.Errorf("free spec %q should contain everything", s)
		}
	}
}

func TestVersionIntervalNormalization(t *testing.T) {
	lo, _ := ParseVersion("1.0")
	hi, _ := ParseVersion("1.0")
	iv := BoundedInterval(lo, false, hi, false)
	v, _ := ParseVersion("1.0")
	if !iv.Contains(v) {
		t.Error("[1.0,1.0] should normalize to singleton containing 1.0")
	}

	iv2 := BoundedInterval(hi, true, lo, true)
	if iv2.Contains(v) {
		t.Error("empty interval should contain nothing")
	}
}

func TestBuildNumberSpec(t *testing.T) {
	bn, err := ParseBuildNumberSpec(">=2")
	if err != nil {
		t.Fatalf("ParseBuildNumberSpec error: %v", err)
	}
	if !bn.Contains(2) || !bn.Contains(5) || bn.Contains(1) {
		t.Error("BuildNumberSpec >=2 behaved unexpectedly")
	}
}

func TestGlobSpec(t *testing.T) {
	g := ParseGlobSpec("py3*")
	if !g.Contains("py310") || g.Contains("py27") {
		t.Error("GlobSpec py3* behaved unexpectedly")
	}
}

func TestChimeraStringSpec(t *testing.T) {
	c, err := ParseChimeraStringSpec("^py3.*$")
	if err != nil {
		t.Fatalf("ParseChimeraStringSpec error: %v", err)
	}
	if !c.Contains("py310") {
		t.Error("chimera regex form should match py310")
	}

	glob, err := ParseChimeraStringSpec("py3*")
	if err != nil {
		t.Fatalf("ParseChimeraStringSpec error: %v", err)
	}
	if !glob.Contains("py310") {
		t.Error("chimera glob form should match py310")
	}
}
