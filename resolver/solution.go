package resolver

import (
	"fmt"
	"strings"

	"github.com/mambapkg/condaget/specs"
)

// ActionKind tags one step of a Solution.
type ActionKind uint8

const (
	ActionInstall ActionKind = iota
	ActionRemove
	ActionReinstall
	ActionUpgrade
	ActionDowngrade
	ActionChange
	ActionOmit
)

func (k ActionKind) String() string {
	switch k {
	case ActionInstall:
		return "install"
	case ActionRemove:
		return "remove"
	case ActionReinstall:
		return "reinstall"
	case ActionUpgrade:
		return "upgrade"
	case ActionDowngrade:
		return "downgrade"
	case ActionChange:
		return "change"
	case ActionOmit:
		return "omit"
	default:
		return "unknown"
	}
}

// Action is one typed solver step. Old/New are populated according to
// Kind: Install/Remove/Reinstall/Omit use New (Remove uses the package
// being removed in New for convenience); Upgrade/Downgrade/Change use both.
type Action struct {
	Kind ActionKind
	Old  specs.PackageInfo
	New  specs.PackageInfo
}

// Solution is an ordered list of actions. Invariants: every package name
// appears in at most one non-Omit action; a Reinstall implies an
// identical (name, version, build_string) between the old and new
// package.
type Solution struct {
	Actions []Action

	// RequiresNoarchRelink lists installed noarch-python packages that
	// must be reinstalled because python's (major, minor) changed.
	RequiresNoarchRelink []specs.PackageInfo
}

// Validate checks the "at most one non-Omit action per name" invariant.
func (s *Solution) Validate() error {
	seen := make(map[string]ActionKind)
	for _, a := range s.Actions {
		if a.Kind == ActionOmit {
			continue
		}
		name := a.New.Name
		if name == "" {
			name = a.Old.Name
		}
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("package %q appears in more than one action (%s and %s)", name, prev, a.Kind)
		}
		seen[name] = a.Kind
	}
	return nil
}

func (s *Solution) String() string {
	var b strings.Builder
	for _, a := range s.Actions {
		switch a.Kind {
		case ActionUpgrade, ActionDowngrade, ActionChange:
			fmt.Fprintf(&b, "%s: %s-%s -> %s-%s\n", a.Kind, a.Old.Name, a.Old.VersionString, a.New.Name, a.New.VersionString)
		default:
			fmt.Fprintf(&b, "%s: %s-%s\n", a.Kind, a.New.Name, a.New.VersionString)
		}
	}
	return b.String()
}

// Unsatisfiable is returned when no solution satisfies the request; it
// names the specs whose resolution failed, without mandating any exact
// presentation.
type Unsatisfiable struct {
	ConflictingSpecs []string
	Reason           string
}

func (e *Unsatisfiable) Error() string {
	return fmt.Sprintf("unsatisfiable: %s (specs: %s)", e.Reason, strings.Join(e.ConflictingSpecs, ", "))
}
