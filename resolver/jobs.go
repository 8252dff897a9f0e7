// Package resolver implements the dependency resolver: it translates a
// list of typed jobs against a solvable.Database into a Solution of
// install/remove/upgrade/downgrade/change/reinstall actions.
package resolver

import "github.com/mambapkg/condaget/specs"

// JobKind distinguishes the seven job types a Request may carry.
type JobKind uint8

const (
	JobInstall JobKind = iota
	JobRemove
	JobUpdate
	JobUpdateAll
	JobFreeze
	JobKeep
	JobPin
)

// Job is one typed request against the solver.
type Job struct {
	Kind      JobKind
	Spec      *specs.MatchSpec
	CleanDeps bool
}

// Install requests that ms's provider set be satisfied.
func Install(ms *specs.MatchSpec) Job { return Job{Kind: JobInstall, Spec: ms} }

// Remove forbids any provider of ms. cleanDeps is recorded on the Job, but
// Solve does not act on it: no orphaned dependencies are removed.
func Remove(ms *specs.MatchSpec, cleanDeps bool) Job {
	return Job{Kind: JobRemove, Spec: ms, CleanDeps: cleanDeps}
}

// Update is the union of install and upgrade rules; a non-bare-name spec
// is treated as an Install instead.
func Update(ms *specs.MatchSpec, cleanDeps bool) Job {
	return Job{Kind: JobUpdate, Spec: ms, CleanDeps: cleanDeps}
}

// UpdateAll upgrades every installed package to its newest available
// version.
func UpdateAll(cleanDeps bool) Job { return Job{Kind: JobUpdateAll, CleanDeps: cleanDeps} }

// Freeze locks every solvable matching ms at its currently installed
// version.
func Freeze(ms *specs.MatchSpec) Job { return Job{Kind: JobFreeze, Spec: ms} }

// Keep names packages to mark as user-installed. Solve accepts the job but
// it has no effect on the Solution, since Solve does no clean-deps pass.
func Keep(ms *specs.MatchSpec) Job { return Job{Kind: JobKeep, Spec: ms} }

// Pin injects a synthetic constraint that must be satisfied by any
// matching installed package, without by itself triggering an install.
func Pin(ms *specs.MatchSpec) Job { return Job{Kind: JobPin, Spec: ms} }

// Flags are solver-wide behavior toggles.
type Flags struct {
	KeepUserSpecs    bool
	KeepDependencies bool
	ForceReinstall   bool
}

// Request is a full solve request: an ordered job list plus flags.
type Request struct {
	Jobs  []Job
	Flags Flags
}
