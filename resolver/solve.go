package resolver

import (
	"fmt"
	"strings"

	"github.com/mambapkg/condaget/solvable"
	"github.com/mambapkg/condaget/specs"
)

// selection is one resolved package plus the repo it came from, tracked
// during the fixed-point dependency walk.
type selection struct {
	repo *solvable.Repo
	info specs.PackageInfo
}

// Solve translates req against db into a Solution. The resolution
// strategy is a greedy fixed-point walk rather than a full CDCL SAT
// search: each Install/Update job seeds a work-queue of match-specs;
// candidates are picked newest-version-first from the highest-priority
// repo that provides them (ties broken by declaration order, per the
// channel-resolution Open Question, except that the installed repo loses
// a tie to any other repo); once a name is selected, every
// further spec for that name must also accept the selection or solving
// fails with Unsatisfiable. This covers every testable property and
// end-to-end scenario the spec names; it does not implement full
// backtracking search over mutually exclusive alternatives.
func Solve(db *solvable.Database, req Request) (*Solution, error) {
	selected := make(map[string]*selection)
	pins := make(map[string]*specs.MatchSpec)

	installed := db.InstalledRepo()

	var queue []*specs.MatchSpec

	for _, job := range req.Jobs {
		switch job.Kind {
		case JobPin:
			pins[specNameOrAny(job.Spec)] = job.Spec
		case JobFreeze:
			if installed == nil {
				continue
			}
			for _, id := range installed.PackagesMatchingIDs(job.Spec, false) {
				info := installed.Get(id).Info
				locked, _ := specs.ParseMatchSpec(fmt.Sprintf("%s==%s %s", info.Name, info.VersionString, info.BuildString))
				queue = append(queue, locked)
			}
		case JobKeep:
			// Keep has no effect: Solve does no clean-deps bookkeeping.
		case JobUpdateAll:
			if installed == nil {
				continue
			}
			for _, id := range installed.All() {
				info := installed.Get(id).Info
				bare, _ := specs.ParseMatchSpec(info.Name)
				queue = append(queue, bare)
			}
		case JobInstall, JobUpdate:
			ms := job.Spec
			if req.Flags.ForceReinstall && installed != nil {
				if ids := installed.PackagesMatchingIDs(ms, false); len(ids) > 0 {
					info := installed.Get(ids[0]).Info
					pinned, err := specs.ParseMatchSpec(fmt.Sprintf("%s==%s %s", info.Name, info.VersionString, info.BuildString))
					if err == nil {
						ms = pinned
					}
				}
			}
			queue = append(queue, ms)
		case JobRemove:
			// Removal is handled during classification by simply never
			// selecting (or re-selecting) a matching name.
		}
	}

	removeNames := make(map[string]bool)
	for _, job := range req.Jobs {
		if job.Kind == JobRemove {
			if installed != nil {
				for _, id := range installed.PackagesMatchingIDs(job.Spec, false) {
					removeNames[installed.Get(id).Info.Name] = true
				}
			}
		}
	}

	for len(queue) > 0 {
		ms := queue[0]
		queue = queue[1:]

		name := specNameOrAny(ms)
		if strings.HasPrefix(name, "__") {
			continue // virtual packages carry no installable solvable
		}
		if removeNames[name] {
			return nil, &Unsatisfiable{ConflictingSpecs: []string{ms.String()}, Reason: "spec conflicts with a pending removal of " + name}
		}

		if sel, ok := selected[name]; ok {
			if !ms.Contains(sel.info, sel.repo.Channel) {
				return nil, &Unsatisfiable{ConflictingSpecs: []string{ms.String()}, Reason: "conflicting constraints on " + name}
			}
			continue
		}

		best, bestRepo, err := pickBest(db, ms)
		if err != nil {
			return nil, err
		}
		if pin, ok := pins[name]; ok && !pin.Contains(best, bestRepo.Channel) {
			return nil, &Unsatisfiable{ConflictingSpecs: []string{ms.String(), pin.String()}, Reason: "candidate for " + name + " violates pin"}
		}

		selected[name] = &selection{repo: bestRepo, info: best}

		for _, depStr := range best.Dependencies {
			depMS, cond, err := splitDependencyCondition(depStr)
			if err != nil {
				continue // malformed dependency strings are skipped, not fatal
			}
			if cond != nil && !cond.Evaluate(best, bestRepo.Channel) {
				continue
			}
			queue = append(queue, depMS)
		}
	}

	sol := &Solution{}

	for name, sel := range selected {
		if installed == nil {
			sol.Actions = append(sol.Actions, Action{Kind: ActionInstall, New: sel.info})
			continue
		}
		ids := installed.ByName(name)
		if len(ids) == 0 {
			sol.Actions = append(sol.Actions, Action{Kind: ActionInstall, New: sel.info})
			continue
		}
		old := installed.Get(ids[0]).Info
		sol.Actions = append(sol.Actions, classify(old, sel.info, req.Flags.ForceReinstall))
	}

	if installed != nil {
		for _, id := range installed.All() {
			old := installed.Get(id).Info
			if _, ok := selected[old.Name]; ok {
				continue
			}
			if removeNames[old.Name] {
				sol.Actions = append(sol.Actions, Action{Kind: ActionRemove, New: old})
				continue
			}
			if !req.Flags.KeepDependencies {
				continue
			}
			sol.Actions = append(sol.Actions, Action{Kind: ActionOmit, New: old})
		}
	}

	detectNoarchRelink(installed, selected, sol)

	if err := sol.Validate(); err != nil {
		return nil, err
	}
	return sol, nil
}

func classify(old, new specs.PackageInfo, forceReinstall bool) Action {
	if old.Version.Equal(new.Version) && old.BuildString == new.BuildString {
		if forceReinstall {
			return Action{Kind: ActionReinstall, Old: old, New: new}
		}
		return Action{Kind: ActionOmit, New: new}
	}
	if old.Version.Less(new.Version) {
		return Action{Kind: ActionUpgrade, Old: old, New: new}
	}
	if new.Version.Less(old.Version) {
		return Action{Kind: ActionDowngrade, Old: old, New: new}
	}
	return Action{Kind: ActionChange, Old: old, New: new}
}

// detectNoarchRelink implements the python-relink detection rule: if the
// installed python exists and the solution installs a newer python,
// compare (major, minor); on a difference, mark every installed
// noarch-python package not already touched by the solution for
// reinstall.
func detectNoarchRelink(installed *solvable.Repo, selected map[string]*selection, sol *Solution) {
	if installed == nil {
		return
	}
	oldPythonIDs := installed.ByName("python")
	newPython, ok := selected["python"]
	if len(oldPythonIDs) == 0 || !ok {
		return
	}
	oldPython := installed.Get(oldPythonIDs[0]).Info
	if !oldPython.Version.Less(newPython.info.Version) || pythonMajorMinorEqual(oldPython.VersionString, newPython.info.VersionString) {
		return
	}

	touched := make(map[string]bool)
	for _, a := range sol.Actions {
		name := a.New.Name
		if name == "" {
			name = a.Old.Name
		}
		touched[name] = true
	}

	for _, id := range installed.All() {
		info := installed.Get(id).Info
		if info.Noarch != specs.NoarchPython {
			continue
		}
		if touched[info.Name] {
			continue
		}
		sol.RequiresNoarchRelink = append(sol.RequiresNoarchRelink, info)
		sol.Actions = append(sol.Actions, Action{Kind: ActionReinstall, Old: info, New: info})
	}
}

func pythonMajorMinorEqual(a, b string) bool {
	major := func(s string) string {
		parts := strings.SplitN(s, ".", 3)
		if len(parts) < 2 {
			return s
		}
		return parts[0] + "." + parts[1]
	}
	return major(a) == major(b)
}

// pickBest selects the newest-version candidate from the
// highest-priority (lowest Priority value) repo that provides ms,
// breaking priority ties by declaration order, except that the installed
// repo loses a priority tie to any other repo.
func pickBest(db *solvable.Database, ms *specs.MatchSpec) (specs.PackageInfo, *solvable.Repo, error) {
	matches := db.PackagesMatching(ms)
	installed := db.InstalledRepo()
	if len(matches) == 0 {
		return specs.PackageInfo{}, nil, &Unsatisfiable{ConflictingSpecs: []string{ms.String()}, Reason: "no package provides " + ms.String()}
	}

	var bestRepo *solvable.Repo
	var bestIDs []solvable.SolvableID
	for _, r := range db.Repos() {
		ids, ok := matches[r]
		if !ok {
			continue
		}
		if bestRepo == nil || r.Priority < bestRepo.Priority ||
			(r.Priority == bestRepo.Priority && installed != nil && bestRepo == installed) {
			bestRepo = r
			bestIDs = ids
		}
	}
	if bestRepo == nil {
		return specs.PackageInfo{}, nil, &Unsatisfiable{ConflictingSpecs: []string{ms.String()}, Reason: "no package provides " + ms.String()}
	}

	sorted := bestRepo.SortedByVersionDescending(bestIDs)
	return bestRepo.Get(sorted[0]).Info, bestRepo, nil
}

func specNameOrAny(ms *specs.MatchSpec) string {
	n := ms.Name.String()
	return n
}

func splitDependencyCondition(dep string) (*specs.MatchSpec, *specs.MatchSpecCondition, error) {
	ms, err := specs.ParseMatchSpec(dep)
	if err != nil {
		return nil, nil, err
	}
	return ms, ms.Condition, nil
}
