package apply

import (
	"path"
	"path/filepath"

	"github.com/arthur-debert/dotapply/pkg/mapping"
	"github.com/arthur-debert/dotapply/pkg/symlink"
	"github.com/arthur-debert/dotapply/pkg/types"
)

// linkPlan holds the links for a profile's files and directories along
// with the outcomes of entries that never reach the symlink manager
type linkPlan struct {
	outcomes []types.ItemOutcome
	// slots[i] is the outcome index that links[i] reports into
	slots []int
	links []symlink.Link
}

func (p linkPlan) merge(converged []types.ItemOutcome) []types.ItemOutcome {
	out := append([]types.ItemOutcome(nil), p.outcomes...)
	for i, outcome := range converged {
		if i < len(p.slots) {
			out[p.slots[i]] = outcome
		}
	}
	return out
}

func (o *Orchestrator) planLinks(profile types.Profile, resolver *mapping.Resolver) linkPlan {
	var plan linkPlan
	tracked := append(append([]string(nil), profile.Files...), profile.Directories...)

	for _, original := range tracked {
		slot := len(plan.outcomes)
		canonical, err := o.deps.Paths.Canonical(original)
		if err != nil {
			plan.outcomes = append(plan.outcomes, types.NewOutcome(types.StageSymlinks, original, types.ItemFailed, "", err))
			continue
		}

		if pattern, ok := excluded(profile.Exclude, original, canonical); ok {
			o.logger.Debug().Str("path", original).Str("pattern", pattern).Msg("Excluded from linking")
			plan.outcomes = append(plan.outcomes, types.NewOutcome(types.StageSymlinks, original, types.ItemSkipped, "", nil).
				WithDetail("excluded"))
			continue
		}

		source, err := resolver.Resolve(original)
		if err != nil {
			plan.outcomes = append(plan.outcomes, types.NewOutcome(types.StageSymlinks, original, types.ItemFailed, "", err))
			continue
		}
		target, err := o.deps.Paths.Target(original)
		if err != nil {
			plan.outcomes = append(plan.outcomes, types.NewOutcome(types.StageSymlinks, original, types.ItemFailed, "", err))
			continue
		}

		plan.outcomes = append(plan.outcomes, types.ItemOutcome{})
		plan.slots = append(plan.slots, slot)
		plan.links = append(plan.links, symlink.Link{Original: original, Target: target, Source: source})
	}
	return plan
}

// excluded matches each pattern against the path as written, its
// canonical form and its basename
func excluded(patterns []string, original, canonical string) (string, bool) {
	candidates := []string{original, canonical, path.Base(canonical)}
	for _, pattern := range patterns {
		for _, c := range candidates {
			if ok, _ := filepath.Match(pattern, c); ok {
				return pattern, true
			}
		}
	}
	return "", false
}
