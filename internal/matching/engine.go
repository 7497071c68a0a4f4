package matching

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/havenfield/reconcile/internal/config"
	"github.com/havenfield/reconcile/internal/lineitem"
)

// Engine executes the five match tiers over a read-only line-item snapshot.
// Tiers are pure functions of the snapshot; the engine is safe for concurrent
// use across sessions.
type Engine struct {
	cfg   config.MatchingConfig
	rules []Rule
}

// NewEngine creates an engine with the given tolerances and rules.
func NewEngine(cfg config.MatchingConfig, rules []Rule) *Engine {
	return &Engine{cfg: cfg, rules: rules}
}

type tierRun struct {
	tier MatchType
	fn   func(lineitem.Snapshot) Result
}

// Run executes the enabled tiers concurrently. A tier that panics contributes
// a warning; the other tiers' candidates are kept. The returned candidate set
// is deduplicated by pair identity (earlier tier wins) and sorted, so a re-run
// over the same snapshot yields an identical result.
func (e *Engine) Run(ctx context.Context, snap lineitem.Snapshot, flags TierFlags) Result {
	tiers := make([]tierRun, 0, 5)
	if flags.Exact {
		tiers = append(tiers, tierRun{TypeExact, e.runExact})
	}
	if flags.Fuzzy {
		tiers = append(tiers, tierRun{TypeFuzzy, e.runFuzzy})
	}
	if flags.Calculated {
		tiers = append(tiers, tierRun{TypeCalculated, e.runCalculated})
	}
	if flags.Inferred {
		tiers = append(tiers, tierRun{TypeInferred, e.runInferred})
	}
	if flags.Rules {
		tiers = append(tiers, tierRun{TypeRuleBased, e.runRules})
	}

	var (
		mu       sync.Mutex
		combined Result
		wg       sync.WaitGroup
	)
	for _, t := range tiers {
		wg.Add(1)
		go func(t tierRun) {
			defer wg.Done()
			partial, err := e.safeRun(t, snap)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				combined.Warnings = append(combined.Warnings, err.Error())
				return
			}
			combined.Candidates = append(combined.Candidates, partial.Candidates...)
			combined.Violations = append(combined.Violations, partial.Violations...)
			combined.Warnings = append(combined.Warnings, partial.Warnings...)
		}(t)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		combined.Warnings = append(combined.Warnings, fmt.Sprintf("run interrupted: %v", err))
	}

	combined.Candidates = e.dedupe(combined.Candidates)
	sort.Slice(combined.Violations, func(i, j int) bool {
		return combined.Violations[i].Rule.ID < combined.Violations[j].Rule.ID
	})
	sort.Strings(combined.Warnings)
	return combined
}

// safeRun isolates one tier: a panic is converted into an error so the
// remaining tiers keep their results.
func (e *Engine) safeRun(t tierRun, snap lineitem.Snapshot) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{}
			err = fmt.Errorf("%s tier failed: %v", t.tier, r)
		}
	}()
	return t.fn(snap), nil
}

// dedupe enforces at most one candidate per pair identity, applies the global
// confidence floor, and sorts the survivors deterministically.
func (e *Engine) dedupe(candidates []Candidate) []Candidate {
	filtered := candidates[:0]
	for _, c := range candidates {
		if c.Score.Value >= e.cfg.MinConfidence {
			filtered = append(filtered, c)
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Tier.Priority() != filtered[j].Tier.Priority() {
			return filtered[i].Tier.Priority() < filtered[j].Tier.Priority()
		}
		return filtered[i].PairKey() < filtered[j].PairKey()
	})

	seen := make(map[string]bool, len(filtered))
	out := make([]Candidate, 0, len(filtered))
	for _, c := range filtered {
		key := c.PairKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].PairKey() < out[j].PairKey() })
	return out
}
