package selection

import "log/slog"

// Engine selects reviewers. It is safe for concurrent use as long as its Rand is.
type Engine struct {
	rand Rand
}

// New creates an Engine drawing from r. A nil r uses NewRand.
func New(r Rand) *Engine {
	if r == nil {
		r = NewRand()
	}
	return &Engine{rand: r}
}

// Select picks reviewers for a PR written by author that already has the given
// reviewers. It never fails: unsatisfiable requirements produce fewer picks.
func (e *Engine) Select(author string, existingReviewers []string, cfg Config) Result {
	result := Result{SelectedReviewers: []string{}, Process: []Step{}}

	rule := ResolveRule(author, cfg.Groups, cfg.Rules, cfg.Strategy)
	if rule == nil {
		slog.Debug("No selection rule applies", "component", "selection", "author", author)
		return result
	}
	result.AppliedRule = rule

	existing := make(map[string]bool, len(existingReviewers))
	for _, r := range existingReviewers {
		existing[r] = true
	}
	exclude := make(map[string]bool, len(existing)+1)
	for r := range existing {
		exclude[r] = true
	}
	if author != "" {
		exclude[author] = true
	}

	names := groupNames(cfg.Groups)
	for _, req := range rule.Clause {
		if req.Count <= 0 {
			continue
		}

		resolved := ResolveToken(req.Token, names)
		pool := BuildPool(resolved, cfg.Groups)

		satisfied := 0
		for _, member := range pool {
			if existing[member] {
				satisfied++
			}
		}
		needed := max(0, req.Count-satisfied)

		picked := PickRandom(e.rand, pool, needed, exclude)
		for _, p := range picked {
			exclude[p] = true
		}
		result.SelectedReviewers = append(result.SelectedReviewers, picked...)

		step := Step{
			Token:            req.Token,
			ResolvedGroups:   resolved,
			CandidatePool:    pool,
			CountRequired:    req.Count,
			AlreadySatisfied: satisfied,
			CountStillNeeded: needed,
			Picked:           picked,
		}
		result.Process = append(result.Process, step)

		slog.Debug("Selection step",
			"component", "selection",
			"token", req.Token,
			"groups", resolved,
			"pool_size", len(pool),
			"required", req.Count,
			"already_satisfied", satisfied,
			"still_needed", needed,
			"picked", picked)
	}

	return result
}
