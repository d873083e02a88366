// Package selection picks reviewers for a pull request from configured groups.
//
// The engine is pure: it takes a fully-formed Config plus the PR author and
// the reviewers already assigned, and returns a Result. It performs no I/O and
// keeps no state between calls. The only source of randomness is the Rand
// handed to New.
package selection

import "encoding/json"

// Group is a named set of usernames.
type Group struct {
	Name    string
	Members []string
}

// Requirement is a single entry of a FromClause: pick Count reviewers from
// the groups that Token resolves to.
type Requirement struct {
	Token string
	Count int
}

// FromClause is an ordered list of requirements. Entries are processed in
// declaration order.
type FromClause []Requirement

// GroupRule binds a FromClause to authors that belong to Group.
type GroupRule struct {
	Group string
	From  FromClause
}

// Rules holds the selection rules. A nil clause means the rule is absent;
// a non-nil empty clause is present and yields zero picks.
type Rules struct {
	Default         *FromClause
	ByAuthorGroup   []GroupRule
	NonGroupMembers *FromClause
}

// Strategy decides how rules combine when an author belongs to several groups.
type Strategy string

// Multi-group strategies.
const (
	StrategyMerge Strategy = "merge"
	StrategyFirst Strategy = "first"
)

// Config is everything the engine needs about the repository configuration.
type Config struct {
	Rules    Rules
	Strategy Strategy
	Groups   []Group
}

// RuleKind tags which rule path produced an AppliedRule.
type RuleKind int

// Rule kinds.
const (
	RuleDefault RuleKind = iota + 1
	RuleByAuthorGroup
	RuleNonGroupMembers
	RuleMergedGroups
)

// String returns the config-file spelling of the rule kind.
func (k RuleKind) String() string {
	switch k {
	case RuleDefault:
		return "default"
	case RuleByAuthorGroup:
		return "by_author_group"
	case RuleNonGroupMembers:
		return "non_group_members"
	case RuleMergedGroups:
		return "merged_groups"
	default:
		return "unknown"
	}
}

// MarshalText lets the kind appear by name in JSON output.
func (k RuleKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// AppliedRule records which rule was chosen for an author and the clause it resolved to.
type AppliedRule struct {
	Kind RuleKind `json:"kind"`
	// Group is the author group whose rule applied (RuleByAuthorGroup only).
	Group string `json:"group,omitempty"`
	// GroupIndex is the position of the rule in Rules.ByAuthorGroup (RuleByAuthorGroup only).
	GroupIndex int `json:"-"`
	// SourceGroups lists the author groups that contributed a clause (RuleMergedGroups only).
	SourceGroups []string   `json:"source_groups,omitempty"`
	Clause       FromClause `json:"clause"`
}

// MarshalJSON adds group_index for RuleByAuthorGroup only, where zero is a real position.
func (r AppliedRule) MarshalJSON() ([]byte, error) {
	type plain AppliedRule
	out := struct {
		GroupIndex *int `json:"group_index,omitempty"`
		plain
	}{plain: plain(r)}
	if r.Kind == RuleByAuthorGroup {
		out.GroupIndex = &r.GroupIndex
	}
	return json.Marshal(out)
}

// Describe returns a short human-readable label for the rule.
func (r *AppliedRule) Describe() string {
	if r == nil {
		return "none"
	}
	switch r.Kind {
	case RuleByAuthorGroup:
		return "by_author_group[" + r.Group + "]"
	case RuleMergedGroups:
		label := "merged_groups["
		for i, g := range r.SourceGroups {
			if i > 0 {
				label += ","
			}
			label += g
		}
		return label + "]"
	default:
		return r.Kind.String()
	}
}

// Step is the trace record for one FromClause entry.
type Step struct {
	Token            string   `json:"token"`
	ResolvedGroups   []string `json:"resolved_groups"`
	CandidatePool    []string `json:"candidate_pool"`
	Picked           []string `json:"picked"`
	CountRequired    int      `json:"count_required"`
	AlreadySatisfied int      `json:"already_satisfied"`
	CountStillNeeded int      `json:"count_still_needed"`
}

// Short reports whether the step picked fewer reviewers than it still needed.
func (s Step) Short() bool {
	return len(s.Picked) < s.CountStillNeeded
}

// Result is the outcome of a selection request.
type Result struct {
	AppliedRule       *AppliedRule `json:"applied_rule"`
	SelectedReviewers []string     `json:"selected_reviewers"`
	Process           []Step       `json:"process"`
}
