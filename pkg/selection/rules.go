package selection

// ResolveRule picks the FromClause that applies to author.
// It returns nil when no rule applies.
func ResolveRule(author string, groups []Group, rules Rules, strategy Strategy) *AppliedRule {
	authorGroups := AuthorGroups(author, groups)

	switch {
	case len(authorGroups) == 0:
		if rules.NonGroupMembers != nil {
			return &AppliedRule{Kind: RuleNonGroupMembers, Clause: cloneClause(*rules.NonGroupMembers)}
		}
		if rules.Default != nil {
			return &AppliedRule{Kind: RuleDefault, Clause: cloneClause(*rules.Default)}
		}
		return nil
	case len(authorGroups) == 1 || strategy == StrategyFirst:
		return ruleForGroup(authorGroups[0], rules)
	default:
		return mergeGroupRules(authorGroups, rules)
	}
}

// AuthorGroups returns the names of the groups author belongs to, in declaration order.
func AuthorGroups(author string, groups []Group) []string {
	if author == "" {
		return nil
	}
	var names []string
	for _, g := range groups {
		for _, member := range g.Members {
			if member == author {
				names = append(names, g.Name)
				break
			}
		}
	}
	return names
}

// ruleForGroup resolves the clause for a single author group: its own
// by_author_group rule, or the default rule.
func ruleForGroup(group string, rules Rules) *AppliedRule {
	for i, gr := range rules.ByAuthorGroup {
		if gr.Group == group {
			return &AppliedRule{
				Kind:       RuleByAuthorGroup,
				Group:      group,
				GroupIndex: i,
				Clause:     cloneClause(gr.From),
			}
		}
	}
	if rules.Default != nil {
		return &AppliedRule{Kind: RuleDefault, Clause: cloneClause(*rules.Default)}
	}
	return nil
}

// mergeGroupRules resolves each author group on its own and merges the results,
// keeping the highest count for every token. Tokens keep the order in which
// they first appear.
func mergeGroupRules(authorGroups []string, rules Rules) *AppliedRule {
	var sources []string
	merged := FromClause{}
	index := make(map[string]int)

	for _, group := range authorGroups {
		rule := ruleForGroup(group, rules)
		if rule == nil {
			continue
		}
		sources = append(sources, group)
		for _, req := range rule.Clause {
			if i, ok := index[req.Token]; ok {
				merged[i].Count = max(merged[i].Count, req.Count)
				continue
			}
			index[req.Token] = len(merged)
			merged = append(merged, req)
		}
	}

	if len(sources) == 0 {
		return nil
	}
	return &AppliedRule{Kind: RuleMergedGroups, SourceGroups: sources, Clause: merged}
}

func cloneClause(c FromClause) FromClause {
	out := make(FromClause, len(c))
	copy(out, c)
	return out
}
