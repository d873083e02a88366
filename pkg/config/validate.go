package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/codeGROOVE-dev/group-reviewers/pkg/selection"
)

// ErrInvalidConfig matches every validation failure via errors.Is.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError describes one problem with the configuration.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Is makes errors.Is(err, ErrInvalidConfig) true for validation errors.
func (*ValidationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Validate reports every problem in the configuration, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	fail := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if len(c.Groups) == 0 {
		fail("groups", "at least one group is required")
	}

	known := make(map[string]bool, len(c.Groups))
	for i, g := range c.Groups {
		field := fmt.Sprintf("groups[%d]", i)
		name := strings.TrimSpace(g.Name)
		switch {
		case name == "":
			fail(field, "name is required")
		case name != g.Name:
			fail(field, "name %q has surrounding whitespace", g.Name)
		case name == "*" || strings.HasPrefix(name, "!") || strings.Contains(name, ","):
			fail(field, "name %q clashes with group-key token syntax", g.Name)
		case known[name]:
			fail(field, "duplicate group name %q", g.Name)
		}
		known[g.Name] = true

		for j, m := range g.Members {
			if strings.TrimSpace(m) == "" {
				fail(fmt.Sprintf("%s.members[%d]", field, j), "member name is empty")
			}
		}
	}

	checkClause := func(field string, clause Clause) {
		for _, e := range clause {
			entryField := fmt.Sprintf("%s[%q]", field, e.Token)
			if e.Count < 0 {
				fail(entryField, "count must not be negative (got %d)", e.Count)
			}
			switch {
			case e.Token == "*":
			case strings.HasPrefix(e.Token, "!"):
				names := selection.ParseExclusion(e.Token)
				if len(names) == 0 {
					fail(entryField, "exclusion token lists no groups")
				}
				for _, n := range names {
					if !known[n] {
						fail(entryField, "unknown group %q", n)
					}
				}
			case !known[e.Token]:
				fail(entryField, "unknown group %q", e.Token)
			}
		}
	}

	if c.SelectionRules.Default != nil {
		checkClause("selection_rules.default", *c.SelectionRules.Default)
	}
	if c.SelectionRules.NonGroupMembers != nil {
		checkClause("selection_rules.non_group_members", *c.SelectionRules.NonGroupMembers)
	}
	for _, r := range c.SelectionRules.ByAuthorGroup {
		field := fmt.Sprintf("selection_rules.by_author_group[%q]", r.Group)
		if !known[r.Group] {
			fail(field, "unknown group %q", r.Group)
		}
		checkClause(field, r.From)
	}

	switch selection.Strategy(c.Options.MultiGroupStrategy) {
	case "", selection.StrategyMerge, selection.StrategyFirst:
	default:
		fail("options.multi_group_strategy", "must be %q or %q (got %q)",
			selection.StrategyMerge, selection.StrategyFirst, c.Options.MultiGroupStrategy)
	}

	return errors.Join(errs...)
}
