// Package config loads and validates the reviewer-group configuration file.
//
// Example:
//
//	groups:
//	  - name: backend
//	    members: [alice, bob, charlie]
//	  - name: frontend
//	    members: [erin, frank]
//	selection_rules:
//	  default:
//	    "*": 1
//	  by_author_group:
//	    backend:
//	      backend: 2
//	      "!backend": 1
//	  non_group_members:
//	    backend: 1
//	    frontend: 1
//	options:
//	  multi_group_strategy: merge
//	  skip_drafts: true
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/codeGROOVE-dev/group-reviewers/pkg/selection"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the configuration lives inside a repository.
const DefaultPath = ".github/reviewer-groups.yml"

// Config models the configuration file.
type Config struct {
	Groups         []Group `yaml:"groups"`
	SelectionRules Rules   `yaml:"selection_rules"`
	Options        Options `yaml:"options"`
}

// Group is a named list of GitHub usernames.
type Group struct {
	Name    string   `yaml:"name"`
	Members []string `yaml:"members"`
}

// Rules holds the selection rules. A nil clause is an absent rule.
type Rules struct {
	Default         *Clause          `yaml:"default"`
	NonGroupMembers *Clause          `yaml:"non_group_members"`
	ByAuthorGroup   AuthorGroupRules `yaml:"by_author_group"`
}

// Options tunes selection behavior.
type Options struct {
	SkipDrafts         *bool  `yaml:"skip_drafts"`
	MultiGroupStrategy string `yaml:"multi_group_strategy"`
}

// Entry is one "token: count" pair of a clause.
type Entry struct {
	Token string
	Count int
	Line  int
}

// Clause is an ordered "token: count" mapping.
type Clause []Entry

// UnmarshalYAML decodes a mapping while keeping key order.
func (c *Clause) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: from-clause must be a mapping of group token to count", node.Line)
	}
	out := make(Clause, 0, len(node.Content)/2)
	seen := make(map[string]bool)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if seen[key.Value] {
			return fmt.Errorf("line %d: duplicate group token %q", key.Line, key.Value)
		}
		seen[key.Value] = true

		var count int
		if err := value.Decode(&count); err != nil {
			return fmt.Errorf("line %d: count for %q must be an integer: %w", value.Line, key.Value, err)
		}
		out = append(out, Entry{Token: key.Value, Count: count, Line: key.Line})
	}
	*c = out
	return nil
}

// AuthorGroupRule maps an author group to its clause.
type AuthorGroupRule struct {
	Group string
	From  Clause
	Line  int
}

// AuthorGroupRules is the ordered by_author_group mapping.
type AuthorGroupRules []AuthorGroupRule

// UnmarshalYAML decodes a mapping of group name to clause while keeping key order.
func (r *AuthorGroupRules) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: by_author_group must be a mapping of group name to from-clause", node.Line)
	}
	out := make(AuthorGroupRules, 0, len(node.Content)/2)
	seen := make(map[string]bool)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if seen[key.Value] {
			return fmt.Errorf("line %d: duplicate by_author_group entry %q", key.Line, key.Value)
		}
		seen[key.Value] = true

		var from Clause
		if value.Kind != yaml.ScalarNode || value.Tag != "!!null" {
			if err := value.Decode(&from); err != nil {
				return err
			}
		}
		out = append(out, AuthorGroupRule{Group: key.Value, From: from, Line: key.Line})
	}
	*r = out
	return nil
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ValidationError{Field: "groups", Message: "configuration is empty"}
		}
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Strategy returns the configured multi-group strategy, defaulting to merge.
func (c *Config) Strategy() selection.Strategy {
	if c.Options.MultiGroupStrategy == "" {
		return selection.StrategyMerge
	}
	return selection.Strategy(c.Options.MultiGroupStrategy)
}

// SkipDrafts reports whether draft PRs are left alone. Defaults to true.
func (c *Config) SkipDrafts() bool {
	if c.Options.SkipDrafts == nil {
		return true
	}
	return *c.Options.SkipDrafts
}

// Selection converts the file model into the engine's configuration.
func (c *Config) Selection() selection.Config {
	groups := make([]selection.Group, len(c.Groups))
	for i, g := range c.Groups {
		groups[i] = selection.Group{Name: g.Name, Members: append([]string(nil), g.Members...)}
	}

	rules := selection.Rules{
		Default:         c.SelectionRules.Default.fromClause(),
		NonGroupMembers: c.SelectionRules.NonGroupMembers.fromClause(),
	}
	for _, r := range c.SelectionRules.ByAuthorGroup {
		rules.ByAuthorGroup = append(rules.ByAuthorGroup, selection.GroupRule{
			Group: r.Group,
			From:  *r.From.fromClause(),
		})
	}

	return selection.Config{
		Groups:   groups,
		Rules:    rules,
		Strategy: c.Strategy(),
	}
}

func (c *Clause) fromClause() *selection.FromClause {
	if c == nil {
		return nil
	}
	fc := make(selection.FromClause, len(*c))
	for i, e := range *c {
		fc[i] = selection.Requirement{Token: e.Token, Count: max(0, e.Count)}
	}
	return &fc
}
