package selection

import "strings"

// Group-key token forms.
const (
	tokenAll     = "*"
	tokenExclude = "!"
)

// ResolveToken turns a group-key token into an ordered list of group names.
//
//	"*"       every configured group, in declaration order
//	"!a,b"    every configured group except a and b, in declaration order
//	"name"    the literal group name, whether or not it exists
func ResolveToken(token string, groupNames []string) []string {
	switch {
	case token == tokenAll:
		return append([]string(nil), groupNames...)
	case strings.HasPrefix(token, tokenExclude):
		excluded := make(map[string]bool)
		for _, name := range ParseExclusion(token) {
			excluded[name] = true
		}
		var names []string
		for _, name := range groupNames {
			if !excluded[name] {
				names = append(names, name)
			}
		}
		return names
	default:
		return []string{token}
	}
}

// ParseExclusion returns the group names listed in a "!a,b" token, trimmed.
// Empty pieces are dropped. It returns nil for tokens without the "!" prefix.
func ParseExclusion(token string) []string {
	rest, ok := strings.CutPrefix(token, tokenExclude)
	if !ok {
		return nil
	}
	var names []string
	for _, piece := range strings.Split(rest, ",") {
		if name := strings.TrimSpace(piece); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// BuildPool returns the members of the named groups, in the order the names are
// given and each group's member order, with duplicates removed (first wins).
// Unknown group names contribute nothing.
func BuildPool(groupNames []string, groups []Group) []string {
	byName := make(map[string][]string, len(groups))
	for _, g := range groups {
		if _, dup := byName[g.Name]; !dup {
			byName[g.Name] = g.Members
		}
	}

	seen := make(map[string]bool)
	var pool []string
	for _, name := range groupNames {
		for _, member := range byName[name] {
			if seen[member] {
				continue
			}
			seen[member] = true
			pool = append(pool, member)
		}
	}
	return pool
}

// groupNames lists configured group names in declaration order.
func groupNames(groups []Group) []string {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.Name
	}
	return names
}
