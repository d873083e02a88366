package selection

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestResolveToken(t *testing.T) {
	names := []string{"A", "B", "C", "D"}

	tests := []struct {
		name  string
		token string
		want  []string
	}{
		{"star", "*", []string{"A", "B", "C", "D"}},
		{"exclude two", "!A,B", []string{"C", "D"}},
		{"exclude with spaces", "! A , B ", []string{"C", "D"}},
		{"exclude preserves declaration order", "!C,A", []string{"B", "D"}},
		{"exclude unknown name", "!Z", []string{"A", "B", "C", "D"}},
		{"exclude everything", "!A,B,C,D", nil},
		{"bare bang excludes nothing", "!", []string{"A", "B", "C", "D"}},
		{"literal", "B", []string{"B"}},
		{"literal unknown group", "nope", []string{"nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveToken(tt.token, names)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("ResolveToken(%q) mismatch (-want +got):\n%s", tt.token, diff)
			}
		})
	}
}

func TestResolveToken_StarDoesNotAliasInput(t *testing.T) {
	names := []string{"A", "B"}
	got := ResolveToken("*", names)
	got[0] = "changed"
	if names[0] != "A" {
		t.Errorf("ResolveToken modified its input: %v", names)
	}
}

func TestParseExclusion(t *testing.T) {
	tests := []struct {
		token string
		want  []string
	}{
		{"!a,b", []string{"a", "b"}},
		{"!a,,b,", []string{"a", "b"}},
		{"! a", []string{"a"}},
		{"!", nil},
		{"a,b", nil},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got := ParseExclusion(tt.token)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("ParseExclusion(%q) mismatch (-want +got):\n%s", tt.token, diff)
			}
		})
	}
}

func TestBuildPool(t *testing.T) {
	groups := []Group{
		{Name: "backend", Members: []string{"alice", "bob", "charlie"}},
		{Name: "frontend", Members: []string{"charlie", "diana"}},
		{Name: "ops", Members: []string{"erin", "erin"}},
	}

	tests := []struct {
		name   string
		groups []string
		want   []string
	}{
		{"single group", []string{"backend"}, []string{"alice", "bob", "charlie"}},
		{"union keeps first occurrence", []string{"frontend", "backend"}, []string{"charlie", "diana", "alice", "bob"}},
		{"duplicate members collapse", []string{"ops"}, []string{"erin"}},
		{"unknown group contributes nothing", []string{"missing", "frontend"}, []string{"charlie", "diana"}},
		{"no groups", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildPool(tt.groups, groups)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("BuildPool mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
