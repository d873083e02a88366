package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/codeGROOVE-dev/group-reviewers/pkg/assign"
	"github.com/codeGROOVE-dev/group-reviewers/pkg/selection"
	"github.com/codeGROOVE-dev/group-reviewers/pkg/types"
)

func sampleOutcome() *assign.Outcome {
	return &assign.Outcome{
		PR: &types.PullRequest{
			Owner: "acme", Repository: "api", Number: 7,
			Title: "Add thing", Author: "alice", State: "open",
		},
		Existing: []string{"bob"},
		Result: selection.Result{
			AppliedRule: &selection.AppliedRule{Kind: selection.RuleByAuthorGroup, Group: "backend"},
			SelectedReviewers: []string{"carol"},
			Process: []selection.Step{
				{
					Token: "backend", ResolvedGroups: []string{"backend"},
					CandidatePool: []string{"alice", "bob", "carol"}, Picked: []string{"carol"},
					CountRequired: 2, AlreadySatisfied: 1, CountStillNeeded: 1,
				},
				{
					Token: "frontend", ResolvedGroups: []string{"frontend"},
					CandidatePool: []string{}, Picked: []string{},
					CountRequired: 1, AlreadySatisfied: 0, CountStillNeeded: 1,
				},
			},
		},
		Applied: true,
	}
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	if err := Console(&buf, sampleOutcome()); err != nil {
		t.Fatal(err)
	}
	got := buf.String()
	for _, want := range []string{
		"acme/api#7 Add thing (by alice)",
		"by_author_group[backend]",
		"backend  required 2, already 1, picked carol",
		"pool: alice, bob, carol",
		"only 0 of 1 needed reviewers available",
		"carol",
		"(requested)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("console output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "\x1b[") {
		t.Errorf("expected no ANSI escapes when writing to a buffer:\n%q", got)
	}
}

func TestConsole_Skipped(t *testing.T) {
	out := &assign.Outcome{PR: sampleOutcome().PR, Skipped: assign.SkipDraft}
	var buf bytes.Buffer
	if err := Console(&buf, out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), assign.SkipDraft) || strings.Contains(buf.String(), "Rule") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		out  assign.Outcome
		want string
	}{
		{"skipped", assign.Outcome{Skipped: "x"}, "skipped"},
		{"empty", assign.Outcome{Applied: true}, "nothing to request"},
		{"applied", assign.Outcome{Applied: true, Result: selection.Result{SelectedReviewers: []string{"a"}}}, "requested"},
		{"dry run", assign.Outcome{DryRun: true, Result: selection.Result{SelectedReviewers: []string{"a"}}}, "dry run"},
		{"failed", assign.Outcome{Result: selection.Result{SelectedReviewers: []string{"a"}}}, "not requested"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Status(&tt.out); got != tt.want {
				t.Errorf("Status = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTarget_Simulation(t *testing.T) {
	if got := Target(&assign.Outcome{}); got != "simulation" {
		t.Errorf("Target = %q", got)
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON(&buf, sampleOutcome()); err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Result struct {
			AppliedRule struct {
				Kind  string `json:"kind"`
				Group string `json:"group"`
			} `json:"applied_rule"`
			SelectedReviewers []string `json:"selected_reviewers"`
		} `json:"result"`
		Applied bool `json:"applied"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if decoded.Result.AppliedRule.Kind != "by_author_group" || decoded.Result.AppliedRule.Group != "backend" {
		t.Errorf("applied rule = %+v", decoded.Result.AppliedRule)
	}
	if !decoded.Applied || len(decoded.Result.SelectedReviewers) != 1 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleOutcome())
	for _, want := range []string{
		"### Reviewer assignment: acme/api#7",
		"**Rule:** `by_author_group[backend]`",
		"**Existing reviewers:** @bob",
		"**Selected reviewers:** @carol (requested)",
		"| `backend` | 2 | 1 | @carol | alice, bob, carol |",
		"| `frontend` | 1 | 0 | _none_ :warning: 1 short | _none_ |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestWriteActions(t *testing.T) {
	dir := t.TempDir()
	summary := filepath.Join(dir, "summary.md")
	output := filepath.Join(dir, "output")
	if err := os.WriteFile(output, []byte("earlier=1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GITHUB_STEP_SUMMARY", summary)
	t.Setenv("GITHUB_OUTPUT", output)

	out := sampleOutcome()
	out.Result.SelectedReviewers = []string{"carol", "erin"}
	if err := WriteActions(out); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	want := "earlier=1\nreviewers=carol,erin\napplied_rule=by_author_group[backend]\ncount=2\n"
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("GITHUB_OUTPUT mismatch (-want +got):\n%s", diff)
	}

	md, err := os.ReadFile(summary)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(md), "@carol, @erin") {
		t.Errorf("summary missing reviewers:\n%s", md)
	}
}

func TestWriteActions_Unset(t *testing.T) {
	t.Setenv("GITHUB_STEP_SUMMARY", "")
	t.Setenv("GITHUB_OUTPUT", "")
	if err := WriteActions(sampleOutcome()); err != nil {
		t.Errorf("unexpected error outside Actions: %v", err)
	}
}
