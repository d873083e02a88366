package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/codeGROOVE-dev/group-reviewers/pkg/assign"
)

// Markdown renders out as a GitHub Actions job summary.
func Markdown(out *assign.Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Reviewer assignment: %s\n\n", Target(out))

	if out.Skipped != "" {
		fmt.Fprintf(&b, "Skipped: %s\n", out.Skipped)
		return b.String()
	}

	fmt.Fprintf(&b, "**Rule:** `%s`  \n", out.Result.AppliedRule.Describe())
	fmt.Fprintf(&b, "**Existing reviewers:** %s  \n", mdUsers(out.Existing))
	fmt.Fprintf(&b, "**Selected reviewers:** %s (%s)\n\n", mdUsers(out.Result.SelectedReviewers), Status(out))

	if len(out.Result.Process) > 0 {
		b.WriteString("| Token | Required | Already satisfied | Picked | Pool |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, s := range out.Result.Process {
			picked := mdUsers(s.Picked)
			if s.Short() {
				picked += fmt.Sprintf(" :warning: %d short", s.CountStillNeeded-len(s.Picked))
			}
			fmt.Fprintf(&b, "| `%s` | %d | %d | %s | %s |\n",
				s.Token, s.CountRequired, s.AlreadySatisfied, picked, mdList(s.CandidatePool))
		}
	}
	return b.String()
}

func mdUsers(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "@" + n
	}
	return mdList(quoted)
}

// mdList joins names without mentioning them. Pools can be large, so they stay plain.
func mdList(names []string) string {
	if len(names) == 0 {
		return "_none_"
	}
	return strings.Join(names, ", ")
}

// Outputs returns the step outputs for out, in a stable order.
func Outputs(out *assign.Outcome) [][2]string {
	return [][2]string{
		{"reviewers", strings.Join(out.Result.SelectedReviewers, ",")},
		{"applied_rule", out.Result.AppliedRule.Describe()},
		{"count", fmt.Sprint(len(out.Result.SelectedReviewers))},
	}
}

// WriteActions appends the job summary and step outputs to the files named by
// GITHUB_STEP_SUMMARY and GITHUB_OUTPUT. Unset variables are ignored, so this is
// a no-op outside of Actions.
func WriteActions(out *assign.Outcome) error {
	if path := os.Getenv("GITHUB_STEP_SUMMARY"); path != "" {
		if err := appendFile(path, Markdown(out)); err != nil {
			return fmt.Errorf("failed to write job summary: %w", err)
		}
	}
	if path := os.Getenv("GITHUB_OUTPUT"); path != "" {
		var b strings.Builder
		for _, kv := range Outputs(out) {
			fmt.Fprintf(&b, "%s=%s\n", kv[0], kv[1])
		}
		if err := appendFile(path, b.String()); err != nil {
			return fmt.Errorf("failed to write step outputs: %w", err)
		}
	}
	return nil
}

func appendFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close() //nolint:errcheck // write error takes precedence
		return err
	}
	return f.Close()
}
