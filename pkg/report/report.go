// Package report renders assignment outcomes for terminals, JSON consumers and
// GitHub Actions.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/codeGROOVE-dev/group-reviewers/pkg/assign"
)

// Palette.
var (
	colorAccent = lipgloss.Color("#2196F3")
	colorOK     = lipgloss.Color("#8BC34A")
	colorWarn   = lipgloss.Color("#FFC107")
	colorMuted  = lipgloss.Color("#8a8f98")
)

type styles struct {
	label  lipgloss.Style
	title  lipgloss.Style
	ok     lipgloss.Style
	warn   lipgloss.Style
	muted  lipgloss.Style
	result lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		label:  r.NewStyle().Width(12).Foreground(colorMuted),
		title:  r.NewStyle().Bold(true).Foreground(colorAccent),
		ok:     r.NewStyle().Foreground(colorOK),
		warn:   r.NewStyle().Foreground(colorWarn).Bold(true),
		muted:  r.NewStyle().Foreground(colorMuted),
		result: r.NewStyle().Bold(true),
	}
}

// Console writes a human-readable report of out to w. Colors are only used
// when w is a terminal.
func Console(w io.Writer, out *assign.Outcome) error {
	st := newStyles(lipgloss.NewRenderer(w))
	var b strings.Builder

	line := func(label, value string) {
		b.WriteString(st.label.Render(label))
		b.WriteString(value)
		b.WriteByte('\n')
	}

	line("Target", st.title.Render(Target(out)))
	if out.Skipped != "" {
		line("Skipped", st.warn.Render(out.Skipped))
		_, err := io.WriteString(w, b.String())
		return err
	}

	line("Rule", out.Result.AppliedRule.Describe())
	line("Existing", listOrNone(out.Existing))

	for _, s := range out.Result.Process {
		mark := st.ok.Render("ok")
		if s.Short() {
			mark = st.warn.Render("!!")
		}
		detail := fmt.Sprintf("%s  required %d, already %d, picked %s",
			s.Token, s.CountRequired, s.AlreadySatisfied, listOrNone(s.Picked))
		b.WriteString("  " + mark + " " + detail + "\n")
		b.WriteString("       " + st.muted.Render("pool: "+listOrNone(s.CandidatePool)) + "\n")
		if s.Short() {
			b.WriteString("       " + st.warn.Render(fmt.Sprintf("only %d of %d needed reviewers available", len(s.Picked), s.CountStillNeeded)) + "\n")
		}
	}

	line("Reviewers", st.result.Render(listOrNone(out.Result.SelectedReviewers))+" "+st.muted.Render("("+Status(out)+")"))

	_, err := io.WriteString(w, b.String())
	return err
}

// JSON writes out as indented JSON.
func JSON(w io.Writer, out *assign.Outcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// Target names what the outcome is about.
func Target(out *assign.Outcome) string {
	if out.PR == nil {
		return "simulation"
	}
	t := out.PR.Ref().String()
	if out.PR.Title != "" {
		t += " " + out.PR.Title
	}
	if out.PR.Author != "" {
		t += " (by " + out.PR.Author + ")"
	}
	return t
}

// Status summarizes what was done with the selection.
func Status(out *assign.Outcome) string {
	switch {
	case out.Skipped != "":
		return "skipped"
	case len(out.Result.SelectedReviewers) == 0:
		return "nothing to request"
	case out.Applied:
		return "requested"
	case out.DryRun:
		return "dry run"
	default:
		return "not requested"
	}
}

func listOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
