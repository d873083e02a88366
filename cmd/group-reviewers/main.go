// Package main implements a CLI that requests reviewers for a GitHub pull
// request according to the repository's reviewer-group configuration.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/group-reviewers/pkg/assign"
	"github.com/codeGROOVE-dev/group-reviewers/pkg/config"
	"github.com/codeGROOVE-dev/group-reviewers/pkg/github"
	"github.com/codeGROOVE-dev/group-reviewers/pkg/report"
	"github.com/codeGROOVE-dev/group-reviewers/pkg/selection"
	"github.com/codeGROOVE-dev/group-reviewers/pkg/types"
)

type options struct {
	prURL      string
	configPath string
	author     string
	existing   string
	seed       uint64
	timeout    time.Duration
	dryRun     bool
	verbose    bool
	jsonOutput bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (*options, *flag.FlagSet, error) {
	flags := flag.NewFlagSet("group-reviewers", flag.ContinueOnError)
	flags.SetOutput(stderr)

	o := &options{}
	flags.StringVar(&o.prURL, "pr", "", "Pull request URL (e.g., https://github.com/owner/repo/pull/123 or owner/repo#123)")
	flags.StringVar(&o.configPath, "config", config.DefaultPath, "Path to the reviewer-group configuration")
	flags.BoolVar(&o.dryRun, "dry-run", false, "Select reviewers without requesting reviews")
	flags.BoolVar(&o.verbose, "v", false, "Verbose output with per-step selection details")
	flags.BoolVar(&o.jsonOutput, "json", false, "Print the outcome as JSON")
	flags.Uint64Var(&o.seed, "seed", 0, "Seed for reproducible selection (0 = random)")
	flags.StringVar(&o.author, "author", "", "Simulate selection for this author without contacting GitHub")
	flags.StringVar(&o.existing, "existing", "", "Comma-separated existing reviewers (simulation only)")
	flags.DurationVar(&o.timeout, "timeout", 2*time.Minute, "Overall timeout for GitHub calls")

	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: group-reviewers -pr <PR_URL> [options]\n")
		fmt.Fprintf(stderr, "       group-reviewers -author <login> [-existing a,b] [options]\n\n")
		fmt.Fprintf(stderr, "Requests reviewers for a pull request based on reviewer groups.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		flags.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  group-reviewers -pr https://github.com/owner/repo/pull/123\n")
		fmt.Fprintf(stderr, "  group-reviewers -pr owner/repo#123 -dry-run -v\n")
		fmt.Fprintf(stderr, "  group-reviewers -author alice -existing bob -seed 42\n")
	}

	if err := flags.Parse(args); err != nil {
		return nil, flags, err
	}
	if o.prURL == "" && o.author == "" {
		flags.Usage()
		return nil, flags, errors.New("either -pr or -author is required")
	}
	return o, flags, nil
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, flags, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	// Logs go to stderr so -json output stays parseable.
	logLevel := slog.LevelInfo
	if o.verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: logLevel})))

	rng := selection.NewRand()
	if o.seed != 0 {
		rng = selection.NewSeededRand(o.seed)
	}
	engine := selection.New(rng)

	configSet := false
	flags.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			configSet = true
		}
	})

	var out *assign.Outcome
	if o.author != "" {
		out, err = simulate(o, engine)
	} else {
		ctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		out, err = assignPR(ctx, o, engine, configSet)
	}
	if out != nil {
		if rerr := render(stdout, o, out); rerr != nil {
			slog.Error("Failed to write report", "error", rerr)
			return 1
		}
	}
	if err != nil {
		slog.Error("Reviewer assignment failed", "error", err)
		return 1
	}
	return 0
}

func simulate(o *options, engine *selection.Engine) (*assign.Outcome, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	return assign.New(nil, engine, assign.Options{}).Simulate(o.author, splitList(o.existing), cfg), nil
}

func assignPR(ctx context.Context, o *options, engine *selection.Engine, configSet bool) (*assign.Outcome, error) {
	ref, err := github.ParsePRURL(o.prURL)
	if err != nil {
		return nil, err
	}

	client, err := github.New(ctx, github.Config{
		BaseURL:     os.Getenv("GITHUB_API_URL"),
		HTTPTimeout: 30 * time.Second,
	})
	if err != nil {
		slog.Info("Set GITHUB_TOKEN or authenticate the gh CLI (run: gh auth login)")
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}

	cfg, err := loadConfig(ctx, client, ref, o.configPath, configSet)
	if err != nil {
		return nil, err
	}
	return assign.New(client, engine, assign.Options{DryRun: o.dryRun}).Assign(ctx, ref, cfg)
}

// loadConfig reads the local configuration. When the default path is missing
// locally it is fetched from the repository's default branch instead.
func loadConfig(ctx context.Context, client *github.Client, ref types.PRRef, path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil || explicit || !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}

	slog.Info("No local config, fetching from repository", "owner", ref.Owner, "repo", ref.Repo, "path", path)
	data, err := client.FileContent(ctx, ref.Owner, ref.Repo, path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s from %s/%s: %w", path, ref.Owner, ref.Repo, err)
	}
	return config.Parse(data)
}

func render(stdout io.Writer, o *options, out *assign.Outcome) error {
	if err := report.WriteActions(out); err != nil {
		slog.Warn("Failed to write GitHub Actions outputs", "error", err)
	}
	if o.jsonOutput {
		return report.JSON(stdout, out)
	}
	return report.Console(stdout, out)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
