// Package main implements a GitHub App bot that requests reviewers from
// configured groups on pull requests across all installed organizations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/codeGROOVE-dev/group-reviewers/pkg/assign"
	"github.com/codeGROOVE-dev/group-reviewers/pkg/cache"
	"github.com/codeGROOVE-dev/group-reviewers/pkg/config"
	"github.com/codeGROOVE-dev/group-reviewers/pkg/github"
	"github.com/codeGROOVE-dev/group-reviewers/pkg/selection"
	"github.com/codeGROOVE-dev/group-reviewers/pkg/types"
)

var (
	// GitHub App authentication flags.
	appID      = flag.String("app-id", "", "GitHub App ID for authentication")
	appKeyPath = flag.String("app-key-path", "", "Path to GitHub App private key file")

	// Behavior flags.
	loopDelay   = flag.Duration("loop-delay", 5*time.Minute, "Delay between polling cycles")
	dryRun      = flag.Bool("dry-run", false, "Select reviewers without requesting reviews")
	minAge      = flag.Duration("min-age", 0, "Minimum time since the last PR update before the poll loop assigns (events are never delayed)")
	configPath  = flag.String("config-path", config.DefaultPath, "Path of the reviewer-group configuration inside each repository")
	configCache = flag.Duration("config-cache", 10*time.Minute, "How long repository configurations are cached")
)

// orgClient is the GitHub surface the bot uses for one installation.
type orgClient interface {
	assign.PRClient
	FileContent(ctx context.Context, owner, repo, path string) ([]byte, error)
	SearchOpenPRs(ctx context.Context, account string) ([]types.PRRef, error)
}

// Bot manages reviewer assignment across all installed organizations.
type Bot struct {
	client            *github.Client
	clientFor         func(org string) orgClient
	engine            *selection.Engine
	configs           *cache.Cache[*config.Config] // nil value: repository has no usable config
	events            *cache.Cache[struct{}]       // recently seen PR event URLs
	metrics           *MetricsCollector
	sprinklerMonitors map[string]*sprinklerMonitor // One monitor per org
	configPath        string
	monitorsMu        sync.Mutex
	opts              assign.Options
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "GitHub App bot that requests reviewers from configured groups across all installed organizations.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  GITHUB_APP_ID               - GitHub App ID\n")
		fmt.Fprintf(os.Stderr, "  GITHUB_APP_KEY              - GitHub App private key (PEM); otherwise read from Google Secret Manager\n")
		fmt.Fprintf(os.Stderr, "  GITHUB_APP_KEY_PATH         - Path to GitHub App private key file\n")
		fmt.Fprintf(os.Stderr, "  GITHUB_API_URL              - REST endpoint for GitHub Enterprise\n")
		fmt.Fprintf(os.Stderr, "  PORT                        - HTTP server port (default: 8080)\n")
	}
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := github.New(ctx, github.Config{
		UseAppAuth:  true,
		AppID:       *appID,
		AppKeyPath:  *appKeyPath,
		BaseURL:     os.Getenv("GITHUB_API_URL"),
		HTTPTimeout: 30 * time.Second,
	})
	if err != nil {
		slog.Error("Failed to create GitHub client", "error", err)
		os.Exit(1)
	}

	bot := newBot(client, selection.New(nil), *configPath, *configCache, assign.Options{
		DryRun: *dryRun,
		MinAge: *minAge,
	})
	defer bot.close()

	slog.Info("Starting in server mode", "loop_delay", *loopDelay, "dry_run", *dryRun)
	bot.runServeMode(ctx, *loopDelay)
}

func newBot(client *github.Client, engine *selection.Engine, configPath string, configTTL time.Duration, opts assign.Options) *Bot {
	b := &Bot{
		client:            client,
		engine:            engine,
		configs:           cache.New[*config.Config](configTTL),
		events:            cache.New[struct{}](eventDedupWindow),
		metrics:           NewMetricsCollector(),
		sprinklerMonitors: make(map[string]*sprinklerMonitor),
		configPath:        configPath,
		opts:              opts,
	}
	b.clientFor = func(org string) orgClient { return client.ForOrg(org) }
	return b
}

func (b *Bot) close() {
	b.configs.Close()
	b.events.Close()
}

// processAllOrgs processes all organizations where the GitHub app is installed.
func (b *Bot) processAllOrgs(ctx context.Context) error {
	orgs, err := b.client.ListAppInstallations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list app installations: %w", err)
	}

	if len(orgs) == 0 {
		slog.Info("No organization installations found")
		return nil
	}

	slog.Info("Processing organizations", "count", len(orgs))

	var totalProcessed, totalAssigned, totalSkipped int
	for i, org := range orgs {
		slog.Info("Processing organization", "org", org, "progress", fmt.Sprintf("%d/%d", i+1, len(orgs)))

		processed, assigned, skipped := b.processOrg(ctx, org)
		totalProcessed += processed
		totalAssigned += assigned
		totalSkipped += skipped
		b.metrics.RecordOrg(org)
	}

	slog.Info("Completed all organizations",
		"total_prs", totalProcessed,
		"assigned", totalAssigned,
		"skipped", totalSkipped,
		"orgs", len(orgs))
	return nil
}

// processOrg processes all open PRs for a single organization.
func (b *Bot) processOrg(ctx context.Context, org string) (processed, assigned, skipped int) {
	gh := b.clientFor(org)
	refs, err := gh.SearchOpenPRs(ctx, org)
	if err != nil {
		slog.Warn("Failed to get PRs for org", "org", org, "error", err)
		return 0, 0, 0
	}

	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		processed++
		wasAssigned, err := b.processPR(ctx, gh, ref, b.opts)
		if err != nil {
			slog.Warn("Failed to process PR", "pr", ref.String(), "error", err)
		}
		if wasAssigned {
			assigned++
		} else {
			skipped++
		}
	}
	return processed, assigned, skipped
}

// processSinglePR processes one PR by reference (used by sprinkler).
// Events arrive right after a PR changes, so MinAge does not apply here.
func (b *Bot) processSinglePR(ctx context.Context, ref types.PRRef) error {
	opts := b.opts
	opts.MinAge = 0
	_, err := b.processPR(ctx, b.clientFor(ref.Owner), ref, opts)
	return err
}

// processPR assigns reviewers to one PR if its repository is configured.
func (b *Bot) processPR(ctx context.Context, gh orgClient, ref types.PRRef, opts assign.Options) (bool, error) {
	b.metrics.RecordPRSeen(ref)

	cfg, err := b.repoConfig(ctx, gh, ref.Owner, ref.Repo)
	if err != nil {
		return false, err
	}
	if cfg == nil {
		slog.Debug("Skipping PR in repository without reviewer groups", "pr", ref.String())
		return false, nil
	}

	out, err := assign.New(gh, b.engine, opts).Assign(ctx, ref, cfg)
	if err != nil {
		return false, err
	}
	if out.Applied || (out.DryRun && len(out.Result.SelectedReviewers) > 0) {
		b.metrics.RecordPRModified(ref)
		return true, nil
	}
	return false, nil
}

// repoConfig returns the repository's reviewer-group configuration, or nil when
// it has none or it is invalid. Both results are cached.
func (b *Bot) repoConfig(ctx context.Context, gh orgClient, owner, repo string) (*config.Config, error) {
	key := owner + "/" + repo
	if cfg, ok := b.configs.Get(key); ok {
		return cfg, nil
	}

	data, err := gh.FileContent(ctx, owner, repo, b.configPath)
	if errors.Is(err, github.ErrNotFound) {
		b.configs.Set(key, nil)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch config for %s: %w", key, err)
	}

	cfg, err := config.Parse(data)
	if err != nil {
		slog.Warn("Ignoring invalid reviewer-group config", "repo", key, "path", b.configPath, "error", err)
		b.configs.Set(key, nil)
		return nil, nil
	}
	b.configs.Set(key, cfg)
	return cfg, nil
}

// runServeMode runs the bot in server mode with periodic execution.
func (b *Bot) runServeMode(ctx context.Context, loopDelay time.Duration) {
	go b.startHealthServer(ctx)

	defer func() {
		b.monitorsMu.Lock()
		defer b.monitorsMu.Unlock()
		for org, monitor := range b.sprinklerMonitors {
			slog.Info("Stopping sprinkler monitor", "org", org)
			monitor.stop()
		}
	}()

	// Run immediately, then loop
	for {
		slog.Info("Starting reviewer assignment run")
		startTime := time.Now()

		if err := b.processAllOrgs(ctx); err != nil {
			slog.Error("Failed to process app installations", "error", err)
		}

		// Check for new/removed orgs and update sprinkler monitors
		b.updateSprinklerMonitors(ctx)

		b.metrics.RecordRunComplete()
		slog.Info("Run completed", "duration", time.Since(startTime), "sleep_duration", loopDelay)

		timer := time.NewTimer(loopDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("Context cancelled, shutting down")
			return
		case <-timer.C:
		}
	}
}

// updateSprinklerMonitors checks for new/removed orgs and updates sprinkler monitors accordingly.
func (b *Bot) updateSprinklerMonitors(ctx context.Context) {
	orgs, err := b.client.ListAppInstallations(ctx)
	if err != nil {
		slog.Warn("Failed to list organizations for sprinkler update", "error", err)
		return
	}

	currentOrgs := make(map[string]bool)
	for _, org := range orgs {
		currentOrgs[org] = true
	}

	b.monitorsMu.Lock()
	defer b.monitorsMu.Unlock()

	for org, monitor := range b.sprinklerMonitors {
		if !currentOrgs[org] {
			slog.Info("Stopping sprinkler for removed org", "org", org)
			monitor.stop()
			delete(b.sprinklerMonitors, org)
		}
	}

	for _, org := range orgs {
		if _, exists := b.sprinklerMonitors[org]; exists {
			continue
		}
		monitor := newSprinklerMonitor(b, org)
		monitor.start(ctx)
		b.sprinklerMonitors[org] = monitor
		slog.Info("Started sprinkler monitor", "org", org)
	}
}
