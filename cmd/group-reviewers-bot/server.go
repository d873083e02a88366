package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeGROOVE-dev/group-reviewers/pkg/types"
)

const staleAfter = 15 * time.Minute

// MetricsCollector tracks metrics for the health endpoint.
type MetricsCollector struct {
	uniqueOrgs        map[string]bool
	uniquePRsSeen     map[string]bool
	uniquePRsModified map[string]bool
	lastRun           time.Time
	mu                sync.RWMutex
	totalRuns         atomic.Int64
	pollingMu         sync.Mutex
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		uniqueOrgs:        make(map[string]bool),
		uniquePRsSeen:     make(map[string]bool),
		uniquePRsModified: make(map[string]bool),
	}
}

// RecordOrg records an organization being processed.
func (m *MetricsCollector) RecordOrg(org string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uniqueOrgs[org] = true
}

// RecordPRSeen records a PR that was looked at.
func (m *MetricsCollector) RecordPRSeen(ref types.PRRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uniquePRsSeen[ref.String()] = true
}

// RecordPRModified records a PR that got reviewers.
func (m *MetricsCollector) RecordPRModified(ref types.PRRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uniquePRsModified[ref.String()] = true
}

// RecordRunComplete records that a run has completed.
func (m *MetricsCollector) RecordRunComplete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRun = time.Now()
	m.totalRuns.Add(1)
}

// Stats represents collected metrics.
type Stats struct {
	LastRun     time.Time
	TotalRuns   int64
	Orgs        int
	PRsSeen     int
	PRsModified int
}

// Stats returns the current statistics.
func (m *MetricsCollector) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Orgs:        len(m.uniqueOrgs),
		PRsSeen:     len(m.uniquePRsSeen),
		PRsModified: len(m.uniquePRsModified),
		LastRun:     m.lastRun,
		TotalRuns:   m.totalRuns.Load(),
	}
}

// handler returns the bot's HTTP routes.
func (b *Bot) handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/_-_/health", func(w http.ResponseWriter, _ *http.Request) {
		stats := b.metrics.Stats()

		status := "ok"
		statusCode := http.StatusOK
		if stats.TotalRuns > 0 && time.Since(stats.LastRun) > staleAfter {
			status = "stale"
			statusCode = http.StatusServiceUnavailable
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%s - %d organizations, %d PRs seen, %d PRs modified (last: %s, runs: %d)\n",
			status, stats.Orgs, stats.PRsSeen, stats.PRsModified,
			stats.LastRun.Format(time.RFC3339), stats.TotalRuns)
		for _, line := range b.monitorStatusLines() {
			sb.WriteString(line + "\n")
		}

		w.WriteHeader(statusCode)
		if _, err := w.Write([]byte(sb.String())); err != nil {
			slog.Warn("Failed to write response", "error", err)
		}
	})

	mux.HandleFunc("/_-_/poll", func(w http.ResponseWriter, _ *http.Request) {
		if !b.metrics.pollingMu.TryLock() {
			w.WriteHeader(http.StatusConflict)
			if _, err := w.Write([]byte("Polling already in progress\n")); err != nil {
				slog.Warn("Failed to write response", "error", err)
			}
			return
		}

		// The poll outlives the request, so it must not inherit its cancellation.
		go func() {
			defer b.metrics.pollingMu.Unlock()
			pollCtx := context.WithoutCancel(ctx)

			slog.Info("Manual poll triggered")
			startTime := time.Now()
			if err := b.processAllOrgs(pollCtx); err != nil {
				slog.Error("Manual poll failed", "error", err)
				return
			}
			b.metrics.RecordRunComplete()
			slog.Info("Manual poll completed", "duration", time.Since(startTime))
		}()

		w.WriteHeader(http.StatusAccepted)
		if _, err := w.Write([]byte("Poll triggered\n")); err != nil {
			slog.Warn("Failed to write response", "error", err)
		}
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Group Reviewers Bot\n/_-_/health - Health status\n/_-_/poll - Trigger manual poll\n")); err != nil {
			slog.Warn("Failed to write response", "error", err)
		}
	})

	return mux
}

// monitorStatusLines describes each event monitor, sorted by org.
func (b *Bot) monitorStatusLines() []string {
	b.monitorsMu.Lock()
	monitors := make([]*sprinklerMonitor, 0, len(b.sprinklerMonitors))
	for _, m := range b.sprinklerMonitors {
		monitors = append(monitors, m)
	}
	b.monitorsMu.Unlock()

	lines := make([]string, 0, len(monitors))
	for _, m := range monitors {
		h := m.healthStatus()
		line := fmt.Sprintf("  events %s: connected=%t reconnects=%d", h.org, h.connected, h.reconnectAttempts)
		if !h.lastEventAt.IsZero() {
			line += " last_event=" + h.lastEventAt.Format(time.RFC3339)
		}
		lines = append(lines, line)
	}
	sort.Strings(lines)
	return lines
}

// startHealthServer serves the health and poll endpoints until ctx is cancelled.
func (b *Bot) startHealthServer(ctx context.Context) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      b.handler(ctx),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Health server shutdown failed", "error", err)
		}
	}()

	slog.Info("Starting health server", "port", port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Health server failed", "error", err)
	}
}
