package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/codeGROOVE-dev/sprinkler/pkg/client"

	"github.com/codeGROOVE-dev/group-reviewers/pkg/github"
	"github.com/codeGROOVE-dev/group-reviewers/pkg/types"
)

const (
	eventChannelSize      = 100              // Buffer size for event channel
	eventDedupWindow      = 5 * time.Second  // Time window for deduplicating events
	sprinklerMaxRetries   = 3                // Max retries for PR processing
	sprinklerMaxDelay     = 10 * time.Second // Max delay between retries
	connectionHealthCheck = 2 * time.Minute  // Check connection health every 2 minutes
	maxReconnectAttempts  = 100              // Max outer reconnection attempts
	reconnectBackoff      = 30 * time.Second // Initial backoff between reconnection attempts
	maxReconnectBackoff   = 5 * time.Minute
)

// sprinklerMonitor manages WebSocket event subscriptions for a single org.
type sprinklerMonitor struct {
	mu                sync.RWMutex
	lastConnectedAt   time.Time
	lastEventAt       time.Time
	bot               *Bot
	client            *client.Client
	eventChan         chan types.PRRef // PRs that need processing
	stopChan          chan struct{}
	org               string
	reconnectAttempts int
	isRunning         bool
	isConnected       bool
}

// newSprinklerMonitor creates a new sprinkler monitor for a specific org.
func newSprinklerMonitor(bot *Bot, org string) *sprinklerMonitor {
	return &sprinklerMonitor{
		bot:       bot,
		org:       org,
		eventChan: make(chan types.PRRef, eventChannelSize),
		stopChan:  make(chan struct{}),
	}
}

// start begins monitoring for PR events for this org.
func (sm *sprinklerMonitor) start(ctx context.Context) {
	sm.mu.Lock()
	if sm.isRunning {
		sm.mu.Unlock()
		return
	}
	sm.isRunning = true
	sm.mu.Unlock()

	slog.Info("Starting event monitor for org", "component", "sprinkler", "org", sm.org)
	go sm.processEvents(ctx)
	go sm.manageConnection(ctx)
	go sm.monitorHealth(ctx)
}

// manageConnection restarts the WebSocket client whenever it gives up.
// The sprinkler client reconnects internally; this loop only handles fatal exits.
func (sm *sprinklerMonitor) manageConnection(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Connection manager panic", "component", "sprinkler", "org", sm.org, "panic", r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sm.stopChan:
			return
		default:
		}

		backoff := 5 * time.Second
		if err := sm.connectWebSocket(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				slog.Info("WebSocket client stopped due to context cancellation", "component", "sprinkler", "org", sm.org)
				return
			}

			sm.mu.Lock()
			sm.reconnectAttempts++
			attempts := sm.reconnectAttempts
			sm.mu.Unlock()

			if attempts >= maxReconnectAttempts {
				slog.Error("Max outer reconnection attempts reached, giving up", "component", "sprinkler", "org", sm.org, "attempts", attempts)
				return
			}
			backoff = min(reconnectBackoff*time.Duration(attempts), maxReconnectBackoff)
			slog.Warn("WebSocket client gave up, will restart after backoff",
				"component", "sprinkler",
				"org", sm.org,
				"outer_attempt", attempts,
				"backoff", backoff,
				"error", err)
		} else {
			sm.mu.Lock()
			sm.reconnectAttempts = 0
			sm.mu.Unlock()
		}

		select {
		case <-ctx.Done():
			return
		case <-sm.stopChan:
			return
		case <-time.After(backoff):
		}
	}
}

// connectWebSocket runs one WebSocket client until it exits.
// The token is fetched per connection; manageConnection reconnects with a fresh one.
func (sm *sprinklerMonitor) connectWebSocket(ctx context.Context) error {
	token, err := sm.bot.client.ForOrg(sm.org).Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}

	wsClient, err := client.New(sm.clientConfig(token))
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	sm.mu.Lock()
	sm.client = wsClient
	sm.mu.Unlock()

	startTime := time.Now()
	if err := wsClient.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("WebSocket client stopped with error",
			"component", "sprinkler",
			"org", sm.org,
			"uptime", time.Since(startTime).Round(time.Second),
			"error", err)
		return err
	}

	slog.Info("WebSocket client stopped", "component", "sprinkler", "org", sm.org, "uptime", time.Since(startTime).Round(time.Second))
	return ctx.Err()
}

// clientConfig builds the sprinkler subscription for this org's pull_request events.
func (sm *sprinklerMonitor) clientConfig(token string) client.Config {
	return client.Config{
		ServerURL:    "wss://" + client.DefaultServerAddress + "/ws",
		Organization: sm.org,
		Token:        token,
		EventTypes:   []string{"pull_request"},
		OnConnect: func() {
			sm.mu.Lock()
			sm.isConnected = true
			sm.lastConnectedAt = time.Now()
			sm.mu.Unlock()
			slog.Info("WebSocket connected", "component", "sprinkler", "org", sm.org)
		},
		OnDisconnect: func(err error) {
			sm.mu.Lock()
			wasConnected := sm.isConnected
			sm.isConnected = false
			sm.mu.Unlock()
			if err != nil && !errors.Is(err, context.Canceled) && wasConnected {
				slog.Warn("WebSocket disconnected", "component", "sprinkler", "org", sm.org, "error", err)
			}
		},
		OnEvent: sm.handleEvent,
	}
}

// monitorHealth periodically logs the connection state.
func (sm *sprinklerMonitor) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(connectionHealthCheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sm.stopChan:
			return
		case <-ticker.C:
			h := sm.healthStatus()
			switch {
			case h.connected:
				slog.Info("Sprinkler health check - connected",
					"component", "sprinkler",
					"org", sm.org,
					"connected_for", time.Since(h.lastConnectedAt).Round(time.Second),
					"last_event_at", h.lastEventAt)
			case !h.lastConnectedAt.IsZero():
				slog.Warn("Sprinkler health check - disconnected",
					"component", "sprinkler",
					"org", sm.org,
					"disconnected_for", time.Since(h.lastConnectedAt).Round(time.Second))
			default:
				slog.Info("Sprinkler health check - not yet connected", "component", "sprinkler", "org", sm.org)
			}
		}
	}
}

// handleEvent queues PR events for this org, dropping repeats within eventDedupWindow.
func (sm *sprinklerMonitor) handleEvent(event client.Event) {
	if event.Type != "pull_request" {
		return
	}
	if event.URL == "" {
		slog.Warn("Received PR event with empty URL", "component", "sprinkler")
		return
	}

	ref, err := github.ParsePRURL(event.URL)
	if err != nil {
		slog.Warn("Failed to parse PR URL", "component", "sprinkler", "url", event.URL, "org", sm.org, "error", err)
		return
	}
	if ref.Owner != sm.org {
		slog.Debug("Ignoring event for different org", "component", "sprinkler", "event_org", ref.Owner, "monitor_org", sm.org)
		return
	}

	if sm.bot.events.Mark(ref.String(), struct{}{}) {
		return
	}

	sm.mu.Lock()
	sm.lastEventAt = time.Now()
	sm.mu.Unlock()

	slog.Info("PR event received", "component", "sprinkler", "pr", ref.String())
	select {
	case sm.eventChan <- ref:
	default:
		slog.Warn("Event channel full, dropping event", "component", "sprinkler", "pr", ref.String())
	}
}

// processEvents drains the event channel.
func (sm *sprinklerMonitor) processEvents(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event processor panic", "component", "sprinkler", "panic", r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sm.stopChan:
			return
		case ref := <-sm.eventChan:
			sm.processEvent(ctx, ref)
		}
	}
}

// processEvent processes a single PR event with retries.
func (sm *sprinklerMonitor) processEvent(ctx context.Context, ref types.PRRef) {
	startTime := time.Now()
	slog.Info("Processing PR event", "component", "sprinkler", "pr", ref.String())

	err := retry.Do(func() error {
		return sm.bot.processSinglePR(ctx, ref)
	},
		retry.Attempts(sprinklerMaxRetries),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxDelay(sprinklerMaxDelay),
		retry.OnRetry(func(n uint, err error) {
			slog.Info("Retrying PR processing", "component", "sprinkler", "attempt", n+1, "pr", ref.String(), "error", err)
		}),
		retry.Context(ctx),
	)
	if err != nil {
		slog.Error("Failed to process PR after retries",
			"component", "sprinkler",
			"pr", ref.String(),
			"elapsed", time.Since(startTime).Round(time.Millisecond),
			"error", err)
		return
	}

	slog.Info("Successfully processed PR",
		"component", "sprinkler",
		"pr", ref.String(),
		"elapsed", time.Since(startTime).Round(time.Millisecond))
}

// stop stops the sprinkler monitor.
func (sm *sprinklerMonitor) stop() {
	sm.mu.Lock()
	if !sm.isRunning {
		sm.mu.Unlock()
		return
	}
	sm.isRunning = false
	wsClient := sm.client
	sm.mu.Unlock()

	close(sm.stopChan)
	if wsClient != nil {
		wsClient.Stop()
	}
	slog.Info("Event monitor stopped", "component", "sprinkler", "org", sm.org)
}

type monitorStatus struct {
	lastConnectedAt   time.Time
	lastEventAt       time.Time
	org               string
	reconnectAttempts int
	connected         bool
	running           bool
}

// healthStatus returns a snapshot of the monitor's state.
func (sm *sprinklerMonitor) healthStatus() monitorStatus {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return monitorStatus{
		lastConnectedAt:   sm.lastConnectedAt,
		lastEventAt:       sm.lastEventAt,
		org:               sm.org,
		reconnectAttempts: sm.reconnectAttempts,
		connected:         sm.isConnected,
		running:           sm.isRunning,
	}
}
