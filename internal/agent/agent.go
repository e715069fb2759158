// Package agent implements the long-lived launch agent: a single polling
// loop that claims run specs from the service's run queues and dispatches
// each one through the resolve → load → submit pipeline.
package agent

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tracklab/launch/internal/api"
	"github.com/tracklab/launch/internal/backend"
	"github.com/tracklab/launch/internal/ctxlog"
	"github.com/tracklab/launch/internal/project"
	"github.com/tracklab/launch/internal/spec"
)

// API is the slice of the service client the agent needs.
type API interface {
	backend.APIClient
	PopFromQueue(ctx context.Context, entity, project string, queues []string) (*api.QueueItem, error)
	Ack(ctx context.Context, itemID string) error
}

// Config holds the agent's runtime settings.
type Config struct {
	Entity       string
	Project      string
	Queues       []string
	PollInterval time.Duration
	MaxJobs      int

	// BackendDefaults carries the per-backend config bags from launch.hcl,
	// keyed by resource name. A queue item's own config overrides them.
	BackendDefaults map[string]map[string]any
}

const (
	defaultPollInterval = 5 * time.Second
	maxBackoff          = time.Minute
	heartbeatInterval   = 30 * time.Second
)

// Agent polls run queues and dispatches claimed items to backends. The poll
// loop is the only goroutine that claims items; dispatched jobs run on
// worker slots bounded by MaxJobs.
type Agent struct {
	id       string
	client   API
	registry *backend.Registry
	cfg      Config

	slots chan struct{}

	mu       sync.Mutex
	inFlight map[string]backend.RunHandle
}

// New builds an agent. Zero-value config fields get working defaults:
// one worker slot, the default queue, a 5s poll interval.
func New(client API, registry *backend.Registry, cfg Config) *Agent {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = 1
	}
	if len(cfg.Queues) == 0 {
		cfg.Queues = []string{"default"}
	}

	return &Agent{
		id:       uuid.NewString(),
		client:   client,
		registry: registry,
		cfg:      cfg,
		slots:    make(chan struct{}, cfg.MaxJobs),
		inFlight: make(map[string]backend.RunHandle),
	}
}

// ID returns the agent's identifier.
func (a *Agent) ID() string { return a.id }

// InFlight returns the number of dispatched runs that have not finished.
func (a *Agent) InFlight() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inFlight)
}

// Loop polls until ctx is cancelled or a terminal failure occurs. Transient
// poll errors are retried with bounded exponential backoff; authentication
// and authorization failures stop the loop and surface to the operator.
func (a *Agent) Loop(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("agentID", a.id, "entity", a.cfg.Entity, "project", a.cfg.Project)
	ctx = ctxlog.WithLogger(ctx, logger)

	logger.Info("Launch agent starting.",
		"queues", strings.Join(a.cfg.Queues, ","),
		"maxJobs", a.cfg.MaxJobs,
		"pollInterval", a.cfg.PollInterval,
		"goos", runtime.GOOS)

	stopHeartbeat := a.startHeartbeat(ctx)
	defer stopHeartbeat()

	// On shutdown, in-flight runs are cancelled before the dispatch
	// goroutines are drained; an interrupted agent must not orphan the
	// workloads it is supervising.
	var wg sync.WaitGroup
	defer wg.Wait()
	defer a.cancelInFlight(ctx)

	backoff := a.cfg.PollInterval
	for {
		// A worker slot is claimed before the queue item, so the agent never
		// holds an item it has no capacity to dispatch. The queue service
		// remains the source of truth for claims.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a.slots <- struct{}{}:
		}

		item, err := a.client.PopFromQueue(ctx, a.cfg.Entity, a.cfg.Project, a.cfg.Queues)
		if err != nil {
			<-a.slots
			if api.IsAuthError(err) {
				logger.Error("Stopping agent: the service rejected our credentials.", "error", err)
				return fmt.Errorf("launch agent stopped: %w", err)
			}
			logger.Warn("Queue poll failed; backing off.", "error", err, "backoff", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = a.cfg.PollInterval

		if item == nil {
			<-a.slots
			if !sleep(ctx, a.cfg.PollInterval) {
				return ctx.Err()
			}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-a.slots }()
			a.dispatch(ctx, item)
		}()
	}
}

// dispatch converts one claimed queue item into a running handle and
// supervises it to completion. Failures are logged and the item is dropped;
// the agent never retries a dispatch on its own.
func (a *Agent) dispatch(ctx context.Context, item *api.QueueItem) {
	logger := ctxlog.FromContext(ctx).With("itemID", item.ID, "queue", item.Queue)

	runSpec, err := spec.Decode(item.RunSpec)
	if err != nil {
		logger.Error("Dropping queue item with invalid run spec.", "error", err)
		a.ack(ctx, item)
		return
	}

	// The claim is consumed regardless of dispatch outcome.
	a.ack(ctx, item)

	proj, err := project.CreateFromSpec(runSpec)
	if err != nil {
		logger.Error("Dropping queue item: spec did not resolve to a project.", "error", err)
		return
	}
	proj, err = project.FetchAndValidate(ctx, proj)
	if err != nil {
		logger.Error("Dropping queue item: project validation failed.", "uri", runSpec.URI, "error", err)
		return
	}

	runnerCfg := backend.RunnerConfig{}
	for k, v := range a.cfg.BackendDefaults[runSpec.Resource] {
		runnerCfg[k] = v
	}
	for k, v := range runSpec.Config {
		runnerCfg[k] = v
	}
	runnerCfg[backend.KeySynchronous] = true
	runnerCfg[backend.KeyDockerArgs] = runSpec.DockerArgs

	be := a.registry.Load(runSpec.Resource, a.client, runnerCfg)
	if be == nil {
		logger.Error("Dropping queue item: unknown backend.",
			"resource", runSpec.Resource,
			"available", strings.Join(a.registry.Names(), ", "))
		return
	}

	handle, err := be.Submit(ctx, proj)
	if err != nil {
		logger.Error("Dropping queue item: backend submission failed.", "resource", runSpec.Resource, "error", err)
		return
	}

	a.track(handle)
	defer a.untrack(handle)
	logger.Info("Dispatched run.", "runID", handle.ID(), "resource", runSpec.Resource)

	ok := handle.Wait()
	status := handle.Status()
	logger.Info("Run finished.", "runID", handle.ID(), "status", status.String(), "success", ok)
	a.report(ctx, handle.ID(), status)
}

// ack acknowledges a claimed item; failure to ack is logged, not fatal.
func (a *Agent) ack(ctx context.Context, item *api.QueueItem) {
	if err := a.client.Ack(ctx, item.ID); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to acknowledge queue item.", "itemID", item.ID, "error", err)
	}
}

// report sends the terminal status; failure is logged since the run itself
// already finished.
func (a *Agent) report(ctx context.Context, runID string, status backend.Status) {
	if err := a.client.ReportStatus(ctx, runID, status.String()); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to report run status.", "runID", runID, "status", status.String(), "error", err)
	}
}

// track records a dispatched handle in the in-flight set.
func (a *Agent) track(h backend.RunHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inFlight[h.ID()] = h
}

// untrack removes a finished handle from the in-flight set.
func (a *Agent) untrack(h backend.RunHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inFlight, h.ID())
}

// cancelInFlight cancels every tracked handle. Cancel is idempotent, so
// racing with normal completion is harmless.
func (a *Agent) cancelInFlight(ctx context.Context) {
	a.mu.Lock()
	handles := make([]backend.RunHandle, 0, len(a.inFlight))
	for _, h := range a.inFlight {
		handles = append(handles, h)
	}
	a.mu.Unlock()

	if len(handles) == 0 {
		return
	}
	ctxlog.FromContext(ctx).Info("Cancelling in-flight runs before shutdown.", "count", len(handles))
	for _, h := range handles {
		h.Cancel()
	}
}

// startHeartbeat logs the in-flight count periodically until the returned
// stop function is called or ctx ends.
func (a *Agent) startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				ctxlog.FromContext(ctx).Info("Agent heartbeat.", "inFlight", a.InFlight())
			}
		}
	}()
	return func() { close(done) }
}

// sleep waits d or until ctx ends; reports false when interrupted.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
