package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklab/launch/internal/api"
	"github.com/tracklab/launch/internal/backend"
	"github.com/tracklab/launch/internal/project"
	"github.com/tracklab/launch/internal/spec"
)

type popResult struct {
	item *api.QueueItem
	err  error
}

// fakeAPI plays back a scripted sequence of pop results; once the script is
// exhausted it reports an empty queue.
type fakeAPI struct {
	mu       sync.Mutex
	pops     []popResult
	popCalls int
	acks     []string
	statuses map[string]string
}

func (f *fakeAPI) BaseURL() string { return "http://localhost:8080" }

func (f *fakeAPI) ReportStatus(ctx context.Context, runID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = map[string]string{}
	}
	f.statuses[runID] = status
	return nil
}

func (f *fakeAPI) PopFromQueue(ctx context.Context, entity, proj string, queues []string) (*api.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.popCalls++
	if len(f.pops) == 0 {
		return nil, nil
	}
	next := f.pops[0]
	f.pops = f.pops[1:]
	return next.item, next.err
}

func (f *fakeAPI) Ack(ctx context.Context, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, itemID)
	return nil
}

func (f *fakeAPI) ackedItems() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acks...)
}

func (f *fakeAPI) statusOf(runID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[runID]
}

type stubHandle struct {
	id string
	lc *backend.Lifecycle
}

func newFinishedHandle(id string, st backend.Status) *stubHandle {
	h := &stubHandle{id: id, lc: backend.NewLifecycle()}
	h.lc.Run()
	h.lc.Finish(st)
	return h
}

func (h *stubHandle) ID() string             { return h.id }
func (h *stubHandle) Status() backend.Status { return h.lc.Status() }
func (h *stubHandle) Wait() bool             { return h.lc.Wait() == backend.Succeeded }

func (h *stubHandle) Cancel() {
	if h.lc.RequestCancel() {
		h.lc.Finish(backend.Cancelled)
	}
}

type stubBackend struct {
	handle  backend.RunHandle
	submits atomic.Int32
	cfg     backend.RunnerConfig
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Submit(ctx context.Context, proj *project.Project) (backend.RunHandle, error) {
	b.submits.Add(1)
	return b.handle, nil
}

func registryWith(b *stubBackend) *backend.Registry {
	reg := backend.NewRegistry()
	reg.Register("stub", func(client backend.APIClient, cfg backend.RunnerConfig) backend.Backend {
		b.cfg = cfg
		return b
	})
	return reg
}

// queueItem encodes a run spec for a minimal local project into a claimable
// queue item.
func queueItem(t *testing.T, id string, config map[string]any) *api.QueueItem {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("print('ok')\n"), 0o644))

	s, err := spec.New(spec.Options{URI: dir, EntryPoint: "main.py", Resource: "stub", Config: config})
	require.NoError(t, err)
	raw, err := s.Encode()
	require.NoError(t, err)

	return &api.QueueItem{ID: id, Queue: "default", RunSpec: raw}
}

func authErr() error {
	return &api.StatusError{Code: 401, Message: "bad credentials"}
}

func testConfig() Config {
	return Config{Entity: "team", Project: "demo", PollInterval: time.Millisecond}
}

func TestAgentLoop(t *testing.T) {
	t.Run("dispatches a claimed item and reports its status", func(t *testing.T) {
		be := &stubBackend{handle: newFinishedHandle("run-1", backend.Succeeded)}
		client := &fakeAPI{pops: []popResult{
			{item: queueItem(t, "item-1", nil)},
			{err: authErr()},
		}}

		ag := New(client, registryWith(be), testConfig())
		err := ag.Loop(context.Background())

		require.Error(t, err)
		assert.True(t, api.IsAuthError(err))
		assert.Equal(t, int32(1), be.submits.Load())
		assert.Equal(t, []string{"item-1"}, client.ackedItems())
		assert.Equal(t, "succeeded", client.statusOf("run-1"))
		assert.Equal(t, 0, ag.InFlight())
	})

	t.Run("retries transient poll errors with backoff", func(t *testing.T) {
		be := &stubBackend{handle: newFinishedHandle("run-2", backend.Succeeded)}
		client := &fakeAPI{pops: []popResult{
			{err: errors.New("connection refused")},
			{err: errors.New("connection refused")},
			{item: queueItem(t, "item-2", nil)},
			{err: authErr()},
		}}

		ag := New(client, registryWith(be), testConfig())
		err := ag.Loop(context.Background())

		require.Error(t, err)
		assert.GreaterOrEqual(t, client.popCalls, 4)
		assert.Equal(t, int32(1), be.submits.Load())
		assert.Equal(t, "succeeded", client.statusOf("run-2"))
	})

	t.Run("stops immediately on an auth failure", func(t *testing.T) {
		client := &fakeAPI{pops: []popResult{{err: authErr()}}}
		ag := New(client, registryWith(&stubBackend{}), testConfig())

		err := ag.Loop(context.Background())
		require.Error(t, err)
		assert.True(t, api.IsAuthError(err))
		assert.Equal(t, 1, client.popCalls)
	})

	t.Run("empty queue polls until the context ends", func(t *testing.T) {
		client := &fakeAPI{}
		ag := New(client, registryWith(&stubBackend{}), testConfig())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		err := ag.Loop(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Greater(t, client.popCalls, 1)
	})

	t.Run("acks and drops an item with an invalid run spec", func(t *testing.T) {
		be := &stubBackend{handle: newFinishedHandle("run-3", backend.Succeeded)}
		client := &fakeAPI{pops: []popResult{
			{item: &api.QueueItem{ID: "item-bad", Queue: "default", RunSpec: []byte(`{"entry_point": "main"}`)}},
			{err: authErr()},
		}}

		ag := New(client, registryWith(be), testConfig())
		err := ag.Loop(context.Background())

		require.Error(t, err)
		assert.Equal(t, int32(0), be.submits.Load())
		assert.Equal(t, []string{"item-bad"}, client.ackedItems())
	})

	t.Run("reports a failed run as failed", func(t *testing.T) {
		be := &stubBackend{handle: newFinishedHandle("run-4", backend.Failed)}
		client := &fakeAPI{pops: []popResult{
			{item: queueItem(t, "item-4", nil)},
			{err: authErr()},
		}}

		ag := New(client, registryWith(be), testConfig())
		err := ag.Loop(context.Background())

		require.Error(t, err)
		assert.Equal(t, "failed", client.statusOf("run-4"))
	})

	t.Run("merges backend defaults under the item config", func(t *testing.T) {
		be := &stubBackend{handle: newFinishedHandle("run-5", backend.Succeeded)}
		client := &fakeAPI{pops: []popResult{
			{item: queueItem(t, "item-5", map[string]any{"namespace": "runs"})},
			{err: authErr()},
		}}

		cfg := testConfig()
		cfg.BackendDefaults = map[string]map[string]any{
			"stub": {"image": "tracklab/base:latest", "namespace": "overridden"},
		}

		ag := New(client, registryWith(be), cfg)
		err := ag.Loop(context.Background())

		require.Error(t, err)
		require.NotNil(t, be.cfg)
		assert.Equal(t, "tracklab/base:latest", be.cfg.String("image", ""))
		assert.Equal(t, "runs", be.cfg.String("namespace", ""))
		assert.True(t, be.cfg.Synchronous())
	})
}

func TestAgentDefaults(t *testing.T) {
	ag := New(&fakeAPI{}, backend.NewRegistry(), Config{})
	assert.NotEmpty(t, ag.ID())
	assert.Equal(t, 0, ag.InFlight())
}
