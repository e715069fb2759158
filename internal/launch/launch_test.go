package launch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklab/launch/internal/api"
	"github.com/tracklab/launch/internal/backend"
	"github.com/tracklab/launch/internal/launcherr"
	"github.com/tracklab/launch/internal/project"
	"github.com/tracklab/launch/internal/spec"
)

type fakeClient struct {
	baseURL  string
	statuses []string
}

func (c *fakeClient) BaseURL() string { return c.baseURL }

func (c *fakeClient) ReportStatus(ctx context.Context, runID, status string) error {
	c.statuses = append(c.statuses, status)
	return nil
}

// stubHandle is a run handle whose outcome is scripted by the test. A handle
// created with blocking=true stays non-terminal until Cancel is called.
type stubHandle struct {
	id       string
	lc       *backend.Lifecycle
	cancels  atomic.Int32
	blocking bool
	succeed  bool
}

func newStubHandle(id string, blocking, succeed bool) *stubHandle {
	h := &stubHandle{id: id, lc: backend.NewLifecycle(), blocking: blocking, succeed: succeed}
	h.lc.Run()
	if !blocking {
		if succeed {
			h.lc.Finish(backend.Succeeded)
		} else {
			h.lc.Finish(backend.Failed)
		}
	}
	return h
}

func (h *stubHandle) ID() string             { return h.id }
func (h *stubHandle) Status() backend.Status { return h.lc.Status() }
func (h *stubHandle) Wait() bool             { return h.lc.Wait() == backend.Succeeded }

func (h *stubHandle) Cancel() {
	h.cancels.Add(1)
	if h.lc.RequestCancel() {
		h.lc.Finish(backend.Cancelled)
	}
}

type stubBackend struct {
	name    string
	handle  *stubHandle
	err     error
	submits atomic.Int32
	cfg     backend.RunnerConfig
}

func (b *stubBackend) Name() string { return b.name }

func (b *stubBackend) Submit(ctx context.Context, proj *project.Project) (backend.RunHandle, error) {
	b.submits.Add(1)
	if b.err != nil {
		return nil, b.err
	}
	return b.handle, nil
}

func registryWith(b *stubBackend) *backend.Registry {
	reg := backend.NewRegistry()
	reg.Register(b.name, func(client backend.APIClient, cfg backend.RunnerConfig) backend.Backend {
		b.cfg = cfg
		return b
	})
	return reg
}

// projectDir builds a minimal runnable local project.
func projectDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "main.py")
	require.NoError(t, os.WriteFile(path, []byte("print('ok')\n"), 0o644))
	return dir
}

func syncOptions(dir string) Options {
	return Options{
		URI:         dir,
		EntryPoint:  "main.py",
		Resource:    "stub",
		Synchronous: true,
	}
}

func TestRun(t *testing.T) {
	client := &fakeClient{baseURL: "https://api.tracklab.ai"}

	t.Run("successful synchronous run", func(t *testing.T) {
		be := &stubBackend{name: "stub", handle: newStubHandle("run-1", false, true)}
		handle, err := Run(context.Background(), client, registryWith(be), syncOptions(projectDir(t)))

		require.NoError(t, err)
		require.NotNil(t, handle)
		assert.Equal(t, "run-1", handle.ID())
		assert.Equal(t, int32(1), be.submits.Load())
	})

	t.Run("failed run raises an execution error and keeps the handle", func(t *testing.T) {
		be := &stubBackend{name: "stub", handle: newStubHandle("run-2", false, false)}
		handle, err := Run(context.Background(), client, registryWith(be), syncOptions(projectDir(t)))

		require.Error(t, err)
		assert.True(t, launcherr.IsExecution(err))
		assert.Contains(t, err.Error(), "submitted run failed")
		require.NotNil(t, handle)
		assert.Equal(t, backend.Failed, handle.Status())
	})

	t.Run("asynchronous mode fails fast with no side effects", func(t *testing.T) {
		be := &stubBackend{name: "stub", handle: newStubHandle("run-3", false, true)}
		opts := syncOptions(projectDir(t))
		opts.Synchronous = false

		handle, err := Run(context.Background(), client, registryWith(be), opts)

		require.Error(t, err)
		assert.True(t, launcherr.IsLaunch(err))
		assert.Contains(t, err.Error(), "non synchronous mode not supported")
		assert.Nil(t, handle)
		assert.Equal(t, int32(0), be.submits.Load())
	})

	t.Run("unknown resource names it and lists the registered backends", func(t *testing.T) {
		reg := backend.NewRegistry()
		reg.Register("docker", func(client backend.APIClient, cfg backend.RunnerConfig) backend.Backend { return nil })
		reg.Register("local", func(client backend.APIClient, cfg backend.RunnerConfig) backend.Backend { return nil })

		opts := syncOptions(projectDir(t))
		opts.Resource = "nonexistent"

		handle, err := Run(context.Background(), client, reg, opts)

		require.Error(t, err)
		assert.True(t, launcherr.IsExecution(err))
		assert.Contains(t, err.Error(), `"nonexistent"`)
		assert.Contains(t, err.Error(), "docker, local")
		assert.Nil(t, handle)
	})

	t.Run("submit failure is wrapped as an execution error", func(t *testing.T) {
		be := &stubBackend{name: "stub", err: errors.New("no capacity")}
		handle, err := Run(context.Background(), client, registryWith(be), syncOptions(projectDir(t)))

		require.Error(t, err)
		assert.True(t, launcherr.IsExecution(err))
		assert.Contains(t, err.Error(), "no capacity")
		assert.Nil(t, handle)
	})

	t.Run("invalid spec is rejected before backend lookup", func(t *testing.T) {
		be := &stubBackend{name: "stub", handle: newStubHandle("run-4", false, true)}
		opts := syncOptions(projectDir(t))
		opts.URI = ""

		_, err := Run(context.Background(), client, registryWith(be), opts)

		require.Error(t, err)
		assert.True(t, launcherr.IsValidation(err))
		assert.Equal(t, int32(0), be.submits.Load())
	})

	t.Run("interrupt cancels the active run exactly once", func(t *testing.T) {
		h := newStubHandle("run-5", true, false)
		be := &stubBackend{name: "stub", handle: h}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		handle, err := Run(ctx, client, registryWith(be), syncOptions(projectDir(t)))

		require.Error(t, err)
		assert.True(t, errors.Is(err, launcherr.ErrInterrupted))
		require.NotNil(t, handle)
		assert.Equal(t, int32(1), h.cancels.Load())
		assert.Equal(t, backend.Cancelled, handle.Status())
	})

	t.Run("backend receives the uniform runner config keys", func(t *testing.T) {
		be := &stubBackend{name: "stub", handle: newStubHandle("run-6", false, true)}
		opts := syncOptions(projectDir(t))
		opts.Config = map[string]any{"namespace": "runs"}

		_, err := Run(context.Background(), client, registryWith(be), opts)

		require.NoError(t, err)
		require.NotNil(t, be.cfg)
		assert.True(t, be.cfg.Synchronous())
		assert.Equal(t, "runs", be.cfg.String("namespace", ""))
	})

	t.Run("local service injects host networking docker args", func(t *testing.T) {
		localClient := &fakeClient{baseURL: "http://localhost:8080"}
		be := &stubBackend{name: "stub", handle: newStubHandle("run-7", false, true)}

		_, err := Run(context.Background(), localClient, registryWith(be), syncOptions(projectDir(t)))

		require.NoError(t, err)
		require.NotNil(t, be.cfg)
		args := be.cfg.DockerArgs()
		// Key differs per platform (net on windows, network elsewhere).
		hostNet := args["network"] == "host" || args["net"] == "host"
		assert.True(t, hostNet, "expected host networking in %v", args)
	})

	t.Run("caller docker args win over injected ones", func(t *testing.T) {
		localClient := &fakeClient{baseURL: "http://localhost:8080"}
		be := &stubBackend{name: "stub", handle: newStubHandle("run-8", false, true)}
		opts := syncOptions(projectDir(t))
		opts.DockerArgs = map[string]string{"network": "bridge"}

		_, err := Run(context.Background(), localClient, registryWith(be), opts)

		require.NoError(t, err)
		assert.Equal(t, "bridge", be.cfg.DockerArgs()["network"])
	})
}

type fakePusher struct {
	res *api.QueueResponse
	err error
}

func (p *fakePusher) PushToQueue(ctx context.Context, queue string, runSpec any) (*api.QueueResponse, error) {
	return p.res, p.err
}

func TestPushToQueue(t *testing.T) {
	runSpec, err := spec.New(spec.Options{URI: "/tmp/proj"})
	require.NoError(t, err)

	t.Run("success returns the queue response", func(t *testing.T) {
		pusher := &fakePusher{res: &api.QueueResponse{ItemID: "item-1", Queue: "default"}}
		res := PushToQueue(context.Background(), pusher, "default", runSpec)
		require.NotNil(t, res)
		assert.Equal(t, "item-1", res.ItemID)
	})

	t.Run("transport failure is swallowed", func(t *testing.T) {
		pusher := &fakePusher{err: errors.New("connection refused")}
		assert.Nil(t, PushToQueue(context.Background(), pusher, "default", runSpec))
	})
}
