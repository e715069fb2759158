// Package local implements the local-process execution backend: the
// project's entry point runs as a child process of the launcher.
package local

import (
	"context"
	"os"
	"os/exec"

	"github.com/google/uuid"

	"github.com/tracklab/launch/internal/backend"
	"github.com/tracklab/launch/internal/ctxlog"
	"github.com/tracklab/launch/internal/launcherr"
	"github.com/tracklab/launch/internal/project"
)

// Name is the resource name this backend registers under.
const Name = "local"

// Backend runs projects as local child processes.
type Backend struct {
	client backend.APIClient
	cfg    backend.RunnerConfig
}

// Factory is the registry constructor for the local backend.
func Factory(client backend.APIClient, cfg backend.RunnerConfig) backend.Backend {
	return &Backend{client: client, cfg: cfg}
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return Name }

// Submit starts the project's entry point in the project directory. The
// child's lifetime is owned by the returned handle, not by ctx: a queue
// dispatch context ending must not tear down a run that already started.
func (b *Backend) Submit(ctx context.Context, proj *project.Project) (backend.RunHandle, error) {
	if len(proj.Entry.Command) == 0 {
		return nil, launcherr.NewExecution("project %q has no resolved entry point", proj.Spec.URI)
	}

	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.Background())

	cmd := exec.CommandContext(runCtx, proj.Entry.Command[0], proj.Entry.Command[1:]...)
	cmd.Dir = proj.Dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), runEnv(b.client, proj, runID)...)

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, launcherr.WrapExecution(err, "failed to start local process for %q", proj.Spec.URI)
	}

	logger := ctxlog.FromContext(ctx)
	logger.Info("Started local run.", "runID", runID, "pid", cmd.Process.Pid, "dir", proj.Dir)

	h := &handle{
		id:     runID,
		lc:     backend.NewLifecycle(),
		cancel: cancel,
	}
	h.lc.Run()

	go func() {
		defer cancel()
		err := cmd.Wait()
		switch {
		case h.lc.CancelRequested():
			h.lc.Finish(backend.Cancelled)
		case err != nil:
			logger.Warn("Local run exited with failure.", "runID", runID, "error", err)
			h.lc.Finish(backend.Failed)
		default:
			h.lc.Finish(backend.Succeeded)
		}
	}()

	return h, nil
}

// runEnv is the environment injected into every launched process so the run
// can attach itself to the right place on the service.
func runEnv(client backend.APIClient, proj *project.Project, runID string) []string {
	env := []string{
		"TRACKLAB_RUN_ID=" + runID,
		"TRACKLAB_BASE_URL=" + client.BaseURL(),
	}
	if proj.Spec.TargetProject != "" {
		env = append(env, "TRACKLAB_PROJECT="+proj.Spec.TargetProject)
	}
	if proj.Spec.TargetEntity != "" {
		env = append(env, "TRACKLAB_ENTITY="+proj.Spec.TargetEntity)
	}
	return env
}

// handle is the local backend's run handle.
type handle struct {
	id     string
	lc     *backend.Lifecycle
	cancel context.CancelFunc
}

func (h *handle) ID() string { return h.id }

func (h *handle) Status() backend.Status { return h.lc.Status() }

// Wait blocks until the process exits and reports success.
func (h *handle) Wait() bool {
	return h.lc.Wait() == backend.Succeeded
}

// Cancel kills the child process. The first call wins; later calls and calls
// after a terminal state are no-ops.
func (h *handle) Cancel() {
	if !h.lc.RequestCancel() {
		return
	}
	h.cancel()
}
