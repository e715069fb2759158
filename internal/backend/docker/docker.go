// Package docker implements the containerized execution backend. It drives
// the docker CLI directly: the launcher environment is expected to have a
// working docker client, which keeps the backend free of daemon-API coupling.
package docker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tracklab/launch/internal/backend"
	"github.com/tracklab/launch/internal/ctxlog"
	"github.com/tracklab/launch/internal/launcherr"
	"github.com/tracklab/launch/internal/project"
)

// Name is the resource name this backend registers under.
const Name = "docker"

// Backend runs projects inside docker containers.
type Backend struct {
	client backend.APIClient
	cfg    backend.RunnerConfig
}

// Factory is the registry constructor for the docker backend.
func Factory(client backend.APIClient, cfg backend.RunnerConfig) backend.Backend {
	return &Backend{client: client, cfg: cfg}
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return Name }

// Submit starts `docker run` for the project. Docker arguments from the
// runner config override same-named arguments from the spec.
func (b *Backend) Submit(ctx context.Context, proj *project.Project) (backend.RunHandle, error) {
	image := proj.Spec.DockerImage
	if image == "" {
		image = b.cfg.String("image", "")
	}
	if image == "" {
		return nil, launcherr.NewExecution("docker backend requires a docker image for %q", proj.Spec.URI)
	}

	runID := uuid.NewString()
	containerName := "tracklab-" + runID[:8]
	args := runArgs(containerName, image, runID, b.client.BaseURL(),
		mergeDockerArgs(proj.Spec.DockerArgs, b.cfg.DockerArgs()), proj)

	runCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(runCtx, "docker", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, launcherr.WrapExecution(err, "failed to start container for %q", proj.Spec.URI)
	}

	logger := ctxlog.FromContext(ctx)
	logger.Info("Started docker run.", "runID", runID, "container", containerName, "image", image)

	h := &handle{
		id:        runID,
		container: containerName,
		lc:        backend.NewLifecycle(),
		cancel:    cancel,
	}
	h.lc.Run()

	go func() {
		defer cancel()
		err := cmd.Wait()
		switch {
		case h.lc.CancelRequested():
			h.lc.Finish(backend.Cancelled)
		case err != nil:
			logger.Warn("Container exited with failure.", "runID", runID, "container", containerName, "error", err)
			h.lc.Finish(backend.Failed)
		default:
			h.lc.Finish(backend.Succeeded)
		}
	}()

	return h, nil
}

// runArgs builds the docker run argument list. Docker args render as
// --key=value flags (or bare --key when the value is empty) in stable order.
func runArgs(containerName, image, runID, baseURL string, dockerArgs map[string]string, proj *project.Project) []string {
	args := []string{"run", "--rm", "--name", containerName}

	keys := make([]string, 0, len(dockerArgs))
	for k := range dockerArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := dockerArgs[k]; v == "" {
			args = append(args, "--"+k)
		} else {
			args = append(args, fmt.Sprintf("--%s=%s", k, dockerArgs[k]))
		}
	}

	args = append(args, "-e", "TRACKLAB_RUN_ID="+runID)
	args = append(args, "-e", "TRACKLAB_BASE_URL="+baseURL)
	if proj.Spec.TargetProject != "" {
		args = append(args, "-e", "TRACKLAB_PROJECT="+proj.Spec.TargetProject)
	}
	if proj.Spec.TargetEntity != "" {
		args = append(args, "-e", "TRACKLAB_ENTITY="+proj.Spec.TargetEntity)
	}

	args = append(args, image)
	args = append(args, proj.Entry.Command...)
	return args
}

// mergeDockerArgs overlays override onto base without mutating either.
func mergeDockerArgs(base, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// handle is the docker backend's run handle.
type handle struct {
	id        string
	container string
	lc        *backend.Lifecycle
	cancel    context.CancelFunc
}

func (h *handle) ID() string { return h.id }

func (h *handle) Status() backend.Status { return h.lc.Status() }

// Wait blocks until the container exits and reports success.
func (h *handle) Wait() bool {
	return h.lc.Wait() == backend.Succeeded
}

// Cancel stops the container. `docker stop` is asked first so the workload
// gets a graceful TERM window; killing the client process alone would leave
// the container running.
func (h *handle) Cancel() {
	if !h.lc.RequestCancel() {
		return
	}

	stopCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
	defer done()
	if err := exec.CommandContext(stopCtx, "docker", "stop", h.container).Run(); err != nil {
		ctxlog.FromContext(stopCtx).Warn("docker stop failed; killing client process.", "container", h.container, "error", err)
	}
	h.cancel()
}
