// Package kubernetes implements the cluster execution backend: the project
// runs as a batch/v1 Job submitted through kubectl. Driving kubectl keeps
// the launcher credential-handling identical to the operator's own.
package kubernetes

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tracklab/launch/internal/backend"
	"github.com/tracklab/launch/internal/ctxlog"
	"github.com/tracklab/launch/internal/launcherr"
	"github.com/tracklab/launch/internal/project"
)

// Name is the resource name this backend registers under.
const Name = "kubernetes"

// defaultPollInterval is how often job status is polled.
const defaultPollInterval = 5 * time.Second

// Backend runs projects as Kubernetes Jobs.
type Backend struct {
	client backend.APIClient
	cfg    backend.RunnerConfig
}

// Factory is the registry constructor for the kubernetes backend.
func Factory(client backend.APIClient, cfg backend.RunnerConfig) backend.Backend {
	return &Backend{client: client, cfg: cfg}
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return Name }

// Submit renders a Job manifest for the project and applies it to the
// cluster. The job name doubles as the run identifier on the cluster side.
func (b *Backend) Submit(ctx context.Context, proj *project.Project) (backend.RunHandle, error) {
	image := proj.Spec.DockerImage
	if image == "" {
		image = b.cfg.String("image", "")
	}
	if image == "" {
		return nil, launcherr.NewExecution("kubernetes backend requires a docker image for %q", proj.Spec.URI)
	}

	runID := uuid.NewString()
	namespace := b.cfg.String("namespace", "default")
	jobName := "tracklab-" + runID[:8]

	manifest, err := renderJob(jobName, namespace, image, runID, proj, b.client.BaseURL())
	if err != nil {
		return nil, launcherr.WrapExecution(err, "failed to render job manifest for %q", proj.Spec.URI)
	}

	if err := kubectlApply(ctx, namespace, manifest); err != nil {
		return nil, launcherr.WrapExecution(err, "failed to submit job %q", jobName)
	}

	logger := ctxlog.FromContext(ctx)
	logger.Info("Submitted kubernetes job.", "runID", runID, "job", jobName, "namespace", namespace, "image", image)

	h := &handle{
		id:        runID,
		job:       jobName,
		namespace: namespace,
		lc:        backend.NewLifecycle(),
	}
	h.lc.Run()

	go h.poll(pollIntervalFrom(b.cfg))

	return h, nil
}

// pollIntervalFrom reads the poll_interval config attribute, defaulting when
// absent or malformed.
func pollIntervalFrom(cfg backend.RunnerConfig) time.Duration {
	raw := cfg.String("poll_interval", "")
	if raw == "" {
		return defaultPollInterval
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return defaultPollInterval
	}
	return d
}

// handle is the kubernetes backend's run handle.
type handle struct {
	id        string
	job       string
	namespace string
	lc        *backend.Lifecycle
}

func (h *handle) ID() string { return h.id }

func (h *handle) Status() backend.Status { return h.lc.Status() }

// Wait blocks until the job completes and reports success.
func (h *handle) Wait() bool {
	return h.lc.Wait() == backend.Succeeded
}

// Cancel deletes the job. The poll loop observes the deletion and finishes
// the handle as Cancelled.
func (h *handle) Cancel() {
	if !h.lc.RequestCancel() {
		return
	}

	ctx, done := context.WithTimeout(context.Background(), 30*time.Second)
	defer done()
	if err := kubectl(ctx, "delete", "job", h.job, "-n", h.namespace, "--ignore-not-found"); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to delete job.", "job", h.job, "error", err)
	}
	h.lc.Finish(backend.Cancelled)
}

// poll watches the job's status conditions until it reaches a terminal state.
func (h *handle) poll(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		if h.lc.Status().Terminal() {
			return
		}

		ctx, done := context.WithTimeout(context.Background(), interval)
		out, err := kubectlOutput(ctx,
			"get", "job", h.job, "-n", h.namespace,
			"-o", "jsonpath={.status.succeeded},{.status.failed}")
		done()
		if err != nil {
			if h.lc.CancelRequested() {
				h.lc.Finish(backend.Cancelled)
				return
			}
			// Transient apiserver failures are retried on the next tick.
			continue
		}

		parts := strings.SplitN(strings.TrimSpace(out), ",", 2)
		switch {
		case parts[0] != "" && parts[0] != "0":
			h.lc.Finish(backend.Succeeded)
			return
		case len(parts) == 2 && parts[1] != "" && parts[1] != "0":
			h.lc.Finish(backend.Failed)
			return
		}
	}
}

// kubectlApply pipes a manifest into kubectl apply.
func kubectlApply(ctx context.Context, namespace string, manifest []byte) error {
	cmd := exec.CommandContext(ctx, "kubectl", "apply", "-n", namespace, "-f", "-")
	cmd.Stdin = bytes.NewReader(manifest)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("kubectl apply: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// kubectl runs one kubectl command, discarding output.
func kubectl(ctx context.Context, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "kubectl", args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("kubectl %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// kubectlOutput runs one kubectl command and returns stdout.
func kubectlOutput(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "kubectl", args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("kubectl %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
