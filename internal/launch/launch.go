// Package launch is the top-level orchestration surface: one ad-hoc run
// composed from the spec builder, project resolver, backend registry, and
// backend runner, plus the queue push and agent entry points.
package launch

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/tracklab/launch/internal/agent"
	"github.com/tracklab/launch/internal/api"
	"github.com/tracklab/launch/internal/backend"
	"github.com/tracklab/launch/internal/ctxlog"
	"github.com/tracklab/launch/internal/launcherr"
	"github.com/tracklab/launch/internal/project"
	"github.com/tracklab/launch/internal/spec"
)

// Options is the inbound surface of a single launch request.
type Options struct {
	URI           string
	EntryPoint    string
	Version       string
	Parameters    map[string]string
	DockerArgs    map[string]string
	Name          string
	Resource      string
	TargetProject string
	TargetEntity  string
	DockerImage   string
	Config        map[string]any

	// Synchronous blocks the caller until the run reaches a terminal state.
	// Asynchronous mode is not supported and fails fast before any backend
	// side effects.
	Synchronous bool
}

// Run launches one project and, in synchronous mode, supervises it to
// completion. An interrupt received while blocked triggers exactly one
// Cancel on the active handle before the interrupt propagates, so a
// user-initiated abort never orphans a backend job.
//
// The returned handle is non-nil whenever submission succeeded, including
// when the run itself failed or was interrupted.
func Run(ctx context.Context, client backend.APIClient, registry *backend.Registry, opts Options) (backend.RunHandle, error) {
	if !opts.Synchronous {
		return nil, launcherr.NewLaunch("non synchronous mode not supported")
	}

	// Deployment convenience: a locally hosted service needs host networking
	// from inside launched containers.
	dockerArgs := map[string]string{}
	for k, v := range opts.DockerArgs {
		dockerArgs[k] = v
	}
	for k, v := range spec.LocalNetworkArgs(runtime.GOOS, client.BaseURL()) {
		if _, exists := dockerArgs[k]; !exists {
			dockerArgs[k] = v
		}
	}

	runSpec, err := spec.New(spec.Options{
		URI:           opts.URI,
		EntryPoint:    opts.EntryPoint,
		Version:       opts.Version,
		Parameters:    opts.Parameters,
		DockerArgs:    dockerArgs,
		Name:          opts.Name,
		Resource:      opts.Resource,
		TargetProject: opts.TargetProject,
		TargetEntity:  opts.TargetEntity,
		DockerImage:   opts.DockerImage,
		Config:        opts.Config,
	})
	if err != nil {
		return nil, err
	}

	proj, err := project.CreateFromSpec(runSpec)
	if err != nil {
		return nil, err
	}
	proj, err = project.FetchAndValidate(ctx, proj)
	if err != nil {
		return nil, err
	}

	// The spec's backend config bag seeds the runner config; the uniform
	// keys are always present on top of it.
	runnerCfg := backend.RunnerConfig{}
	for k, v := range runSpec.Config {
		runnerCfg[k] = v
	}
	runnerCfg[backend.KeySynchronous] = opts.Synchronous
	runnerCfg[backend.KeyDockerArgs] = runSpec.DockerArgs

	be := registry.Load(runSpec.Resource, client, runnerCfg)
	if be == nil {
		return nil, launcherr.NewExecution("unavailable backend %q, available backends: %s",
			runSpec.Resource, strings.Join(registry.Names(), ", "))
	}

	handle, err := be.Submit(ctx, proj)
	if err != nil {
		if launcherr.IsExecution(err) {
			return nil, err
		}
		return nil, launcherr.WrapExecution(err, "backend %q failed to submit run", runSpec.Resource)
	}

	if err := waitFor(ctx, handle); err != nil {
		return handle, err
	}
	return handle, nil
}

// waitFor blocks until the handle reaches a terminal state or ctx is
// interrupted. The interrupt path guarantees Cancel runs before the
// interrupt is re-propagated.
func waitFor(ctx context.Context, handle backend.RunHandle) error {
	logger := ctxlog.FromContext(ctx)

	done := make(chan bool, 1)
	go func() { done <- handle.Wait() }()

	select {
	case ok := <-done:
		if !ok {
			return launcherr.NewExecution("submitted run failed")
		}
		logger.Info("Submitted run succeeded.", "runID", handle.ID())
		return nil
	case <-ctx.Done():
		logger.Error("Submitted run interrupted, cancelling run.", "runID", handle.ID())
		handle.Cancel()
		return fmt.Errorf("%w: %v", launcherr.ErrInterrupted, context.Cause(ctx))
	}
}

// Pusher is the slice of the service client needed to push onto a queue.
type Pusher interface {
	PushToQueue(ctx context.Context, queue string, runSpec any) (*api.QueueResponse, error)
}

// PushToQueue enqueues a run spec for an agent to pick up. Transport
// failures are logged and reported as a nil response, not an error; the
// queue push path never raises to the caller.
func PushToQueue(ctx context.Context, client Pusher, queue string, runSpec *spec.Spec) *api.QueueResponse {
	res, err := client.PushToQueue(ctx, queue, runSpec)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to push run spec to queue.", "queue", queue, "error", err)
		return nil
	}
	return res
}

// RunAgent runs the launch agent loop until ctx ends or a terminal failure
// stops it.
func RunAgent(ctx context.Context, client agent.API, registry *backend.Registry, cfg agent.Config) error {
	return agent.New(client, registry, cfg).Loop(ctx)
}
