// Package app wires the launch tool together: configuration, logger, the
// service client, and the backend registry populated with the builtin
// backends.
package app

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/tracklab/launch/internal/agent"
	"github.com/tracklab/launch/internal/api"
	"github.com/tracklab/launch/internal/backend"
	"github.com/tracklab/launch/internal/backend/docker"
	"github.com/tracklab/launch/internal/backend/kubernetes"
	"github.com/tracklab/launch/internal/backend/local"
	"github.com/tracklab/launch/internal/config"
	"github.com/tracklab/launch/internal/ctxlog"
	"github.com/tracklab/launch/internal/launch"
	"github.com/tracklab/launch/internal/spec"
)

// Config holds the settings every command shares.
type Config struct {
	ConfigPath string
	BaseURL    string // overrides the config file when non-empty
	LogLevel   string
	LogFormat  string
}

// App encapsulates the tool's dependencies and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	model    *config.Model
	client   *api.Client
	registry *backend.Registry
}

// New builds a fully initialized App: logger, loaded configuration, service
// client, and a registry holding the builtin backends.
func New(outW io.Writer, cfg Config) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)

	model, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}

	baseURL := model.Service.BaseURL
	if env := os.Getenv("TRACKLAB_BASE_URL"); env != "" {
		baseURL = env
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}

	client := api.NewClient(api.Settings{
		BaseURL: baseURL,
		APIKey:  os.Getenv(model.Service.APIKeyEnv),
	})

	registry := backend.NewRegistry()
	registry.Register(local.Name, local.Factory)
	registry.Register(docker.Name, docker.Factory)
	registry.Register(kubernetes.Name, kubernetes.Factory)

	logger.Debug("App initialized.", "baseURL", baseURL, "backends", registry.Names())

	return &App{
		outW:     outW,
		logger:   logger,
		model:    model,
		client:   client,
		registry: registry,
	}, nil
}

// Close releases the service client.
func (a *App) Close() {
	a.client.Close()
}

// Registry returns the backend registry. This is primarily for testing.
func (a *App) Registry() *backend.Registry {
	return a.registry
}

// Launch performs one ad-hoc run. The backend config bag from launch.hcl
// seeds the request's config; explicit request config wins on conflicts.
func (a *App) Launch(ctx context.Context, opts launch.Options) (backend.RunHandle, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	resource := opts.Resource
	if resource == "" {
		resource = spec.ResourceLocal
	}
	if defaults := a.model.Backends[resource]; len(defaults) > 0 {
		merged := make(map[string]any, len(defaults)+len(opts.Config))
		for k, v := range defaults {
			merged[k] = v
		}
		for k, v := range opts.Config {
			merged[k] = v
		}
		opts.Config = merged
	}

	return launch.Run(ctx, a.client, a.registry, opts)
}

// Push enqueues a run spec onto a run queue and reports whether the service
// accepted it.
func (a *App) Push(ctx context.Context, queue string, runSpec *spec.Spec) *api.QueueResponse {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	return launch.PushToQueue(ctx, a.client, queue, runSpec)
}

// Agent runs the launch agent loop, serving the health endpoint when one is
// configured. Flag values above zero override the config file.
func (a *App) Agent(ctx context.Context, entity, project string, queues []string, maxJobs, healthPort int) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	settings := a.model.Agent
	if maxJobs > 0 {
		settings.MaxJobs = maxJobs
	}
	if healthPort > 0 {
		settings.HealthPort = healthPort
	}

	ag := agent.New(a.client, a.registry, agent.Config{
		Entity:          entity,
		Project:         project,
		Queues:          queues,
		PollInterval:    settings.PollInterval,
		MaxJobs:         settings.MaxJobs,
		BackendDefaults: a.model.Backends,
	})

	if settings.HealthPort > 0 {
		a.startHealthServer(settings.HealthPort, ag)
	}

	return ag.Loop(ctx)
}
