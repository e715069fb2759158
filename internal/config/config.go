// Package config loads launch.hcl: service connection settings, agent
// settings, and per-backend configuration blocks with free-form attributes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// DefaultBaseURL is the hosted service endpoint used when no config file or
// environment override is present.
const DefaultBaseURL = "https://api.tracklab.ai"

// DefaultAPIKeyEnv is the environment variable consulted for the API key
// when the config file does not name one.
const DefaultAPIKeyEnv = "TRACKLAB_API_KEY"

// Service holds the connection settings for the TrackLab service.
type Service struct {
	BaseURL   string `hcl:"base_url,optional"`
	APIKeyEnv string `hcl:"api_key_env,optional"`
}

// AgentSettings holds the parsed agent block.
type AgentSettings struct {
	PollInterval time.Duration
	MaxJobs      int
	HealthPort   int
}

// Model is the fully loaded configuration.
type Model struct {
	Service  Service
	Agent    AgentSettings
	Backends map[string]map[string]any
}

// agentBlock is the raw agent block before duration parsing.
type agentBlock struct {
	PollInterval string `hcl:"poll_interval,optional"`
	MaxJobs      int    `hcl:"max_jobs,optional"`
	HealthPort   int    `hcl:"health_port,optional"`
}

// backendBlock keeps its body undecoded: backend configuration is free-form
// and every attribute lands in the backend's config bag.
type backendBlock struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

// fileRoot decodes the top-level blocks of one launch.hcl file.
type fileRoot struct {
	Service  *Service        `hcl:"service,block"`
	Agent    *agentBlock     `hcl:"agent,block"`
	Backends []*backendBlock `hcl:"backend,block"`
	Remain   hcl.Body        `hcl:",remain"`
}

// Defaults returns the model used when no configuration file exists.
func Defaults() *Model {
	return &Model{
		Service:  Service{BaseURL: DefaultBaseURL, APIKeyEnv: DefaultAPIKeyEnv},
		Agent:    AgentSettings{PollInterval: 5 * time.Second, MaxJobs: 1},
		Backends: map[string]map[string]any{},
	}
}

// Load reads configuration from path. Path may be a single .hcl file or a
// directory searched for .hcl files; an empty or missing path yields the
// defaults. Later files override earlier ones block by block.
func Load(path string) (*Model, error) {
	model := Defaults()
	if path == "" {
		return model, nil
	}

	files, err := findHCLFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return model, nil
	}

	parser := hclparse.NewParser()
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse config file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode config file %s: %w", file, diags)
		}

		if root.Service != nil {
			if root.Service.BaseURL != "" {
				model.Service.BaseURL = root.Service.BaseURL
			}
			if root.Service.APIKeyEnv != "" {
				model.Service.APIKeyEnv = root.Service.APIKeyEnv
			}
		}
		if root.Agent != nil {
			settings, err := translateAgent(root.Agent)
			if err != nil {
				return nil, fmt.Errorf("in config file %s: %w", file, err)
			}
			model.Agent = settings
		}
		for _, block := range root.Backends {
			bag, err := decodeAttributeBag(block.Body)
			if err != nil {
				return nil, fmt.Errorf("in config file %s, backend %q: %w", file, block.Name, err)
			}
			model.Backends[block.Name] = bag
		}
	}

	return model, nil
}

// translateAgent converts the raw agent block, parsing the poll interval.
func translateAgent(raw *agentBlock) (AgentSettings, error) {
	settings := Defaults().Agent
	if raw.PollInterval != "" {
		d, err := time.ParseDuration(raw.PollInterval)
		if err != nil || d <= 0 {
			return settings, fmt.Errorf("invalid agent poll_interval %q", raw.PollInterval)
		}
		settings.PollInterval = d
	}
	if raw.MaxJobs > 0 {
		settings.MaxJobs = raw.MaxJobs
	}
	if raw.HealthPort > 0 {
		settings.HealthPort = raw.HealthPort
	}
	return settings, nil
}

// findHCLFiles returns path itself when it is a file, or every .hcl file
// under it when it is a directory. A missing path is not an error.
func findHCLFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error accessing config path %s: %w", path, err)
	}

	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(p) == ".hcl" {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
