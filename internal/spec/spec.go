// Package spec defines the canonical run specification: one normalized,
// immutable value describing what to launch, regardless of whether the
// request arrived from the CLI, the SDK surface, or a remote run queue.
package spec

import (
	"encoding/json"
	"maps"

	"github.com/tracklab/launch/internal/launcherr"
)

// ResourceLocal is the default execution backend when none is requested.
const ResourceLocal = "local"

// Spec is a normalized launch request. Built once per request and never
// mutated afterwards; the project resolver consumes it read-only.
type Spec struct {
	URI           string            `json:"uri"`
	EntryPoint    string            `json:"entry_point,omitempty"`
	Version       string            `json:"version,omitempty"`
	Parameters    map[string]string `json:"parameters,omitempty"`
	DockerArgs    map[string]string `json:"docker_args,omitempty"`
	Name          string            `json:"name,omitempty"`
	Resource      string            `json:"resource"`
	TargetProject string            `json:"target_project,omitempty"`
	TargetEntity  string            `json:"target_entity,omitempty"`
	DockerImage   string            `json:"docker_image,omitempty"`
	Config        map[string]any    `json:"config,omitempty"`
}

// Options carries the free-form launch parameters accepted by the run
// surface. URI is the only required field.
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
}

// New normalizes Options into a Spec. Maps are copied so later mutation of
// the caller's arguments cannot leak into the built spec.
func New(opts Options) (*Spec, error) {
	if opts.URI == "" {
		return nil, launcherr.NewValidation("run spec requires a non-empty uri")
	}

	resource := opts.Resource
	if resource == "" {
		resource = ResourceLocal
	}

	s := &Spec{
		URI:           opts.URI,
		EntryPoint:    opts.EntryPoint,
		Version:       opts.Version,
		Parameters:    cloneStringMap(opts.Parameters),
		DockerArgs:    cloneStringMap(opts.DockerArgs),
		Name:          opts.Name,
		Resource:      resource,
		TargetProject: opts.TargetProject,
		TargetEntity:  opts.TargetEntity,
		DockerImage:   opts.DockerImage,
		Config:        maps.Clone(opts.Config),
	}
	if s.Config == nil {
		s.Config = map[string]any{}
	}
	return s, nil
}

// Encode serializes the spec as the queue payload format.
func (s *Spec) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// cloneStringMap copies m, mapping nil to an empty map so every built spec
// carries usable (if empty) parameter and docker-arg maps.
func cloneStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	maps.Copy(out, m)
	return out
}
