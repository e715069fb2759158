package kubernetes

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tracklab/launch/internal/project"
)

// jobManifest mirrors the batch/v1 Job fields the backend needs. Rendering a
// typed struct instead of a template keeps quoting and indentation correct
// for arbitrary entry-point arguments.
type jobManifest struct {
	APIVersion string      `yaml:"apiVersion"`
	Kind       string      `yaml:"kind"`
	Metadata   objectMeta  `yaml:"metadata"`
	Spec       jobSpecBody `yaml:"spec"`
}

type objectMeta struct {
	Name      string            `yaml:"name"`
	Namespace string            `yaml:"namespace"`
	Labels    map[string]string `yaml:"labels,omitempty"`
}

type jobSpecBody struct {
	BackoffLimit int         `yaml:"backoffLimit"`
	Template     podTemplate `yaml:"template"`
}

type podTemplate struct {
	Spec podSpec `yaml:"spec"`
}

type podSpec struct {
	RestartPolicy string      `yaml:"restartPolicy"`
	Containers    []container `yaml:"containers"`
}

type container struct {
	Name    string   `yaml:"name"`
	Image   string   `yaml:"image"`
	Command []string `yaml:"command,omitempty"`
	Env     []envVar `yaml:"env,omitempty"`
}

type envVar struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// renderJob produces the Job manifest for one launched project.
func renderJob(jobName, namespace, image, runID string, proj *project.Project, baseURL string) ([]byte, error) {
	env := []envVar{
		{Name: "TRACKLAB_RUN_ID", Value: runID},
		{Name: "TRACKLAB_BASE_URL", Value: baseURL},
	}
	if proj.Spec.TargetProject != "" {
		env = append(env, envVar{Name: "TRACKLAB_PROJECT", Value: proj.Spec.TargetProject})
	}
	if proj.Spec.TargetEntity != "" {
		env = append(env, envVar{Name: "TRACKLAB_ENTITY", Value: proj.Spec.TargetEntity})
	}

	manifest := jobManifest{
		APIVersion: "batch/v1",
		Kind:       "Job",
		Metadata: objectMeta{
			Name:      jobName,
			Namespace: namespace,
			Labels: map[string]string{
				"app.kubernetes.io/managed-by": "tracklab-launch",
			},
		},
		Spec: jobSpecBody{
			// The launcher owns retries; the cluster must not re-run a
			// failed workload behind our back.
			BackoffLimit: 0,
			Template: podTemplate{
				Spec: podSpec{
					RestartPolicy: "Never",
					Containers: []container{{
						Name:    "run",
						Image:   image,
						Command: proj.Entry.Command,
						Env:     env,
					}},
				},
			},
		},
	}

	out, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal job manifest: %w", err)
	}
	return out, nil
}
