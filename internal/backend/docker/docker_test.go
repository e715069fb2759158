package docker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklab/launch/internal/project"
	"github.com/tracklab/launch/internal/spec"
)

func testProject(t *testing.T, opts spec.Options) *project.Project {
	t.Helper()
	s, err := spec.New(opts)
	require.NoError(t, err)
	return &project.Project{
		Spec:  s,
		Dir:   "/tmp/proj",
		Entry: project.EntryPoint{Command: []string{"python3", "main.py"}},
	}
}

func TestRunArgs(t *testing.T) {
	t.Run("basic invocation", func(t *testing.T) {
		proj := testProject(t, spec.Options{URI: "/tmp/proj"})
		args := runArgs("tracklab-abcd1234", "tracklab/base:latest", "run-1", "https://api.tracklab.ai", nil, proj)

		assert.Equal(t, []string{
			"run", "--rm", "--name", "tracklab-abcd1234",
			"-e", "TRACKLAB_RUN_ID=run-1",
			"-e", "TRACKLAB_BASE_URL=https://api.tracklab.ai",
			"tracklab/base:latest",
			"python3", "main.py",
		}, args)
	})

	t.Run("docker args render sorted", func(t *testing.T) {
		proj := testProject(t, spec.Options{URI: "/tmp/proj"})
		dockerArgs := map[string]string{
			"network":  "host",
			"add-host": "host.docker.internal:host-gateway",
			"rm":       "",
		}
		args := runArgs("c", "img", "run-1", "http://localhost:8080", dockerArgs, proj)

		assert.Equal(t, []string{
			"run", "--rm", "--name", "c",
			"--add-host=host.docker.internal:host-gateway",
			"--network=host",
			"--rm",
			"-e", "TRACKLAB_RUN_ID=run-1",
			"-e", "TRACKLAB_BASE_URL=http://localhost:8080",
			"img",
			"python3", "main.py",
		}, args)
	})

	t.Run("target project and entity become env vars", func(t *testing.T) {
		proj := testProject(t, spec.Options{URI: "/tmp/proj", TargetProject: "demo", TargetEntity: "team"})
		args := runArgs("c", "img", "run-1", "u", nil, proj)

		assert.Contains(t, args, "TRACKLAB_PROJECT=demo")
		assert.Contains(t, args, "TRACKLAB_ENTITY=team")
	})
}

func TestMergeDockerArgs(t *testing.T) {
	base := map[string]string{"network": "host", "cpus": "2"}
	override := map[string]string{"network": "bridge", "memory": "1g"}

	merged := mergeDockerArgs(base, override)
	assert.Equal(t, map[string]string{"network": "bridge", "cpus": "2", "memory": "1g"}, merged)

	// Inputs are untouched.
	assert.Equal(t, "host", base["network"])
	assert.NotContains(t, base, "memory")
	assert.NotContains(t, override, "cpus")
}
