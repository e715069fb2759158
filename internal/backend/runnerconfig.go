package backend

// RunnerConfig keys passed uniformly to every backend, regardless of which
// one is selected.
const (
	KeySynchronous = "synchronous"
	KeyDockerArgs  = "docker_args"
)

// RunnerConfig is the shared configuration bag handed to a backend factory.
// It carries the uniform keys above plus any free-form attributes from the
// matching backend block in launch.hcl.
type RunnerConfig map[string]any

// Synchronous reports whether the caller blocks on run completion.
func (c RunnerConfig) Synchronous() bool {
	v, ok := c[KeySynchronous].(bool)
	return ok && v
}

// DockerArgs returns the docker arguments carried in the config, or an empty
// map when none are set.
func (c RunnerConfig) DockerArgs() map[string]string {
	switch v := c[KeyDockerArgs].(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, val := range v {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
		return out
	default:
		return map[string]string{}
	}
}

// String returns the string value under key, or fallback when the key is
// absent or not a string.
func (c RunnerConfig) String(key, fallback string) string {
	if v, ok := c[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
