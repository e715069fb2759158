package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tracklab/launch/internal/launcherr"
)

// ManifestFileName is the optional project manifest declaring named entry
// points.
const ManifestFileName = "tracklab-project.yaml"

// DefaultEntryPoint is the entry point name used when the spec does not
// request one.
const DefaultEntryPoint = "main"

// Manifest is the parsed project manifest.
type Manifest struct {
	Name        string                   `yaml:"name"`
	EntryPoints map[string]ManifestEntry `yaml:"entry_points"`
}

// ManifestEntry is one declared entry point: a command template with
// {parameter} placeholders.
type ManifestEntry struct {
	Command string `yaml:"command"`
}

// LoadManifest reads the manifest from dir if one exists. A missing manifest
// is not an error; a malformed one is.
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read project manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, launcherr.WrapValidation(err, "malformed project manifest %q", path)
	}
	return &m, nil
}

// Resolve substitutes parameters into the entry's command template.
// {name} placeholders take the matching parameter value; parameters without
// a placeholder are appended as --name value pairs in stable order.
func (e ManifestEntry) Resolve(params map[string]string) []string {
	command := e.Command
	used := map[string]bool{}
	for k, v := range params {
		placeholder := "{" + k + "}"
		if strings.Contains(command, placeholder) {
			command = strings.ReplaceAll(command, placeholder, v)
			used[k] = true
		}
	}

	fields := strings.Fields(command)

	extra := make([]string, 0, len(params))
	for k := range params {
		if !used[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		fields = append(fields, "--"+k, params[k])
	}
	return fields
}
