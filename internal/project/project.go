// Package project resolves a run spec into a concrete, validated project:
// fetched source, a resolvable entry-point command, and the manifest (when
// the project declares one).
//
// Resolution is two-phase. CreateFromSpec only classifies the source URI and
// copies static fields; FetchAndValidate performs the I/O: cloning remote
// source, checking the project directory, and resolving the entry point.
package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tracklab/launch/internal/ctxlog"
	"github.com/tracklab/launch/internal/launcherr"
	"github.com/tracklab/launch/internal/spec"
)

// SourceType classifies where project source comes from.
type SourceType string

const (
	// SourceLocal is a project rooted at a local filesystem path.
	SourceLocal SourceType = "local"
	// SourceGit is a project fetched from a remote git repository.
	SourceGit SourceType = "git"
)

// EntryPoint is the resolved command for a project, ready to execute from
// the project directory.
type EntryPoint struct {
	Command []string
}

// Project is a resolved run spec. Created by CreateFromSpec, completed by
// FetchAndValidate, and consumed exactly once by a backend.
type Project struct {
	Spec     *spec.Spec
	Source   SourceType
	Dir      string
	Entry    EntryPoint
	Manifest *Manifest

	fetched bool
}

// CreateFromSpec builds a Project from a run spec without performing any
// I/O beyond classifying the URI scheme.
func CreateFromSpec(s *spec.Spec) (*Project, error) {
	if s == nil || s.URI == "" {
		return nil, launcherr.NewValidation("project requires a run spec with a uri")
	}

	// Version only applies to git sources; a local path is always launched
	// as-is, matching how the run surface documents it.
	source := SourceLocal
	if isGitURI(s.URI) {
		source = SourceGit
	}

	return &Project{Spec: s, Source: source}, nil
}

// FetchAndValidate fetches the project source if it is remote, verifies the
// project directory exists, and resolves the entry point. Idempotent for
// identical source; concurrent fetches of the same URI are not deduplicated.
func FetchAndValidate(ctx context.Context, p *Project) (*Project, error) {
	logger := ctxlog.FromContext(ctx)

	if !p.fetched {
		switch p.Source {
		case SourceGit:
			dir, err := os.MkdirTemp("", "tracklab-launch-")
			if err != nil {
				return nil, fmt.Errorf("create fetch dir: %w", err)
			}
			logger.Info("Fetching project source.", "uri", p.Spec.URI, "version", p.Spec.Version, "dir", dir)
			if err := gitFetch(ctx, p.Spec.URI, p.Spec.Version, dir); err != nil {
				return nil, launcherr.WrapValidation(err, "failed to fetch project source %q", p.Spec.URI)
			}
			p.Dir = dir
		case SourceLocal:
			dir := p.Spec.URI
			info, err := os.Stat(dir)
			if err != nil || !info.IsDir() {
				return nil, launcherr.NewValidation("project directory %q does not exist", dir)
			}
			p.Dir = dir
		}
		p.fetched = true
	}

	manifest, err := LoadManifest(p.Dir)
	if err != nil {
		return nil, err
	}
	p.Manifest = manifest

	entry, err := resolveEntryPoint(p)
	if err != nil {
		return nil, err
	}
	p.Entry = entry

	logger.Debug("Project validated.", "dir", p.Dir, "command", strings.Join(entry.Command, " "))
	return p, nil
}

// resolveEntryPoint resolves the spec's entry point against the manifest
// first, then against runnable scripts in the project directory.
func resolveEntryPoint(p *Project) (EntryPoint, error) {
	name := p.Spec.EntryPoint
	if name == "" {
		name = DefaultEntryPoint
	}

	if p.Manifest != nil {
		if ep, ok := p.Manifest.EntryPoints[name]; ok {
			return EntryPoint{Command: ep.Resolve(p.Spec.Parameters)}, nil
		}
	}

	// No declared entry point: treat the name as a script path relative to
	// the project directory and infer the interpreter from the extension.
	script := filepath.Join(p.Dir, name)
	if info, err := os.Stat(script); err != nil || info.IsDir() {
		return EntryPoint{}, launcherr.NewValidation(
			"entry point %q not found in project %q (no manifest entry and no such script)", name, p.Spec.URI)
	}

	var command []string
	switch filepath.Ext(name) {
	case ".py":
		command = []string{"python3", name}
	case ".sh":
		shell := os.Getenv("SHELL")
		if shell == "" {
			shell = "sh"
		}
		command = []string{shell, name}
	default:
		return EntryPoint{}, launcherr.NewValidation(
			"entry point %q has unsupported extension %q; declare it in %s instead",
			name, filepath.Ext(name), ManifestFileName)
	}

	return EntryPoint{Command: append(command, flagArgs(p.Spec.Parameters)...)}, nil
}

// flagArgs renders parameters as --key value pairs in stable order.
func flagArgs(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, "--"+k, params[k])
	}
	return args
}

// isGitURI reports whether the uri points at a remote git repository.
func isGitURI(uri string) bool {
	if strings.HasPrefix(uri, "https://") || strings.HasPrefix(uri, "http://") {
		return true
	}
	if strings.HasPrefix(uri, "git@") || strings.HasPrefix(uri, "ssh://") || strings.HasPrefix(uri, "git://") {
		return true
	}
	return false
}
