package project

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// gitFetch clones uri into dir and checks out version when one is requested.
// A full clone is used because version may name any commit, not just a ref
// reachable from the default branch tip.
func gitFetch(ctx context.Context, uri, version, dir string) error {
	if err := runGit(ctx, "", "clone", uri, dir); err != nil {
		return err
	}
	if version != "" {
		if err := runGit(ctx, dir, "checkout", version); err != nil {
			return fmt.Errorf("checkout %q: %w", version, err)
		}
	}
	return nil
}

// runGit executes one git command, surfacing stderr in the returned error.
func runGit(ctx context.Context, dir string, args ...string) error {
	verb := args[0]
	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}
	cmd := exec.CommandContext(ctx, "git", args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) > 0 {
			return fmt.Errorf("git %s: %w: %s", verb, err, msg)
		}
		return fmt.Errorf("git %s: %w", verb, err)
	}
	return nil
}
