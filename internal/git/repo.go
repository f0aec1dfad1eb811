// Package git provides the git operations bootstrap needs, via the git CLI.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Repo wraps a local repository path.
type Repo struct {
	path string
}

// NewRepo creates a Repo for the given directory.
func NewRepo(path string) *Repo {
	return &Repo{path: path}
}

// IsRepo reports whether the directory is already a git repository.
func (r *Repo) IsRepo(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "git", "-C", r.path, "rev-parse", "--git-dir")
	return cmd.Run() == nil
}

// Init initializes a repository in the directory.
func (r *Repo) Init(ctx context.Context) error {
	return r.run(ctx, "init")
}

// CommitAll stages everything and creates a commit.
func (r *Repo) CommitAll(ctx context.Context, message string) error {
	if err := r.run(ctx, "add", "-A"); err != nil {
		return err
	}
	return r.run(ctx, "commit", "-m", message)
}

func (r *Repo) run(ctx context.Context, args ...string) error {
	full := append([]string{"-C", r.path}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s failed: %v: %s",
			strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return nil
}
