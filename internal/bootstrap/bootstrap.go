// Package bootstrap creates the local config tree from the running instance.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hadeploy/hadeploy/internal/git"
	"github.com/hadeploy/hadeploy/internal/protect"
	"github.com/hadeploy/hadeploy/internal/transfer"
)

// gitignore keeps protected and generated material out of the local repo.
// Derived from the Protected Set so the two lists cannot drift apart.
func gitignore() string {
	var b strings.Builder
	b.WriteString("# Managed by the Home Assistant service, never committed\n")
	for _, pattern := range protect.Production() {
		b.WriteString(pattern)
		b.WriteByte('\n')
	}
	return b.String()
}

// Options controls a bootstrap run.
type Options struct {
	LocalPath string
	Force     bool

	OnStatus func(msg string)
}

// Run pulls the production tree into a fresh local directory and puts it
// under git. Protected material is excluded from the pull and ignored by
// the repository.
func Run(ctx context.Context, tr transfer.Transfer, shell transfer.RemoteShell, opts Options) error {
	onStatus := opts.OnStatus
	if onStatus == nil {
		onStatus = func(string) {}
	}

	if !opts.Force {
		if entries, err := os.ReadDir(opts.LocalPath); err == nil && len(entries) > 0 {
			return fmt.Errorf("%s is not empty, use --force to bootstrap anyway", opts.LocalPath)
		}
	}
	if err := os.MkdirAll(opts.LocalPath, 0750); err != nil {
		return fmt.Errorf("failed to create %s: %w", opts.LocalPath, err)
	}

	onStatus("Checking SSH connectivity...")
	if err := shell.Check(ctx); err != nil {
		return fmt.Errorf("ssh check failed: %w", err)
	}

	onStatus("Pulling config from production...")
	if err := tr.Pull(ctx, opts.LocalPath); err != nil {
		return err
	}

	ignorePath := filepath.Join(opts.LocalPath, ".gitignore")
	if err := os.WriteFile(ignorePath, []byte(gitignore()), 0644); err != nil {
		return fmt.Errorf("failed to write .gitignore: %w", err)
	}

	repo := git.NewRepo(opts.LocalPath)
	if repo.IsRepo(ctx) {
		onStatus("Directory is already a git repository, skipping init")
		return nil
	}

	onStatus("Initializing git repository...")
	if err := repo.Init(ctx); err != nil {
		return err
	}
	if err := repo.CommitAll(ctx, "Initial import of Home Assistant config"); err != nil {
		return err
	}

	return nil
}
