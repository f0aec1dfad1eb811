package transfer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	apperrors "github.com/hadeploy/hadeploy/internal/errors"
	"github.com/hadeploy/hadeploy/internal/logging"
	"github.com/hadeploy/hadeploy/internal/protect"
)

// Rsync implements Transfer using the rsync CLI locally and, for the
// staging-to-production sync, rsync executed on the remote host through a
// RemoteShell. The production sync has to run remotely: both trees live on
// the Home Assistant box.
type Rsync struct {
	host           string
	stagingPath    string
	productionPath string
	shell          RemoteShell
}

// NewRsync creates a Transfer for the given ssh host and remote paths.
func NewRsync(host, stagingPath, productionPath string, shell RemoteShell) *Rsync {
	return &Rsync{
		host:           host,
		stagingPath:    stagingPath,
		productionPath: productionPath,
		shell:          shell,
	}
}

// PushStaging copies the local tree into the remote staging path.
func (r *Rsync) PushStaging(ctx context.Context, localPath string) error {
	args := []string{"-az", "--delete"}
	args = append(args, protect.RsyncArgs(protect.StagingPush())...)
	args = append(args,
		strings.TrimRight(localPath, "/")+"/",
		fmt.Sprintf("%s:%s/", r.host, strings.TrimRight(r.stagingPath, "/")),
	)

	if _, err := r.runLocal(ctx, args); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStagingPushFailed, err)
	}
	return nil
}

// CopySecrets copies secrets.yaml from production to staging remotely.
// A missing secrets file is not an error.
func (r *Rsync) CopySecrets(ctx context.Context) error {
	cmd := fmt.Sprintf("cp %s %s 2>/dev/null || true",
		shellQuote(r.productionPath+"/secrets.yaml"),
		shellQuote(r.stagingPath+"/secrets.yaml"))
	_, err := r.shell.Run(ctx, cmd)
	return err
}

// DeployProduction syncs staging into production with the Protected Set
// excluded, optionally as a dry run.
func (r *Rsync) DeployProduction(ctx context.Context, dryRun bool) (*Report, error) {
	parts := []string{"rsync", "-av", "--delete"}
	if dryRun {
		parts = append(parts, "--dry-run")
	}
	for _, pattern := range protect.Production() {
		parts = append(parts, "--exclude="+shellQuote(pattern))
	}
	parts = append(parts,
		shellQuote(strings.TrimRight(r.stagingPath, "/")+"/"),
		shellQuote(strings.TrimRight(r.productionPath, "/")+"/"),
	)

	output, err := r.shell.Run(ctx, strings.Join(parts, " "))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrTransferFailed, err)
	}

	report := parseRsyncOutput(output)
	report.DryRun = dryRun
	return report, nil
}

// Pull copies the production tree into localPath for bootstrap.
func (r *Rsync) Pull(ctx context.Context, localPath string) error {
	args := []string{"-az"}
	args = append(args, protect.RsyncArgs(protect.Pull())...)
	args = append(args,
		fmt.Sprintf("%s:%s/", r.host, strings.TrimRight(r.productionPath, "/")),
		strings.TrimRight(localPath, "/")+"/",
	)

	if _, err := r.runLocal(ctx, args); err != nil {
		return fmt.Errorf("failed to pull config from %s: %w", r.host, err)
	}
	return nil
}

// runLocal executes rsync on this machine.
func (r *Rsync) runLocal(ctx context.Context, args []string) (string, error) {
	if _, err := exec.LookPath("rsync"); err != nil {
		return "", apperrors.ErrRsyncNotFound
	}

	logging.Debug("transfer").Strs("args", args).Msg("running rsync")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "rsync", args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("rsync cancelled: %w", ctx.Err())
		}
		return "", fmt.Errorf("rsync failed: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// parseRsyncOutput extracts the itemized file list from rsync -v output.
func parseRsyncOutput(output string) *Report {
	report := &Report{Raw: output}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "",
			strings.HasPrefix(line, "sending incremental file list"),
			strings.HasPrefix(line, "building file list"),
			strings.HasPrefix(line, "created directory"),
			strings.HasPrefix(line, "sent "),
			strings.HasPrefix(line, "total size is"):
			continue
		case strings.HasPrefix(line, "deleting "):
			report.Deleted = append(report.Deleted, strings.TrimPrefix(line, "deleting "))
		case strings.HasSuffix(line, "/"):
			// Directory entries carry no payload.
			continue
		default:
			report.Transferred = append(report.Transferred, line)
		}
	}

	return report
}

// shellQuote single-quotes s for use in a remote shell command line.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
