package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	apperrors "github.com/hadeploy/hadeploy/internal/errors"
	"github.com/hadeploy/hadeploy/internal/logging"
)

// SSH runs remote commands through the ssh CLI in batch mode so a missing
// key or unknown host fails instead of prompting.
type SSH struct {
	host string
}

// NewSSH creates a RemoteShell for the given ssh destination.
func NewSSH(host string) *SSH {
	return &SSH{host: host}
}

// Run executes command on the remote host and returns its stdout.
func (s *SSH) Run(ctx context.Context, command string) (string, error) {
	if _, err := exec.LookPath("ssh"); err != nil {
		return "", apperrors.ErrSSHNotFound
	}

	logging.Debug("transfer").Str("host", s.host).Str("command", command).Msg("running remote command")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "ssh", "-o", "BatchMode=yes", s.host, command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("remote command cancelled: %w", ctx.Err())
		}
		detail := strings.TrimSpace(stderr.String())
		// ssh itself exits 255; anything else is the remote command failing.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 255 {
			return "", fmt.Errorf("%w: %s", apperrors.ErrRemoteUnreachable, detail)
		}
		return "", fmt.Errorf("remote command failed: %v: %s", err, detail)
	}
	return stdout.String(), nil
}

// Check probes connectivity with a no-op remote command.
func (s *SSH) Check(ctx context.Context) error {
	_, err := s.Run(ctx, "true")
	return err
}
