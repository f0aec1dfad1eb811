package transfer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hadeploy/hadeploy/internal/errors"
)

type fakeShell struct {
	commands []string
	output   string
	err      error
}

func (s *fakeShell) Run(ctx context.Context, command string) (string, error) {
	s.commands = append(s.commands, command)
	return s.output, s.err
}

func (s *fakeShell) Check(ctx context.Context) error {
	return s.err
}

func TestDeployProduction_BuildsRemoteCommand(t *testing.T) {
	shell := &fakeShell{output: "sending incremental file list\nconfiguration.yaml\n"}
	rsync := NewRsync("ha@homeassistant", "/homeassistant/config_staging", "/homeassistant", shell)

	report, err := rsync.DeployProduction(context.Background(), false)
	require.NoError(t, err)

	require.Len(t, shell.commands, 1)
	cmd := shell.commands[0]
	assert.True(t, strings.HasPrefix(cmd, "rsync -av --delete "))
	assert.NotContains(t, cmd, "--dry-run")
	assert.Contains(t, cmd, "--exclude='.storage/'")
	assert.Contains(t, cmd, "--exclude='secrets.yaml'")
	assert.Contains(t, cmd, "--exclude='*.db'")
	assert.Contains(t, cmd, "'/homeassistant/config_staging/' '/homeassistant/'")

	assert.False(t, report.DryRun)
	assert.Equal(t, []string{"configuration.yaml"}, report.Transferred)
}

func TestDeployProduction_DryRun(t *testing.T) {
	shell := &fakeShell{output: ""}
	rsync := NewRsync("ha@homeassistant", "/staging", "/prod", shell)

	report, err := rsync.DeployProduction(context.Background(), true)
	require.NoError(t, err)

	assert.Contains(t, shell.commands[0], "--dry-run")
	assert.True(t, report.DryRun)
}

func TestDeployProduction_WrapsShellError(t *testing.T) {
	shell := &fakeShell{err: errors.New("remote command failed")}
	rsync := NewRsync("ha@homeassistant", "/staging", "/prod", shell)

	_, err := rsync.DeployProduction(context.Background(), false)
	require.ErrorIs(t, err, apperrors.ErrTransferFailed)
}

func TestCopySecrets_ToleratesMissingFile(t *testing.T) {
	shell := &fakeShell{}
	rsync := NewRsync("ha@homeassistant", "/staging", "/prod", shell)

	require.NoError(t, rsync.CopySecrets(context.Background()))
	require.Len(t, shell.commands, 1)
	assert.Contains(t, shell.commands[0], "cp '/prod/secrets.yaml' '/staging/secrets.yaml'")
	assert.Contains(t, shell.commands[0], "|| true")
}

func TestParseRsyncOutput(t *testing.T) {
	output := strings.Join([]string{
		"sending incremental file list",
		"deleting old_automation.yaml",
		"configuration.yaml",
		"automations.yaml",
		"packages/",
		"packages/lights.yaml",
		"",
		"sent 1,234 bytes  received 56 bytes  2,580.00 bytes/sec",
		"total size is 9,876  speedup is 7.65",
	}, "\n")

	report := parseRsyncOutput(output)

	assert.Equal(t, []string{"configuration.yaml", "automations.yaml", "packages/lights.yaml"}, report.Transferred)
	assert.Equal(t, []string{"old_automation.yaml"}, report.Deleted)
	assert.Equal(t, output, report.Raw)
}

func TestParseRsyncOutput_Empty(t *testing.T) {
	report := parseRsyncOutput("sending incremental file list\n\nsent 60 bytes  received 12 bytes\ntotal size is 0  speedup is 0.00\n")
	assert.Empty(t, report.Transferred)
	assert.Empty(t, report.Deleted)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "'/homeassistant'", shellQuote("/homeassistant"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
	assert.Equal(t, "'*.db'", shellQuote("*.db"))
}
