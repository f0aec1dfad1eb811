package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadeploy/hadeploy/internal/config"
	apperrors "github.com/hadeploy/hadeploy/internal/errors"
	"github.com/hadeploy/hadeploy/internal/hass"
	"github.com/hadeploy/hadeploy/internal/notify"
	"github.com/hadeploy/hadeploy/internal/state"
	"github.com/hadeploy/hadeploy/internal/transfer"
)

type fakeTransfer struct {
	pushCalls   int
	pushErr     error
	secretCalls int
	deployCalls []bool
	deployErr   error
	report      *transfer.Report
}

func (f *fakeTransfer) PushStaging(ctx context.Context, localPath string) error {
	f.pushCalls++
	return f.pushErr
}

func (f *fakeTransfer) CopySecrets(ctx context.Context) error {
	f.secretCalls++
	return nil
}

func (f *fakeTransfer) DeployProduction(ctx context.Context, dryRun bool) (*transfer.Report, error) {
	f.deployCalls = append(f.deployCalls, dryRun)
	if f.deployErr != nil {
		return nil, f.deployErr
	}
	report := f.report
	if report == nil {
		report = &transfer.Report{Transferred: []string{"configuration.yaml"}}
	}
	report.DryRun = dryRun
	return report, nil
}

func (f *fakeTransfer) Pull(ctx context.Context, localPath string) error {
	return nil
}

type fakeRemoteShell struct {
	output string
	err    error
}

func (f *fakeRemoteShell) Run(ctx context.Context, command string) (string, error) {
	return f.output, f.err
}

func (f *fakeRemoteShell) Check(ctx context.Context) error {
	return f.err
}

type fakeAPI struct {
	backupCalls      int
	backupErr        error
	reloadCalls      int
	reload           hass.ReloadResult
	pingCalls        int
	pingErr          error
	configCheckCalls int
	configCheck      hass.ConfigCheck
	configCheckErr   error
}

func (f *fakeAPI) CheckAPI(ctx context.Context) (*hass.APIStatus, error) {
	f.pingCalls++
	if f.pingErr != nil {
		return nil, f.pingErr
	}
	return &hass.APIStatus{Message: "API running."}, nil
}

func (f *fakeAPI) CheckConfig(ctx context.Context) (*hass.ConfigCheck, error) {
	f.configCheckCalls++
	if f.configCheckErr != nil {
		return nil, f.configCheckErr
	}
	if f.configCheck.Result == "" {
		return &hass.ConfigCheck{Result: "valid"}, nil
	}
	check := f.configCheck
	return &check, nil
}

func (f *fakeAPI) WaitForBackup(ctx context.Context, timeout time.Duration) (*hass.Backup, error) {
	f.backupCalls++
	if f.backupErr != nil {
		return nil, f.backupErr
	}
	return &hass.Backup{Slug: "abc123", Name: "Automatic backup"}, nil
}

func (f *fakeAPI) ReloadAll(ctx context.Context) hass.ReloadResult {
	f.reloadCalls++
	if f.reload.Reloaded == nil && f.reload.Failed == nil {
		return hass.ReloadResult{Reloaded: []string{"homeassistant.reload_core_config"}}
	}
	return f.reload
}

type fakeHistory struct {
	started  []string
	finished []string
	slug     string
	errMsg   string
}

func (f *fakeHistory) RecordStart(ctx context.Context, st string, dryRun bool) (*state.Deployment, error) {
	f.started = append(f.started, st)
	return &state.Deployment{ID: "dep-1", State: st, DryRun: dryRun}, nil
}

func (f *fakeHistory) RecordFinish(ctx context.Context, id, st, backupSlug, errMsg string) error {
	f.finished = append(f.finished, st)
	f.slug = backupSlug
	f.errMsg = errMsg
	return nil
}

type fakeNotifier struct {
	events []notify.Event
}

func (f *fakeNotifier) Send(ctx context.Context, event notify.Event) error {
	f.events = append(f.events, event)
	return nil
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func validTree(t *testing.T) string {
	t.Helper()
	return writeTree(t, map[string]string{
		"configuration.yaml": "homeassistant:\n  name: Home\n",
		"automations.yaml":   "- id: morning\n  alias: Morning lights\n",
	})
}

func testDeployer(dir string) (*Deployer, *fakeTransfer, *fakeRemoteShell, *fakeAPI) {
	cfg := &config.Config{
		SSHHost:        "ha@homeassistant",
		ProductionPath: "/homeassistant",
		StagingPath:    "/homeassistant/config_staging",
		LocalPath:      dir,
	}
	tr := &fakeTransfer{}
	shell := &fakeRemoteShell{output: `{"result": "ok", "message": ""}`}
	api := &fakeAPI{}
	return NewDeployer(cfg, tr, shell, api), tr, shell, api
}

func fastHealth(opts *DeployOptions) {
	opts.HealthInterval = time.Millisecond
	opts.HealthAttempts = 2
}

func TestDeploy_Succeeds(t *testing.T) {
	dir := validTree(t)
	deployer, tr, _, api := testDeployer(dir)
	history := &fakeHistory{}
	notifier := &fakeNotifier{}
	deployer.WithHistory(history).WithNotifier(notifier)

	opts := DeployOptions{LocalPath: dir}
	fastHealth(&opts)
	result := deployer.Deploy(context.Background(), opts)

	assert.Equal(t, StateSucceeded, result.State)
	assert.True(t, result.OK())
	assert.Equal(t, "abc123", result.BackupSlug)
	assert.Equal(t, 1, tr.pushCalls)
	assert.Equal(t, []bool{false}, tr.deployCalls)
	assert.Equal(t, 1, api.backupCalls)
	assert.Equal(t, 1, api.reloadCalls)

	require.Len(t, history.finished, 1)
	assert.Equal(t, string(StateSucceeded), history.finished[0])
	assert.Equal(t, "abc123", history.slug)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, string(StateSucceeded), notifier.events[0].State)
	assert.Equal(t, "abc123", notifier.events[0].BackupID)
}

func TestDeploy_AbortsOnInvalidYAML(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"configuration.yaml": "homeassistant:\n  name: Home\n",
		"automations.yaml":   "- id: morning\n\talias: tabs are not allowed\n",
	})
	deployer, tr, _, api := testDeployer(dir)

	result := deployer.Deploy(context.Background(), DeployOptions{LocalPath: dir})

	assert.Equal(t, StateAborted, result.State)
	assert.Contains(t, result.AbortReason, "validation")
	require.NotNil(t, result.Validation)
	assert.False(t, result.Validation.YAML.Valid)

	// Nothing downstream may run on a validation failure.
	assert.Zero(t, tr.pushCalls)
	assert.Empty(t, tr.deployCalls)
	assert.Zero(t, api.backupCalls)
	assert.Zero(t, api.reloadCalls)
}

func TestDeploy_AbortsOnStagingPushFailure(t *testing.T) {
	dir := validTree(t)
	deployer, tr, _, api := testDeployer(dir)
	tr.pushErr = apperrors.ErrStagingPushFailed

	result := deployer.Deploy(context.Background(), DeployOptions{LocalPath: dir})

	assert.Equal(t, StateAborted, result.State)
	require.NotNil(t, result.Validation)
	assert.NotEmpty(t, result.Validation.PushErr)
	assert.Zero(t, api.backupCalls)
	assert.Empty(t, tr.deployCalls)
}

func TestDeploy_DryRunTouchesNothing(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"configuration.yaml": "homeassistant:\n  name: Home\n",
		"secrets.yaml":       "api_key: hunter2\n",
	})
	deployer, tr, _, api := testDeployer(dir)
	notifier := &fakeNotifier{}
	deployer.WithNotifier(notifier)

	result := deployer.Deploy(context.Background(), DeployOptions{LocalPath: dir, DryRun: true})

	assert.Equal(t, StateSucceeded, result.State)
	assert.True(t, result.DryRun)
	assert.Equal(t, []bool{true}, tr.deployCalls)
	assert.Zero(t, api.backupCalls)
	assert.Zero(t, api.reloadCalls)
	assert.Zero(t, api.pingCalls)
	assert.Empty(t, notifier.events)

	// The protected secrets file is surfaced, never written.
	var paths []string
	for _, ex := range result.Excluded {
		paths = append(paths, ex.Path)
	}
	assert.Contains(t, paths, "secrets.yaml")
}

func TestDeploy_NoBackupSkipsBackupOnly(t *testing.T) {
	dir := validTree(t)
	deployer, tr, _, api := testDeployer(dir)

	opts := DeployOptions{LocalPath: dir, NoBackup: true}
	fastHealth(&opts)
	result := deployer.Deploy(context.Background(), opts)

	assert.Equal(t, StateSucceeded, result.State)
	assert.True(t, result.BackupSkip)
	assert.Empty(t, result.BackupSlug)
	assert.Zero(t, api.backupCalls)
	assert.Equal(t, []bool{false}, tr.deployCalls)
}

func TestDeploy_AbortsOnBackupFailure(t *testing.T) {
	dir := validTree(t)
	deployer, tr, _, api := testDeployer(dir)
	api.backupErr = apperrors.ErrBackupTimeout

	result := deployer.Deploy(context.Background(), DeployOptions{LocalPath: dir})

	assert.Equal(t, StateAborted, result.State)
	assert.Contains(t, result.AbortReason, "backup")
	assert.Empty(t, tr.deployCalls)
	assert.Zero(t, api.reloadCalls)
}

func TestDeploy_TransferFailureIsFailed(t *testing.T) {
	dir := validTree(t)
	deployer, tr, _, api := testDeployer(dir)
	tr.deployErr = apperrors.ErrTransferFailed

	result := deployer.Deploy(context.Background(), DeployOptions{LocalPath: dir})

	assert.Equal(t, StateFailed, result.State)
	assert.NotEmpty(t, result.Error)
	// Reload must not run against a half-written tree report.
	assert.Zero(t, api.reloadCalls)
}

func TestDeploy_ReloadFailureIsFailed(t *testing.T) {
	dir := validTree(t)
	deployer, _, _, api := testDeployer(dir)
	api.reload = hass.ReloadResult{
		Reloaded: []string{"script.reload"},
		Failed:   map[string]string{"automation.reload": "boom"},
	}

	opts := DeployOptions{LocalPath: dir}
	fastHealth(&opts)
	result := deployer.Deploy(context.Background(), opts)

	assert.Equal(t, StateFailed, result.State)
	require.NotNil(t, result.Reload)
	assert.False(t, result.Reload.OK())
	// The health check still ran: the instance answered, so the state is
	// Failed rather than Degraded.
	require.NotNil(t, result.Health)
	assert.True(t, result.Health.Healthy)
}

func TestDeploy_ReloadFailureWinsOverUnhealthy(t *testing.T) {
	dir := validTree(t)
	deployer, _, _, api := testDeployer(dir)
	api.reload = hass.ReloadResult{
		Failed: map[string]string{"automation.reload": "boom"},
	}
	api.pingErr = errors.New("connection refused")

	opts := DeployOptions{LocalPath: dir}
	fastHealth(&opts)
	result := deployer.Deploy(context.Background(), opts)

	// Degraded is reserved for deploys where reload succeeded; a failed
	// reload ends Failed even when the instance also stops answering.
	assert.Equal(t, StateFailed, result.State)
	require.NotNil(t, result.Health)
	assert.False(t, result.Health.Healthy)
}

func TestDeploy_UnhealthyIsDegraded(t *testing.T) {
	dir := validTree(t)
	deployer, _, _, api := testDeployer(dir)
	api.pingErr = errors.New("connection refused")

	opts := DeployOptions{LocalPath: dir}
	fastHealth(&opts)
	result := deployer.Deploy(context.Background(), opts)

	assert.Equal(t, StateDegraded, result.State)
	require.NotNil(t, result.Health)
	assert.False(t, result.Health.Healthy)
	assert.Equal(t, 2, result.Health.Attempts)
	assert.Contains(t, result.Error, "connection refused")
}

func TestDeploy_RemoteCheckFailureIsFailed(t *testing.T) {
	dir := validTree(t)
	deployer, _, shell, api := testDeployer(dir)
	shell.output = `{"result": "error", "message": "Integration error: bad_platform"}`

	opts := DeployOptions{LocalPath: dir}
	fastHealth(&opts)
	result := deployer.Deploy(context.Background(), opts)

	assert.Equal(t, StateFailed, result.State)
	require.NotNil(t, result.CoreCheck)
	assert.False(t, result.CoreCheck.OK)
	assert.Contains(t, result.Error, "bad_platform")
	// Reload is still attempted after a failed remote check.
	assert.Equal(t, 1, api.reloadCalls)
}

func TestDeploy_RemoteCheckFallsBackToAPI(t *testing.T) {
	for name, shell := range map[string]*fakeRemoteShell{
		"unauthorized": {output: "401 Unauthorized"},
		"not json":     {output: "ha: command not found"},
		"ssh error":    {err: errors.New("remote command failed")},
	} {
		t.Run(name, func(t *testing.T) {
			dir := validTree(t)
			deployer, _, _, api := testDeployer(dir)
			deployer.shell = shell

			opts := DeployOptions{LocalPath: dir}
			fastHealth(&opts)
			result := deployer.Deploy(context.Background(), opts)

			assert.Equal(t, StateSucceeded, result.State)
			assert.Equal(t, 1, api.configCheckCalls)
			require.NotNil(t, result.CoreCheck)
			assert.False(t, result.CoreCheck.Skipped)
			assert.True(t, result.CoreCheck.OK)
			assert.Contains(t, result.CoreCheck.Note, "REST API")
		})
	}
}

func TestDeploy_APIFallbackCheckFailureIsFailed(t *testing.T) {
	dir := validTree(t)
	deployer, _, shell, api := testDeployer(dir)
	shell.err = errors.New("remote command failed")
	api.configCheck = hass.ConfigCheck{Result: "invalid", Errors: "Integration error: bad_platform"}

	opts := DeployOptions{LocalPath: dir}
	fastHealth(&opts)
	result := deployer.Deploy(context.Background(), opts)

	assert.Equal(t, StateFailed, result.State)
	require.NotNil(t, result.CoreCheck)
	assert.False(t, result.CoreCheck.OK)
	assert.Contains(t, result.Error, "bad_platform")
}

func TestDeploy_NoUsableConfigCheckIsSkipped(t *testing.T) {
	dir := validTree(t)
	deployer, _, shell, api := testDeployer(dir)
	shell.err = errors.New("remote command failed")
	api.configCheckErr = errors.New("api error: status 500")

	opts := DeployOptions{LocalPath: dir}
	fastHealth(&opts)
	result := deployer.Deploy(context.Background(), opts)

	// An advisory check that cannot run anywhere never fails the deploy.
	assert.Equal(t, StateSucceeded, result.State)
	require.NotNil(t, result.CoreCheck)
	assert.True(t, result.CoreCheck.Skipped)
}

func TestDeploy_RecordsAbortedRuns(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"automations.yaml": "- id: morning\n\talias: broken\n",
	})
	deployer, _, _, _ := testDeployer(dir)
	history := &fakeHistory{}
	deployer.WithHistory(history)

	deployer.Deploy(context.Background(), DeployOptions{LocalPath: dir})

	require.Len(t, history.started, 1)
	require.Len(t, history.finished, 1)
	assert.Equal(t, string(StateAborted), history.finished[0])
	assert.NotEmpty(t, history.errMsg)
}

func TestDeploy_RepeatedDeployIsStable(t *testing.T) {
	dir := validTree(t)
	deployer, tr, _, api := testDeployer(dir)

	opts := DeployOptions{LocalPath: dir}
	fastHealth(&opts)
	first := deployer.Deploy(context.Background(), opts)
	second := deployer.Deploy(context.Background(), opts)

	assert.Equal(t, StateSucceeded, first.State)
	assert.Equal(t, StateSucceeded, second.State)
	assert.Equal(t, 2, tr.pushCalls)
	assert.Equal(t, 2, api.backupCalls)
}
