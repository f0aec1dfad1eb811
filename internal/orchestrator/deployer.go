package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/hadeploy/hadeploy/internal/config"
	apperrors "github.com/hadeploy/hadeploy/internal/errors"
	"github.com/hadeploy/hadeploy/internal/hass"
	"github.com/hadeploy/hadeploy/internal/health"
	"github.com/hadeploy/hadeploy/internal/logging"
	"github.com/hadeploy/hadeploy/internal/notify"
	"github.com/hadeploy/hadeploy/internal/protect"
	"github.com/hadeploy/hadeploy/internal/state"
	"github.com/hadeploy/hadeploy/internal/transfer"
)

// State is the deploy workflow state. Aborted, Failed, Succeeded and
// Degraded are terminal.
type State string

const (
	StateIdle           State = "idle"
	StateValidating     State = "validating"
	StateBackingUp      State = "backing_up"
	StateTransferring   State = "transferring"
	StateReloading      State = "reloading"
	StateHealthChecking State = "health_checking"
	StateSucceeded      State = "succeeded"
	StateDegraded       State = "degraded"
	StateAborted        State = "aborted"
	StateFailed         State = "failed"
)

// Terminal reports whether s ends the workflow.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateDegraded, StateAborted, StateFailed:
		return true
	}
	return false
}

// DefaultBackupTimeout bounds the wait for a remote backup to complete.
const DefaultBackupTimeout = 5 * time.Minute

// APIClient is the slice of the Home Assistant client the deployer uses.
type APIClient interface {
	CheckAPI(ctx context.Context) (*hass.APIStatus, error)
	CheckConfig(ctx context.Context) (*hass.ConfigCheck, error)
	WaitForBackup(ctx context.Context, timeout time.Duration) (*hass.Backup, error)
	ReloadAll(ctx context.Context) hass.ReloadResult
}

// History records deploy invocations. *state.Store satisfies it.
type History interface {
	RecordStart(ctx context.Context, st string, dryRun bool) (*state.Deployment, error)
	RecordFinish(ctx context.Context, id, st, backupSlug, errMsg string) error
}

// Notifier posts the final outcome somewhere. *notify.Webhook satisfies it.
type Notifier interface {
	Send(ctx context.Context, event notify.Event) error
}

// DeployOptions controls one deploy run.
type DeployOptions struct {
	LocalPath      string
	DryRun         bool
	NoBackup       bool
	BackupTimeout  time.Duration
	HealthInterval time.Duration
	HealthAttempts int

	OnStatus  func(msg string)
	OnVerbose func(msg string)
}

// ExcludedFile is a local file that a deploy will never write to production.
type ExcludedFile struct {
	Path    string `json:"path"`
	Pattern string `json:"pattern"`
}

// CoreCheck is the advisory remote `ha core check` result.
type CoreCheck struct {
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped"`
	Note    string `json:"note,omitempty"`
	Message string `json:"message,omitempty"`
}

// DeployResult accumulates the outcome of every step.
type DeployResult struct {
	State       State              `json:"state"`
	DryRun      bool               `json:"dry_run"`
	Validation  *ValidationResult  `json:"validation,omitempty"`
	BackupSlug  string             `json:"backup_slug,omitempty"`
	BackupSkip  bool               `json:"backup_skipped,omitempty"`
	Transfer    *transfer.Report   `json:"transfer,omitempty"`
	Excluded    []ExcludedFile     `json:"excluded,omitempty"`
	CoreCheck   *CoreCheck         `json:"core_check,omitempty"`
	Reload      *hass.ReloadResult `json:"reload,omitempty"`
	Health      *health.Result     `json:"health,omitempty"`
	AbortReason string             `json:"abort_reason,omitempty"`
	Error       string             `json:"error,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	Duration    time.Duration      `json:"duration"`
}

// OK reports whether the deploy fully succeeded.
func (r *DeployResult) OK() bool {
	return r.State == StateSucceeded
}

// Deployer runs the deploy pipeline. History and notifier are optional.
type Deployer struct {
	cfg       *config.Config
	validator *Validator
	transfer  transfer.Transfer
	shell     transfer.RemoteShell
	api       APIClient
	history   History
	notifier  Notifier
}

// NewDeployer wires a Deployer from its collaborators.
func NewDeployer(cfg *config.Config, tr transfer.Transfer, shell transfer.RemoteShell, api APIClient) *Deployer {
	return &Deployer{
		cfg:       cfg,
		validator: NewValidator(cfg, tr),
		transfer:  tr,
		shell:     shell,
		api:       api,
	}
}

// WithHistory records each run in the given store.
func (d *Deployer) WithHistory(h History) *Deployer {
	d.history = h
	return d
}

// WithNotifier posts the final outcome of non-dry runs.
func (d *Deployer) WithNotifier(n Notifier) *Deployer {
	d.notifier = n
	return d
}

// Deploy executes the pipeline:
//
//	Validating → BackingUp → Transferring → Reloading → HealthChecking
//
// A validation or backup failure aborts before any production write. A
// transfer failure can leave production partially written; that is
// reported as Failed, never silently retried. Reload failure does not
// roll back. Health-check exhaustion after a successful transfer and
// reload yields Degraded.
func (d *Deployer) Deploy(ctx context.Context, opts DeployOptions) *DeployResult {
	onStatus := opts.OnStatus
	if onStatus == nil {
		onStatus = func(string) {}
	}
	onVerbose := opts.OnVerbose
	if onVerbose == nil {
		onVerbose = func(string) {}
	}
	if opts.LocalPath == "" {
		opts.LocalPath = d.cfg.LocalPath
	}
	if opts.BackupTimeout <= 0 {
		opts.BackupTimeout = DefaultBackupTimeout
	}

	result := &DeployResult{
		State:     StateValidating,
		DryRun:    opts.DryRun,
		StartedAt: time.Now(),
	}
	defer func() {
		result.Duration = time.Since(result.StartedAt)
	}()

	historyID := d.recordStart(ctx, result)
	defer func() {
		d.recordFinish(ctx, historyID, result)
		d.notifyOutcome(result)
	}()

	// Validation gates everything downstream.
	validation, err := d.validator.Run(ctx, ValidateOptions{
		LocalPath: opts.LocalPath,
		OnStatus:  onStatus,
		OnVerbose: onVerbose,
	})
	if validation != nil {
		result.Validation = validation
	}
	if err != nil {
		return d.abort(result, fmt.Sprintf("validation failed: %v", err))
	}
	if !validation.OK() {
		return d.abort(result, "YAML validation failed")
	}

	if opts.DryRun {
		return d.dryRun(ctx, result, opts, onStatus, onVerbose)
	}

	// Backup before any production write.
	result.State = StateBackingUp
	if opts.NoBackup {
		onStatus("Skipping backup (--no-backup)")
		result.BackupSkip = true
	} else {
		onStatus("Requesting backup...")
		backup, err := d.api.WaitForBackup(ctx, opts.BackupTimeout)
		if err != nil {
			result.Error = err.Error()
			return d.abort(result, fmt.Sprintf("backup failed: %v", err))
		}
		result.BackupSlug = backup.Slug
		onStatus(fmt.Sprintf("Backup complete: %s", backup.Slug))
	}

	if err := ctx.Err(); err != nil {
		return d.abort(result, fmt.Sprintf("cancelled: %v", err))
	}

	// Production transfer. Not atomic: a failure here can leave a mixed
	// old/new tree, which is reported as Failed for manual inspection.
	result.State = StateTransferring
	onStatus("Deploying staging to production...")
	report, err := d.transfer.DeployProduction(ctx, false)
	if err != nil {
		result.Error = err.Error()
		result.State = StateFailed
		return result
	}
	result.Transfer = report
	result.Excluded = d.excludedFiles(opts.LocalPath)
	onVerbose(fmt.Sprintf("Transferred %d files, deleted %d", len(report.Transferred), len(report.Deleted)))

	result.CoreCheck = d.coreCheck(ctx, onVerbose)

	// Reload runs even when the core check failed; it never rolls back.
	result.State = StateReloading
	onStatus("Reloading Home Assistant...")
	reload := d.api.ReloadAll(ctx)
	result.Reload = &reload
	if !reload.OK() {
		for name, msg := range reload.Failed {
			onVerbose(fmt.Sprintf("Reload failed: %s: %s", name, msg))
		}
	}

	result.State = StateHealthChecking
	onStatus("Waiting for Home Assistant to recover...")
	checker := health.NewChecker(d.api, opts.HealthInterval, opts.HealthAttempts)
	hres := checker.Wait(ctx)
	result.Health = &hres

	// Degraded means transfer and reload succeeded but health is
	// unconfirmed, so a failed check or reload wins over the health verdict.
	switch {
	case result.CoreCheck != nil && !result.CoreCheck.Skipped && !result.CoreCheck.OK:
		result.State = StateFailed
		result.Error = result.CoreCheck.Message
	case !reload.OK():
		result.State = StateFailed
		result.Error = apperrors.ErrReloadFailed.Error()
	case !hres.Healthy:
		result.State = StateDegraded
		result.Error = hres.LastError
	default:
		result.State = StateSucceeded
	}

	return result
}

// dryRun reports what a deploy would do without backing up, writing to
// production, or reloading.
func (d *Deployer) dryRun(ctx context.Context, result *DeployResult, opts DeployOptions, onStatus, onVerbose func(string)) *DeployResult {
	result.State = StateTransferring
	onStatus("Dry run: computing production changes...")

	report, err := d.transfer.DeployProduction(ctx, true)
	if err != nil {
		result.Error = err.Error()
		result.State = StateFailed
		return result
	}
	result.Transfer = report
	result.Excluded = d.excludedFiles(opts.LocalPath)

	onVerbose(fmt.Sprintf("Would transfer %d files, delete %d, excluding %d protected paths",
		len(report.Transferred), len(report.Deleted), len(result.Excluded)))

	result.State = StateSucceeded
	return result
}

// coreCheck runs `ha core check` on the remote host. The command is not
// available on every installation type; when it cannot run, the REST
// config check stands in before giving up as skipped.
func (d *Deployer) coreCheck(ctx context.Context, onVerbose func(string)) *CoreCheck {
	output, err := d.shell.Run(ctx, "ha core check --raw-json")
	if err != nil {
		if ctx.Err() != nil {
			return &CoreCheck{Skipped: true, Note: fmt.Sprintf("cancelled: %v", ctx.Err())}
		}
		onVerbose(fmt.Sprintf("ha core check unavailable: %v", err))
		return d.apiConfigCheck(ctx, onVerbose, fmt.Sprintf("ha core check unavailable: %v", err))
	}

	if strings.Contains(strings.ToLower(output), "unauthorized") {
		return d.apiConfigCheck(ctx, onVerbose, "ha core check not available via SSH (auth required)")
	}

	var parsed struct {
		Result  string `json:"result"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(output), &parsed); err != nil {
		return d.apiConfigCheck(ctx, onVerbose, "could not parse ha core check output")
	}

	check := &CoreCheck{OK: parsed.Result == "ok", Message: parsed.Message}
	if !check.OK {
		onVerbose(fmt.Sprintf("ha core check reported: %s", parsed.Message))
	}
	return check
}

// apiConfigCheck is the fallback for installations where the CLI check
// cannot run: POST /api/config/core/check_config. Only when that also
// fails is the step reported as skipped.
func (d *Deployer) apiConfigCheck(ctx context.Context, onVerbose func(string), note string) *CoreCheck {
	check, err := d.api.CheckConfig(ctx)
	if err != nil {
		onVerbose(fmt.Sprintf("api config check unavailable: %v", err))
		return &CoreCheck{Skipped: true, Note: fmt.Sprintf("%s; api config check failed: %v", note, err)}
	}

	result := &CoreCheck{OK: check.Valid(), Message: check.Errors, Note: note + "; validated via REST API"}
	if !result.OK {
		onVerbose(fmt.Sprintf("api config check reported: %s", check.Errors))
	}
	return result
}

// excludedFiles lists local files that transfers never write to production,
// so dry-run output can show them explicitly.
func (d *Deployer) excludedFiles(localPath string) []ExcludedFile {
	patterns := append(protect.StagingPush(), protect.Production()...)

	var excluded []ExcludedFile
	err := filepath.WalkDir(localPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are simply not listed
		}
		rel, relErr := filepath.Rel(localPath, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if pattern, ok := protect.Excluded(rel, patterns); ok {
			excluded = append(excluded, ExcludedFile{Path: rel, Pattern: pattern})
			if entry.IsDir() {
				return filepath.SkipDir
			}
		}
		return nil
	})
	if err != nil {
		logging.Warn("orchestrator").Err(err).Msg("failed to walk local tree for exclusions")
	}
	return excluded
}

func (d *Deployer) abort(result *DeployResult, reason string) *DeployResult {
	result.State = StateAborted
	result.AbortReason = reason
	return result
}

func (d *Deployer) recordStart(ctx context.Context, result *DeployResult) string {
	if d.history == nil {
		return ""
	}
	rec, err := d.history.RecordStart(ctx, string(result.State), result.DryRun)
	if err != nil {
		logging.Warn("orchestrator").Err(err).Msg("failed to record deployment start")
		return ""
	}
	return rec.ID
}

func (d *Deployer) recordFinish(ctx context.Context, id string, result *DeployResult) {
	if d.history == nil || id == "" {
		return
	}
	errMsg := result.Error
	if errMsg == "" {
		errMsg = result.AbortReason
	}
	if err := d.history.RecordFinish(ctx, id, string(result.State), result.BackupSlug, errMsg); err != nil {
		logging.Warn("orchestrator").Err(err).Msg("failed to record deployment finish")
	}
}

// notifyOutcome posts the terminal state of real deploys. Failures here
// never change the deploy outcome.
func (d *Deployer) notifyOutcome(result *DeployResult) {
	if d.notifier == nil || result.DryRun {
		return
	}

	msg := fmt.Sprintf("deploy finished: %s", result.State)
	if result.AbortReason != "" {
		msg = fmt.Sprintf("deploy aborted: %s", result.AbortReason)
	} else if result.Error != "" {
		msg = fmt.Sprintf("deploy %s: %s", result.State, result.Error)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	event := notify.Event{
		Event:    "deploy_finished",
		State:    string(result.State),
		BackupID: result.BackupSlug,
		Message:  msg,
	}
	if err := d.notifier.Send(ctx, event); err != nil {
		logging.Warn("orchestrator").Err(err).Msg("failed to send notification")
	}
}
