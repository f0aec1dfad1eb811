package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hadeploy/hadeploy/internal/errors"
	"github.com/hadeploy/hadeploy/internal/hass"
	"github.com/hadeploy/hadeploy/internal/orchestrator"
	"github.com/hadeploy/hadeploy/internal/transfer"
	"github.com/hadeploy/hadeploy/internal/validate"
)

func TestDeployExitCode(t *testing.T) {
	valid := &orchestrator.ValidationResult{YAML: validate.TreeResult{Valid: true}}

	cases := map[string]struct {
		result *orchestrator.DeployResult
		want   int
	}{
		"succeeded": {
			result: &orchestrator.DeployResult{State: orchestrator.StateSucceeded},
			want:   exitOK,
		},
		"degraded": {
			result: &orchestrator.DeployResult{State: orchestrator.StateDegraded},
			want:   exitDegraded,
		},
		"aborted on yaml": {
			result: &orchestrator.DeployResult{
				State:      orchestrator.StateAborted,
				Validation: &orchestrator.ValidationResult{YAML: validate.TreeResult{Valid: false}},
			},
			want: exitValidation,
		},
		"aborted before validation": {
			result: &orchestrator.DeployResult{State: orchestrator.StateAborted},
			want:   exitValidation,
		},
		"aborted on staging push": {
			result: &orchestrator.DeployResult{
				State: orchestrator.StateAborted,
				Validation: &orchestrator.ValidationResult{
					YAML:    validate.TreeResult{Valid: true},
					PushErr: "connection refused",
				},
			},
			want: exitConnectivity,
		},
		"aborted by interrupt": {
			result: &orchestrator.DeployResult{
				State:       orchestrator.StateAborted,
				Validation:  valid,
				AbortReason: "cancelled: context canceled",
			},
			want: exitUsage,
		},
		"aborted on backup": {
			result: &orchestrator.DeployResult{
				State:      orchestrator.StateAborted,
				Validation: valid,
				Error:      apperrors.ErrBackupTimeout.Error(),
			},
			want: exitBackup,
		},
		"transfer failed": {
			result: &orchestrator.DeployResult{
				State:      orchestrator.StateFailed,
				Validation: valid,
				Error:      apperrors.ErrTransferFailed.Error(),
			},
			want: exitTransfer,
		},
		"reload failed": {
			result: &orchestrator.DeployResult{
				State:      orchestrator.StateFailed,
				Validation: valid,
				Transfer:   &transfer.Report{},
				Reload: &hass.ReloadResult{
					Failed: map[string]string{"automation.reload": "boom"},
				},
			},
			want: exitReload,
		},
		"remote check failed": {
			result: &orchestrator.DeployResult{
				State:      orchestrator.StateFailed,
				Validation: valid,
				Transfer:   &transfer.Report{},
				Reload:     &hass.ReloadResult{Reloaded: []string{"automation.reload"}},
				CoreCheck:  &orchestrator.CoreCheck{OK: false},
			},
			want: exitValidation,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, deployExitCode(tc.result))
		})
	}
}

func TestStageError_Unwrap(t *testing.T) {
	err := stageErr(exitBackup, apperrors.ErrBackupTimeout)

	require.ErrorIs(t, err, apperrors.ErrBackupTimeout)

	var stage *stageError
	require.True(t, errors.As(err, &stage))
	assert.Equal(t, exitBackup, stage.code)
	assert.Equal(t, apperrors.ErrBackupTimeout.Error(), stage.Error())
}
