// Package transfer moves config trees between the local machine and the
// remote host via rsync over ssh.
package transfer

import "context"

// Transfer is the file-copy capability the workflow depends on. The rsync
// implementation is the real one; tests inject fakes.
type Transfer interface {
	// PushStaging copies the local tree into the remote staging path,
	// applying the staging exclude set and deleting stale remote files.
	PushStaging(ctx context.Context, localPath string) error

	// CopySecrets copies secrets.yaml from production into staging on the
	// remote host so a remote check sees a complete tree. Absence of the
	// file is tolerated.
	CopySecrets(ctx context.Context) error

	// DeployProduction syncs staging into production on the remote host
	// with the Protected Set as exclude patterns. With dryRun the remote
	// rsync runs with --dry-run and the report lists what would change.
	DeployProduction(ctx context.Context, dryRun bool) (*Report, error)

	// Pull copies the production tree into localPath, applying the pull
	// exclude set. Used by bootstrap only.
	Pull(ctx context.Context, localPath string) error
}

// RemoteShell runs commands on the remote host.
type RemoteShell interface {
	// Run executes command remotely and returns its combined output.
	Run(ctx context.Context, command string) (string, error)

	// Check probes connectivity without side effects.
	Check(ctx context.Context) error
}

// Report describes what a production sync did, or would do under dry-run.
type Report struct {
	DryRun      bool     `json:"dry_run"`
	Transferred []string `json:"transferred"`
	Deleted     []string `json:"deleted"`
	Raw         string   `json:"-"`
}
