package hass

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/hadeploy/hadeploy/internal/errors"
	"github.com/hadeploy/hadeploy/internal/logging"
)

// backupPollInterval is how often WaitForBackup re-reads the backup list.
// A variable so tests can shorten the wait.
var backupPollInterval = 5 * time.Second

// Backup describes a backup managed by the remote instance.
type Backup struct {
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Date      time.Time `json:"date"`
	Size      float64   `json:"size"`
	Protected bool      `json:"protected"`
}

type backupInfo struct {
	Backups []Backup `json:"backups"`
}

// ListBackups returns the backups known to the instance.
func (c *Client) ListBackups(ctx context.Context) ([]Backup, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "backup/info", nil)
	if err != nil {
		return nil, err
	}
	var info backupInfo
	if err := c.do(req, &info); err != nil {
		return nil, err
	}
	return info.Backups, nil
}

// CreateBackup triggers a backup. Newer instances expose
// backup.create_automatic; on 404 the legacy backup.create service is used.
func (c *Client) CreateBackup(ctx context.Context) error {
	err := c.CallService(ctx, "backup", "create_automatic", nil)
	if err == nil {
		return nil
	}
	if !IsNotFound(err) {
		return fmt.Errorf("%w: %v", apperrors.ErrBackupFailed, err)
	}

	logging.Debug("hass").Msg("create_automatic not available, using legacy backup.create")
	if err := c.CallService(ctx, "backup", "create", nil); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrBackupFailed, err)
	}
	return nil
}

// WaitForBackup triggers a backup and polls the backup list until a new
// slug appears or the timeout elapses. The new backup is returned so the
// caller can reference it for manual rollback.
func (c *Client) WaitForBackup(ctx context.Context, timeout time.Duration) (*Backup, error) {
	before, err := c.ListBackups(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrBackupFailed, err)
	}
	known := make(map[string]struct{}, len(before))
	for _, b := range before {
		known[b.Slug] = struct{}{}
	}

	if err := c.CreateBackup(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(backupPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w after %v", apperrors.ErrBackupTimeout, timeout)
		case <-ticker.C:
			after, err := c.ListBackups(ctx)
			if err != nil {
				// Transient list failures are tolerated while polling.
				logging.Debug("hass").Err(err).Msg("backup list poll failed")
				continue
			}
			for _, b := range after {
				if _, ok := known[b.Slug]; !ok {
					logging.Info("hass").Str("slug", b.Slug).Msg("backup completed")
					return &b, nil
				}
			}
		}
	}
}
