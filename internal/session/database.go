package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotalytics/internal/repositories"
)

// SweepInterval is how often [DatabaseStore.Sweep] purges expired rows by default.
const SweepInterval = time.Hour

// DatabaseStore keeps sessions as JSON in the sessions table.
type DatabaseStore struct {
	repo *repositories.SessionRepository
	now  func() time.Time
}

// NewDatabaseStore creates a [DatabaseStore] on top of repo.
func NewDatabaseStore(repo *repositories.SessionRepository) *DatabaseStore {
	return &DatabaseStore{repo: repo, now: time.Now}
}

func (d *DatabaseStore) Load(ctx context.Context, id string) (*Data, error) {
	raw, err := d.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &data, nil
}

func (d *DatabaseStore) Save(ctx context.Context, id string, data Data, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return d.repo.Save(ctx, id, raw, d.now().Add(ttl))
}

func (d *DatabaseStore) Delete(ctx context.Context, id string) error {
	return d.repo.Delete(ctx, id)
}

// Sweep deletes expired sessions every interval until ctx is done.
func (d *DatabaseStore) Sweep(ctx context.Context, interval time.Duration, logger *log.Logger) {
	if interval <= 0 {
		interval = SweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.repo.DeleteExpired(ctx)
			if err != nil {
				logger.Warn("failed to purge expired sessions", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("purged expired sessions", "count", n)
			}
		}
	}
}
