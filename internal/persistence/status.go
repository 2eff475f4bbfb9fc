package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/0022papa/kiwoom-bot/internal/models"
)

// Staleness parameters for the status snapshot.
const (
	// offlineThreshold is how long the status entry may go unwritten
	// before the bot is reported offline. The bot heartbeats every few
	// seconds, so a minute of silence means the process is gone.
	offlineThreshold = 60 * time.Second

	// staleSanityCeiling bounds a believable gap. Anything beyond it is a
	// clock or consistency artifact, not genuine staleness, and is
	// reported as zero.
	staleSanityCeiling = 24 * time.Hour

	// absentLastSyncAgo is the sentinel reported when no status entry
	// exists at all.
	absentLastSyncAgo = 9999999
)

// Status returns the bot's status snapshot together with the derived
// freshness signal. A missing or undecodable snapshot reports "definitely
// offline" rather than failing.
func (r *Repository) Status() (models.StatusReport, error) {
	offline := models.StatusReport{
		Snapshot:    map[string]any{},
		IsOffline:   true,
		LastSyncAgo: absentLastSyncAgo,
	}

	value, updatedAt, err := r.store.Get(keyStatus)
	if err != nil {
		if isAbsent(err) {
			return offline, nil
		}
		return models.StatusReport{}, fmt.Errorf("failed to read status: %w", err)
	}

	var snapshot map[string]any
	if err := json.Unmarshal(value, &snapshot); err != nil {
		r.logger.Warnf("stored status blob is not decodable: %v", err)
		return offline, nil
	}

	elapsed := r.now().Sub(updatedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	report := models.StatusReport{
		Snapshot:    snapshot,
		IsOffline:   elapsed > offlineThreshold,
		LastSyncAgo: int64(elapsed.Seconds()),
	}
	if elapsed > staleSanityCeiling {
		// An implausible gap means the snapshot's timestamp cannot be
		// trusted, not that the bot has been gone for days.
		report.IsOffline = false
		report.LastSyncAgo = 0
	}
	return report, nil
}

// SaveStatus persists a status snapshot. This is the bot process's half of
// the contract; the control process only reads.
func (r *Repository) SaveStatus(snapshot map[string]any) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	if err := r.store.Set(keyStatus, data); err != nil {
		return fmt.Errorf("failed to persist status: %w", err)
	}
	return nil
}
