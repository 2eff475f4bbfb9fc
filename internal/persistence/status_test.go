package persistence

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStatusAgedBy(t *testing.T, repo *Repository, age time.Duration) {
	t.Helper()
	require.NoError(t, repo.SaveStatus(map[string]any{
		"bot_status":  "RUNNING",
		"active_mode": "REAL",
	}))
	mem := repo.store.(interface{ SetUpdatedAt(string, time.Time) })
	mem.SetUpdatedAt("status", time.Now().Add(-age))
}

func TestStatusFreshIsOnline(t *testing.T) {
	repo, _ := newTestRepo()
	writeStatusAgedBy(t, repo, 30*time.Second)

	report, err := repo.Status()
	require.NoError(t, err)
	assert.False(t, report.IsOffline)
	assert.InDelta(t, 30, report.LastSyncAgo, 2)
	assert.Equal(t, "RUNNING", report.Snapshot["bot_status"])
}

func TestStatusStaleIsOffline(t *testing.T) {
	repo, _ := newTestRepo()
	writeStatusAgedBy(t, repo, 90*time.Second)

	report, err := repo.Status()
	require.NoError(t, err)
	assert.True(t, report.IsOffline)
	assert.InDelta(t, 90, report.LastSyncAgo, 2)
}

func TestStatusImplausibleGapClampsToZero(t *testing.T) {
	repo, _ := newTestRepo()
	writeStatusAgedBy(t, repo, 100000*time.Second)

	report, err := repo.Status()
	require.NoError(t, err)
	// A gap beyond the sanity ceiling is a clock artifact, not staleness.
	assert.Equal(t, int64(0), report.LastSyncAgo)
	assert.False(t, report.IsOffline)
}

func TestStatusAbsentReportsSentinel(t *testing.T) {
	repo, _ := newTestRepo()

	report, err := repo.Status()
	require.NoError(t, err)
	assert.True(t, report.IsOffline)
	assert.Equal(t, int64(absentLastSyncAgo), report.LastSyncAgo)
	assert.Empty(t, report.Snapshot)
}

func TestStatusUndecodableTreatedAsAbsent(t *testing.T) {
	repo, mem := newTestRepo()
	require.NoError(t, mem.Set("status", []byte("{broken")))

	report, err := repo.Status()
	require.NoError(t, err)
	assert.True(t, report.IsOffline)
	assert.Equal(t, int64(absentLastSyncAgo), report.LastSyncAgo)
}

func TestStatusStoreFailureSurfaces(t *testing.T) {
	repo, mem := newTestRepo()
	mem.FailReads = errors.New("disk on fire")

	_, err := repo.Status()
	assert.Error(t, err, "an unreachable store is a real error, not a default")
}
