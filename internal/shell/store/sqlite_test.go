package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/orbit-raas/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func deployedRecord() domain.DeploymentRecord {
	rec := domain.NewDeploymentRecord()
	rec.State = domain.StateDeployed
	rec.Deployed = true
	rec.Logs = []string{"Successfully pulled avail-nitro-node Docker image", "Successfully cloned required repositories"}
	rec.ContainerIDs = []string{"c1", "c2"}
	rec.Metadata = &domain.RollupMetadata{
		Name:             "Avail Orbit Rollup",
		ChainID:          412346,
		AvailAppID:       "7",
		ParentChainRPC:   "https://sepolia-rollup.arbitrum.io/rpc",
		LocalRPCEndpoint: "http://localhost:8449",
		ExplorerURL:      "http://localhost:4000",
	}
	rec.UpdatedAt = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return rec
}

// =============================================================================
// Record Tests
// =============================================================================

func TestLoadRecord_Empty(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.LoadRecord(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRecord_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rec := deployedRecord()
	require.NoError(t, s.SaveRecord(ctx, rec))

	got, err := s.LoadRecord(ctx)
	require.NoError(t, err)
	assert.True(t, got.Deployed)
	assert.Equal(t, domain.StateDeployed, got.State)
	assert.Equal(t, rec.Logs, got.Logs)
	assert.Equal(t, rec.ContainerIDs, got.ContainerIDs)
	assert.Equal(t, *rec.Metadata, *got.Metadata)
	assert.True(t, rec.UpdatedAt.Equal(got.UpdatedAt))
}

func TestSaveRecord_Overwrites(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRecord(ctx, deployedRecord()))

	rec := deployedRecord()
	rec.AppendLog("Rollup restarted")
	rec.Metadata.Name = "renamed"
	rec.ContainerIDs = nil
	require.NoError(t, s.SaveRecord(ctx, rec))

	got, err := s.LoadRecord(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Logs, 3)
	assert.Equal(t, "renamed", got.Metadata.Name)
	assert.Empty(t, got.ContainerIDs)

	var count int
	require.NoError(t, s.db.Get(&count, "SELECT COUNT(*) FROM deployment_records"))
	assert.Equal(t, 1, count)
}

func TestSaveRecord_WithoutMetadata(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rec := domain.NewDeploymentRecord()
	rec.State = domain.StateDeployFailed
	rec.LastError = "Deploy pull_image: boom"
	rec.Logs = nil
	require.NoError(t, s.SaveRecord(ctx, rec))

	got, err := s.LoadRecord(ctx)
	require.NoError(t, err)
	assert.False(t, got.Deployed)
	assert.Nil(t, got.Metadata)
	assert.NotNil(t, got.Logs)
	assert.Equal(t, "Deploy pull_image: boom", got.LastError)
}

func TestSQLiteStore_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orbit.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveRecord(context.Background(), deployedRecord()))
	require.NoError(t, s.Close())

	// Reopen runs migrations again without error
	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.LoadRecord(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, got.ContainerIDs)
}

// =============================================================================
// Job Run Tests
// =============================================================================

func TestJobRuns(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateJobRun(ctx, &domain.JobRun{
			ID:         fmt.Sprintf("call_%d", i),
			JobID:      domain.JobRestartRollup,
			JobName:    domain.JobRestartRollup.Name(),
			Result:     "Rollup successfully restarted",
			Succeeded:  true,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
		}))
	}

	runs, err := s.ListJobRuns(ctx, ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "call_2", runs[0].ID)
	assert.Equal(t, "call_1", runs[1].ID)
	assert.Equal(t, domain.JobRestartRollup, runs[0].JobID)
	assert.True(t, runs[0].Succeeded)
	assert.Equal(t, time.Second, runs[0].Duration())
}

func TestCreateJobRun_Duplicate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	run := &domain.JobRun{ID: "call_1", JobID: domain.JobUpdateBridge, JobName: "update_bridge", StartedAt: time.Now(), FinishedAt: time.Now()}
	require.NoError(t, s.CreateJobRun(ctx, run))

	err := s.CreateJobRun(ctx, run)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestListOptions_Normalize(t *testing.T) {
	assert.Equal(t, ListOptions{Limit: 100}, ListOptions{}.Normalize())
	assert.Equal(t, ListOptions{Limit: 1000, Offset: 0}, ListOptions{Limit: 5000, Offset: -3}.Normalize())
	assert.Equal(t, DefaultListOptions(), ListOptions{Limit: 100}.Normalize())
}
