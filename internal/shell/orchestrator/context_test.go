package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/orbit-raas/internal/core/domain"
)

func TestContext_InitialRecord(t *testing.T) {
	c := NewContext(testCredentials(), nil, nil)

	snap := c.Snapshot()
	assert.False(t, snap.Deployed)
	assert.Equal(t, domain.StateUndeployed, snap.State)
	assert.Empty(t, snap.Logs)
	assert.Nil(t, snap.Metadata)
}

func TestContext_SnapshotIsIsolated(t *testing.T) {
	c := NewContext(testCredentials(), nil, nil)
	c.AppendLog(context.Background(), "one")

	snap := c.Snapshot()
	snap.Logs[0] = "mutated"
	logs := c.Logs()
	logs[0] = "mutated"

	assert.Equal(t, []string{"one"}, c.Logs())
}

func TestContext_RestoreInterruptedDeploy(t *testing.T) {
	c := NewContext(testCredentials(), nil, nil)

	rec := domain.NewDeploymentRecord()
	rec.State = domain.StateDeploying
	rec.Logs = []string{"Successfully pulled avail-nitro-node Docker image"}
	c.Restore(rec)

	snap := c.Snapshot()
	assert.Equal(t, domain.StateDeployFailed, snap.State)
	assert.NotEmpty(t, snap.LastError)
	assert.Equal(t, rec.Logs, snap.Logs)
}

func TestContext_RestoreDeployedWithoutMetadata(t *testing.T) {
	c := NewContext(testCredentials(), nil, nil)

	rec := domain.NewDeploymentRecord()
	rec.State = domain.StateDeployed
	rec.Deployed = true
	c.Restore(rec)

	assert.False(t, c.Deployed())
}

func TestContext_ObserverSeesCommits(t *testing.T) {
	sink := &fakeSink{}
	c := NewContext(testCredentials(), sink, nil)

	var seen []int
	c.Observe(func(r domain.DeploymentRecord) {
		seen = append(seen, len(r.Logs))
	})

	c.AppendLog(context.Background(), "one")
	c.AppendLog(context.Background(), "two")

	assert.Equal(t, []int{1, 2}, seen)
	require.Len(t, sink.saved, 2)
	assert.Equal(t, []string{"one", "two"}, sink.last().Logs)
}

func TestContext_FailedUpdateLeavesRecord(t *testing.T) {
	c := NewContext(testCredentials(), nil, nil)
	before := c.Snapshot()

	err := c.update(context.Background(), func(r *domain.DeploymentRecord) error {
		r.AppendLog("partial")
		return domain.ErrNotDeployed
	})
	assert.ErrorIs(t, err, domain.ErrNotDeployed)
	assert.Equal(t, before, c.Snapshot())
}

func TestContext_DeployGuard(t *testing.T) {
	c := NewContext(testCredentials(), nil, nil)

	require.NoError(t, c.beginDeploy())
	assert.ErrorIs(t, c.beginDeploy(), domain.ErrDeployInProgress)
	c.endDeploy()
	assert.NoError(t, c.beginDeploy())
}

func TestContext_Credentials(t *testing.T) {
	c := NewContext(testCredentials(), nil, nil)
	assert.Equal(t, testCredentials(), c.Credentials())
}
