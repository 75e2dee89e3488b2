package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/orbit-raas/internal/core/domain"
	"github.com/artpar/orbit-raas/internal/shell/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	clearEnv(t)
	setOperatorEnv(t)
	t.Setenv("ORBIT_DOCKER_DRIVER", "cli")
	t.Setenv("ORBIT_DATABASE_DSN", filepath.Join(t.TempDir(), "data", "orbit.db"))

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	return cfg
}

func TestNewServer_InvalidConfig(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	_, err = NewServer(context.Background(), cfg, ServerOptions{}, testLogger())

	var sErr *ServerError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, ExitConfigError, sErr.ExitCode)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestNewServer_Fresh(t *testing.T) {
	cfg := validConfig(t)

	srv, err := NewServer(context.Background(), cfg, ServerOptions{NoDeploy: true}, testLogger())
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	assert.False(t, srv.context.Deployed())
	assert.Equal(t, cfg.Server.Address(), srv.statusServer.Addr)
	assert.Equal(t, cfg.Jobs.Address(), srv.jobsServer.Addr)
}

func TestNewServer_RestoresRecord(t *testing.T) {
	cfg := validConfig(t)

	// Seed the database the way a previous daemon run would have left it
	require.NoError(t, mkdirFor(cfg.Database.DSN))
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	require.NoError(t, err)
	rec := domain.NewDeploymentRecord()
	rec.AppendLog("Pulled docker image")
	rec.State = domain.StateDeployed
	rec.Deployed = true
	rec.Metadata = &domain.RollupMetadata{Name: "orbit", ChainID: 7}
	rec.SetContainerIDs([]string{"abc"})
	require.NoError(t, s.SaveRecord(context.Background(), rec))
	require.NoError(t, s.Close())

	srv, err := NewServer(context.Background(), cfg, ServerOptions{}, testLogger())
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	assert.True(t, srv.context.Deployed())
	snap := srv.context.Snapshot()
	assert.Equal(t, []string{"Pulled docker image"}, snap.Logs)
	assert.Equal(t, []string{"abc"}, snap.ContainerIDs)
}

func TestNewServer_BadDatabase(t *testing.T) {
	cfg := validConfig(t)
	// A directory cannot be opened as a database file
	cfg.Database.DSN = t.TempDir()

	_, err := NewServer(context.Background(), cfg, ServerOptions{}, testLogger())

	var sErr *ServerError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, ExitDatabaseError, sErr.ExitCode)
}

func TestDSNPath(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"./data/orbit.db", "./data/orbit.db"},
		{"file:/var/lib/orbit/orbit.db?cache=shared", "/var/lib/orbit/orbit.db"},
		{":memory:", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dsnPath(tt.dsn), tt.dsn)
	}
}

func TestExitCode(t *testing.T) {
	var logged []string
	logf := func(msg string, _ ...any) { logged = append(logged, msg) }

	err := &ServerError{Op: "Start", Err: errors.New("bind"), ExitCode: ExitHTTPServerError}
	assert.Equal(t, ExitHTTPServerError, exitCode(logf, "server error", err))
	assert.Equal(t, ExitConfigError, exitCode(logf, "server error", errors.New("other")))
	assert.Len(t, logged, 2)
}
