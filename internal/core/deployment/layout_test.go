package deployment

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Layout Tests
// =============================================================================

func TestNewLayout_DefaultRoot(t *testing.T) {
	l := NewLayout("")
	assert.Equal(t, "orbit-deployment", l.Root)
}

func TestLayout_Paths(t *testing.T) {
	l := NewLayout("/srv/orbit")

	assert.Equal(t, "/srv/orbit/arbitrum-orbit-sdk", l.OrbitSDKDir())
	assert.Equal(t, "/srv/orbit/orbit-setup-script", l.SetupScriptDir())
	assert.Equal(t, "/srv/orbit/arbitrum-orbit-sdk/examples/create-avail-rollup-eth", l.RollupDir())
	assert.Equal(t, "/srv/orbit/arbitrum-orbit-sdk/examples/create-avail-rollup-eth/.env", l.EnvFile())
	assert.Equal(t, "/srv/orbit/orbit-setup-script/config", l.SetupConfigDir())
}

func TestLayout_GeneratedArtifacts(t *testing.T) {
	l := NewLayout("/srv/orbit")

	artifacts := l.GeneratedArtifacts()
	assert.Len(t, artifacts, 2)
	assert.Equal(t, NodeConfigFile, filepath.Base(artifacts[0]))
	assert.Equal(t, SetupScriptConfigFile, filepath.Base(artifacts[1]))
	for _, a := range artifacts {
		assert.Equal(t, l.RollupDir(), filepath.Dir(a))
	}
}
