package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	pairtopology "github.com/octu0/pair-topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Node.BindAddr)
	assert.Equal(t, 7234, cfg.Node.BindPort)
	assert.True(t, cfg.Node.Paired)
	assert.Empty(t, cfg.Store.Path)

	b, err := cfg.ToBehaviour()
	require.NoError(t, err)
	assert.Equal(t, pairtopology.DeviceTypeEarbud, b.DeviceType)
	assert.True(t, b.SupportRoleSwap)
	assert.Equal(t, pairtopology.DefaultTimeouts(), b.Timeouts)
	assert.NotNil(t, b.AuthoriseRoleSwap)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
node:
  name: left
  bindPort: 7300
  join: 127.0.0.1:7301
behaviour:
  deviceType: standalone
  supportRoleSwap: false
timeouts:
  peerFindRole: 500ms
  stopCommand: 0s
store:
  path: /var/lib/pairtopology
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "left", cfg.Node.Name)
	assert.Equal(t, 7300, cfg.Node.BindPort)
	assert.Equal(t, "127.0.0.1:7301", cfg.Node.Join)
	assert.Equal(t, "/var/lib/pairtopology", cfg.Store.Path)

	b, err := cfg.ToBehaviour()
	require.NoError(t, err)
	assert.Equal(t, pairtopology.DeviceTypeStandalone, b.DeviceType)
	assert.False(t, b.SupportRoleSwap)
	assert.Equal(t, 500*time.Millisecond, b.Timeouts.PeerFindRole)
	assert.Equal(t, time.Duration(0), b.Timeouts.StopCommand)
	assert.Equal(t, pairtopology.DefaultMaxHandoverWindow, b.Timeouts.MaxHandoverWindow)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("PAIRTOPOLOGY_NODE_JOIN", "10.0.0.2:7234")
	t.Setenv("PAIRTOPOLOGY_TIMEOUTS_HANDOVERRETRY", "1s")

	cfg, err := Load(writeConfig(t, "node:\n  join: 127.0.0.1:7234\n"))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2:7234", cfg.Node.Join)
	assert.Equal(t, time.Second, cfg.Timeouts.HandoverRetry)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(tt *testing.T) {
		_, err := Load(filepath.Join(tt.TempDir(), "nope.yaml"))
		assert.Error(tt, err)
	})
	t.Run("unknown device type", func(tt *testing.T) {
		cfg, err := Load(writeConfig(tt, "behaviour:\n  deviceType: headset\n"))
		require.NoError(tt, err)

		_, err = cfg.ToBehaviour()
		assert.ErrorIs(tt, err, ErrUnknownDeviceType)
	})
}
