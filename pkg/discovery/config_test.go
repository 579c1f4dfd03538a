package discovery_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdbrowse/sdbrowse-go/pkg/discovery"
)

func TestDefaultScanConfig(t *testing.T) {
	config := discovery.DefaultScanConfig()

	assert.Equal(t, 3*time.Second, time.Duration(config.ResolveTimeout))
	assert.Equal(t, 2, config.ResolveRetries)
	assert.Contains(t, config.Presets, "dante")
	assert.Contains(t, config.Presets["dante"], "_netaudio-arc._udp")
}

func TestLoadScanConfigMissingFile(t *testing.T) {
	config, err := discovery.LoadScanConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, discovery.DefaultScanConfig(), config)
}

func TestLoadScanConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.yaml")
	data := `
interfaces: [eth0]
resolve_timeout: 5s
resolve_retries: 4
browse_interval: 30s
presets:
  lab:
    - _ssh._tcp
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	config, err := discovery.LoadScanConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"eth0"}, config.Interfaces)
	assert.Equal(t, 5*time.Second, time.Duration(config.ResolveTimeout))
	assert.Equal(t, 4, config.ResolveRetries)
	assert.Equal(t, []string{"_ssh._tcp"}, config.Presets["lab"])

	controller := config.ControllerConfig()
	assert.Equal(t, 5*time.Second, controller.ResolveTimeout)
	assert.Equal(t, 30*time.Second, controller.BrowseInterval)
}

func TestLoadScanConfigInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("resolve_timeout: fast\n"), 0o644))

	_, err := discovery.LoadScanConfig(path)
	assert.Error(t, err)
}

func TestScanConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.yaml")
	config := discovery.DefaultScanConfig()
	config.Interfaces = []string{"en0"}
	require.NoError(t, config.Save(path))

	loaded, err := discovery.LoadScanConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config, loaded)
}
