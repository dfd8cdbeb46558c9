package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bloomd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9999
udp_port: 9998
data_dir: /tmp/bloomd-test
initial_capacity: 5000
default_probability: 0.001
flush_interval: 30
cold_interval: 0
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Port)
	require.Equal(t, 5000, cfg.InitialCapacity)
	require.Equal(t, 0, cfg.ColdIntervalSeconds)
	require.Equal(t, int64(0), int64(cfg.ColdInterval()))
}

func TestValidateRejectsOutOfRangeProbability(t *testing.T) {
	cfg := Defaults()
	cfg.DefaultProbability = 1.5
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsCapacityBelowMinimum(t *testing.T) {
	cfg := Defaults()
	cfg.InitialCapacity = 10
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingDataDir(t *testing.T) {
	cfg := Defaults()
	cfg.DataDir = ""
	require.Error(t, cfg.Validate())
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
