package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	return flags
}

func TestLoadDefaultsOnly(t *testing.T) {
	flags := newFlags()
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load(flags)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFlagsOverrideDefaults(t *testing.T) {
	flags := newFlags()
	require.NoError(t, flags.Parse([]string{"--node-id=ns-2", "--cache-size-kb=128"}))

	cfg, err := Load(flags)
	require.NoError(t, err)
	assert.Equal(t, "ns-2", cfg.NodeID)
	assert.Equal(t, 128, cfg.CacheSizeKB)
}

func TestLoadYAMLFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fdbus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node_id: from-yaml\ndata_dir: /tmp/fdbus-data\n"), 0o644))

	flags := newFlags()
	require.NoError(t, flags.Parse([]string{"--config=" + path}))

	cfg, err := Load(flags)
	require.NoError(t, err)
	assert.Equal(t, "from-yaml", cfg.NodeID)
	assert.Equal(t, "/tmp/fdbus-data", cfg.DataDir)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fdbus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node_id: from-yaml\n"), 0o644))

	t.Setenv("FDBUS_NODE_ID", "from-env")

	flags := newFlags()
	require.NoError(t, flags.Parse([]string{"--config=" + path}))

	cfg, err := Load(flags)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.NodeID)
}

func TestLoadFlagOverridesEnv(t *testing.T) {
	t.Setenv("FDBUS_NODE_ID", "from-env")

	flags := newFlags()
	require.NoError(t, flags.Parse([]string{"--node-id=from-flag"}))

	cfg, err := Load(flags)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.NodeID)
}

func TestLoadPeersFromEnvCSV(t *testing.T) {
	t.Setenv("FDBUS_PEERS", "a@host1:7000, b@host2:7000")

	flags := newFlags()
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load(flags)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@host1:7000", "b@host2:7000"}, cfg.Peers)
}
