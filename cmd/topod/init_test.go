package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hyperkv/pkg/config"
)

func TestInitConfigMissingFile(t *testing.T) {
	cfg, err := initConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)
}

func TestInitConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topod.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http-server:
  port: 9090
zookeeper:
  config_path: /prod/hyperkv
  session_timeout: 3s
`), 0o600))

	cfg, err := initConfig(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "/prod/hyperkv", cfg.ZooKeeper.ConfigPath)
	require.Equal(t, 3*time.Second, cfg.ZooKeeper.SessionTimeout)
	require.Equal(t, config.Default().Store, cfg.Store)
	require.NoError(t, cfg.Validate())
}

func TestInitConfigEnvOverrides(t *testing.T) {
	t.Setenv("HYPERKV_ZK_SERVERS", "zk1:2181,zk2:2181")
	t.Setenv("HYPERKV_NODE_ADDR", "10.1.2.3:2012")

	cfg, err := initConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, []string{"zk1:2181", "zk2:2181"}, cfg.ZooKeeper.Servers)
	require.Equal(t, "10.1.2.3:2012", cfg.Node.Addr)
}

func TestInitConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topod.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http-server: ["), 0o600))

	_, err := initConfig(path)
	require.Error(t, err)
}
