package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const baseConfig = `
log:
  stdout: true
  level: info
server:
  listenAddress: 127.0.0.1:7233
persistence:
  defaultStore: default
  numHistoryShards: 4
  datastores:
    default:
      memory: {}
`

const devConfig = `
log:
  level: debug
persistence:
  numHistoryShards: 8
`

func writeConfigDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestLoadBaseOnly(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{"base.yaml": baseConfig})

	cfg, err := LoadConfig("development", dir)
	require.NoError(t, err)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, int32(4), cfg.Persistence.NumHistoryShards)
	require.NotNil(t, cfg.Persistence.DataStores["default"].Memory)
}

func TestLoadEnvOverridesBase(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{
		"base.yaml":        baseConfig,
		"development.yaml": devConfig,
	})

	cfg, err := LoadConfig("development", dir)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, int32(8), cfg.Persistence.NumHistoryShards)
	require.Equal(t, "127.0.0.1:7233", cfg.Server.ListenAddress)
}

func TestLoadNoFiles(t *testing.T) {
	_, err := LoadConfig("development", t.TempDir())
	require.Error(t, err)
}

func TestValidateRejectsMissingDefaultStore(t *testing.T) {
	cfg := &Config{
		Server: Server{ListenAddress: "127.0.0.1:7233"},
		Persistence: Persistence{
			DefaultStore:     "default",
			NumHistoryShards: 4,
		},
	}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsAmbiguousDataStore(t *testing.T) {
	cfg := &Config{
		Server: Server{ListenAddress: "127.0.0.1:7233"},
		Persistence: Persistence{
			DefaultStore:     "default",
			NumHistoryShards: 4,
			DataStores: map[string]DataStore{
				"default": {
					Memory: &Memory{},
					SQL:    &SQL{PluginName: "sqlite", MaxConnLifetime: time.Hour},
				},
			},
		},
	}
	require.Error(t, cfg.Validate())
}
