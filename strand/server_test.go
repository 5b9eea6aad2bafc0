package strand

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/common/config"
	"github.com/strandhq/strand/common/log"
)

func memoryServerConfig() *config.Config {
	return &config.Config{
		Log: log.Config{Level: "error"},
		Persistence: config.Persistence{
			DefaultStore:     "memory",
			NumHistoryShards: 4,
			DataStores: map[string]config.DataStore{
				"memory": {Memory: &config.Memory{}},
			},
		},
		Server: config.Server{
			ListenAddress: "127.0.0.1:0",
		},
	}
}

func TestServerStartStop(t *testing.T) {
	server, err := NewServer(memoryServerConfig())
	require.NoError(t, err)

	require.NoError(t, server.Start())
	require.NoError(t, server.Stop())
}

func TestServerRejectsInvalidConfig(t *testing.T) {
	cfg := memoryServerConfig()
	cfg.Persistence.NumHistoryShards = 0
	_, err := NewServer(cfg)
	require.Error(t, err)

	cfg = memoryServerConfig()
	cfg.Server.ListenAddress = ""
	_, err = NewServer(cfg)
	require.Error(t, err)
}
