package config

import (
	"time"

	"github.com/strandhq/strand/common/dynamicconfig"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/metrics"
)

type (
	// Config contains the configuration for the server.
	Config struct {
		// Log is the logging config
		Log log.Config `yaml:"log"`
		// Metrics is the metrics subsystem config
		Metrics *metrics.Config `yaml:"metrics"`
		// Persistence holds the datastore configuration
		Persistence Persistence `yaml:"persistence"`
		// Server holds the process-level config
		Server Server `yaml:"server"`
		// DynamicConfigClient is the config for the file based dynamic
		// config client. When nil, defaults apply for every key.
		DynamicConfigClient *dynamicconfig.FileBasedClientConfig `yaml:"dynamicConfigClient"`
	}

	// Server holds process-level configuration.
	Server struct {
		// ListenAddress is the address the frontend HTTP API binds to
		ListenAddress string `yaml:"listenAddress"`
		// HostIdentity identifies this host in shard ownership records.
		// Defaults to ListenAddress when empty.
		HostIdentity string `yaml:"hostIdentity"`
	}

	// Persistence contains the configuration for data stores.
	Persistence struct {
		// DefaultStore is the name of the datastore to use
		DefaultStore string `yaml:"defaultStore"`
		// NumHistoryShards is the static shard count. Fixed at first boot;
		// later boots refuse a different value.
		NumHistoryShards int32 `yaml:"numHistoryShards"`
		// DataStores named datastore configurations
		DataStores map[string]DataStore `yaml:"datastores"`
	}

	// DataStore is the configuration for a single datastore. Exactly one
	// member must be set.
	DataStore struct {
		// Memory configures the in-memory store, for development and tests
		Memory *Memory `yaml:"memory"`
		// SQL configures a SQL based datastore
		SQL *SQL `yaml:"sql"`
	}

	// Memory is the configuration for the in-memory store.
	Memory struct{}

	// SQL is the configuration for connecting to a SQL backed datastore.
	SQL struct {
		// PluginName is the name of SQL plugin, "sqlite" or "postgres"
		PluginName string `yaml:"pluginName"`
		// DatabaseName is the name of SQL database to connect to
		DatabaseName string `yaml:"databaseName"`
		// ConnectAddr is the remote addr of the database
		ConnectAddr string `yaml:"connectAddr"`
		// User is the username to be used for the conn
		User string `yaml:"user"`
		// Password is the password corresponding to the user name
		Password string `yaml:"password"`
		// ConnectAttributes is a set of key-value attributes appended to the
		// connection string
		ConnectAttributes map[string]string `yaml:"connectAttributes"`
		// MaxConns the max number of connections to this datastore
		MaxConns int `yaml:"maxConns"`
		// MaxIdleConns is the max number of idle connections
		MaxIdleConns int `yaml:"maxIdleConns"`
		// MaxConnLifetime is the maximum time a connection can be alive
		MaxConnLifetime time.Duration `yaml:"maxConnLifetime"`
	}
)
