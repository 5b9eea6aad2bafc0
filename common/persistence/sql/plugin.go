package sql

import (
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/strandhq/strand/common/config"
)

type (
	// Plugin is implemented once per supported SQL driver and registered at
	// init time by importing the plugin package.
	Plugin interface {
		Name() string
		Connect(cfg *config.SQL) (*sqlx.DB, error)
	}
)

var (
	pluginsMu sync.Mutex
	plugins   = make(map[string]Plugin)
)

// RegisterPlugin registers a SQL plugin by name. Duplicate registration
// panics, matching database/sql driver registration.
func RegisterPlugin(plugin Plugin) {
	pluginsMu.Lock()
	defer pluginsMu.Unlock()

	name := plugin.Name()
	if _, ok := plugins[name]; ok {
		panic(fmt.Sprintf("sql plugin %q already registered", name))
	}
	plugins[name] = plugin
}

// Connect opens a database handle using the plugin named in the config.
func Connect(cfg *config.SQL) (*sqlx.DB, error) {
	pluginsMu.Lock()
	plugin, ok := plugins[cfg.PluginName]
	pluginsMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown sql plugin %q", cfg.PluginName)
	}

	db, err := plugin.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}
	return db, nil
}
