package postgres

import (
	"fmt"
	"net/url"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/strandhq/strand/common/config"
	"github.com/strandhq/strand/common/persistence/sql"
)

// PluginName is the name registered for the postgres backend.
const PluginName = "postgres"

type plugin struct{}

func init() {
	sql.RegisterPlugin(&plugin{})
}

func (p *plugin) Name() string {
	return PluginName
}

func (p *plugin) Connect(cfg *config.SQL) (*sqlx.DB, error) {
	dsn := url.URL{
		Scheme: "postgres",
		Host:   cfg.ConnectAddr,
		Path:   cfg.DatabaseName,
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			dsn.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			dsn.User = url.User(cfg.User)
		}
	}

	query := url.Values{}
	for k, v := range cfg.ConnectAttributes {
		query.Set(k, v)
	}
	dsn.RawQuery = query.Encode()

	db, err := sqlx.Connect("pgx", dsn.String())
	if err != nil {
		return nil, fmt.Errorf("unable to connect to postgres at %v: %w", cfg.ConnectAddr, err)
	}
	return db, nil
}
