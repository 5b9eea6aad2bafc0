package sqlite

import (
	"net/url"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/strandhq/strand/common/config"
	"github.com/strandhq/strand/common/persistence/sql"
)

// PluginName is the name registered for the sqlite backend.
const PluginName = "sqlite"

type plugin struct{}

func init() {
	sql.RegisterPlugin(&plugin{})
}

func (p *plugin) Name() string {
	return PluginName
}

func (p *plugin) Connect(cfg *config.SQL) (*sqlx.DB, error) {
	dsn := cfg.DatabaseName

	attrs := url.Values{}
	// A generous busy timeout avoids SQLITE_BUSY under concurrent writers.
	attrs.Set("_busy_timeout", "10000")
	attrs.Set("_journal_mode", "WAL")
	for k, v := range cfg.ConnectAttributes {
		attrs.Set(k, v)
	}

	if dsn == "" || dsn == ":memory:" {
		// A shared cache keeps every connection on the same in-memory db.
		dsn = "file::memory:?cache=shared"
		attrs.Set("_journal_mode", "MEMORY")
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return sqlx.Connect("sqlite3", dsn+sep+attrs.Encode())
}
