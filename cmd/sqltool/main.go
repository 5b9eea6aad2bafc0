package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/strandhq/strand/common/config"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/persistence/sql"
	_ "github.com/strandhq/strand/common/persistence/sql/postgres"
	_ "github.com/strandhq/strand/common/persistence/sql/sqlite"
)

func main() {
	if err := buildCLI().Run(os.Args); err != nil {
		stdlog.Fatal(err)
	}
}

func buildCLI() *cli.App {
	return &cli.App{
		Name:  "strand-sql-tool",
		Usage: "manage the SQL schema used by the strand server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "plugin",
				Value:   "sqlite",
				Usage:   "SQL plugin name, sqlite or postgres",
				EnvVars: []string{"SQL_PLUGIN"},
			},
			&cli.StringFlag{
				Name:    "endpoint",
				Aliases: []string{"ep"},
				Usage:   "host:port of the SQL server",
				EnvVars: []string{"SQL_HOST"},
			},
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"db"},
				Value:   "strand",
				Usage:   "name of the database, or the file path for sqlite",
				EnvVars: []string{"SQL_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "user name used to connect",
				EnvVars: []string{"SQL_USER"},
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"pw"},
				Usage:   "password used to connect",
				EnvVars: []string{"SQL_PASSWORD"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "setup-schema",
				Usage: "apply the versioned schema scripts to an empty database",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "schema-dir",
						Aliases:  []string{"d"},
						Usage:    "directory holding the versioned schema scripts",
						Required: true,
					},
				},
				Action: setupSchema,
			},
		},
	}
}

func setupSchema(c *cli.Context) error {
	cfg := &config.SQL{
		PluginName:   c.String("plugin"),
		ConnectAddr:  c.String("endpoint"),
		DatabaseName: c.String("database"),
		User:         c.String("user"),
		Password:     c.String("password"),
	}

	db, err := sql.Connect(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("unable to connect to database: %v", err), 1)
	}
	defer db.Close()

	logger := log.NewZapLogger(log.BuildZapLogger(log.Config{
		Stdout: true,
		Level:  "info",
		Format: "console",
	}))
	if err := sql.SetupSchema(context.Background(), db, c.String("schema-dir"), logger); err != nil {
		return cli.Exit(fmt.Sprintf("schema setup failed: %v", err), 1)
	}
	return nil
}
