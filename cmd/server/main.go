package main

import (
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/strandhq/strand/common/config"
	_ "github.com/strandhq/strand/common/persistence/sql/postgres"
	_ "github.com/strandhq/strand/common/persistence/sql/sqlite"
	"github.com/strandhq/strand/strand"
)

func main() {
	if err := buildCLI().Run(os.Args); err != nil {
		stdlog.Fatal(err)
	}
}

func buildCLI() *cli.App {
	return &cli.App{
		Name:  "strand",
		Usage: "strand workflow engine server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Value:   ".",
				Usage:   "root directory of execution environment",
				EnvVars: []string{config.EnvKeyRoot},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config",
				Usage:   "config dir path relative to root",
				EnvVars: []string{config.EnvKeyConfigDir},
			},
			&cli.StringFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Value:   "development",
				Usage:   "runtime environment",
				EnvVars: []string{config.EnvKeyEnvironment},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "start",
				Usage:  "start the server",
				Action: start,
			},
		},
	}
}

func start(c *cli.Context) error {
	env := c.String("env")
	configDir := filepath.Join(c.String("root"), c.String("config"))

	cfg, err := config.LoadConfig(env, configDir)
	if err != nil {
		return cli.Exit(fmt.Sprintf("unable to load config: %v", err), 1)
	}

	server, err := strand.NewServer(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("unable to assemble server: %v", err), 1)
	}
	if err := server.Start(); err != nil {
		return cli.Exit(fmt.Sprintf("unable to start server: %v", err), 1)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	if err := server.Stop(); err != nil {
		return cli.Exit(fmt.Sprintf("shutdown failed: %v", err), 1)
	}
	return nil
}
