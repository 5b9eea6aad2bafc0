package strand

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/strandhq/strand/common/config"
)

const serverStartTimeout = time.Minute

// Server is one strand process hosting the frontend, matching and history
// services over a shared datastore.
type Server struct {
	app *fx.App
}

// NewServer validates the config and assembles the server. Nothing runs
// until Start.
func NewServer(cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app := fx.New(
		fx.Supply(cfg),
		Module,
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return &Server{app: app}, nil
}

// Start boots all services. It returns once the API server is accepting
// requests.
func (s *Server) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), serverStartTimeout)
	defer cancel()
	return s.app.Start(ctx)
}

// Stop shuts the services down in reverse start order.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.app.StopTimeout())
	defer cancel()
	return s.app.Stop(ctx)
}
