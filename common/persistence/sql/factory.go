package sql

import (
	"github.com/jmoiron/sqlx"

	"github.com/strandhq/strand/common/config"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/log/tag"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/persistence/serialization"
)

// Factory vends SQL backed stores sharing one connection pool.
type Factory struct {
	cfg        *config.SQL
	db         *sqlx.DB
	serializer serialization.Serializer
	logger     log.Logger
}

var _ persistence.DataStoreFactory = (*Factory)(nil)

// NewFactory connects to the configured SQL backend and returns a datastore
// factory over it.
func NewFactory(cfg *config.SQL, logger log.Logger) (*Factory, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	return &Factory{
		cfg:        cfg,
		db:         db,
		serializer: serialization.NewSerializer(),
		logger:     logger,
	}, nil
}

func (f *Factory) NewShardStore() (persistence.ShardStore, error) {
	return newShardStore(f.db), nil
}

func (f *Factory) NewExecutionStore() (persistence.ExecutionStore, error) {
	return newExecutionStore(f.db, f.serializer), nil
}

func (f *Factory) NewTaskStore() (persistence.TaskStore, error) {
	return newTaskStore(f.db), nil
}

func (f *Factory) NewMetadataStore() (persistence.MetadataStore, error) {
	return newMetadataStore(f.db), nil
}

// DB exposes the underlying handle for schema setup.
func (f *Factory) DB() *sqlx.DB {
	return f.db
}

func (f *Factory) Close() {
	if err := f.db.Close(); err != nil {
		f.logger.Warn("failed to close sql connection pool", tag.Error(err))
	}
}
