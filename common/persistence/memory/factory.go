package memory

import (
	"github.com/strandhq/strand/common/persistence"
)

// Factory vends in-memory stores sharing one dataset. Intended for tests and
// single-process development setups.
type Factory struct {
	db *db
}

var _ persistence.DataStoreFactory = (*Factory)(nil)

// NewFactory returns an in-memory datastore factory.
func NewFactory() *Factory {
	return &Factory{db: newDB()}
}

func (f *Factory) NewShardStore() (persistence.ShardStore, error) {
	return newShardStore(f.db), nil
}

func (f *Factory) NewExecutionStore() (persistence.ExecutionStore, error) {
	return newExecutionStore(f.db), nil
}

func (f *Factory) NewTaskStore() (persistence.TaskStore, error) {
	return newTaskStore(f.db), nil
}

func (f *Factory) NewMetadataStore() (persistence.MetadataStore, error) {
	return newMetadataStore(f.db), nil
}

func (f *Factory) Close() {}
