package client

import (
	"fmt"

	"github.com/strandhq/strand/common"
	"github.com/strandhq/strand/common/config"
	"github.com/strandhq/strand/common/dynamicconfig"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/metrics"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/persistence/memory"
	"github.com/strandhq/strand/common/persistence/sql"
	"github.com/strandhq/strand/common/quotas"
)

const defaultPersistenceMaxQPS = 3000

type (
	// Factory vends fully wrapped persistence stores: rate limiting, retries,
	// circuit breaking and metrics around the configured datastore.
	Factory interface {
		NewShardStore() (persistence.ShardStore, error)
		NewExecutionStore() (persistence.ExecutionStore, error)
		NewTaskStore() (persistence.TaskStore, error)
		NewMetadataStore() (persistence.MetadataStore, error)
		Close()
	}

	factoryImpl struct {
		dataStoreFactory persistence.DataStoreFactory
		limiter          quotas.RateLimiter
		metricsHandler   metrics.Handler
		logger           log.Logger
	}
)

// NewFactory builds a datastore factory from the persistence config and wraps
// every store it vends. Wrap order, outermost first: retry, rate limit,
// circuit breaker, metrics, store.
func NewFactory(
	cfg *config.Persistence,
	dc *dynamicconfig.Collection,
	metricsHandler metrics.Handler,
	logger log.Logger,
) (Factory, error) {
	dataStoreFactory, err := DataStoreFactoryFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}

	maxQPS := dc.GetIntProperty(dynamicconfig.PersistenceMaxQPS, defaultPersistenceMaxQPS)()
	return &factoryImpl{
		dataStoreFactory: dataStoreFactory,
		limiter:          quotas.NewRateLimiter(float64(maxQPS), maxQPS),
		metricsHandler:   metricsHandler,
		logger:           logger,
	}, nil
}

// DataStoreFactoryFromConfig resolves the default datastore from config into
// a concrete factory.
func DataStoreFactoryFromConfig(cfg *config.Persistence, logger log.Logger) (persistence.DataStoreFactory, error) {
	store, ok := cfg.DataStores[cfg.DefaultStore]
	if !ok {
		return nil, fmt.Errorf("persistence datastore %q is not defined", cfg.DefaultStore)
	}
	switch {
	case store.Memory != nil:
		return memory.NewFactory(), nil
	case store.SQL != nil:
		return sql.NewFactory(store.SQL, logger)
	default:
		return nil, fmt.Errorf("persistence datastore %q has no backing configured", cfg.DefaultStore)
	}
}

func (f *factoryImpl) NewShardStore() (persistence.ShardStore, error) {
	store, err := f.dataStoreFactory.NewShardStore()
	if err != nil {
		return nil, err
	}
	store = NewShardMetricsClient(store, f.metricsHandler)
	store = NewShardCircuitBreakerClient(store, f.metricsHandler)
	store = NewShardRateLimitedClient(store, f.limiter)
	store = NewShardRetryableClient(store, common.CreatePersistenceClientRetryPolicy())
	return store, nil
}

func (f *factoryImpl) NewExecutionStore() (persistence.ExecutionStore, error) {
	store, err := f.dataStoreFactory.NewExecutionStore()
	if err != nil {
		return nil, err
	}
	store = NewExecutionMetricsClient(store, f.metricsHandler)
	store = NewExecutionCircuitBreakerClient(store, f.metricsHandler)
	store = NewExecutionRateLimitedClient(store, f.limiter)
	store = NewExecutionRetryableClient(store, common.CreatePersistenceClientRetryPolicy())
	return store, nil
}

func (f *factoryImpl) NewTaskStore() (persistence.TaskStore, error) {
	store, err := f.dataStoreFactory.NewTaskStore()
	if err != nil {
		return nil, err
	}
	store = NewTaskMetricsClient(store, f.metricsHandler)
	store = NewTaskCircuitBreakerClient(store, f.metricsHandler)
	store = NewTaskRateLimitedClient(store, f.limiter)
	store = NewTaskRetryableClient(store, common.CreatePersistenceClientRetryPolicy())
	return store, nil
}

func (f *factoryImpl) NewMetadataStore() (persistence.MetadataStore, error) {
	store, err := f.dataStoreFactory.NewMetadataStore()
	if err != nil {
		return nil, err
	}
	store = NewMetadataMetricsClient(store, f.metricsHandler)
	store = NewMetadataCircuitBreakerClient(store, f.metricsHandler)
	store = NewMetadataRateLimitedClient(store, f.limiter)
	store = NewMetadataRetryableClient(store, common.CreatePersistenceClientRetryPolicy())
	return store, nil
}

func (f *factoryImpl) Close() {
	f.dataStoreFactory.Close()
}
