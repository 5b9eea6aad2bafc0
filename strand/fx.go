package strand

import (
	"context"

	"go.uber.org/fx"

	"github.com/strandhq/strand/common/clock"
	"github.com/strandhq/strand/common/config"
	"github.com/strandhq/strand/common/dynamicconfig"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/membership"
	"github.com/strandhq/strand/common/metrics"
	"github.com/strandhq/strand/common/namespace"
	"github.com/strandhq/strand/common/persistence"
	persistenceclient "github.com/strandhq/strand/common/persistence/client"
	"github.com/strandhq/strand/service/frontend"
	"github.com/strandhq/strand/service/history"
	"github.com/strandhq/strand/service/history/configs"
	"github.com/strandhq/strand/service/history/shard"
	"github.com/strandhq/strand/service/matching"
)

// Module assembles the whole server: persistence, the namespace registry,
// the matching and history engines, and the frontend API server, with
// lifecycle hooks ordering their startup and shutdown.
var Module = fx.Options(
	fx.Provide(
		provideTimeSource,
		provideLogger,
		provideDynamicConfigCollection,
		provideMetricsHandler,
		providePersistenceFactory,
		provideShardStore,
		provideExecutionStore,
		provideTaskStore,
		provideMetadataStore,
		provideMembershipResolver,
		provideNamespaceRegistry,
		provideMatchingEngine,
		provideHistoryConfig,
		provideShardController,
		provideHistoryEngine,
		provideFrontendConfig,
		provideWorkflowHandler,
		provideNamespaceHandler,
		provideAPIServer,
	),
	fx.Invoke(registerServices),
)

func provideTimeSource() clock.TimeSource {
	return clock.NewRealTimeSource()
}

func provideLogger(cfg *config.Config) log.Logger {
	return log.NewZapLogger(log.BuildZapLogger(cfg.Log))
}

func provideDynamicConfigCollection(
	lc fx.Lifecycle,
	cfg *config.Config,
	logger log.Logger,
) (*dynamicconfig.Collection, error) {
	if cfg.DynamicConfigClient == nil {
		return dynamicconfig.NewCollection(dynamicconfig.NewNoopClient(), logger), nil
	}
	doneCh := make(chan interface{})
	client, err := dynamicconfig.NewFileBasedClient(cfg.DynamicConfigClient, logger, doneCh)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			close(doneCh)
			return nil
		},
	})
	return dynamicconfig.NewCollection(client, logger), nil
}

func provideMetricsHandler(lc fx.Lifecycle, cfg *config.Config, logger log.Logger) metrics.Handler {
	handler, stop := metrics.NewMetricsHandlerFromConfig(cfg.Metrics, logger)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			stop()
			return nil
		},
	})
	return handler
}

func providePersistenceFactory(
	lc fx.Lifecycle,
	cfg *config.Config,
	dc *dynamicconfig.Collection,
	metricsHandler metrics.Handler,
	logger log.Logger,
) (persistenceclient.Factory, error) {
	factory, err := persistenceclient.NewFactory(&cfg.Persistence, dc, metricsHandler, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			factory.Close()
			return nil
		},
	})
	return factory, nil
}

func provideShardStore(factory persistenceclient.Factory) (persistence.ShardStore, error) {
	return factory.NewShardStore()
}

func provideExecutionStore(factory persistenceclient.Factory) (persistence.ExecutionStore, error) {
	return factory.NewExecutionStore()
}

func provideTaskStore(factory persistenceclient.Factory) (persistence.TaskStore, error) {
	return factory.NewTaskStore()
}

func provideMetadataStore(factory persistenceclient.Factory) (persistence.MetadataStore, error) {
	return factory.NewMetadataStore()
}

func provideMembershipResolver(cfg *config.Config) membership.ServiceResolver {
	return membership.NewStaticResolver(cfg.Server.HostIdentityOrDefault())
}

func provideNamespaceRegistry(
	metadataStore persistence.MetadataStore,
	dc *dynamicconfig.Collection,
	metricsHandler metrics.Handler,
	logger log.Logger,
) namespace.Registry {
	return namespace.NewRegistry(
		metadataStore,
		dc.GetDurationProperty(dynamicconfig.NamespaceRefreshInterval, namespace.DefaultRefreshInterval),
		metricsHandler,
		logger,
	)
}

func provideMatchingEngine(
	taskStore persistence.TaskStore,
	dc *dynamicconfig.Collection,
	timeSource clock.TimeSource,
	metricsHandler metrics.Handler,
	logger log.Logger,
) *matching.Engine {
	return matching.NewEngine(
		taskStore,
		matching.NewConfig(dc),
		timeSource,
		metricsHandler.WithTags(metrics.ServiceNameTag("matching")),
		logger,
	)
}

func provideHistoryConfig(cfg *config.Config, dc *dynamicconfig.Collection) *configs.Config {
	return configs.NewConfig(dc, cfg.Persistence.NumHistoryShards)
}

func provideShardController(
	historyConfig *configs.Config,
	shardStore persistence.ShardStore,
	executionStore persistence.ExecutionStore,
	resolver membership.ServiceResolver,
	timeSource clock.TimeSource,
	metricsHandler metrics.Handler,
	logger log.Logger,
) *shard.Controller {
	return shard.NewController(
		historyConfig,
		shardStore,
		executionStore,
		resolver,
		timeSource,
		metricsHandler.WithTags(metrics.ServiceNameTag("history")),
		logger,
	)
}

func provideHistoryEngine(
	historyConfig *configs.Config,
	controller *shard.Controller,
	executionStore persistence.ExecutionStore,
	matchingEngine *matching.Engine,
	timeSource clock.TimeSource,
	metricsHandler metrics.Handler,
	logger log.Logger,
) *history.Engine {
	return history.NewEngine(
		historyConfig,
		controller,
		executionStore,
		matchingEngine,
		timeSource,
		metricsHandler.WithTags(metrics.ServiceNameTag("history")),
		logger,
	)
}

func provideFrontendConfig(dc *dynamicconfig.Collection) *frontend.Config {
	return frontend.NewConfig(dc)
}

func provideWorkflowHandler(
	frontendConfig *frontend.Config,
	historyEngine *history.Engine,
	matchingEngine *matching.Engine,
	registry namespace.Registry,
	metricsHandler metrics.Handler,
	logger log.Logger,
) *frontend.WorkflowHandler {
	return frontend.NewWorkflowHandler(
		frontendConfig,
		historyEngine,
		matchingEngine,
		registry,
		metricsHandler.WithTags(metrics.ServiceNameTag("frontend")),
		logger,
	)
}

func provideNamespaceHandler(
	frontendConfig *frontend.Config,
	metadataStore persistence.MetadataStore,
	timeSource clock.TimeSource,
	logger log.Logger,
) *frontend.NamespaceHandler {
	return frontend.NewNamespaceHandler(frontendConfig, metadataStore, timeSource, logger)
}

func provideAPIServer(
	cfg *config.Config,
	workflowHandler *frontend.WorkflowHandler,
	namespaceHandler *frontend.NamespaceHandler,
	logger log.Logger,
) *frontend.HTTPAPIServer {
	return frontend.NewHTTPAPIServer(cfg.Server.ListenAddress, workflowHandler, namespaceHandler, logger)
}

type serviceParams struct {
	fx.In

	Config            *config.Config
	TimeSource        clock.TimeSource
	Logger            log.Logger
	MetadataStore     persistence.MetadataStore
	NamespaceRegistry namespace.Registry
	ShardController   *shard.Controller
	MatchingEngine    *matching.Engine
	HistoryEngine     *history.Engine
	APIServer         *frontend.HTTPAPIServer
}

// registerServices wires the cross-service callback and orders startup:
// cluster metadata check, registry, shards, matching, history, then the API
// server. Shutdown runs the same chain in reverse so the API drains before
// the engines go away.
func registerServices(lc fx.Lifecycle, p serviceParams) {
	p.MatchingEngine.SetTaskFailureHandler(p.HistoryEngine)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := initializeClusterMetadata(ctx, p.MetadataStore, p.Config, p.TimeSource, p.Logger); err != nil {
				return err
			}
			p.NamespaceRegistry.Start()
			p.ShardController.Start()
			p.MatchingEngine.Start()
			p.HistoryEngine.Start()
			return p.APIServer.Start()
		},
		OnStop: func(context.Context) error {
			p.APIServer.Stop()
			p.HistoryEngine.Stop()
			p.MatchingEngine.Stop()
			p.ShardController.Stop()
			p.NamespaceRegistry.Stop()
			return nil
		},
	})
}
