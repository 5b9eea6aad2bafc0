package metrics

import (
	"net/http"
	"time"

	"github.com/uber-go/tally/v4"
	promreporter "github.com/uber-go/tally/v4/prometheus"

	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/log/tag"
)

type (
	// Config contains the config items for metrics subsystem.
	Config struct {
		// Prometheus is the configuration for the prometheus reporter. Nil disables
		// metric reporting entirely.
		Prometheus *PrometheusConfig `yaml:"prometheus"`
		// Prefix is prepended to every metric name.
		Prefix string `yaml:"prefix"`
		// Tags is the set of key-value pairs to be reported on every metric.
		Tags map[string]string `yaml:"tags"`
	}

	// PrometheusConfig is the configuration for the prometheus reporter.
	PrometheusConfig struct {
		// ListenAddress is the address the scrape endpoint listens on.
		ListenAddress string `yaml:"listenAddress"`
		// HandlerPath is the path of the scrape endpoint. Defaults to /metrics.
		HandlerPath string `yaml:"handlerPath"`
	}
)

const reportingInterval = time.Second

// NewMetricsHandlerFromConfig builds a Handler from config. With a prometheus
// section present it starts the scrape endpoint; the returned stop function
// flushes the root scope.
func NewMetricsHandlerFromConfig(cfg *Config, logger log.Logger) (Handler, func()) {
	if cfg == nil || cfg.Prometheus == nil {
		return NoopMetricsHandler, func() {}
	}

	reporter := promreporter.NewReporter(promreporter.Options{})
	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix:         cfg.Prefix,
		Tags:           cfg.Tags,
		CachedReporter: reporter,
		Separator:      promreporter.DefaultSeparator,
	}, reportingInterval)

	handlerPath := cfg.Prometheus.HandlerPath
	if handlerPath == "" {
		handlerPath = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(handlerPath, reporter.HTTPHandler())
	server := &http.Server{Addr: cfg.Prometheus.ListenAddress, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics scrape endpoint terminated", tag.Error(err))
		}
	}()
	logger.Info("Metrics scrape endpoint started", tag.Address(cfg.Prometheus.ListenAddress))

	return NewTallyMetricsHandler(scope), func() {
		_ = server.Close()
		_ = closer.Close()
	}
}
