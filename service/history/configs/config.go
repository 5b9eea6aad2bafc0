package configs

import (
	"time"

	"github.com/strandhq/strand/common/dynamicconfig"
)

// Config represents configuration for the history service.
type Config struct {
	NumberOfShards int32

	// RangeSizeBits determines the size of a shard's task id block: each
	// range renewal grants 2^RangeSizeBits task ids. Change requires a
	// cluster restart.
	RangeSizeBits uint

	// ShardController settings.
	ShardUpdateMinInterval  dynamicconfig.DurationPropertyFn
	AcquireShardInterval    dynamicconfig.DurationPropertyFn
	AcquireShardConcurrency dynamicconfig.IntPropertyFn

	// Execution cache settings. Change requires shard restart.
	HistoryCacheMaxSize dynamicconfig.IntPropertyFn

	// Workflow execution defaults.
	DefaultWorkflowTaskTimeout dynamicconfig.DurationPropertyFn
	DefaultWorkflowRunTimeout  dynamicconfig.DurationPropertyFn
	DefaultActivityRetryPolicy dynamicconfig.MapPropertyFn
	MaxEventBatchSize          dynamicconfig.IntPropertyFn

	// Timer queue settings.
	TimerProcessorMaxPollInterval dynamicconfig.DurationPropertyFn
}

// NewConfig returns a history service config with defaults resolved against
// the given dynamic config collection.
func NewConfig(dc *dynamicconfig.Collection, numberOfShards int32) *Config {
	return &Config{
		NumberOfShards: numberOfShards,
		RangeSizeBits:  20,

		ShardUpdateMinInterval:  dc.GetDurationProperty(dynamicconfig.HistoryShardUpdateMinInterval, 5*time.Minute),
		AcquireShardInterval:    dc.GetDurationProperty(dynamicconfig.HistoryAcquireShardInterval, time.Minute),
		AcquireShardConcurrency: dc.GetIntProperty(dynamicconfig.HistoryAcquireShardConcurrency, 10),

		HistoryCacheMaxSize: dc.GetIntProperty(dynamicconfig.HistoryCacheMaxSize, 512),

		DefaultWorkflowTaskTimeout: dc.GetDurationProperty(dynamicconfig.HistoryDefaultWorkflowTaskTimeout, 10*time.Second),
		DefaultWorkflowRunTimeout:  dc.GetDurationProperty(dynamicconfig.HistoryDefaultWorkflowRunTimeout, 24*time.Hour),
		DefaultActivityRetryPolicy: dc.GetMapProperty(dynamicconfig.HistoryDefaultActivityRetryPolicy, DefaultActivityRetryPolicy()),
		MaxEventBatchSize:          dc.GetIntProperty(dynamicconfig.HistoryMaxEventBatchSize, 100),

		TimerProcessorMaxPollInterval: dc.GetDurationProperty(dynamicconfig.HistoryTimerProcessorMaxPollInterval, 5*time.Minute),
	}
}

// DefaultActivityRetryPolicy is the retry policy applied to activities
// scheduled without an explicit policy.
func DefaultActivityRetryPolicy() map[string]interface{} {
	return map[string]interface{}{
		"InitialIntervalInSeconds": 1,
		"BackoffCoefficient":       2.0,
		"MaximumIntervalInSeconds": 100,
		"MaximumAttempts":          0,
	}
}
