package matching

import (
	"time"

	"github.com/strandhq/strand/common/dynamicconfig"
)

type (
	// Config holds the matching service settings, resolved through dynamic
	// config per task queue where it makes sense.
	Config struct {
		RPS                        dynamicconfig.IntPropertyFnWithTaskQueueFilter
		GetTasksBatchSize          dynamicconfig.IntPropertyFnWithTaskQueueFilter
		UpdateAckInterval          dynamicconfig.DurationPropertyFnWithTaskQueueFilter
		LongPollExpirationInterval dynamicconfig.DurationPropertyFnWithTaskQueueFilter
		TaskVisibilityTimeout      dynamicconfig.DurationPropertyFnWithTaskQueueFilter
		MaxTaskAttempts            dynamicconfig.IntPropertyFnWithTaskQueueFilter
		MaxOutstandingTasks        dynamicconfig.IntPropertyFnWithTaskQueueFilter
		MaxTaskDeleteBatchSize     dynamicconfig.IntPropertyFnWithTaskQueueFilter
		IdleTaskQueueTTL           dynamicconfig.DurationPropertyFn
	}

	// queueConfig is Config resolved against one task queue.
	queueConfig struct {
		RPS                        func() int
		GetTasksBatchSize          func() int
		UpdateAckInterval          func() time.Duration
		LongPollExpirationInterval func() time.Duration
		TaskVisibilityTimeout      func() time.Duration
		MaxTaskAttempts            func() int
		MaxOutstandingTasks        func() int
		MaxTaskDeleteBatchSize     func() int
	}
)

const (
	defaultRPS                        = 100000
	defaultGetTasksBatchSize          = 1000
	defaultUpdateAckInterval          = time.Minute
	defaultLongPollExpirationInterval = time.Minute
	defaultTaskVisibilityTimeout      = 10 * time.Second
	defaultMaxTaskAttempts            = 3
	defaultMaxOutstandingTasks        = 1000
	defaultMaxTaskDeleteBatchSize     = 100
	defaultIdleTaskQueueTTL           = 5 * time.Minute

	// rangeSize is the number of task ids leased per queue rangeID.
	rangeSize = 100000
)

// NewConfig returns a matching config backed by the given dynamic config
// collection.
func NewConfig(dc *dynamicconfig.Collection) *Config {
	return &Config{
		RPS:                        dc.GetIntPropertyFilteredByTaskQueue(dynamicconfig.MatchingRPS, defaultRPS),
		GetTasksBatchSize:          dc.GetIntPropertyFilteredByTaskQueue(dynamicconfig.MatchingGetTasksBatchSize, defaultGetTasksBatchSize),
		UpdateAckInterval:          dc.GetDurationPropertyFilteredByTaskQueue(dynamicconfig.MatchingUpdateAckInterval, defaultUpdateAckInterval),
		LongPollExpirationInterval: dc.GetDurationPropertyFilteredByTaskQueue(dynamicconfig.MatchingLongPollExpirationInterval, defaultLongPollExpirationInterval),
		TaskVisibilityTimeout:      dc.GetDurationPropertyFilteredByTaskQueue(dynamicconfig.MatchingTaskVisibilityTimeout, defaultTaskVisibilityTimeout),
		MaxTaskAttempts:            dc.GetIntPropertyFilteredByTaskQueue(dynamicconfig.MatchingMaxTaskAttempts, defaultMaxTaskAttempts),
		MaxOutstandingTasks:        dc.GetIntPropertyFilteredByTaskQueue(dynamicconfig.MatchingMaxOutstandingTasks, defaultMaxOutstandingTasks),
		MaxTaskDeleteBatchSize:     dc.GetIntPropertyFilteredByTaskQueue(dynamicconfig.MatchingMaxTaskDeleteBatchSize, defaultMaxTaskDeleteBatchSize),
		IdleTaskQueueTTL:           dc.GetDurationProperty(dynamicconfig.MatchingIdleTaskQueueTTL, defaultIdleTaskQueueTTL),
	}
}

func (c *Config) forQueue(namespace string, taskQueue string) *queueConfig {
	return &queueConfig{
		RPS:                        func() int { return c.RPS(namespace, taskQueue) },
		GetTasksBatchSize:          func() int { return c.GetTasksBatchSize(namespace, taskQueue) },
		UpdateAckInterval:          func() time.Duration { return c.UpdateAckInterval(namespace, taskQueue) },
		LongPollExpirationInterval: func() time.Duration { return c.LongPollExpirationInterval(namespace, taskQueue) },
		TaskVisibilityTimeout:      func() time.Duration { return c.TaskVisibilityTimeout(namespace, taskQueue) },
		MaxTaskAttempts:            func() int { return c.MaxTaskAttempts(namespace, taskQueue) },
		MaxOutstandingTasks:        func() int { return c.MaxOutstandingTasks(namespace, taskQueue) },
		MaxTaskDeleteBatchSize:     func() int { return c.MaxTaskDeleteBatchSize(namespace, taskQueue) },
	}
}
