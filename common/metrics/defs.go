package metrics

import (
	"time"
)

type (
	// MetricUnit supports tagging metrics with a unit.
	MetricUnit string

	// counterDefinition is the definition of a counter metric.
	counterDefinition struct {
		name string
	}

	// gaugeDefinition is the definition of a gauge metric.
	gaugeDefinition struct {
		name string
	}

	// timerDefinition is the definition of a timer metric.
	timerDefinition struct {
		name string
	}

	// histogramDefinition is the definition of a histogram metric.
	histogramDefinition struct {
		name string
		unit MetricUnit
	}
)

// MetricUnit values.
const (
	Dimensionless = MetricUnit("1")
	Milliseconds  = MetricUnit("ms")
	Bytes         = MetricUnit("By")
)

func NewCounterDef(name string) counterDefinition {
	return counterDefinition{name: name}
}

func NewGaugeDef(name string) gaugeDefinition {
	return gaugeDefinition{name: name}
}

func NewTimerDef(name string) timerDefinition {
	return timerDefinition{name: name}
}

func NewBytesHistogramDef(name string) histogramDefinition {
	return histogramDefinition{name: name, unit: Bytes}
}

func NewDimensionlessHistogramDef(name string) histogramDefinition {
	return histogramDefinition{name: name, unit: Dimensionless}
}

func (d counterDefinition) Name() string { return d.name }

func (d counterDefinition) With(handler Handler) CounterIface {
	return handler.Counter(d.name)
}

func (d gaugeDefinition) Name() string { return d.name }

func (d gaugeDefinition) With(handler Handler) GaugeIface {
	return handler.Gauge(d.name)
}

func (d timerDefinition) Name() string { return d.name }

func (d timerDefinition) With(handler Handler) TimerIface {
	return handler.Timer(d.name)
}

func (d histogramDefinition) Name() string { return d.name }

func (d histogramDefinition) With(handler Handler) HistogramIface {
	return handler.Histogram(d.name, d.unit)
}

// RecordLatency records the elapsed time since start on the given timer def.
func RecordLatency(handler Handler, def timerDefinition, start time.Time) {
	def.With(handler).Record(time.Since(start))
}

// Common service metrics.
var (
	ServiceRequests      = NewCounterDef("service_requests")
	ServiceFailures      = NewCounterDef("service_errors")
	ServiceLatency       = NewTimerDef("service_latency")
	ServiceErrRateLimit  = NewCounterDef("service_errors_ratelimit")
	ServiceErrBadRequest = NewCounterDef("service_errors_bad_request")

	// Persistence metrics.
	PersistenceRequests              = NewCounterDef("persistence_requests")
	PersistenceFailures              = NewCounterDef("persistence_errors")
	PersistenceLatency               = NewTimerDef("persistence_latency")
	PersistenceErrConflict           = NewCounterDef("persistence_errors_condition_failed")
	PersistenceErrShardOwnershipLost = NewCounterDef("persistence_errors_shard_ownership_lost")
	PersistenceCircuitBreakerOpen    = NewCounterDef("persistence_circuit_breaker_open")

	// Shard metrics.
	ShardContextCreatedCounter     = NewCounterDef("shard_context_created")
	ShardContextClosedCounter      = NewCounterDef("shard_context_closed")
	ShardContextRemovedCounter     = NewCounterDef("shard_context_removed")
	ShardContextAcquisitionLatency = NewTimerDef("shard_context_acquisition_latency")
	ShardInfoRangeUpdatedCounter   = NewCounterDef("shard_range_updated")
	NumShardsGauge                 = NewGaugeDef("numshards_gauge")

	// History metrics.
	WorkflowStartedCounter         = NewCounterDef("workflow_started")
	WorkflowCompletedCounter       = NewCounterDef("workflow_completed")
	WorkflowFailedCounter          = NewCounterDef("workflow_failed")
	WorkflowCanceledCounter        = NewCounterDef("workflow_canceled")
	WorkflowTerminatedCounter      = NewCounterDef("workflow_terminated")
	WorkflowTimedOutCounter        = NewCounterDef("workflow_timedout")
	WorkflowContinuedAsNewCounter  = NewCounterDef("workflow_continued_as_new")
	WorkflowSignalCounter          = NewCounterDef("workflow_signal")
	HistoryEventsAppendedCounter   = NewCounterDef("history_events_appended")
	HistoryReplaySizeHistogram     = NewDimensionlessHistogramDef("history_replay_event_count")
	StaleMutableStateCounter       = NewCounterDef("stale_mutable_state")
	ActivityRetriesExceededCounter = NewCounterDef("activity_retries_exceeded")
	TimerFiredCounter              = NewCounterDef("timer_fired")
	CacheLatency                   = NewTimerDef("cache_latency")
	CacheMissCounter               = NewCounterDef("cache_miss")

	// Matching metrics.
	TaskEnqueuedCounter        = NewCounterDef("task_enqueued")
	TaskDispatchedCounter      = NewCounterDef("task_dispatched")
	TaskAckedCounter           = NewCounterDef("task_acked")
	TaskRedeliveredCounter     = NewCounterDef("task_redelivered")
	TaskDeadLetteredCounter    = NewCounterDef("task_dead_lettered")
	TaskExpiredCounter         = NewCounterDef("task_expired")
	TaskDispatchLatency        = NewTimerDef("task_dispatch_latency")
	TaskScheduleToStartLatency = NewTimerDef("task_schedule_to_start_latency")
	TaskBacklogDepthGauge      = NewGaugeDef("task_backlog_depth")
	TaskOutstandingGauge       = NewGaugeDef("task_outstanding_leases")
	PollSuccessCounter         = NewCounterDef("poll_success")
	PollTimeoutCounter         = NewCounterDef("poll_timeouts")
	PollThrottledCounter       = NewCounterDef("poll_throttled")
)
