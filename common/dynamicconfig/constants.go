package dynamicconfig

// Keys for all dynamically configurable settings. Defaults live with the
// service config that reads the key.
const (
	// PersistenceMaxQPS is the rate limit applied in front of each datastore.
	PersistenceMaxQPS = Key("system.persistenceMaxQPS")
	// NamespaceRefreshInterval is the period of the namespace registry refresh
	// loop.
	NamespaceRefreshInterval = Key("system.namespaceRefreshInterval")

	// FrontendRPS is the rate limit, in requests per second, applied across all
	// client calls into the frontend.
	FrontendRPS = Key("frontend.rps")
	// FrontendNamespaceRPS is the per-namespace frontend rate limit.
	FrontendNamespaceRPS = Key("frontend.namespaceRPS")
	// FrontendMaxIDLength is the maximum allowed length of workflow ids, signal
	// names, task queue names and other user-chosen identifiers.
	FrontendMaxIDLength = Key("frontend.maxIDLength")
	// FrontendHistoryMaxPageSize is the maximum page size for history reads.
	FrontendHistoryMaxPageSize = Key("frontend.historyMaxPageSize")

	// HistoryShardUpdateMinInterval is the minimal interval between shard info
	// writes triggered by ack level movement.
	HistoryShardUpdateMinInterval = Key("history.shardUpdateMinInterval")
	// HistoryAcquireShardInterval is the interval between shard acquisition
	// sweeps of the shard controller.
	HistoryAcquireShardInterval = Key("history.acquireShardInterval")
	// HistoryAcquireShardConcurrency is the number of goroutines used during a
	// shard acquisition sweep.
	HistoryAcquireShardConcurrency = Key("history.acquireShardConcurrency")
	// HistoryCacheMaxSize is the maximum number of mutable states kept resident
	// per shard.
	HistoryCacheMaxSize = Key("history.cacheMaxSize")
	// HistoryDefaultWorkflowTaskTimeout is the timeout for a dispatched workflow
	// task to be completed before it is retried.
	HistoryDefaultWorkflowTaskTimeout = Key("history.defaultWorkflowTaskTimeout")
	// HistoryDefaultWorkflowRunTimeout is the default overall run timeout
	// applied when the start request does not carry one.
	HistoryDefaultWorkflowRunTimeout = Key("history.defaultWorkflowRunTimeout")
	// HistoryDefaultActivityRetryPolicy is the retry policy applied to
	// activities scheduled without an explicit policy. Map value with keys
	// InitialIntervalInSeconds, BackoffCoefficient, MaximumIntervalInSeconds,
	// MaximumAttempts.
	HistoryDefaultActivityRetryPolicy = Key("history.defaultActivityRetryPolicy")
	// HistoryMaxEventBatchSize is the maximum number of events accepted in one
	// conditional append.
	HistoryMaxEventBatchSize = Key("history.maxEventBatchSize")
	// HistoryTimerProcessorMaxPollInterval bounds how long the timer queue
	// sleeps without work before re-reading its backing heap.
	HistoryTimerProcessorMaxPollInterval = Key("history.timerProcessorMaxPollInterval")

	// MatchingRPS is the per-task-queue dispatch rate limit.
	MatchingRPS = Key("matching.rps")
	// MatchingGetTasksBatchSize is the batch size for backlog reads.
	MatchingGetTasksBatchSize = Key("matching.getTasksBatchSize")
	// MatchingUpdateAckInterval is the interval between ack level writes.
	MatchingUpdateAckInterval = Key("matching.updateAckInterval")
	// MatchingLongPollExpirationInterval is the maximum duration of a poll
	// request held open waiting for a task.
	MatchingLongPollExpirationInterval = Key("matching.longPollExpirationInterval")
	// MatchingTaskVisibilityTimeout is the window for a dispatched task to be
	// acked before it is considered lost and redelivered.
	MatchingTaskVisibilityTimeout = Key("matching.taskVisibilityTimeout")
	// MatchingMaxTaskAttempts is the delivery attempt ceiling, beyond which a
	// task is dead-lettered.
	MatchingMaxTaskAttempts = Key("matching.maxTaskAttempts")
	// MatchingMaxOutstandingTasks caps unacknowledged dispatched tasks per task
	// queue; poll requests beyond the cap wait.
	MatchingMaxOutstandingTasks = Key("matching.maxOutstandingTasks")
	// MatchingMaxTaskDeleteBatchSize is the upper bound on acked tasks removed
	// per GC pass.
	MatchingMaxTaskDeleteBatchSize = Key("matching.maxTaskDeleteBatchSize")
	// MatchingIdleTaskQueueTTL is how long an unused task queue manager stays
	// loaded.
	MatchingIdleTaskQueueTTL = Key("matching.idleTaskqueueTTL")
)
