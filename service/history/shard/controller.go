package shard

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/strandhq/strand/common"
	"github.com/strandhq/strand/common/clock"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/log/tag"
	"github.com/strandhq/strand/common/membership"
	"github.com/strandhq/strand/common/metrics"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/serviceerror"
	"github.com/strandhq/strand/service/history/configs"
)

type (
	// Controller owns the set of loaded shard contexts and runs the
	// acquisition loop that claims shards this host is responsible for.
	Controller struct {
		status         int32
		config         *configs.Config
		shardStore     persistence.ShardStore
		executionStore persistence.ExecutionStore
		resolver       membership.ServiceResolver
		timeSource     clock.TimeSource
		metricsHandler metrics.Handler
		logger         log.Logger

		shutdownC chan struct{}
		shutdownW sync.WaitGroup
		acquireC  chan struct{}

		lock   sync.RWMutex
		shards map[int32]*contextImpl
	}
)

// NewController builds a shard controller. Start kicks off the acquisition
// loop.
func NewController(
	config *configs.Config,
	shardStore persistence.ShardStore,
	executionStore persistence.ExecutionStore,
	resolver membership.ServiceResolver,
	timeSource clock.TimeSource,
	metricsHandler metrics.Handler,
	logger log.Logger,
) *Controller {
	return &Controller{
		status:         common.DaemonStatusInitialized,
		config:         config,
		shardStore:     shardStore,
		executionStore: executionStore,
		resolver:       resolver,
		timeSource:     timeSource,
		metricsHandler: metricsHandler,
		logger:         logger,
		shutdownC:      make(chan struct{}),
		acquireC:       make(chan struct{}, 1),
		shards:         make(map[int32]*contextImpl),
	}
}

func (c *Controller) Start() {
	if !atomic.CompareAndSwapInt32(&c.status, common.DaemonStatusInitialized, common.DaemonStatusStarted) {
		return
	}

	c.shutdownW.Add(1)
	go c.acquireLoop()
	c.RequestAcquire()
}

func (c *Controller) Stop() {
	if !atomic.CompareAndSwapInt32(&c.status, common.DaemonStatusStarted, common.DaemonStatusStopped) {
		return
	}
	close(c.shutdownC)
	if !common.AwaitWaitGroup(&c.shutdownW, time.Minute) {
		c.logger.Warn("shard controller acquire loop did not stop in time")
	}

	c.lock.Lock()
	shards := c.shards
	c.shards = make(map[int32]*contextImpl)
	c.lock.Unlock()
	for _, shard := range shards {
		shard.mu.Lock()
		shard.invalidateLocked()
		shard.mu.Unlock()
	}
}

// GetShardByID returns the context for the given shard, loading and acquiring
// it on first use.
func (c *Controller) GetShardByID(ctx context.Context, shardID int32) (Context, error) {
	if shardID <= 0 || shardID > c.config.NumberOfShards {
		return nil, serviceerror.NewInvalidArgumentf("shard id %v out of range [1, %v]", shardID, c.config.NumberOfShards)
	}

	c.lock.RLock()
	if shard, ok := c.shards[shardID]; ok && shard.IsValid() {
		c.lock.RUnlock()
		return shard, nil
	}
	c.lock.RUnlock()

	return c.loadShard(ctx, shardID)
}

// GetShardByNamespaceWorkflow routes a workflow execution to its owning
// shard context.
func (c *Controller) GetShardByNamespaceWorkflow(
	ctx context.Context,
	namespaceID string,
	workflowID string,
) (Context, error) {
	shardID := common.WorkflowIDToHistoryShard(namespaceID, workflowID, c.config.NumberOfShards)
	return c.GetShardByID(ctx, shardID)
}

// ShardIDs returns the ids of the currently loaded shards.
func (c *Controller) ShardIDs() []int32 {
	c.lock.RLock()
	defer c.lock.RUnlock()
	ids := make([]int32, 0, len(c.shards))
	for id := range c.shards {
		ids = append(ids, id)
	}
	return ids
}

// RequestAcquire nudges the acquisition loop outside its regular interval.
func (c *Controller) RequestAcquire() {
	select {
	case c.acquireC <- struct{}{}:
	default:
	}
}

func (c *Controller) loadShard(ctx context.Context, shardID int32) (Context, error) {
	c.lock.Lock()
	if shard, ok := c.shards[shardID]; ok && shard.IsValid() {
		c.lock.Unlock()
		return shard, nil
	}

	owner, err := c.resolver.Lookup(strconv.Itoa(int(shardID)))
	if err != nil {
		c.lock.Unlock()
		return nil, serviceerror.NewUnavailablef("unable to resolve shard owner: %v", err)
	}
	if c.resolver.WhoAmI().Identity() != owner.Identity() {
		c.lock.Unlock()
		return nil, serviceerror.NewShardOwnershipLost(owner.Identity(), "shard is owned by another host")
	}

	start := c.timeSource.Now()
	shard := newContext(
		shardID,
		owner.Identity(),
		c.config,
		c.shardStore,
		c.executionStore,
		c.timeSource,
		c.metricsHandler,
		c.logger,
		c.removeShard,
	)
	c.shards[shardID] = shard
	c.lock.Unlock()

	if err := shard.acquire(ctx); err != nil {
		c.removeShard(shard)
		return nil, err
	}

	metrics.ShardContextCreatedCounter.With(c.metricsHandler).Record(1)
	metrics.ShardContextAcquisitionLatency.With(c.metricsHandler).Record(c.timeSource.Now().Sub(start))
	return shard, nil
}

func (c *Controller) removeShard(shard *contextImpl) {
	c.lock.Lock()
	current, ok := c.shards[shard.shardID]
	if ok && current == shard {
		delete(c.shards, shard.shardID)
	}
	c.lock.Unlock()

	if ok && current == shard {
		metrics.ShardContextRemovedCounter.With(c.metricsHandler).Record(1)
	}
}

// acquireLoop periodically claims every shard this host should own. With a
// static single-host membership that is all of them; the loop also reacquires
// shards unloaded after fencing errors.
func (c *Controller) acquireLoop() {
	defer c.shutdownW.Done()

	timer := time.NewTimer(c.config.AcquireShardInterval())
	defer timer.Stop()
	for {
		select {
		case <-c.shutdownC:
			return
		case <-timer.C:
		case <-c.acquireC:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		c.acquireShards()
		timer.Reset(c.config.AcquireShardInterval())
	}
}

func (c *Controller) acquireShards() {
	concurrency := int64(c.config.AcquireShardConcurrency())
	if concurrency < 1 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(concurrency)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var wg sync.WaitGroup
	for shardID := int32(1); shardID <= c.config.NumberOfShards; shardID++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(shardID int32) {
			defer sem.Release(1)
			defer wg.Done()
			if _, err := c.GetShardByID(ctx, shardID); err != nil {
				c.logger.Warn("failed to acquire shard", tag.ShardID(shardID), tag.Error(err))
			}
		}(shardID)
	}
	wg.Wait()

	c.lock.RLock()
	loaded := len(c.shards)
	c.lock.RUnlock()
	metrics.NumShardsGauge.With(c.metricsHandler).Record(float64(loaded))
}
