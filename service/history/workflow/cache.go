package workflow

import (
	"container/list"
	"context"
	"sync"
	"time"

	apihistory "github.com/strandhq/strand/api/history"
	"github.com/strandhq/strand/common/collection"
	"github.com/strandhq/strand/common/metrics"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/service/history/shard"
)

const replayPageSize = 256

type (
	// ReleaseFunc returns the execution to the cache. Passing a non-nil
	// error drops the cached state so the next access rebuilds by replay.
	ReleaseFunc func(err error)

	executionKey struct {
		namespaceID string
		workflowID  string
		runID       string
	}

	cacheEntry struct {
		// mu serializes all access to one execution. Held from GetOrLoad
		// until the release func runs.
		mu       sync.Mutex
		state    *MutableState
		refCount int
		element  *list.Element
	}

	// Cache keeps replay-built mutable states resident, with per-execution
	// locking so at most one mutation pipeline runs per execution at a time.
	Cache struct {
		mu            sync.Mutex
		maxSize       int
		entries       map[executionKey]*cacheEntry
		evictionOrder *list.List

		metricsHandler metrics.Handler
	}
)

// NewCache returns an execution cache holding at most maxSize idle entries.
// Pinned entries never count against the cap.
func NewCache(maxSize int, metricsHandler metrics.Handler) *Cache {
	return &Cache{
		maxSize:        maxSize,
		entries:        make(map[executionKey]*cacheEntry),
		evictionOrder:  list.New(),
		metricsHandler: metricsHandler,
	}
}

// GetOrLoad pins the execution, loading it by history replay on a miss. The
// returned state must only be used until the release func is called. The bool
// reports whether this call rebuilt the state by replay, so callers can
// re-register in-memory deadlines that did not survive the reload.
func (c *Cache) GetOrLoad(
	ctx context.Context,
	shardContext shard.Context,
	namespaceID string,
	workflowID string,
	runID string,
) (*MutableState, ReleaseFunc, bool, error) {
	start := time.Now()
	defer func() { metrics.CacheLatency.With(c.metricsHandler).Record(time.Since(start)) }()

	key := executionKey{namespaceID: namespaceID, workflowID: workflowID, runID: runID}
	entry := c.pin(key)
	entry.mu.Lock()

	loaded := false
	if entry.state == nil {
		metrics.CacheMissCounter.With(c.metricsHandler).Record(1)
		state, err := c.loadByReplay(ctx, shardContext, key)
		if err != nil {
			entry.mu.Unlock()
			c.unpin(key, entry, true)
			return nil, nil, false, err
		}
		entry.state = state
		loaded = true
		metrics.HistoryReplaySizeHistogram.With(c.metricsHandler).Record(state.GetLastEventVersion())
	}

	release := func(err error) {
		if err != nil {
			entry.state = nil
		}
		entry.mu.Unlock()
		c.unpin(key, entry, err != nil)
	}
	return entry.state, release, loaded, nil
}

func (c *Cache) pin(key executionKey) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		entry = &cacheEntry{}
		c.entries[key] = entry
	} else if entry.element != nil {
		c.evictionOrder.Remove(entry.element)
		entry.element = nil
	}
	entry.refCount++
	return entry
}

func (c *Cache) unpin(key executionKey, entry *cacheEntry, drop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry.refCount--
	if entry.refCount > 0 {
		return
	}
	if drop || entry.state == nil {
		delete(c.entries, key)
		return
	}

	entry.element = c.evictionOrder.PushFront(key)
	for c.evictionOrder.Len() > c.maxSize {
		oldest := c.evictionOrder.Back()
		oldestKey := oldest.Value.(executionKey)
		c.evictionOrder.Remove(oldest)
		delete(c.entries, oldestKey)
	}
}

func (c *Cache) loadByReplay(
	ctx context.Context,
	shardContext shard.Context,
	key executionKey,
) (*MutableState, error) {
	iterator := collection.NewPagingIterator(func(token []byte) ([]*apihistory.HistoryEvent, []byte, error) {
		response, err := shardContext.ReadHistoryEvents(ctx, &persistence.ReadHistoryEventsRequest{
			NamespaceID:   key.namespaceID,
			WorkflowID:    key.workflowID,
			RunID:         key.runID,
			MinEventID:    1,
			PageSize:      replayPageSize,
			NextPageToken: token,
		})
		if err != nil {
			return nil, nil, err
		}
		return response.Events, response.NextPageToken, nil
	})

	state := NewMutableState(key.namespaceID, key.workflowID, key.runID)
	for iterator.HasNext() {
		event, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if _, err := state.ApplyEvent(event); err != nil {
			return nil, err
		}
	}
	return state, nil
}
