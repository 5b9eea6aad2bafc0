package history

import (
	"sync"
	"time"

	"github.com/emirpasic/gods/queues/priorityqueue"

	"github.com/strandhq/strand/common/clock"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/log/tag"
	"github.com/strandhq/strand/service/history/workflow"
)

type (
	// timerEntry is one registered deadline for a workflow on this shard.
	timerEntry struct {
		namespaceID string
		workflowID  string
		runID       string
		task        workflow.TimerTask
	}

	// timerQueue orders the in-memory deadlines of one shard and hands due
	// entries to the engine. Entries are advisory: the fire handler re-checks
	// the workflow's replayed state, so stale and duplicate entries are
	// dropped there rather than tracked here.
	timerQueue struct {
		shardID    int32
		engine     *Engine
		timeSource clock.TimeSource
		logger     log.Logger

		mu sync.Mutex
		pq *priorityqueue.Queue

		notifyC   chan struct{}
		shutdownC chan struct{}
		shutdownW sync.WaitGroup
	}
)

func compareFireTime(a, b interface{}) int {
	ta := a.(*timerEntry).task.FireTime
	tb := b.(*timerEntry).task.FireTime
	switch {
	case ta.Before(tb):
		return -1
	case ta.After(tb):
		return 1
	default:
		return 0
	}
}

func newTimerQueue(shardID int32, engine *Engine) *timerQueue {
	tq := &timerQueue{
		shardID:    shardID,
		engine:     engine,
		timeSource: engine.timeSource,
		logger:     log.With(engine.logger, tag.ShardID(shardID)),
		pq:         priorityqueue.NewWith(compareFireTime),
		notifyC:    make(chan struct{}, 1),
		shutdownC:  make(chan struct{}),
	}
	tq.shutdownW.Add(1)
	go tq.loop()
	return tq
}

func (tq *timerQueue) Stop() {
	close(tq.shutdownC)
	tq.shutdownW.Wait()
}

// add registers a deadline. A fire time in the past fires on the next loop
// iteration.
func (tq *timerQueue) add(entry *timerEntry) {
	tq.mu.Lock()
	tq.pq.Enqueue(entry)
	tq.mu.Unlock()
	tq.notify()
}

func (tq *timerQueue) notify() {
	select {
	case tq.notifyC <- struct{}{}:
	default:
	}
}

func (tq *timerQueue) loop() {
	defer tq.shutdownW.Done()

	for {
		tq.fireDue()

		wait := tq.engine.config.TimerProcessorMaxPollInterval()
		if next, ok := tq.peekFireTime(); ok {
			if until := next.Sub(tq.timeSource.Now()); until < wait {
				wait = until
			}
		}
		if wait < 0 {
			wait = 0
		}
		timer := tq.timeSource.AfterFunc(wait, tq.notify)
		select {
		case <-tq.shutdownC:
			timer.Stop()
			return
		case <-tq.notifyC:
			timer.Stop()
		}
	}
}

func (tq *timerQueue) peekFireTime() (time.Time, bool) {
	tq.mu.Lock()
	defer tq.mu.Unlock()
	head, ok := tq.pq.Peek()
	if !ok {
		return time.Time{}, false
	}
	return head.(*timerEntry).task.FireTime, true
}

func (tq *timerQueue) fireDue() {
	for {
		now := tq.timeSource.Now()
		tq.mu.Lock()
		head, ok := tq.pq.Peek()
		if !ok || head.(*timerEntry).task.FireTime.After(now) {
			tq.mu.Unlock()
			return
		}
		tq.pq.Dequeue()
		tq.mu.Unlock()

		entry := head.(*timerEntry)
		select {
		case <-tq.shutdownC:
			return
		default:
		}
		tq.engine.fireTimer(tq.shardID, entry)
	}
}
