package matching

import (
	"context"

	"github.com/strandhq/strand/common/quotas"
)

// taskMatcher pairs backlog tasks with long-polling workers. Offer and Poll
// rendezvous on an unbuffered channel, so a task is handed to exactly one
// poller; the runtime's channel scheduling spreads tasks fairly across
// waiting pollers. Dispatch is throttled by the queue's rate limiter.
type taskMatcher struct {
	taskC   chan *internalTask
	limiter quotas.RateLimiter
}

func newTaskMatcher(limiter quotas.RateLimiter) *taskMatcher {
	return &taskMatcher{
		taskC:   make(chan *internalTask),
		limiter: limiter,
	}
}

// Offer blocks until a poller takes the task or the context expires.
func (m *taskMatcher) Offer(ctx context.Context, task *internalTask) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	select {
	case m.taskC <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll blocks until a task is offered or the context expires.
func (m *taskMatcher) Poll(ctx context.Context) (*internalTask, error) {
	select {
	case task := <-m.taskC:
		return task, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
