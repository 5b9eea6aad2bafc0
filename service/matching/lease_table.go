package matching

import (
	"context"
	"sync"
	"time"
)

type (
	// taskLease is one dispatched, unacknowledged task. The lease expires at
	// deadline; an expired lease means the task is lost and must be
	// redelivered.
	taskLease struct {
		task     *internalTask
		leaseID  int64
		deadline time.Time
	}

	// leaseTable tracks outstanding leases for one task queue and enforces the
	// admission cap: pollers wait for a slot before matching, bounding how many
	// unacknowledged tasks a queue hands out at once.
	leaseTable struct {
		mu          sync.Mutex
		leases      map[int64]*taskLease // by task id
		nextLeaseID int64
		reserved    int
		freedC      chan struct{}
	}
)

func newLeaseTable() *leaseTable {
	return &leaseTable{
		leases: make(map[int64]*taskLease),
		freedC: make(chan struct{}, 1),
	}
}

// reserveSlot blocks until the number of outstanding leases plus reservations
// drops below the cap, or the context expires.
func (t *leaseTable) reserveSlot(ctx context.Context, maxOutstanding int) error {
	for {
		t.mu.Lock()
		if len(t.leases)+t.reserved < maxOutstanding {
			t.reserved++
			t.mu.Unlock()
			return nil
		}
		t.mu.Unlock()

		select {
		case <-t.freedC:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// releaseSlot returns an unused reservation, when a poll matched no task.
func (t *leaseTable) releaseSlot() {
	t.mu.Lock()
	t.reserved--
	t.mu.Unlock()
	t.signalFreed()
}

// grant converts a reservation into a lease on the given task.
func (t *leaseTable) grant(task *internalTask, deadline time.Time) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.reserved--
	t.nextLeaseID++
	t.leases[task.info.TaskID] = &taskLease{
		task:     task,
		leaseID:  t.nextLeaseID,
		deadline: deadline,
	}
	return t.nextLeaseID
}

// release removes the lease identified by (taskID, leaseID). It returns the
// leased task, or nil when the lease is gone or has been superseded.
func (t *leaseTable) release(taskID int64, leaseID int64) *internalTask {
	t.mu.Lock()
	lease, ok := t.leases[taskID]
	if !ok || lease.leaseID != leaseID {
		t.mu.Unlock()
		return nil
	}
	delete(t.leases, taskID)
	t.mu.Unlock()

	t.signalFreed()
	return lease.task
}

// collectExpired removes and returns every lease whose deadline has passed.
func (t *leaseTable) collectExpired(now time.Time) []*internalTask {
	t.mu.Lock()
	var expired []*internalTask
	for taskID, lease := range t.leases {
		if !lease.deadline.After(now) {
			expired = append(expired, lease.task)
			delete(t.leases, taskID)
		}
	}
	t.mu.Unlock()

	if len(expired) > 0 {
		t.signalFreed()
	}
	return expired
}

func (t *leaseTable) outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.leases)
}

func (t *leaseTable) signalFreed() {
	select {
	case t.freedC <- struct{}{}:
	default:
	}
}
