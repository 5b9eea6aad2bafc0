package matching

import (
	"context"

	"github.com/strandhq/strand/common/clock"
	"github.com/strandhq/strand/common/persistence"
)

// taskWriter appends tasks to the durable backlog. Ids come from the queue's
// leased block, so ids are increasing and every write is fenced by the
// rangeID the block was carved from.
type taskWriter struct {
	db         *taskQueueDB
	timeSource clock.TimeSource
	notifyC    chan struct{}
}

func newTaskWriter(db *taskQueueDB, timeSource clock.TimeSource) *taskWriter {
	return &taskWriter{
		db:         db,
		timeSource: timeSource,
		notifyC:    make(chan struct{}, 1),
	}
}

// appendTask durably writes one task and wakes the reader.
func (w *taskWriter) appendTask(ctx context.Context, task *persistence.TaskInfo) (int64, error) {
	ids, err := w.db.allocTaskIDs(ctx, 1)
	if err != nil {
		return 0, err
	}

	task.TaskID = ids[0]
	if task.CreateTime.IsZero() {
		task.CreateTime = w.timeSource.Now()
	}
	if task.Attempt < 1 {
		task.Attempt = 1
	}
	if err := w.db.CreateTasks(ctx, []*persistence.TaskInfo{task}); err != nil {
		return 0, err
	}

	select {
	case w.notifyC <- struct{}{}:
	default:
	}
	return task.TaskID, nil
}

// maxReadLevel is the exclusive upper bound of task ids that may exist, which
// bounds the reader's backlog scans.
func (w *taskWriter) maxReadLevel() int64 {
	w.db.Lock()
	defer w.db.Unlock()
	return w.db.nextTaskID
}
