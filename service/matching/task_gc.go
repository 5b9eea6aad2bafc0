package matching

import (
	"context"
	"sync"

	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/log/tag"
)

// taskGC deletes acked tasks from the durable backlog. Deletion lags the ack
// level; losing a GC pass only means re-deleting later, never losing tasks.
type taskGC struct {
	mu           sync.Mutex
	db           *taskQueueDB
	config       *queueConfig
	logger       log.Logger
	ackLevelAtGC int64
}

func newTaskGC(db *taskQueueDB, config *queueConfig, logger log.Logger) *taskGC {
	return &taskGC{
		db:     db,
		config: config,
		logger: logger,
	}
}

// run deletes tasks at or below the ack level, bounded per pass.
func (gc *taskGC) run(ctx context.Context, ackLevel int64) {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	if ackLevel <= gc.ackLevelAtGC {
		return
	}
	deleted, err := gc.db.CompleteTasksLessThan(ctx, ackLevel+1, gc.config.MaxTaskDeleteBatchSize())
	if err != nil {
		gc.logger.Error("task gc failed", tag.Error(err))
		return
	}
	gc.ackLevelAtGC = ackLevel
	if deleted > 0 {
		gc.logger.Debug("task gc completed", tag.AckLevel(ackLevel), tag.Counter(deleted))
	}
}
