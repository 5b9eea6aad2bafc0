package matching

import (
	"context"
	"errors"
	"sync"

	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/log/tag"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/serviceerror"
)

type (
	// taskQueueDB is the sole writer to one task queue's durable record. It
	// owns the queue lease: every task write carries the leased rangeID, and a
	// ConditionFailedError from the store means another manager took the queue
	// over.
	taskQueueDB struct {
		sync.Mutex
		queue  queueKey
		store  persistence.TaskStore
		logger log.Logger

		rangeID    int64
		ackLevel   int64
		nextTaskID int64
		maxTaskID  int64
	}
)

var errQueueOwnershipLost = errors.New("task queue ownership lost")

func newTaskQueueDB(queue queueKey, store persistence.TaskStore, logger log.Logger) *taskQueueDB {
	return &taskQueueDB{
		queue:  queue,
		store:  store,
		logger: logger,
	}
}

// takeOverTaskQueue claims the queue by bumping its rangeID, creating the
// record on first use. The bump fences out the previous manager's writes.
func (db *taskQueueDB) takeOverTaskQueue(ctx context.Context) error {
	db.Lock()
	defer db.Unlock()

	response, err := db.store.GetTaskQueue(ctx, &persistence.GetTaskQueueRequest{
		NamespaceID: db.queue.namespaceID,
		Name:        db.queue.name,
		TaskType:    db.queue.taskType,
	})
	switch {
	case err == nil:
		info := *response.TaskQueueInfo
		info.RangeID++
		if err := db.store.UpdateTaskQueue(ctx, &persistence.UpdateTaskQueueRequest{
			TaskQueueInfo:   &info,
			PreviousRangeID: info.RangeID - 1,
		}); err != nil {
			return db.convertOwnershipError(err)
		}
		db.rangeID = info.RangeID
		db.ackLevel = info.AckLevel
	case isNotFoundErr(err):
		info := &persistence.TaskQueueInfo{
			NamespaceID: db.queue.namespaceID,
			Name:        db.queue.name,
			TaskType:    db.queue.taskType,
			RangeID:     1,
		}
		if err := db.store.CreateTaskQueue(ctx, &persistence.CreateTaskQueueRequest{
			TaskQueueInfo: info,
		}); err != nil {
			return db.convertOwnershipError(err)
		}
		db.rangeID = 1
		db.ackLevel = 0
	default:
		return err
	}

	db.nextTaskID = (db.rangeID-1)*rangeSize + 1
	db.maxTaskID = db.rangeID * rangeSize
	db.logger.Info("task queue lease acquired",
		tag.WorkflowTaskQueueName(db.queue.name),
		tag.ShardRangeID(db.rangeID),
	)
	return nil
}

func (db *taskQueueDB) RangeID() int64 {
	db.Lock()
	defer db.Unlock()
	return db.rangeID
}

func (db *taskQueueDB) AckLevel() int64 {
	db.Lock()
	defer db.Unlock()
	return db.ackLevel
}

// allocTaskIDs hands out ids from the leased block, renewing the lease for a
// fresh block when the current one runs out. Ids are strictly increasing
// across renewals.
func (db *taskQueueDB) allocTaskIDs(ctx context.Context, count int) ([]int64, error) {
	db.Lock()
	defer db.Unlock()

	ids := make([]int64, 0, count)
	for len(ids) < count {
		if db.nextTaskID > db.maxTaskID {
			if err := db.renewLeaseLocked(ctx); err != nil {
				return nil, err
			}
		}
		ids = append(ids, db.nextTaskID)
		db.nextTaskID++
	}
	return ids, nil
}

// CreateTasks durably appends tasks under the current lease.
func (db *taskQueueDB) CreateTasks(ctx context.Context, tasks []*persistence.TaskInfo) error {
	db.Lock()
	rangeID := db.rangeID
	db.Unlock()

	err := db.store.CreateTasks(ctx, &persistence.CreateTasksRequest{
		NamespaceID: db.queue.namespaceID,
		Name:        db.queue.name,
		TaskType:    db.queue.taskType,
		RangeID:     rangeID,
		Tasks:       tasks,
	})
	return db.convertOwnershipError(err)
}

// GetTasks reads the backlog in [inclusiveMin, exclusiveMax).
func (db *taskQueueDB) GetTasks(
	ctx context.Context,
	inclusiveMinTaskID int64,
	exclusiveMaxTaskID int64,
	batchSize int,
) (*persistence.GetTasksResponse, error) {
	return db.store.GetTasks(ctx, &persistence.GetTasksRequest{
		NamespaceID:        db.queue.namespaceID,
		Name:               db.queue.name,
		TaskType:           db.queue.taskType,
		InclusiveMinTaskID: inclusiveMinTaskID,
		ExclusiveMaxTaskID: exclusiveMaxTaskID,
		PageSize:           batchSize,
	})
}

// UpdateAckLevel persists ack level movement under the current lease.
func (db *taskQueueDB) UpdateAckLevel(ctx context.Context, ackLevel int64) error {
	db.Lock()
	defer db.Unlock()

	err := db.store.UpdateTaskQueue(ctx, &persistence.UpdateTaskQueueRequest{
		TaskQueueInfo: &persistence.TaskQueueInfo{
			NamespaceID: db.queue.namespaceID,
			Name:        db.queue.name,
			TaskType:    db.queue.taskType,
			RangeID:     db.rangeID,
			AckLevel:    ackLevel,
		},
		PreviousRangeID: db.rangeID,
	})
	if err != nil {
		return db.convertOwnershipError(err)
	}
	db.ackLevel = ackLevel
	return nil
}

// CompleteTasksLessThan deletes acked tasks below the given id.
func (db *taskQueueDB) CompleteTasksLessThan(ctx context.Context, exclusiveMaxTaskID int64, limit int) (int, error) {
	return db.store.CompleteTasksLessThan(ctx, &persistence.CompleteTasksLessThanRequest{
		NamespaceID:        db.queue.namespaceID,
		TaskQueueName:      db.queue.name,
		TaskType:           db.queue.taskType,
		ExclusiveMaxTaskID: exclusiveMaxTaskID,
		Limit:              limit,
	})
}

func (db *taskQueueDB) renewLeaseLocked(ctx context.Context) error {
	err := db.store.UpdateTaskQueue(ctx, &persistence.UpdateTaskQueueRequest{
		TaskQueueInfo: &persistence.TaskQueueInfo{
			NamespaceID: db.queue.namespaceID,
			Name:        db.queue.name,
			TaskType:    db.queue.taskType,
			RangeID:     db.rangeID + 1,
			AckLevel:    db.ackLevel,
		},
		PreviousRangeID: db.rangeID,
	})
	if err != nil {
		return db.convertOwnershipError(err)
	}
	db.rangeID++
	db.nextTaskID = (db.rangeID-1)*rangeSize + 1
	db.maxTaskID = db.rangeID * rangeSize
	return nil
}

// convertOwnershipError maps a lost conditional write to the sentinel the
// queue manager uses to unload itself.
func (db *taskQueueDB) convertOwnershipError(err error) error {
	if err == nil {
		return nil
	}
	var conditionFailed *persistence.ConditionFailedError
	if errors.As(err, &conditionFailed) {
		db.logger.Warn("task queue lease lost",
			tag.WorkflowTaskQueueName(db.queue.name),
			tag.Error(err),
		)
		return errQueueOwnershipLost
	}
	return err
}

func isNotFoundErr(err error) bool {
	var notFound *serviceerror.NotFound
	return errors.As(err, &notFound)
}
