package memory

import (
	"fmt"
	"sync"

	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/api/history"
	"github.com/strandhq/strand/common/persistence"
)

type (
	// db is the shared in-memory state behind all stores of one factory.
	// Sharing matters: execution and task writes must observe shard and
	// queue fencing tokens atomically with the data they guard.
	db struct {
		sync.Mutex

		shards    map[int32]*persistence.ShardInfo
		current   map[executionKey]*persistence.CurrentExecution
		histories map[historyKey][]*history.HistoryEvent

		queues map[queueKey]*persistence.TaskQueueInfo
		// tasks are kept sorted by TaskID per queue.
		tasks map[queueKey][]*persistence.TaskInfo

		namespacesByID   map[string]*persistence.NamespaceDetail
		namespacesByName map[string]*persistence.NamespaceDetail

		clusterMetadata *persistence.ClusterMetadata
	}

	executionKey struct {
		namespaceID string
		workflowID  string
	}

	historyKey struct {
		namespaceID string
		workflowID  string
		runID       string
	}

	queueKey struct {
		namespaceID string
		name        string
		taskType    enums.TaskType
	}
)

func newDB() *db {
	return &db{
		shards:           make(map[int32]*persistence.ShardInfo),
		current:          make(map[executionKey]*persistence.CurrentExecution),
		histories:        make(map[historyKey][]*history.HistoryEvent),
		queues:           make(map[queueKey]*persistence.TaskQueueInfo),
		tasks:            make(map[queueKey][]*persistence.TaskInfo),
		namespacesByID:   make(map[string]*persistence.NamespaceDetail),
		namespacesByName: make(map[string]*persistence.NamespaceDetail),
	}
}

// checkShardRangeID must be called with the db lock held.
func (d *db) checkShardRangeID(shardID int32, rangeID int64) error {
	shard, ok := d.shards[shardID]
	if !ok {
		return &persistence.ShardOwnershipLostError{
			ShardID: shardID,
			Msg:     fmt.Sprintf("shard %v does not exist", shardID),
		}
	}
	if shard.RangeID != rangeID {
		return &persistence.ShardOwnershipLostError{
			ShardID: shardID,
			Msg:     fmt.Sprintf("request range id %v, current %v", rangeID, shard.RangeID),
		}
	}
	return nil
}
