package matching

import (
	"fmt"

	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/common/persistence"
)

type (
	// queueKey identifies one task queue within the engine.
	queueKey struct {
		namespaceID string
		name        string
		taskType    enums.TaskType
	}

	// internalTask is a backlog task in flight through the matcher. attempt is
	// the current delivery attempt; it starts at the stored attempt and
	// increments on every redelivery.
	internalTask struct {
		info    *persistence.TaskInfo
		attempt int32
	}

	// LeaseToken identifies one outstanding task lease. Acks and nacks carry
	// it back; a token from a superseded lease is ignored.
	LeaseToken struct {
		NamespaceID string         `json:"namespaceId"`
		TaskQueue   string         `json:"taskQueue"`
		TaskType    enums.TaskType `json:"taskType"`
		TaskID      int64          `json:"taskId"`
		LeaseID     int64          `json:"leaseId"`
	}
)

// dlqSuffix marks the dead-letter sibling of a task queue.
const dlqSuffix = "/dlq"

func (k queueKey) String() string {
	return fmt.Sprintf("%v/%v/%v", k.namespaceID, k.name, k.taskType)
}

func (k queueKey) isDLQ() bool {
	return len(k.name) >= len(dlqSuffix) && k.name[len(k.name)-len(dlqSuffix):] == dlqSuffix
}

func (k queueKey) dlq() queueKey {
	if k.isDLQ() {
		return k
	}
	return queueKey{
		namespaceID: k.namespaceID,
		name:        k.name + dlqSuffix,
		taskType:    k.taskType,
	}
}

func newInternalTask(info *persistence.TaskInfo) *internalTask {
	attempt := info.Attempt
	if attempt < 1 {
		attempt = 1
	}
	return &internalTask{info: info, attempt: attempt}
}
