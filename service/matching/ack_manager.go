package matching

import (
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	godsutils "github.com/emirpasic/gods/utils"

	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/log/tag"
)

// ackManager converts out-of-order acks into ack level movement. Tasks enter
// in increasing task id order as the reader hands them to the matcher; the
// ack level is the highest id below which everything is acked.
type ackManager struct {
	sync.RWMutex
	outstandingTasks *treemap.Map // taskID -> acked
	readLevel        int64
	ackLevel         int64
	logger           log.Logger
}

func newAckManager(ackLevel int64, logger log.Logger) *ackManager {
	return &ackManager{
		outstandingTasks: treemap.NewWith(godsutils.Int64Comparator),
		readLevel:        ackLevel,
		ackLevel:         ackLevel,
		logger:           logger,
	}
}

// addTask registers a task as in flight and moves the read level to it. Tasks
// must arrive in increasing id order.
func (m *ackManager) addTask(taskID int64) {
	m.Lock()
	defer m.Unlock()

	if taskID <= m.readLevel {
		m.logger.Error("task id below read level", tag.TaskID(taskID), tag.ReadLevel(m.readLevel))
		return
	}
	m.readLevel = taskID
	m.outstandingTasks.Put(taskID, false)
}

func (m *ackManager) getReadLevel() int64 {
	m.RLock()
	defer m.RUnlock()
	return m.readLevel
}

// setReadLevelAfterGap advances the read level past a task id range that
// turned out to be empty, moving the ack level along when nothing was
// outstanding.
func (m *ackManager) setReadLevelAfterGap(newReadLevel int64) {
	m.Lock()
	defer m.Unlock()
	if m.ackLevel == m.readLevel {
		m.ackLevel = newReadLevel
	}
	m.readLevel = newReadLevel
}

func (m *ackManager) getAckLevel() int64 {
	m.RLock()
	defer m.RUnlock()
	return m.ackLevel
}

// completeTask marks a task acked and advances the ack level as far as the
// prefix of acked tasks reaches.
func (m *ackManager) completeTask(taskID int64) int64 {
	m.Lock()
	defer m.Unlock()

	acked, found := m.outstandingTasks.Get(taskID)
	if !found || acked.(bool) {
		return m.ackLevel
	}
	m.outstandingTasks.Put(taskID, true)

	for {
		minKey, minAcked := m.outstandingTasks.Min()
		if minKey == nil || !minAcked.(bool) {
			break
		}
		m.ackLevel = minKey.(int64)
		m.outstandingTasks.Remove(minKey)
	}
	return m.ackLevel
}

// backlogCount is the number of unacked tasks handed to the matcher.
func (m *ackManager) backlogCount() int {
	m.RLock()
	defer m.RUnlock()
	count := 0
	for _, acked := range m.outstandingTasks.Values() {
		if !acked.(bool) {
			count++
		}
	}
	return count
}
