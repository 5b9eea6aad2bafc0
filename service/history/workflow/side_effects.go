package workflow

import (
	"strconv"
	"time"

	"github.com/strandhq/strand/api/enums"
)

// TimerTaskKind names what a timer fires.
type TimerTaskKind int32

const (
	TimerTaskKindUnspecified TimerTaskKind = iota
	TimerTaskKindUserTimer
	TimerTaskKindWorkflowRunTimeout
	TimerTaskKindWorkflowTaskTimeout
	TimerTaskKindWorkflowTaskBackoff
	TimerTaskKindActivityScheduleToClose
	TimerTaskKindActivityScheduleToStart
	TimerTaskKindActivityStartToClose
	TimerTaskKindActivityHeartbeat
	TimerTaskKindActivityRetry
)

type (
	// TransferTask is a matching task to enqueue, produced by applying an
	// event.
	TransferTask struct {
		TaskType         enums.TaskType
		TaskQueue        string
		ScheduledEventID int64
	}

	// TimerTask is a deadline to register with the shard's timer queue.
	// FireTime derives from event times only, so replay regenerates the same
	// deadlines.
	TimerTask struct {
		Kind     TimerTaskKind
		FireTime time.Time
		// EventID is the scheduled/started event the timer guards, when any.
		EventID int64
		TimerID string
		Attempt int32
	}

	// SideEffects accumulates the tasks and timers an event application
	// produced. Replay recomputes them deterministically; delivery is
	// at-least-once, with redelivery covering effects lost to a crash.
	SideEffects struct {
		Tasks  []TransferTask
		Timers []TimerTask
	}
)

func (se *SideEffects) addTask(task TransferTask) {
	se.Tasks = append(se.Tasks, task)
}

func (se *SideEffects) addTimer(timer TimerTask) {
	se.Timers = append(se.Timers, timer)
}

func (se *SideEffects) append(other *SideEffects) {
	se.Tasks = append(se.Tasks, other.Tasks...)
	se.Timers = append(se.Timers, other.Timers...)
}

func formatEventID(eventID int64) string {
	return strconv.FormatInt(eventID, 10)
}
