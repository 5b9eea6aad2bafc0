package common

const (
	// FirstEventID is the id of the first event in a workflow history.
	FirstEventID int64 = 1
	// EmptyEventID is the id assigned when no event is referenced.
	EmptyEventID int64 = 0
	// EmptyVersion is the version of a history with no events.
	EmptyVersion int64 = 0
	// EmptyEventTaskID is the task id assigned when no task is referenced.
	EmptyEventTaskID int64 = 0
)

const (
	// DaemonStatusInitialized is the state of a daemon before Start.
	DaemonStatusInitialized int32 = iota
	// DaemonStatusStarted is the state of a daemon after Start.
	DaemonStatusStarted
	// DaemonStatusStopped is the state of a daemon after Stop.
	DaemonStatusStopped
)

type (
	// Daemon is the base interface for a background component with a
	// start/stop lifecycle. Start and Stop are idempotent.
	Daemon interface {
		Start()
		Stop()
	}
)
