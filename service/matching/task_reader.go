package matching

import (
	"context"
	"errors"
	"time"

	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/log/tag"
	"github.com/strandhq/strand/common/metrics"
)

const readerThrottleRetryDelay = time.Second

// taskReader pumps the durable backlog into the matcher in task id order. It
// wakes on writer notifications and otherwise idles; an empty read advances
// the read level past the scanned gap so restarts do not rescan it.
type taskReader struct {
	tqm       *taskQueueManager
	logger    log.Logger
	shutdownC chan struct{}
}

func newTaskReader(tqm *taskQueueManager) *taskReader {
	return &taskReader{
		tqm:       tqm,
		logger:    tqm.logger,
		shutdownC: tqm.shutdownC,
	}
}

func (r *taskReader) pump() {
	defer r.tqm.shutdownW.Done()

	for {
		select {
		case <-r.shutdownC:
			return
		case <-r.tqm.writer.notifyC:
		}

		if err := r.drainBacklog(); err != nil {
			if errors.Is(err, errQueueOwnershipLost) {
				r.tqm.signalOwnershipLost()
				return
			}
			r.logger.Error("task reader failed to drain backlog", tag.Error(err))
			select {
			case <-r.shutdownC:
				return
			case <-time.After(readerThrottleRetryDelay):
				// Renotify so the next iteration retries.
				select {
				case r.tqm.writer.notifyC <- struct{}{}:
				default:
				}
			}
		}
	}
}

// drainBacklog reads and dispatches every backlog task past the read level.
func (r *taskReader) drainBacklog() error {
	for {
		readLevel := r.tqm.ackManager.getReadLevel()
		maxReadLevel := r.tqm.writer.maxReadLevel()
		if readLevel+1 >= maxReadLevel {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
		response, err := r.tqm.db.GetTasks(ctx, readLevel+1, maxReadLevel, r.tqm.config.GetTasksBatchSize())
		cancel()
		if err != nil {
			return err
		}

		if len(response.Tasks) == 0 {
			r.tqm.ackManager.setReadLevelAfterGap(maxReadLevel - 1)
			return nil
		}

		for _, info := range response.Tasks {
			r.tqm.ackManager.addTask(info.TaskID)
			metrics.TaskBacklogDepthGauge.With(r.tqm.metricsHandler).Record(float64(r.tqm.ackManager.backlogCount()))
			if err := r.tqm.dispatchTask(newInternalTask(info)); err != nil {
				return err
			}
		}
	}
}
