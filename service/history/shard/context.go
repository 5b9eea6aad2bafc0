package shard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/strandhq/strand/common/clock"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/log/tag"
	"github.com/strandhq/strand/common/metrics"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/serviceerror"
	"github.com/strandhq/strand/service/history/configs"
)

const shardIOTimeout = 5 * time.Second

type (
	// Context is a loaded, owned shard. All execution store writes for
	// workflows on the shard go through it so they carry the current RangeID.
	Context interface {
		GetShardID() int32
		GetRangeID() int64
		GetOwner() string
		GetConfig() *configs.Config
		GetLogger() log.Logger
		GetMetricsHandler() metrics.Handler
		GetTimeSource() clock.TimeSource

		// GenerateTaskID returns the next task id from the shard's leased
		// block, renewing the range when the block is exhausted.
		GenerateTaskID() (int64, error)
		GenerateTaskIDs(number int) ([]int64, error)

		CreateWorkflowExecution(ctx context.Context, request *persistence.CreateWorkflowExecutionRequest) (*persistence.CreateWorkflowExecutionResponse, error)
		AppendHistoryEvents(ctx context.Context, request *persistence.AppendHistoryEventsRequest) (*persistence.AppendHistoryEventsResponse, error)
		GetCurrentExecution(ctx context.Context, request *persistence.GetCurrentExecutionRequest) (*persistence.GetCurrentExecutionResponse, error)
		ReadHistoryEvents(ctx context.Context, request *persistence.ReadHistoryEventsRequest) (*persistence.ReadHistoryEventsResponse, error)
		ListCurrentExecutions(ctx context.Context, request *persistence.ListCurrentExecutionsRequest) (*persistence.ListCurrentExecutionsResponse, error)

		// IsValid reports whether the shard still believes it holds the lease.
		IsValid() bool

		// Unload invalidates the context and removes it from its controller.
		Unload()
	}

	contextImpl struct {
		shardID        int32
		owner          string
		config         *configs.Config
		shardStore     persistence.ShardStore
		executionStore persistence.ExecutionStore
		timeSource     clock.TimeSource
		metricsHandler metrics.Handler
		logger         log.Logger

		// closeCallback detaches the context from the controller; set by the
		// controller at load time.
		closeCallback func(*contextImpl)

		mu                    sync.Mutex
		valid                 bool
		shardInfo             *persistence.ShardInfo
		taskSequenceNumber    int64
		maxTaskSequenceNumber int64
		lastUpdated           time.Time
	}
)

func newContext(
	shardID int32,
	owner string,
	config *configs.Config,
	shardStore persistence.ShardStore,
	executionStore persistence.ExecutionStore,
	timeSource clock.TimeSource,
	metricsHandler metrics.Handler,
	logger log.Logger,
	closeCallback func(*contextImpl),
) *contextImpl {
	return &contextImpl{
		shardID:        shardID,
		owner:          owner,
		config:         config,
		shardStore:     shardStore,
		executionStore: executionStore,
		timeSource:     timeSource,
		metricsHandler: metricsHandler,
		logger:         log.With(logger, tag.ShardID(shardID)),
		closeCallback:  closeCallback,
	}
}

// acquire claims the shard by bumping its RangeID. Losing the conditional
// update means another host holds the lease.
func (s *contextImpl) acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	response, err := s.shardStore.GetOrCreateShard(ctx, &persistence.GetOrCreateShardRequest{
		ShardID: s.shardID,
		InitialShardInfo: &persistence.ShardInfo{
			ShardID:    s.shardID,
			Owner:      s.owner,
			RangeID:    0,
			UpdateTime: s.timeSource.Now(),
		},
	})
	if err != nil {
		return err
	}
	s.shardInfo = response.ShardInfo
	return s.renewRangeLocked(ctx)
}

// renewRangeLocked bumps the RangeID and carves out a fresh task id block.
// Every conditional write issued under the old range is fenced out once this
// succeeds.
func (s *contextImpl) renewRangeLocked(ctx context.Context) error {
	updatedInfo := *s.shardInfo
	updatedInfo.RangeID++
	updatedInfo.Owner = s.owner
	updatedInfo.UpdateTime = s.timeSource.Now()

	err := s.shardStore.UpdateShard(ctx, &persistence.UpdateShardRequest{
		ShardInfo:       &updatedInfo,
		PreviousRangeID: s.shardInfo.RangeID,
	})
	if err != nil {
		var ownershipLost *persistence.ShardOwnershipLostError
		if errors.As(err, &ownershipLost) {
			s.logger.Warn("failed to acquire shard, ownership lost",
				tag.ShardRangeID(updatedInfo.RangeID),
				tag.PreviousShardRangeID(s.shardInfo.RangeID),
			)
			s.invalidateLocked()
		}
		return err
	}

	s.shardInfo = &updatedInfo
	s.taskSequenceNumber = updatedInfo.RangeID << s.config.RangeSizeBits
	s.maxTaskSequenceNumber = (updatedInfo.RangeID + 1) << s.config.RangeSizeBits
	s.lastUpdated = s.timeSource.Now()
	s.valid = true

	metrics.ShardInfoRangeUpdatedCounter.With(s.metricsHandler).Record(1)
	s.logger.Info("shard range updated", tag.ShardRangeID(updatedInfo.RangeID))
	return nil
}

func (s *contextImpl) GetShardID() int32 {
	return s.shardID
}

func (s *contextImpl) GetRangeID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shardInfo.RangeID
}

func (s *contextImpl) GetOwner() string {
	return s.owner
}

func (s *contextImpl) GetConfig() *configs.Config {
	return s.config
}

func (s *contextImpl) GetLogger() log.Logger {
	return s.logger
}

func (s *contextImpl) GetMetricsHandler() metrics.Handler {
	return s.metricsHandler
}

func (s *contextImpl) GetTimeSource() clock.TimeSource {
	return s.timeSource
}

func (s *contextImpl) GenerateTaskID() (int64, error) {
	ids, err := s.GenerateTaskIDs(1)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func (s *contextImpl) GenerateTaskIDs(number int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.errIfInvalidLocked(); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, number)
	for len(ids) < number {
		if s.taskSequenceNumber >= s.maxTaskSequenceNumber {
			ctx, cancel := context.WithTimeout(context.Background(), shardIOTimeout)
			err := s.renewRangeLocked(ctx)
			cancel()
			if err != nil {
				return nil, err
			}
		}
		ids = append(ids, s.taskSequenceNumber)
		s.taskSequenceNumber++
	}
	return ids, nil
}

func (s *contextImpl) CreateWorkflowExecution(
	ctx context.Context,
	request *persistence.CreateWorkflowExecutionRequest,
) (*persistence.CreateWorkflowExecutionResponse, error) {
	rangeID, err := s.currentRangeID()
	if err != nil {
		return nil, err
	}
	request.ShardID = s.shardID
	request.RangeID = rangeID

	response, err := s.executionStore.CreateWorkflowExecution(ctx, request)
	return response, s.handleWriteError(err)
}

func (s *contextImpl) AppendHistoryEvents(
	ctx context.Context,
	request *persistence.AppendHistoryEventsRequest,
) (*persistence.AppendHistoryEventsResponse, error) {
	rangeID, err := s.currentRangeID()
	if err != nil {
		return nil, err
	}
	request.ShardID = s.shardID
	request.RangeID = rangeID

	response, err := s.executionStore.AppendHistoryEvents(ctx, request)
	return response, s.handleWriteError(err)
}

func (s *contextImpl) GetCurrentExecution(
	ctx context.Context,
	request *persistence.GetCurrentExecutionRequest,
) (*persistence.GetCurrentExecutionResponse, error) {
	return s.executionStore.GetCurrentExecution(ctx, request)
}

func (s *contextImpl) ReadHistoryEvents(
	ctx context.Context,
	request *persistence.ReadHistoryEventsRequest,
) (*persistence.ReadHistoryEventsResponse, error) {
	return s.executionStore.ReadHistoryEvents(ctx, request)
}

func (s *contextImpl) ListCurrentExecutions(
	ctx context.Context,
	request *persistence.ListCurrentExecutionsRequest,
) (*persistence.ListCurrentExecutionsResponse, error) {
	return s.executionStore.ListCurrentExecutions(ctx, request)
}

func (s *contextImpl) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid
}

func (s *contextImpl) Unload() {
	s.mu.Lock()
	wasValid := s.valid
	s.invalidateLocked()
	s.mu.Unlock()

	if wasValid && s.closeCallback != nil {
		s.closeCallback(s)
	}
}

func (s *contextImpl) currentRangeID() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errIfInvalidLocked(); err != nil {
		return 0, err
	}
	return s.shardInfo.RangeID, nil
}

func (s *contextImpl) errIfInvalidLocked() error {
	if !s.valid {
		return &persistence.ShardOwnershipLostError{
			ShardID: s.shardID,
			Msg:     "shard context is not acquired",
		}
	}
	return nil
}

// handleWriteError unloads the shard when a write was fenced out. The caller
// sees the original error; the next request for this shard reacquires it.
func (s *contextImpl) handleWriteError(err error) error {
	if err == nil {
		return nil
	}
	var ownershipLost *persistence.ShardOwnershipLostError
	if errors.As(err, &ownershipLost) {
		s.logger.Warn("shard ownership lost on write", tag.Error(err))
		s.Unload()
	}
	return err
}

func (s *contextImpl) invalidateLocked() {
	s.valid = false
}

// OwnershipLostToServiceError translates a store-level ownership loss into
// the client-facing error carrying the new owner when known.
func OwnershipLostToServiceError(err *persistence.ShardOwnershipLostError, owner string) error {
	return serviceerror.NewShardOwnershipLost(owner, err.Error())
}
