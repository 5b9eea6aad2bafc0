package shard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/api/history"
	"github.com/strandhq/strand/common/clock"
	"github.com/strandhq/strand/common/dynamicconfig"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/membership"
	"github.com/strandhq/strand/common/metrics"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/persistence/memory"
	"github.com/strandhq/strand/service/history/configs"
)

type testEnv struct {
	controller     *Controller
	shardStore     persistence.ShardStore
	executionStore persistence.ExecutionStore
}

func newTestEnv(t *testing.T, rangeSizeBits uint) *testEnv {
	factory := memory.NewFactory()
	shardStore, err := factory.NewShardStore()
	require.NoError(t, err)
	executionStore, err := factory.NewExecutionStore()
	require.NoError(t, err)

	config := configs.NewConfig(dynamicconfig.NewNoopCollection(), 4)
	config.RangeSizeBits = rangeSizeBits

	controller := NewController(
		config,
		shardStore,
		executionStore,
		membership.NewStaticResolver("127.0.0.1:7234"),
		clock.NewRealTimeSource(),
		metrics.NoopMetricsHandler,
		log.NewNoopLogger(),
	)
	return &testEnv{
		controller:     controller,
		shardStore:     shardStore,
		executionStore: executionStore,
	}
}

func TestAcquireShardBumpsRangeID(t *testing.T) {
	env := newTestEnv(t, 20)

	shard, err := env.controller.GetShardByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), shard.GetRangeID())
	assert.True(t, shard.IsValid())

	// Same shard id returns the already loaded context.
	again, err := env.controller.GetShardByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Same(t, shard, again)
	assert.Equal(t, int64(1), again.GetRangeID())
}

func TestGetShardByIDOutOfRange(t *testing.T) {
	env := newTestEnv(t, 20)

	_, err := env.controller.GetShardByID(context.Background(), 0)
	require.Error(t, err)
	_, err = env.controller.GetShardByID(context.Background(), 5)
	require.Error(t, err)
}

func TestGenerateTaskIDsMonotonicAcrossRenewal(t *testing.T) {
	// Block size of 4 ids forces range renewals mid-stream.
	env := newTestEnv(t, 2)

	shard, err := env.controller.GetShardByID(context.Background(), 1)
	require.NoError(t, err)
	startRangeID := shard.GetRangeID()

	ids, err := shard.GenerateTaskIDs(10)
	require.NoError(t, err)
	require.Len(t, ids, 10)
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}
	assert.Greater(t, shard.GetRangeID(), startRangeID)
}

func TestStolenShardUnloadsOnWrite(t *testing.T) {
	env := newTestEnv(t, 20)

	shard, err := env.controller.GetShardByID(context.Background(), 1)
	require.NoError(t, err)

	// Another host steals the shard by bumping the stored range id.
	stolen := &persistence.ShardInfo{
		ShardID:    1,
		Owner:      "10.0.0.2:7234",
		RangeID:    shard.GetRangeID() + 1,
		UpdateTime: time.Now().UTC(),
	}
	require.NoError(t, env.shardStore.UpdateShard(context.Background(), &persistence.UpdateShardRequest{
		ShardInfo:       stolen,
		PreviousRangeID: shard.GetRangeID(),
	}))

	_, err = shard.CreateWorkflowExecution(context.Background(), &persistence.CreateWorkflowExecutionRequest{
		NamespaceID: "ns",
		WorkflowID:  "wf",
		RunID:       "run-1",
		RequestID:   "req-1",
		StartTime:   time.Now().UTC(),
		Events: []*history.HistoryEvent{
			{
				EventID:   1,
				EventTime: time.Now().UTC(),
				EventType: enums.EventTypeWorkflowExecutionStarted,
			},
		},
	})
	var ownershipLost *persistence.ShardOwnershipLostError
	require.ErrorAs(t, err, &ownershipLost)
	assert.False(t, shard.IsValid())

	// The next request reacquires with a fresh, higher range.
	reacquired, err := env.controller.GetShardByID(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, reacquired.IsValid())
	assert.Greater(t, reacquired.GetRangeID(), stolen.RangeID)
}

func TestUnloadedShardRejectsTaskIDGeneration(t *testing.T) {
	env := newTestEnv(t, 20)

	shard, err := env.controller.GetShardByID(context.Background(), 2)
	require.NoError(t, err)
	shard.Unload()

	_, err = shard.GenerateTaskID()
	var ownershipLost *persistence.ShardOwnershipLostError
	require.ErrorAs(t, err, &ownershipLost)
}
