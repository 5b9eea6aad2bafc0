package strand

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/common/clock"
	"github.com/strandhq/strand/common/config"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/persistence/memory"
)

func shardCountConfig(shards int32) *config.Config {
	return &config.Config{
		Persistence: config.Persistence{
			NumHistoryShards: shards,
		},
	}
}

func TestClusterMetadataFixedAtFirstBoot(t *testing.T) {
	metadataStore, err := memory.NewFactory().NewMetadataStore()
	require.NoError(t, err)

	timeSource := clock.NewEventTimeSource()
	timeSource.Update(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	logger := log.NewNoopLogger()
	ctx := context.Background()

	// First boot records the shard count.
	require.NoError(t, initializeClusterMetadata(ctx, metadataStore, shardCountConfig(4), timeSource, logger))

	metadata, err := metadataStore.GetClusterMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(4), metadata.HistoryShardCount)
	assert.Equal(t, timeSource.Now(), metadata.InitializedTime)

	// Same count boots fine; a different one is refused.
	require.NoError(t, initializeClusterMetadata(ctx, metadataStore, shardCountConfig(4), timeSource, logger))
	err = initializeClusterMetadata(ctx, metadataStore, shardCountConfig(8), timeSource, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fixed at first boot")
}
