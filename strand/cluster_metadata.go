package strand

import (
	"context"
	"errors"
	"fmt"

	"github.com/strandhq/strand/common/clock"
	"github.com/strandhq/strand/common/config"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/log/tag"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/serviceerror"
)

const clusterName = "active"

// initializeClusterMetadata records the shard count on first boot and refuses
// to start against a datastore initialized with a different one. Shard
// routing hashes workflow ids modulo the shard count, so changing it would
// scatter existing executions across the wrong shards.
func initializeClusterMetadata(
	ctx context.Context,
	metadataStore persistence.MetadataStore,
	cfg *config.Config,
	timeSource clock.TimeSource,
	logger log.Logger,
) error {
	metadata, err := metadataStore.GetClusterMetadata(ctx)
	if err != nil {
		var notFound *serviceerror.NotFound
		if !errors.As(err, &notFound) {
			return fmt.Errorf("unable to read cluster metadata: %w", err)
		}
		metadata = &persistence.ClusterMetadata{
			ClusterName:       clusterName,
			HistoryShardCount: cfg.Persistence.NumHistoryShards,
			InitializedTime:   timeSource.Now(),
		}
		if err := metadataStore.SaveClusterMetadata(ctx, metadata); err != nil {
			return fmt.Errorf("unable to initialize cluster metadata: %w", err)
		}
		logger.Info("cluster metadata initialized",
			tag.Name(metadata.ClusterName),
			tag.Number(int64(metadata.HistoryShardCount)),
		)
		return nil
	}

	if metadata.HistoryShardCount != cfg.Persistence.NumHistoryShards {
		return fmt.Errorf(
			"datastore was initialized with %v history shards, config asks for %v; the shard count is fixed at first boot",
			metadata.HistoryShardCount,
			cfg.Persistence.NumHistoryShards,
		)
	}
	return nil
}
