package memory

import (
	"context"

	"github.com/strandhq/strand/common/persistence"
)

type shardStore struct {
	db *db
}

func newShardStore(db *db) persistence.ShardStore {
	return &shardStore{db: db}
}

func (s *shardStore) GetOrCreateShard(
	ctx context.Context,
	request *persistence.GetOrCreateShardRequest,
) (*persistence.GetOrCreateShardResponse, error) {
	s.db.Lock()
	defer s.db.Unlock()

	if shard, ok := s.db.shards[request.ShardID]; ok {
		return &persistence.GetOrCreateShardResponse{ShardInfo: copyShardInfo(shard)}, nil
	}

	if request.InitialShardInfo == nil {
		return nil, &persistence.InvalidPersistenceRequestError{
			Msg: "GetOrCreateShard: missing initial shard info",
		}
	}
	shard := copyShardInfo(request.InitialShardInfo)
	shard.ShardID = request.ShardID
	s.db.shards[request.ShardID] = shard
	return &persistence.GetOrCreateShardResponse{ShardInfo: copyShardInfo(shard)}, nil
}

func (s *shardStore) UpdateShard(
	ctx context.Context,
	request *persistence.UpdateShardRequest,
) error {
	s.db.Lock()
	defer s.db.Unlock()

	shardID := request.ShardInfo.ShardID
	if err := s.db.checkShardRangeID(shardID, request.PreviousRangeID); err != nil {
		return err
	}
	s.db.shards[shardID] = copyShardInfo(request.ShardInfo)
	return nil
}

func (s *shardStore) Close() {}

func copyShardInfo(info *persistence.ShardInfo) *persistence.ShardInfo {
	shardCopy := *info
	return &shardCopy
}
