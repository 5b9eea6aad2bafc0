package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/strandhq/strand/common/persistence"
)

type (
	shardStore struct {
		db *sqlx.DB
	}

	shardRow struct {
		ShardID    int32     `db:"shard_id"`
		Owner      string    `db:"owner"`
		RangeID    int64     `db:"range_id"`
		UpdateTime time.Time `db:"update_time"`
	}
)

func newShardStore(db *sqlx.DB) persistence.ShardStore {
	return &shardStore{db: db}
}

func (s *shardStore) GetOrCreateShard(
	ctx context.Context,
	request *persistence.GetOrCreateShardRequest,
) (*persistence.GetOrCreateShardResponse, error) {
	row, err := s.getShard(ctx, request.ShardID)
	if err == nil {
		return &persistence.GetOrCreateShardResponse{ShardInfo: rowToShardInfo(row)}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, convertError("GetOrCreateShard", err)
	}

	if request.InitialShardInfo == nil {
		return nil, &persistence.InvalidPersistenceRequestError{
			Msg: "GetOrCreateShard: missing initial shard info",
		}
	}

	info := request.InitialShardInfo
	insert := s.db.Rebind(`
		INSERT INTO shards (shard_id, owner, range_id, update_time)
		VALUES (?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, insert,
		request.ShardID, info.Owner, info.RangeID, info.UpdateTime,
	); err != nil {
		// Lost a creation race: the other writer's row wins.
		row, getErr := s.getShard(ctx, request.ShardID)
		if getErr != nil {
			return nil, convertError("GetOrCreateShard", err)
		}
		return &persistence.GetOrCreateShardResponse{ShardInfo: rowToShardInfo(row)}, nil
	}

	created := *info
	created.ShardID = request.ShardID
	return &persistence.GetOrCreateShardResponse{ShardInfo: &created}, nil
}

func (s *shardStore) UpdateShard(
	ctx context.Context,
	request *persistence.UpdateShardRequest,
) error {
	info := request.ShardInfo
	update := s.db.Rebind(`
		UPDATE shards
		SET owner = ?, range_id = ?, update_time = ?
		WHERE shard_id = ? AND range_id = ?`)
	result, err := s.db.ExecContext(ctx, update,
		info.Owner, info.RangeID, info.UpdateTime,
		info.ShardID, request.PreviousRangeID,
	)
	if err != nil {
		return convertError("UpdateShard", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return convertError("UpdateShard", err)
	}
	if rows == 0 {
		return &persistence.ShardOwnershipLostError{
			ShardID: info.ShardID,
			Msg:     fmt.Sprintf("failed to update shard, previous range id %v", request.PreviousRangeID),
		}
	}
	return nil
}

func (s *shardStore) Close() {}

func (s *shardStore) getShard(ctx context.Context, shardID int32) (*shardRow, error) {
	row := &shardRow{}
	query := s.db.Rebind(`SELECT shard_id, owner, range_id, update_time FROM shards WHERE shard_id = ?`)
	if err := s.db.GetContext(ctx, row, query, shardID); err != nil {
		return nil, err
	}
	return row, nil
}

func rowToShardInfo(row *shardRow) *persistence.ShardInfo {
	return &persistence.ShardInfo{
		ShardID:    row.ShardID,
		Owner:      row.Owner,
		RangeID:    row.RangeID,
		UpdateTime: row.UpdateTime,
	}
}
