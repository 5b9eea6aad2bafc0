package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/strandhq/strand/common/persistence"
)

// txExecutor runs fn inside a transaction, translating commit and rollback
// plumbing into persistence errors.
func txExecutor(ctx context.Context, db *sqlx.DB, operation string, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return convertError(operation, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return convertError(operation, err)
	}
	return nil
}

// convertError maps driver errors onto the persistence error taxonomy.
func convertError(operation string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return &persistence.TimeoutError{Msg: fmt.Sprintf("%v timed out: %v", operation, err)}
	default:
		return fmt.Errorf("%v failed: %w", operation, err)
	}
}

// lockShardRangeID reads the shard's fencing token inside the transaction
// and rejects the write when the caller's view is stale.
func lockShardRangeID(ctx context.Context, tx *sqlx.Tx, shardID int32, rangeID int64) error {
	var storedRangeID int64
	query := tx.Rebind(`SELECT range_id FROM shards WHERE shard_id = ?`)
	err := tx.GetContext(ctx, &storedRangeID, query, shardID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return &persistence.ShardOwnershipLostError{
			ShardID: shardID,
			Msg:     fmt.Sprintf("shard %v does not exist", shardID),
		}
	case err != nil:
		return convertError("lock shard", err)
	}

	if storedRangeID != rangeID {
		return &persistence.ShardOwnershipLostError{
			ShardID: shardID,
			Msg:     fmt.Sprintf("request range id %v, current %v", rangeID, storedRangeID),
		}
	}
	return nil
}
