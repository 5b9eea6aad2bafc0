package sql

import (
	"context"
	gosql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/serviceerror"
)

type (
	taskStore struct {
		db *sqlx.DB
	}

	taskQueueRow struct {
		NamespaceID string    `db:"namespace_id"`
		Name        string    `db:"name"`
		TaskType    int32     `db:"task_type"`
		Kind        int32     `db:"kind"`
		RangeID     int64     `db:"range_id"`
		AckLevel    int64     `db:"ack_level"`
		UpdateTime  time.Time `db:"update_time"`
	}

	taskRow struct {
		TaskID       int64  `db:"task_id"`
		Data         []byte `db:"data"`
		DataEncoding string `db:"data_encoding"`
	}
)

func newTaskStore(db *sqlx.DB) persistence.TaskStore {
	return &taskStore{db: db}
}

func (s *taskStore) CreateTaskQueue(
	ctx context.Context,
	request *persistence.CreateTaskQueueRequest,
) error {
	info := request.TaskQueueInfo
	insert := s.db.Rebind(`
		INSERT INTO task_queues (namespace_id, name, task_type, kind, range_id, ack_level, update_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, insert,
		info.NamespaceID, info.Name, int32(info.TaskType), int32(info.Kind),
		info.RangeID, info.AckLevel, info.UpdateTime,
	); err != nil {
		return &persistence.ConditionFailedError{
			Msg: fmt.Sprintf("task queue %v already exists: %v", info.Name, err),
		}
	}
	return nil
}

func (s *taskStore) GetTaskQueue(
	ctx context.Context,
	request *persistence.GetTaskQueueRequest,
) (*persistence.GetTaskQueueResponse, error) {
	row := &taskQueueRow{}
	query := s.db.Rebind(`
		SELECT namespace_id, name, task_type, kind, range_id, ack_level, update_time
		FROM task_queues
		WHERE namespace_id = ? AND name = ? AND task_type = ?`)
	err := s.db.GetContext(ctx, row, query, request.NamespaceID, request.Name, int32(request.TaskType))
	switch {
	case errors.Is(err, gosql.ErrNoRows):
		return nil, serviceerror.NewNotFoundf("task queue not found: %v", request.Name)
	case err != nil:
		return nil, convertError("GetTaskQueue", err)
	}
	return &persistence.GetTaskQueueResponse{
		TaskQueueInfo: &persistence.TaskQueueInfo{
			NamespaceID: row.NamespaceID,
			Name:        row.Name,
			TaskType:    enums.TaskType(row.TaskType),
			Kind:        enums.TaskQueueKind(row.Kind),
			RangeID:     row.RangeID,
			AckLevel:    row.AckLevel,
			UpdateTime:  row.UpdateTime,
		},
	}, nil
}

func (s *taskStore) UpdateTaskQueue(
	ctx context.Context,
	request *persistence.UpdateTaskQueueRequest,
) error {
	info := request.TaskQueueInfo
	update := s.db.Rebind(`
		UPDATE task_queues
		SET kind = ?, range_id = ?, ack_level = ?, update_time = ?
		WHERE namespace_id = ? AND name = ? AND task_type = ? AND range_id = ?`)
	result, err := s.db.ExecContext(ctx, update,
		int32(info.Kind), info.RangeID, info.AckLevel, info.UpdateTime,
		info.NamespaceID, info.Name, int32(info.TaskType), request.PreviousRangeID,
	)
	if err != nil {
		return convertError("UpdateTaskQueue", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return convertError("UpdateTaskQueue", err)
	}
	if rows == 0 {
		return &persistence.ConditionFailedError{
			Msg: fmt.Sprintf("task queue %v update failed, previous range id %v", info.Name, request.PreviousRangeID),
		}
	}
	return nil
}

func (s *taskStore) CreateTasks(
	ctx context.Context,
	request *persistence.CreateTasksRequest,
) error {
	return txExecutor(ctx, s.db, "CreateTasks", func(tx *sqlx.Tx) error {
		var storedRangeID int64
		query := tx.Rebind(`
			SELECT range_id FROM task_queues
			WHERE namespace_id = ? AND name = ? AND task_type = ?`)
		err := tx.GetContext(ctx, &storedRangeID, query,
			request.NamespaceID, request.Name, int32(request.TaskType))
		switch {
		case errors.Is(err, gosql.ErrNoRows):
			return serviceerror.NewNotFoundf("task queue not found: %v", request.Name)
		case err != nil:
			return convertError("CreateTasks", err)
		}
		if storedRangeID != request.RangeID {
			return &persistence.ConditionFailedError{
				Msg: fmt.Sprintf("task queue %v range id %v, expected %v", request.Name, storedRangeID, request.RangeID),
			}
		}

		insert := tx.Rebind(`
			INSERT INTO tasks (namespace_id, queue_name, task_type, task_id, data, data_encoding)
			VALUES (?, ?, ?, ?, ?, ?)`)
		for _, task := range request.Tasks {
			data, err := json.Marshal(task)
			if err != nil {
				return serviceerror.NewInternalf("unable to serialize task: %v", err)
			}
			if _, err := tx.ExecContext(ctx, insert,
				request.NamespaceID, request.Name, int32(request.TaskType), task.TaskID, data, "json",
			); err != nil {
				return convertError("CreateTasks", err)
			}
		}
		return nil
	})
}

func (s *taskStore) GetTasks(
	ctx context.Context,
	request *persistence.GetTasksRequest,
) (*persistence.GetTasksResponse, error) {
	pageSize := request.PageSize
	if pageSize <= 0 {
		pageSize = sqlDefaultPageSize
	}

	var rows []taskRow
	query := s.db.Rebind(`
		SELECT task_id, data, data_encoding FROM tasks
		WHERE namespace_id = ? AND queue_name = ? AND task_type = ? AND task_id >= ? AND task_id < ?
		ORDER BY task_id ASC
		LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, query,
		request.NamespaceID, request.Name, int32(request.TaskType),
		request.InclusiveMinTaskID, request.ExclusiveMaxTaskID, pageSize,
	); err != nil {
		return nil, convertError("GetTasks", err)
	}

	tasks := make([]*persistence.TaskInfo, 0, len(rows))
	for _, row := range rows {
		task := &persistence.TaskInfo{}
		if err := json.Unmarshal(row.Data, task); err != nil {
			return nil, &persistence.DataCorruptionError{
				Msg: fmt.Sprintf("task %v on queue %v: %v", row.TaskID, request.Name, err),
			}
		}
		tasks = append(tasks, task)
	}
	return &persistence.GetTasksResponse{Tasks: tasks}, nil
}

func (s *taskStore) CompleteTasksLessThan(
	ctx context.Context,
	request *persistence.CompleteTasksLessThanRequest,
) (int, error) {
	limit := request.Limit
	if limit <= 0 {
		limit = sqlDefaultPageSize
	}

	// Subquery keeps the delete bounded without relying on driver support
	// for DELETE ... LIMIT.
	query := s.db.Rebind(`
		DELETE FROM tasks
		WHERE namespace_id = ? AND queue_name = ? AND task_type = ? AND task_id IN (
			SELECT task_id FROM tasks
			WHERE namespace_id = ? AND queue_name = ? AND task_type = ? AND task_id < ?
			ORDER BY task_id ASC
			LIMIT ?
		)`)
	result, err := s.db.ExecContext(ctx, query,
		request.NamespaceID, request.TaskQueueName, int32(request.TaskType),
		request.NamespaceID, request.TaskQueueName, int32(request.TaskType),
		request.ExclusiveMaxTaskID, limit,
	)
	if err != nil {
		return 0, convertError("CompleteTasksLessThan", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, convertError("CompleteTasksLessThan", err)
	}
	return int(rows), nil
}

func (s *taskStore) DeleteTaskQueue(
	ctx context.Context,
	request *persistence.DeleteTaskQueueRequest,
) error {
	return txExecutor(ctx, s.db, "DeleteTaskQueue", func(tx *sqlx.Tx) error {
		deleteTasks := tx.Rebind(`
			DELETE FROM tasks WHERE namespace_id = ? AND queue_name = ? AND task_type = ?`)
		if _, err := tx.ExecContext(ctx, deleteTasks,
			request.NamespaceID, request.Name, int32(request.TaskType),
		); err != nil {
			return convertError("DeleteTaskQueue", err)
		}
		deleteQueue := tx.Rebind(`
			DELETE FROM task_queues WHERE namespace_id = ? AND name = ? AND task_type = ?`)
		if _, err := tx.ExecContext(ctx, deleteQueue,
			request.NamespaceID, request.Name, int32(request.TaskType),
		); err != nil {
			return convertError("DeleteTaskQueue", err)
		}
		return nil
	})
}

func (s *taskStore) Close() {}
