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
	"github.com/strandhq/strand/api/history"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/persistence/serialization"
	"github.com/strandhq/strand/common/serviceerror"
)

type (
	executionStore struct {
		db         *sqlx.DB
		serializer serialization.Serializer
	}

	currentExecutionRow struct {
		NamespaceID     string         `db:"namespace_id"`
		WorkflowID      string         `db:"workflow_id"`
		RunID           string         `db:"run_id"`
		CreateRequestID string         `db:"create_request_id"`
		Status          int32          `db:"status"`
		StartTime       time.Time      `db:"start_time"`
		CloseTime       gosql.NullTime `db:"close_time"`
		HistoryVersion  int64          `db:"history_version"`
	}

	historyEventRow struct {
		EventID      int64  `db:"event_id"`
		Data         []byte `db:"data"`
		DataEncoding string `db:"data_encoding"`
	}

	sqlHistoryPageToken struct {
		NextEventID int64 `json:"nextEventId"`
	}

	sqlListExecutionsPageToken struct {
		LastNamespaceID string `json:"lastNamespaceId"`
		LastWorkflowID  string `json:"lastWorkflowId"`
	}
)

const sqlDefaultPageSize = 1000

func newExecutionStore(db *sqlx.DB, serializer serialization.Serializer) persistence.ExecutionStore {
	return &executionStore{db: db, serializer: serializer}
}

func (s *executionStore) CreateWorkflowExecution(
	ctx context.Context,
	request *persistence.CreateWorkflowExecutionRequest,
) (*persistence.CreateWorkflowExecutionResponse, error) {
	if len(request.Events) == 0 || request.Events[0].EventID != persistence.FirstEventID {
		return nil, &persistence.InvalidPersistenceRequestError{
			Msg: "CreateWorkflowExecution: initial events must start at the first event id",
		}
	}

	var version int64
	err := txExecutor(ctx, s.db, "CreateWorkflowExecution", func(tx *sqlx.Tx) error {
		if err := lockShardRangeID(ctx, tx, request.ShardID, request.RangeID); err != nil {
			return err
		}

		cur, err := getCurrentExecutionRow(ctx, tx, request.NamespaceID, request.WorkflowID)
		switch {
		case err == nil:
			if enums.WorkflowExecutionStatus(cur.Status) == enums.WorkflowExecutionStatusRunning {
				return &persistence.CurrentWorkflowConditionFailedError{
					Msg:       fmt.Sprintf("workflow %v already running with run id %v", request.WorkflowID, cur.RunID),
					RequestID: cur.CreateRequestID,
					RunID:     cur.RunID,
					Status:    enums.WorkflowExecutionStatus(cur.Status),
				}
			}
			if request.PreviousRunID != "" && cur.RunID != request.PreviousRunID {
				return &persistence.ConditionFailedError{
					Msg: fmt.Sprintf("current run id %v, expected %v", cur.RunID, request.PreviousRunID),
				}
			}
			update := tx.Rebind(`
				UPDATE current_executions
				SET run_id = ?, create_request_id = ?, status = ?, start_time = ?, close_time = NULL, history_version = ?
				WHERE namespace_id = ? AND workflow_id = ? AND run_id = ?`)
			if _, err := tx.ExecContext(ctx, update,
				request.RunID, request.RequestID, int32(enums.WorkflowExecutionStatusRunning),
				request.StartTime, int64(len(request.Events)),
				request.NamespaceID, request.WorkflowID, cur.RunID,
			); err != nil {
				return convertError("CreateWorkflowExecution", err)
			}
		case errors.Is(err, gosql.ErrNoRows):
			if request.PreviousRunID != "" {
				return &persistence.ConditionFailedError{
					Msg: fmt.Sprintf("no current run, expected %v", request.PreviousRunID),
				}
			}
			insert := tx.Rebind(`
				INSERT INTO current_executions
					(namespace_id, workflow_id, run_id, create_request_id, status, start_time, history_version)
				VALUES (?, ?, ?, ?, ?, ?, ?)`)
			if _, err := tx.ExecContext(ctx, insert,
				request.NamespaceID, request.WorkflowID, request.RunID, request.RequestID,
				int32(enums.WorkflowExecutionStatusRunning), request.StartTime, int64(len(request.Events)),
			); err != nil {
				return convertError("CreateWorkflowExecution", err)
			}
		default:
			return convertError("CreateWorkflowExecution", err)
		}

		if err := s.insertEvents(ctx, tx, request.NamespaceID, request.WorkflowID, request.RunID, request.Events); err != nil {
			return err
		}
		version = int64(len(request.Events))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &persistence.CreateWorkflowExecutionResponse{HistoryVersion: version}, nil
}

func (s *executionStore) AppendHistoryEvents(
	ctx context.Context,
	request *persistence.AppendHistoryEventsRequest,
) (*persistence.AppendHistoryEventsResponse, error) {
	if len(request.Events) == 0 {
		return nil, &persistence.InvalidPersistenceRequestError{
			Msg: "AppendHistoryEvents: empty event batch",
		}
	}

	var newVersion int64
	err := txExecutor(ctx, s.db, "AppendHistoryEvents", func(tx *sqlx.Tx) error {
		if err := lockShardRangeID(ctx, tx, request.ShardID, request.RangeID); err != nil {
			return err
		}

		var version gosql.NullInt64
		maxQuery := tx.Rebind(`
			SELECT MAX(event_id) FROM history_events
			WHERE namespace_id = ? AND workflow_id = ? AND run_id = ?`)
		if err := tx.GetContext(ctx, &version, maxQuery,
			request.NamespaceID, request.WorkflowID, request.RunID,
		); err != nil {
			return convertError("AppendHistoryEvents", err)
		}
		if !version.Valid {
			return serviceerror.NewNotFoundf("workflow execution not found: %v/%v", request.WorkflowID, request.RunID)
		}
		if version.Int64 != request.ExpectedVersion {
			return &persistence.ConditionFailedError{
				Msg: fmt.Sprintf("history version %v, expected %v", version.Int64, request.ExpectedVersion),
			}
		}
		if request.Events[0].EventID != version.Int64+1 {
			return &persistence.InvalidPersistenceRequestError{
				Msg: fmt.Sprintf("event id %v out of order, expected %v", request.Events[0].EventID, version.Int64+1),
			}
		}

		if err := s.insertEvents(ctx, tx, request.NamespaceID, request.WorkflowID, request.RunID, request.Events); err != nil {
			return err
		}
		newVersion = version.Int64 + int64(len(request.Events))

		var closeTime any
		if request.CloseTime != nil {
			closeTime = *request.CloseTime
		}
		status := int32(request.NewStatus)
		if request.NewStatus == enums.WorkflowExecutionStatusUnspecified {
			status = int32(enums.WorkflowExecutionStatusRunning)
		}
		update := tx.Rebind(`
			UPDATE current_executions
			SET history_version = ?, status = ?, close_time = ?
			WHERE namespace_id = ? AND workflow_id = ? AND run_id = ?`)
		if _, err := tx.ExecContext(ctx, update,
			newVersion, status, closeTime,
			request.NamespaceID, request.WorkflowID, request.RunID,
		); err != nil {
			return convertError("AppendHistoryEvents", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &persistence.AppendHistoryEventsResponse{HistoryVersion: newVersion}, nil
}

func (s *executionStore) GetCurrentExecution(
	ctx context.Context,
	request *persistence.GetCurrentExecutionRequest,
) (*persistence.GetCurrentExecutionResponse, error) {
	row := &currentExecutionRow{}
	query := s.db.Rebind(`
		SELECT namespace_id, workflow_id, run_id, create_request_id, status, start_time, close_time, history_version
		FROM current_executions
		WHERE namespace_id = ? AND workflow_id = ?`)
	err := s.db.GetContext(ctx, row, query, request.NamespaceID, request.WorkflowID)
	switch {
	case errors.Is(err, gosql.ErrNoRows):
		return nil, serviceerror.NewNotFoundf("workflow execution not found: %v", request.WorkflowID)
	case err != nil:
		return nil, convertError("GetCurrentExecution", err)
	}
	return &persistence.GetCurrentExecutionResponse{CurrentExecution: rowToCurrentExecution(row)}, nil
}

func (s *executionStore) ReadHistoryEvents(
	ctx context.Context,
	request *persistence.ReadHistoryEventsRequest,
) (*persistence.ReadHistoryEventsResponse, error) {
	minEventID := request.MinEventID
	if minEventID < persistence.FirstEventID {
		minEventID = persistence.FirstEventID
	}
	if len(request.NextPageToken) > 0 {
		var token sqlHistoryPageToken
		if err := json.Unmarshal(request.NextPageToken, &token); err != nil {
			return nil, serviceerror.NewInvalidArgumentf("invalid history page token: %v", err)
		}
		minEventID = token.NextEventID
	}
	pageSize := request.PageSize
	if pageSize <= 0 {
		pageSize = sqlDefaultPageSize
	}

	var version gosql.NullInt64
	maxQuery := s.db.Rebind(`
		SELECT MAX(event_id) FROM history_events
		WHERE namespace_id = ? AND workflow_id = ? AND run_id = ?`)
	if err := s.db.GetContext(ctx, &version, maxQuery,
		request.NamespaceID, request.WorkflowID, request.RunID,
	); err != nil {
		return nil, convertError("ReadHistoryEvents", err)
	}
	if !version.Valid {
		return nil, serviceerror.NewNotFoundf("workflow execution not found: %v/%v", request.WorkflowID, request.RunID)
	}

	var rows []historyEventRow
	query := s.db.Rebind(`
		SELECT event_id, data, data_encoding FROM history_events
		WHERE namespace_id = ? AND workflow_id = ? AND run_id = ? AND event_id >= ?
		ORDER BY event_id ASC
		LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, query,
		request.NamespaceID, request.WorkflowID, request.RunID, minEventID, pageSize,
	); err != nil {
		return nil, convertError("ReadHistoryEvents", err)
	}

	events := make([]*history.HistoryEvent, 0, len(rows))
	for _, row := range rows {
		event, err := s.serializer.DeserializeEvent(&serialization.DataBlob{
			Encoding: serialization.EncodingType(row.DataEncoding),
			Data:     row.Data,
		})
		if err != nil {
			return nil, &persistence.DataCorruptionError{
				Msg: fmt.Sprintf("history event %v/%v/%v: %v", request.WorkflowID, request.RunID, row.EventID, err),
			}
		}
		events = append(events, event)
	}

	response := &persistence.ReadHistoryEventsResponse{
		Events:         events,
		HistoryVersion: version.Int64,
	}
	if len(events) > 0 && events[len(events)-1].EventID < version.Int64 {
		token, err := json.Marshal(sqlHistoryPageToken{NextEventID: events[len(events)-1].EventID + 1})
		if err != nil {
			return nil, serviceerror.NewInternalf("unable to build history page token: %v", err)
		}
		response.NextPageToken = token
	}
	return response, nil
}

func (s *executionStore) ListCurrentExecutions(
	ctx context.Context,
	request *persistence.ListCurrentExecutionsRequest,
) (*persistence.ListCurrentExecutionsResponse, error) {
	pageSize := request.PageSize
	if pageSize <= 0 {
		pageSize = sqlDefaultPageSize
	}

	lastNamespaceID, lastWorkflowID := "", ""
	if len(request.NextPageToken) > 0 {
		var token sqlListExecutionsPageToken
		if err := json.Unmarshal(request.NextPageToken, &token); err != nil {
			return nil, serviceerror.NewInvalidArgumentf("invalid list page token: %v", err)
		}
		lastNamespaceID, lastWorkflowID = token.LastNamespaceID, token.LastWorkflowID
	}

	var rows []currentExecutionRow
	var err error
	if request.NamespaceID != "" {
		query := s.db.Rebind(`
			SELECT namespace_id, workflow_id, run_id, create_request_id, status, start_time, close_time, history_version
			FROM current_executions
			WHERE namespace_id = ? AND workflow_id > ?
			ORDER BY namespace_id, workflow_id
			LIMIT ?`)
		err = s.db.SelectContext(ctx, &rows, query, request.NamespaceID, lastWorkflowID, pageSize)
	} else {
		query := s.db.Rebind(`
			SELECT namespace_id, workflow_id, run_id, create_request_id, status, start_time, close_time, history_version
			FROM current_executions
			WHERE (namespace_id > ?) OR (namespace_id = ? AND workflow_id > ?)
			ORDER BY namespace_id, workflow_id
			LIMIT ?`)
		err = s.db.SelectContext(ctx, &rows, query, lastNamespaceID, lastNamespaceID, lastWorkflowID, pageSize)
	}
	if err != nil {
		return nil, convertError("ListCurrentExecutions", err)
	}

	executions := make([]*persistence.CurrentExecution, 0, len(rows))
	for i := range rows {
		executions = append(executions, rowToCurrentExecution(&rows[i]))
	}

	response := &persistence.ListCurrentExecutionsResponse{Executions: executions}
	if len(executions) == pageSize {
		last := executions[len(executions)-1]
		token, err := json.Marshal(sqlListExecutionsPageToken{
			LastNamespaceID: last.NamespaceID,
			LastWorkflowID:  last.WorkflowID,
		})
		if err != nil {
			return nil, serviceerror.NewInternalf("unable to build list page token: %v", err)
		}
		response.NextPageToken = token
	}
	return response, nil
}

func (s *executionStore) Close() {}

func (s *executionStore) insertEvents(
	ctx context.Context,
	tx *sqlx.Tx,
	namespaceID string,
	workflowID string,
	runID string,
	events []*history.HistoryEvent,
) error {
	insert := tx.Rebind(`
		INSERT INTO history_events (namespace_id, workflow_id, run_id, event_id, data, data_encoding)
		VALUES (?, ?, ?, ?, ?, ?)`)
	for _, event := range events {
		blob, err := s.serializer.SerializeEvent(event)
		if err != nil {
			return serviceerror.NewInternalf("unable to serialize history event: %v", err)
		}
		if _, err := tx.ExecContext(ctx, insert,
			namespaceID, workflowID, runID, event.EventID, blob.Data, string(blob.Encoding),
		); err != nil {
			// A primary key collision means a concurrent appender won.
			return &persistence.ConditionFailedError{
				Msg: fmt.Sprintf("event %v already exists: %v", event.EventID, err),
			}
		}
	}
	return nil
}

func getCurrentExecutionRow(
	ctx context.Context,
	tx *sqlx.Tx,
	namespaceID string,
	workflowID string,
) (*currentExecutionRow, error) {
	row := &currentExecutionRow{}
	query := tx.Rebind(`
		SELECT namespace_id, workflow_id, run_id, create_request_id, status, start_time, close_time, history_version
		FROM current_executions
		WHERE namespace_id = ? AND workflow_id = ?`)
	if err := tx.GetContext(ctx, row, query, namespaceID, workflowID); err != nil {
		return nil, err
	}
	return row, nil
}

func rowToCurrentExecution(row *currentExecutionRow) *persistence.CurrentExecution {
	cur := &persistence.CurrentExecution{
		NamespaceID:     row.NamespaceID,
		WorkflowID:      row.WorkflowID,
		RunID:           row.RunID,
		CreateRequestID: row.CreateRequestID,
		Status:          enums.WorkflowExecutionStatus(row.Status),
		StartTime:       row.StartTime,
		HistoryVersion:  row.HistoryVersion,
	}
	if row.CloseTime.Valid {
		closeTime := row.CloseTime.Time
		cur.CloseTime = &closeTime
	}
	return cur
}
