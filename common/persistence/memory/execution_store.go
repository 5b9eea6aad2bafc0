package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/api/history"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/serviceerror"
)

type executionStore struct {
	db *db
}

type (
	historyPageToken struct {
		NextEventID int64 `json:"nextEventId"`
	}

	listExecutionsPageToken struct {
		LastNamespaceID string `json:"lastNamespaceId"`
		LastWorkflowID  string `json:"lastWorkflowId"`
	}
)

const defaultPageSize = 1000

func newExecutionStore(db *db) persistence.ExecutionStore {
	return &executionStore{db: db}
}

func (s *executionStore) CreateWorkflowExecution(
	ctx context.Context,
	request *persistence.CreateWorkflowExecutionRequest,
) (*persistence.CreateWorkflowExecutionResponse, error) {
	if err := validateEventBatch(request.Events, persistence.FirstEventID); err != nil {
		return nil, err
	}

	s.db.Lock()
	defer s.db.Unlock()

	if err := s.db.checkShardRangeID(request.ShardID, request.RangeID); err != nil {
		return nil, err
	}

	key := executionKey{namespaceID: request.NamespaceID, workflowID: request.WorkflowID}
	if cur, ok := s.db.current[key]; ok {
		if cur.Status == enums.WorkflowExecutionStatusRunning {
			return nil, &persistence.CurrentWorkflowConditionFailedError{
				Msg:       fmt.Sprintf("workflow %v already running with run id %v", request.WorkflowID, cur.RunID),
				RequestID: cur.CreateRequestID,
				RunID:     cur.RunID,
				Status:    cur.Status,
			}
		}
		if request.PreviousRunID != "" && cur.RunID != request.PreviousRunID {
			return nil, &persistence.ConditionFailedError{
				Msg: fmt.Sprintf("current run id %v, expected %v", cur.RunID, request.PreviousRunID),
			}
		}
	} else if request.PreviousRunID != "" {
		return nil, &persistence.ConditionFailedError{
			Msg: fmt.Sprintf("no current run, expected %v", request.PreviousRunID),
		}
	}

	version := int64(len(request.Events))
	s.db.current[key] = &persistence.CurrentExecution{
		NamespaceID:     request.NamespaceID,
		WorkflowID:      request.WorkflowID,
		RunID:           request.RunID,
		CreateRequestID: request.RequestID,
		Status:          enums.WorkflowExecutionStatusRunning,
		StartTime:       request.StartTime,
		HistoryVersion:  version,
	}

	hKey := historyKey{
		namespaceID: request.NamespaceID,
		workflowID:  request.WorkflowID,
		runID:       request.RunID,
	}
	s.db.histories[hKey] = copyEvents(request.Events)

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

	s.db.Lock()
	defer s.db.Unlock()

	if err := s.db.checkShardRangeID(request.ShardID, request.RangeID); err != nil {
		return nil, err
	}

	hKey := historyKey{
		namespaceID: request.NamespaceID,
		workflowID:  request.WorkflowID,
		runID:       request.RunID,
	}
	events, ok := s.db.histories[hKey]
	if !ok {
		return nil, serviceerror.NewNotFoundf("workflow execution not found: %v/%v", request.WorkflowID, request.RunID)
	}

	version := int64(len(events))
	if request.ExpectedVersion != version {
		return nil, &persistence.ConditionFailedError{
			Msg: fmt.Sprintf("history version %v, expected %v", version, request.ExpectedVersion),
		}
	}
	if err := validateEventBatch(request.Events, version+1); err != nil {
		return nil, err
	}

	s.db.histories[hKey] = append(events, copyEvents(request.Events)...)
	newVersion := version + int64(len(request.Events))

	key := executionKey{namespaceID: request.NamespaceID, workflowID: request.WorkflowID}
	if cur, ok := s.db.current[key]; ok && cur.RunID == request.RunID {
		cur.HistoryVersion = newVersion
		if request.NewStatus != enums.WorkflowExecutionStatusUnspecified {
			cur.Status = request.NewStatus
			cur.CloseTime = request.CloseTime
		}
	}

	return &persistence.AppendHistoryEventsResponse{HistoryVersion: newVersion}, nil
}

func (s *executionStore) GetCurrentExecution(
	ctx context.Context,
	request *persistence.GetCurrentExecutionRequest,
) (*persistence.GetCurrentExecutionResponse, error) {
	s.db.Lock()
	defer s.db.Unlock()

	key := executionKey{namespaceID: request.NamespaceID, workflowID: request.WorkflowID}
	cur, ok := s.db.current[key]
	if !ok {
		return nil, serviceerror.NewNotFoundf("workflow execution not found: %v", request.WorkflowID)
	}
	curCopy := *cur
	return &persistence.GetCurrentExecutionResponse{CurrentExecution: &curCopy}, nil
}

func (s *executionStore) ReadHistoryEvents(
	ctx context.Context,
	request *persistence.ReadHistoryEventsRequest,
) (*persistence.ReadHistoryEventsResponse, error) {
	s.db.Lock()
	defer s.db.Unlock()

	hKey := historyKey{
		namespaceID: request.NamespaceID,
		workflowID:  request.WorkflowID,
		runID:       request.RunID,
	}
	events, ok := s.db.histories[hKey]
	if !ok {
		return nil, serviceerror.NewNotFoundf("workflow execution not found: %v/%v", request.WorkflowID, request.RunID)
	}

	minEventID := request.MinEventID
	if minEventID < persistence.FirstEventID {
		minEventID = persistence.FirstEventID
	}
	if len(request.NextPageToken) > 0 {
		var token historyPageToken
		if err := json.Unmarshal(request.NextPageToken, &token); err != nil {
			return nil, serviceerror.NewInvalidArgumentf("invalid history page token: %v", err)
		}
		minEventID = token.NextEventID
	}

	pageSize := request.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	version := int64(len(events))
	var page []*history.HistoryEvent
	for _, event := range events {
		if event.EventID < minEventID {
			continue
		}
		if len(page) >= pageSize {
			break
		}
		eventCopy := *event
		page = append(page, &eventCopy)
	}

	response := &persistence.ReadHistoryEventsResponse{
		Events:         page,
		HistoryVersion: version,
	}
	if len(page) > 0 && page[len(page)-1].EventID < version {
		token, err := json.Marshal(historyPageToken{NextEventID: page[len(page)-1].EventID + 1})
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
	s.db.Lock()
	defer s.db.Unlock()

	var all []*persistence.CurrentExecution
	for _, cur := range s.db.current {
		if request.NamespaceID != "" && cur.NamespaceID != request.NamespaceID {
			continue
		}
		all = append(all, cur)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].NamespaceID != all[j].NamespaceID {
			return all[i].NamespaceID < all[j].NamespaceID
		}
		return all[i].WorkflowID < all[j].WorkflowID
	})

	start := 0
	if len(request.NextPageToken) > 0 {
		var token listExecutionsPageToken
		if err := json.Unmarshal(request.NextPageToken, &token); err != nil {
			return nil, serviceerror.NewInvalidArgumentf("invalid list page token: %v", err)
		}
		start = sort.Search(len(all), func(i int) bool {
			if all[i].NamespaceID != token.LastNamespaceID {
				return all[i].NamespaceID > token.LastNamespaceID
			}
			return all[i].WorkflowID > token.LastWorkflowID
		})
	}

	pageSize := request.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}

	page := make([]*persistence.CurrentExecution, 0, end-start)
	for _, cur := range all[start:end] {
		curCopy := *cur
		page = append(page, &curCopy)
	}

	response := &persistence.ListCurrentExecutionsResponse{Executions: page}
	if end < len(all) {
		last := all[end-1]
		token, err := json.Marshal(listExecutionsPageToken{
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

func validateEventBatch(events []*history.HistoryEvent, firstEventID int64) error {
	if len(events) == 0 {
		return &persistence.InvalidPersistenceRequestError{
			Msg: "empty event batch",
		}
	}
	for i, event := range events {
		expected := firstEventID + int64(i)
		if event.EventID != expected {
			return &persistence.InvalidPersistenceRequestError{
				Msg: fmt.Sprintf("event id %v out of order, expected %v", event.EventID, expected),
			}
		}
	}
	return nil
}

func copyEvents(events []*history.HistoryEvent) []*history.HistoryEvent {
	result := make([]*history.HistoryEvent, 0, len(events))
	for _, event := range events {
		eventCopy := *event
		result = append(result, &eventCopy)
	}
	return result
}
