package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/serviceerror"
)

type taskStore struct {
	db *db
}

func newTaskStore(db *db) persistence.TaskStore {
	return &taskStore{db: db}
}

func (s *taskStore) CreateTaskQueue(
	ctx context.Context,
	request *persistence.CreateTaskQueueRequest,
) error {
	s.db.Lock()
	defer s.db.Unlock()

	info := request.TaskQueueInfo
	key := queueKey{namespaceID: info.NamespaceID, name: info.Name, taskType: info.TaskType}
	if _, ok := s.db.queues[key]; ok {
		return &persistence.ConditionFailedError{
			Msg: fmt.Sprintf("task queue %v already exists", info.Name),
		}
	}
	infoCopy := *info
	s.db.queues[key] = &infoCopy
	return nil
}

func (s *taskStore) GetTaskQueue(
	ctx context.Context,
	request *persistence.GetTaskQueueRequest,
) (*persistence.GetTaskQueueResponse, error) {
	s.db.Lock()
	defer s.db.Unlock()

	key := queueKey{namespaceID: request.NamespaceID, name: request.Name, taskType: request.TaskType}
	info, ok := s.db.queues[key]
	if !ok {
		return nil, serviceerror.NewNotFoundf("task queue not found: %v", request.Name)
	}
	infoCopy := *info
	return &persistence.GetTaskQueueResponse{TaskQueueInfo: &infoCopy}, nil
}

func (s *taskStore) UpdateTaskQueue(
	ctx context.Context,
	request *persistence.UpdateTaskQueueRequest,
) error {
	s.db.Lock()
	defer s.db.Unlock()

	info := request.TaskQueueInfo
	key := queueKey{namespaceID: info.NamespaceID, name: info.Name, taskType: info.TaskType}
	stored, ok := s.db.queues[key]
	if !ok {
		return serviceerror.NewNotFoundf("task queue not found: %v", info.Name)
	}
	if stored.RangeID != request.PreviousRangeID {
		return &persistence.ConditionFailedError{
			Msg: fmt.Sprintf("task queue %v range id %v, expected %v", info.Name, stored.RangeID, request.PreviousRangeID),
		}
	}
	infoCopy := *info
	s.db.queues[key] = &infoCopy
	return nil
}

func (s *taskStore) CreateTasks(
	ctx context.Context,
	request *persistence.CreateTasksRequest,
) error {
	s.db.Lock()
	defer s.db.Unlock()

	key := queueKey{namespaceID: request.NamespaceID, name: request.Name, taskType: request.TaskType}
	stored, ok := s.db.queues[key]
	if !ok {
		return serviceerror.NewNotFoundf("task queue not found: %v", request.Name)
	}
	if stored.RangeID != request.RangeID {
		return &persistence.ConditionFailedError{
			Msg: fmt.Sprintf("task queue %v range id %v, expected %v", request.Name, stored.RangeID, request.RangeID),
		}
	}

	tasks := s.db.tasks[key]
	for _, task := range request.Tasks {
		taskCopy := *task
		tasks = append(tasks, &taskCopy)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].TaskID < tasks[j].TaskID })
	s.db.tasks[key] = tasks
	return nil
}

func (s *taskStore) GetTasks(
	ctx context.Context,
	request *persistence.GetTasksRequest,
) (*persistence.GetTasksResponse, error) {
	s.db.Lock()
	defer s.db.Unlock()

	key := queueKey{namespaceID: request.NamespaceID, name: request.Name, taskType: request.TaskType}
	pageSize := request.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var page []*persistence.TaskInfo
	for _, task := range s.db.tasks[key] {
		if task.TaskID < request.InclusiveMinTaskID || task.TaskID >= request.ExclusiveMaxTaskID {
			continue
		}
		if len(page) >= pageSize {
			break
		}
		taskCopy := *task
		page = append(page, &taskCopy)
	}
	return &persistence.GetTasksResponse{Tasks: page}, nil
}

func (s *taskStore) CompleteTasksLessThan(
	ctx context.Context,
	request *persistence.CompleteTasksLessThanRequest,
) (int, error) {
	s.db.Lock()
	defer s.db.Unlock()

	key := queueKey{namespaceID: request.NamespaceID, name: request.TaskQueueName, taskType: request.TaskType}
	tasks := s.db.tasks[key]
	limit := request.Limit
	if limit <= 0 {
		limit = len(tasks)
	}

	deleted := 0
	remaining := tasks[:0]
	for _, task := range tasks {
		if task.TaskID < request.ExclusiveMaxTaskID && deleted < limit {
			deleted++
			continue
		}
		remaining = append(remaining, task)
	}
	s.db.tasks[key] = remaining
	return deleted, nil
}

func (s *taskStore) DeleteTaskQueue(
	ctx context.Context,
	request *persistence.DeleteTaskQueueRequest,
) error {
	s.db.Lock()
	defer s.db.Unlock()

	key := queueKey{namespaceID: request.NamespaceID, name: request.Name, taskType: request.TaskType}
	delete(s.db.queues, key)
	delete(s.db.tasks, key)
	return nil
}

func (s *taskStore) Close() {}
