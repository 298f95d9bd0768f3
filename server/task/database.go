// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/go-json-experiment/json"
	"gorm.io/gorm"

	"github.com/agentwire/a2a"
)

// MessageSliceJSON stores a message history as a JSON column.
type MessageSliceJSON struct {
	Messages []*a2a.Message
}

// Value implements driver.Valuer.
func (m MessageSliceJSON) Value() (driver.Value, error) {
	if m.Messages == nil {
		return nil, nil
	}
	data, err := json.Marshal(m.Messages)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (m *MessageSliceJSON) Scan(value any) error {
	if value == nil {
		*m = MessageSliceJSON{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into MessageSliceJSON", value)
	}

	return json.Unmarshal(data, &m.Messages)
}

// MessageJSON stores a single optional message as a JSON column.
type MessageJSON struct {
	Message *a2a.Message
}

// Value implements driver.Valuer.
func (m MessageJSON) Value() (driver.Value, error) {
	if m.Message == nil {
		return nil, nil
	}
	data, err := json.Marshal(m.Message)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (m *MessageJSON) Scan(value any) error {
	if value == nil {
		*m = MessageJSON{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into MessageJSON", value)
	}

	return json.Unmarshal(data, &m.Message)
}

// TaskModel is the database row representation of a task.
type TaskModel struct {
	ID        string           `gorm:"primaryKey;size:64"`
	ContextID string           `gorm:"index;size:64"`
	State     string           `gorm:"size:32"`
	Timestamp string           `gorm:"size:48"`
	History   MessageSliceJSON `gorm:"type:json"`
	Result    MessageJSON      `gorm:"type:json"`
	Version   int64
}

// TableName implements the gorm table-name convention.
func (TaskModel) TableName() string { return "a2a_tasks" }

// newTaskModel converts a task into its row representation.
func newTaskModel(task *a2a.Task) *TaskModel {
	return &TaskModel{
		ID:        task.ID,
		ContextID: task.ContextID,
		State:     string(task.Status.State),
		Timestamp: task.Status.Timestamp,
		History:   MessageSliceJSON{Messages: task.History},
		Result:    MessageJSON{Message: task.Result},
		Version:   task.Version,
	}
}

// toTask converts a row back into a task.
func (m *TaskModel) toTask() *a2a.Task {
	return &a2a.Task{
		ID:        m.ID,
		ContextID: m.ContextID,
		Status: a2a.TaskStatus{
			State:     a2a.TaskState(m.State),
			Timestamp: m.Timestamp,
		},
		History: m.History.Messages,
		Result:  m.Result.Message,
		Version: m.Version,
	}
}

// DatabaseStore is a gorm-backed Store. It preserves the same optimistic
// concurrency contract as InMemoryStore: updates are conditioned on the
// stored version via a conditional UPDATE.
type DatabaseStore struct {
	db *gorm.DB
}

var _ Store = (*DatabaseStore)(nil)

// DatabaseStoreConfig holds configuration for DatabaseStore.
type DatabaseStoreConfig struct {
	DB *gorm.DB

	// AutoMigrate creates the tasks table when it does not exist.
	AutoMigrate bool
}

// NewDatabaseStore creates a DatabaseStore over an existing gorm connection.
func NewDatabaseStore(config DatabaseStoreConfig) (*DatabaseStore, error) {
	if config.DB == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	if config.AutoMigrate {
		if err := config.DB.AutoMigrate(&TaskModel{}); err != nil {
			return nil, fmt.Errorf("migrate task table: %w", err)
		}
	}
	return &DatabaseStore{db: config.DB}, nil
}

// Get retrieves a task by its ID.
func (s *DatabaseStore) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	if taskID == "" {
		return nil, &a2a.ValidationError{Field: "taskId", Message: "task ID cannot be empty"}
	}

	var model TaskModel
	if err := s.db.WithContext(ctx).Where("id = ?", taskID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &a2a.TaskNotFoundError{TaskID: taskID}
		}
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}

	return model.toTask(), nil
}

// Put writes a task conditioned on its version counter.
func (s *DatabaseStore) Put(ctx context.Context, task *a2a.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	db := s.db.WithContext(ctx)

	if task.Version == 0 {
		model := newTaskModel(task)
		model.Version = 1
		if err := db.Create(model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &a2a.VersionConflictError{TaskID: task.ID, Version: task.Version}
			}
			return fmt.Errorf("create task %s: %w", task.ID, err)
		}
		task.Version = 1
		return nil
	}

	model := newTaskModel(task)
	result := db.Model(&TaskModel{}).
		Where("id = ? AND version = ?", task.ID, task.Version).
		Updates(map[string]any{
			"context_id": model.ContextID,
			"state":      model.State,
			"timestamp":  model.Timestamp,
			"history":    model.History,
			"result":     model.Result,
			"version":    task.Version + 1,
		})
	if result.Error != nil {
		return fmt.Errorf("update task %s: %w", task.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := db.Model(&TaskModel{}).Where("id = ?", task.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("update task %s: %w", task.ID, err)
		}
		if count == 0 {
			return &a2a.TaskNotFoundError{TaskID: task.ID}
		}
		return &a2a.VersionConflictError{TaskID: task.ID, Version: task.Version}
	}

	task.Version++
	return nil
}

// List retrieves all tasks for a context, every task when contextID is
// empty.
func (s *DatabaseStore) List(ctx context.Context, contextID string) ([]*a2a.Task, error) {
	db := s.db.WithContext(ctx)
	if contextID != "" {
		db = db.Where("context_id = ?", contextID)
	}

	var models []TaskModel
	if err := db.Order("id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	tasks := make([]*a2a.Task, len(models))
	for i := range models {
		tasks[i] = models[i].toTask()
	}
	return tasks, nil
}
