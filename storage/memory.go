package storage

import (
	"context"
	"fmt"
	"sync"

	"tarefasplus/domain"
)

// Memory is an in-process backend used for local runs and tests.
type Memory struct {
	mu    sync.Mutex
	tasks map[string]domain.Task
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{tasks: map[string]domain.Task{}}
}

func (m *Memory) ListTasks(ctx context.Context, owner string) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks := []domain.Task{}
	for _, t := range m.tasks {
		if t.User == owner {
			tasks = append(tasks, t)
		}
	}
	domain.SortTasks(tasks)
	return tasks, nil
}

func (m *Memory) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Memory) InsertTask(ctx context.Context, t domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tasks[t.ID]; exists {
		return fmt.Errorf("task %s already exists", t.ID)
	}
	m.tasks[t.ID] = t
	return nil
}

func (m *Memory) MergeTask(ctx context.Context, id, body string, public bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	t.Tarefa = body
	t.Public = public
	m.tasks[id] = t
	return nil
}

func (m *Memory) DeleteTask(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	delete(m.tasks, id)
	return nil
}
