package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"tarefasplus/domain"
)

const edmDateTime = "Edm.DateTime"

// Storage keeps tasks in an Azure table. Every task lives in the partition
// named after the collection and is addressed by its id as row key.
type Storage struct {
	taskTable *aztables.Client
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{taskTable: svc.NewClient(tasksTable)}, nil
}

// CreateTable creates the tasks table, tolerating an existing one.
func (s *Storage) CreateTable(ctx context.Context) error {
	_, err := s.taskTable.CreateTable(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists) {
			return nil
		}
		return err
	}
	return nil
}

type entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

type taskEntity struct {
	entity
	Tarefa      string    `json:"Tarefa"`
	Created     time.Time `json:"Created"`
	CreatedType string    `json:"Created@odata.type,omitempty"`
	User        string    `json:"User"`
	Public      bool      `json:"Public"`
}

type taskUpdate struct {
	entity
	Tarefa string `json:"Tarefa"`
	Public bool   `json:"Public"`
}

func encodeTaskEntity(t domain.Task) ([]byte, error) {
	return json.Marshal(taskEntity{
		entity:      entity{PartitionKey: domain.Collection, RowKey: t.ID},
		Tarefa:      t.Tarefa,
		Created:     t.Created.UTC(),
		CreatedType: edmDateTime,
		User:        t.User,
		Public:      t.Public,
	})
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:      ent.RowKey,
		Tarefa:  ent.Tarefa,
		Created: ent.Created,
		User:    ent.User,
		Public:  ent.Public,
	}, nil
}

// ownerFilter builds the OData filter selecting the tasks of owner.
func ownerFilter(owner string) string {
	return fmt.Sprintf("PartitionKey eq '%s' and User eq '%s'",
		domain.Collection, strings.ReplaceAll(owner, "'", "''"))
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

// ListTasks retrieves all tasks of the provided owner, newest first.
func (s *Storage) ListTasks(ctx context.Context, owner string) ([]domain.Task, error) {
	filter := ownerFilter(owner)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			t, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	domain.SortTasks(tasks)
	return tasks, nil
}

// GetTask retrieves a task if present. A missing task yields nil without error.
func (s *Storage) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	resp, err := s.taskTable.GetEntity(ctx, domain.Collection, id, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	t, err := decodeTaskEntity(resp.Value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// InsertTask adds a new task entity.
func (s *Storage) InsertTask(ctx context.Context, t domain.Task) error {
	payload, err := encodeTaskEntity(t)
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, payload, nil)
	return err
}

// MergeTask overwrites the body and public flag of an existing task. Owner and
// creation time are left untouched.
func (s *Storage) MergeTask(ctx context.Context, id, body string, public bool) error {
	payload, err := json.Marshal(taskUpdate{
		entity: entity{PartitionKey: domain.Collection, RowKey: id},
		Tarefa: body,
		Public: public,
	})
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if err != nil && isNotFound(err) {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return err
}

// DeleteTask removes a task entity.
func (s *Storage) DeleteTask(ctx context.Context, id string) error {
	_, err := s.taskTable.DeleteEntity(ctx, domain.Collection, id, nil)
	if err != nil && isNotFound(err) {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return err
}
