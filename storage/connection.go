package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"tarefasplus/domain"
)

// Backend is the document persistence used by a Connection.
type Backend interface {
	ListTasks(ctx context.Context, owner string) ([]domain.Task, error)
	// GetTask returns nil without error when the task does not exist.
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	InsertTask(ctx context.Context, t domain.Task) error
	MergeTask(ctx context.Context, id, body string, public bool) error
	DeleteTask(ctx context.Context, id string) error
}

// Connection is the process wide handle to the task store. It is shared by the
// live subscriptions, which read through it, and the mutation engine, which
// writes through it. Successful writes are announced on the updates channel.
type Connection struct {
	backend Backend
	cache   *Cache
	redis   *redis.Client
	channel string
	logger  *log.Logger
	now     func() time.Time
}

// NewConnection wires a backend with the Redis client used for change notices
// and list caching.
func NewConnection(backend Backend, rc *redis.Client, channel string, cacheTTL time.Duration, logger *log.Logger) *Connection {
	if backend == nil {
		panic("storage.NewConnection: backend is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Connection{
		backend: backend,
		cache:   NewCache(rc, cacheTTL),
		redis:   rc,
		channel: channel,
		logger:  logger,
		now:     time.Now,
	}
}

// Channel returns the Redis channel change notices are published on.
func (c *Connection) Channel() string {
	return c.channel
}

// Query returns the full list of owner's tasks, newest first.
func (c *Connection) Query(ctx context.Context, owner string) ([]domain.Task, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, domain.ErrNoOwner
	}
	tasks, gen, ok := c.cache.load(ctx, owner)
	if ok {
		return tasks, nil
	}
	tasks, err := c.backend.ListTasks(ctx, owner)
	if err != nil {
		return nil, err
	}
	domain.SortTasks(tasks)
	if err := c.cache.store(ctx, owner, gen, tasks); err != nil {
		c.logger.WithError(err).WithField("owner", owner).Debug("unable to cache task list")
	}
	return tasks, nil
}

// Insert stores a new task for owner and returns its id. The creation time is
// stamped here, at write time.
func (c *Connection) Insert(ctx context.Context, owner, body string, public bool) (string, error) {
	if strings.TrimSpace(owner) == "" {
		return "", domain.ErrNoOwner
	}
	t := domain.Task{
		ID:      ulid.Make().String(),
		Tarefa:  body,
		Created: c.now().UTC(),
		User:    owner,
		Public:  public,
	}
	if err := c.backend.InsertTask(ctx, t); err != nil {
		return "", err
	}
	c.changed(ctx, owner, t.ID, domain.TaskCreated)
	return t.ID, nil
}

// Update overwrites body and public flag of the task id. A missing task
// yields domain.ErrNotFound.
func (c *Connection) Update(ctx context.Context, id, body string, public bool) error {
	t, err := c.backend.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	if err := c.backend.MergeTask(ctx, id, body, public); err != nil {
		return err
	}
	c.changed(ctx, t.User, id, domain.TaskUpdated)
	return nil
}

// Delete removes the task id. Deleting a missing task succeeds.
func (c *Connection) Delete(ctx context.Context, id string) error {
	t, err := c.backend.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}
	if err := c.backend.DeleteTask(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	c.changed(ctx, t.User, id, domain.TaskDeleted)
	return nil
}

// changed evicts the owner's cached list and announces the change. Failures
// are only logged: the write itself succeeded and subscribers resync.
func (c *Connection) changed(ctx context.Context, owner, id, kind string) {
	if err := c.cache.evict(ctx, owner); err != nil {
		c.logger.WithError(err).WithField("owner", owner).Error("failed to evict task list cache")
	}
	if c.redis == nil || c.channel == "" {
		return
	}
	payload, err := sonic.Marshal(domain.Notice{
		ID:         uuid.NewString(),
		Collection: domain.Collection,
		UserID:     owner,
		EntityID:   id,
		Type:       kind,
		Time:       c.now().UnixNano(),
	})
	if err != nil {
		c.logger.WithError(err).Error("marshal change notice")
		return
	}
	if err := c.redis.Publish(ctx, c.channel, payload).Err(); err != nil {
		c.logger.WithFields(log.Fields{"owner": owner, "task": id, "channel": c.channel}).
			WithError(err).Error("unable to publish change notice")
	}
}
