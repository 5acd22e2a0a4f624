package dashboard

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tarefasplus/domain"
)

const tracerName = "tarefasplus/dashboard"

// Store is the write side of the task store connection.
type Store interface {
	Insert(ctx context.Context, owner, body string, public bool) (string, error)
	Update(ctx context.Context, id, body string, public bool) error
	Delete(ctx context.Context, id string) error
}

// Mutator is implemented by Engine.
type Mutator interface {
	Create(ctx context.Context, body string, public bool, owner string) error
	Update(ctx context.Context, id, body string, public bool) error
	Delete(ctx context.Context, id string) error
}

// Engine performs task mutations against the store. It never touches a
// TaskList: changes become visible through the next subscription push.
type Engine struct {
	store  Store
	logger *log.Logger
}

// NewEngine creates a mutation engine writing through store.
func NewEngine(store Store, logger *log.Logger) *Engine {
	if store == nil {
		panic("dashboard.NewEngine: store is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Engine{store: store, logger: logger}
}

func (e *Engine) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

func (e *Engine) fail(span trace.Span, op string, fields log.Fields, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	fields["op"] = op
	e.logger.WithFields(fields).WithError(err).Error("task mutation failed")
	return fmt.Errorf("%s task: %w", op, err)
}

// Create stores a new task for owner. An empty body is ignored.
func (e *Engine) Create(ctx context.Context, body string, public bool, owner string) error {
	if body == "" {
		return nil
	}
	ctx, span := e.start(ctx, "tasks.create", attribute.String("owner", owner), attribute.Bool("public", public))
	defer span.End()

	if strings.TrimSpace(owner) == "" {
		return e.fail(span, "create", log.Fields{"owner": owner}, domain.ErrNoOwner)
	}
	id, err := e.store.Insert(ctx, owner, body, public)
	if err != nil {
		return e.fail(span, "create", log.Fields{"owner": owner}, err)
	}
	span.SetAttributes(attribute.String("task.id", id))
	e.logger.WithFields(log.Fields{"owner": owner, "id": id}).Debug("task created")
	return nil
}

// Update overwrites body and public flag of task id. A missing task yields an
// error wrapping domain.ErrNotFound.
func (e *Engine) Update(ctx context.Context, id, body string, public bool) error {
	ctx, span := e.start(ctx, "tasks.update", attribute.String("task.id", id), attribute.Bool("public", public))
	defer span.End()

	if err := e.store.Update(ctx, id, body, public); err != nil {
		return e.fail(span, "update", log.Fields{"id": id}, err)
	}
	e.logger.WithField("id", id).Debug("task updated")
	return nil
}

// Delete permanently removes task id. Deleting a missing task succeeds.
func (e *Engine) Delete(ctx context.Context, id string) error {
	ctx, span := e.start(ctx, "tasks.delete", attribute.String("task.id", id))
	defer span.End()

	if err := e.store.Delete(ctx, id); err != nil {
		return e.fail(span, "delete", log.Fields{"id": id}, err)
	}
	e.logger.WithField("id", id).Debug("task deleted")
	return nil
}
