package dashboard

import (
	"context"
	"errors"
	"fmt"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"tarefasplus/domain"
)

type stubStore struct {
	insertFn func(ctx context.Context, owner, body string, public bool) (string, error)
	updateFn func(ctx context.Context, id, body string, public bool) error
	deleteFn func(ctx context.Context, id string) error
}

func (s *stubStore) Insert(ctx context.Context, owner, body string, public bool) (string, error) {
	if s.insertFn == nil {
		return "", errors.New("unexpected Insert call")
	}
	return s.insertFn(ctx, owner, body, public)
}

func (s *stubStore) Update(ctx context.Context, id, body string, public bool) error {
	if s.updateFn == nil {
		return errors.New("unexpected Update call")
	}
	return s.updateFn(ctx, id, body, public)
}

func (s *stubStore) Delete(ctx context.Context, id string) error {
	if s.deleteFn == nil {
		return errors.New("unexpected Delete call")
	}
	return s.deleteFn(ctx, id)
}

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	t.Cleanup(func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func TestEngineCreateIgnoresEmptyBody(t *testing.T) {
	e := NewEngine(&stubStore{}, nil)
	if err := e.Create(context.Background(), "", true, "a@x.com"); err != nil {
		t.Fatalf("empty body must be a silent no-op, got %v", err)
	}
}

func TestEngineCreateRequiresOwner(t *testing.T) {
	logger, _ := test.NewNullLogger()
	e := NewEngine(&stubStore{}, logger)
	err := e.Create(context.Background(), "Buy milk", false, "")
	if !errors.Is(err, domain.ErrNoOwner) {
		t.Fatalf("expected ErrNoOwner, got %v", err)
	}
}

func TestEngineCreateWritesOwnerAndFlag(t *testing.T) {
	var got []any
	e := NewEngine(&stubStore{
		insertFn: func(_ context.Context, owner, body string, public bool) (string, error) {
			got = []any{owner, body, public}
			return "01HZ", nil
		},
	}, nil)
	if err := e.Create(context.Background(), "Buy milk", true, "a@x.com"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if fmt.Sprint(got) != fmt.Sprint([]any{"a@x.com", "Buy milk", true}) {
		t.Fatalf("unexpected insert %v", got)
	}
}

func TestEngineUpdateNotFoundIsReportedAndLogged(t *testing.T) {
	exporter := setupTestTracer(t)
	logger, hook := test.NewNullLogger()
	e := NewEngine(&stubStore{
		updateFn: func(_ context.Context, id, _ string, _ bool) error {
			return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
		},
	}, logger)

	err := e.Update(context.Background(), "nonexistent-id", "x", false)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != log.ErrorLevel {
		t.Fatalf("expected error log, got %+v", entry)
	}
	if entry.Data["op"] != "update" || entry.Data["id"] != "nonexistent-id" {
		t.Fatalf("unexpected log fields %+v", entry.Data)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	if spans[0].Name != "tasks.update" || spans[0].Status.Code != codes.Error {
		t.Fatalf("unexpected span %s status %v", spans[0].Name, spans[0].Status)
	}
}

func TestEngineDeleteSuccessSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	var deleted string
	e := NewEngine(&stubStore{
		deleteFn: func(_ context.Context, id string) error {
			deleted = id
			return nil
		},
	}, nil)
	if err := e.Delete(context.Background(), "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != "t1" {
		t.Fatalf("deleted %q", deleted)
	}
	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "tasks.delete" || spans[0].Status.Code == codes.Error {
		t.Fatalf("unexpected spans %+v", spans)
	}
}
