package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"tarefasplus/domain"
)

type call struct {
	op     string
	id     string
	body   string
	public bool
	owner  string
}

type recordingMutator struct {
	calls []call
	err   error
}

func (r *recordingMutator) Create(_ context.Context, body string, public bool, owner string) error {
	r.calls = append(r.calls, call{op: "create", body: body, public: public, owner: owner})
	return r.err
}

func (r *recordingMutator) Update(_ context.Context, id, body string, public bool) error {
	r.calls = append(r.calls, call{op: "update", id: id, body: body, public: public})
	return r.err
}

func (r *recordingMutator) Delete(_ context.Context, id string) error {
	r.calls = append(r.calls, call{op: "delete", id: id})
	return r.err
}

func sampleList() *TaskList {
	l := &TaskList{}
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.replace([]domain.Task{
		{ID: "t2", Tarefa: "Walk dog", Created: ts.Add(time.Minute), User: "a@x.com"},
		{ID: "t1", Tarefa: "Buy milk", Created: ts, User: "a@x.com", Public: true},
	})
	return l
}

func TestEditorCreateModeSubmitsCreate(t *testing.T) {
	var e Editor
	m := &recordingMutator{}
	e.SetInput("Buy milk")

	if err := e.Submit(context.Background(), m, "a@x.com"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(m.calls) != 1 || m.calls[0] != (call{op: "create", body: "Buy milk", owner: "a@x.com"}) {
		t.Fatalf("unexpected calls %+v", m.calls)
	}
	if e.Form() != (Form{}) {
		t.Fatalf("form not reset: %+v", e.Form())
	}
}

func TestEditorEditModeSubmitsSingleUpdate(t *testing.T) {
	var e Editor
	m := &recordingMutator{}
	list := sampleList()

	if !e.Select("t1", list) {
		t.Fatal("select existing task failed")
	}
	f := e.Form()
	if f.Mode != ModeEdit || f.Input != "Buy milk" || !f.Public || f.TargetID != "t1" {
		t.Fatalf("form not prefilled: %+v", f)
	}

	e.SetInput("Buy oat milk")
	if err := e.Submit(context.Background(), m, "a@x.com"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(m.calls) != 1 {
		t.Fatalf("expected exactly one call, got %+v", m.calls)
	}
	if m.calls[0] != (call{op: "update", id: "t1", body: "Buy oat milk", public: true}) {
		t.Fatalf("unexpected call %+v", m.calls[0])
	}
	if e.Form().Mode != ModeCreate {
		t.Fatalf("expected create mode after update, got %v", e.Form().Mode)
	}
}

func TestEditorSelectRetargets(t *testing.T) {
	var e Editor
	list := sampleList()
	e.Select("t1", list)
	e.Select("t2", list)

	f := e.Form()
	if f.TargetID != "t2" || f.Input != "Walk dog" || f.Public {
		t.Fatalf("last selection should win: %+v", f)
	}
}

func TestEditorSelectMissingTaskIsNoop(t *testing.T) {
	var e Editor
	e.SetInput("draft")
	e.SetPublic(true)
	before := e.Form()

	if e.Select("gone", sampleList()) {
		t.Fatal("select of missing task reported success")
	}
	if e.Form() != before {
		t.Fatalf("form changed: %+v -> %+v", before, e.Form())
	}
}

func TestEditorEmptyInputIsSilentNoop(t *testing.T) {
	var e Editor
	m := &recordingMutator{}
	e.SetPublic(true)

	if err := e.Submit(context.Background(), m, "a@x.com"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(m.calls) != 0 {
		t.Fatalf("expected no mutation, got %+v", m.calls)
	}
	if !e.Form().Public {
		t.Fatal("no-op submit must not reset the form")
	}
}

func TestEditorKeepsInputOnFailure(t *testing.T) {
	var e Editor
	m := &recordingMutator{err: errors.New("store unavailable")}
	e.Select("t1", sampleList())
	e.SetInput("Buy oat milk")
	before := e.Form()

	if err := e.Submit(context.Background(), m, "a@x.com"); err == nil {
		t.Fatal("expected error")
	}
	if e.Form() != before {
		t.Fatalf("form changed on failure: %+v -> %+v", before, e.Form())
	}
}

func TestEditorCancel(t *testing.T) {
	var e Editor
	e.Select("t1", sampleList())
	e.Cancel()
	if e.Form() != (Form{}) {
		t.Fatalf("cancel did not reset: %+v", e.Form())
	}
}

func TestTaskListReplaceIsIdempotent(t *testing.T) {
	snapshot := sampleList().Tasks()
	var l TaskList
	l.replace(snapshot)
	first := l.Tasks()
	l.replace(snapshot)
	second := l.Tasks()

	if len(first) != len(second) {
		t.Fatalf("length changed %d -> %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("entry %d changed: %+v -> %+v", i, first[i], second[i])
		}
	}
}

func TestTaskListTasksReturnsCopy(t *testing.T) {
	l := sampleList()
	tasks := l.Tasks()
	tasks[0].Tarefa = "mutated"
	if got, _ := l.Find(tasks[0].ID); got.Tarefa == "mutated" {
		t.Fatal("caller mutation leaked into list")
	}
}
