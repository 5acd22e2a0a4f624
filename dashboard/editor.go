package dashboard

import "context"

// Mode tells whether the next submit creates a task or updates one.
type Mode int

const (
	ModeCreate Mode = iota
	ModeEdit
)

func (m Mode) String() string {
	if m == ModeEdit {
		return "edit"
	}
	return "create"
}

// Form is the state of the task form.
type Form struct {
	Mode     Mode   `json:"mode"`
	Input    string `json:"input"`
	Public   bool   `json:"public"`
	TargetID string `json:"targetId,omitempty"`
}

// Editor is the create/edit state machine behind the task form.
type Editor struct {
	form Form
}

func (e *Editor) Form() Form {
	return e.form
}

func (e *Editor) SetInput(s string) {
	e.form.Input = s
}

func (e *Editor) SetPublic(v bool) {
	e.form.Public = v
}

// Select enters edit mode for task id, prefilling the form from list. When id
// is not in the list nothing changes and false is returned.
func (e *Editor) Select(id string, list *TaskList) bool {
	t, ok := list.Find(id)
	if !ok {
		return false
	}
	e.form = Form{Mode: ModeEdit, Input: t.Tarefa, Public: t.Public, TargetID: t.ID}
	return true
}

// Cancel leaves edit mode and clears the form.
func (e *Editor) Cancel() {
	e.form = Form{}
}

// pending returns the form to submit; an empty input submits nothing.
func (e *Editor) pending() (Form, bool) {
	return e.form, e.form.Input != ""
}

// settle resets the form after a successful mutation. On failure the input is
// kept so the user can retry.
func (e *Editor) settle(err error) {
	if err == nil {
		e.form = Form{}
	}
}

// Submit sends the form through m and resets it on success.
func (e *Editor) Submit(ctx context.Context, m Mutator, owner string) error {
	f, ok := e.pending()
	if !ok {
		return nil
	}
	err := dispatch(ctx, m, owner, f)
	e.settle(err)
	return err
}

func dispatch(ctx context.Context, m Mutator, owner string, f Form) error {
	if f.Mode == ModeEdit {
		return m.Update(ctx, f.TargetID, f.Input, f.Public)
	}
	return m.Create(ctx, f.Input, f.Public, owner)
}
