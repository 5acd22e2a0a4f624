package dashboard

import "tarefasplus/domain"

// TaskList mirrors the latest snapshot delivered by the live subscription. It
// is only ever replaced wholesale, never patched.
type TaskList struct {
	tasks []domain.Task
}

// Tasks returns a copy of the current list.
func (l *TaskList) Tasks() []domain.Task {
	out := make([]domain.Task, len(l.tasks))
	copy(out, l.tasks)
	return out
}

// Find looks a task up by id.
func (l *TaskList) Find(id string) (domain.Task, bool) {
	for _, t := range l.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

func (l *TaskList) replace(tasks []domain.Task) {
	l.tasks = append([]domain.Task(nil), tasks...)
}
