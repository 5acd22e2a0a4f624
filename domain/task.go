package domain

import (
	"sort"
	"time"
)

// Collection is the document collection holding every task.
const Collection = "tarefas"

// Task represents a single item of an owner's list.
type Task struct {
	ID      string    `json:"id"`
	Tarefa  string    `json:"tarefa"`
	Created time.Time `json:"created"`
	User    string    `json:"user"`
	Public  bool      `json:"public"`
}

// SortTasks orders tasks newest first. Equal timestamps fall back to the id,
// which is time ordered, so later inserts come first.
func SortTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].Created.Equal(tasks[j].Created) {
			return tasks[i].Created.After(tasks[j].Created)
		}
		return tasks[i].ID > tasks[j].ID
	})
}
