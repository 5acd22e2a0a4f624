package domain

const (
	TaskCreated = "task-created"
	TaskUpdated = "task-updated"
	TaskDeleted = "task-deleted"
)

// Notice announces that a document of the collection changed. It carries no
// task data: receivers re-query the full list.
type Notice struct {
	ID         string `json:"id"`
	Collection string `json:"collection"`
	UserID     string `json:"userId,omitempty"`
	EntityID   string `json:"entityId"`
	Type       string `json:"type"`
	Time       int64  `json:"time"`
}
