package domain

// Validation bounds for task fields and per-record capacities. The capacities
// mirror the fixed size of a persisted record; a ledger at MaxTasks rejects
// further creations while an inbox at MaxNotifications silently drops its
// oldest entry.
const (
	MinTitleLength       = 1
	MaxTitleLength       = 50
	MinDescriptionLength = 1
	MaxDescriptionLength = 250
	MaxTasks             = 32
	MaxNotifications     = 32
)

// Task represents a single work item in an owner's ledger.
type Task struct {
	ID          uint64       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Creator     string       `json:"creator"`
	Assignee    string       `json:"assignee,omitempty"`
	Priority    TaskPriority `json:"priority"`
	Category    TaskCategory `json:"category"`
	Status      TaskStatus   `json:"status"`
	CreatedAt   int64        `json:"createdAt"`
	UpdatedAt   int64        `json:"updatedAt"`
	CompletedAt *int64       `json:"completedAt,omitempty"`
	Deadline    *int64       `json:"deadline,omitempty"`
}

// NewTask builds a pending task. The id is assigned by the owning ledger.
func NewTask(id uint64, title, description, creator, assignee string, priority TaskPriority, category TaskCategory, now int64) Task {
	return Task{
		ID:          id,
		Title:       title,
		Description: description,
		Creator:     creator,
		Assignee:    assignee,
		Priority:    priority,
		Category:    category,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// allowedTransitions holds the permitted status moves. Transitions out of a
// terminal status, and transitions to the current status, are rejected.
var allowedTransitions = map[TaskStatus][]TaskStatus{
	StatusPending:    {StatusInProgress, StatusCompleted, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// TransitionAllowed reports whether from -> to is in the transition table.
func TransitionAllowed(from, to TaskStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TodoList is the per-owner task ledger. Tasks are kept in insertion order,
// which is also id order: ids are assigned from TaskCount starting at zero
// and are never reused.
type TodoList struct {
	Owner               string `json:"owner"`
	Tasks               []Task `json:"tasks"`
	TaskCount           uint64 `json:"taskCount"`
	CompletedTaskStreak uint64 `json:"completedTaskStreak"`
	LastCompletedDate   *int64 `json:"lastCompletedDate,omitempty"`
	Bump                uint8  `json:"bump"`
}

// NewTodoList creates an empty ledger for owner.
func NewTodoList(owner string) *TodoList {
	return &TodoList{Owner: owner, Tasks: []Task{}}
}

// FindTask returns a pointer into the ledger for the task with the given id.
func (l *TodoList) FindTask(id uint64) (*Task, bool) {
	for i := range l.Tasks {
		if l.Tasks[i].ID == id {
			return &l.Tasks[i], true
		}
	}
	return nil, false
}

const secondsPerDay = 86400

// RecordCompletion updates the completion streak for a task completed at now.
// Completions on consecutive calendar days extend the streak, a second
// completion on the same day leaves it unchanged, and any longer gap resets
// it to one.
func (l *TodoList) RecordCompletion(now int64) {
	today := now / secondsPerDay
	switch {
	case l.LastCompletedDate == nil:
		l.CompletedTaskStreak = 1
	case *l.LastCompletedDate/secondsPerDay == today:
		// already counted today
	case *l.LastCompletedDate/secondsPerDay == today-1:
		l.CompletedTaskStreak++
	default:
		l.CompletedTaskStreak = 1
	}
	ts := now
	l.LastCompletedDate = &ts
}

// Stats summarizes a ledger for the read surface.
type Stats struct {
	ActiveTasks    int    `json:"activeTasks"`
	CompletedTasks int    `json:"completedTasks"`
	Streak         uint64 `json:"streak"`
}

// ComputeStats derives board statistics from the ledger.
func (l *TodoList) ComputeStats() Stats {
	s := Stats{Streak: l.CompletedTaskStreak}
	for i := range l.Tasks {
		switch l.Tasks[i].Status {
		case StatusCompleted:
			s.CompletedTasks++
		case StatusPending, StatusInProgress:
			s.ActiveTasks++
		}
	}
	return s
}
