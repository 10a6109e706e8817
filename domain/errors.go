package domain

// CommandError is a terminal validation or authorization failure. Every
// failure aborts the whole command with no partial state change; nothing is
// retried internally.
type CommandError struct {
	Kind string
	msg  string
}

func (e *CommandError) Error() string { return e.msg }

var (
	ErrInvalidTitle             = &CommandError{Kind: "invalid_title", msg: "Invalid task title or description"}
	ErrTaskAlreadyCompleted     = &CommandError{Kind: "task_already_completed", msg: "Task already completed"}
	ErrUnauthorizedModification = &CommandError{Kind: "unauthorized_modification", msg: "Unauthorized task modification"}
	ErrInvalidPriority          = &CommandError{Kind: "invalid_priority", msg: "Invalid task priority"}
	ErrInvalidCategory          = &CommandError{Kind: "invalid_category", msg: "Invalid task category"}
	ErrMaxTasksLimitReached     = &CommandError{Kind: "max_tasks_limit_reached", msg: "Maximum tasks limit reached"}
	ErrInvalidStatusTransition  = &CommandError{Kind: "invalid_status_transition", msg: "Invalid task status transition"}
	ErrTaskNotFound             = &CommandError{Kind: "task_not_found", msg: "Task not found"}
	ErrInvalidDeadline          = &CommandError{Kind: "invalid_deadline", msg: "Invalid deadline - must be in the future"}
	ErrTaskNotReassignable      = &CommandError{Kind: "task_not_reassignable", msg: "Task in a terminal status cannot be reassigned"}
	ErrNotificationNotFound     = &CommandError{Kind: "notification_not_found", msg: "Notification not found"}
	ErrUnknownCommand           = &CommandError{Kind: "unknown_command", msg: "Unknown command type"}
	ErrInvalidPayload           = &CommandError{Kind: "invalid_payload", msg: "Malformed command payload"}
)
