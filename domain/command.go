package domain

import "github.com/bytedance/sonic"

// Command types accepted by the processor.
const (
	CmdCreateTask    = "create-task"
	CmdUpdateStatus  = "update-task-status"
	CmdReassignTask  = "reassign-task"
	CmdSetReminder   = "set-task-reminder"
	CmdMarkNotifRead = "mark-notification-read"
)

// Command represents a single signed write request against the ledger.
type Command struct {
	// ID carries the idempotency key once one has been assigned.
	ID             string                 `json:"id,omitempty"`
	IdempotencyKey string                 `json:"idempotencyKey,omitempty"`
	Type           string                 `json:"type"`
	Data           sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp      int64                  `json:"timestamp,omitempty"`
}

// CreateTaskPayload is the data body of a create-task command.
type CreateTaskPayload struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Priority    TaskPriority `json:"priority"`
	Category    TaskCategory `json:"category"`
	Assignee    string       `json:"assignee,omitempty"`
}

// UpdateStatusPayload is the data body of an update-task-status command.
type UpdateStatusPayload struct {
	TaskID    uint64     `json:"taskId"`
	NewStatus TaskStatus `json:"newStatus"`
}

// ReassignPayload is the data body of a reassign-task command.
type ReassignPayload struct {
	TaskID      uint64 `json:"taskId"`
	NewAssignee string `json:"newAssignee"`
}

// ReminderPayload is the data body of a set-task-reminder command.
type ReminderPayload struct {
	TaskID   uint64 `json:"taskId"`
	Deadline int64  `json:"deadline"`
}

// MarkReadPayload is the data body of a mark-notification-read command.
type MarkReadPayload struct {
	Index int `json:"index"`
}
