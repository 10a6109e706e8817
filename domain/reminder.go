package domain

// ReminderEvent is handed off to the external deadline scheduler after a
// set-task-reminder command commits. Delivery is advisory: the scheduler
// fires at Deadline, and a lost event never fails the command that produced
// it.
type ReminderEvent struct {
	Owner       string `json:"owner"`
	TaskID      uint64 `json:"taskId"`
	Title       string `json:"title"`
	Deadline    int64  `json:"deadline"`
	ScheduledAt int64  `json:"scheduledAt"`
}
