package api

import (
	"encoding/json"

	"lockd-api/domain"
)

const postCommandMaxSize = 64 * 1024 // 64 KiB

// POST /api/commands response body. Results are positional: one entry per
// submitted command.
type commandsResponse struct {
	Results []commandResult `json:"results"`
}

type commandResult struct {
	IdempotencyKey string  `json:"idempotencyKey,omitempty"`
	TaskID         *uint64 `json:"taskId,omitempty"`
	Duplicate      bool    `json:"duplicate,omitempty"`
	ErrorKind      string  `json:"errorKind,omitempty"`
	Error          string  `json:"error,omitempty"`
}

type tasksResponse struct {
	Owner string        `json:"owner"`
	Tasks []domain.Task `json:"tasks"`
}

type notificationsResponse struct {
	Owner         string                `json:"owner"`
	Notifications []domain.Notification `json:"notifications"`
}

type accountResponse struct {
	Address string          `json:"address"`
	Version int64           `json:"version"`
	Data    json.RawMessage `json:"data"`
}

type healthResponse struct {
	Status    string          `json:"status"`
	Reminders *reminderHealth `json:"reminders,omitempty"`
}
