package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
)

func TestTaskMarshalRoundTripsEnums(t *testing.T) {
	task := NewTask(0, "Title", "Desc", "alice", "bob", PriorityUrgent, CategoryWork, 100)

	payload, err := sonic.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	if !strings.Contains(string(payload), `"priority":"urgent"`) {
		t.Fatalf("expected priority tag, got %s", payload)
	}
	if !strings.Contains(string(payload), `"status":"pending"`) {
		t.Fatalf("expected status tag, got %s", payload)
	}

	var decoded Task
	if err := sonic.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if decoded.Priority != PriorityUrgent || decoded.Category != CategoryWork || decoded.Status != StatusPending {
		t.Fatalf("unexpected enums after round trip: %+v", decoded)
	}
}

func TestUnknownEnumTagsRejected(t *testing.T) {
	var p CreateTaskPayload
	err := sonic.Unmarshal([]byte(`{"title":"t","description":"d","priority":"extreme","category":"work"}`), &p)
	if !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("expected ErrInvalidPriority, got %v", err)
	}

	err = sonic.Unmarshal([]byte(`{"title":"t","description":"d","priority":"urgent","category":"garage"}`), &p)
	if !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}

	var u UpdateStatusPayload
	err = sonic.Unmarshal([]byte(`{"taskId":0,"newStatus":"paused"}`), &u)
	if !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to TaskStatus
		ok       bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusCompleted, true},
		{StatusPending, StatusCancelled, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusPending, StatusPending, false},
		{StatusInProgress, StatusPending, false},
		{StatusInProgress, StatusInProgress, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusCompleted, StatusPending, false},
		{StatusCancelled, StatusInProgress, false},
		{StatusCancelled, StatusCompleted, false},
	}
	for _, tc := range cases {
		if got := TransitionAllowed(tc.from, tc.to); got != tc.ok {
			t.Fatalf("transition %s -> %s: expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestRecordCompletionStreak(t *testing.T) {
	l := NewTodoList("alice")

	l.RecordCompletion(100)
	if l.CompletedTaskStreak != 1 {
		t.Fatalf("first completion should start streak at 1, got %d", l.CompletedTaskStreak)
	}

	// Same calendar day: unchanged.
	l.RecordCompletion(secondsPerDay - 1)
	if l.CompletedTaskStreak != 1 {
		t.Fatalf("same-day completion should not change streak, got %d", l.CompletedTaskStreak)
	}

	// Next calendar day: extended.
	l.RecordCompletion(secondsPerDay + 10)
	if l.CompletedTaskStreak != 2 {
		t.Fatalf("consecutive-day completion should extend streak, got %d", l.CompletedTaskStreak)
	}

	// Two days later: reset.
	l.RecordCompletion(4 * secondsPerDay)
	if l.CompletedTaskStreak != 1 {
		t.Fatalf("gap should reset streak to 1, got %d", l.CompletedTaskStreak)
	}
	if l.LastCompletedDate == nil || *l.LastCompletedDate != 4*secondsPerDay {
		t.Fatalf("lastCompletedDate not updated: %v", l.LastCompletedDate)
	}
}

func TestInboxEvictionAndMarkRead(t *testing.T) {
	in := NewNotificationInbox("bob")
	for i := 0; i < MaxNotifications+3; i++ {
		in.Append(Notification{TaskID: uint64(i), From: "alice", Title: "n", Timestamp: int64(i)})
	}
	if len(in.Notifications) != MaxNotifications {
		t.Fatalf("expected inbox capped at %d, got %d", MaxNotifications, len(in.Notifications))
	}
	if in.Notifications[0].TaskID != 3 {
		t.Fatalf("expected oldest entries evicted, first is task %d", in.Notifications[0].TaskID)
	}

	if err := in.MarkRead(0); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if !in.Notifications[0].Read {
		t.Fatal("expected notification marked read")
	}
	// Idempotent.
	if err := in.MarkRead(0); err != nil {
		t.Fatalf("repeat mark read: %v", err)
	}
	if err := in.MarkRead(len(in.Notifications)); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("expected ErrNotificationNotFound, got %v", err)
	}
}

func TestComputeStats(t *testing.T) {
	l := NewTodoList("alice")
	done := int64(10)
	l.Tasks = []Task{
		{ID: 0, Status: StatusPending},
		{ID: 1, Status: StatusInProgress},
		{ID: 2, Status: StatusCompleted, CompletedAt: &done},
		{ID: 3, Status: StatusCancelled},
	}
	l.CompletedTaskStreak = 4

	s := l.ComputeStats()
	if s.ActiveTasks != 2 || s.CompletedTasks != 1 || s.Streak != 4 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}
