package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"lockd-api/domain"
	"lockd-api/storage"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type recordingSink struct {
	events []domain.ReminderEvent
}

func (s *recordingSink) ScheduleReminder(ev domain.ReminderEvent) {
	s.events = append(s.events, ev)
}

func newTestProcessor(t *testing.T) (*Processor, *storage.MemoryStore, *fakeClock, *recordingSink) {
	t.Helper()
	store := storage.NewMemoryStore()
	clock := &fakeClock{now: time.Unix(1_000_000, 0).UTC()}
	sink := &recordingSink{}
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return New(store, clock, logger, sink), store, clock, sink
}

func command(t *testing.T, typ string, payload any) domain.Command {
	t.Helper()
	data, err := sonic.ConfigStd.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return domain.Command{Type: typ, Data: data}
}

func createTask(t *testing.T, p *Processor, signer, title, assignee string) uint64 {
	t.Helper()
	res, err := p.Apply(context.Background(), signer, command(t, domain.CmdCreateTask, domain.CreateTaskPayload{
		Title:       title,
		Description: "a description",
		Priority:    domain.PriorityCasual,
		Category:    domain.CategoryWork,
		Assignee:    assignee,
	}))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if res.TaskID == nil {
		t.Fatal("create task returned no id")
	}
	return *res.TaskID
}

func fetchLedger(t *testing.T, store storage.Store, owner string) *domain.TodoList {
	t.Helper()
	list, err := storage.NewAccounts(store).FetchTodoList(context.Background(), owner)
	if err != nil {
		t.Fatalf("fetch ledger for %s: %v", owner, err)
	}
	return list
}

func fetchInbox(t *testing.T, store storage.Store, owner string) *domain.NotificationInbox {
	t.Helper()
	inbox, err := storage.NewAccounts(store).FetchInbox(context.Background(), owner)
	if err != nil {
		t.Fatalf("fetch inbox for %s: %v", owner, err)
	}
	return inbox
}

func TestCreateTaskValidatesTitleAndDescription(t *testing.T) {
	p, store, _, _ := newTestProcessor(t)
	ctx := context.Background()

	cases := []struct {
		name        string
		title       string
		description string
	}{
		{"empty title", "", "desc"},
		{"title too long", strings.Repeat("a", 51), "desc"},
		{"empty description", "title", ""},
		{"description too long", "title", strings.Repeat("d", 251)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Apply(ctx, "alice", command(t, domain.CmdCreateTask, domain.CreateTaskPayload{
				Title:       tc.title,
				Description: tc.description,
				Priority:    domain.PriorityCasual,
				Category:    domain.CategoryWork,
			}))
			if !errors.Is(err, domain.ErrInvalidTitle) {
				t.Fatalf("expected ErrInvalidTitle, got %v", err)
			}
		})
	}

	// Nothing was persisted: the ledger record does not exist.
	if _, err := storage.NewAccounts(store).FetchTodoList(ctx, "alice"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected no ledger after rejected creates, got %v", err)
	}

	// Bounds are inclusive.
	id := createTask(t, p, "alice", strings.Repeat("a", 50), "")
	if id != 0 {
		t.Fatalf("expected first id 0, got %d", id)
	}
}

func TestTaskIDsMonotonicPerOwner(t *testing.T) {
	p, store, _, _ := newTestProcessor(t)

	if id := createTask(t, p, "alice", "a0", ""); id != 0 {
		t.Fatalf("alice first id = %d", id)
	}
	if id := createTask(t, p, "bob", "b0", ""); id != 0 {
		t.Fatalf("bob first id = %d", id)
	}
	if id := createTask(t, p, "alice", "a1", ""); id != 1 {
		t.Fatalf("alice second id = %d", id)
	}
	if id := createTask(t, p, "alice", "a2", ""); id != 2 {
		t.Fatalf("alice third id = %d", id)
	}
	if id := createTask(t, p, "bob", "b1", ""); id != 1 {
		t.Fatalf("bob second id = %d", id)
	}

	list := fetchLedger(t, store, "alice")
	if list.TaskCount != 3 || len(list.Tasks) != 3 {
		t.Fatalf("unexpected alice ledger: count=%d tasks=%d", list.TaskCount, len(list.Tasks))
	}
	for i, task := range list.Tasks {
		if task.ID != uint64(i) {
			t.Fatalf("task %d has id %d", i, task.ID)
		}
	}
}

func TestCreateTaskNotifiesAssignee(t *testing.T) {
	p, store, clock, _ := newTestProcessor(t)
	ctx := context.Background()

	id := createTask(t, p, "alice", "Ship v1", "bob")
	inbox := fetchInbox(t, store, "bob")
	if len(inbox.Notifications) != 1 {
		t.Fatalf("expected one notification, got %d", len(inbox.Notifications))
	}
	n := inbox.Notifications[0]
	if n.TaskID != id || n.From != "alice" || n.Read {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if n.Title != "Task Assigned: Ship v1" {
		t.Fatalf("unexpected title: %q", n.Title)
	}
	if n.Timestamp != clock.Now().Unix() {
		t.Fatalf("unexpected timestamp: %d", n.Timestamp)
	}

	// Self-assignment emits no notification.
	createTask(t, p, "carol", "mine", "carol")
	if _, err := storage.NewAccounts(store).FetchInbox(ctx, "carol"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected no inbox for self-assignment, got %v", err)
	}
}

func TestCompleteIsOneWay(t *testing.T) {
	p, store, clock, _ := newTestProcessor(t)
	ctx := context.Background()

	id := createTask(t, p, "alice", "Ship v1", "bob")
	if id != 0 {
		t.Fatalf("expected id 0, got %d", id)
	}

	if _, err := p.Apply(ctx, "alice", command(t, domain.CmdUpdateStatus, domain.UpdateStatusPayload{TaskID: id, NewStatus: domain.StatusInProgress})); err != nil {
		t.Fatalf("to in-progress: %v", err)
	}
	if _, err := p.Apply(ctx, "alice", command(t, domain.CmdUpdateStatus, domain.UpdateStatusPayload{TaskID: id, NewStatus: domain.StatusCompleted})); err != nil {
		t.Fatalf("to completed: %v", err)
	}

	list := fetchLedger(t, store, "alice")
	task, ok := list.FindTask(id)
	if !ok {
		t.Fatal("task missing")
	}
	if task.CompletedAt == nil || *task.CompletedAt != clock.Now().Unix() {
		t.Fatalf("completedAt not set: %v", task.CompletedAt)
	}
	if list.CompletedTaskStreak != 1 {
		t.Fatalf("expected streak 1, got %d", list.CompletedTaskStreak)
	}

	// Every later update fails with the dedicated completed error.
	for _, next := range []domain.TaskStatus{domain.StatusInProgress, domain.StatusPending, domain.StatusCancelled, domain.StatusCompleted} {
		_, err := p.Apply(ctx, "alice", command(t, domain.CmdUpdateStatus, domain.UpdateStatusPayload{TaskID: id, NewStatus: next}))
		if !errors.Is(err, domain.ErrTaskAlreadyCompleted) {
			t.Fatalf("expected ErrTaskAlreadyCompleted for -> %s, got %v", next, err)
		}
	}
}

func TestStatusTransitionRules(t *testing.T) {
	p, _, _, _ := newTestProcessor(t)
	ctx := context.Background()

	// Direct completion from pending is permitted.
	id := createTask(t, p, "alice", "direct", "")
	if _, err := p.Apply(ctx, "alice", command(t, domain.CmdUpdateStatus, domain.UpdateStatusPayload{TaskID: id, NewStatus: domain.StatusCompleted})); err != nil {
		t.Fatalf("pending -> completed: %v", err)
	}

	// Transition to the current status is rejected.
	id = createTask(t, p, "alice", "same", "")
	_, err := p.Apply(ctx, "alice", command(t, domain.CmdUpdateStatus, domain.UpdateStatusPayload{TaskID: id, NewStatus: domain.StatusPending}))
	if !errors.Is(err, domain.ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}

	// Cancelled is terminal.
	if _, err := p.Apply(ctx, "alice", command(t, domain.CmdUpdateStatus, domain.UpdateStatusPayload{TaskID: id, NewStatus: domain.StatusCancelled})); err != nil {
		t.Fatalf("pending -> cancelled: %v", err)
	}
	_, err = p.Apply(ctx, "alice", command(t, domain.CmdUpdateStatus, domain.UpdateStatusPayload{TaskID: id, NewStatus: domain.StatusInProgress}))
	if !errors.Is(err, domain.ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition out of cancelled, got %v", err)
	}
}

func TestUpdateStatusMissingTask(t *testing.T) {
	p, _, _, _ := newTestProcessor(t)
	ctx := context.Background()

	// No ledger at all.
	_, err := p.Apply(ctx, "alice", command(t, domain.CmdUpdateStatus, domain.UpdateStatusPayload{TaskID: 0, NewStatus: domain.StatusInProgress}))
	if !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}

	// Ledger exists but id does not.
	createTask(t, p, "alice", "only", "")
	_, err = p.Apply(ctx, "alice", command(t, domain.CmdUpdateStatus, domain.UpdateStatusPayload{TaskID: 42, NewStatus: domain.StatusInProgress}))
	if !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound for unknown id, got %v", err)
	}
}

func TestStreakAcrossDays(t *testing.T) {
	p, store, clock, _ := newTestProcessor(t)
	ctx := context.Background()

	complete := func(id uint64) {
		t.Helper()
		if _, err := p.Apply(ctx, "alice", command(t, domain.CmdUpdateStatus, domain.UpdateStatusPayload{TaskID: id, NewStatus: domain.StatusCompleted})); err != nil {
			t.Fatalf("complete %d: %v", id, err)
		}
	}

	ids := make([]uint64, 4)
	for i := range ids {
		ids[i] = createTask(t, p, "alice", fmt.Sprintf("task %d", i), "")
	}

	complete(ids[0])
	if got := fetchLedger(t, store, "alice").CompletedTaskStreak; got != 1 {
		t.Fatalf("streak after first completion = %d", got)
	}

	// Same day: unchanged.
	complete(ids[1])
	if got := fetchLedger(t, store, "alice").CompletedTaskStreak; got != 1 {
		t.Fatalf("streak after same-day completion = %d", got)
	}

	// Next day: extended.
	clock.Advance(24 * time.Hour)
	complete(ids[2])
	if got := fetchLedger(t, store, "alice").CompletedTaskStreak; got != 2 {
		t.Fatalf("streak after next-day completion = %d", got)
	}

	// Three days later: reset.
	clock.Advance(72 * time.Hour)
	complete(ids[3])
	if got := fetchLedger(t, store, "alice").CompletedTaskStreak; got != 1 {
		t.Fatalf("streak after gap = %d", got)
	}
}

func TestReassignTask(t *testing.T) {
	p, store, _, _ := newTestProcessor(t)
	ctx := context.Background()

	id := createTask(t, p, "alice", "unassigned", "")
	if _, err := p.Apply(ctx, "alice", command(t, domain.CmdReassignTask, domain.ReassignPayload{TaskID: id, NewAssignee: "bob"})); err != nil {
		t.Fatalf("reassign: %v", err)
	}

	task, ok := fetchLedger(t, store, "alice").FindTask(id)
	if !ok || task.Assignee != "bob" {
		t.Fatalf("assignee not updated: %+v", task)
	}

	inbox := fetchInbox(t, store, "bob")
	if len(inbox.Notifications) != 1 {
		t.Fatalf("expected one notification for bob, got %d", len(inbox.Notifications))
	}
	n := inbox.Notifications[0]
	if !strings.Contains(n.Title, "Task Reassigned") || n.From != "alice" || n.Read {
		t.Fatalf("unexpected notification: %+v", n)
	}

	// The caller's own inbox is untouched.
	if _, err := storage.NewAccounts(store).FetchInbox(ctx, "alice"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected alice inbox absent, got %v", err)
	}
}

func TestReassignTerminalTaskRejected(t *testing.T) {
	p, _, _, _ := newTestProcessor(t)
	ctx := context.Background()

	id := createTask(t, p, "alice", "done soon", "")
	if _, err := p.Apply(ctx, "alice", command(t, domain.CmdUpdateStatus, domain.UpdateStatusPayload{TaskID: id, NewStatus: domain.StatusCompleted})); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_, err := p.Apply(ctx, "alice", command(t, domain.CmdReassignTask, domain.ReassignPayload{TaskID: id, NewAssignee: "bob"}))
	if !errors.Is(err, domain.ErrTaskNotReassignable) {
		t.Fatalf("expected ErrTaskNotReassignable, got %v", err)
	}

	id = createTask(t, p, "alice", "cancelled", "")
	if _, err := p.Apply(ctx, "alice", command(t, domain.CmdUpdateStatus, domain.UpdateStatusPayload{TaskID: id, NewStatus: domain.StatusCancelled})); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err = p.Apply(ctx, "alice", command(t, domain.CmdReassignTask, domain.ReassignPayload{TaskID: id, NewAssignee: "bob"}))
	if !errors.Is(err, domain.ErrTaskNotReassignable) {
		t.Fatalf("expected ErrTaskNotReassignable for cancelled task, got %v", err)
	}
}

func TestReassignRequiresCreator(t *testing.T) {
	p, store, _, _ := newTestProcessor(t)
	ctx := context.Background()

	// Seed a ledger whose task was created by a different identity than the
	// record owner, so the creator predicate is observable on its own.
	list := domain.NewTodoList("alice")
	list.Tasks = append(list.Tasks, domain.NewTask(0, "seeded", "desc", "carol", "", domain.PriorityCasual, domain.CategoryWork, 1))
	list.TaskCount = 1
	data, err := storage.EncodeTodoList(list)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := store.CommitAll(ctx, []storage.Write{{Address: storage.Derive("alice", storage.TagTodoList), Data: data, Version: 0}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err = p.Apply(ctx, "alice", command(t, domain.CmdReassignTask, domain.ReassignPayload{TaskID: 0, NewAssignee: "bob"}))
	if !errors.Is(err, domain.ErrUnauthorizedModification) {
		t.Fatalf("expected ErrUnauthorizedModification, got %v", err)
	}
}

func TestSetReminder(t *testing.T) {
	p, store, clock, sink := newTestProcessor(t)
	ctx := context.Background()

	id := createTask(t, p, "alice", "Ship v1", "")
	now := clock.Now().Unix()

	// Past and present deadlines are rejected; the task keeps no deadline.
	for _, bad := range []int64{now - 1, now} {
		_, err := p.Apply(ctx, "alice", command(t, domain.CmdSetReminder, domain.ReminderPayload{TaskID: id, Deadline: bad}))
		if !errors.Is(err, domain.ErrInvalidDeadline) {
			t.Fatalf("expected ErrInvalidDeadline for %d, got %v", bad, err)
		}
	}
	if task, _ := fetchLedger(t, store, "alice").FindTask(id); task.Deadline != nil {
		t.Fatalf("deadline set despite rejection: %v", *task.Deadline)
	}

	deadline := now + 3600
	if _, err := p.Apply(ctx, "alice", command(t, domain.CmdSetReminder, domain.ReminderPayload{TaskID: id, Deadline: deadline})); err != nil {
		t.Fatalf("set reminder: %v", err)
	}

	task, _ := fetchLedger(t, store, "alice").FindTask(id)
	if task.Deadline == nil || *task.Deadline != deadline {
		t.Fatalf("deadline not applied: %v", task.Deadline)
	}

	inbox := fetchInbox(t, store, "alice")
	if len(inbox.Notifications) != 1 {
		t.Fatalf("expected reminder notification, got %d", len(inbox.Notifications))
	}
	if inbox.Notifications[0].Title != "URGENT: Task 'Ship v1' is due today!" {
		t.Fatalf("unexpected reminder title: %q", inbox.Notifications[0].Title)
	}

	if len(sink.events) != 1 {
		t.Fatalf("expected one reminder event, got %d", len(sink.events))
	}
	ev := sink.events[0]
	if ev.Owner != "alice" || ev.TaskID != id || ev.Deadline != deadline {
		t.Fatalf("unexpected reminder event: %+v", ev)
	}
}

func TestReminderMessageTiers(t *testing.T) {
	const day = int64(86400)
	cases := []struct {
		deadline int64
		want     string
	}{
		{3600, "URGENT: Task 'T' is due today!"},
		{day + 1, "Task 'T' is due tomorrow!"},
		{3 * day, "Task 'T' is due in 3 days"},
		{10 * day, "Task 'T' is due on 11-01-1970"},
	}
	for _, tc := range cases {
		if got := reminderMessage("T", tc.deadline, 0); got != tc.want {
			t.Fatalf("reminderMessage(%d) = %q, want %q", tc.deadline, got, tc.want)
		}
	}
}

func TestMarkNotificationRead(t *testing.T) {
	p, store, _, _ := newTestProcessor(t)
	ctx := context.Background()

	createTask(t, p, "alice", "Ship v1", "bob")

	if _, err := p.Apply(ctx, "bob", command(t, domain.CmdMarkNotifRead, domain.MarkReadPayload{Index: 0})); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if !fetchInbox(t, store, "bob").Notifications[0].Read {
		t.Fatal("notification not marked read")
	}

	_, err := p.Apply(ctx, "bob", command(t, domain.CmdMarkNotifRead, domain.MarkReadPayload{Index: 5}))
	if !errors.Is(err, domain.ErrNotificationNotFound) {
		t.Fatalf("expected ErrNotificationNotFound, got %v", err)
	}

	// No inbox at all.
	_, err = p.Apply(ctx, "carol", command(t, domain.CmdMarkNotifRead, domain.MarkReadPayload{Index: 0}))
	if !errors.Is(err, domain.ErrNotificationNotFound) {
		t.Fatalf("expected ErrNotificationNotFound without inbox, got %v", err)
	}
}

func TestCreateTaskEnumValidationAtBoundary(t *testing.T) {
	p, _, _, _ := newTestProcessor(t)
	ctx := context.Background()

	_, err := p.Apply(ctx, "alice", domain.Command{
		Type: domain.CmdCreateTask,
		Data: []byte(`{"title":"t","description":"d","priority":"extreme","category":"work"}`),
	})
	if !errors.Is(err, domain.ErrInvalidPriority) {
		t.Fatalf("expected ErrInvalidPriority, got %v", err)
	}

	_, err = p.Apply(ctx, "alice", domain.Command{
		Type: domain.CmdCreateTask,
		Data: []byte(`{"title":"t","description":"d","priority":"urgent","category":"garage"}`),
	})
	if !errors.Is(err, domain.ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestMaxTasksLimit(t *testing.T) {
	p, store, _, _ := newTestProcessor(t)
	ctx := context.Background()

	for i := 0; i < domain.MaxTasks; i++ {
		createTask(t, p, "alice", fmt.Sprintf("task %d", i), "")
	}
	_, err := p.Apply(ctx, "alice", command(t, domain.CmdCreateTask, domain.CreateTaskPayload{
		Title:       "one too many",
		Description: "d",
		Priority:    domain.PriorityCasual,
		Category:    domain.CategoryWork,
	}))
	if !errors.Is(err, domain.ErrMaxTasksLimitReached) {
		t.Fatalf("expected ErrMaxTasksLimitReached, got %v", err)
	}
	if got := fetchLedger(t, store, "alice").TaskCount; got != domain.MaxTasks {
		t.Fatalf("taskCount moved on rejected create: %d", got)
	}
}

func TestUnknownCommandRejected(t *testing.T) {
	p, _, _, _ := newTestProcessor(t)
	_, err := p.Apply(context.Background(), "alice", domain.Command{Type: "drop-ledger"})
	if !errors.Is(err, domain.ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}
