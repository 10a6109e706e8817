// Package ledger applies signed commands against per-owner task ledgers and
// their companion notification inboxes. It is the only mutator of either
// record kind: every command validates, authorizes, stages its changes on
// copies and commits them through the account store in a single atomic batch.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"lockd-api/domain"
	"lockd-api/storage"
)

// ReminderSink receives reminder events after their command has committed.
// Implementations must not block; delivery is advisory.
type ReminderSink interface {
	ScheduleReminder(ev domain.ReminderEvent)
}

// Processor is the command state machine over task ledgers.
type Processor struct {
	store     storage.Store
	clock     Clock
	logger    *log.Logger
	reminders ReminderSink
}

// New creates a Processor. The reminder sink may be nil when no external
// scheduler is wired.
func New(store storage.Store, clock Clock, logger *log.Logger, reminders ReminderSink) *Processor {
	if store == nil {
		panic("ledger.New: store is nil")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Processor{store: store, clock: clock, logger: logger, reminders: reminders}
}

// Result reports the outcome of one applied command. Touched lists the
// owners whose records the command changed so callers can invalidate any
// cached reads.
type Result struct {
	TaskID  *uint64  `json:"taskId,omitempty"`
	Touched []string `json:"-"`
}

// Apply validates, authorizes and atomically applies one command on behalf of
// the authenticated signer. Any failure aborts the command with no partial
// state change.
func (p *Processor) Apply(ctx context.Context, signer string, cmd domain.Command) (Result, error) {
	now := p.clock.Now().Unix()

	var (
		res Result
		err error
	)
	switch cmd.Type {
	case domain.CmdCreateTask:
		res, err = p.createTask(ctx, signer, cmd.Data, now)
	case domain.CmdUpdateStatus:
		res, err = p.updateStatus(ctx, signer, cmd.Data, now)
	case domain.CmdReassignTask:
		res, err = p.reassignTask(ctx, signer, cmd.Data, now)
	case domain.CmdSetReminder:
		res, err = p.setReminder(ctx, signer, cmd.Data, now)
	case domain.CmdMarkNotifRead:
		res, err = p.markNotificationRead(ctx, signer, cmd.Data)
	default:
		return Result{}, domain.ErrUnknownCommand
	}

	if err == nil {
		p.logger.WithFields(log.Fields{"command": cmd.Type, "signer": signer}).Debug("command applied")
	}
	return res, err
}

func decodePayload(data []byte, v any) error {
	if err := sonic.ConfigStd.Unmarshal(data, v); err != nil {
		var cmdErr *domain.CommandError
		if errors.As(err, &cmdErr) {
			return cmdErr
		}
		return domain.ErrInvalidPayload
	}
	return nil
}

func (p *Processor) createTask(ctx context.Context, signer string, data []byte, now int64) (Result, error) {
	var payload domain.CreateTaskPayload
	if err := decodePayload(data, &payload); err != nil {
		return Result{}, err
	}

	if len(payload.Title) < domain.MinTitleLength || len(payload.Title) > domain.MaxTitleLength {
		return Result{}, domain.ErrInvalidTitle
	}
	if len(payload.Description) < domain.MinDescriptionLength || len(payload.Description) > domain.MaxDescriptionLength {
		return Result{}, domain.ErrInvalidTitle
	}

	list, listVersion, err := p.loadTodoList(ctx, signer)
	if err != nil {
		return Result{}, err
	}
	if list == nil {
		list = domain.NewTodoList(signer)
	}
	if len(list.Tasks) >= domain.MaxTasks {
		return Result{}, domain.ErrMaxTasksLimitReached
	}

	id := list.TaskCount
	task := domain.NewTask(id, payload.Title, payload.Description, signer, payload.Assignee, payload.Priority, payload.Category, now)
	list.Tasks = append(list.Tasks, task)
	list.TaskCount++

	writes, err := p.stageTodoList(list, listVersion)
	if err != nil {
		return Result{}, err
	}

	if payload.Assignee != "" && payload.Assignee != signer {
		inboxWrite, err := p.stageNotification(ctx, payload.Assignee, domain.Notification{
			TaskID:    id,
			From:      signer,
			Title:     "Task Assigned: " + payload.Title,
			Timestamp: now,
		})
		if err != nil {
			return Result{}, err
		}
		writes = append(writes, inboxWrite...)
	}

	if err := p.store.CommitAll(ctx, writes); err != nil {
		return Result{}, err
	}
	touched := []string{signer}
	if payload.Assignee != "" && payload.Assignee != signer {
		touched = append(touched, payload.Assignee)
	}
	return Result{TaskID: &id, Touched: touched}, nil
}

func (p *Processor) updateStatus(ctx context.Context, signer string, data []byte, now int64) (Result, error) {
	var payload domain.UpdateStatusPayload
	if err := decodePayload(data, &payload); err != nil {
		return Result{}, err
	}

	list, listVersion, err := p.loadTodoList(ctx, signer)
	if err != nil {
		return Result{}, err
	}
	if list == nil {
		return Result{}, domain.ErrTaskNotFound
	}
	if err := authorize(signer, list.Owner); err != nil {
		return Result{}, err
	}

	task, ok := list.FindTask(payload.TaskID)
	if !ok {
		return Result{}, domain.ErrTaskNotFound
	}
	if task.Status == domain.StatusCompleted {
		return Result{}, domain.ErrTaskAlreadyCompleted
	}
	if !domain.TransitionAllowed(task.Status, payload.NewStatus) {
		return Result{}, domain.ErrInvalidStatusTransition
	}

	task.Status = payload.NewStatus
	task.UpdatedAt = now
	if payload.NewStatus == domain.StatusCompleted {
		ts := now
		task.CompletedAt = &ts
		list.RecordCompletion(now)
	}

	writes, err := p.stageTodoList(list, listVersion)
	if err != nil {
		return Result{}, err
	}
	if err := p.store.CommitAll(ctx, writes); err != nil {
		return Result{}, err
	}
	return Result{Touched: []string{signer}}, nil
}

func (p *Processor) reassignTask(ctx context.Context, signer string, data []byte, now int64) (Result, error) {
	var payload domain.ReassignPayload
	if err := decodePayload(data, &payload); err != nil {
		return Result{}, err
	}
	if payload.NewAssignee == "" {
		return Result{}, domain.ErrInvalidPayload
	}

	list, listVersion, err := p.loadTodoList(ctx, signer)
	if err != nil {
		return Result{}, err
	}
	if list == nil {
		return Result{}, domain.ErrTaskNotFound
	}

	task, ok := list.FindTask(payload.TaskID)
	if !ok {
		return Result{}, domain.ErrTaskNotFound
	}
	if err := authorize(signer, task.Creator); err != nil {
		return Result{}, err
	}
	if task.Status.Terminal() {
		return Result{}, domain.ErrTaskNotReassignable
	}

	task.Assignee = payload.NewAssignee
	task.UpdatedAt = now

	writes, err := p.stageTodoList(list, listVersion)
	if err != nil {
		return Result{}, err
	}
	inboxWrite, err := p.stageNotification(ctx, payload.NewAssignee, domain.Notification{
		TaskID:    task.ID,
		From:      signer,
		Title:     "Task Reassigned: " + task.Title,
		Timestamp: now,
	})
	if err != nil {
		return Result{}, err
	}
	writes = append(writes, inboxWrite...)

	if err := p.store.CommitAll(ctx, writes); err != nil {
		return Result{}, err
	}
	touched := []string{signer}
	if payload.NewAssignee != signer {
		touched = append(touched, payload.NewAssignee)
	}
	return Result{Touched: touched}, nil
}

func (p *Processor) setReminder(ctx context.Context, signer string, data []byte, now int64) (Result, error) {
	var payload domain.ReminderPayload
	if err := decodePayload(data, &payload); err != nil {
		return Result{}, err
	}

	list, listVersion, err := p.loadTodoList(ctx, signer)
	if err != nil {
		return Result{}, err
	}
	if list == nil {
		return Result{}, domain.ErrTaskNotFound
	}
	if err := authorize(signer, list.Owner); err != nil {
		return Result{}, err
	}
	if payload.Deadline <= now {
		return Result{}, domain.ErrInvalidDeadline
	}

	task, ok := list.FindTask(payload.TaskID)
	if !ok {
		return Result{}, domain.ErrTaskNotFound
	}

	deadline := payload.Deadline
	task.Deadline = &deadline
	task.UpdatedAt = now

	writes, err := p.stageTodoList(list, listVersion)
	if err != nil {
		return Result{}, err
	}
	inboxWrite, err := p.stageNotification(ctx, signer, domain.Notification{
		TaskID:    task.ID,
		From:      signer,
		Title:     reminderMessage(task.Title, payload.Deadline, now),
		Timestamp: now,
	})
	if err != nil {
		return Result{}, err
	}
	writes = append(writes, inboxWrite...)

	if err := p.store.CommitAll(ctx, writes); err != nil {
		return Result{}, err
	}

	if p.reminders != nil {
		p.reminders.ScheduleReminder(domain.ReminderEvent{
			Owner:       signer,
			TaskID:      task.ID,
			Title:       task.Title,
			Deadline:    payload.Deadline,
			ScheduledAt: now,
		})
	}
	return Result{Touched: []string{signer}}, nil
}

func (p *Processor) markNotificationRead(ctx context.Context, signer string, data []byte) (Result, error) {
	var payload domain.MarkReadPayload
	if err := decodePayload(data, &payload); err != nil {
		return Result{}, err
	}

	inbox, version, err := p.loadInbox(ctx, signer)
	if err != nil {
		return Result{}, err
	}
	if inbox == nil {
		return Result{}, domain.ErrNotificationNotFound
	}
	if err := authorize(signer, inbox.Owner); err != nil {
		return Result{}, err
	}
	if err := inbox.MarkRead(payload.Index); err != nil {
		return Result{}, err
	}

	data, err = storage.EncodeInbox(inbox)
	if err != nil {
		return Result{}, err
	}
	write := storage.Write{Address: storage.Derive(signer, storage.TagNotifications), Data: data, Version: version}
	if err := p.store.CommitAll(ctx, []storage.Write{write}); err != nil {
		return Result{}, err
	}
	return Result{Touched: []string{signer}}, nil
}

// authorize is the explicit signer check: the command's required authority
// must equal the authenticated caller.
func authorize(signer, required string) error {
	if signer != required {
		return domain.ErrUnauthorizedModification
	}
	return nil
}

// reminderMessage tiers the notification by urgency of the deadline.
func reminderMessage(title string, deadline, now int64) string {
	days := (deadline - now) / 86400
	switch {
	case days == 0:
		return fmt.Sprintf("URGENT: Task '%s' is due today!", title)
	case days == 1:
		return fmt.Sprintf("Task '%s' is due tomorrow!", title)
	case days <= 3:
		return fmt.Sprintf("Task '%s' is due in %d days", title, days)
	default:
		return fmt.Sprintf("Task '%s' is due on %s", title, time.Unix(deadline, 0).UTC().Format("02-01-2006"))
	}
}

func (p *Processor) loadTodoList(ctx context.Context, owner string) (*domain.TodoList, int64, error) {
	rec, err := p.store.Load(ctx, storage.Derive(owner, storage.TagTodoList))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	list, err := storage.DecodeTodoList(rec.Data)
	if err != nil {
		return nil, 0, err
	}
	return list, rec.Version, nil
}

func (p *Processor) loadInbox(ctx context.Context, owner string) (*domain.NotificationInbox, int64, error) {
	rec, err := p.store.Load(ctx, storage.Derive(owner, storage.TagNotifications))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	inbox, err := storage.DecodeInbox(rec.Data)
	if err != nil {
		return nil, 0, err
	}
	return inbox, rec.Version, nil
}

func (p *Processor) stageTodoList(list *domain.TodoList, version int64) ([]storage.Write, error) {
	data, err := storage.EncodeTodoList(list)
	if err != nil {
		return nil, err
	}
	return []storage.Write{{
		Address: storage.Derive(list.Owner, storage.TagTodoList),
		Data:    data,
		Version: version,
	}}, nil
}

// stageNotification loads or creates the recipient's inbox and stages it with
// the notification appended.
func (p *Processor) stageNotification(ctx context.Context, recipient string, n domain.Notification) ([]storage.Write, error) {
	inbox, version, err := p.loadInbox(ctx, recipient)
	if err != nil {
		return nil, err
	}
	if inbox == nil {
		inbox = domain.NewNotificationInbox(recipient)
	}
	inbox.Append(n)

	data, err := storage.EncodeInbox(inbox)
	if err != nil {
		return nil, err
	}
	return []storage.Write{{
		Address: storage.Derive(recipient, storage.TagNotifications),
		Data:    data,
		Version: version,
	}}, nil
}
