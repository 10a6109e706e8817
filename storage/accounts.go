package storage

import (
	"context"

	"lockd-api/domain"
)

// Accounts is the typed read surface over a Store: it derives addresses for
// an identity and decodes the records behind them.
type Accounts struct {
	store Store
}

// NewAccounts wraps a Store with the record codecs.
func NewAccounts(store Store) *Accounts {
	if store == nil {
		panic("storage.NewAccounts: store is nil")
	}
	return &Accounts{store: store}
}

// FetchTodoList loads the ledger owned by the given identity. ErrNotFound is
// returned when the owner has never created a task.
func (a *Accounts) FetchTodoList(ctx context.Context, owner string) (*domain.TodoList, error) {
	rec, err := a.store.Load(ctx, Derive(owner, TagTodoList))
	if err != nil {
		return nil, err
	}
	return DecodeTodoList(rec.Data)
}

// FetchInbox loads the notification inbox owned by the given identity.
func (a *Accounts) FetchInbox(ctx context.Context, owner string) (*domain.NotificationInbox, error) {
	rec, err := a.store.Load(ctx, Derive(owner, TagNotifications))
	if err != nil {
		return nil, err
	}
	return DecodeInbox(rec.Data)
}

// FetchRecord loads a raw record by derived address for external callers that
// compute addresses themselves.
func (a *Accounts) FetchRecord(ctx context.Context, addr Address) (*Record, error) {
	return a.store.Load(ctx, addr)
}
