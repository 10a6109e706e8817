package api

import (
	"context"

	"lockd-api/domain"
	"lockd-api/ledger"
	"lockd-api/storage"
)

// Reader serves the query surface: decoded ledgers and inboxes by owner,
// plus raw records by derived address.
type Reader interface {
	FetchTodoList(ctx context.Context, owner string) (*domain.TodoList, error)
	FetchInbox(ctx context.Context, owner string) (*domain.NotificationInbox, error)
	FetchRecord(ctx context.Context, addr storage.Address) (*storage.Record, error)
}

// Evictor invalidates cached reads for the given owners. Readers without a
// cache may omit it.
type Evictor interface {
	Evict(ctx context.Context, owners ...string)
}

// Processor applies one authenticated command against the account store.
type Processor interface {
	Apply(ctx context.Context, signer string, cmd domain.Command) (ledger.Result, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of replayed commands.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when processing fails so the
	// caller may retry.
	Remove(ctx context.Context, userID, key string) error
}
