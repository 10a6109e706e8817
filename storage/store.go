package storage

import (
	"context"
	"errors"

	"github.com/bytedance/sonic"

	"lockd-api/domain"
)

var (
	// ErrNotFound indicates the address has no record.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict indicates a commit was guarded by a version that is
	// no longer current. The hosting environment serializes commands per
	// address, so a conflict means a misbehaving caller, not a retry case.
	ErrVersionConflict = errors.New("record version conflict")
)

// Record is a versioned account snapshot. Version starts at 1 on first
// commit; a Write carrying Version 0 asserts the record does not exist yet.
type Record struct {
	Address Address
	Data    []byte
	Version int64
}

// Write is one staged record replacement inside an atomic commit.
type Write struct {
	Address Address
	Data    []byte
	// Version observed at load time; the commit fails with
	// ErrVersionConflict when the stored version differs.
	Version int64
}

// Store is the account store: addressable, versioned records with atomic
// read-modify-write. CommitAll replaces every listed record or none of them;
// no partial write is ever observable.
type Store interface {
	Load(ctx context.Context, addr Address) (*Record, error)
	CommitAll(ctx context.Context, writes []Write) error
}

// EncodeTodoList serializes a ledger for persistence.
func EncodeTodoList(l *domain.TodoList) ([]byte, error) {
	return sonic.ConfigStd.Marshal(l)
}

// DecodeTodoList deserializes a ledger record.
func DecodeTodoList(data []byte) (*domain.TodoList, error) {
	var l domain.TodoList
	if err := sonic.ConfigStd.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// EncodeInbox serializes a notification inbox for persistence.
func EncodeInbox(in *domain.NotificationInbox) ([]byte, error) {
	return sonic.ConfigStd.Marshal(in)
}

// DecodeInbox deserializes a notification inbox record.
func DecodeInbox(data []byte) (*domain.NotificationInbox, error) {
	var in domain.NotificationInbox
	if err := sonic.ConfigStd.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	return &in, nil
}
