package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"lockd-api/domain"
)

// TableStore persists account records in Azure Table storage, one entity per
// derived address. Azure Tables cannot commit across partitions atomically,
// so CommitAll applies writes in ascending address order with records after
// the first retried on transient failures before the error is surfaced.
type TableStore struct {
	table *aztables.Client
}

// NewTableStore creates a TableStore from the given connection string.
func NewTableStore(connStr, table string) (*TableStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableStore{table: svc.NewClient(table)}, nil
}

type accountEntity struct {
	aztables.Entity
	ETag    string `json:"odata.etag,omitempty"`
	Data    string `json:"Data"`
	Version int64  `json:"Version"`
}

func (s *TableStore) Load(ctx context.Context, addr Address) (*Record, error) {
	resp, err := s.table.GetEntity(ctx, string(addr), string(addr), nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var ent accountEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	return &Record{Address: addr, Data: []byte(ent.Data), Version: ent.Version}, nil
}

func (s *TableStore) CommitAll(ctx context.Context, writes []Write) error {
	ordered := make([]Write, len(writes))
	copy(ordered, writes)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Address < ordered[j].Address })

	for i, w := range ordered {
		err := s.commitOne(ctx, w)
		if err == nil {
			continue
		}
		if i == 0 || !transient(err) {
			return err
		}
		// A trailing write after an already-committed one: retry before
		// surfacing, per the documented recovery rule.
		for attempt := 0; attempt < 3 && transient(err); attempt++ {
			time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
			err = s.commitOne(ctx, w)
		}
		if err != nil {
			return fmt.Errorf("commit incomplete after %d of %d records: %w", i, len(ordered), err)
		}
	}
	return nil
}

func (s *TableStore) commitOne(ctx context.Context, w Write) error {
	ent := accountEntity{
		Entity: aztables.Entity{
			PartitionKey: string(w.Address),
			RowKey:       string(w.Address),
		},
		Data:    string(w.Data),
		Version: w.Version + 1,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}

	if w.Version == 0 {
		_, err = s.table.AddEntity(ctx, payload, nil)
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 409 {
			return ErrVersionConflict
		}
		return err
	}

	current, err := s.table.GetEntity(ctx, string(w.Address), string(w.Address), nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return ErrVersionConflict
		}
		return err
	}
	var stored accountEntity
	if err := json.Unmarshal(current.Value, &stored); err != nil {
		return err
	}
	if stored.Version != w.Version {
		return ErrVersionConflict
	}

	etag := azcore.ETag(stored.ETag)
	_, err = s.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &etag,
		UpdateMode: aztables.UpdateModeReplace,
	})
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == 412 {
		return ErrVersionConflict
	}
	return err
}

func transient(err error) bool {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return false
	}
	switch respErr.StatusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// ReminderQueue forwards reminder events to the queue the external deadline
// scheduler consumes.
type ReminderQueue struct {
	queue *azqueue.QueueClient
}

// NewReminderQueue creates a queue client for reminder hand-off.
func NewReminderQueue(connStr, queue string) (*ReminderQueue, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	qc, err := azqueue.NewQueueClientFromConnectionString(connStr, queue, &opts)
	if err != nil {
		return nil, err
	}
	return &ReminderQueue{queue: qc}, nil
}

// Enqueue sends one reminder event.
func (q *ReminderQueue) Enqueue(ctx context.Context, ev domain.ReminderEvent) error {
	data, err := sonic.ConfigStd.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = q.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}
