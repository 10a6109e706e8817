package storage

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"lockd-api/domain"
)

type countingReader struct {
	base        accountReader
	ledgerLoads int
	inboxLoads  int
}

func (c *countingReader) FetchTodoList(ctx context.Context, owner string) (*domain.TodoList, error) {
	c.ledgerLoads++
	return c.base.FetchTodoList(ctx, owner)
}

func (c *countingReader) FetchInbox(ctx context.Context, owner string) (*domain.NotificationInbox, error) {
	c.inboxLoads++
	return c.base.FetchInbox(ctx, owner)
}

func (c *countingReader) FetchRecord(ctx context.Context, addr Address) (*Record, error) {
	return c.base.FetchRecord(ctx, addr)
}

func seedLedger(t *testing.T, store Store, owner string, tasks int) {
	t.Helper()
	l := domain.NewTodoList(owner)
	for i := 0; i < tasks; i++ {
		l.Tasks = append(l.Tasks, domain.NewTask(uint64(i), "t", "d", owner, "", domain.PriorityCasual, domain.CategoryWork, int64(i)))
		l.TaskCount++
	}
	data, err := EncodeTodoList(l)
	if err != nil {
		t.Fatalf("encode ledger: %v", err)
	}
	if err := store.CommitAll(context.Background(), []Write{{Address: Derive(owner, TagTodoList), Data: data, Version: 0}}); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
}

func TestCacheServesSecondLedgerReadFromRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewMemoryStore()
	seedLedger(t, store, "alice", 2)
	counter := &countingReader{base: NewAccounts(store)}
	cache := NewCache(counter, client, time.Minute)

	ctx := context.Background()
	first, err := cache.FetchTodoList(ctx, "alice")
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := cache.FetchTodoList(ctx, "alice")
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if counter.ledgerLoads != 1 {
		t.Fatalf("expected one backing load, got %d", counter.ledgerLoads)
	}
	if len(first.Tasks) != 2 || len(second.Tasks) != 2 {
		t.Fatalf("unexpected task counts: %d and %d", len(first.Tasks), len(second.Tasks))
	}
}

func TestCacheEvictForcesReload(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewMemoryStore()
	seedLedger(t, store, "alice", 1)
	counter := &countingReader{base: NewAccounts(store)}
	cache := NewCache(counter, client, time.Minute)
	ctx := context.Background()

	if _, err := cache.FetchTodoList(ctx, "alice"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	cache.Evict(ctx, "alice")
	if _, err := cache.FetchTodoList(ctx, "alice"); err != nil {
		t.Fatalf("fetch after evict: %v", err)
	}
	if counter.ledgerLoads != 2 {
		t.Fatalf("expected reload after evict, loads=%d", counter.ledgerLoads)
	}
}

func TestCacheNilRedisFallsThrough(t *testing.T) {
	store := NewMemoryStore()
	seedLedger(t, store, "alice", 1)
	counter := &countingReader{base: NewAccounts(store)}
	cache := NewCache(counter, nil, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := cache.FetchTodoList(ctx, "alice"); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if counter.ledgerLoads != 2 {
		t.Fatalf("expected every read to hit backing storage, loads=%d", counter.ledgerLoads)
	}
}
