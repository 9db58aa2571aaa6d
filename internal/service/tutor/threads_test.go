package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryThreadStoreTakeOnce(t *testing.T) {
	store := NewMemoryThreadStore(time.Minute)
	ctx := context.Background()

	if err := store.Save(ctx, PendingThread{ID: "t1", Note: "## Note"}); err != nil {
		t.Fatalf("Save err: %v", err)
	}
	thread, err := store.Take(ctx, "t1")
	if err != nil || thread.Note != "## Note" {
		t.Fatalf("unexpected take: %#v, %v", thread, err)
	}
	if _, err := store.Take(ctx, "t1"); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("expected ErrThreadNotFound, got %v", err)
	}
}

func TestMemoryThreadStoreExpires(t *testing.T) {
	store := NewMemoryThreadStore(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.Save(ctx, PendingThread{ID: "t1"}); err != nil {
		t.Fatalf("Save err: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := store.Take(ctx, "t1"); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("expected expired thread, got %v", err)
	}
}

type mockRedisKV struct {
	data    map[string]string
	lastTTL time.Duration
	setErr  error
	getErr  error
}

func (m *mockRedisKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if m.setErr != nil {
		cmd.SetErr(m.setErr)
		return cmd
	}
	m.lastTTL = expiration
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	cmd.SetVal("OK")
	return cmd
}

func (m *mockRedisKV) GetDel(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if m.getErr != nil {
		cmd.SetErr(m.getErr)
		return cmd
	}
	val, ok := m.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	delete(m.data, key)
	cmd.SetVal(val)
	return cmd
}

func TestRedisThreadStoreRoundTrip(t *testing.T) {
	kv := &mockRedisKV{data: map[string]string{}}
	store := NewRedisThreadStore(kv, 10*time.Minute)
	ctx := context.Background()

	if err := store.Save(ctx, PendingThread{ID: "t1", ProjectID: "Bio", Note: "## Cells"}); err != nil {
		t.Fatalf("Save err: %v", err)
	}
	if kv.lastTTL != 10*time.Minute {
		t.Fatalf("unexpected ttl %s", kv.lastTTL)
	}
	raw, ok := kv.data["tutor:thread:t1"]
	if !ok {
		t.Fatalf("thread stored under unexpected key: %v", kv.data)
	}
	var stored PendingThread
	if err := json.Unmarshal([]byte(raw), &stored); err != nil || stored.Note != "## Cells" {
		t.Fatalf("unexpected stored payload %q: %v", raw, err)
	}

	thread, err := store.Take(ctx, "t1")
	if err != nil || thread.ProjectID != "Bio" {
		t.Fatalf("unexpected take: %#v, %v", thread, err)
	}
	if _, err := store.Take(ctx, "t1"); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("expected ErrThreadNotFound, got %v", err)
	}
}

func TestRedisThreadStoreErrors(t *testing.T) {
	boom := errors.New("connection refused")
	store := NewRedisThreadStore(&mockRedisKV{data: map[string]string{}, setErr: boom, getErr: boom}, 0)
	ctx := context.Background()

	if err := store.Save(ctx, PendingThread{ID: "t1"}); !errors.Is(err, boom) {
		t.Fatalf("expected save error, got %v", err)
	}
	if _, err := store.Take(ctx, "t1"); !errors.Is(err, boom) || errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if err := store.Save(ctx, PendingThread{}); err == nil {
		t.Fatal("expected error for empty id")
	}
}
