package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/darasahq/darasa/core/session"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return NewRedisStore(client), mr
}

func TestRedisStore_SaveGetDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	sess := session.Session{
		ID:        "sess-1",
		AccountID: "acct-1",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.AccountID != sess.AccountID {
		t.Errorf("Get().AccountID = %q; want %q", got.AccountID, sess.AccountID)
	}
	if !got.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Errorf("Get().ExpiresAt = %v; want %v", got.ExpiresAt, sess.ExpiresAt)
	}

	if err = store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err = store.Get(ctx, sess.ID); err != session.ErrNoSession {
		t.Errorf("Get() after Delete error = %v; want %v", err, session.ErrNoSession)
	}
}

func TestRedisStore_GetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.Get(context.Background(), "bogus"); err != session.ErrNoSession {
		t.Errorf("Get() error = %v; want %v", err, session.ErrNoSession)
	}
}

func TestRedisStore_Expiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	sess := session.Session{
		ID:        "sess-ttl",
		AccountID: "acct-1",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, sess.ID); err != session.ErrNoSession {
		t.Errorf("Get() after expiry error = %v; want %v", err, session.ErrNoSession)
	}
}

func TestRedisStore_SaveExpired(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	sess := session.Session{
		ID:        "sess-old",
		AccountID: "acct-1",
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if mr.Exists(keyPrefix + sess.ID) {
		t.Error("expired session was persisted")
	}
}
