// Package session provides the Redis-backed session store.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/session"
)

const keyPrefix = "session:"

func NewRedisClient(conf *core.Config) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
}

// RedisStore keeps sessions in Redis, one key per session. Expiry is enforced
// by the key TTL so stale sessions never need sweeping.
type RedisStore struct {
	client *goredis.Client
}

var _ session.Store = (*RedisStore)(nil)

func NewRedisStore(client *goredis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, sess session.Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "encoding session")
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return nil // already expired, nothing to keep
	}
	if err = s.client.Set(ctx, keyPrefix+sess.ID, b, ttl).Err(); err != nil {
		return errors.Wrap(err, "saving session")
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (session.Session, error) {
	b, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return session.Session{}, session.ErrNoSession
		}
		return session.Session{}, errors.Wrap(err, "getting session")
	}

	var sess session.Session
	if err = json.Unmarshal(b, &sess); err != nil {
		return session.Session{}, errors.Wrap(err, "decoding session")
	}
	return sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return errors.Wrap(err, "deleting session")
	}
	return nil
}
