package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "helpdesk:session:"

// ErrGone is returned by Update when the session was deleted concurrently.
var ErrGone = errors.New("session: no longer exists")

// RedisStore keeps one JSON-encoded session per browser client. The redis
// TTL follows ExpiresAt so abandoned sessions disappear on their own.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func Key(clientID string) string {
	return keyPrefix + clientID
}

func encode(s Session, now time.Time) ([]byte, time.Duration, error) {
	ttl := s.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return nil, 0, fmt.Errorf("session: expires_at must be in the future")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, 0, fmt.Errorf("session: marshal: %w", err)
	}
	return data, ttl, nil
}

// Create stores s, replacing whatever session the client held before.
func (r *RedisStore) Create(ctx context.Context, s Session) error {
	if s.SessionID == "" || s.ClientID == "" || s.UserID == "" {
		return fmt.Errorf("session: missing session_id, client_id or user_id")
	}

	data, ttl, err := encode(s, time.Now())
	if err != nil {
		return err
	}
	return r.client.Set(ctx, Key(s.ClientID), data, ttl).Err()
}

// Get returns nil without error when the client has no session.
func (r *RedisStore) Get(ctx context.Context, clientID string) (*Session, error) {
	val, err := r.client.Get(ctx, Key(clientID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, fmt.Errorf("session: unmarshal: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Delete(ctx context.Context, clientID string) error {
	return r.client.Del(ctx, Key(clientID)).Err()
}

// Update rewrites an existing session. It never recreates one: a refresh
// racing a sign-out returns ErrGone. An already expired s is deleted.
func (r *RedisStore) Update(ctx context.Context, s Session) error {
	if s.ClientID == "" {
		return fmt.Errorf("session: missing client_id")
	}

	data, ttl, err := encode(s, time.Now())
	if err != nil {
		return r.Delete(ctx, s.ClientID)
	}

	ok, err := r.client.SetXX(ctx, Key(s.ClientID), data, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrGone
	}
	return nil
}
