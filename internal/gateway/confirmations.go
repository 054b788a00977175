package gateway

import (
	"context"
	"time"

	"helpdesk/internal/session"

	"github.com/redis/go-redis/v9"
)

const confirmationTTL = 24 * time.Hour

// ConfirmationStore keeps single-use email confirmation tokens in redis.
type ConfirmationStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewConfirmationStore(client *redis.Client) *ConfirmationStore {
	return &ConfirmationStore{
		client: client,
		prefix: "confirm:",
		ttl:    confirmationTTL,
	}
}

// Issue creates a token for userID.
func (s *ConfirmationStore) Issue(ctx context.Context, userID string) (string, error) {
	token, err := session.GenerateID()
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, s.prefix+token, userID, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Consume returns the user id behind token and deletes it.
func (s *ConfirmationStore) Consume(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	userID, err := s.client.GetDel(ctx, s.prefix+token).Result()
	if err == redis.Nil {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}
