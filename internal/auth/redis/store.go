// Package redis keeps short-lived sign-in state (one-time codes and OAuth
// state values) in Redis so every instance behind the load balancer sees it.
package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/frahmantamala/crm-backend/internal/auth"
	goredis "github.com/redis/go-redis/v9"
)

const (
	otpPrefix   = "otp:"
	statePrefix = "oauth_state:"

	fieldDigest   = "digest"
	fieldAttempts = "attempts"
)

type OTPStore struct {
	client goredis.UniversalClient
}

func NewOTPStore(client goredis.UniversalClient) *OTPStore {
	return &OTPStore{client: client}
}

// Save replaces any pending code for email and resets its attempt counter.
func (s *OTPStore) Save(ctx context.Context, email string, entry auth.OTPEntry, ttl time.Duration) error {
	key := otpPrefix + email
	_, err := s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, fieldDigest, entry.Digest, fieldAttempts, entry.Attempts)
		p.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

func (s *OTPStore) Get(ctx context.Context, email string) (*auth.OTPEntry, error) {
	values, err := s.client.HGetAll(ctx, otpPrefix+email).Result()
	if err != nil {
		return nil, err
	}
	digest, ok := values[fieldDigest]
	if !ok {
		return nil, nil
	}
	attempts, err := strconv.Atoi(values[fieldAttempts])
	if err != nil {
		attempts = 0
	}
	return &auth.OTPEntry{Digest: digest, Attempts: attempts}, nil
}

// IncrementAttempts bumps the counter without touching the expiry. A missing
// code reports zero attempts.
func (s *OTPStore) IncrementAttempts(ctx context.Context, email string) (int, error) {
	key := otpPrefix + email
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, nil
	}
	n, err := s.client.HIncrBy(ctx, key, fieldAttempts, 1).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *OTPStore) Delete(ctx context.Context, email string) error {
	return s.client.Del(ctx, otpPrefix+email).Err()
}

type StateStore struct {
	client goredis.UniversalClient
}

func NewStateStore(client goredis.UniversalClient) *StateStore {
	return &StateStore{client: client}
}

func (s *StateStore) Put(ctx context.Context, state string, ttl time.Duration) error {
	return s.client.Set(ctx, statePrefix+state, "1", ttl).Err()
}

func (s *StateStore) Consume(ctx context.Context, state string) (bool, error) {
	err := s.client.GetDel(ctx, statePrefix+state).Err()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

var (
	_ auth.CodeStore  = (*OTPStore)(nil)
	_ auth.StateStore = (*StateStore)(nil)
)
