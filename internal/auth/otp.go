package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"math/big"
	"time"
)

// OTPEntry is a pending one-time code. Only its bcrypt digest is kept.
type OTPEntry struct {
	Digest   string
	Attempts int
}

// CodeStore keeps pending one-time codes keyed by email. Get returns (nil, nil)
// once the code has expired or been consumed.
type CodeStore interface {
	Save(ctx context.Context, email string, entry OTPEntry, ttl time.Duration) error
	Get(ctx context.Context, email string) (*OTPEntry, error)
	IncrementAttempts(ctx context.Context, email string) (int, error)
	Delete(ctx context.Context, email string) error
}

// StateStore holds one-time OAuth state values. Consume reports whether state
// existed and removes it.
type StateStore interface {
	Put(ctx context.Context, state string, ttl time.Duration) error
	Consume(ctx context.Context, state string) (bool, error)
}

type OTPSettings struct {
	TTL         time.Duration
	Length      int
	MaxAttempts int
}

func (o OTPSettings) withDefaults() OTPSettings {
	if o.TTL <= 0 {
		o.TTL = 5 * time.Minute
	}
	if o.Length <= 0 {
		o.Length = 6
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	return o
}

// generateCode returns n random decimal digits.
func generateCode(n int) (string, error) {
	digits := make([]byte, n)
	ten := big.NewInt(10)
	for i := range digits {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + d.Int64())
	}
	return string(digits), nil
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
