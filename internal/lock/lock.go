// Package lock provides a Redis-backed mutual-exclusion lease used to
// serialize scan verification of the same invoice across service instances.
package lock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const keyPrefix = "qriscuy:lock:scan:"

var (
	ErrNotConfigured = errors.New("lock client not configured")
	ErrEmptyKey      = errors.New("lock key is empty")
	ErrBadTTL        = errors.New("lock ttl must be positive")
)

// Locker hands out SET NX leases identified by a random token; only the
// holder of the token can release its lease.
type Locker struct {
	client *redis.Client
	script *redis.Script
}

// New returns nil when client is nil so callers can treat the lock as
// optional.
func New(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(releaseScript),
	}
}

// Dial parses a redis:// URL, pings the server and returns a Locker.
func Dial(ctx context.Context, url string) (*Locker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return New(client), nil
}

// ScanKey derives the lease key for a fingerprint. Fingerprints map one to
// one onto invoices, so this is effectively a per-invoice lock that can be
// taken before the invoice row is read.
func ScanKey(fingerprintB64 string) string {
	if fingerprintB64 == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(fingerprintB64))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// TryLock attempts to take key for ttl. ok is false when someone else holds
// it; token must be passed back to Release.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error) {
	if l == nil || l.client == nil {
		return "", false, ErrNotConfigured
	}
	if key == "" {
		return "", false, ErrEmptyKey
	}
	if ttl <= 0 {
		return "", false, ErrBadTTL
	}

	token = uuid.NewString()
	ok, err = l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release drops the lease if it is still held by token. It is a no-op on a
// nil Locker or empty arguments.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

// Close closes the underlying client.
func (l *Locker) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}
