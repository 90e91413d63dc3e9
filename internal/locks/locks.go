package locks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a lock outlives its holder. Converter runs can
// take many minutes, so the default is generous; stale locks are reclaimed
// when the TTL lapses.
const DefaultTTL = 6 * time.Hour

// ErrAlreadyHeld is returned by Acquire when another holder owns the lock.
var ErrAlreadyHeld = errors.New("lock already held")

// Token proves ownership of an acquired lock.
type Token struct {
	key   string
	value string
}

// Key returns the lock's registry key.
func (t Token) Key() string { return t.key }

// Registry hands out advisory named exclusion locks keyed by
// (kind, id, action). Acquire is non-blocking: callers either get a token
// or skip the object.
type Registry interface {
	Acquire(ctx context.Context, kind, id, action string, ttl time.Duration) (Token, error)
	Release(ctx context.Context, token Token) error
	IsHeld(ctx context.Context, kind, id, action string) bool
}

// LockKey builds the registry key for an object/action pair.
func LockKey(kind, id, action string) string {
	return fmt.Sprintf("%s-%s-%s", kind, id, action)
}

func randomToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// ──────────────────── Redis registry ────────────────────

// RedisRegistry backs locks with a TTL'd Redis key so they survive worker
// crashes and are visible across processes.
type RedisRegistry struct {
	client *redis.Client
	prefix string
}

func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client, prefix: "clipvault:lock:"}
}

func (r *RedisRegistry) Acquire(ctx context.Context, kind, id, action string, ttl time.Duration) (Token, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key := r.prefix + LockKey(kind, id, action)
	value := randomToken()

	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return Token{}, fmt.Errorf("lock %s: %w", key, err)
	}
	if !ok {
		return Token{}, ErrAlreadyHeld
	}
	return Token{key: key, value: value}, nil
}

// unlockScript deletes the key only while the holder's token still matches.
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

func (r *RedisRegistry) Release(ctx context.Context, token Token) error {
	if token.key == "" {
		return nil
	}
	return r.client.Eval(ctx, unlockScript, []string{token.key}, token.value).Err()
}

func (r *RedisRegistry) IsHeld(ctx context.Context, kind, id, action string) bool {
	n, _ := r.client.Exists(ctx, r.prefix+LockKey(kind, id, action)).Result()
	return n > 0
}

// ──────────────────── In-memory registry ────────────────────

type memoryLock struct {
	value   string
	expires time.Time
}

// MemoryRegistry is the single-process fallback used when Redis is not
// configured and in tests.
type MemoryRegistry struct {
	mu    sync.Mutex
	locks map[string]memoryLock
	now   func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{locks: map[string]memoryLock{}, now: time.Now}
}

func (m *MemoryRegistry) Acquire(_ context.Context, kind, id, action string, ttl time.Duration) (Token, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key := LockKey(kind, id, action)

	m.mu.Lock()
	defer m.mu.Unlock()
	if held, ok := m.locks[key]; ok && m.now().Before(held.expires) {
		return Token{}, ErrAlreadyHeld
	}
	value := randomToken()
	m.locks[key] = memoryLock{value: value, expires: m.now().Add(ttl)}
	return Token{key: key, value: value}, nil
}

func (m *MemoryRegistry) Release(_ context.Context, token Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if held, ok := m.locks[token.key]; ok && held.value == token.value {
		delete(m.locks, token.key)
	}
	return nil
}

func (m *MemoryRegistry) IsHeld(_ context.Context, kind, id, action string) bool {
	key := LockKey(kind, id, action)
	m.mu.Lock()
	defer m.mu.Unlock()
	held, ok := m.locks[key]
	if !ok {
		return false
	}
	if !m.now().Before(held.expires) {
		delete(m.locks, key)
		return false
	}
	return true
}
