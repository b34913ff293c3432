// Package lock provides the mutual exclusion the follow-up scheduler needs
// across processes: a lease held for the duration of a run, and a period
// marker recording that a period was processed.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseHeld means another holder owns the lease.
var ErrLeaseHeld = errors.New("lease held by another process")

// Lease is an acquired lock. Release is safe to call more than once.
type Lease interface {
	Release(ctx context.Context) error
}

type Locker interface {
	// Acquire takes the lease for key or returns ErrLeaseHeld. The lease
	// expires after ttl when its holder dies.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
	// MarkPeriod records key and reports whether it was new.
	MarkPeriod(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// releaseScript deletes the key only while it still holds our token, so an
// expired lease never removes a successor's.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis implements Locker with SET NX PX.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.prefix+key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	return &redisLease{client: r.client, key: r.prefix + key, token: token}, nil
}

func (r *Redis) MarkPeriod(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

type redisLease struct {
	client redis.UniversalClient
	key    string
	token  string
	once   sync.Once
	err    error
}

func (l *redisLease) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.err = releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
	})
	return l.err
}

// Memory implements Locker inside one process.
type Memory struct {
	mu   sync.Mutex
	keys map[string]memoryEntry
	now  func() time.Time
}

type memoryEntry struct {
	token   string
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{keys: make(map[string]memoryEntry), now: time.Now}
}

// setNX stores key unless a live entry exists. Caller holds mu.
func (m *Memory) setNX(key, token string, ttl time.Duration) bool {
	now := m.now()
	if e, ok := m.keys[key]; ok && now.Before(e.expires) {
		return false
	}
	m.keys[key] = memoryEntry{token: token, expires: now.Add(ttl)}
	return true
}

func (m *Memory) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := uuid.NewString()
	if !m.setNX(key, token, ttl) {
		return nil, ErrLeaseHeld
	}
	return &memoryLease{m: m, key: key, token: token}, nil
}

func (m *Memory) MarkPeriod(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setNX(key, "", ttl), nil
}

type memoryLease struct {
	m     *Memory
	key   string
	token string
}

func (l *memoryLease) Release(ctx context.Context) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if e, ok := l.m.keys[l.key]; ok && e.token == l.token {
		delete(l.m.keys, l.key)
	}
	return nil
}
