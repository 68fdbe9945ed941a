package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLocked is returned when another holder owns the key.
var ErrLocked = errors.New("lock is held")

// Locker serializes work keyed by entity, e.g. "lead:<id>" or "sequence:<id>".
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

func LeadKey(leadID string) string {
	return "lead:" + leadID
}

func SequenceKey(sequenceID string) string {
	return "sequence:" + sequenceID
}

// LocalLocker is an in-process Locker for single-instance deployments and tests.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, ErrLocked
	}
	exp := now.Add(ttl)
	l.held[key] = exp

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if cur, ok := l.held[key]; ok && cur.Equal(exp) {
				delete(l.held, key)
			}
		})
	}, nil
}
