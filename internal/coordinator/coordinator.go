// Package coordinator hands out run leases so that only one batch per key
// runs at a time, in process, on one host, or across hosts through redis.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	DefaultTTL   = 2 * time.Minute
	pollInterval = 25 * time.Millisecond
)

// ErrLeaseLost is returned by Extend when the lease expired and another
// holder took the key.
var ErrLeaseLost = errors.New("lease lost")

type Lease interface {
	Key() string
	// Extend pushes the expiry to now+ttl.
	Extend(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// Coordinator blocks in Acquire until the key is free or ctx is done.
type Coordinator interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

func waitPoll(ctx context.Context) error {
	t := time.NewTimer(pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type memoryCoordinator struct {
	mu    sync.Mutex
	locks map[string]memoryLock
	seq   uint64
}

type memoryLock struct {
	id      uint64
	expires time.Time
}

type memoryLease struct {
	key string
	id  uint64
	c   *memoryCoordinator
}

// NewMemoryCoordinator serializes runs inside one process.
func NewMemoryCoordinator() Coordinator {
	return &memoryCoordinator{locks: make(map[string]memoryLock)}
}

func (c *memoryCoordinator) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	for {
		c.mu.Lock()
		cur, held := c.locks[key]
		now := time.Now()
		if !held || now.After(cur.expires) {
			c.seq++
			c.locks[key] = memoryLock{id: c.seq, expires: now.Add(ttl)}
			l := &memoryLease{key: key, id: c.seq, c: c}
			c.mu.Unlock()
			return l, nil
		}
		c.mu.Unlock()

		if err := waitPoll(ctx); err != nil {
			return nil, fmt.Errorf("acquire lease %s: %w", key, err)
		}
	}
}

func (l *memoryLease) Key() string { return l.key }

func (l *memoryLease) Extend(_ context.Context, ttl time.Duration) error {
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	cur, held := l.c.locks[l.key]
	if !held || cur.id != l.id {
		return fmt.Errorf("extend lease %s: %w", l.key, ErrLeaseLost)
	}
	cur.expires = time.Now().Add(ttl)
	l.c.locks[l.key] = cur
	return nil
}

func (l *memoryLease) Release(_ context.Context) error {
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	if cur, held := l.c.locks[l.key]; held && cur.id == l.id {
		delete(l.c.locks, l.key)
	}
	return nil
}

type fileCoordinator struct {
	dir string
}

type fileLease struct {
	key   string
	path  string
	token string
}

// NewFileCoordinator serializes runs across processes on one host using
// exclusive lock files under dir.
func NewFileCoordinator(dir string) Coordinator {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "fluxgen-leases")
	}
	return &fileCoordinator{dir: dir}
}

func (c *fileCoordinator) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir lease dir: %w", err)
	}
	path := filepath.Join(c.dir, key+".lock")
	token, err := randomToken()
	if err != nil {
		return nil, err
	}

	for {
		err := createFileLock(path, token, time.Now().Add(ttl))
		if err == nil {
			return &fileLease{key: key, path: path, token: token}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("acquire file lease: %w", err)
		}

		if held, stale := staleFileLock(path, time.Now()); stale {
			breakFileLock(path, held, token)
			continue
		}

		if err := waitPoll(ctx); err != nil {
			return nil, fmt.Errorf("acquire file lease %s: %w", key, err)
		}
	}
}

// createFileLock publishes a complete lock file: the content is written to a
// private file which is then hard-linked to path. Link fails if path exists,
// so readers never observe a half-written lock.
func createFileLock(path, token string, expires time.Time) error {
	tmp := path + "." + token + ".new"
	if err := os.WriteFile(tmp, []byte(encodeFileLock(token, expires)), 0o644); err != nil {
		return err
	}
	defer os.Remove(tmp)
	return os.Link(tmp, path)
}

// staleFileLock reports whether the lock at path may be taken over, and the
// token it held. A file that cannot be parsed counts as held until it is
// older than DefaultTTL.
func staleFileLock(path string, now time.Time) (token string, stale bool) {
	token, expires, ok := readFileLock(path)
	if ok {
		return token, now.After(expires)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", os.IsNotExist(err)
	}
	return "", now.Sub(info.ModTime()) > DefaultTTL
}

// breakFileLock moves the stale lock aside with a rename, which only one
// contender wins. If the file moved is no longer the stale one, a new holder
// got there first and its lock is put back.
func breakFileLock(path, staleToken, token string) {
	aside := path + "." + token + ".stale"
	if err := os.Rename(path, aside); err != nil {
		return
	}
	defer os.Remove(aside)
	if got, _, ok := readFileLock(aside); ok && got != staleToken {
		_ = os.Link(aside, path)
	}
}

func (l *fileLease) Key() string { return l.key }

func (l *fileLease) Extend(_ context.Context, ttl time.Duration) error {
	token, _, ok := readFileLock(l.path)
	if !ok || token != l.token {
		return fmt.Errorf("extend lease %s: %w", l.key, ErrLeaseLost)
	}
	tmp := l.path + "." + l.token
	if err := os.WriteFile(tmp, []byte(encodeFileLock(l.token, time.Now().Add(ttl))), 0o644); err != nil {
		return fmt.Errorf("extend file lease: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("extend file lease: %w", err)
	}
	return nil
}

func (l *fileLease) Release(_ context.Context) error {
	if token, _, ok := readFileLock(l.path); ok && token != l.token {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release file lease: %w", err)
	}
	return nil
}

// lock files hold "<token> <expiry RFC3339Nano>"
func encodeFileLock(token string, expires time.Time) string {
	return token + " " + expires.Format(time.RFC3339Nano)
}

func readFileLock(path string) (token string, expires time.Time, ok bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", time.Time{}, false
	}
	var ts string
	if _, err := fmt.Sscan(string(b), &token, &ts); err != nil {
		return "", time.Time{}, false
	}
	expires, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return "", time.Time{}, false
	}
	return token, expires, true
}
