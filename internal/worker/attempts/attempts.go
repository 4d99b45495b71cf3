// Package attempts counts failed processing attempts per job so a worker can
// park poison messages instead of requeueing them forever.
package attempts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Tracker counts attempts per key.
type Tracker interface {
	// Incr records one more failed attempt and returns the new count.
	Incr(ctx context.Context, key string) (int, error)
	// Reset forgets the key.
	Reset(ctx context.Context, key string) error
}

// Key identifies a job on a backend. Messages that could not be decoded are
// keyed by a digest of their body.
func Key(backend, fileName string, body []byte) string {
	if fileName != "" {
		return backend + ":" + fileName
	}
	sum := sha256.Sum256(body)
	return backend + ":body:" + hex.EncodeToString(sum[:8])
}

// Memory is a process-local Tracker. Counts are lost on restart.
type Memory struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemory() *Memory {
	return &Memory{counts: make(map[string]int)}
}

func (m *Memory) Incr(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key], nil
}

func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counts, key)
	return nil
}
