// Package markstore persists the log high-water mark between runs so a
// restarted agent does not render the same lines twice.
package markstore

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("mark store closed")

// Store is a single read/write integer slot.
type Store interface {
	// Load returns the saved mark and whether one was saved.
	Load(ctx context.Context) (int64, bool, error)
	Save(ctx context.Context, mark int64) error
	Close() error
}

// Memory keeps the mark for the life of the process only.
type Memory struct {
	mu     sync.Mutex
	mark   int64
	set    bool
	closed bool
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load(ctx context.Context) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, false, ErrClosed
	}
	return m.mark, m.set, nil
}

func (m *Memory) Save(ctx context.Context, mark int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.mark, m.set = mark, true
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
