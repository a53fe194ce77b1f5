// Package logsync keeps an append-only view of the device log consistent
// across push deliveries and restarts. Every sequence number is rendered at
// most once and the high-water mark only moves forward.
package logsync

import (
	"errors"
	"log"
	"slices"
	"sync"
)

// ErrInitialized is returned when Initialize is called after the mark has
// already been seeded or moved by a batch.
var ErrInitialized = errors.New("synchronizer already initialized")

// Line is an append event.
type Line struct {
	Seq  int64
	Text string
}

// Sink receives append events in sequence order.
type Sink interface {
	Append(Line)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Line)

func (f SinkFunc) Append(l Line) { f(l) }

// Synchronizer reconciles log batches against a high-water mark.
type Synchronizer struct {
	sink   Sink
	logger *log.Logger

	// applyMu serializes batches, including the sink calls they make.
	applyMu sync.Mutex

	mu          sync.Mutex
	mark        int64
	initialized bool
}

type Option func(*Synchronizer)

// WithLogger sets the logger used for dropped batches.
func WithLogger(logger *log.Logger) Option {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New returns a Synchronizer that appends to sink. Until Initialize is
// called the mark is -1.
func New(sink Sink, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		sink:   sink,
		logger: log.Default(),
		mark:   -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize seeds the mark with seed-1, so the entry numbered seed is still
// rendered. It must run once, before the first batch.
func (s *Synchronizer) Initialize(seed int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return ErrInitialized
	}
	s.mark = seed - 1
	s.initialized = true
	return nil
}

// Reset moves the mark to seed-1 even when it lowers it. It is only for a
// device whose numbering started over, e.g. after a reboot; normal
// seeding goes through Initialize.
func (s *Synchronizer) Reset(seed int64) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mark = seed - 1
	s.initialized = true
}

// Mark returns the highest sequence number rendered so far.
func (s *Synchronizer) Mark() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mark
}

// ApplyBatch appends every entry newer than the mark, in ascending numeric
// order, and advances the mark past each one. Older entries are dropped.
func (s *Synchronizer) ApplyBatch(batch Batch) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	keys := make([]int64, 0, len(batch))
	for seq := range batch {
		keys = append(keys, seq)
	}
	slices.Sort(keys)

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	for _, seq := range keys {
		s.mu.Lock()
		if seq <= s.mark {
			s.mu.Unlock()
			continue
		}
		s.mark = seq
		s.mu.Unlock()

		if s.sink != nil {
			s.sink.Append(Line{Seq: seq, Text: batch[seq]})
		}
	}
}

// HandleMessage parses a push payload and applies its logs. A malformed
// payload is logged and dropped as a whole; the mark is left untouched and
// the parse error is returned for the caller's diagnostics.
func (s *Synchronizer) HandleMessage(payload []byte) error {
	msg, err := ParseMessage(payload)
	if err != nil {
		s.logger.Printf("Dropping log batch: %v", err)
		return err
	}
	s.ApplyBatch(msg.Logs)
	return nil
}
