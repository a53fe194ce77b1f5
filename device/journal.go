package device

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// DefaultJournalSize matches the firmware's in-memory log.
const DefaultJournalSize = 20

type entry struct {
	seq  int64
	line string
}

// Journal is a bounded, monotonically numbered log. Old entries fall off the
// front; numbers are never reused.
type Journal struct {
	mu      sync.Mutex
	size    int
	entries []entry
	counter int64
	changed chan struct{}
	now     func() time.Time
}

func NewJournal(size int, now func() time.Time) *Journal {
	if size <= 0 {
		size = DefaultJournalSize
	}
	if now == nil {
		now = time.Now
	}
	return &Journal{size: size, changed: make(chan struct{}), now: now}
}

// Add appends a line formatted as "YYYY-MM-DD HH:MM:SS: LEVEL message".
func (j *Journal) Add(level, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	line := fmt.Sprintf("%s: %s %s", j.now().Format(time.DateTime), level, message)
	j.entries = append(j.entries, entry{seq: j.counter, line: line})
	if len(j.entries) > j.size {
		j.entries = j.entries[len(j.entries)-j.size:]
	}
	j.counter++

	close(j.changed)
	j.changed = make(chan struct{})
}

// Changed returns a channel closed by the next Add.
func (j *Journal) Changed() <-chan struct{} {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.changed
}

// Snapshot returns the retained lines keyed by decimal sequence number,
// together with the number of lines ever written (one past the newest
// sequence number).
func (j *Journal) Snapshot() (map[string]string, int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	logs := make(map[string]string, len(j.entries))
	for _, e := range j.entries {
		logs[strconv.FormatInt(e.seq, 10)] = e.line
	}
	return logs, j.counter
}
