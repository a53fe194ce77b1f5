package logsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformed is wrapped by every payload the push channel delivers that
// cannot be turned into a Batch.
var ErrMalformed = errors.New("malformed log message")

// Batch maps sequence numbers to display lines. Keys are not ordered; the
// Synchronizer sorts them numerically before applying.
type Batch map[int64]string

// Newest returns the highest sequence number in b, or false for an empty
// batch.
func (b Batch) Newest() (int64, bool) {
	var (
		newest int64
		found  bool
	)
	for seq := range b {
		if !found || seq > newest {
			newest, found = seq, true
		}
	}
	return newest, found
}

// Message is one payload received on the push channel.
type Message struct {
	Logs Batch
	// FreeMemory is the device's free heap as reported next to the logs,
	// nil when the device did not send it.
	FreeMemory *int64
}

type wireMessage struct {
	Logs map[string]string `json:"logs"`
	Data *struct {
		Memory *int64 `json:"memory"`
	} `json:"data"`
}

// ParseMessage decodes a push payload of the form
// {"logs": {"<seq>": "<line>", ...}, "data": {"memory": N}}.
func ParseMessage(payload []byte) (Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if wire.Logs == nil {
		return Message{}, fmt.Errorf("%w: missing logs field", ErrMalformed)
	}

	batch := make(Batch, len(wire.Logs))
	for key, line := range wire.Logs {
		seq, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return Message{}, fmt.Errorf("%w: sequence number %q is not an integer", ErrMalformed, key)
		}
		if seq < 0 {
			return Message{}, fmt.Errorf("%w: negative sequence number %d", ErrMalformed, seq)
		}
		if _, dup := batch[seq]; dup {
			return Message{}, fmt.Errorf("%w: sequence number %d appears twice", ErrMalformed, seq)
		}
		batch[seq] = line
	}

	msg := Message{Logs: batch}
	if wire.Data != nil {
		msg.FreeMemory = wire.Data.Memory
	}
	return msg, nil
}
