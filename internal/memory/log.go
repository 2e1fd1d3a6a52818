// Package memory holds the in-process conversation history for one session.
//
// The history is a fixed-capacity, append-only log of conversation turns with
// strict FIFO eviction: once the log is full, appending evicts the oldest
// turn. Readers only ever see whole-snapshot copies, so a snapshot taken
// before an append never observes the mutation.
package memory

import (
	"errors"
	"strings"
	"sync"

	"github.com/voxlane/voxlane/pkg/types"
)

var (
	// ErrEmptyTurn is returned when a turn with empty (post-trim) text is
	// appended. Empty turns carry no conversational value and would poison
	// LLM prompts.
	ErrEmptyTurn = errors.New("memory: turn text is empty")

	// ErrInvalidRole is returned when a turn's role is not one of the
	// permitted values.
	ErrInvalidRole = errors.New("memory: invalid turn role")
)

// Log is a bounded conversation history. Insertion order is conversation
// order; capacity is fixed at construction.
//
// All methods are safe for concurrent use, although within a session the
// orchestrator already serialises access.
type Log struct {
	mu       sync.RWMutex
	turns    []types.Turn
	capacity int
}

// NewLog creates a log retaining at most capacity turns. A capacity below 1
// is raised to 1 so the invariant len ≤ capacity, capacity ≥ 1 always holds.
func NewLog(capacity int) *Log {
	if capacity < 1 {
		capacity = 1
	}
	return &Log{
		turns:    make([]types.Turn, 0, capacity),
		capacity: capacity,
	}
}

// Append adds a turn at the end of the log, evicting the oldest turn if the
// log is at capacity. The turn must have a valid role and non-empty text.
func (l *Log) Append(turn types.Turn) error {
	if !turn.Role.Valid() {
		return ErrInvalidRole
	}
	if strings.TrimSpace(turn.Text) == "" {
		return ErrEmptyTurn
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.turns = append(l.turns, turn)
	if len(l.turns) > l.capacity {
		keep := l.turns[len(l.turns)-l.capacity:]

		// Copy to a fresh slice so evicted turns can be garbage collected
		// and older snapshots keep their own backing array.
		fresh := make([]types.Turn, len(keep), l.capacity)
		copy(fresh, keep)
		l.turns = fresh
	}
	return nil
}

// Snapshot returns a copy of the current turns in conversation order. The
// returned slice is owned by the caller; later appends never mutate it.
func (l *Log) Snapshot() []types.Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Len returns the number of turns currently retained.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// Cap returns the fixed capacity the log was constructed with.
func (l *Log) Cap() int {
	return l.capacity
}
