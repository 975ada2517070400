package timetable

import (
	"sync"

	appLog "github.com/tomasr8/new-timetable/internal/log"
)

// Op is a gesture applied to a snapshot.
type Op func(Snapshot) (Snapshot, error)

// ResizeOp returns an Op resizing entry id.
func ResizeOp(id, duration int) Op {
	return func(s Snapshot) (Snapshot, error) { return s.Resize(id, duration) }
}

// MoveOp returns an Op applying d.
func MoveOp(d Drop) Op {
	return func(s Snapshot) (Snapshot, error) { return s.Move(d) }
}

// Board owns the current snapshot shown to the user. Gestures are applied
// one at a time; a rejected gesture keeps the previous snapshot.
type Board struct {
	mu      sync.RWMutex
	current Snapshot
	version uint64
}

// NewBoard returns a board showing s.
func NewBoard(s Snapshot) *Board {
	return &Board{current: s, version: 1}
}

// Current returns the snapshot and its version. The version increases with
// every committed change.
func (b *Board) Current() (Snapshot, uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current, b.version
}

// Apply runs op against the current snapshot and commits its result. It
// returns the snapshot the board shows afterwards and its version; on error
// that is the unchanged current state.
func (b *Board) Apply(op Op) (Snapshot, uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next, err := op(b.current)
	if err != nil {
		appLog.Debug("gesture rejected", "reason", err.Error(), "version", b.version)
		return b.current, b.version, err
	}
	b.current = next
	b.version++
	appLog.Debug("gesture committed", "version", b.version, "entries", next.Len())
	return next, b.version, nil
}

// Replace swaps in a new snapshot, e.g. after re-importing the seed.
func (b *Board) Replace(s Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = s
	b.version++
}
