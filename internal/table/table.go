// Package table provides a fixed-capacity, uid-indexed row store.
//
// Rows live in an arena of slots allocated once at construction. A dense
// order index keeps occupied slots in insertion order, which is also the
// traversal order. Slot indices are stable for the lifetime of a row, so a
// reclaimed slot is reused without leaving dangling references behind.
package table

import (
	"errors"
	"iter"
	"slices"

	"github.com/dokzlo13/xlightd/internal/model"
)

var (
	// ErrFull is returned by Add when every slot is occupied.
	ErrFull = errors.New("table: full")

	// ErrInvalidIndex is returned for indices that do not hold a row.
	ErrInvalidIndex = errors.New("table: invalid index")

	// ErrEmptyRow is returned by Get for rows marked empty.
	ErrEmptyRow = errors.New("table: row is empty")

	// ErrNoOutdatedRow is returned when nothing qualifies for eviction.
	ErrNoOutdatedRow = errors.New("table: no outdated row")
)

// Row is implemented by every row kind stored in a Table.
type Row interface {
	Key() model.UID
	Outdated() bool
}

type slot[R Row] struct {
	row   R
	used  bool
	empty bool
}

// Table is a fixed-capacity collection of rows with unique uids.
// It is not safe for concurrent use; the controller loop owns it.
type Table[R Row] struct {
	slots []slot[R]
	order []int
	free  []int
}

// New creates a table holding at most capacity rows.
func New[R Row](capacity int) *Table[R] {
	if capacity < 0 {
		capacity = 0
	}
	t := &Table[R]{
		slots: make([]slot[R], capacity),
		order: make([]int, 0, capacity),
		free:  make([]int, 0, capacity),
	}
	// Lowest slots are handed out first.
	for i := capacity - 1; i >= 0; i-- {
		t.free = append(t.free, i)
	}
	return t
}

// Cap returns the fixed capacity.
func (t *Table[R]) Cap() int { return len(t.slots) }

// Len returns the number of occupied slots, including rows marked empty.
func (t *Table[R]) Len() int { return len(t.order) }

// IsFull reports whether no slot is free.
func (t *Table[R]) IsFull() bool { return len(t.free) == 0 }

// SearchUID returns the index of the first non-empty row with the given uid.
func (t *Table[R]) SearchUID(uid model.UID) (int, bool) {
	for _, idx := range t.order {
		s := &t.slots[idx]
		if !s.empty && s.row.Key() == uid {
			return idx, true
		}
	}
	return -1, false
}

// Add appends row at the end of the traversal order.
// The caller is responsible for uid uniqueness (see SearchUID).
func (t *Table[R]) Add(row R) (int, error) {
	if t.IsFull() {
		return -1, ErrFull
	}
	idx := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]
	t.slots[idx] = slot[R]{row: row, used: true}
	t.order = append(t.order, idx)
	return idx, nil
}

// Set replaces the row at idx in place, keeping its position.
func (t *Table[R]) Set(idx int, row R) error {
	if !t.valid(idx) || t.slots[idx].empty {
		return ErrInvalidIndex
	}
	t.slots[idx].row = row
	return nil
}

// Get returns the row at idx.
func (t *Table[R]) Get(idx int) (R, error) {
	var zero R
	if !t.valid(idx) {
		return zero, ErrInvalidIndex
	}
	if t.slots[idx].empty {
		return zero, ErrEmptyRow
	}
	return t.slots[idx].row, nil
}

// MarkEmpty turns the row at idx into a reclaimable slot. The slot stays
// occupied until DeleteOneOutdatedRow reuses it, but the row is no longer
// visible to SearchUID, Get or All.
func (t *Table[R]) MarkEmpty(idx int) error {
	if !t.valid(idx) {
		return ErrInvalidIndex
	}
	t.slots[idx].empty = true
	return nil
}

// Remove frees the slot at idx immediately.
func (t *Table[R]) Remove(idx int) error {
	if !t.valid(idx) {
		return ErrInvalidIndex
	}
	t.release(idx)
	return nil
}

// FirstOutdated returns the slot DeleteOneOutdatedRow would free next:
// the first one, in traversal order, marked empty or holding an outdated row.
func (t *Table[R]) FirstOutdated() (int, bool) {
	for _, idx := range t.order {
		s := &t.slots[idx]
		if s.empty || s.row.Outdated() {
			return idx, true
		}
	}
	return -1, false
}

// DeleteOneOutdatedRow frees the slot reported by FirstOutdated.
func (t *Table[R]) DeleteOneOutdatedRow() error {
	idx, ok := t.FirstOutdated()
	if !ok {
		return ErrNoOutdatedRow
	}
	t.release(idx)
	return nil
}

// All yields index and row of every non-empty row in insertion order.
// The sequence may be restarted; rows are read at the time they are yielded,
// so in-place updates made while iterating are observed.
func (t *Table[R]) All() iter.Seq2[int, R] {
	return func(yield func(int, R) bool) {
		for _, idx := range slices.Clone(t.order) {
			s := &t.slots[idx]
			if !s.used || s.empty {
				continue
			}
			if !yield(idx, s.row) {
				return
			}
		}
	}
}

// Rows yields every non-empty row in insertion order.
func (t *Table[R]) Rows() iter.Seq[R] {
	return func(yield func(R) bool) {
		for _, row := range t.All() {
			if !yield(row) {
				return
			}
		}
	}
}

// Reset frees every slot.
func (t *Table[R]) Reset() {
	for len(t.order) > 0 {
		t.release(t.order[0])
	}
}

func (t *Table[R]) valid(idx int) bool {
	return idx >= 0 && idx < len(t.slots) && t.slots[idx].used
}

func (t *Table[R]) release(idx int) {
	var zero R
	t.slots[idx] = slot[R]{row: zero}
	if pos := slices.Index(t.order, idx); pos >= 0 {
		t.order = slices.Delete(t.order, pos, pos+1)
	}
	t.free = append(t.free, idx)
}
