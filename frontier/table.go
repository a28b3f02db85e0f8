// Package frontier implements the fixed-capacity hash table holding one
// BFS frontier: a Robin-Hood open-addressed mapping from 49-bit position
// keys to a 14-bit metadata word, packed together into a single 64-bit
// slot. The engine keeps two of these and alternates producer and consumer
// roles between depths.
package frontier

import (
	"errors"
	"fmt"
	"sync/atomic"
)

const (
	// keyBits is the width of the stored key+1; storing key+1 lets an
	// all-zero slot mean empty.
	keyBits   = 50
	keyMask   = uint64(1)<<keyBits - 1
	metaShift = keyBits

	// MaxKey is the largest storable key.
	MaxKey = uint64(1)<<49 - 1

	metaBits = 14
)

var (
	ErrTableFull = errors.New("frontier table is full")
	ErrKeyRange  = errors.New("key out of 49-bit range")
	ErrMetaRange = errors.New("meta out of 14-bit range")
)

// Table is a fixed-capacity Robin-Hood map. Capacity is chosen for the
// whole workload up front and never changes; exceeding it is fatal. There
// are no deletions.
type Table struct {
	cap   uint64
	slots []uint64
	size  uint64

	valueMismatches atomic.Uint64
}

// New allocates a table of the given capacity.
func New(capacity uint64) (*Table, error) {
	if capacity == 0 {
		return nil, errors.New("capacity must be positive")
	}
	return &Table{cap: capacity, slots: make([]uint64, capacity)}, nil
}

func (t *Table) Cap() uint64 {
	return t.cap
}

// Size returns the number of distinct keys stored.
func (t *Table) Size() uint64 {
	return t.size
}

// ValueMismatches returns how many merges arrived with a value differing
// from the stored one. The merge law keeps the stored value; a correct
// oracle never produces a mismatch.
func (t *Table) ValueMismatches() uint64 {
	return t.valueMismatches.Load()
}

// Clear zeroes every slot.
func (t *Table) Clear() {
	clear(t.slots)
	t.size = 0
	t.valueMismatches.Store(0)
}

// hash64 is a splittable-mix style finalizer over the stored key+1.
func hash64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ x>>30) * 0xbf58476d1ce4e5b9
	x = (x ^ x>>27) * 0x94d049bb133111eb
	return x ^ x>>31
}

func (t *Table) home(keyPlus uint64) uint64 {
	return hash64(keyPlus) % t.cap
}

func (t *Table) dist(idx, home uint64) uint64 {
	if idx >= home {
		return idx - home
	}
	return idx + t.cap - home
}

// Get returns the meta stored for key. The probe stops at an empty slot or
// at a slot whose displacement is below the probe distance; the Robin-Hood
// discipline guarantees the key cannot appear past either.
func (t *Table) Get(key uint64) (Meta, bool) {
	if key > MaxKey {
		return 0, false
	}
	kp := key + 1
	i := t.home(kp)
	for probed := uint64(0); probed < t.cap; probed++ {
		e := t.slots[i]
		if e == 0 {
			return 0, false
		}
		ekp := e & keyMask
		if ekp == kp {
			return Meta(e >> metaShift), true
		}
		if t.dist(i, t.home(ekp)) < probed {
			return 0, false
		}
		i++
		if i == t.cap {
			i = 0
		}
	}
	return 0, false
}

// SetMerge inserts key with meta m. If the key is already present the
// entries merge: the stored value-plus-one is kept and the kindmasks are
// ORed. A richer entry displaces a poorer one along the probe; the
// displaced entry keeps probing from there.
func (t *Table) SetMerge(key uint64, m Meta) error {
	if key > MaxKey {
		return fmt.Errorf("key %d: %w", key, ErrKeyRange)
	}
	if m >= 1<<metaBits {
		return fmt.Errorf("meta %d: %w", m, ErrMetaRange)
	}
	entry := (key + 1) | uint64(m)<<metaShift
	curKey := key + 1
	i := t.home(curKey)
	dib := uint64(0)
	// The slot index advances every iteration, so an empty slot is reached
	// within cap steps whenever one exists; a full lap means the table has
	// no room left.
	for steps := uint64(0); steps < t.cap; steps++ {
		e := t.slots[i]
		if e == 0 {
			t.slots[i] = entry
			t.size++
			return nil
		}
		ekp := e & keyMask
		if ekp == curKey {
			old := Meta(e >> metaShift)
			incoming := Meta(entry >> metaShift)
			if old.ValuePlusOne() != incoming.ValuePlusOne() {
				t.valueMismatches.Add(1)
			}
			merged := old | incoming&^valueMask
			t.slots[i] = ekp | uint64(merged)<<metaShift
			return nil
		}
		if d := t.dist(i, t.home(ekp)); d < dib {
			t.slots[i] = entry
			entry = e
			curKey = ekp
			dib = d
		}
		i++
		if i == t.cap {
			i = 0
		}
		dib++
	}
	return ErrTableFull
}

// EntryAt decodes slot i for linear scans. ok is false for an empty slot.
func (t *Table) EntryAt(i uint64) (key uint64, m Meta, ok bool) {
	e := t.slots[i]
	if e == 0 {
		return 0, 0, false
	}
	return e&keyMask - 1, Meta(e >> metaShift), true
}
