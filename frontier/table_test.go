package frontier

import (
	"errors"
	"testing"

	"github.com/matryer/is"
	"lukechampine.com/frand"
)

func TestPackMeta(t *testing.T) {
	is := is.New(t)
	m := PackMeta(2, 0x15)
	is.Equal(m.ValuePlusOne(), uint8(2))
	is.Equal(m.Kind(), uint8(0x15))
}

// checkDiscipline walks every occupied slot and verifies the Robin-Hood
// invariant: a slot right after an empty one holds an entry at its home, and
// along a run of occupied slots a displacement exceeds the previous one by at
// most one.
func checkDiscipline(t *testing.T, tbl *Table) {
	t.Helper()
	prev := uint64(0)
	prevOccupied := false
	// two passes over the ring so a run wrapping the end is seen whole
	for n := uint64(0); n < 2*tbl.cap; n++ {
		i := n % tbl.cap
		e := tbl.slots[i]
		if e == 0 {
			prevOccupied = false
			continue
		}
		d := tbl.dist(i, tbl.home(e&keyMask))
		if prevOccupied && d > prev+1 {
			t.Fatalf("slot %d displacement %d after %d", i, d, prev)
		}
		if !prevOccupied && d > 0 {
			t.Fatalf("slot %d displacement %d follows an empty slot", i, d)
		}
		prev = d
		prevOccupied = true
	}
}

func TestSetMergeORsKindmasks(t *testing.T) {
	is := is.New(t)
	tbl, err := New(17)
	is.NoErr(err)
	// every key collects a growing union of kind bits
	for bit := uint8(0); bit < 5; bit++ {
		for key := uint64(1); key <= 12; key++ {
			is.NoErr(tbl.SetMerge(key, PackMeta(1, 1<<bit)))
		}
	}
	is.Equal(tbl.Size(), uint64(12))
	for key := uint64(1); key <= 12; key++ {
		m, ok := tbl.Get(key)
		is.True(ok)
		is.Equal(m.Kind(), uint8(0x1f))
		is.Equal(m.ValuePlusOne(), uint8(1))
	}
	checkDiscipline(t, tbl)
}

func TestMergeKeepsOldValue(t *testing.T) {
	is := is.New(t)
	tbl, err := New(17)
	is.NoErr(err)
	is.NoErr(tbl.SetMerge(7, PackMeta(0, 0x1)))
	is.NoErr(tbl.SetMerge(7, PackMeta(2, 0x2)))
	m, ok := tbl.Get(7)
	is.True(ok)
	is.Equal(m.ValuePlusOne(), uint8(0))
	is.Equal(m.Kind(), uint8(0x3))
	is.Equal(tbl.ValueMismatches(), uint64(1))
}

func TestGetMissing(t *testing.T) {
	is := is.New(t)
	tbl, err := New(17)
	is.NoErr(err)
	_, ok := tbl.Get(42)
	is.True(!ok)
	is.NoErr(tbl.SetMerge(42, PackMeta(1, 0x1)))
	_, ok = tbl.Get(43)
	is.True(!ok)
}

func TestKeyRange(t *testing.T) {
	is := is.New(t)
	tbl, err := New(17)
	is.NoErr(err)
	err = tbl.SetMerge(MaxKey+1, PackMeta(1, 0x1))
	is.True(errors.Is(err, ErrKeyRange))
	is.NoErr(tbl.SetMerge(MaxKey, PackMeta(1, 0x1)))
	m, ok := tbl.Get(MaxKey)
	is.True(ok)
	is.Equal(m.Kind(), uint8(0x1))
}

func TestMetaRange(t *testing.T) {
	is := is.New(t)
	tbl, err := New(17)
	is.NoErr(err)
	err = tbl.SetMerge(1, Meta(1<<metaBits))
	is.True(errors.Is(err, ErrMetaRange))
}

func TestTableFull(t *testing.T) {
	is := is.New(t)
	tbl, err := New(4)
	is.NoErr(err)
	for key := uint64(10); key < 14; key++ {
		is.NoErr(tbl.SetMerge(key, PackMeta(1, 0x1)))
	}
	// merging into an existing key still works on a full table
	is.NoErr(tbl.SetMerge(10, PackMeta(1, 0x2)))
	m, ok := tbl.Get(10)
	is.True(ok)
	is.Equal(m.Kind(), uint8(0x3))
	// a fifth distinct key has nowhere to land
	err = tbl.SetMerge(99, PackMeta(1, 0x1))
	is.True(errors.Is(err, ErrTableFull))
}

func TestClear(t *testing.T) {
	is := is.New(t)
	tbl, err := New(17)
	is.NoErr(err)
	is.NoErr(tbl.SetMerge(3, PackMeta(1, 0x1)))
	tbl.Clear()
	is.Equal(tbl.Size(), uint64(0))
	_, ok := tbl.Get(3)
	is.True(!ok)
}

func TestRandomInsertions(t *testing.T) {
	is := is.New(t)
	const capacity = 1 << 12
	const n = capacity * 3 / 4
	tbl, err := New(capacity)
	is.NoErr(err)

	ref := make(map[uint64]Meta)
	for i := 0; i < n*2; i++ {
		// duplicate keys on purpose: 2n draws from n possible keys, each
		// with a random kind bit
		key := frand.Uint64n(uint64(n)) & MaxKey
		kind := uint8(1 << frand.Intn(5))
		m := PackMeta(1, kind)
		is.NoErr(tbl.SetMerge(key, m))
		if old, ok := ref[key]; ok {
			ref[key] = old | m&^valueMask
		} else {
			ref[key] = m
		}
	}
	is.Equal(tbl.Size(), uint64(len(ref)))
	for key, want := range ref {
		got, ok := tbl.Get(key)
		is.True(ok)
		is.Equal(got, want)
	}
	checkDiscipline(t, tbl)

	// EntryAt scan sees exactly the reference set
	seen := 0
	for i := uint64(0); i < tbl.Cap(); i++ {
		key, m, ok := tbl.EntryAt(i)
		if !ok {
			continue
		}
		seen++
		is.Equal(m, ref[key])
	}
	is.Equal(seen, len(ref))
}
