package silo

import "github.com/TheBitDrifter/silo/internal/bitset"

const invalidArchetype = -1

// entityRecord locates a live entity. archetype == invalidArchetype marks a free slot.
type entityRecord struct {
	archetype  int32
	row        int32
	generation uint32
}

// records is the slot table handles index into. Slots below last have been
// handed out at least once; freed ones among them are marked in free.
type records struct {
	slots []entityRecord
	last  int
	free  *bitset.Hierarchical
	limit int
}

func newRecords(initial, limit int) records {
	r := records{
		free:  bitset.New(0),
		limit: limit,
	}
	if initial > 0 {
		r.resize(initial)
	}
	return r
}

// reserve hands out a slot: a never used one first, then the lowest recycled
// one, growing the table only when both are exhausted.
func (r *records) reserve() (uint32, error) {
	if r.last < len(r.slots) {
		slot := r.last
		r.last++
		return uint32(slot), nil
	}
	if slot, ok := r.free.First(); ok {
		r.free.Clear(slot)
		return uint32(slot), nil
	}

	newCap := 2
	if len(r.slots) > 0 {
		newCap = len(r.slots) * 2
	}
	if r.limit > 0 && newCap > r.limit {
		newCap = r.limit
	}
	if newCap <= len(r.slots) {
		return 0, CapacityError{Resource: "entity slots", Limit: r.limit}
	}
	r.resize(newCap)
	slot := r.last
	r.last++
	return uint32(slot), nil
}

func (r *records) resize(capacity int) {
	grown := make([]entityRecord, capacity)
	n := copy(grown, r.slots)
	for i := n; i < capacity; i++ {
		grown[i] = entityRecord{archetype: invalidArchetype, row: -1}
	}
	r.slots = grown
	r.free.Resize(capacity)
}

// release frees slot and bumps its generation, invalidating every handle to it.
func (r *records) release(slot uint32) {
	rec := &r.slots[slot]
	rec.archetype = invalidArchetype
	rec.row = -1
	rec.generation++

	if int(slot) != r.last-1 {
		r.free.Set(int(slot))
		return
	}
	r.last--
	for r.last > 0 && r.free.Get(r.last-1) {
		r.free.Clear(r.last - 1)
		r.last--
	}
}

// lookup returns the record of a live handle.
func (r *records) lookup(slot, generation uint32) (*entityRecord, bool) {
	if int(slot) >= r.last {
		return nil, false
	}
	rec := &r.slots[slot]
	if rec.archetype == invalidArchetype || rec.generation != generation {
		return nil, false
	}
	return rec, true
}

// live returns the number of slots currently owned by entities.
func (r *records) live() int {
	return r.last - r.free.Count()
}

func (r *records) capacity() int {
	return len(r.slots)
}
