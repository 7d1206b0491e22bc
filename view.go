package silo

// Row borrows one row of an archetype table. It is handed to iteration and
// access callbacks and stops being Valid as soon as the world changes
// structurally. Keep Entity handles, not Rows, across such changes.
type Row struct {
	w     *World
	table *archetype
	index int
	epoch uint64
}

func (r Row) Valid() bool {
	return r.w != nil && r.table != nil && r.epoch == r.w.epoch
}

// Index is the row's position inside its table.
func (r Row) Index() int {
	return r.index
}

// Entity returns the handle of the entity stored in the row.
func (r Row) Entity() Entity {
	if !r.Valid() {
		return Entity{}
	}
	slot := r.table.entities[r.index]
	return Entity{world: r.w, slot: slot, generation: r.w.records.slots[slot].generation}
}

func (r Row) Key() Key {
	if r.table == nil {
		return Key{}
	}
	return r.table.key
}

func (r Row) Archetype() Archetype {
	if r.table == nil {
		return nil
	}
	return r.table
}

func (r Row) Has(c Component) bool {
	if r.table == nil || c == nil || c.registry() != r.w.reg {
		return false
	}
	return r.table.has(c.ID())
}

// Value returns a pointer to the row's value of c as an interface, for callers
// that resolve components by name.
func (r Row) Value(c Component) (any, bool) {
	if !r.Valid() || !r.Has(c) {
		return nil, false
	}
	return r.table.columns[r.table.slots[c.ID()]].addr(r.index), true
}
