package silo

import (
	"fmt"
	"runtime"
)

var _ Archetype = &archetype{}

// archetype is the columnar table of every entity sharing one Key.
// All columns share capacity; rows [0, size) are live and dense.
type archetype struct {
	index    int
	key      Key
	ids      []ComponentID
	slots    [MaxComponents]int8
	columns  []column
	entities []uint32
	size     int
	capacity int
}

func newArchetype(reg *Registry, index int, key Key) (*archetype, error) {
	ids := key.IDs()
	a := &archetype{
		index:   index,
		key:     key,
		ids:     ids,
		columns: make([]column, len(ids)),
	}
	for i := range a.slots {
		a.slots[i] = -1
	}
	for i, id := range ids {
		info := reg.info(id)
		if info == nil {
			return nil, UnknownComponentError{Name: fmt.Sprintf("#%d", id)}
		}
		a.slots[id] = int8(i)
		a.columns[i] = info.newColumn()
	}
	return a, nil
}

func (a *archetype) ID() uint32 { return uint32(a.index) }

func (a *archetype) Key() Key { return a.key }

func (a *archetype) Len() int { return a.size }

func (a *archetype) Cap() int { return a.capacity }

func (a *archetype) has(id ComponentID) bool {
	return int(id) < MaxComponents && a.slots[id] >= 0
}

// grow reallocates every column and the back-reference array. Nothing is
// committed unless all allocations succeed.
func (a *archetype) grow(limit int) (err error) {
	newCap := 2
	if a.capacity > 0 {
		newCap = a.capacity * 2
	}
	if limit > 0 && newCap > limit {
		newCap = limit
	}
	if newCap <= a.capacity {
		return CapacityError{Resource: "archetype rows", Limit: limit}
	}

	defer func() {
		if r := recover(); r != nil {
			rerr, ok := r.(runtime.Error)
			if !ok {
				panic(r)
			}
			err = CapacityError{Resource: "archetype rows", Limit: newCap, Cause: rerr}
		}
	}()

	columns := make([]column, len(a.columns))
	for i, col := range a.columns {
		columns[i] = col.grown(newCap, a.size)
	}
	entities := make([]uint32, newCap)
	copy(entities, a.entities[:a.size])

	a.columns = columns
	a.entities = entities
	a.capacity = newCap
	return nil
}

// reserveRow appends a default constructed row owned by the record slot.
func (a *archetype) reserveRow(slot uint32, limit int) (row int, grew bool, err error) {
	if a.size == a.capacity {
		if err := a.grow(limit); err != nil {
			return -1, false, err
		}
		grew = true
	}
	row = a.size
	for _, col := range a.columns {
		col.construct(row)
	}
	a.entities[row] = slot
	a.size++
	return row, grew, nil
}

// removeRow swap-removes row: the last row moves into it and the record of
// the entity that owned the last row is pointed at its new position.
func (a *archetype) removeRow(row int, recs *records) {
	last := a.size - 1
	if row != last {
		for _, col := range a.columns {
			col.move(row, last)
		}
		moved := a.entities[last]
		a.entities[row] = moved
		recs.slots[moved].row = int32(row)
	}
	for _, col := range a.columns {
		col.destroy(last)
	}
	a.size--
}

// moveFrom reserves a row for slot, copies the components both tables share
// from src's srcRow and removes srcRow from src. Components only this table
// has keep their default value.
func (a *archetype) moveFrom(src *archetype, srcRow int, slot uint32, recs *records, limit int) (row int, grew bool, err error) {
	row, grew, err = a.reserveRow(slot, limit)
	if err != nil {
		return -1, false, err
	}
	for i, id := range a.ids {
		if s := src.slots[id]; s >= 0 {
			a.columns[i].copyFrom(src.columns[s], srcRow, row)
		}
	}
	src.removeRow(srcRow, recs)
	return row, grew, nil
}
