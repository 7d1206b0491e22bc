package silo

import (
	"fmt"
	"reflect"
)

// ComponentID is the dense, 0-based id a registry assigns to a component type.
type ComponentID uint32

// MaxComponents is the number of distinct component types a registry accepts.
// It is the bit width of an archetype Key.
const MaxComponents = 64

// Component represents a data attribute/state that can be attached to entities
// Components can be used to create queries for entities
type Component interface {
	ID() ComponentID
	Name() string
	registry() *Registry
}

// AccessibleComponent is a registered component type with typed accessors.
// It is a small value and is meant to be created once and shared.
type AccessibleComponent[T any] struct {
	id   ComponentID
	name string
	reg  *Registry
}

var _ Component = AccessibleComponent[struct{}]{}

func (c AccessibleComponent[T]) ID() ComponentID { return c.id }

func (c AccessibleComponent[T]) Name() string { return c.name }

func (c AccessibleComponent[T]) registry() *Registry { return c.reg }

func (c AccessibleComponent[T]) String() string { return c.name }

// Get returns the component value stored in the borrowed row. It fails when
// the row's archetype lacks the component or the borrow has been invalidated
// by a structural change.
func (c AccessibleComponent[T]) Get(r Row) (*T, bool) {
	if !r.Valid() || c.reg != r.w.reg {
		return nil, false
	}
	col, ok := c.column(r.table)
	if !ok {
		return nil, false
	}
	return &col.data[r.index], true
}

// Check reports whether the row's archetype carries the component.
func (c AccessibleComponent[T]) Check(r Row) bool {
	if r.table == nil || c.reg != r.w.reg {
		return false
	}
	return r.table.slots[c.id] >= 0
}

// GetFromCursor retrieves the component for the row the cursor points at.
// It returns nil when the current archetype lacks the component.
func (c AccessibleComponent[T]) GetFromCursor(cursor *Cursor) *T {
	ptr, _ := c.Get(cursor.Row())
	return ptr
}

// Set overwrites the component value of a live entity. It does nothing and
// returns false when the handle is stale or the entity lacks the component.
func (c AccessibleComponent[T]) Set(e Entity, value T) bool {
	ok := false
	e.Access(func(r Row) {
		if ptr, found := c.Get(r); found {
			*ptr = value
			ok = true
		}
	})
	return ok
}

// Borrow resolves the entity's component into a Ref. The Ref stops handing out
// the pointer as soon as the world performs any structural change.
func (c AccessibleComponent[T]) Borrow(e Entity) Ref[T] {
	ref := Ref[T]{comp: c, entity: e}
	ref.Refresh()
	return ref
}

func (c AccessibleComponent[T]) column(a *archetype) (*typedColumn[T], bool) {
	if a == nil || c.reg == nil || int(c.id) >= MaxComponents {
		return nil, false
	}
	slot := a.slots[c.id]
	if slot < 0 {
		return nil, false
	}
	col, ok := a.columns[slot].(*typedColumn[T])
	return col, ok
}

// componentHandle is the untyped Component a registry hands out for lookups by
// id or name.
type componentHandle struct {
	id   ComponentID
	name string
	reg  *Registry
}

func (c componentHandle) ID() ComponentID { return c.id }

func (c componentHandle) Name() string { return c.name }

func (c componentHandle) registry() *Registry { return c.reg }

func (c componentHandle) String() string { return c.name }

// componentInfo is the per-id operation table: everything needed to store a
// component type-erased.
type componentInfo struct {
	id        ComponentID
	name      string
	typ       reflect.Type
	size      uintptr
	newColumn func() column
}

func (i *componentInfo) String() string {
	return fmt.Sprintf("%s(#%d, %dB)", i.name, i.id, i.size)
}

// ComponentOption customizes a component type at registration.
type ComponentOption[T any] func(*componentOptions[T])

type componentOptions[T any] struct {
	name       string
	defaultVal *T
}

// WithDefault sets the value new rows are constructed with instead of the zero value.
func WithDefault[T any](v T) ComponentOption[T] {
	return func(o *componentOptions[T]) {
		o.defaultVal = &v
	}
}

// WithName registers the component under name instead of its Go type name.
func WithName[T any](name string) ComponentOption[T] {
	return func(o *componentOptions[T]) {
		o.name = name
	}
}

// Ref is a borrow of one entity's component. It is invalidated by any
// structural change to the world; Refresh re-resolves it while the entity lives.
type Ref[T any] struct {
	comp   AccessibleComponent[T]
	entity Entity
	epoch  uint64
	ptr    *T
}

// Get returns the borrowed pointer, or false once the borrow went stale.
func (r Ref[T]) Get() (*T, bool) {
	if !r.Valid() {
		return nil, false
	}
	return r.ptr, true
}

// Valid reports whether the borrow may still be dereferenced.
func (r Ref[T]) Valid() bool {
	w := r.entity.world
	return r.ptr != nil && w != nil && w.epoch == r.epoch && !w.opQueue.pending(r.entity)
}

// Refresh re-resolves the borrow. It returns false if the entity is gone or no
// longer carries the component.
func (r *Ref[T]) Refresh() bool {
	r.ptr = nil
	r.entity.Access(func(row Row) {
		if ptr, ok := r.comp.Get(row); ok {
			r.ptr = ptr
			r.epoch = row.epoch
		}
	})
	return r.ptr != nil
}
