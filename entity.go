package silo

import (
	"fmt"
	"strings"
)

// Entity is a generational handle to an entity of one World. It stays a
// valid value after the entity is destroyed: every operation on it then
// fails without effect, even when the slot was reused.
// The zero Entity is never valid.
type Entity struct {
	world      *World
	slot       uint32
	generation uint32
}

func (e Entity) World() *World { return e.world }

func (e Entity) Slot() uint32 { return e.slot }

func (e Entity) Generation() uint32 { return e.generation }

func (e Entity) String() string {
	return fmt.Sprintf("Entity(%d:%d)", e.slot, e.generation)
}

// Valid reports whether the entity is alive. An entity whose destruction is
// deferred by a running iteration is no longer valid.
func (e Entity) Valid() bool {
	if e.world == nil {
		return false
	}
	_, ok := e.world.resolve(e)
	return ok
}

// Key returns the archetype key of a live entity, or the empty key.
func (e Entity) Key() Key {
	if a := e.table(); a != nil {
		return a.key
	}
	return Key{}
}

// Components lists the entity's components in id order.
func (e Entity) Components() []Component {
	a := e.table()
	if a == nil {
		return nil
	}
	comps := make([]Component, 0, len(a.ids))
	for _, id := range a.ids {
		if c, ok := e.world.reg.Component(id); ok {
			comps = append(comps, c)
		}
	}
	return comps
}

func (e Entity) ComponentsAsString() string {
	comps := e.Components()
	names := make([]string, len(comps))
	for i, c := range comps {
		names[i] = c.Name()
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// Access runs fn with the entity's row. It returns false without calling fn
// when the handle is stale.
func (e Entity) Access(fn func(Row)) bool {
	if e.world == nil {
		return false
	}
	return e.world.Access(e, fn)
}

// Destroy removes the entity. See World.Destroy.
func (e Entity) Destroy() bool {
	if e.world == nil {
		return false
	}
	return e.world.Destroy(e)
}

func (e Entity) AddComponent(components ...Component) error {
	if e.world == nil {
		return StaleEntityError{Entity: e}
	}
	return e.world.AddComponent(e, components...)
}

func (e Entity) AddComponentWithValue(c Component, value any) error {
	if e.world == nil {
		return StaleEntityError{Entity: e}
	}
	return e.world.AddComponentWithValue(e, c, value)
}

func (e Entity) AddComponentByName(name string) (Component, error) {
	if e.world == nil {
		return nil, StaleEntityError{Entity: e}
	}
	return e.world.AddComponentByName(e, name)
}

func (e Entity) ComponentByName(name string) (any, bool) {
	if e.world == nil {
		return nil, false
	}
	return e.world.ComponentByName(e, name)
}

func (e Entity) RemoveComponent(components ...Component) error {
	if e.world == nil {
		return StaleEntityError{Entity: e}
	}
	return e.world.RemoveComponent(e, components...)
}

func (e Entity) EnqueueAddComponent(components ...Component) error {
	if e.world == nil {
		return StaleEntityError{Entity: e}
	}
	return e.world.EnqueueAddComponent(e, components...)
}

func (e Entity) EnqueueRemoveComponent(components ...Component) error {
	if e.world == nil {
		return StaleEntityError{Entity: e}
	}
	return e.world.EnqueueRemoveComponent(e, components...)
}

func (e Entity) table() *archetype {
	if e.world == nil {
		return nil
	}
	rec, ok := e.world.resolve(e)
	if !ok {
		return nil
	}
	return e.world.archetypes[rec.archetype]
}
