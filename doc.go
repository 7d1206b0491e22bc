/*
Package silo provides an in-memory, archetype based entity/component store.

Entities are grouped by the exact set of components they carry. Each group,
an archetype, is a table of densely packed parallel columns, one per component
type, so iterating a component subset walks contiguous memory.

Core Concepts:

  - Component: a plain Go type registered once in a Registry, which gives it a small dense id.
  - Key: the bitmask of component ids identifying an archetype.
  - Entity: a generational handle. Once its entity is destroyed every operation on it fails, even if the slot is reused.
  - Row: a short lived borrow of one table row, invalidated by any structural change.
  - Query: a conjunction of components; matching tables are cached per component set and refreshed incrementally.

Basic Usage:

	position := silo.FactoryNewComponent[Position]()
	velocity := silo.FactoryNewComponent[Velocity]()

	world, _ := silo.Factory.NewWorld(silo.DefaultConfig())
	world.NewEntities(100, position, velocity)

	silo.Each2(world, position, velocity, func(e silo.Entity, pos *Position, vel *Velocity) {
		pos.X += vel.X
		pos.Y += vel.Y
	})

	// Or with a cursor
	cursor := silo.Factory.NewCursor(silo.Factory.NewQuery(position, velocity), world)
	for cursor.Next() {
		pos := position.GetFromCursor(cursor)
		vel := velocity.GetFromCursor(cursor)
		pos.X += vel.X
		pos.Y += vel.Y
	}

Structural changes (creating and destroying entities, adding and removing
components) are rejected while an iteration holds the world, except Destroy,
which is deferred until the iteration ends, and the Enqueue variants.
*/
package silo
