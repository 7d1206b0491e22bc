package silo

import (
	"iter"

	"go.uber.org/zap"
)

var _ iCursor = &Cursor{}

// Cursor is a pull iterator over the rows a query matches, in the same order
// as World.ForEach. The world stays locked from the first Next until the
// cursor is exhausted or Reset.
type Cursor struct {
	query Query
	world *World

	matched    []int
	tableIndex int
	current    *archetype
	row        int

	initialized bool
	err         error
}

func newCursor(query Query, world *World) *Cursor {
	return &Cursor{
		query: query,
		world: world,
	}
}

// Next advances to the next row. It returns false when the rows are exhausted
// or, with Err set to LockedStorageError, when called from a ParallelForEach
// callback.
func (c *Cursor) Next() bool {
	if !c.initialized {
		if c.world.parallel {
			c.err = LockedStorageError{}
			return false
		}
		c.initialize()
	}
	for c.tableIndex < len(c.matched) {
		if c.current == nil {
			c.current = c.world.archetypes[c.matched[c.tableIndex]]
			c.row = c.current.size
		}
		for c.row > 0 {
			c.row--
			if !c.world.opQueue.pending(c.world.entityAt(c.current, c.row)) {
				return true
			}
		}
		c.current = nil
		c.tableIndex++
	}
	c.Reset()
	return false
}

// All ranges over the remaining rows. Breaking out of the loop resets the cursor.
func (c *Cursor) All() iter.Seq[Row] {
	return func(yield func(Row) bool) {
		for c.Next() {
			if !yield(c.Row()) {
				c.Reset()
				return
			}
		}
	}
}

func (c *Cursor) initialize() {
	c.matched = c.world.matching(c.query)
	c.tableIndex = 0
	c.current = nil
	c.err = nil
	c.world.Lock()
	c.initialized = true
}

// Reset rewinds the cursor and releases its lock on the world.
func (c *Cursor) Reset() {
	if !c.initialized {
		return
	}
	c.matched = nil
	c.tableIndex = 0
	c.current = nil
	c.row = 0
	c.initialized = false
	if err := c.world.Unlock(); err != nil {
		c.err = err
		c.world.log.Debug("cursor released world with failed operations", zap.Error(err))
	}
}

// Err returns the queued operation failures reported when the cursor last
// released the world, or why it could not start.
func (c *Cursor) Err() error {
	return c.err
}

// Row borrows the current row.
func (c *Cursor) Row() Row {
	if c.current == nil {
		return Row{}
	}
	return Row{w: c.world, table: c.current, index: c.row, epoch: c.world.epoch}
}

func (c *Cursor) Entity() Entity {
	if c.current == nil {
		return Entity{}
	}
	return c.world.entityAt(c.current, c.row)
}

// RemainingInArchetype is the number of rows of the current table not yet visited.
func (c *Cursor) RemainingInArchetype() int {
	if c.current == nil {
		return 0
	}
	return c.row
}

func (c *Cursor) TotalMatched() int {
	return c.world.Count(c.query)
}
