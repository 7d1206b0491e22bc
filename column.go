package silo

import "reflect"

// column is the type-erased view an archetype has of one component array.
// Every column of a table has the same capacity; the table tracks the live size.
type column interface {
	// grown returns a copy with the given capacity holding rows [0, size).
	grown(capacity, size int) column
	// move overwrites row dst with row src.
	move(dst, src int)
	// copyFrom overwrites row dst with row srcRow of src, which must hold the same type.
	copyFrom(src column, srcRow, dst int)
	// construct writes the default value into row.
	construct(row int)
	// destroy zeroes row so it no longer retains references.
	destroy(row int)
	// addr returns a pointer to row as an interface value.
	addr(row int) any
	// set stores v into row if v has the column's type.
	set(row int, v any) bool
	// elem is the stored type.
	elem() reflect.Type
	capacity() int
}

type typedColumn[T any] struct {
	data       []T
	defaultVal *T
}

func newTypedColumn[T any](defaultVal *T) *typedColumn[T] {
	return &typedColumn[T]{defaultVal: defaultVal}
}

func (c *typedColumn[T]) grown(capacity, size int) column {
	data := make([]T, capacity)
	copy(data, c.data[:size])
	return &typedColumn[T]{data: data, defaultVal: c.defaultVal}
}

func (c *typedColumn[T]) move(dst, src int) {
	c.data[dst] = c.data[src]
}

func (c *typedColumn[T]) copyFrom(src column, srcRow, dst int) {
	c.data[dst] = src.(*typedColumn[T]).data[srcRow]
}

func (c *typedColumn[T]) construct(row int) {
	if c.defaultVal != nil {
		c.data[row] = *c.defaultVal
		return
	}
	var zero T
	c.data[row] = zero
}

func (c *typedColumn[T]) destroy(row int) {
	var zero T
	c.data[row] = zero
}

func (c *typedColumn[T]) addr(row int) any {
	return &c.data[row]
}

func (c *typedColumn[T]) set(row int, v any) bool {
	switch val := v.(type) {
	case T:
		c.data[row] = val
	case *T:
		if val == nil {
			return false
		}
		c.data[row] = *val
	default:
		return false
	}
	return true
}

func (c *typedColumn[T]) capacity() int {
	return len(c.data)
}

func (c *typedColumn[T]) elem() reflect.Type {
	return reflect.TypeFor[T]()
}
