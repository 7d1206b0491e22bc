package silo

import "iter"

// Archetype is the read-only view of one archetype table.
type Archetype interface {
	ID() uint32
	Key() Key
	Len() int
	Cap() int
}

type iCursor interface {
	All() iter.Seq[Row]
	Next() bool
	Reset()
	Row() Row
	Entity() Entity
}

type Cache[T any] interface {
	GetIndex(string) (int, bool)
	GetItem(int) *T
	GetItem32(uint32) *T
	Register(string, T) (int, error)
}
