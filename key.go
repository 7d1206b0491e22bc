package silo

import (
	"strconv"
	"strings"

	"github.com/TheBitDrifter/mask"
)

// Key identifies an archetype: the exact set of component ids an entity has.
// Two keys are equal iff they hold the same ids. The zero Key is the empty set.
type Key struct {
	bits mask.Mask
}

var _ mask.Maskable = Key{}

// NewKey builds a key from component ids. Ids outside [0, MaxComponents) are ignored.
func NewKey(ids ...ComponentID) Key {
	var k Key
	for _, id := range ids {
		if int(id) < MaxComponents {
			k.bits.Mark(uint32(id))
		}
	}
	return k
}

// KeyOf builds a key from components.
func KeyOf(components ...Component) Key {
	var k Key
	for _, c := range components {
		if c == nil {
			continue
		}
		if id := c.ID(); int(id) < MaxComponents {
			k.bits.Mark(uint32(id))
		}
	}
	return k
}

// Mask exposes the underlying bitmask.
func (k Key) Mask() mask.Mask {
	return k.bits
}

// Has reports whether id is part of the key.
func (k Key) Has(id ComponentID) bool {
	if int(id) >= MaxComponents {
		return false
	}
	var bit mask.Mask
	bit.Mark(uint32(id))
	return k.bits.ContainsAll(bit)
}

// Contains reports whether every id of other is also in k.
func (k Key) Contains(other Key) bool {
	return k.bits.ContainsAll(other.bits)
}

// Union returns a key holding the ids of both keys.
func (k Key) Union(other Key) Key {
	for _, id := range other.IDs() {
		k.bits.Mark(uint32(id))
	}
	return k
}

// Difference returns k without the ids of other.
func (k Key) Difference(other Key) Key {
	for _, id := range other.IDs() {
		k.bits.Unmark(uint32(id))
	}
	return k
}

func (k Key) Equal(other Key) bool {
	return k.bits == other.bits
}

func (k Key) IsEmpty() bool {
	var empty mask.Mask
	return k.bits == empty
}

// Less orders keys by their highest differing id: the key holding it sorts after.
func (k Key) Less(other Key) bool {
	for id := MaxComponents - 1; id >= 0; id-- {
		a, b := k.Has(ComponentID(id)), other.Has(ComponentID(id))
		if a != b {
			return b
		}
	}
	return false
}

// IDs returns the ids in ascending order.
func (k Key) IDs() []ComponentID {
	if k.IsEmpty() {
		return nil
	}
	ids := make([]ComponentID, 0, 4)
	for id := ComponentID(0); id < MaxComponents; id++ {
		if k.Has(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (k Key) Len() int {
	return len(k.IDs())
}

func (k Key) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, id := range k.IDs() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(int(id)))
	}
	sb.WriteByte('}')
	return sb.String()
}
