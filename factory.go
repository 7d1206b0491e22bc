package silo

type factory struct{}

var Factory factory

// NewWorld builds a world from cfg. Use DefaultConfig for the usual limits.
func (f factory) NewWorld(cfg Config) (*World, error) {
	return newWorld(cfg)
}

func (f factory) NewQuery(components ...Component) Query {
	return newQuery(components...)
}

func (f factory) NewCursor(query Query, world *World) *Cursor {
	return newCursor(query, world)
}

// FactoryNewComponent registers T in the default registry and panics when the
// registry is full or the name is taken by another type.
func FactoryNewComponent[T any](opts ...ComponentOption[T]) AccessibleComponent[T] {
	c, err := RegisterComponent[T](opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func FactoryNewCache[T any](cap int) Cache[T] {
	return &SimpleCache[T]{
		itemIndices: make(map[string]int),
		maxCapacity: cap,
	}
}
