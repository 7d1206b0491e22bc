package silo

var _ Cache[any] = &SimpleCache[any]{}

// SimpleCache is a bounded, string keyed, append-only store. Indices are dense
// and 0-based in registration order. The registry uses one to resolve
// component names.
type SimpleCache[T any] struct {
	items       []T
	itemIndices map[string]int
	maxCapacity int
}

func (c *SimpleCache[T]) GetIndex(key string) (int, bool) {
	index, ok := c.itemIndices[key]
	return index, ok
}

func (c *SimpleCache[T]) GetItem(index int) *T {
	return &c.items[index]
}

func (c *SimpleCache[T]) GetItem32(index uint32) *T {
	return &c.items[index]
}

// Register stores item under key. Registering an existing key replaces the
// item in place and returns its original index.
func (c *SimpleCache[T]) Register(key string, item T) (int, error) {
	if idx, ok := c.itemIndices[key]; ok {
		c.items[idx] = item
		return idx, nil
	}
	if len(c.items) >= c.maxCapacity {
		return -1, CacheCapacityError{Capacity: c.maxCapacity}
	}

	idx := len(c.items)
	c.itemIndices[key] = idx
	c.items = append(c.items, item)
	return idx, nil
}

func (c *SimpleCache[T]) Len() int {
	return len(c.items)
}

func (c *SimpleCache[T]) Clear() {
	clear(c.items)
	c.items = c.items[:0]
	c.itemIndices = make(map[string]int)
}
