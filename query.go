package silo

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Query matches every archetype whose key holds all of its components.
type Query struct {
	key     Key
	reg     *Registry
	foreign bool
}

func newQuery(components ...Component) Query {
	return Query{}.And(components...)
}

// And returns a query that additionally requires components.
func (q Query) And(components ...Component) Query {
	for _, c := range components {
		if c == nil {
			continue
		}
		switch {
		case q.reg == nil:
			q.reg = c.registry()
		case q.reg != c.registry():
			q.foreign = true
		}
		q.key = q.key.Union(KeyOf(c))
	}
	return q
}

func (q Query) Key() Key { return q.key }

// matchCache remembers, for one component set, how many tables were examined
// and which of them matched. Tables are never removed and keys never change,
// so a match stays a match.
type matchCache struct {
	scanned int
	matches []int
}

// matching returns the indices of the tables q matches, in creation order.
// Only tables created since the previous call for the same key are examined.
func (w *World) matching(q Query) []int {
	if q.foreign || (q.reg != nil && q.reg != w.reg) {
		return nil
	}
	mc, ok := w.matches[q.key.bits]
	if w.parallel {
		// Workers only read the cache.
		if ok && mc.scanned == len(w.archetypes) {
			return mc.matches
		}
		var matches []int
		for i, a := range w.archetypes {
			if a.key.Contains(q.key) {
				matches = append(matches, i)
			}
		}
		return matches
	}
	if !ok {
		mc = &matchCache{}
		w.matches[q.key.bits] = mc
	}
	for ; mc.scanned < len(w.archetypes); mc.scanned++ {
		if w.archetypes[mc.scanned].key.Contains(q.key) {
			mc.matches = append(mc.matches, mc.scanned)
		}
	}
	return mc.matches
}

// Count returns the number of live entities q matches. Entities whose
// destruction is deferred are not counted. Count is safe to call from
// ParallelForEach callbacks.
func (w *World) Count(q Query) int {
	n := 0
	for _, idx := range w.matching(q) {
		n += w.archetypes[idx].size
	}
	for e := range w.opQueue.pendingDestroy {
		if rec, ok := w.records.lookup(e.slot, e.generation); ok && w.archetypes[rec.archetype].key.Contains(q.key) {
			n--
		}
	}
	return n
}

// ForEach calls fn for every row q matches. Tables are visited in creation
// order and rows from the highest index down. The world is locked meanwhile:
// entities destroyed by fn are skipped if not yet visited and removed when
// the outermost iteration returns, and other structural changes must be
// enqueued. The returned error reports queued operations that failed.
func (w *World) ForEach(q Query, fn func(Row)) error {
	if w.parallel {
		return LockedStorageError{}
	}
	matched := w.matching(q)
	w.Lock()
	for _, idx := range matched {
		a := w.archetypes[idx]
		for row := a.size - 1; row >= 0; row-- {
			if w.opQueue.pending(w.entityAt(a, row)) {
				continue
			}
			fn(Row{w: w, table: a, index: row, epoch: w.epoch})
		}
	}
	return w.Unlock()
}

// ParallelForEach calls fn for every row q matches, one goroutine per table
// with at most Config.Workers running. fn may read and write the components of
// its row but must not change the world's structure: Destroy returns false and
// Enqueue operations fail until it returns. Nested iteration (ForEach, the
// Each helpers, a Cursor) returns LockedStorageError; Count and Access work. The first error returned by fn
// cancels ctx for the remaining work.
func (w *World) ParallelForEach(ctx context.Context, q Query, fn func(Row) error) error {
	if w.parallel {
		return LockedStorageError{}
	}
	matched := w.matching(q)
	w.Lock()
	w.parallel = true

	g, ctx := errgroup.WithContext(ctx)
	if w.cfg.Workers > 0 {
		g.SetLimit(w.cfg.Workers)
	}
	for _, idx := range matched {
		a := w.archetypes[idx]
		if a.size == 0 {
			continue
		}
		g.Go(func() error {
			for row := a.size - 1; row >= 0; row-- {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := fn(Row{w: w, table: a, index: row, epoch: w.epoch}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	err := g.Wait()
	w.parallel = false
	return errors.Join(err, w.Unlock())
}

func (w *World) entityAt(a *archetype, row int) Entity {
	slot := a.entities[row]
	return Entity{world: w, slot: slot, generation: w.records.slots[slot].generation}
}

// Each1 calls fn with the entity and component of every entity holding a.
func Each1[A any](w *World, a AccessibleComponent[A], fn func(Entity, *A)) error {
	if w.parallel {
		return LockedStorageError{}
	}
	matched := w.matching(newQuery(a))
	w.Lock()
	for _, idx := range matched {
		t := w.archetypes[idx]
		ca, ok := a.column(t)
		if !ok {
			continue
		}
		for row := t.size - 1; row >= 0; row-- {
			e := w.entityAt(t, row)
			if w.opQueue.pending(e) {
				continue
			}
			fn(e, &ca.data[row])
		}
	}
	return w.Unlock()
}

// Each2 is Each1 for entities holding both a and b.
func Each2[A, B any](w *World, a AccessibleComponent[A], b AccessibleComponent[B], fn func(Entity, *A, *B)) error {
	if w.parallel {
		return LockedStorageError{}
	}
	matched := w.matching(newQuery(a, b))
	w.Lock()
	for _, idx := range matched {
		t := w.archetypes[idx]
		ca, okA := a.column(t)
		cb, okB := b.column(t)
		if !okA || !okB {
			continue
		}
		for row := t.size - 1; row >= 0; row-- {
			e := w.entityAt(t, row)
			if w.opQueue.pending(e) {
				continue
			}
			fn(e, &ca.data[row], &cb.data[row])
		}
	}
	return w.Unlock()
}

func Each3[A, B, C any](w *World, a AccessibleComponent[A], b AccessibleComponent[B], c AccessibleComponent[C], fn func(Entity, *A, *B, *C)) error {
	if w.parallel {
		return LockedStorageError{}
	}
	matched := w.matching(newQuery(a, b, c))
	w.Lock()
	for _, idx := range matched {
		t := w.archetypes[idx]
		ca, okA := a.column(t)
		cb, okB := b.column(t)
		cc, okC := c.column(t)
		if !okA || !okB || !okC {
			continue
		}
		for row := t.size - 1; row >= 0; row-- {
			e := w.entityAt(t, row)
			if w.opQueue.pending(e) {
				continue
			}
			fn(e, &ca.data[row], &cb.data[row], &cc.data[row])
		}
	}
	return w.Unlock()
}
