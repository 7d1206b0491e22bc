package silo

import (
	"errors"
	"reflect"

	"github.com/TheBitDrifter/bark"
	"github.com/TheBitDrifter/mask"
	"go.uber.org/zap"
)

// World owns the entities, the archetype tables holding their components and
// the query match caches. A World is not safe for concurrent mutation; only
// ParallelForEach fans work out across goroutines.
type World struct {
	reg *Registry
	cfg Config
	log *zap.Logger

	records    records
	archetypes []*archetype
	byMask     map[mask.Mask]int
	matches    map[mask.Mask]*matchCache

	// epoch advances on every structural change and invalidates Rows and Refs.
	epoch    uint64
	locks    int
	parallel bool
	opQueue  opQueue
}

func newWorld(cfg Config) (*World, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log, err := cfg.logger()
	if err != nil {
		return nil, err
	}
	reg := cfg.Registry
	if reg == nil {
		reg = Components
	}
	return &World{
		reg:     reg,
		cfg:     cfg,
		log:     log,
		records: newRecords(cfg.InitialEntities, cfg.MaxEntities),
		byMask:  make(map[mask.Mask]int),
		matches: make(map[mask.Mask]*matchCache),
		opQueue: newOpQueue(),
	}, nil
}

func (w *World) Registry() *Registry { return w.reg }

func (w *World) Logger() *zap.Logger { return w.log }

// Len returns the number of live entities.
func (w *World) Len() int {
	return w.records.live()
}

// Archetypes returns every table in creation order.
func (w *World) Archetypes() []Archetype {
	out := make([]Archetype, len(w.archetypes))
	for i, a := range w.archetypes {
		out[i] = a
	}
	return out
}

// NewOrExistingArchetype returns the table for exactly the given components.
func (w *World) NewOrExistingArchetype(components ...Component) (Archetype, error) {
	key, err := w.keyOf(components)
	if err != nil {
		return nil, w.traced("resolve archetype", err)
	}
	a, err := w.findOrCreate(key)
	if err != nil {
		return nil, w.traced("resolve archetype", err)
	}
	return a, nil
}

// NewEntity creates one entity with default constructed components.
func (w *World) NewEntity(components ...Component) (Entity, error) {
	if w.Locked() {
		return Entity{}, LockedStorageError{}
	}
	key, err := w.keyOf(components)
	if err != nil {
		return Entity{}, w.traced("create entity", err)
	}
	a, err := w.findOrCreate(key)
	if err != nil {
		return Entity{}, w.traced("create entity", err)
	}
	e, err := w.spawn(a)
	if err != nil {
		return Entity{}, w.traced("create entity", err)
	}
	return e, nil
}

// NewEntities creates n entities sharing one archetype. Either all n are
// created or, on failure, none are.
func (w *World) NewEntities(n int, components ...Component) ([]Entity, error) {
	if n < 0 {
		return nil, BatchOperationError{Count: n}
	}
	if w.Locked() {
		return nil, LockedStorageError{}
	}
	key, err := w.keyOf(components)
	if err != nil {
		return nil, w.traced("create entities", err)
	}
	a, err := w.findOrCreate(key)
	if err != nil {
		return nil, w.traced("create entities", err)
	}
	entities := make([]Entity, 0, n)
	for range n {
		e, err := w.spawn(a)
		if err != nil {
			for i := len(entities) - 1; i >= 0; i-- {
				w.destroyNow(entities[i])
			}
			return nil, w.traced("create entities", err)
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// NewEntityWith creates an entity and hands its row to init before returning.
// The world is locked while init runs; operations init queued are applied
// before NewEntityWith returns and their failures are returned with the
// entity. If init destroyed the entity the error is a StaleEntityError.
func (w *World) NewEntityWith(init func(Row), components ...Component) (Entity, error) {
	e, err := w.NewEntity(components...)
	if err != nil {
		return Entity{}, err
	}
	if init == nil {
		return e, nil
	}
	var queued error
	w.Access(e, func(r Row) {
		w.Lock()
		defer func() { queued = w.Unlock() }()
		init(r)
	})
	if _, ok := w.resolve(e); !ok {
		return Entity{}, errors.Join(StaleEntityError{Entity: e}, queued)
	}
	return e, queued
}

// EnqueueNewEntities creates entities now, or once the world unlocks.
func (w *World) EnqueueNewEntities(n int, components ...Component) error {
	if w.parallel {
		return LockedStorageError{}
	}
	if n < 0 {
		return BatchOperationError{Count: n}
	}
	if !w.Locked() {
		_, err := w.NewEntities(n, components...)
		return err
	}
	if _, err := w.keyOf(components); err != nil {
		return w.traced("enqueue entities", err)
	}
	w.opQueue.enqueue(operation{typ: opCreate, amount: n, comps: components})
	return nil
}

// Access resolves e and runs fn with its row. Stale handles return false and
// fn is not called.
func (w *World) Access(e Entity, fn func(Row)) bool {
	rec, ok := w.resolve(e)
	if !ok {
		return false
	}
	fn(Row{w: w, table: w.archetypes[rec.archetype], index: int(rec.row), epoch: w.epoch})
	return true
}

// Destroy removes a live entity and reports whether it was live. While the
// world is locked by an iteration the removal of its row is deferred until the
// outermost iteration finishes, but the handle is dead as soon as Destroy
// returns. Destroy always fails during ParallelForEach.
func (w *World) Destroy(e Entity) bool {
	if w.parallel {
		return false
	}
	if _, ok := w.resolve(e); !ok {
		return false
	}
	if w.Locked() {
		return w.opQueue.enqueueDestroy(e)
	}
	w.destroyNow(e)
	return true
}

// DestroyEntities destroys every live entity given and returns how many were.
func (w *World) DestroyEntities(entities ...Entity) int {
	n := 0
	for _, e := range entities {
		if w.Destroy(e) {
			n++
		}
	}
	return n
}

func (w *World) AddComponent(e Entity, components ...Component) error {
	if w.Locked() {
		return LockedStorageError{}
	}
	rec, err := w.live(e)
	if err != nil {
		return err
	}
	key, err := w.keyOf(components)
	if err != nil {
		return w.traced("add component", err)
	}
	src := w.archetypes[rec.archetype]
	for _, c := range components {
		if src.has(c.ID()) {
			return ComponentExistsError{Component: c}
		}
	}
	return w.relocate(e, src.key.Union(key))
}

// AddComponentWithValue adds c and stores value, which must be a T or *T of
// the component's type.
func (w *World) AddComponentWithValue(e Entity, c Component, value any) error {
	if c == nil {
		return w.traced("add component", UnknownComponentError{Name: "<nil>"})
	}
	if c.registry() != w.reg {
		return w.traced("add component", ForeignComponentError{Component: c})
	}
	want := w.reg.Type(c.ID())
	got := reflect.TypeOf(value)
	if got == nil || (got != want && !(got.Kind() == reflect.Pointer && got.Elem() == want)) {
		return w.traced("add component", ComponentTypeMismatchError{Component: c, Want: want, Got: got})
	}
	if err := w.AddComponent(e, c); err != nil {
		return err
	}
	rec, _ := w.records.lookup(e.slot, e.generation)
	a := w.archetypes[rec.archetype]
	a.columns[a.slots[c.ID()]].set(int(rec.row), value)
	return nil
}

// AddComponentByName resolves name in the world's registry and adds the
// component with its default value.
func (w *World) AddComponentByName(e Entity, name string) (Component, error) {
	c, ok := w.reg.Lookup(name)
	if !ok {
		return nil, w.traced("add component", UnknownComponentError{Name: name})
	}
	if err := w.AddComponent(e, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ComponentByName returns a pointer to the named component of e as an
// interface. The pointer is valid until the next structural change.
func (w *World) ComponentByName(e Entity, name string) (any, bool) {
	c, ok := w.reg.Lookup(name)
	if !ok {
		return nil, false
	}
	var (
		value any
		found bool
	)
	w.Access(e, func(r Row) {
		value, found = r.Value(c)
	})
	return value, found
}

func (w *World) RemoveComponent(e Entity, components ...Component) error {
	if w.Locked() {
		return LockedStorageError{}
	}
	rec, err := w.live(e)
	if err != nil {
		return err
	}
	key, err := w.keyOf(components)
	if err != nil {
		return w.traced("remove component", err)
	}
	src := w.archetypes[rec.archetype]
	for _, c := range components {
		if !src.has(c.ID()) {
			return ComponentNotFoundError{Component: c}
		}
	}
	return w.relocate(e, src.key.Difference(key))
}

func (w *World) EnqueueAddComponent(e Entity, components ...Component) error {
	return w.enqueueComponentOp(opAddComponent, e, components)
}

func (w *World) EnqueueRemoveComponent(e Entity, components ...Component) error {
	return w.enqueueComponentOp(opRemoveComponent, e, components)
}

func (w *World) enqueueComponentOp(typ operationType, e Entity, components []Component) error {
	if w.parallel {
		return LockedStorageError{}
	}
	if !w.Locked() {
		if typ == opAddComponent {
			return w.AddComponent(e, components...)
		}
		return w.RemoveComponent(e, components...)
	}
	if _, err := w.live(e); err != nil {
		return err
	}
	if _, err := w.keyOf(components); err != nil {
		return w.traced("enqueue component change", err)
	}
	w.opQueue.enqueue(operation{typ: typ, entity: e, comps: components})
	return nil
}

// Lock defers destruction and rejects other structural changes until the
// matching Unlock. Locks nest.
func (w *World) Lock() {
	w.locks++
}

// Unlock releases one lock. Releasing the last one applies queued operations;
// their failures are joined into the returned error.
func (w *World) Unlock() error {
	if w.locks == 0 {
		return nil
	}
	w.locks--
	if w.locks > 0 {
		return nil
	}
	return w.processOperationQueue()
}

func (w *World) Locked() bool {
	return w.locks > 0
}

func (w *World) live(e Entity) (*entityRecord, error) {
	rec, ok := w.resolve(e)
	if !ok {
		return nil, StaleEntityError{Entity: e}
	}
	return rec, nil
}

// resolve returns the record of a handle that is live and not queued for
// destruction.
func (w *World) resolve(e Entity) (*entityRecord, bool) {
	if e.world != w {
		return nil, false
	}
	rec, ok := w.records.lookup(e.slot, e.generation)
	if !ok || w.opQueue.pending(e) {
		return nil, false
	}
	return rec, true
}

// traced logs err with its call trace and returns it unchanged, so callers
// keep matching the typed error with errors.As.
func (w *World) traced(op string, err error) error {
	w.log.Debug(op+" failed", zap.Error(bark.AddTrace(err)))
	return err
}

func (w *World) keyOf(components []Component) (Key, error) {
	for _, c := range components {
		if c == nil {
			return Key{}, UnknownComponentError{Name: "<nil>"}
		}
		if c.registry() != w.reg {
			return Key{}, ForeignComponentError{Component: c}
		}
	}
	return KeyOf(components...), nil
}

func (w *World) findOrCreate(key Key) (*archetype, error) {
	if idx, ok := w.byMask[key.bits]; ok {
		return w.archetypes[idx], nil
	}
	a, err := newArchetype(w.reg, len(w.archetypes), key)
	if err != nil {
		return nil, err
	}
	w.archetypes = append(w.archetypes, a)
	w.byMask[key.bits] = a.index
	w.log.Debug("archetype created", zap.Int("index", a.index), zap.Stringer("key", key))
	return a, nil
}

func (w *World) spawn(a *archetype) (Entity, error) {
	capBefore := w.records.capacity()
	slot, err := w.records.reserve()
	if err != nil {
		w.log.Warn("entity slots exhausted", zap.Int("limit", w.cfg.MaxEntities))
		return Entity{}, err
	}
	if c := w.records.capacity(); c != capBefore {
		w.log.Debug("entity slots grown", zap.Int("capacity", c))
	}
	row, grew, err := a.reserveRow(slot, w.cfg.MaxRowsPerTable)
	if err != nil {
		w.records.release(slot)
		w.log.Warn("archetype rows exhausted", zap.Int("index", a.index), zap.Error(err))
		return Entity{}, err
	}
	if grew {
		w.log.Debug("archetype grown", zap.Int("index", a.index), zap.Int("capacity", a.capacity))
	}
	rec := &w.records.slots[slot]
	rec.archetype = int32(a.index)
	rec.row = int32(row)
	w.epoch++
	return Entity{world: w, slot: slot, generation: rec.generation}, nil
}

// relocate moves e into the table for key. On failure e stays where it was.
func (w *World) relocate(e Entity, key Key) error {
	rec, _ := w.records.lookup(e.slot, e.generation)
	src := w.archetypes[rec.archetype]
	if src.key.Equal(key) {
		return nil
	}
	dst, err := w.findOrCreate(key)
	if err != nil {
		return w.traced("move entity", err)
	}
	row, grew, err := dst.moveFrom(src, int(rec.row), e.slot, &w.records, w.cfg.MaxRowsPerTable)
	if err != nil {
		w.log.Warn("archetype rows exhausted", zap.Int("index", dst.index), zap.Error(err))
		return w.traced("move entity", err)
	}
	if grew {
		w.log.Debug("archetype grown", zap.Int("index", dst.index), zap.Int("capacity", dst.capacity))
	}
	rec.archetype = int32(dst.index)
	rec.row = int32(row)
	w.epoch++
	return nil
}

func (w *World) destroyNow(e Entity) {
	rec, ok := w.records.lookup(e.slot, e.generation)
	if !ok {
		return
	}
	w.archetypes[rec.archetype].removeRow(int(rec.row), &w.records)
	w.records.release(e.slot)
	w.epoch++
}
