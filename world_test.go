package silo

import (
	"errors"
	"math/rand/v2"
	"testing"
)

// Test component types
type Position struct {
	X, Y float64
}

type Velocity struct {
	X, Y, Z float64
}

type Health struct {
	Current, Max int
}

type testComponents struct {
	position AccessibleComponent[Position]
	velocity AccessibleComponent[Velocity]
	health   AccessibleComponent[Health]
}

func (tc testComponents) all() []Component {
	return []Component{tc.position, tc.velocity, tc.health}
}

// newTestWorld builds a world over a private registry so tests do not share ids.
func newTestWorld(t testing.TB, configure ...func(*Config)) (*World, testComponents) {
	t.Helper()
	reg := NewRegistry()
	var (
		tc  testComponents
		err error
	)
	if tc.position, err = RegisterComponentIn[Position](reg); err != nil {
		t.Fatalf("register Position: %v", err)
	}
	if tc.velocity, err = RegisterComponentIn[Velocity](reg); err != nil {
		t.Fatalf("register Velocity: %v", err)
	}
	if tc.health, err = RegisterComponentIn[Health](reg, WithDefault(Health{Current: 100, Max: 100})); err != nil {
		t.Fatalf("register Health: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Registry = reg
	for _, fn := range configure {
		fn(&cfg)
	}
	w, err := Factory.NewWorld(cfg)
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	return w, tc
}

// checkInvariants verifies that every table is dense and that table rows and
// entity records point at each other.
func checkInvariants(t *testing.T, w *World) {
	t.Helper()
	rows := 0
	for _, a := range w.archetypes {
		if a.size > a.capacity {
			t.Fatalf("archetype %d: size %d exceeds capacity %d", a.index, a.size, a.capacity)
		}
		for i, col := range a.columns {
			if got := col.capacity(); got != a.capacity {
				t.Fatalf("archetype %d column %d has %d rows, want %d", a.index, i, got, a.capacity)
			}
		}
		for row := 0; row < a.size; row++ {
			slot := a.entities[row]
			rec := w.records.slots[slot]
			if rec.archetype != int32(a.index) || rec.row != int32(row) {
				t.Fatalf("archetype %d row %d holds slot %d whose record points at (%d, %d)",
					a.index, row, slot, rec.archetype, rec.row)
			}
		}
		rows += a.size
	}
	if rows != w.Len() {
		t.Fatalf("tables hold %d rows, world reports %d live entities", rows, w.Len())
	}
}

func readPosition(t *testing.T, c AccessibleComponent[Position], e Entity) (Position, int) {
	t.Helper()
	var (
		pos Position
		row = -1
	)
	ok := e.Access(func(r Row) {
		p, found := c.Get(r)
		if !found {
			t.Fatalf("%v has no Position", e)
		}
		pos, row = *p, r.Index()
	})
	if !ok {
		t.Fatalf("%v is not accessible", e)
	}
	return pos, row
}

func TestScenarioIterateSubset(t *testing.T) {
	w, tc := newTestWorld(t)

	e, err := w.NewEntityWith(func(r Row) {
		pos, _ := tc.position.Get(r)
		*pos = Position{X: 10, Y: 20}
		vel, _ := tc.velocity.Get(r)
		*vel = Velocity{X: 1, Y: 2, Z: 3}
	}, tc.position, tc.velocity)
	if err != nil {
		t.Fatalf("NewEntityWith: %v", err)
	}

	visits := 0
	err = w.ForEach(Factory.NewQuery(tc.position), func(r Row) {
		visits++
		pos, ok := tc.position.Get(r)
		if !ok {
			t.Fatalf("row has no Position")
		}
		if pos.X != 10 || pos.Y != 20 {
			t.Errorf("Position = %+v, want {X:10 Y:20}", *pos)
		}
		if r.Entity() != e {
			t.Errorf("Entity = %v, want %v", r.Entity(), e)
		}
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if visits != 1 {
		t.Errorf("visited %d rows, want 1", visits)
	}
}

func TestScenarioDestroyCompacts(t *testing.T) {
	w, tc := newTestWorld(t)

	entities, err := w.NewEntities(2, tc.position)
	if err != nil {
		t.Fatalf("NewEntities: %v", err)
	}
	tc.position.Set(entities[0], Position{X: 1, Y: 1})
	tc.position.Set(entities[1], Position{X: 7, Y: 9})

	if !w.Destroy(entities[0]) {
		t.Fatalf("Destroy(%v) = false, want true", entities[0])
	}

	pos, row := readPosition(t, tc.position, entities[1])
	if row != 0 {
		t.Errorf("survivor row = %d, want 0", row)
	}
	if pos != (Position{X: 7, Y: 9}) {
		t.Errorf("survivor Position = %+v, want {X:7 Y:9}", pos)
	}
	checkInvariants(t, w)
}

func TestScenarioAddComponentMatches(t *testing.T) {
	w, tc := newTestWorld(t)

	e, err := w.NewEntity(tc.position)
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}
	if err := e.AddComponent(tc.velocity); err != nil {
		t.Fatalf("AddComponent: %v", err)
	}

	tests := []struct {
		name  string
		query Query
	}{
		{"position and velocity", Factory.NewQuery(tc.position, tc.velocity)},
		{"velocity only", Factory.NewQuery(tc.velocity)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen []Entity
			if err := w.ForEach(tt.query, func(r Row) { seen = append(seen, r.Entity()) }); err != nil {
				t.Fatalf("ForEach: %v", err)
			}
			if len(seen) != 1 || seen[0] != e {
				t.Errorf("visited %v, want [%v]", seen, e)
			}
		})
	}
}

func TestEntityCreation(t *testing.T) {
	w, tc := newTestWorld(t)

	tests := []struct {
		name           string
		componentTypes []Component
		entityCount    int
	}{
		{"Empty entity", []Component{}, 1},
		{"Single component", []Component{tc.position}, 10},
		{"Multiple components", []Component{tc.position, tc.velocity}, 5},
		{"Large batch", []Component{tc.position, tc.velocity, tc.health}, 1000},
	}

	total := 0
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities, err := w.NewEntities(tt.entityCount, tt.componentTypes...)
			if err != nil {
				t.Fatalf("NewEntities() error = %v", err)
			}
			total += tt.entityCount
			if len(entities) != tt.entityCount {
				t.Errorf("Created %d entities, want %d", len(entities), tt.entityCount)
			}
			for i, entity := range entities {
				if !entity.Valid() {
					t.Errorf("Entity %d is invalid", i)
				}
			}
			if got := len(entities[0].Components()); got != len(tt.componentTypes) {
				t.Errorf("Entity has %d components, want %d", got, len(tt.componentTypes))
			}
			if !entities[0].Key().Equal(KeyOf(tt.componentTypes...)) {
				t.Errorf("Key = %v, want %v", entities[0].Key(), KeyOf(tt.componentTypes...))
			}
		})
	}
	if w.Len() != total {
		t.Errorf("Len() = %d, want %d", w.Len(), total)
	}
	checkInvariants(t, w)
}

func TestDefaultValues(t *testing.T) {
	w, tc := newTestWorld(t)

	e, err := w.NewEntity(tc.health, tc.position)
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}
	e.Access(func(r Row) {
		h, _ := tc.health.Get(r)
		if *h != (Health{Current: 100, Max: 100}) {
			t.Errorf("Health = %+v, want registered default", *h)
		}
		p, _ := tc.position.Get(r)
		if *p != (Position{}) {
			t.Errorf("Position = %+v, want zero value", *p)
		}
	})

	// Added components start from their default too.
	other, _ := w.NewEntity(tc.position)
	if err := other.AddComponent(tc.health); err != nil {
		t.Fatalf("AddComponent: %v", err)
	}
	other.Access(func(r Row) {
		h, _ := tc.health.Get(r)
		if h.Max != 100 {
			t.Errorf("added Health = %+v, want registered default", *h)
		}
	})
}

func TestHandleSafety(t *testing.T) {
	w, tc := newTestWorld(t)

	old, err := w.NewEntity(tc.position)
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}
	if !old.Destroy() {
		t.Fatalf("Destroy() = false, want true")
	}

	reused, err := w.NewEntity(tc.position, tc.velocity)
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}
	if reused.Slot() != old.Slot() {
		t.Fatalf("new entity took slot %d, want recycled slot %d", reused.Slot(), old.Slot())
	}
	if reused.Generation() == old.Generation() {
		t.Fatalf("recycled slot kept generation %d", old.Generation())
	}

	if old.Valid() {
		t.Errorf("destroyed handle reports Valid")
	}
	if old.Access(func(Row) { t.Errorf("access callback ran for a destroyed handle") }) {
		t.Errorf("Access() on destroyed handle = true, want false")
	}
	if old.Destroy() {
		t.Errorf("Destroy() on destroyed handle = true, want false")
	}
	var stale StaleEntityError
	if err := old.AddComponent(tc.health); !errors.As(err, &stale) {
		t.Errorf("AddComponent() on destroyed handle error = %v, want StaleEntityError", err)
	}
	if err := old.RemoveComponent(tc.position); !errors.As(err, &stale) {
		t.Errorf("RemoveComponent() on destroyed handle error = %v, want StaleEntityError", err)
	}
	if !reused.Valid() || !reused.Key().Equal(KeyOf(tc.position, tc.velocity)) {
		t.Errorf("stale handle operations disturbed the slot's new owner")
	}

	var zero Entity
	if zero.Valid() || zero.Access(func(Row) {}) || zero.Destroy() {
		t.Errorf("zero Entity must never be valid")
	}

	if n := w.DestroyEntities(old, reused, reused, zero); n != 1 {
		t.Errorf("DestroyEntities() = %d, want 1", n)
	}
	if w.Len() != 0 {
		t.Errorf("Len() = %d, want 0", w.Len())
	}
}

func TestComponentAddRemove(t *testing.T) {
	w, tc := newTestWorld(t)

	tests := []struct {
		name      string
		initial   []Component
		add       []Component
		remove    []Component
		wantAdd   error
		wantRem   error
		finalComp []Component
	}{
		{
			name:      "Add then remove",
			initial:   []Component{tc.position},
			add:       []Component{tc.velocity},
			remove:    []Component{tc.velocity},
			finalComp: []Component{tc.position},
		},
		{
			name:      "Add existing",
			initial:   []Component{tc.position},
			add:       []Component{tc.position},
			wantAdd:   ComponentExistsError{},
			finalComp: []Component{tc.position},
		},
		{
			name:      "Remove missing",
			initial:   []Component{tc.position},
			remove:    []Component{tc.health},
			wantRem:   ComponentNotFoundError{},
			finalComp: []Component{tc.position},
		},
		{
			name:      "Add several",
			initial:   []Component{},
			add:       []Component{tc.health, tc.position},
			finalComp: []Component{tc.position, tc.health},
		},
		{
			name:      "Remove all",
			initial:   []Component{tc.position, tc.velocity},
			remove:    []Component{tc.velocity, tc.position},
			finalComp: []Component{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := w.NewEntity(tt.initial...)
			if err != nil {
				t.Fatalf("NewEntity: %v", err)
			}
			if len(tt.add) > 0 {
				err := e.AddComponent(tt.add...)
				if !sameErrorType(err, tt.wantAdd) {
					t.Errorf("AddComponent() error = %v, want %T", err, tt.wantAdd)
				}
			}
			if len(tt.remove) > 0 {
				err := e.RemoveComponent(tt.remove...)
				if !sameErrorType(err, tt.wantRem) {
					t.Errorf("RemoveComponent() error = %v, want %T", err, tt.wantRem)
				}
			}
			if !e.Key().Equal(KeyOf(tt.finalComp...)) {
				t.Errorf("Key = %v, want %v", e.Key(), KeyOf(tt.finalComp...))
			}
			checkInvariants(t, w)
		})
	}
}

func sameErrorType(got, want error) bool {
	switch want.(type) {
	case nil:
		return got == nil
	case ComponentExistsError:
		var target ComponentExistsError
		return errors.As(got, &target)
	case ComponentNotFoundError:
		var target ComponentNotFoundError
		return errors.As(got, &target)
	}
	return false
}

func TestStructuralRoundTrip(t *testing.T) {
	w, tc := newTestWorld(t)

	// Neighbours in both tables make sure the moves swap rows around.
	w.NewEntities(3, tc.position, tc.health)
	w.NewEntities(2, tc.position, tc.health, tc.velocity)

	e, _ := w.NewEntity(tc.position, tc.health)
	tc.position.Set(e, Position{X: 3, Y: 4})
	tc.health.Set(e, Health{Current: 7, Max: 9})
	w.NewEntities(3, tc.position, tc.health)
	before := e.Key()

	if err := e.AddComponent(tc.velocity); err != nil {
		t.Fatalf("AddComponent: %v", err)
	}
	checkInvariants(t, w)
	if err := e.RemoveComponent(tc.velocity); err != nil {
		t.Fatalf("RemoveComponent: %v", err)
	}
	checkInvariants(t, w)

	if !e.Key().Equal(before) {
		t.Errorf("Key = %v after round trip, want %v", e.Key(), before)
	}
	e.Access(func(r Row) {
		p, _ := tc.position.Get(r)
		h, _ := tc.health.Get(r)
		if *p != (Position{X: 3, Y: 4}) || *h != (Health{Current: 7, Max: 9}) {
			t.Errorf("values after round trip = %+v %+v", *p, *h)
		}
	})
}

func TestAddComponentWithValue(t *testing.T) {
	w, tc := newTestWorld(t)
	e, _ := w.NewEntity(tc.position)

	if err := e.AddComponentWithValue(tc.velocity, Velocity{X: 4, Y: 5, Z: 6}); err != nil {
		t.Fatalf("AddComponentWithValue(value): %v", err)
	}
	if err := e.AddComponentWithValue(tc.health, &Health{Current: 1, Max: 2}); err != nil {
		t.Fatalf("AddComponentWithValue(pointer): %v", err)
	}
	e.Access(func(r Row) {
		v, _ := tc.velocity.Get(r)
		h, _ := tc.health.Get(r)
		if *v != (Velocity{X: 4, Y: 5, Z: 6}) || *h != (Health{Current: 1, Max: 2}) {
			t.Errorf("stored values = %+v %+v", *v, *h)
		}
	})

	other, _ := w.NewEntity()
	var mismatch ComponentTypeMismatchError
	if err := other.AddComponentWithValue(tc.position, Health{}); !errors.As(err, &mismatch) {
		t.Errorf("error = %v, want ComponentTypeMismatchError", err)
	}
	if !other.Key().IsEmpty() {
		t.Errorf("mismatched value still added a component: %v", other.Key())
	}
}

func TestComponentByName(t *testing.T) {
	w, tc := newTestWorld(t)
	e, _ := w.NewEntity()

	c, err := e.AddComponentByName("Position")
	if err != nil {
		t.Fatalf("AddComponentByName: %v", err)
	}
	if c.ID() != tc.position.ID() {
		t.Errorf("resolved id %d, want %d", c.ID(), tc.position.ID())
	}

	value, ok := e.ComponentByName("Position")
	if !ok {
		t.Fatalf("ComponentByName() found nothing")
	}
	value.(*Position).X = 42
	if pos, _ := readPosition(t, tc.position, e); pos.X != 42 {
		t.Errorf("write through named pointer lost: %+v", pos)
	}

	var unknown UnknownComponentError
	if _, err := e.AddComponentByName("Mana"); !errors.As(err, &unknown) {
		t.Errorf("error = %v, want UnknownComponentError", err)
	}
	if _, ok := e.ComponentByName("Velocity"); ok {
		t.Errorf("ComponentByName() found a component the entity lacks")
	}
	if got := e.ComponentsAsString(); got != "[Position]" {
		t.Errorf("ComponentsAsString() = %q, want [Position]", got)
	}
}

func TestForeignComponent(t *testing.T) {
	w, tc := newTestWorld(t)
	_, other := newTestWorld(t)

	var foreign ForeignComponentError
	if _, err := w.NewEntity(other.position); !errors.As(err, &foreign) {
		t.Errorf("NewEntity() error = %v, want ForeignComponentError", err)
	}
	if w.Len() != 0 {
		t.Errorf("Len() = %d, want 0", w.Len())
	}

	e, _ := w.NewEntity(tc.position)
	calls := []struct {
		name string
		err  error
	}{
		{"NewEntities", func() error { _, err := w.NewEntities(2, other.velocity); return err }()},
		{"NewOrExistingArchetype", func() error { _, err := w.NewOrExistingArchetype(other.health); return err }()},
		{"AddComponent", e.AddComponent(other.velocity)},
		{"AddComponentWithValue", e.AddComponentWithValue(other.velocity, Velocity{})},
		{"RemoveComponent", e.RemoveComponent(other.position)},
	}
	for _, call := range calls {
		if !errors.As(call.err, &foreign) {
			t.Errorf("%s() error = %v, want ForeignComponentError", call.name, call.err)
		}
	}
	if !e.Key().Equal(KeyOf(tc.position)) || w.Len() != 1 {
		t.Errorf("rejected calls changed the world: key %v len %d", e.Key(), w.Len())
	}
}

func TestBorrowInvalidation(t *testing.T) {
	w, tc := newTestWorld(t)
	e, _ := w.NewEntity(tc.position)

	var row Row
	e.Access(func(r Row) { row = r })
	ref := tc.position.Borrow(e)
	if _, ok := ref.Get(); !ok {
		t.Fatalf("fresh Ref is not usable")
	}

	// Growing the table relocates the column.
	w.NewEntities(4, tc.position)

	if row.Valid() {
		t.Errorf("Row still valid after a structural change")
	}
	if _, ok := tc.position.Get(row); ok {
		t.Errorf("Get() through an invalidated Row succeeded")
	}
	if _, ok := ref.Get(); ok {
		t.Errorf("Ref.Get() succeeded after a structural change")
	}
	if !ref.Refresh() {
		t.Fatalf("Refresh() = false for a live entity")
	}
	ptr, ok := ref.Get()
	if !ok {
		t.Fatalf("Ref.Get() failed after Refresh")
	}
	ptr.X = 5
	if pos, _ := readPosition(t, tc.position, e); pos.X != 5 {
		t.Errorf("write through refreshed Ref lost: %+v", pos)
	}

	e.Destroy()
	if ref.Refresh() {
		t.Errorf("Refresh() = true for a destroyed entity")
	}
}

func TestCapacityLimits(t *testing.T) {
	t.Run("entity slots", func(t *testing.T) {
		w, tc := newTestWorld(t, func(c *Config) { c.MaxEntities = 3 })
		if _, err := w.NewEntities(3, tc.position); err != nil {
			t.Fatalf("NewEntities(3): %v", err)
		}
		_, err := w.NewEntity(tc.position)
		var capErr CapacityError
		if !errors.As(err, &capErr) {
			t.Fatalf("error = %v, want CapacityError", err)
		}
		checkInvariants(t, w)
	})

	t.Run("batch rolls back", func(t *testing.T) {
		w, tc := newTestWorld(t, func(c *Config) { c.MaxEntities = 3 })
		entities, err := w.NewEntities(5, tc.position)
		var capErr CapacityError
		if !errors.As(err, &capErr) {
			t.Fatalf("error = %v, want CapacityError", err)
		}
		if entities != nil || w.Len() != 0 {
			t.Errorf("failed batch left %d entities behind", w.Len())
		}
		if _, err := w.NewEntities(3, tc.position); err != nil {
			t.Errorf("slots not reusable after rollback: %v", err)
		}
		checkInvariants(t, w)
	})

	t.Run("table rows", func(t *testing.T) {
		w, tc := newTestWorld(t, func(c *Config) { c.MaxRowsPerTable = 3 })
		if _, err := w.NewEntities(3, tc.position); err != nil {
			t.Fatalf("NewEntities(3): %v", err)
		}
		_, err := w.NewEntity(tc.position)
		var capErr CapacityError
		if !errors.As(err, &capErr) {
			t.Fatalf("error = %v, want CapacityError", err)
		}
		if w.Len() != 3 {
			t.Errorf("Len() = %d, want 3", w.Len())
		}

		// A move into the full table leaves the entity where it was.
		e, _ := w.NewEntity()
		if err := e.AddComponent(tc.position); !errors.As(err, &capErr) {
			t.Fatalf("AddComponent() error = %v, want CapacityError", err)
		}
		if !e.Valid() || !e.Key().IsEmpty() {
			t.Errorf("failed move changed key to %v", e.Key())
		}
		checkInvariants(t, w)
	})
}

func TestLockedWorld(t *testing.T) {
	w, tc := newTestWorld(t)
	e, _ := w.NewEntity(tc.position)

	w.Lock()
	w.Lock()
	if !w.Locked() {
		t.Fatalf("Locked() = false after Lock")
	}

	var locked LockedStorageError
	if _, err := w.NewEntity(tc.position); !errors.As(err, &locked) {
		t.Errorf("NewEntity() error = %v, want LockedStorageError", err)
	}
	if err := e.AddComponent(tc.velocity); !errors.As(err, &locked) {
		t.Errorf("AddComponent() error = %v, want LockedStorageError", err)
	}
	if err := w.EnqueueNewEntities(2, tc.position, tc.health); err != nil {
		t.Errorf("EnqueueNewEntities: %v", err)
	}
	if err := e.EnqueueAddComponent(tc.velocity); err != nil {
		t.Errorf("EnqueueAddComponent: %v", err)
	}
	if !e.Destroy() {
		t.Errorf("Destroy() while locked = false, want true (deferred)")
	}
	if e.Destroy() {
		t.Errorf("second Destroy() of a pending entity = true, want false")
	}
	if e.Valid() {
		t.Errorf("entity pending destruction still reports Valid")
	}
	if w.Len() != 1 {
		t.Errorf("locked world applied changes early")
	}

	if err := w.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if w.Len() != 1 {
		t.Errorf("inner Unlock applied queued operations")
	}
	if err := w.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	if w.Locked() {
		t.Errorf("Locked() = true after matching Unlocks")
	}
	if e.Valid() {
		t.Errorf("deferred destroy was not applied")
	}
	if got := Factory.NewCursor(Factory.NewQuery(tc.position, tc.health), w).TotalMatched(); got != 2 {
		t.Errorf("queued creations matched %d, want 2", got)
	}
	checkInvariants(t, w)
}

func TestNewEntityWithQueuedOperations(t *testing.T) {
	w, tc := newTestWorld(t)

	e, err := w.NewEntityWith(func(r Row) {
		self := r.Entity()
		self.EnqueueAddComponent(tc.velocity)
		self.EnqueueAddComponent(tc.velocity)
	}, tc.position)
	var exists ComponentExistsError
	if !errors.As(err, &exists) {
		t.Errorf("NewEntityWith() error = %v, want ComponentExistsError from the queue", err)
	}
	if !e.Valid() || !e.Key().Equal(KeyOf(tc.position, tc.velocity)) {
		t.Errorf("NewEntityWith() returned %v with key %v", e, e.Key())
	}

	e, err = w.NewEntityWith(func(r Row) {
		r.Entity().Destroy()
	}, tc.position)
	var stale StaleEntityError
	if !errors.As(err, &stale) {
		t.Errorf("NewEntityWith() of a destroyed entity error = %v, want StaleEntityError", err)
	}
	if e.Valid() || w.Len() != 1 {
		t.Errorf("destroyed entity survived: valid=%v len=%d", e.Valid(), w.Len())
	}
	checkInvariants(t, w)
}

func TestNegativeBatch(t *testing.T) {
	w, tc := newTestWorld(t)

	var batch BatchOperationError
	if _, err := w.NewEntities(-1, tc.position); !errors.As(err, &batch) {
		t.Errorf("NewEntities(-1) error = %v, want BatchOperationError", err)
	}
	if entities, err := w.NewEntities(0, tc.position); err != nil || len(entities) != 0 {
		t.Errorf("NewEntities(0) = %v, %v", entities, err)
	}

	w.Lock()
	if err := w.EnqueueNewEntities(-3, tc.position); !errors.As(err, &batch) {
		t.Errorf("EnqueueNewEntities(-3) error = %v, want BatchOperationError", err)
	}
	if err := w.Unlock(); err != nil {
		t.Errorf("Unlock: %v", err)
	}
	if w.Len() != 0 {
		t.Errorf("Len() = %d, want 0", w.Len())
	}
}

func TestQueuedFailuresReported(t *testing.T) {
	w, tc := newTestWorld(t)
	e, _ := w.NewEntity(tc.position)

	w.Lock()
	e.EnqueueAddComponent(tc.velocity)
	e.EnqueueAddComponent(tc.velocity)
	err := w.Unlock()

	var exists ComponentExistsError
	if !errors.As(err, &exists) {
		t.Errorf("Unlock() error = %v, want ComponentExistsError", err)
	}
	if !e.Key().Equal(KeyOf(tc.position, tc.velocity)) {
		t.Errorf("first queued add was not applied: %v", e.Key())
	}
}

func TestQueuedChangesSkippedForDestroyed(t *testing.T) {
	w, tc := newTestWorld(t)
	e, _ := w.NewEntity(tc.position)

	w.Lock()
	e.EnqueueAddComponent(tc.velocity)
	e.Destroy()
	if err := w.Unlock(); err != nil {
		t.Errorf("Unlock: %v", err)
	}
	if e.Valid() || w.Len() != 0 {
		t.Errorf("entity survived its queued destroy")
	}
	if n := Factory.NewCursor(Factory.NewQuery(tc.velocity), w).TotalMatched(); n != 0 {
		t.Errorf("queued add ran for a destroyed entity")
	}
}

// TestRandomOperations drives the world through a long random mix of
// structural changes, checking it against a plain map model.
func TestRandomOperations(t *testing.T) {
	w, tc := newTestWorld(t)
	comps := tc.all()
	rng := rand.New(rand.NewPCG(7, 11))

	model := map[Entity]Key{}
	var handles, dead []Entity
	tag := 0.0

	randomSubset := func() []Component {
		var out []Component
		for _, c := range comps {
			if rng.IntN(2) == 0 {
				out = append(out, c)
			}
		}
		return out
	}

	for step := 0; step < 3000; step++ {
		switch op := rng.IntN(10); {
		case op < 4 || len(handles) == 0:
			subset := randomSubset()
			e, err := w.NewEntity(append(subset, tc.position)...)
			if err != nil {
				t.Fatalf("step %d: NewEntity: %v", step, err)
			}
			tag++
			tc.position.Set(e, Position{X: tag})
			model[e] = e.Key()
			handles = append(handles, e)
		case op < 6:
			i := rng.IntN(len(handles))
			e := handles[i]
			if !w.Destroy(e) {
				t.Fatalf("step %d: Destroy(%v) = false", step, e)
			}
			delete(model, e)
			handles = append(handles[:i], handles[i+1:]...)
			dead = append(dead, e)
		case op < 8:
			e := handles[rng.IntN(len(handles))]
			c := comps[1+rng.IntN(len(comps)-1)]
			err := e.AddComponent(c)
			if model[e].Has(c.ID()) != (err != nil) {
				t.Fatalf("step %d: AddComponent(%s) error = %v with key %v", step, c.Name(), err, model[e])
			}
			model[e] = model[e].Union(KeyOf(c))
		default:
			e := handles[rng.IntN(len(handles))]
			c := comps[1+rng.IntN(len(comps)-1)]
			err := e.RemoveComponent(c)
			if model[e].Has(c.ID()) != (err == nil) {
				t.Fatalf("step %d: RemoveComponent(%s) error = %v with key %v", step, c.Name(), err, model[e])
			}
			model[e] = model[e].Difference(KeyOf(c))
		}
		if step%100 == 0 {
			checkInvariants(t, w)
		}
	}
	checkInvariants(t, w)

	if w.Len() != len(model) {
		t.Fatalf("Len() = %d, model has %d", w.Len(), len(model))
	}
	for e, key := range model {
		if !e.Key().Equal(key) {
			t.Errorf("%v key = %v, model %v", e, e.Key(), key)
		}
	}
	for _, e := range dead {
		if e.Valid() {
			t.Errorf("destroyed %v became valid again", e)
		}
	}

	// Every component subset visits exactly the entities whose key holds it.
	for mask := 0; mask < 1<<len(comps); mask++ {
		var req []Component
		for i, c := range comps {
			if mask&(1<<i) != 0 {
				req = append(req, c)
			}
		}
		q := Factory.NewQuery(req...)
		want := map[Entity]bool{}
		for e, key := range model {
			if key.Contains(q.Key()) {
				want[e] = true
			}
		}
		got := map[Entity]bool{}
		w.ForEach(q, func(r Row) {
			e := r.Entity()
			if got[e] {
				t.Errorf("query %v visited %v twice", q.Key(), e)
			}
			got[e] = true
		})
		if len(got) != len(want) {
			t.Errorf("query %v visited %d entities, want %d", q.Key(), len(got), len(want))
		}
		for e := range want {
			if !got[e] {
				t.Errorf("query %v missed %v", q.Key(), e)
			}
		}
	}
}
