package silo

import (
	"errors"
	"testing"
)

// take reserves a slot and marks it owned, as spawning does.
func take(t *testing.T, r *records) uint32 {
	t.Helper()
	slot, err := r.reserve()
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	r.slots[slot].archetype = 0
	return slot
}

func TestRecordsReserve(t *testing.T) {
	r := newRecords(0, 0)

	for want := uint32(0); want < 5; want++ {
		if got := take(t, &r); got != want {
			t.Fatalf("reserve() = %d, want %d", got, want)
		}
	}
	if r.capacity() != 8 || r.live() != 5 {
		t.Errorf("capacity %d live %d, want 8 and 5", r.capacity(), r.live())
	}

	r.release(3)
	r.release(1)
	if r.live() != 3 {
		t.Errorf("live() = %d, want 3", r.live())
	}

	// Never used slots come before recycled ones.
	for want := uint32(5); want < 8; want++ {
		if got := take(t, &r); got != want {
			t.Fatalf("reserve() = %d, want %d", got, want)
		}
	}
	if got := take(t, &r); got != 1 {
		t.Errorf("reserve() = %d, want lowest free slot 1", got)
	}
	if got := take(t, &r); got != 3 {
		t.Errorf("reserve() = %d, want 3", got)
	}
	if got := take(t, &r); got != 8 || r.capacity() != 16 {
		t.Errorf("reserve() = %d with capacity %d, want 8 and 16", got, r.capacity())
	}
}

func TestRecordsReleaseTrailing(t *testing.T) {
	r := newRecords(8, 0)
	for range 6 {
		take(t, &r)
	}

	r.release(2)
	r.release(3)
	r.release(4)
	if r.last != 6 {
		t.Fatalf("last = %d, want 6", r.last)
	}

	// Freeing the highest slot collapses the free run below it.
	r.release(5)
	if r.last != 2 {
		t.Errorf("last = %d, want 2", r.last)
	}
	if r.free.Count() != 0 {
		t.Errorf("%d slots still marked free", r.free.Count())
	}
	if r.live() != 2 {
		t.Errorf("live() = %d, want 2", r.live())
	}
	if got := take(t, &r); got != 2 {
		t.Errorf("reserve() = %d, want 2", got)
	}
}

func TestRecordsGenerations(t *testing.T) {
	r := newRecords(0, 0)
	slot := take(t, &r)
	take(t, &r)

	if _, ok := r.lookup(slot, 0); !ok {
		t.Fatalf("lookup of a live slot failed")
	}
	r.release(slot)
	if _, ok := r.lookup(slot, 0); ok {
		t.Errorf("lookup succeeded after release")
	}

	again := take(t, &r)
	if again != slot {
		t.Fatalf("reserve() = %d, want reused slot %d", again, slot)
	}
	if gen := r.slots[slot].generation; gen != 1 {
		t.Errorf("generation = %d, want 1", gen)
	}
	if _, ok := r.lookup(slot, 0); ok {
		t.Errorf("old handle resolves to the reused slot")
	}
	if _, ok := r.lookup(slot, 1); !ok {
		t.Errorf("new handle does not resolve")
	}
	if _, ok := r.lookup(99, 0); ok {
		t.Errorf("lookup past the table succeeded")
	}
}

func TestRecordsLimit(t *testing.T) {
	r := newRecords(0, 3)
	for range 3 {
		take(t, &r)
	}
	if r.capacity() != 3 {
		t.Errorf("capacity() = %d, want growth clamped to 3", r.capacity())
	}

	_, err := r.reserve()
	var capErr CapacityError
	if !errors.As(err, &capErr) || capErr.Limit != 3 {
		t.Fatalf("reserve() past the limit error = %v", err)
	}

	r.release(1)
	if got := take(t, &r); got != 1 {
		t.Errorf("reserve() = %d after release at the limit, want 1", got)
	}
}
