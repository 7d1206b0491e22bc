package silo

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

type operation struct {
	typ    operationType
	amount int
	comps  []Component
	entity Entity
}

type operationType int

const (
	opCreate operationType = iota
	opDestroy
	opAddComponent
	opRemoveComponent
)

// opQueue holds structural operations requested while the world was locked.
// They apply in three passes: creates, component changes, destroys.
type opQueue struct {
	createOps      []operation
	componentOps   []operation
	destroyOps     []operation
	pendingDestroy map[Entity]struct{}
}

func newOpQueue() opQueue {
	return opQueue{
		pendingDestroy: make(map[Entity]struct{}),
	}
}

func (q *opQueue) enqueue(op operation) {
	switch op.typ {
	case opCreate:
		q.createOps = append(q.createOps, op)
	case opDestroy:
		q.enqueueDestroy(op.entity)
	case opAddComponent, opRemoveComponent:
		q.componentOps = append(q.componentOps, op)
	}
}

// enqueueDestroy reports false when e is already queued.
func (q *opQueue) enqueueDestroy(e Entity) bool {
	if _, exists := q.pendingDestroy[e]; exists {
		return false
	}
	q.pendingDestroy[e] = struct{}{}
	q.destroyOps = append(q.destroyOps, operation{typ: opDestroy, entity: e})
	return true
}

func (q *opQueue) pending(e Entity) bool {
	if len(q.pendingDestroy) == 0 {
		return false
	}
	_, ok := q.pendingDestroy[e]
	return ok
}

func (q *opQueue) empty() bool {
	return len(q.createOps) == 0 && len(q.componentOps) == 0 && len(q.destroyOps) == 0
}

func (w *World) processOperationQueue() error {
	if w.opQueue.empty() {
		return nil
	}
	// Detach the batch so nothing applied below can observe or extend it.
	q := w.opQueue
	w.opQueue = newOpQueue()

	var errs []error
	for _, op := range q.createOps {
		if _, err := w.NewEntities(op.amount, op.comps...); err != nil {
			errs = append(errs, fmt.Errorf("queued creation of %d entities: %w", op.amount, err))
		}
	}

	for _, op := range q.componentOps {
		if q.pending(op.entity) {
			continue
		}
		var err error
		switch op.typ {
		case opAddComponent:
			err = w.AddComponent(op.entity, op.comps...)
		case opRemoveComponent:
			err = w.RemoveComponent(op.entity, op.comps...)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("queued component change on %v: %w", op.entity, err))
		}
	}

	for _, op := range q.destroyOps {
		w.destroyNow(op.entity)
	}

	w.log.Debug("operation queue applied",
		zap.Int("creates", len(q.createOps)),
		zap.Int("component_ops", len(q.componentOps)),
		zap.Int("destroys", len(q.destroyOps)),
	)

	err := errors.Join(errs...)
	if err != nil {
		w.log.Warn("queued operations failed", zap.Error(err))
	}
	return err
}
