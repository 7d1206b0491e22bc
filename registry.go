package silo

import (
	"reflect"
	"sync"
)

// Components is the process-wide registry used by worlds that do not name one.
var Components = NewRegistry()

// Registry assigns component types their ids. It only grows: ids are never
// freed or reassigned. Lookups may run concurrently; registrations serialize.
type Registry struct {
	mu     sync.RWMutex
	infos  []*componentInfo
	byType map[reflect.Type]ComponentID
	names  *SimpleCache[ComponentID]
}

func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[reflect.Type]ComponentID, MaxComponents),
		names:  FactoryNewCache[ComponentID](MaxComponents).(*SimpleCache[ComponentID]),
	}
}

// RegisterComponent registers T in the default registry. See RegisterComponentIn.
func RegisterComponent[T any](opts ...ComponentOption[T]) (AccessibleComponent[T], error) {
	return RegisterComponentIn[T](Components, opts...)
}

// RegisterComponentIn registers T in reg and returns its accessor. Registering
// the same type again returns the original id; options of later calls are
// ignored. The name defaults to the Go type name.
func RegisterComponentIn[T any](reg *Registry, opts ...ComponentOption[T]) (AccessibleComponent[T], error) {
	var o componentOptions[T]
	for _, opt := range opts {
		opt(&o)
	}
	typ := reflect.TypeFor[T]()
	name := o.name
	if name == "" {
		name = typeName(typ)
	}
	defaultVal := o.defaultVal
	id, err := reg.register(typ, name, func(id ComponentID) *componentInfo {
		return &componentInfo{
			id:   id,
			name: name,
			typ:  typ,
			size: typ.Size(),
			newColumn: func() column {
				return newTypedColumn[T](defaultVal)
			},
		}
	})
	if err != nil {
		return AccessibleComponent[T]{}, err
	}
	return AccessibleComponent[T]{id: id, name: reg.info(id).name, reg: reg}, nil
}

func (r *Registry) register(typ reflect.Type, name string, build func(ComponentID) *componentInfo) (ComponentID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byType[typ]; ok {
		return id, nil
	}
	if idx, ok := r.names.GetIndex(name); ok {
		return 0, DuplicateComponentError{Name: name, Existing: r.infos[*r.names.GetItem(idx)].typ}
	}
	if len(r.infos) >= MaxComponents {
		return 0, ComponentLimitError{Name: name, Limit: MaxComponents}
	}

	id := ComponentID(len(r.infos))
	if _, err := r.names.Register(name, id); err != nil {
		return 0, ComponentLimitError{Name: name, Limit: MaxComponents}
	}
	r.infos = append(r.infos, build(id))
	r.byType[typ] = id
	return id, nil
}

// Len returns the number of registered component types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.infos)
}

// Lookup resolves a component by its registered name.
func (r *Registry) Lookup(name string) (Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.names.GetIndex(name)
	if !ok {
		return nil, false
	}
	id := *r.names.GetItem(idx)
	return componentHandle{id: id, name: r.infos[id].name, reg: r}, true
}

// Component returns the component registered under id.
func (r *Registry) Component(id ComponentID) (Component, bool) {
	info := r.info(id)
	if info == nil {
		return nil, false
	}
	return componentHandle{id: id, name: info.name, reg: r}, true
}

// Size returns the in-memory size of one value of the component.
func (r *Registry) Size(id ComponentID) uintptr {
	if info := r.info(id); info != nil {
		return info.size
	}
	return 0
}

// Type returns the Go type registered under id.
func (r *Registry) Type(id ComponentID) reflect.Type {
	if info := r.info(id); info != nil {
		return info.typ
	}
	return nil
}

func (r *Registry) info(id ComponentID) *componentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.infos) {
		return nil
	}
	return r.infos[id]
}

func typeName(typ reflect.Type) string {
	if name := typ.Name(); name != "" {
		return name
	}
	return typ.String()
}
