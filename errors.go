package silo

import (
	"fmt"
	"reflect"
)

type LockedStorageError struct{}

func (e LockedStorageError) Error() string {
	return fmt.Sprintf("world is currently locked")
}

type ComponentExistsError struct {
	Component Component
}

func (e ComponentExistsError) Error() string {
	return fmt.Sprintf("component already exists on entity: %s", componentName(e.Component))
}

type ComponentNotFoundError struct {
	Component Component
}

func (e ComponentNotFoundError) Error() string {
	return fmt.Sprintf("component does not exist on entity: %s", componentName(e.Component))
}

// StaleEntityError is returned by mutations on a handle whose entity was destroyed.
type StaleEntityError struct {
	Entity Entity
}

func (e StaleEntityError) Error() string {
	return fmt.Sprintf("entity %v is no longer alive", e.Entity)
}

// CapacityError reports that an entity slot table or an archetype table could
// not grow. The store is left as it was before the failing operation.
type CapacityError struct {
	Resource string
	Limit    int
	Cause    error
}

func (e CapacityError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s capacity exhausted at %d: %v", e.Resource, e.Limit, e.Cause)
	}
	return fmt.Sprintf("%s capacity exhausted at %d", e.Resource, e.Limit)
}

func (e CapacityError) Unwrap() error {
	return e.Cause
}

type ComponentLimitError struct {
	Name  string
	Limit int
}

func (e ComponentLimitError) Error() string {
	return fmt.Sprintf("cannot register component %q: registry holds the maximum of %d types", e.Name, e.Limit)
}

type DuplicateComponentError struct {
	Name     string
	Existing reflect.Type
}

func (e DuplicateComponentError) Error() string {
	return fmt.Sprintf("component name %q is already registered for %v", e.Name, e.Existing)
}

type UnknownComponentError struct {
	Name string
}

func (e UnknownComponentError) Error() string {
	return fmt.Sprintf("no component registered as %q", e.Name)
}

// ForeignComponentError is returned when a component from another registry is
// used with a world.
type ForeignComponentError struct {
	Component Component
}

func (e ForeignComponentError) Error() string {
	return fmt.Sprintf("component %s belongs to a different registry", componentName(e.Component))
}

type ComponentTypeMismatchError struct {
	Component Component
	Want      reflect.Type
	Got       reflect.Type
}

func (e ComponentTypeMismatchError) Error() string {
	return fmt.Sprintf("component %s holds %v, got %v", componentName(e.Component), e.Want, e.Got)
}

type CacheCapacityError struct {
	Capacity int
}

func (e CacheCapacityError) Error() string {
	return fmt.Sprintf("cache is full (max %d items)", e.Capacity)
}

func componentName(c Component) string {
	if c == nil {
		return "<nil>"
	}
	return c.Name()
}

// BatchOperationError is returned when a batch is asked for a negative number of entities.
type BatchOperationError struct {
	Count int
}

func (e BatchOperationError) Error() string {
	return fmt.Sprintf("batch size must not be negative, got %d", e.Count)
}
