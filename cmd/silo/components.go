package main

import "github.com/TheBitDrifter/silo"

type Position struct {
	X, Y float64
}

type Velocity struct {
	X, Y float64
}

type Health struct {
	Current, Max int
}

type Name struct {
	Value string
}

type components struct {
	position silo.AccessibleComponent[Position]
	velocity silo.AccessibleComponent[Velocity]
	health   silo.AccessibleComponent[Health]
	name     silo.AccessibleComponent[Name]
}

// registerComponents makes the demo component types loadable by name.
func registerComponents(reg *silo.Registry) (components, error) {
	var (
		c   components
		err error
	)
	if c.position, err = silo.RegisterComponentIn[Position](reg); err != nil {
		return c, err
	}
	if c.velocity, err = silo.RegisterComponentIn[Velocity](reg); err != nil {
		return c, err
	}
	if c.health, err = silo.RegisterComponentIn[Health](reg, silo.WithDefault(Health{Current: 100, Max: 100})); err != nil {
		return c, err
	}
	if c.name, err = silo.RegisterComponentIn[Name](reg); err != nil {
		return c, err
	}
	return c, nil
}
