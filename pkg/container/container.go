// Package container wires the process graph by constructor injection.
//
// Every provider is a function returning T or (T, error). Its parameters are
// resolved from the container, and each provided type is built at most once.
// Interface parameters are satisfied by the single provider whose type
// implements them.
package container

import (
	"fmt"
	"reflect"
	"sync"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type Container struct {
	mu        sync.Mutex
	providers map[reflect.Type]reflect.Value
	instances map[reflect.Type]reflect.Value
}

func New() *Container {
	return &Container{
		providers: make(map[reflect.Type]reflect.Value),
		instances: make(map[reflect.Type]reflect.Value),
	}
}

// Provide registers constructor for the type of its first return value.
func (c *Container) Provide(constructor any) error {
	v := reflect.ValueOf(constructor)
	if v.Kind() != reflect.Func {
		return fmt.Errorf("container: constructor must be a function, got %T", constructor)
	}
	ft := v.Type()
	switch {
	case ft.NumOut() == 1:
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
	default:
		return fmt.Errorf("container: constructor %v must return T or (T, error)", ft)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := ft.Out(0)
	if _, exists := c.providers[out]; exists {
		return fmt.Errorf("container: provider already registered for %v", out)
	}
	c.providers[out] = v
	return nil
}

// Supply registers an already built value.
func (c *Container) Supply(value any) error {
	v := reflect.ValueOf(value)
	if !v.IsValid() {
		return fmt.Errorf("container: cannot supply nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.providers[v.Type()]; exists {
		return fmt.Errorf("container: provider already registered for %v", v.Type())
	}
	c.providers[v.Type()] = reflect.ValueOf(func() any { return value })
	c.instances[v.Type()] = v
	return nil
}

// Resolve stores the instance of *target's type into target.
// Example: var db *database.DB; c.Resolve(&db)
func (c *Container) Resolve(target any) error {
	ptr := reflect.ValueOf(target)
	if ptr.Kind() != reflect.Ptr || ptr.IsNil() {
		return fmt.Errorf("container: target must be a non-nil pointer")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	val, err := c.build(ptr.Elem().Type(), nil)
	if err != nil {
		return err
	}
	ptr.Elem().Set(val)
	return nil
}

// Invoke calls fn with its parameters resolved from the container. If fn's
// last result is an error, it is returned.
func (c *Container) Invoke(fn any) error {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return fmt.Errorf("container: Invoke requires a function, got %T", fn)
	}
	c.mu.Lock()
	args, err := c.args(v.Type(), nil)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	outs := v.Call(args)
	if n := len(outs); n > 0 && outs[n-1].Type() == errorType && !outs[n-1].IsNil() {
		return outs[n-1].Interface().(error)
	}
	return nil
}

func (c *Container) args(ft reflect.Type, path []reflect.Type) ([]reflect.Value, error) {
	args := make([]reflect.Value, ft.NumIn())
	for i := range args {
		v, err := c.build(ft.In(i), path)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// build must be called with c.mu held.
func (c *Container) build(t reflect.Type, path []reflect.Type) (reflect.Value, error) {
	key, err := c.providerFor(t)
	if err != nil {
		return reflect.Value{}, err
	}
	if v, ok := c.instances[key]; ok {
		return v, nil
	}
	for _, p := range path {
		if p == key {
			return reflect.Value{}, fmt.Errorf("container: dependency cycle through %v", key)
		}
	}

	fn := c.providers[key]
	args, err := c.args(fn.Type(), append(path, key))
	if err != nil {
		return reflect.Value{}, fmt.Errorf("container: building %v: %w", key, err)
	}
	outs := fn.Call(args)
	if len(outs) == 2 && !outs[1].IsNil() {
		return reflect.Value{}, fmt.Errorf("container: building %v: %w", key, outs[1].Interface().(error))
	}
	c.instances[key] = outs[0]
	return outs[0], nil
}

func (c *Container) providerFor(t reflect.Type) (reflect.Type, error) {
	if _, ok := c.providers[t]; ok {
		return t, nil
	}
	if t.Kind() != reflect.Interface {
		return nil, fmt.Errorf("container: no provider for %v", t)
	}
	var found reflect.Type
	for pt := range c.providers {
		if pt.Implements(t) {
			if found != nil {
				return nil, fmt.Errorf("container: ambiguous providers for %v: %v and %v", t, found, pt)
			}
			found = pt
		}
	}
	if found == nil {
		return nil, fmt.Errorf("container: no provider for %v", t)
	}
	return found, nil
}
