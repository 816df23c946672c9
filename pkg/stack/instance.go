package stack

import (
	"fmt"

	"github.com/entstack/entstack/pkg/model"
)

// Instance is one addressable record of a declared entity type. An
// instance belongs to at most one execution context at a time; a detached
// instance (nil context) cannot be fetched, deleted, or saved.
//
// Instances are not safe for concurrent mutation. The caller that obtained
// an instance from a context owns it until the next save on that context.
type Instance struct {
	id     string
	entity *model.Entity
	values map[string]any

	ctx   *Context
	saved bool // record exists in the store
	dirty bool // values changed since the last save
}

// ID returns the instance's stable identifier.
func (i *Instance) ID() string {
	return i.id
}

// Entity returns the entity type name.
func (i *Instance) Entity() string {
	return i.entity.Name
}

// Context returns the execution context the instance belongs to, or nil
// if it is detached.
func (i *Instance) Context() *Context {
	return i.ctx
}

// Get returns the value of the named property, or nil when unset.
func (i *Instance) Get(name string) any {
	return i.values[name]
}

// Set assigns a property value. Setting a property the entity does not
// declare is a caller error.
func (i *Instance) Set(name string, value any) error {
	if i.entity.Property(name) == nil {
		return fmt.Errorf("%w: %s.%s", ErrUnknownProperty, i.entity.Name, name)
	}
	i.values[name] = value
	i.dirty = true
	return nil
}

// Values returns a copy of the instance's property values.
func (i *Instance) Values() map[string]any {
	out := make(map[string]any, len(i.values))
	for k, v := range i.values {
		out[k] = v
	}
	return out
}

// detach severs the instance from its context.
func (i *Instance) detach() {
	i.ctx = nil
}
