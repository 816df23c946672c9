package stack

import (
	gocontext "context"
	"fmt"
	"sync"

	"github.com/entstack/entstack/pkg/stores"
)

// Context is an execution context: a serial task queue bound to an
// in-memory working set of entity instances, with an optional parent
// (the default context) to which pending changes can be propagated.
//
// Every operation against a context is dispatched synchronously onto its
// queue and blocks the caller until it completes. Dispatch is FIFO for
// callers blocked on the same context; there is no ordering guarantee
// across contexts, no cancellation, and no timeout.
type Context struct {
	stack  *Stack
	parent *Context

	jobs chan func()
	done chan struct{}
	once sync.Once

	// Working set. Touched only from the queue goroutine, except for the
	// dirty flags instances carry themselves.
	registered map[string]*Instance // pending inserts, keyed by instance ID
	live       map[string]*Instance // fetched instances, keyed by instance ID
}

func newContext(s *Stack, parent *Context) *Context {
	c := &Context{
		stack:      s,
		parent:     parent,
		jobs:       make(chan func()),
		done:       make(chan struct{}),
		registered: make(map[string]*Instance),
		live:       make(map[string]*Instance),
	}
	go c.loop()
	return c
}

func (c *Context) loop() {
	for {
		select {
		case job := <-c.jobs:
			job()
		case <-c.done:
			return
		}
	}
}

// perform runs fn on the context's serial queue and blocks until it
// returns. A closed context reports ErrNoContext without running fn.
func (c *Context) perform(fn func() error) error {
	errc := make(chan error, 1)
	select {
	case c.jobs <- func() { errc <- fn() }:
		return <-errc
	case <-c.done:
		return ErrNoContext
	}
}

// Parent returns the context changes propagate to, or nil for the default
// context.
func (c *Context) Parent() *Context {
	return c.parent
}

// Close releases the context's queue. Further operations dispatched to it
// report ErrNoContext. Closing twice is harmless.
func (c *Context) Close() {
	c.once.Do(func() { close(c.done) })
}

// hasPending reports whether the working set holds unsaved changes. Must
// run on the queue.
func (c *Context) hasPending() bool {
	if len(c.registered) > 0 {
		return true
	}
	for _, inst := range c.live {
		if inst.dirty {
			return true
		}
	}
	return false
}

// changeSet collects pending inserts and updates. Must run on the queue.
func (c *Context) changeSet() stores.ChangeSet {
	var cs stores.ChangeSet
	for _, inst := range c.registered {
		cs.Inserts = append(cs.Inserts, stores.Record{
			Entity: inst.entity.Name,
			ID:     inst.id,
			Values: inst.values,
		})
	}
	for _, inst := range c.live {
		if !inst.dirty {
			continue
		}
		cs.Updates = append(cs.Updates, stores.Record{
			Entity: inst.entity.Name,
			ID:     inst.id,
			Values: inst.values,
		})
	}
	return cs
}

// save flushes pending changes to the engine in one transaction and marks
// the working set clean. A save with nothing pending is a no-op. Must run
// on the queue.
func (c *Context) save(engine *stores.Engine) error {
	cs := c.changeSet()
	if cs.Empty() {
		return nil
	}

	if err := engine.Apply(gocontext.Background(), cs); err != nil {
		return fmt.Errorf("save failed: %w", err)
	}

	for id, inst := range c.registered {
		inst.saved = true
		inst.dirty = false
		c.live[id] = inst
		delete(c.registered, id)
	}
	for _, inst := range c.live {
		inst.dirty = false
	}
	return nil
}

// adopt re-homes instances collected from a child context into this
// context's working set. Must run on the queue.
func (c *Context) adopt(registered, live []*Instance) {
	for _, inst := range registered {
		inst.ctx = c
		c.registered[inst.id] = inst
	}
	for _, inst := range live {
		inst.ctx = c
		c.live[inst.id] = inst
	}
}

// materialize turns a stored row into a live instance registered in the
// working set. A row already present keeps its existing instance, so a
// record is represented by one instance per context. Must run on the
// queue.
func (c *Context) materialize(engine *stores.Engine, entity string, row stores.Row) *Instance {
	if inst, ok := c.live[row.ID]; ok {
		return inst
	}

	inst := &Instance{
		id:     row.ID,
		entity: engine.Model().Entity(entity),
		values: row.Values,
		ctx:    c,
		saved:  true,
	}
	c.live[inst.id] = inst
	return inst
}

// dropID removes any working-set entry for the given instance ID and
// detaches it. Must run on the queue.
func (c *Context) dropID(id string) {
	if inst, ok := c.registered[id]; ok {
		delete(c.registered, id)
		inst.detach()
	}
	if inst, ok := c.live[id]; ok {
		delete(c.live, id)
		inst.detach()
	}
}
