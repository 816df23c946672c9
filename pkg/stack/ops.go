package stack

import (
	gocontext "context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/entstack/entstack/pkg/stores"
)

// The operations below form the context-dispatched facade. Each accepts
// an optional target context (nil selects the default context) and runs
// synchronously on that context's serial queue; the caller blocks until
// the result or error is fully determined. Engine failures are propagated
// to the caller unmodified, with no retry.

// Count returns the number of stored instances of the entity satisfying
// the predicate, or all instances when the predicate is nil. No matching
// results is count 0, never an error. The count is computed store-side
// without materializing property values.
func (s *Stack) Count(c *Context, entity string, pred *stores.Predicate) (int64, error) {
	target, err := s.target(c)
	if err != nil {
		return 0, err
	}

	var n int64
	err = target.perform(func() error {
		engine, err := s.engineHandle()
		if err != nil {
			return err
		}
		n, err = engine.Count(gocontext.Background(), entity, pred)
		return err
	})
	s.metrics.RecordOperation("count", err)
	return n, err
}

// Exists reports whether any stored instance of the entity satisfies the
// predicate. It is Count > 0 with no independent logic.
func (s *Stack) Exists(c *Context, entity string, pred *stores.Predicate) (bool, error) {
	n, err := s.Count(c, entity, pred)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// NewInstance allocates a new instance of the entity type and registers
// it in the target context's working set. The instance is not persisted
// until a subsequent save. An entity type the engine does not recognize
// yields no instance.
func (s *Stack) NewInstance(c *Context, entity string) (*Instance, error) {
	target, err := s.target(c)
	if err != nil {
		return nil, err
	}

	var inst *Instance
	err = target.perform(func() error {
		engine, err := s.engineHandle()
		if err != nil {
			return err
		}
		ent := engine.Model().Entity(entity)
		if ent == nil {
			return fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
		}

		inst = &Instance{
			id:     uuid.NewString(),
			entity: ent,
			values: make(map[string]any, len(ent.Properties)),
			ctx:    target,
		}
		target.registered[inst.id] = inst
		return nil
	})
	s.metrics.RecordOperation("new_instance", err)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// Fetch expects the predicate to match at most one stored instance. Zero
// matches returns (nil, nil); exactly one returns it; more than one is a
// contract violation reported as ErrMultipleMatches with no result, never
// a silent pick.
func (s *Stack) Fetch(c *Context, entity string, pred *stores.Predicate) (*Instance, error) {
	target, err := s.target(c)
	if err != nil {
		return nil, err
	}

	var inst *Instance
	err = target.perform(func() error {
		engine, err := s.engineHandle()
		if err != nil {
			return err
		}

		// Two rows are enough to detect ambiguity.
		rows, err := engine.Select(gocontext.Background(), entity, stores.Query{
			Predicate: pred,
			Limit:     2,
		})
		if err != nil {
			return err
		}

		switch len(rows) {
		case 0:
			return nil
		case 1:
			inst = target.materialize(engine, entity, rows[0])
			return nil
		default:
			return fmt.Errorf("%w: entity %s", ErrMultipleMatches, entity)
		}
	})
	s.metrics.RecordOperation("fetch", err)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// FetchMultiple returns every stored instance of the entity matching the
// query's predicate, sorted per its sort order, truncated to its limit
// (0 = unbounded). No matches yields an empty slice, never an error. The
// query's batch size is a paging hint with no observable effect.
func (s *Stack) FetchMultiple(c *Context, entity string, q stores.Query) ([]*Instance, error) {
	target, err := s.target(c)
	if err != nil {
		return nil, err
	}

	var insts []*Instance
	err = target.perform(func() error {
		engine, err := s.engineHandle()
		if err != nil {
			return err
		}

		rows, err := engine.Select(gocontext.Background(), entity, q)
		if err != nil {
			return err
		}

		insts = make([]*Instance, 0, len(rows))
		for _, row := range rows {
			insts = append(insts, target.materialize(engine, entity, row))
		}
		return nil
	})
	s.metrics.RecordOperation("fetch_multiple", err)
	if err != nil {
		return nil, err
	}
	return insts, nil
}

// Delete removes a single instance from its context and immediately
// persists the removal. Deleting an instance that is not associated with
// any context is a caller error.
func (s *Stack) Delete(inst *Instance) error {
	if inst == nil || inst.ctx == nil {
		s.metrics.RecordOperation("delete", ErrDetachedInstance)
		return ErrDetachedInstance
	}

	target := inst.ctx
	err := target.perform(func() error {
		engine, err := s.engineHandle()
		if err != nil {
			return err
		}

		// An instance that never reached the store only leaves the
		// working set.
		if inst.saved {
			cs := stores.ChangeSet{Deletes: []stores.Ref{{Entity: inst.entity.Name, ID: inst.id}}}
			if err := engine.Apply(gocontext.Background(), cs); err != nil {
				return err
			}
		}
		target.dropID(inst.id)
		return nil
	})
	s.metrics.RecordOperation("delete", err)
	return err
}

// DeleteAll removes every stored instance of the entity matching the
// predicate and persists the removal, returning how many were removed.
//
// With useBulkDelete and a disk-persisted store, the engine performs one
// batch delete and the resulting change set is merged back into the
// working set. Bulk removal against a memory-only store silently falls
// back to per-instance removal; the caller's intent is honored either
// way, with the fallback surfaced only as a debug log and a metric.
func (s *Stack) DeleteAll(c *Context, entity string, pred *stores.Predicate, useBulkDelete bool) (int64, error) {
	target, err := s.target(c)
	if err != nil {
		return 0, err
	}

	var removed int64
	err = target.perform(func() error {
		engine, err := s.engineHandle()
		if err != nil {
			return err
		}

		bulk := useBulkDelete
		if bulk && !engine.Persisted() {
			bulk = false
			s.logger.Debug().Str("entity", entity).
				Msg("bulk delete unsupported on memory-only store; using per-instance removal")
			s.metrics.RecordBulkDeleteFallback()
		}

		if bulk {
			ids, err := engine.DeleteWhere(gocontext.Background(), entity, pred)
			if err != nil {
				return err
			}
			for _, id := range ids {
				target.dropID(id)
			}
			removed = int64(len(ids))
			return nil
		}

		rows, err := engine.Select(gocontext.Background(), entity, stores.Query{Predicate: pred})
		if err != nil {
			return err
		}
		cs := stores.ChangeSet{Deletes: make([]stores.Ref, 0, len(rows))}
		for _, row := range rows {
			cs.Deletes = append(cs.Deletes, stores.Ref{Entity: entity, ID: row.ID})
		}
		if err := engine.Apply(gocontext.Background(), cs); err != nil {
			return err
		}
		for _, row := range rows {
			target.dropID(row.ID)
		}
		removed = int64(len(rows))
		return nil
	})
	s.metrics.RecordOperation("delete_all", err)
	return removed, err
}

// SaveDefaultContext persists the default context's pending changes. It
// is a no-op, not an error, when nothing is pending or when no default
// context exists: saving with nothing to save is inherently harmless.
func (s *Stack) SaveDefaultContext() error {
	s.mu.Lock()
	defaultCtx := s.defaultCtx
	s.mu.Unlock()
	if defaultCtx == nil {
		return nil
	}

	start := time.Now()
	err := defaultCtx.perform(func() error {
		engine, err := s.engineHandle()
		if err != nil {
			return err
		}
		return defaultCtx.save(engine)
	})
	s.metrics.RecordOperation("save", err)
	s.metrics.ObserveSaveDuration(time.Since(start))
	return err
}

// SaveAndMerge persists a child context's pending changes by propagating
// them into the default context and saving the default context once. It
// is a no-op when the child has no pending changes, when the child is the
// default context, or when the child's parent is not the default context:
// only one level of child-to-default propagation is supported.
func (s *Stack) SaveAndMerge(child *Context) error {
	if child == nil {
		return nil
	}

	s.mu.Lock()
	defaultCtx := s.defaultCtx
	s.mu.Unlock()

	if child == defaultCtx || child.parent == nil || child.parent != defaultCtx {
		return nil
	}

	// Phase one, on the child's queue: take ownership of the pending
	// changes. Clean fetched instances stay in the child's working set.
	var registered, live []*Instance
	err := child.perform(func() error {
		if !child.hasPending() {
			return nil
		}
		for id, inst := range child.registered {
			registered = append(registered, inst)
			delete(child.registered, id)
		}
		for id, inst := range child.live {
			if !inst.dirty {
				continue
			}
			live = append(live, inst)
			delete(child.live, id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(registered) == 0 && len(live) == 0 {
		return nil
	}

	// Phase two, on the default queue: adopt the instances and persist.
	start := time.Now()
	err = defaultCtx.perform(func() error {
		engine, err := s.engineHandle()
		if err != nil {
			return err
		}
		defaultCtx.adopt(registered, live)
		return defaultCtx.save(engine)
	})
	s.metrics.RecordOperation("save_and_merge", err)
	s.metrics.ObserveSaveDuration(time.Since(start))
	return err
}
