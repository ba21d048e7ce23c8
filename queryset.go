package quantumgo

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/iristech-systems/quantumgo/backend"
	"github.com/iristech-systems/quantumgo/qerr"
	"github.com/iristech-systems/quantumgo/query"
)

// Manager binds a Schema to a connection alias, the entry point spec §6.1
// calls a document class's objects.
type Manager struct {
	schema   *Schema
	meta     Meta
	registry *ConnectionRegistry
}

// NewManager builds a Manager for schema, routed through the connection
// alias named in meta.BackendAlias.
func NewManager(schema *Schema, meta Meta, registry *ConnectionRegistry) *Manager {
	return &Manager{schema: schema, meta: meta, registry: registry}
}

// backendName resolves the backend driver name behind the class's connection
// alias, so per-field serialization (field.Field.ToDB/FromDB) knows which
// wire format to target.
func (m *Manager) backendName() string {
	name, _ := m.registry.BackendFor(m.meta.BackendAlias)
	return name
}

func (m *Manager) logger() logr.Logger {
	return m.registry.Logger()
}

// withAdapter acquires the class's pooled adapter, runs fn, and releases it,
// marking the connection fatal if fn's error looks transport-level.
func (m *Manager) withAdapter(ctx context.Context, fn func(backend.Adapter) error) error {
	adapter, err := m.registry.Acquire(ctx, m.meta.BackendAlias)
	if err != nil {
		return err
	}
	runErr := fn(adapter)
	fatal := false
	if qe, ok := runErr.(*qerr.Error); ok && qe.Kind == qerr.Transport {
		fatal = true
	}
	m.registry.Release(m.meta.BackendAlias, adapter, fatal)
	return runErr
}

// CreateTable issues the class's DDL against its backend.
func (m *Manager) CreateTable(ctx context.Context) error {
	return m.withAdapter(ctx, func(a backend.Adapter) error {
		return a.CreateTable(ctx, m.schema.Collection, m.schema.Fields(), m.meta.tableOptions())
	})
}

// DropTable drops the class's backing table/collection.
func (m *Manager) DropTable(ctx context.Context, ifExists bool) error {
	return m.withAdapter(ctx, func(a backend.Adapter) error {
		return a.DropTable(ctx, m.schema.Collection, ifExists)
	})
}

// Save inserts a new instance (updating the existing row instead when one
// matches the instance's unique fields), or updates an already-saved one by
// id, writing only dirty fields on the update paths.
func (m *Manager) Save(ctx context.Context, inst *Instance) error {
	backendName, logger := m.backendName(), m.logger()
	return m.withAdapter(ctx, func(a backend.Adapter) error {
		if !inst.saved {
			if filter, ok := inst.uniqueFilter(); ok {
				conds, err := lowerEquality(a, filter)
				if err != nil {
					return err
				}
				existing, err := a.Select(ctx, m.schema.Collection, conds, backend.SelectOptions{Limit: 1})
				if err != nil {
					return err
				}
				if len(existing) > 0 {
					patch, err := inst.changedRow(backendName, logger)
					if err != nil {
						return err
					}
					rows, err := a.Update(ctx, m.schema.Collection, conds, patch)
					if err != nil {
						return err
					}
					if len(rows) > 0 {
						return inst.FromDB(rows[0], backendName)
					}
					return nil
				}
			}
			wire, err := inst.ToDB(backendName, logger)
			if err != nil {
				return err
			}
			row, err := a.Insert(ctx, m.schema.Collection, wire)
			if err != nil {
				return err
			}
			return inst.FromDB(row, backendName)
		}

		id := inst.ID()
		if id == nil {
			return qerr.New(qerr.Validation, "Manager.Save", "saved instance is missing its id")
		}
		conds, err := lowerEquality(a, map[string]any{"id": id})
		if err != nil {
			return err
		}
		patch, err := inst.changedRow(backendName, logger)
		if err != nil {
			return err
		}
		rows, err := a.Update(ctx, m.schema.Collection, conds, patch)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			return inst.FromDB(rows[0], backendName)
		}
		return nil
	})
}

// Delete removes inst's row by id.
func (m *Manager) Delete(ctx context.Context, inst *Instance) error {
	id := inst.ID()
	if id == nil {
		return qerr.New(qerr.Validation, "Manager.Delete", "instance has no id")
	}
	return m.withAdapter(ctx, func(a backend.Adapter) error {
		conds, err := lowerEquality(a, map[string]any{"id": id})
		if err != nil {
			return err
		}
		_, err = a.Delete(ctx, m.schema.Collection, conds)
		return err
	})
}

// Refresh reloads inst's row from the store by id, discarding local edits.
func (m *Manager) Refresh(ctx context.Context, inst *Instance) error {
	id := inst.ID()
	if id == nil {
		return qerr.New(qerr.Validation, "Manager.Refresh", "instance has no id")
	}
	backendName := m.backendName()
	return m.withAdapter(ctx, func(a backend.Adapter) error {
		conds, err := lowerEquality(a, map[string]any{"id": id})
		if err != nil {
			return err
		}
		rows, err := a.Select(ctx, m.schema.Collection, conds, backend.SelectOptions{Limit: 1})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return qerr.New(qerr.NotFound, "Manager.Refresh", "instance no longer exists").WithTable(m.schema.Collection)
		}
		return inst.FromDB(rows[0], backendName)
	})
}

// CreateRelation establishes a graph edge between two instances, gated on
// the backend's GraphRelations capability, per spec §8.4 scenario 3: a
// columnar-backed class must fail with CapabilityError, a document/graph
// one must succeed.
func (m *Manager) CreateRelation(ctx context.Context, from *Instance, relation string, to *Instance) error {
	return m.withAdapter(ctx, func(a backend.Adapter) error {
		if err := a.Capabilities().RequireGraphRelations("CreateRelation"); err != nil {
			return err
		}
		stmt := fmt.Sprintf("RELATE %s:%v->%s->%s:%v;", m.schema.Collection, from.ID(), relation, m.schema.Collection, to.ID())
		_, err := a.ExecuteRaw(ctx, stmt, nil)
		return err
	})
}

// Objects returns an unfiltered QuerySet over the class, the entry point
// every filter()/exclude()/... chain starts from.
func (m *Manager) Objects() *QuerySet {
	return &QuerySet{manager: m, expr: query.NewExpression(nil), limit: backend.NoLimit}
}

func lowerEquality(a backend.Adapter, filter map[string]any) ([]backend.Op, error) {
	conds := make([]backend.Op, 0, len(filter))
	for k, v := range filter {
		c, err := a.BuildCondition(k, string(query.Eq), v)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	return conds, nil
}

// QuerySet is a lazily-built, immutable query over one document class; every
// chain method returns a new QuerySet, per spec §6.1's QuerySet contract.
type QuerySet struct {
	manager *Manager
	expr    *query.Expression
	order   []backend.OrderTerm
	limit   int // backend.NoLimit (the default, set by Objects) until Limit is called
	offset  int
	fetch   []string
	only    []string
}

func (qs *QuerySet) clone() *QuerySet {
	cp := *qs
	return &cp
}

// Filter narrows the QuerySet by conjunction with n.
func (qs *QuerySet) Filter(n query.Node) *QuerySet {
	cp := qs.clone()
	cp.expr = qs.expr.And(n)
	return cp
}

// Exclude narrows the QuerySet by conjunction with the negation of n.
func (qs *QuerySet) Exclude(n query.Node) *QuerySet {
	cp := qs.clone()
	cp.expr = qs.expr.And(query.Not(n))
	return cp
}

// OrderBy appends sort terms.
func (qs *QuerySet) OrderBy(terms ...backend.OrderTerm) *QuerySet {
	cp := qs.clone()
	cp.order = append(append([]backend.OrderTerm{}, qs.order...), terms...)
	return cp
}

// Limit bounds the result count. Limit(0) is not a no-op: it returns zero
// rows, per spec §8.3's boundary law. Pass backend.NoLimit to remove a
// previously-set bound.
func (qs *QuerySet) Limit(n int) *QuerySet {
	cp := qs.clone()
	cp.limit = n
	return cp
}

// Offset skips the first n matching rows.
func (qs *QuerySet) Offset(n int) *QuerySet {
	cp := qs.clone()
	cp.offset = n
	return cp
}

// Fetch requests graph-reference expansion for the named fields, honored
// only by backends with the References capability.
func (qs *QuerySet) Fetch(fields ...string) *QuerySet {
	cp := qs.clone()
	cp.fetch = append(append([]string{}, qs.fetch...), fields...)
	return cp
}

// Only restricts the returned columns.
func (qs *QuerySet) Only(fields ...string) *QuerySet {
	cp := qs.clone()
	cp.only = append(append([]string{}, qs.only...), fields...)
	return cp
}

func (qs *QuerySet) selectOptions() backend.SelectOptions {
	return backend.SelectOptions{Fields: qs.only, Limit: qs.limit, Offset: qs.offset, Order: qs.order, Fetch: qs.fetch}
}

func (qs *QuerySet) lowerConds(a backend.Adapter) ([]backend.Op, error) {
	if err := qs.expr.Validate(qs.manager.schema); err != nil {
		return nil, err
	}
	lowered, err := query.Lower(qs.expr.Root, opBuilder{a})
	if err != nil {
		return nil, err
	}
	return []backend.Op{backend.Op(lowered)}, nil
}

// opBuilder adapts a backend.Adapter to query.ConditionBuilder.
type opBuilder struct{ a backend.Adapter }

func (o opBuilder) BuildCondition(field, op string, value any) (string, error) {
	c, err := o.a.BuildCondition(field, op, value)
	return string(c), err
}

// All runs the query and returns every matching row as an Instance.
func (qs *QuerySet) All(ctx context.Context) ([]*Instance, error) {
	backendName := qs.manager.backendName()
	var out []*Instance
	err := qs.manager.withAdapter(ctx, func(a backend.Adapter) error {
		conds, err := qs.lowerConds(a)
		if err != nil {
			return err
		}
		rows, err := a.Select(ctx, qs.manager.schema.Collection, conds, qs.selectOptions())
		if err != nil {
			return err
		}
		out = make([]*Instance, 0, len(rows))
		for _, row := range rows {
			inst := &Instance{schema: qs.manager.schema, values: map[string]any{}, changed: map[string]bool{}}
			if err := inst.FromDB(row, backendName); err != nil {
				return err
			}
			out = append(out, inst)
		}
		return nil
	})
	return out, err
}

// First returns the first matching row, or (nil, nil) if none match.
func (qs *QuerySet) First(ctx context.Context) (*Instance, error) {
	rows, err := qs.Limit(1).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Get returns the single instance with the given id, or qerr.NotFound.
func (qs *QuerySet) Get(ctx context.Context, id any) (*Instance, error) {
	backendName := qs.manager.backendName()
	var out *Instance
	err := qs.manager.withAdapter(ctx, func(a backend.Adapter) error {
		conds, err := lowerEquality(a, map[string]any{"id": id})
		if err != nil {
			return err
		}
		rows, err := a.Select(ctx, qs.manager.schema.Collection, conds, backend.SelectOptions{Limit: 1})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return qerr.New(qerr.NotFound, "QuerySet.Get", "no matching row").WithTable(qs.manager.schema.Collection)
		}
		inst := &Instance{schema: qs.manager.schema, values: map[string]any{}, changed: map[string]bool{}}
		if err := inst.FromDB(rows[0], backendName); err != nil {
			return err
		}
		out = inst
		return nil
	})
	return out, err
}

// Count returns the number of matching rows without fetching them.
func (qs *QuerySet) Count(ctx context.Context) (int64, error) {
	var n int64
	err := qs.manager.withAdapter(ctx, func(a backend.Adapter) error {
		conds, err := qs.lowerConds(a)
		if err != nil {
			return err
		}
		n, err = a.Count(ctx, qs.manager.schema.Collection, conds)
		return err
	})
	return n, err
}

// Delete removes every matching row, returning how many were deleted.
func (qs *QuerySet) Delete(ctx context.Context) (int64, error) {
	var n int64
	err := qs.manager.withAdapter(ctx, func(a backend.Adapter) error {
		conds, err := qs.lowerConds(a)
		if err != nil {
			return err
		}
		n, err = a.Delete(ctx, qs.manager.schema.Collection, conds)
		return err
	})
	return n, err
}

// Update applies patch to every matching row, returning how many changed.
func (qs *QuerySet) Update(ctx context.Context, patch map[string]any) (int64, error) {
	var n int64
	err := qs.manager.withAdapter(ctx, func(a backend.Adapter) error {
		conds, err := qs.lowerConds(a)
		if err != nil {
			return err
		}
		rows, err := a.Update(ctx, qs.manager.schema.Collection, conds, backend.Row(patch))
		n = int64(len(rows))
		return err
	})
	return n, err
}

// Explain returns the backend-native query plan for the current filter,
// gated on the Explain capability.
func (qs *QuerySet) Explain(ctx context.Context) (any, error) {
	var result any
	err := qs.manager.withAdapter(ctx, func(a backend.Adapter) error {
		if err := a.Capabilities().RequireExplain("Explain"); err != nil {
			return err
		}
		conds, err := qs.lowerConds(a)
		if err != nil {
			return err
		}
		text := fmt.Sprintf("EXPLAIN SELECT * FROM %s", qs.manager.schema.Collection)
		if len(conds) > 0 {
			text += " WHERE " + string(conds[0])
		}
		result, err = a.ExecuteRaw(ctx, text, nil)
		return err
	})
	return result, err
}
