package quantumgo

import (
	"context"
	"testing"

	"github.com/go-logr/stdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iristech-systems/quantumgo/backend"
	"github.com/iristech-systems/quantumgo/backend/recording"
	"github.com/iristech-systems/quantumgo/field"
	"github.com/iristech-systems/quantumgo/query"
)

const recordingBackend = "recording-test"

func fullCapabilities() backend.Capabilities {
	return backend.Capabilities{
		Transactions: true, References: true, GraphRelations: true, DirectRecord: true,
		Explain: true, Indexes: true, FullTextSearch: true, BulkOperations: true, MaterializedViews: true,
	}
}

func newTestRegistry(t *testing.T, caps backend.Capabilities) *ConnectionRegistry {
	t.Helper()
	drivers := backend.NewRegistry()
	drivers.Register(recordingBackend, func(map[string]any) (backend.Adapter, error) {
		return recording.New(caps), nil
	})
	registry := NewConnectionRegistryWithDrivers(stdr.New(nil), drivers)
	opts := DefaultConnectionOptions(recordingBackend)
	require.NoError(t, registry.CreateConnection(context.Background(), "default", opts))
	return registry
}

func userSchema() *Schema {
	return NewSchema("User", "users",
		field.NewText("id"),
		field.NewText("name"),
		field.NewInteger("age"),
	)
}

func userSchemaWithUniqueEmail() *Schema {
	email := field.NewText("email")
	email.Indexes = append(email.Indexes, field.IndexSpec{Unique: true})
	return NewSchema("User", "users",
		field.NewText("id"),
		field.NewText("name"),
		field.NewInteger("age"),
		email,
	)
}

func TestSaveInsertsThenUpdates(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t, fullCapabilities())
	schema := userSchema()
	mgr := NewManager(schema, Meta{BackendAlias: "default"}, registry)
	require.NoError(t, mgr.CreateTable(ctx))

	inst, err := NewInstance(schema, map[string]any{"name": "Ada", "age": 30})
	require.NoError(t, err)
	require.NoError(t, mgr.Save(ctx, inst))
	assert.True(t, inst.IsSaved())
	assert.NotNil(t, inst.ID())

	require.NoError(t, inst.Set("age", 31))
	require.NoError(t, mgr.Save(ctx, inst))

	fetched, err := mgr.Objects().Get(ctx, inst.ID())
	require.NoError(t, err)
	assert.EqualValues(t, int64(31), fetched.Get("age"))
}

func TestQuerySetFilterAndCount(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t, fullCapabilities())
	schema := userSchema()
	mgr := NewManager(schema, Meta{BackendAlias: "default"}, registry)
	require.NoError(t, mgr.CreateTable(ctx))

	for _, name := range []string{"Ada", "Grace", "Grace"} {
		inst, err := NewInstance(schema, map[string]any{"name": name, "age": 30})
		require.NoError(t, err)
		require.NoError(t, mgr.Save(ctx, inst))
	}

	n, err := mgr.Objects().Filter(query.EqLeaf("name", "Grace")).Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestDeleteRemovesRow(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t, fullCapabilities())
	schema := userSchema()
	mgr := NewManager(schema, Meta{BackendAlias: "default"}, registry)
	require.NoError(t, mgr.CreateTable(ctx))

	inst, err := NewInstance(schema, map[string]any{"name": "Ada", "age": 30})
	require.NoError(t, err)
	require.NoError(t, mgr.Save(ctx, inst))

	require.NoError(t, mgr.Delete(ctx, inst))

	_, err = mgr.Objects().Get(ctx, inst.ID())
	require.Error(t, err)
}

func TestCreateRelationRequiresGraphRelationsCapability(t *testing.T) {
	ctx := context.Background()
	columnarCaps := backend.Capabilities{GraphRelations: false}
	registry := newTestRegistry(t, columnarCaps)
	schema := userSchema()
	mgr := NewManager(schema, Meta{BackendAlias: "default"}, registry)
	require.NoError(t, mgr.CreateTable(ctx))

	a, err := NewInstance(schema, map[string]any{"name": "Ada", "age": 30})
	require.NoError(t, err)
	require.NoError(t, mgr.Save(ctx, a))
	b, err := NewInstance(schema, map[string]any{"name": "Grace", "age": 36})
	require.NoError(t, err)
	require.NoError(t, mgr.Save(ctx, b))

	err = mgr.CreateRelation(ctx, a, "follows", b)
	require.Error(t, err)
}

func TestCreateRelationSucceedsOnGraphBackend(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t, fullCapabilities())
	schema := userSchema()
	mgr := NewManager(schema, Meta{BackendAlias: "default"}, registry)
	require.NoError(t, mgr.CreateTable(ctx))

	a, err := NewInstance(schema, map[string]any{"name": "Ada", "age": 30})
	require.NoError(t, err)
	require.NoError(t, mgr.Save(ctx, a))
	b, err := NewInstance(schema, map[string]any{"name": "Grace", "age": 36})
	require.NoError(t, err)
	require.NoError(t, mgr.Save(ctx, b))

	require.NoError(t, mgr.CreateRelation(ctx, a, "follows", b))
}

func TestQuerySetValidateRejectsUnknownField(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t, fullCapabilities())
	schema := userSchema()
	mgr := NewManager(schema, Meta{BackendAlias: "default"}, registry)
	require.NoError(t, mgr.CreateTable(ctx))

	_, err := mgr.Objects().Filter(query.EqLeaf("bogus", "x")).All(ctx)
	require.Error(t, err)
}

func TestSaveUpsertsByUniqueConstraint(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t, fullCapabilities())
	schema := userSchemaWithUniqueEmail()
	mgr := NewManager(schema, Meta{BackendAlias: "default"}, registry)
	require.NoError(t, mgr.CreateTable(ctx))

	first, err := NewInstance(schema, map[string]any{"name": "Ada", "age": 30, "email": "ada@example.com"})
	require.NoError(t, err)
	require.NoError(t, mgr.Save(ctx, first))
	firstID := first.ID()

	// A fresh, unsaved instance sharing the unique email must resolve to the
	// same row (an update) rather than inserting a duplicate.
	second, err := NewInstance(schema, map[string]any{"name": "Ada Lovelace", "age": 31, "email": "ada@example.com"})
	require.NoError(t, err)
	require.NoError(t, mgr.Save(ctx, second))

	n, err := mgr.Objects().Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	fetched, err := mgr.Objects().Get(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", fetched.Get("name"))
}

func TestQuerySetUpdatePatchesMatchingRows(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t, fullCapabilities())
	schema := userSchema()
	mgr := NewManager(schema, Meta{BackendAlias: "default"}, registry)
	require.NoError(t, mgr.CreateTable(ctx))

	for _, name := range []string{"Ada", "Grace"} {
		inst, err := NewInstance(schema, map[string]any{"name": name, "age": 30})
		require.NoError(t, err)
		require.NoError(t, mgr.Save(ctx, inst))
	}

	n, err := mgr.Objects().Filter(query.EqLeaf("name", "Ada")).Update(ctx, map[string]any{"age": 99})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	fetched, err := mgr.Objects().Filter(query.EqLeaf("name", "Ada")).First(ctx)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.EqualValues(t, int64(99), fetched.Get("age"))
}

func TestQuerySetExplainRequiresCapability(t *testing.T) {
	ctx := context.Background()
	noExplainCaps := fullCapabilities()
	noExplainCaps.Explain = false
	registry := newTestRegistry(t, noExplainCaps)
	schema := userSchema()
	mgr := NewManager(schema, Meta{BackendAlias: "default"}, registry)
	require.NoError(t, mgr.CreateTable(ctx))

	_, err := mgr.Objects().Filter(query.EqLeaf("name", "Ada")).Explain(ctx)
	require.Error(t, err)
}

func TestQuerySetExplainSucceedsWhenSupported(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t, fullCapabilities())
	schema := userSchema()
	mgr := NewManager(schema, Meta{BackendAlias: "default"}, registry)
	require.NoError(t, mgr.CreateTable(ctx))

	inst, err := NewInstance(schema, map[string]any{"name": "Ada", "age": 30})
	require.NoError(t, err)
	require.NoError(t, mgr.Save(ctx, inst))

	plan, err := mgr.Objects().Filter(query.EqLeaf("name", "Ada")).Explain(ctx)
	require.NoError(t, err)
	assert.NotNil(t, plan)
}

func TestManagerRefreshReloadsFromStore(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t, fullCapabilities())
	schema := userSchema()
	mgr := NewManager(schema, Meta{BackendAlias: "default"}, registry)
	require.NoError(t, mgr.CreateTable(ctx))

	inst, err := NewInstance(schema, map[string]any{"name": "Ada", "age": 30})
	require.NoError(t, err)
	require.NoError(t, mgr.Save(ctx, inst))

	if _, err := mgr.Objects().Filter(query.EqLeaf("name", "Ada")).Update(ctx, map[string]any{"age": 42}); err != nil {
		t.Fatal(err)
	}
	require.NoError(t, mgr.Refresh(ctx, inst))
	assert.EqualValues(t, int64(42), inst.Get("age"))
}

func TestQuerySetLimitZeroReturnsNoRows(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t, fullCapabilities())
	schema := userSchema()
	mgr := NewManager(schema, Meta{BackendAlias: "default"}, registry)
	require.NoError(t, mgr.CreateTable(ctx))

	for _, name := range []string{"Ada", "Grace"} {
		inst, err := NewInstance(schema, map[string]any{"name": name, "age": 30})
		require.NoError(t, err)
		require.NoError(t, mgr.Save(ctx, inst))
	}

	rows, err := mgr.Objects().Limit(0).All(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// An unfiltered, unlimited query still sees every row.
	all, err := mgr.Objects().All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestQuerySetInOperatorWithEmptySetReturnsZeroRows(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t, fullCapabilities())
	schema := userSchema()
	mgr := NewManager(schema, Meta{BackendAlias: "default"}, registry)
	require.NoError(t, mgr.CreateTable(ctx))

	inst, err := NewInstance(schema, map[string]any{"name": "Ada", "age": 30})
	require.NoError(t, err)
	require.NoError(t, mgr.Save(ctx, inst))

	n, err := mgr.Objects().Filter(query.Leaf{Field: "age", Op: query.In, Value: []any{}}).Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	n, err = mgr.Objects().Filter(query.Leaf{Field: "age", Op: query.NotIn, Value: []any{}}).Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestQuerySetBetweenOperator(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t, fullCapabilities())
	schema := userSchema()
	mgr := NewManager(schema, Meta{BackendAlias: "default"}, registry)
	require.NoError(t, mgr.CreateTable(ctx))

	for _, age := range []int64{18, 25, 40} {
		inst, err := NewInstance(schema, map[string]any{"name": "x", "age": age})
		require.NoError(t, err)
		require.NoError(t, mgr.Save(ctx, inst))
	}

	n, err := mgr.Objects().Filter(query.Leaf{Field: "age", Op: query.Between, Value: []any{20, 30}}).Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestManagerRefreshNotFoundAfterDelete(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t, fullCapabilities())
	schema := userSchema()
	mgr := NewManager(schema, Meta{BackendAlias: "default"}, registry)
	require.NoError(t, mgr.CreateTable(ctx))

	inst, err := NewInstance(schema, map[string]any{"name": "Ada", "age": 30})
	require.NoError(t, err)
	require.NoError(t, mgr.Save(ctx, inst))
	require.NoError(t, mgr.Delete(ctx, inst))

	err = mgr.Refresh(ctx, inst)
	require.Error(t, err)
}
