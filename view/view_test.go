package view

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iristech-systems/quantumgo/backend"
	"github.com/iristech-systems/quantumgo/backend/recording"
	"github.com/iristech-systems/quantumgo/field"
)

type stubResolver struct{ fields map[string]*field.Field }

func (s stubResolver) ResolveField(name string) (*field.Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

func dailySalesView() *Definition {
	return &Definition{
		Name:        "daily_sales_summary",
		SourceTable: "sales",
		Dimensions: []Dimension{
			{Name: "day", Source: "created_at", Transform: "ToDate"},
			{Name: "seller", Source: "seller_id"},
		},
		Metrics: []Metric{
			{Name: "total", Source: "amount", Aggregate: "Sum"},
			{Name: "orders", Source: "*", Aggregate: "Count"},
		},
	}
}

func TestValidateRejectsUnknownSourceField(t *testing.T) {
	v := dailySalesView()
	err := v.Validate(stubResolver{fields: map[string]*field.Field{
		"created_at": field.NewText("created_at"),
	}})
	require.Error(t, err)
}

func TestValidateAcceptsKnownFields(t *testing.T) {
	v := dailySalesView()
	err := v.Validate(stubResolver{fields: map[string]*field.Field{
		"created_at": field.NewText("created_at"),
		"seller_id":  field.NewText("seller_id"),
		"amount":     field.NewInteger("amount"),
	}})
	require.NoError(t, err)
}

func TestCompileCanonical(t *testing.T) {
	v := dailySalesView()
	got := v.CompileCanonical()
	assert.Contains(t, got, "ToDate(created_at) AS day")
	assert.Contains(t, got, "seller_id AS seller")
	assert.Contains(t, got, "Sum(amount) AS total")
	assert.Contains(t, got, "Count(*) AS orders")
	assert.Contains(t, got, "FROM sales")
	assert.Contains(t, got, "GROUP BY day, seller")
}

func TestCompileNativeColumnar(t *testing.T) {
	v := dailySalesView()
	got, err := v.compileNative(CategoryColumnar)
	require.NoError(t, err)
	assert.Contains(t, got, "toDate(created_at) AS day")
	assert.Contains(t, got, "sum(amount) AS total")
	assert.Contains(t, got, "count(*) AS orders")
}

func TestCompileNativeDocument(t *testing.T) {
	v := dailySalesView()
	got, err := v.compileNative(CategoryDocument)
	require.NoError(t, err)
	assert.Contains(t, got, "time::day(created_at) AS day")
	assert.Contains(t, got, "math::sum(amount) AS total")
	assert.Contains(t, got, "count(*) AS orders")
}

func TestCompileNativeUnknownFunctionFails(t *testing.T) {
	v := &Definition{
		Name:        "bad",
		SourceTable: "sales",
		Metrics:     []Metric{{Name: "x", Source: "amount", Aggregate: "Median"}},
	}
	_, err := v.compileNative(CategoryColumnar)
	require.Error(t, err)
}

func TestRewriteHasReversesArgOrderForDocument(t *testing.T) {
	columnar, err := Rewrite("Has", []string{"tags", "'red'"}, CategoryColumnar)
	require.NoError(t, err)
	assert.Equal(t, "has(tags, 'red')", columnar)

	document, err := Rewrite("Has", []string{"tags", "'red'"}, CategoryDocument)
	require.NoError(t, err)
	assert.Equal(t, "'red' INSIDE tags", document)
}

func TestCreateViewFailsWithoutMaterializedViewCapability(t *testing.T) {
	a := recording.New(backend.Capabilities{MaterializedViews: false})
	v := dailySalesView()
	err := v.CreateView(context.Background(), a, Placement{})
	require.Error(t, err)
}

func TestCreateViewFailsOnUnrecognizedDialect(t *testing.T) {
	a := recording.New(backend.Capabilities{MaterializedViews: true})
	v := dailySalesView()
	err := v.CreateView(context.Background(), a, Placement{})
	require.Error(t, err, "recording adapter's Name() isn't a known view category")
}

func TestDropAndRefreshViewDelegateToAdapter(t *testing.T) {
	a := recording.New(backend.Capabilities{MaterializedViews: true})
	v := dailySalesView()
	require.NoError(t, v.DropView(context.Background(), a, true))
	require.NoError(t, v.RefreshView(context.Background(), a))
	assert.Contains(t, a.Calls, "DropMaterializedView:daily_sales_summary")
	assert.Contains(t, a.Calls, "RefreshMaterializedView:daily_sales_summary")
}
