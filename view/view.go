// Package view implements the materialized view engine (spec components
// C8, C9): declarative dimension/metric classes compiled to a canonical
// aggregation query, then rewritten into each backend's native dialect at
// create_view() time.
package view

import (
	"context"
	"fmt"
	"strings"

	"github.com/iristech-systems/quantumgo/backend"
	"github.com/iristech-systems/quantumgo/field"
	"github.com/iristech-systems/quantumgo/qerr"
)

// Dimension is a GROUP BY column: Source names the field on the source
// class, Transform (optional) names a portable function from the dialect
// applied to it before grouping, e.g. ToDate(created_at).
type Dimension struct {
	Name      string
	Source    string
	Transform string
}

// Metric is an aggregated output column: Aggregate names a portable
// function from the dialect, applied to Source ("*" for Count()).
type Metric struct {
	Name      string
	Source    string
	Aggregate string
}

// Definition is a materialized view's declarative shape, independent of
// any backend, per spec §4.7 step 1-3.
type Definition struct {
	Name        string
	SourceTable string
	Dimensions  []Dimension
	Metrics     []Metric
	Where       string // already-lowered predicate fragment, optional
	Having      string // canonical-dialect predicate over metric aliases, optional
}

// FieldResolver looks up a declared field on the view's source class.
type FieldResolver interface {
	ResolveField(name string) (*field.Field, bool)
}

// Validate checks that every dimension and metric source names a real
// field on the source class, per spec §4.7 step 2.
func (d *Definition) Validate(resolver FieldResolver) error {
	if len(d.Dimensions) == 0 && len(d.Metrics) == 0 {
		return qerr.New(qerr.Validation, "view.Validate", "a view needs at least one dimension or metric").WithTable(d.Name)
	}
	for _, dim := range d.Dimensions {
		if _, ok := resolver.ResolveField(dim.Source); !ok {
			return qerr.New(qerr.Validation, "view.Validate", "dimension source field not found on source class").WithField(dim.Source)
		}
	}
	for _, m := range d.Metrics {
		if m.Source == "*" {
			continue
		}
		if _, ok := resolver.ResolveField(m.Source); !ok {
			return qerr.New(qerr.Validation, "view.Validate", "metric source field not found on source class").WithField(m.Source)
		}
	}
	return nil
}

// dimensionExpr renders a dimension's select-list expression in the
// canonical (pre-rewrite) dialect: Transform(Source) or bare Source.
func (dim Dimension) dimensionExpr() string {
	if dim.Transform == "" {
		return dim.Source
	}
	return fmt.Sprintf("%s(%s)", dim.Transform, dim.Source)
}

func (m Metric) metricExpr() string {
	arg := m.Source
	if arg == "" {
		arg = "*"
	}
	return fmt.Sprintf("%s(%s)", m.Aggregate, arg)
}

// CompileCanonical builds the internal-dialect source query of spec §4.7
// step 3: SELECT <transforms-or-sources as alias>, <aggregates as alias>
// FROM <source> [WHERE <filters>] GROUP BY <dimensions> [HAVING <having>].
func (d *Definition) CompileCanonical() string {
	var cols []string
	var groupBy []string
	for _, dim := range d.Dimensions {
		cols = append(cols, fmt.Sprintf("%s AS %s", dim.dimensionExpr(), dim.Name))
		groupBy = append(groupBy, dim.Name)
	}
	for _, m := range d.Metrics {
		cols = append(cols, fmt.Sprintf("%s AS %s", m.metricExpr(), m.Name))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(cols, ", "), d.SourceTable)
	if d.Where != "" {
		fmt.Fprintf(&b, " WHERE %s", d.Where)
	}
	if len(groupBy) > 0 {
		fmt.Fprintf(&b, " GROUP BY %s", strings.Join(groupBy, ", "))
	}
	if d.Having != "" {
		fmt.Fprintf(&b, " HAVING %s", d.Having)
	}
	return b.String()
}

// compileNative rewrites every portable function call through the dialect
// for cat, producing the query text a backend's CreateMaterializedView
// expects as ViewSpec.SourceQuery.
func (d *Definition) compileNative(cat Category) (string, error) {
	var cols []string
	var groupBy []string
	for _, dim := range d.Dimensions {
		expr := dim.Source
		if dim.Transform != "" {
			rewritten, err := Rewrite(dim.Transform, []string{dim.Source}, cat)
			if err != nil {
				return "", err
			}
			expr = rewritten
		}
		cols = append(cols, fmt.Sprintf("%s AS %s", expr, dim.Name))
		groupBy = append(groupBy, dim.Name)
	}
	for _, m := range d.Metrics {
		arg := m.Source
		if arg == "" {
			arg = "*"
		}
		rewritten, err := Rewrite(m.Aggregate, []string{arg}, cat)
		if err != nil {
			return "", err
		}
		cols = append(cols, fmt.Sprintf("%s AS %s", rewritten, m.Name))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(cols, ", "), d.SourceTable)
	if d.Where != "" {
		fmt.Fprintf(&b, " WHERE %s", d.Where)
	}
	if len(groupBy) > 0 {
		fmt.Fprintf(&b, " GROUP BY %s", strings.Join(groupBy, ", "))
	}
	if d.Having != "" {
		fmt.Fprintf(&b, " HAVING %s", d.Having)
	}
	return b.String(), nil
}

// Placement carries the columnar-only physical hints a view's target
// engine needs; document/graph backends ignore it.
type Placement struct {
	Engine      string
	PartitionBy string
	OrderBy     []string
}

// CreateView compiles d against adapter's backend and issues the resulting
// DDL, per spec §4.7's three-way dispatch: native materialized views,
// declarative view tables, or unsupported.
func (d *Definition) CreateView(ctx context.Context, adapter backend.Adapter, placement Placement) error {
	if !adapter.Capabilities().MaterializedViews {
		return qerr.New(qerr.Capability, "view.CreateView", "backend does not support materialized views").WithTable(d.Name)
	}
	cat, ok := CategoryFor(adapter.Name())
	if !ok {
		return qerr.New(qerr.Capability, "view.CreateView", "backend has no recognized view dialect").WithTable(d.Name)
	}
	query, err := d.compileNative(cat)
	if err != nil {
		return err
	}
	spec := backend.ViewSpec{
		Name:        d.Name,
		SourceQuery: query,
		Engine:      placement.Engine,
		PartitionBy: placement.PartitionBy,
		OrderBy:     placement.OrderBy,
	}
	return adapter.CreateMaterializedView(ctx, spec)
}

// DropView drops the view by name. ifExists suppresses a missing-view
// error, mirroring DropTable's semantics.
func (d *Definition) DropView(ctx context.Context, adapter backend.Adapter, ifExists bool) error {
	return adapter.DropMaterializedView(ctx, d.Name, ifExists)
}

// RefreshView is a no-op on backends that auto-maintain their views
// (columnar engines, SurrealDB's live-queried declarative tables); the
// adapter decides, per spec §4.7.
func (d *Definition) RefreshView(ctx context.Context, adapter backend.Adapter) error {
	return adapter.RefreshMaterializedView(ctx, d.Name)
}
