// Package backend defines the uniform adapter contract every driver
// implements (spec component C5), plus the registry and capability model
// that gate which operations a given backend may run (spec component C3).
package backend

import (
	"context"

	"github.com/iristech-systems/quantumgo/field"
)

// Op is a predicate leaf produced by Adapter.BuildCondition or supplied
// verbatim as a raw fragment. The query-tree layer composes Ops with
// And/Or/Not into a parenthesized string before handing them to Select,
// Count, Update, and Delete.
type Op string

// Row is a single stored or to-be-stored record, keyed by logical field
// name (not necessarily the wire name). The document layer applies
// field.Field.ToDB to each value before the Row reaches an adapter.
type Row map[string]any

// NoLimit is the sentinel SelectOptions.Limit value meaning "no limit
// clause at all" (every matching row). It is distinct from the zero value
// so that an explicit Limit of 0 can mean what spec §8.3 requires: zero
// rows, not unbounded.
const NoLimit = -1

// SelectOptions carries the optional clauses of a select. Limit follows
// §8.3's boundary law: NoLimit (-1) means unbounded, 0 means return no
// rows, and any N > 0 bounds the result to at most N rows.
type SelectOptions struct {
	Fields []string
	Limit  int
	Offset int
	Order  []OrderTerm
	Fetch  []string
}

// OrderTerm is one (field, direction) pair of an ORDER BY clause.
type OrderTerm struct {
	Field string
	Desc  bool
}

// Tx is an opaque transaction handle. On backends without server-side
// transactions, BeginTransaction returns a Tx whose Commit/Rollback are
// no-ops, per spec §4.3's documented capability-gated degradation.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ViewSpec is the minimal shape a backend needs to compile a materialized
// view: a name, the canonical source query built by the view engine
// (package view), and backend-specific placement hints.
type ViewSpec struct {
	Name        string
	SourceQuery string
	Engine      string   // columnar: e.g. "SummingMergeTree"
	PartitionBy string   // columnar only
	OrderBy     []string // columnar: explicit or smart-inferred
}

// Adapter is the contract every driver implements. The core never calls a
// native client directly; the adapter is the only seam, per spec §4.5.
type Adapter interface {
	Name() string
	Capabilities() Capabilities

	CreateTable(ctx context.Context, table string, fields []*field.Field, opts TableOptions) error
	DropTable(ctx context.Context, table string, ifExists bool) error

	Insert(ctx context.Context, table string, row Row) (Row, error)
	InsertMany(ctx context.Context, table string, rows []Row) ([]Row, error)

	Select(ctx context.Context, table string, conds []Op, opts SelectOptions) ([]Row, error)
	Count(ctx context.Context, table string, conds []Op) (int64, error)
	Update(ctx context.Context, table string, conds []Op, patch Row) ([]Row, error)
	Delete(ctx context.Context, table string, conds []Op) (int64, error)

	ExecuteRaw(ctx context.Context, text string, params map[string]any) (any, error)

	BuildCondition(fieldName, op string, value any) (Op, error)
	GetFieldType(f *field.Field) string
	FormatValue(value any) string

	BeginTransaction(ctx context.Context) (Tx, error)

	CreateMaterializedView(ctx context.Context, spec ViewSpec) error
	DropMaterializedView(ctx context.Context, name string, ifExists bool) error
	RefreshMaterializedView(ctx context.Context, name string) error
}

// TableOptions carries engine/order/partition/ttl hints for CreateTable,
// consulted by backends that need them (columnar) and ignored by those
// that don't (document/graph, kv).
type TableOptions struct {
	Engine      string
	OrderBy     []string
	PartitionBy string
	TTL         string
	IfNotExists bool
}
