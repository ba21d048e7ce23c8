// Package surrealdb implements the backend.Adapter contract (spec
// component C5) against SurrealDB, providing the document/graph store
// named throughout the spec. Schema DDL and predicates are built as plain
// SurrealQL strings and executed through the driver's raw Query, the same
// style the reference storage layers in the retrieval pack use for their
// own embedded-mode migrations.
package surrealdb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	sdb "github.com/surrealdb/surrealdb.go"

	"github.com/iristech-systems/quantumgo/backend"
	"github.com/iristech-systems/quantumgo/field"
	"github.com/iristech-systems/quantumgo/qerr"
)

func init() {
	backend.Default.Register(backend.NameSurrealDB, func(connCfg map[string]any) (backend.Adapter, error) {
		return dial(connCfg)
	})
}

// Adapter is the SurrealDB-backed implementation of backend.Adapter.
type Adapter struct {
	db     *sdb.DB
	logger logr.Logger
}

// Ping issues a cheap liveness query, satisfying connection.Conn so the
// adapter itself can be the pooled resource.
func (a *Adapter) Ping(ctx context.Context) error {
	_, err := a.query(ctx, "RETURN 1;", nil)
	if err != nil {
		return qerr.Wrap(qerr.Transport, "surrealdb.Ping", err)
	}
	return nil
}

// Close releases the underlying websocket connection.
func (a *Adapter) Close() error {
	return a.db.Close()
}

func dial(connCfg map[string]any) (backend.Adapter, error) {
	url, _ := connCfg["url"].(string)
	if url == "" {
		url = "ws://localhost:8000/rpc"
	}
	ns, _ := connCfg["namespace"].(string)
	database, _ := connCfg["database"].(string)
	if ns == "" {
		ns = "quantumgo"
	}
	if database == "" {
		database = "quantumgo"
	}

	db, err := sdb.New(url)
	if err != nil {
		return nil, qerr.Wrap(qerr.Transport, "surrealdb.dial", err)
	}
	if user, ok := connCfg["username"].(string); ok && user != "" {
		pass, _ := connCfg["password"].(string)
		if _, err := db.Signin(map[string]any{"user": user, "pass": pass}); err != nil {
			return nil, qerr.Wrap(qerr.Transport, "surrealdb.signin", err)
		}
	}
	if _, err := db.Use(ns, database); err != nil {
		return nil, qerr.Wrap(qerr.Transport, "surrealdb.use", err)
	}
	return &Adapter{db: db}, nil
}

// WithLogger attaches a structured logger, matching the teacher's
// functional-options-lite style of post-construction configuration.
func (a *Adapter) WithLogger(logger logr.Logger) *Adapter {
	a.logger = logger
	return a
}

func (a *Adapter) Name() string { return backend.NameSurrealDB }

func (a *Adapter) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		Transactions:      true,
		References:        true,
		GraphRelations:    true,
		DirectRecord:      true,
		Explain:           true,
		Indexes:           true,
		FullTextSearch:    true,
		BulkOperations:    true,
		MaterializedViews: true,
	}
}

func (a *Adapter) CreateTable(ctx context.Context, table string, fields []*field.Field, opts backend.TableOptions) error {
	var b strings.Builder
	fmt.Fprintf(&b, "DEFINE TABLE %s SCHEMAFULL", table)
	if opts.IfNotExists {
		b.WriteString(" IF NOT EXISTS")
	}
	b.WriteString(";")
	for _, f := range fields {
		fieldType := a.GetFieldType(f)
		if !f.Required {
			fieldType = "option<" + fieldType + ">"
		}
		fmt.Fprintf(&b, " DEFINE FIELD %s ON %s TYPE %s;", f.Name, table, fieldType)
		for _, idx := range f.Indexes {
			unique := ""
			if idx.Unique {
				unique = " UNIQUE"
			}
			name := idx.Name
			if name == "" {
				name = table + "_" + f.Name + "_idx"
			}
			fmt.Fprintf(&b, " DEFINE INDEX %s ON %s FIELDS %s%s;", name, table, f.Name, unique)
		}
	}
	_, err := a.query(ctx, b.String(), nil)
	if err != nil {
		return qerr.Wrap(qerr.Backend, "CreateTable", err).WithTable(table)
	}
	return nil
}

func (a *Adapter) DropTable(ctx context.Context, table string, ifExists bool) error {
	stmt := fmt.Sprintf("REMOVE TABLE %s", table)
	if ifExists {
		stmt += " IF EXISTS"
	}
	_, err := a.query(ctx, stmt, nil)
	if err != nil {
		return qerr.Wrap(qerr.Backend, "DropTable", err).WithTable(table)
	}
	return nil
}

func (a *Adapter) Insert(ctx context.Context, table string, row backend.Row) (backend.Row, error) {
	result, err := a.query(ctx, fmt.Sprintf("CREATE %s CONTENT $content", table), map[string]any{"content": row})
	if err != nil {
		return nil, qerr.Wrap(qerr.Backend, "Insert", err).WithTable(table)
	}
	rows := asRows(result)
	if len(rows) == 0 {
		return nil, qerr.New(qerr.Backend, "Insert", "create returned no row").WithTable(table)
	}
	return rows[0], nil
}

func (a *Adapter) InsertMany(ctx context.Context, table string, rows []backend.Row) ([]backend.Row, error) {
	out := make([]backend.Row, 0, len(rows))
	for _, r := range rows {
		stored, err := a.Insert(ctx, table, r)
		if err != nil {
			return out, err
		}
		out = append(out, stored)
	}
	return out, nil
}

func (a *Adapter) Select(ctx context.Context, table string, conds []backend.Op, opts backend.SelectOptions) ([]backend.Row, error) {
	if opts.Limit == 0 {
		return nil, nil
	}
	var b strings.Builder
	b.WriteString("SELECT ")
	if len(opts.Fields) > 0 {
		b.WriteString(strings.Join(opts.Fields, ", "))
	} else {
		b.WriteString("*")
	}
	for _, f := range opts.Fetch {
		fmt.Fprintf(&b, ", ->%s.* AS %s", f, f)
	}
	fmt.Fprintf(&b, " FROM %s", table)
	writeWhere(&b, conds)
	if len(opts.Fetch) > 0 {
		fmt.Fprintf(&b, " FETCH %s", strings.Join(opts.Fetch, ", "))
	}
	if len(opts.Order) > 0 {
		b.WriteString(" ORDER BY ")
		terms := make([]string, len(opts.Order))
		for i, t := range opts.Order {
			dir := "ASC"
			if t.Desc {
				dir = "DESC"
			}
			terms[i] = t.Field + " " + dir
		}
		b.WriteString(strings.Join(terms, ", "))
	}
	if opts.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		fmt.Fprintf(&b, " START %d", opts.Offset)
	}

	result, err := a.query(ctx, b.String(), nil)
	if err != nil {
		return nil, qerr.Wrap(qerr.Backend, "Select", err).WithTable(table)
	}
	return asRows(result), nil
}

func (a *Adapter) Count(ctx context.Context, table string, conds []backend.Op) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT count() FROM %s", table)
	writeWhere(&b, conds)
	b.WriteString(" GROUP ALL")
	result, err := a.query(ctx, b.String(), nil)
	if err != nil {
		return 0, qerr.Wrap(qerr.Backend, "Count", err).WithTable(table)
	}
	rows := asRows(result)
	if len(rows) == 0 {
		return 0, nil
	}
	return toInt64(rows[0]["count"]), nil
}

func (a *Adapter) Update(ctx context.Context, table string, conds []backend.Op, patch backend.Row) ([]backend.Row, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s MERGE $patch", table)
	writeWhere(&b, conds)
	result, err := a.query(ctx, b.String(), map[string]any{"patch": patch})
	if err != nil {
		return nil, qerr.Wrap(qerr.Backend, "Update", err).WithTable(table)
	}
	return asRows(result), nil
}

func (a *Adapter) Delete(ctx context.Context, table string, conds []backend.Op) (int64, error) {
	before, err := a.Count(ctx, table, conds)
	if err != nil {
		return 0, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "DELETE %s", table)
	writeWhere(&b, conds)
	if _, err := a.query(ctx, b.String(), nil); err != nil {
		return 0, qerr.Wrap(qerr.Backend, "Delete", err).WithTable(table)
	}
	return before, nil
}

func (a *Adapter) ExecuteRaw(ctx context.Context, text string, params map[string]any) (any, error) {
	result, err := a.query(ctx, text, params)
	if err != nil {
		return nil, qerr.Wrap(qerr.Backend, "ExecuteRaw", err)
	}
	return result, nil
}

func (a *Adapter) BuildCondition(field, op string, value any) (backend.Op, error) {
	lit := a.FormatValue(value)
	switch op {
	case "=", "!=", "<", "<=", ">", ">=":
		return backend.Op(fmt.Sprintf("%s %s %s", field, op, lit)), nil
	case "in":
		return backend.Op(fmt.Sprintf("%s INSIDE %s", field, lit)), nil
	case "notin":
		return backend.Op(fmt.Sprintf("%s NOTINSIDE %s", field, lit)), nil
	case "contains_text":
		return backend.Op(fmt.Sprintf("string::contains(%s, %s)", field, lit)), nil
	case "contains_array":
		return backend.Op(fmt.Sprintf("%s INSIDE %s", lit, field)), nil
	case "like":
		return backend.Op(fmt.Sprintf("%s ~ %s", field, lit)), nil
	case "ilike":
		return backend.Op(fmt.Sprintf("string::lowercase(%s) ~ string::lowercase(%s)", field, lit)), nil
	case "isnull":
		return backend.Op(field + " = NONE"), nil
	case "isnotnull":
		return backend.Op(field + " != NONE"), nil
	case "between":
		lo, hi, err := boundsOf(value)
		if err != nil {
			return "", qerr.Wrap(qerr.Validation, "BuildCondition", err).WithField(field)
		}
		return backend.Op(fmt.Sprintf("(%s >= %s AND %s <= %s)", field, a.FormatValue(lo), field, a.FormatValue(hi))), nil
	default:
		return "", qerr.New(qerr.Capability, "BuildCondition", "operator not supported on surrealdb").WithField(field)
	}
}

// boundsOf extracts the two-element [low, high] pair a between leaf carries.
func boundsOf(value any) (lo, hi any, err error) {
	v, ok := value.([]any)
	if !ok || len(v) != 2 {
		return nil, nil, fmt.Errorf("between requires a two-element [low, high] value, got %T", value)
	}
	return v[0], v[1], nil
}

func (a *Adapter) GetFieldType(f *field.Field) string {
	switch f.PyKind {
	case field.Text, field.LowCardText, field.FixedText, field.Enum, field.Compressed, field.Identifier:
		return "string"
	case field.Integer:
		return "int"
	case field.Floating:
		return "float"
	case field.Decimal:
		return "decimal"
	case field.Boolean:
		return "bool"
	case field.Timestamp:
		return "datetime"
	case field.UUID:
		return "string"
	case field.Mapping:
		return "object"
	case field.Sequence, field.TypedArray:
		return "array"
	case field.Reference:
		if f.ReferentClass != "" {
			return "record<" + f.ReferentClass + ">"
		}
		return "record"
	default:
		return "string"
	}
}

func (a *Adapter) FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "NONE"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "\\'") + "'"
	case time.Time:
		return "d'" + v.UTC().Format(time.RFC3339Nano) + "'"
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = a.FormatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (a *Adapter) BeginTransaction(ctx context.Context) (backend.Tx, error) {
	if _, err := a.query(ctx, "BEGIN TRANSACTION;", nil); err != nil {
		return nil, qerr.Wrap(qerr.Backend, "BeginTransaction", err)
	}
	return &tx{a: a}, nil
}

type tx struct{ a *Adapter }

func (t *tx) Commit(ctx context.Context) error {
	_, err := t.a.query(ctx, "COMMIT TRANSACTION;", nil)
	return err
}

func (t *tx) Rollback(ctx context.Context) error {
	_, err := t.a.query(ctx, "CANCEL TRANSACTION;", nil)
	return err
}

func (a *Adapter) CreateMaterializedView(ctx context.Context, spec backend.ViewSpec) error {
	stmt := fmt.Sprintf("DEFINE TABLE %s AS %s;", spec.Name, spec.SourceQuery)
	if _, err := a.query(ctx, stmt, nil); err != nil {
		return qerr.Wrap(qerr.Backend, "CreateMaterializedView", err)
	}
	return nil
}

func (a *Adapter) DropMaterializedView(ctx context.Context, name string, ifExists bool) error {
	return a.DropTable(ctx, name, ifExists)
}

// RefreshMaterializedView is a no-op: SurrealDB DEFINE TABLE ... AS views
// are queried live, per spec §4.7's "store with declarative view tables".
func (a *Adapter) RefreshMaterializedView(ctx context.Context, name string) error { return nil }

func (a *Adapter) query(ctx context.Context, stmt string, vars map[string]any) (any, error) {
	if a.logger.GetSink() != nil {
		a.logger.V(1).Info("surrealdb query", "stmt", stmt)
	}
	return a.db.Query(stmt, vars)
}

func writeWhere(b *strings.Builder, conds []backend.Op) {
	if len(conds) == 0 {
		return
	}
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = string(c)
	}
	fmt.Fprintf(b, " WHERE %s", strings.Join(parts, " AND "))
}

func asRows(result any) []backend.Row {
	switch v := result.(type) {
	case []map[string]any:
		out := make([]backend.Row, len(v))
		for i, m := range v {
			out[i] = backend.Row(m)
		}
		return out
	case []any:
		out := make([]backend.Row, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, backend.Row(m))
			}
		}
		return out
	case map[string]any:
		return []backend.Row{backend.Row(v)}
	default:
		return nil
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
