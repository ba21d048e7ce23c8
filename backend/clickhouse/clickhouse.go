// Package clickhouse implements the backend.Adapter contract against
// ClickHouse, the columnar analytical store named throughout the spec. DDL
// and predicates are built as plain SQL strings, the same style the
// reference implementation uses over clickhouse-connect.
package clickhouse

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/go-logr/logr"

	"github.com/iristech-systems/quantumgo/backend"
	"github.com/iristech-systems/quantumgo/field"
	"github.com/iristech-systems/quantumgo/qerr"
)

func init() {
	backend.Default.Register(backend.NameClickHouse, func(connCfg map[string]any) (backend.Adapter, error) {
		return dial(connCfg)
	})
}

// Adapter is the ClickHouse-backed implementation of backend.Adapter.
type Adapter struct {
	conn   driver.Conn
	logger logr.Logger
}

// Ping and Close delegate to the underlying driver connection, satisfying
// connection.Conn so the adapter itself can be the pooled resource.
func (a *Adapter) Ping(ctx context.Context) error { return a.conn.Ping(ctx) }
func (a *Adapter) Close() error                   { return a.conn.Close() }

func dial(connCfg map[string]any) (backend.Adapter, error) {
	addr, _ := connCfg["addr"].(string)
	if addr == "" {
		addr = "localhost:9000"
	}
	database, _ := connCfg["database"].(string)
	if database == "" {
		database = "default"
	}
	username, _ := connCfg["username"].(string)
	password, _ := connCfg["password"].(string)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
	})
	if err != nil {
		return nil, qerr.Wrap(qerr.Transport, "clickhouse.dial", err)
	}
	return &Adapter{conn: conn}, nil
}

// WithLogger attaches a structured logger.
func (a *Adapter) WithLogger(logger logr.Logger) *Adapter {
	a.logger = logger
	return a
}

func (a *Adapter) Name() string { return backend.NameClickHouse }

func (a *Adapter) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		Transactions:      false,
		References:        false,
		GraphRelations:    false,
		DirectRecord:      false,
		Explain:           true,
		Indexes:           true,
		FullTextSearch:    false,
		BulkOperations:    true,
		MaterializedViews: true,
	}
}

// CreateTable emits a CREATE TABLE ... ENGINE=... ORDER BY (...) statement,
// choosing a smart ORDER BY when opts.OrderBy is empty, per spec §4.7.2.
func (a *Adapter) CreateTable(ctx context.Context, table string, fields []*field.Field, opts backend.TableOptions) error {
	if opts.Engine == "" {
		return qerr.New(qerr.Schema, "CreateTable", "clickhouse backend requires an engine").WithTable(table)
	}

	orderBy := opts.OrderBy
	if len(orderBy) == 0 {
		inferred, warned := DetermineOrderBy(fields)
		orderBy = inferred
		if warned {
			a.logger.Info("no suitable fields found for ORDER BY; using a synthetic fallback — specify order_by explicitly", "table", table)
		}
	}

	columns := make([]string, 0, len(fields))
	for _, f := range fields {
		colType := a.GetFieldType(f)
		if !f.Required {
			colType = "Nullable(" + colType + ")"
		}
		columns = append(columns, fmt.Sprintf("    `%s` %s", f.Name, colType))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n%s\n)", table, strings.Join(columns, ",\n"))
	fmt.Fprintf(&b, "\nENGINE = %s()", opts.Engine)
	if opts.PartitionBy != "" {
		fmt.Fprintf(&b, "\nPARTITION BY %s", opts.PartitionBy)
	}
	quoted := make([]string, len(orderBy))
	for i, c := range orderBy {
		quoted[i] = "`" + c + "`"
	}
	fmt.Fprintf(&b, "\nORDER BY (%s)", strings.Join(quoted, ", "))
	if opts.TTL != "" {
		fmt.Fprintf(&b, "\nTTL %s", opts.TTL)
	}

	if err := a.exec(ctx, b.String()); err != nil {
		return qerr.Wrap(qerr.Backend, "CreateTable", err).WithTable(table)
	}
	return a.createIndexes(ctx, table, fields)
}

func (a *Adapter) createIndexes(ctx context.Context, table string, fields []*field.Field) error {
	for _, f := range fields {
		for _, idx := range f.Indexes {
			stmt := indexDDL(table, f.Name, idx)
			if stmt == "" {
				continue
			}
			if err := a.exec(ctx, stmt); err != nil {
				a.logger.Info("failed to create index, continuing", "table", table, "field", f.Name, "error", err.Error())
			}
		}
	}
	return nil
}

func indexDDL(table, fieldName string, idx field.IndexSpec) string {
	name := idx.Name
	if name == "" {
		name = fmt.Sprintf("idx_%s_%s", table, fieldName)
	}
	granularity := idx.Granularity
	if granularity == 0 {
		granularity = 3
	}
	var kind string
	switch idx.Kind {
	case field.IndexBloom:
		rate := idx.BloomFPRate
		if rate == 0 {
			rate = 0.01
		}
		kind = fmt.Sprintf("bloom_filter(%v)", rate)
	case field.IndexSet:
		maxValues := idx.MaxSetSize
		if maxValues == 0 {
			maxValues = 100
		}
		kind = fmt.Sprintf("set(%d)", maxValues)
	case field.IndexMinMax:
		kind = "minmax"
	default:
		return ""
	}
	return fmt.Sprintf("ALTER TABLE %s ADD INDEX %s %s TYPE %s GRANULARITY %d", table, name, fieldName, kind, granularity)
}

func (a *Adapter) DropTable(ctx context.Context, table string, ifExists bool) error {
	stmt := "DROP TABLE "
	if ifExists {
		stmt += "IF EXISTS "
	}
	stmt += table
	if err := a.exec(ctx, stmt); err != nil {
		return qerr.Wrap(qerr.Backend, "DropTable", err).WithTable(table)
	}
	return nil
}

func (a *Adapter) Insert(ctx context.Context, table string, row backend.Row) (backend.Row, error) {
	rows, err := a.InsertMany(ctx, table, []backend.Row{row})
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

// InsertMany batches rows into a single native insert, the path the spec
// recommends for columnar backends.
func (a *Adapter) InsertMany(ctx context.Context, table string, rows []backend.Row) ([]backend.Row, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	batch, err := a.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(cols, ", ")))
	if err != nil {
		return nil, qerr.Wrap(qerr.Backend, "InsertMany", err).WithTable(table)
	}
	for _, row := range rows {
		vals := make([]any, len(cols))
		for i, c := range cols {
			vals[i] = row[c]
		}
		if err := batch.Append(vals...); err != nil {
			return nil, qerr.Wrap(qerr.Backend, "InsertMany", err).WithTable(table)
		}
	}
	if err := batch.Send(); err != nil {
		return nil, qerr.Wrap(qerr.Backend, "InsertMany", err).WithTable(table)
	}
	return rows, nil
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
	fmt.Fprintf(&b, " FROM %s", table)
	writeWhere(&b, conds)
	if len(opts.Order) > 0 {
		b.WriteString(" ORDER BY ")
		terms := make([]string, len(opts.Order))
		for i, t := range opts.Order {
			dir := "ASC"
			if t.Desc {
				dir = "DESC"
			}
			terms[i] = "`" + t.Field + "` " + dir
		}
		b.WriteString(strings.Join(terms, ", "))
	}
	if opts.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", opts.Offset)
	}

	rows, err := a.conn.Query(ctx, b.String())
	if err != nil {
		return nil, qerr.Wrap(qerr.Backend, "Select", err).WithTable(table)
	}
	defer rows.Close()
	return scanRows(rows)
}

func (a *Adapter) Count(ctx context.Context, table string, conds []backend.Op) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT count(*) FROM %s", table)
	writeWhere(&b, conds)
	var n int64
	if err := a.conn.QueryRow(ctx, b.String()).Scan(&n); err != nil {
		return 0, qerr.Wrap(qerr.Backend, "Count", err).WithTable(table)
	}
	return n, nil
}

// Update implements the spec §4.5 documented degradation for column stores
// without row-level update: it mutates via ALTER TABLE ... UPDATE (applied
// asynchronously by ClickHouse) and returns the pre-image rows with the
// patch applied in-memory; callers must treat timing accordingly.
func (a *Adapter) Update(ctx context.Context, table string, conds []backend.Op, patch backend.Row) ([]backend.Row, error) {
	preImage, err := a.Select(ctx, table, conds, backend.SelectOptions{Limit: backend.NoLimit})
	if err != nil {
		return nil, err
	}
	if len(preImage) == 0 {
		return nil, nil
	}

	sets := make([]string, 0, len(patch))
	for k, v := range patch {
		sets = append(sets, fmt.Sprintf("`%s` = %s", k, a.FormatValue(v)))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s UPDATE %s", table, strings.Join(sets, ", "))
	writeWhere(&b, conds)
	if err := a.exec(ctx, b.String()); err != nil {
		return nil, qerr.Wrap(qerr.Backend, "Update", err).WithTable(table)
	}

	for _, row := range preImage {
		for k, v := range patch {
			row[k] = v
		}
	}
	return preImage, nil
}

func (a *Adapter) Delete(ctx context.Context, table string, conds []backend.Op) (int64, error) {
	count, err := a.Count(ctx, table, conds)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s DELETE", table)
	writeWhere(&b, conds)
	if err := a.exec(ctx, b.String()); err != nil {
		return 0, qerr.Wrap(qerr.Backend, "Delete", err).WithTable(table)
	}
	return count, nil
}

func (a *Adapter) ExecuteRaw(ctx context.Context, text string, params map[string]any) (any, error) {
	for k, v := range params {
		text = strings.ReplaceAll(text, ":"+k, a.FormatValue(v))
	}
	rows, err := a.conn.Query(ctx, text)
	if err != nil {
		return nil, qerr.Wrap(qerr.Backend, "ExecuteRaw", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func (a *Adapter) BuildCondition(fieldName, op string, value any) (backend.Op, error) {
	lit := a.FormatValue(value)
	switch op {
	case "=", "!=", "<", "<=", ">", ">=":
		return backend.Op(fmt.Sprintf("`%s` %s %s", fieldName, op, lit)), nil
	case "in":
		return backend.Op(fmt.Sprintf("`%s` IN %s", fieldName, lit)), nil
	case "notin":
		return backend.Op(fmt.Sprintf("`%s` NOT IN %s", fieldName, lit)), nil
	case "contains_text":
		s, _ := value.(string)
		return backend.Op(fmt.Sprintf("`%s` LIKE '%%%s%%'", fieldName, escapeLike(s))), nil
	case "contains_array":
		return backend.Op(fmt.Sprintf("has(`%s`, %s)", fieldName, lit)), nil
	case "like":
		return backend.Op(fmt.Sprintf("`%s` LIKE %s", fieldName, lit)), nil
	case "ilike":
		return backend.Op(fmt.Sprintf("`%s` ILIKE %s", fieldName, lit)), nil
	case "isnull":
		return backend.Op(fmt.Sprintf("`%s` IS NULL", fieldName)), nil
	case "isnotnull":
		return backend.Op(fmt.Sprintf("`%s` IS NOT NULL", fieldName)), nil
	case "between":
		lo, hi, err := boundsOf(value)
		if err != nil {
			return "", qerr.Wrap(qerr.Validation, "BuildCondition", err).WithField(fieldName)
		}
		return backend.Op(fmt.Sprintf("`%s` BETWEEN %s AND %s", fieldName, a.FormatValue(lo), a.FormatValue(hi))), nil
	default:
		return "", qerr.New(qerr.Capability, "BuildCondition", "operator not supported on clickhouse").WithField(fieldName)
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
	return f.NativeColumnarType(backend.NameClickHouse)
}

func (a *Adapter) FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "\\'") + "'"
	case time.Time:
		return "'" + v.UTC().Format("2006-01-02 15:04:05.000") + "'"
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = a.FormatValue(e)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer("%", "\\%", "_", "\\_", "'", "\\'")
	return r.Replace(s)
}

// BeginTransaction is a documented no-op: ClickHouse has no server-side
// transactions, per spec §4.3's capability-gated degradation.
func (a *Adapter) BeginTransaction(ctx context.Context) (backend.Tx, error) {
	return noopTx{}, nil
}

type noopTx struct{}

func (noopTx) Commit(ctx context.Context) error   { return nil }
func (noopTx) Rollback(ctx context.Context) error { return nil }

// CreateMaterializedView emits CREATE MATERIALIZED VIEW ... ENGINE=...(...)
// AS <source query>, auto-maintained by the engine, per spec §4.7.
func (a *Adapter) CreateMaterializedView(ctx context.Context, spec backend.ViewSpec) error {
	engine := spec.Engine
	if engine == "" {
		engine = "SummingMergeTree"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE MATERIALIZED VIEW IF NOT EXISTS %s\nENGINE = %s()", spec.Name, engine)
	if spec.PartitionBy != "" {
		fmt.Fprintf(&b, "\nPARTITION BY %s", spec.PartitionBy)
	}
	if len(spec.OrderBy) > 0 {
		quoted := make([]string, len(spec.OrderBy))
		for i, c := range spec.OrderBy {
			quoted[i] = "`" + c + "`"
		}
		fmt.Fprintf(&b, "\nORDER BY (%s)", strings.Join(quoted, ", "))
	}
	fmt.Fprintf(&b, "\nAS %s", spec.SourceQuery)
	if err := a.exec(ctx, b.String()); err != nil {
		return qerr.Wrap(qerr.Backend, "CreateMaterializedView", err)
	}
	return nil
}

func (a *Adapter) DropMaterializedView(ctx context.Context, name string, ifExists bool) error {
	return a.DropTable(ctx, name, ifExists)
}

// RefreshMaterializedView is a no-op: ClickHouse materialized views are
// auto-maintained on every base-table insert, per spec §4.7.
func (a *Adapter) RefreshMaterializedView(ctx context.Context, name string) error { return nil }

func (a *Adapter) exec(ctx context.Context, stmt string) error {
	if a.logger.GetSink() != nil {
		a.logger.V(1).Info("clickhouse exec", "stmt", stmt)
	}
	return a.conn.Exec(ctx, stmt)
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

func scanRows(rows driver.Rows) ([]backend.Row, error) {
	columnTypes := rows.ColumnTypes()
	names := rows.Columns()
	out := []backend.Row{}
	for rows.Next() {
		ptrs := make([]any, len(columnTypes))
		for i, ct := range columnTypes {
			ptrs[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(backend.Row, len(names))
		for i, name := range names {
			row[name] = reflect.ValueOf(ptrs[i]).Elem().Interface()
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
