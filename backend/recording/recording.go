// Package recording implements an in-memory backend.Adapter used by the
// query, view, and document test suites to assert dirty-tracking,
// capability-gating, and query-equivalence behavior without a live driver.
package recording

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/iristech-systems/quantumgo/backend"
	"github.com/iristech-systems/quantumgo/field"
	"github.com/iristech-systems/quantumgo/qerr"
)

// Adapter is a capability-configurable, fully in-process Adapter. Rows are
// stored as plain maps; a condition is an encoded field/operator/JSON-value
// triple evaluated in process rather than a real dialect, since this
// adapter exists to exercise the core, not to emulate any particular wire
// format.
type Adapter struct {
	mu     sync.Mutex
	caps   backend.Capabilities
	tables map[string][]backend.Row
	seq    atomic.Int64

	// Calls records every method invocation, for assertions in tests that
	// care about call shape (e.g. "update was issued exactly once").
	Calls []string
}

// New constructs a recording adapter with the given capability set.
func New(caps backend.Capabilities) *Adapter {
	return &Adapter{caps: caps, tables: make(map[string][]backend.Row)}
}

func (a *Adapter) Name() string                       { return "recording" }
func (a *Adapter) Capabilities() backend.Capabilities { return a.caps }

// Ping and Close satisfy connection.Conn so a recording.Adapter can stand
// in as a pooled resource in tests.
func (a *Adapter) Ping(ctx context.Context) error { return nil }
func (a *Adapter) Close() error                   { return nil }

func (a *Adapter) record(call string) {
	a.Calls = append(a.Calls, call)
}

func (a *Adapter) CreateTable(ctx context.Context, table string, fields []*field.Field, opts backend.TableOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("CreateTable:" + table)
	if _, ok := a.tables[table]; !ok || !opts.IfNotExists {
		a.tables[table] = []backend.Row{}
	}
	return nil
}

func (a *Adapter) DropTable(ctx context.Context, table string, ifExists bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("DropTable:" + table)
	if _, ok := a.tables[table]; !ok && !ifExists {
		return qerr.New(qerr.NotFound, "DropTable", "table "+table+" does not exist")
	}
	delete(a.tables, table)
	return nil
}

func (a *Adapter) Insert(ctx context.Context, table string, row backend.Row) (backend.Row, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("Insert:" + table)
	stored := cloneRow(row)
	if _, ok := stored["id"]; !ok {
		stored["id"] = strconv.FormatInt(a.seq.Add(1), 10)
	}
	a.tables[table] = append(a.tables[table], stored)
	return cloneRow(stored), nil
}

func (a *Adapter) InsertMany(ctx context.Context, table string, rows []backend.Row) ([]backend.Row, error) {
	if err := a.caps.RequireBulkOperations("InsertMany"); err != nil {
		return nil, err
	}
	out := make([]backend.Row, 0, len(rows))
	for _, r := range rows {
		stored, err := a.Insert(ctx, table, r)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

func (a *Adapter) Select(ctx context.Context, table string, conds []backend.Op, opts backend.SelectOptions) ([]backend.Row, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("Select:" + table)

	if opts.Limit == 0 {
		return nil, nil
	}
	matched := a.matchLocked(table, conds)
	if len(opts.Order) > 0 {
		sortRows(matched, opts.Order)
	}
	if opts.Offset > 0 && opts.Offset < len(matched) {
		matched = matched[opts.Offset:]
	} else if opts.Offset >= len(matched) {
		matched = nil
	}
	if opts.Limit > 0 && opts.Limit < len(matched) {
		matched = matched[:opts.Limit]
	}
	out := make([]backend.Row, len(matched))
	for i, r := range matched {
		out[i] = projectRow(r, opts.Fields)
	}
	return out, nil
}

func (a *Adapter) Count(ctx context.Context, table string, conds []backend.Op) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("Count:" + table)
	return int64(len(a.matchLocked(table, conds))), nil
}

func (a *Adapter) Update(ctx context.Context, table string, conds []backend.Op, patch backend.Row) ([]backend.Row, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("Update:" + table)
	matched := a.matchLocked(table, conds)
	for _, r := range matched {
		for k, v := range patch {
			r[k] = v
		}
	}
	out := make([]backend.Row, len(matched))
	for i, r := range matched {
		out[i] = cloneRow(r)
	}
	return out, nil
}

func (a *Adapter) Delete(ctx context.Context, table string, conds []backend.Op) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("Delete:" + table)
	rows := a.tables[table]
	kept := rows[:0]
	var deleted int64
	for _, r := range rows {
		if rowMatches(r, conds) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	a.tables[table] = kept
	return deleted, nil
}

func (a *Adapter) ExecuteRaw(ctx context.Context, text string, params map[string]any) (any, error) {
	a.record("ExecuteRaw:" + text)
	return text, nil
}

// BuildCondition JSON-encodes the operand so rowMatches can evaluate every
// operator (including in/notin/between, whose operands are slices) rather
// than just equality, mirroring backend/kv's condition encoding.
func (a *Adapter) BuildCondition(fieldName, op string, value any) (backend.Op, error) {
	blob, err := json.Marshal(value)
	if err != nil {
		return "", qerr.Wrap(qerr.Validation, "BuildCondition", err).WithField(fieldName)
	}
	return backend.Op(fmt.Sprintf("%s\x1f%s\x1f%s", fieldName, op, blob)), nil
}

func (a *Adapter) GetFieldType(f *field.Field) string { return string(f.PyKind) }

func (a *Adapter) FormatValue(value any) string {
	if s, ok := value.(string); ok {
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}
	return fmt.Sprintf("%v", value)
}

func (a *Adapter) BeginTransaction(ctx context.Context) (backend.Tx, error) {
	if err := a.caps.RequireTransactions("BeginTransaction"); err != nil {
		return noopTx{}, nil
	}
	return noopTx{}, nil
}

func (a *Adapter) CreateMaterializedView(ctx context.Context, spec backend.ViewSpec) error {
	if err := a.caps.RequireMaterializedViews("CreateMaterializedView"); err != nil {
		return err
	}
	a.record("CreateMaterializedView:" + spec.Name)
	return nil
}

func (a *Adapter) DropMaterializedView(ctx context.Context, name string, ifExists bool) error {
	a.record("DropMaterializedView:" + name)
	return nil
}

func (a *Adapter) RefreshMaterializedView(ctx context.Context, name string) error {
	a.record("RefreshMaterializedView:" + name)
	return nil
}

// matchLocked must be called with a.mu held.
func (a *Adapter) matchLocked(table string, conds []backend.Op) []backend.Row {
	var out []backend.Row
	for _, r := range a.tables[table] {
		if rowMatches(r, conds) {
			out = append(out, r)
		}
	}
	return out
}

// rowMatches interprets each Op as the field\x1fop\x1fjson(value) triple
// BuildCondition produces, evaluating the full operator vocabulary rather
// than equality alone.
func rowMatches(row backend.Row, conds []backend.Op) bool {
	for _, c := range conds {
		parts := strings.SplitN(string(c), "\x1f", 3)
		if len(parts) != 3 {
			continue
		}
		fieldName, op := parts[0], parts[1]
		var want any
		_ = json.Unmarshal([]byte(parts[2]), &want)
		if !evalOp(row[fieldName], op, want) {
			return false
		}
	}
	return true
}

func evalOp(got any, op string, want any) bool {
	switch op {
	case "=":
		return fmt.Sprint(got) == fmt.Sprint(want)
	case "!=":
		return fmt.Sprint(got) != fmt.Sprint(want)
	case "<", "<=", ">", ">=":
		gf, gok := toFloat(got)
		wf, wok := toFloat(want)
		if !gok || !wok {
			return false
		}
		switch op {
		case "<":
			return gf < wf
		case "<=":
			return gf <= wf
		case ">":
			return gf > wf
		default:
			return gf >= wf
		}
	case "in":
		return membership(want, got)
	case "notin":
		return !membership(want, got)
	case "contains_text":
		gs, _ := got.(string)
		ws, _ := want.(string)
		return strings.Contains(gs, ws)
	case "contains_array":
		return membership(got, want)
	case "like", "ilike":
		gs := fmt.Sprint(got)
		ws := fmt.Sprint(want)
		if op == "ilike" {
			gs, ws = strings.ToLower(gs), strings.ToLower(ws)
		}
		return strings.Contains(gs, strings.Trim(ws, "%"))
	case "between":
		bounds, ok := want.([]any)
		if !ok || len(bounds) != 2 {
			return false
		}
		gf, gok := toFloat(got)
		lo, lok := toFloat(bounds[0])
		hi, hok := toFloat(bounds[1])
		return gok && lok && hok && gf >= lo && gf <= hi
	case "isnull":
		return got == nil
	case "isnotnull":
		return got != nil
	default:
		return false
	}
}

func membership(collection, item any) bool {
	arr, ok := collection.([]any)
	if !ok {
		return false
	}
	for _, c := range arr {
		if fmt.Sprint(c) == fmt.Sprint(item) {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func sortRows(rows []backend.Row, order []backend.OrderTerm) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, term := range order {
			vi := fmt.Sprintf("%v", rows[i][term.Field])
			vj := fmt.Sprintf("%v", rows[j][term.Field])
			if vi == vj {
				continue
			}
			if term.Desc {
				return vi > vj
			}
			return vi < vj
		}
		return false
	})
}

func projectRow(row backend.Row, fields []string) backend.Row {
	if len(fields) == 0 {
		return cloneRow(row)
	}
	out := make(backend.Row, len(fields))
	for _, f := range fields {
		out[f] = row[f]
	}
	return out
}

func cloneRow(row backend.Row) backend.Row {
	out := make(backend.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

type noopTx struct{}

func (noopTx) Commit(ctx context.Context) error   { return nil }
func (noopTx) Rollback(ctx context.Context) error { return nil }
