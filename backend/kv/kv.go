// Package kv implements the backend.Adapter contract against an embedded
// Badger store, providing the key-value backend the spec enumerates at the
// capability level but documents as optional and only sketched by the
// original implementation (it named "Redis" without a finished adapter).
// Badger gives a real, embeddable, ACID-transactional KV engine that needs
// no external service, so it stands in for the sketched adapter here.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/iristech-systems/quantumgo/backend"
	"github.com/iristech-systems/quantumgo/field"
	"github.com/iristech-systems/quantumgo/qerr"
)

func init() {
	backend.Default.Register(backend.NameKV, func(connCfg map[string]any) (backend.Adapter, error) {
		return dial(connCfg)
	})
}

const (
	docInfix = ":doc:"
	idxInfix = ":idx:"
)

// Adapter is the Badger-backed implementation of backend.Adapter. Documents
// are stored JSON-encoded under "<collection>:doc:<id>"; one index entry per
// (field, value) pair is stored under "<collection>:idx:<field>:<value>:<id>"
// with an empty value, giving a sorted-range-scannable secondary index.
type Adapter struct {
	mu      sync.RWMutex
	db      *badger.DB
	logger  logr.Logger
	indexed map[string]map[string]bool // table -> field -> indexed
}

// Ping reports whether the embedded store is still open, satisfying
// connection.Conn so the adapter itself can be the pooled resource. Badger
// has no network round-trip to probe; a closed DB is the only failure mode.
func (a *Adapter) Ping(ctx context.Context) error {
	if a.db.IsClosed() {
		return qerr.New(qerr.Transport, "kv.Ping", "badger store is closed")
	}
	return nil
}

// Close releases the embedded store's file handles.
func (a *Adapter) Close() error { return a.db.Close() }

func dial(connCfg map[string]any) (backend.Adapter, error) {
	dir, _ := connCfg["dir"].(string)
	if dir == "" {
		dir = "./quantumgo-kv"
	}
	inMemory, _ := connCfg["in_memory"].(bool)

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if inMemory {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, qerr.Wrap(qerr.Transport, "kv.dial", err)
	}
	return &Adapter{db: db, indexed: make(map[string]map[string]bool)}, nil
}

// WithLogger attaches a structured logger.
func (a *Adapter) WithLogger(logger logr.Logger) *Adapter {
	a.logger = logger
	return a
}

func (a *Adapter) Name() string { return backend.NameKV }

func (a *Adapter) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		Transactions:      true,
		References:        false,
		GraphRelations:    false,
		DirectRecord:      true,
		Explain:           false,
		Indexes:           true,
		FullTextSearch:    false,
		BulkOperations:    true,
		MaterializedViews: false,
	}
}

func (a *Adapter) CreateTable(ctx context.Context, table string, fields []*field.Field, opts backend.TableOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	fieldIndex := make(map[string]bool)
	for _, f := range fields {
		if len(f.Indexes) > 0 {
			fieldIndex[f.Name] = true
		}
	}
	a.indexed[table] = fieldIndex
	return nil
}

func (a *Adapter) DropTable(ctx context.Context, table string, ifExists bool) error {
	prefix := []byte(table + docInfix)
	idxPrefix := []byte(table + idxInfix)
	err := a.db.Update(func(txn *badger.Txn) error {
		for _, p := range [][]byte{prefix, idxPrefix} {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			var keys [][]byte
			for it.Seek(p); it.ValidForPrefix(p); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			it.Close()
			for _, k := range keys {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return qerr.Wrap(qerr.Backend, "DropTable", err).WithTable(table)
	}
	a.mu.Lock()
	delete(a.indexed, table)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Insert(ctx context.Context, table string, row backend.Row) (backend.Row, error) {
	stored := cloneRow(row)
	id, ok := stored["id"]
	if !ok || id == "" || id == nil {
		id = uuid.New().String()
		stored["id"] = id
	}
	idStr := fmt.Sprint(id)

	blob, err := json.Marshal(stored)
	if err != nil {
		return nil, qerr.Wrap(qerr.Backend, "Insert", err).WithTable(table)
	}

	err = a.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(docKey(table, idStr)), blob); err != nil {
			return err
		}
		return a.indexRowLocked(txn, table, idStr, stored)
	})
	if err != nil {
		return nil, qerr.Wrap(qerr.Backend, "Insert", err).WithTable(table)
	}
	return stored, nil
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

// indexRowLocked must be called within a live txn; it takes a.mu's read
// lock itself just long enough to read the indexed-fields map.
func (a *Adapter) indexRowLocked(txn *badger.Txn, table, id string, row backend.Row) error {
	a.mu.RLock()
	fields := a.indexed[table]
	a.mu.RUnlock()
	for fieldName := range fields {
		v, ok := row[fieldName]
		if !ok {
			continue
		}
		key := idxKey(table, fieldName, fmt.Sprint(v), id)
		if err := txn.Set([]byte(key), nil); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) Select(ctx context.Context, table string, conds []backend.Op, opts backend.SelectOptions) ([]backend.Row, error) {
	if opts.Limit == 0 {
		return nil, nil
	}
	if id, ok := idEquals(conds); ok {
		row, err := a.getByID(table, id)
		if err != nil {
			if qerr.IsKind(err, qerr.NotFound) {
				return nil, nil
			}
			return nil, err
		}
		return []backend.Row{projectRow(row, opts.Fields)}, nil
	}

	rows, err := a.scan(table)
	if err != nil {
		return nil, err
	}
	matched := filterRows(rows, conds)
	if len(opts.Order) > 0 {
		sortRows(matched, opts.Order)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[opts.Offset:]
		}
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
	rows, err := a.scan(table)
	if err != nil {
		return 0, err
	}
	return int64(len(filterRows(rows, conds))), nil
}

func (a *Adapter) Update(ctx context.Context, table string, conds []backend.Op, patch backend.Row) ([]backend.Row, error) {
	rows, err := a.scan(table)
	if err != nil {
		return nil, err
	}
	matched := filterRows(rows, conds)
	out := make([]backend.Row, 0, len(matched))
	for _, r := range matched {
		for k, v := range patch {
			r[k] = v
		}
		stored, err := a.Insert(ctx, table, r) // re-insert is idempotent on id
		if err != nil {
			return out, err
		}
		out = append(out, stored)
	}
	return out, nil
}

func (a *Adapter) Delete(ctx context.Context, table string, conds []backend.Op) (int64, error) {
	rows, err := a.scan(table)
	if err != nil {
		return 0, err
	}
	matched := filterRows(rows, conds)
	err = a.db.Update(func(txn *badger.Txn) error {
		for _, r := range matched {
			id := fmt.Sprint(r["id"])
			if err := txn.Delete([]byte(docKey(table, id))); err != nil {
				return err
			}
			a.mu.RLock()
			indexed := a.indexed[table]
			a.mu.RUnlock()
			for fieldName := range indexed {
				v, ok := r[fieldName]
				if !ok {
					continue
				}
				if err := txn.Delete([]byte(idxKey(table, fieldName, fmt.Sprint(v), id))); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, qerr.Wrap(qerr.Backend, "Delete", err).WithTable(table)
	}
	return int64(len(matched)), nil
}

func (a *Adapter) ExecuteRaw(ctx context.Context, text string, params map[string]any) (any, error) {
	return nil, qerr.New(qerr.Capability, "ExecuteRaw", "kv backend has no native query surface")
}

func (a *Adapter) BuildCondition(fieldName, op string, value any) (backend.Op, error) {
	switch op {
	case "=", "!=", "<", "<=", ">", ">=", "in", "notin", "contains_text", "contains_array", "like", "ilike", "between", "isnull", "isnotnull":
		blob, err := json.Marshal(value)
		if err != nil {
			return "", qerr.Wrap(qerr.Validation, "BuildCondition", err).WithField(fieldName)
		}
		return backend.Op(fmt.Sprintf("%s\x1f%s\x1f%s", fieldName, op, blob)), nil
	default:
		return "", qerr.New(qerr.Capability, "BuildCondition", "operator not supported on kv").WithField(fieldName)
	}
}

func (a *Adapter) GetFieldType(f *field.Field) string { return string(f.PyKind) }

func (a *Adapter) FormatValue(value any) string {
	blob, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(blob)
}

func (a *Adapter) BeginTransaction(ctx context.Context) (backend.Tx, error) {
	return &tx{txn: a.db.NewTransaction(true)}, nil
}

type tx struct{ txn *badger.Txn }

func (t *tx) Commit(ctx context.Context) error   { return t.txn.Commit() }
func (t *tx) Rollback(ctx context.Context) error { t.txn.Discard(); return nil }

func (a *Adapter) CreateMaterializedView(ctx context.Context, spec backend.ViewSpec) error {
	return qerr.New(qerr.Capability, "CreateMaterializedView", "kv backend does not support materialized views")
}

func (a *Adapter) DropMaterializedView(ctx context.Context, name string, ifExists bool) error {
	return qerr.New(qerr.Capability, "DropMaterializedView", "kv backend does not support materialized views")
}

func (a *Adapter) RefreshMaterializedView(ctx context.Context, name string) error {
	return qerr.New(qerr.Capability, "RefreshMaterializedView", "kv backend does not support materialized views")
}

func (a *Adapter) getByID(table, id string) (backend.Row, error) {
	var row backend.Row
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(docKey(table, id)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &row)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, qerr.New(qerr.NotFound, "getByID", "no document with that id").WithTable(table)
	}
	if err != nil {
		return nil, qerr.Wrap(qerr.Backend, "getByID", err).WithTable(table)
	}
	return row, nil
}

func (a *Adapter) scan(table string) ([]backend.Row, error) {
	prefix := []byte(docKey(table, ""))
	var rows []backend.Row
	err := a.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var row backend.Row
				if err := json.Unmarshal(val, &row); err != nil {
					return err
				}
				rows = append(rows, row)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, qerr.Wrap(qerr.Backend, "scan", err).WithTable(table)
	}
	return rows, nil
}

func docKey(table, id string) string { return table + docInfix + id }
func idxKey(table, fieldName, value, id string) string {
	return table + idxInfix + fieldName + ":" + value + ":" + id
}

// idEquals reports whether conds is exactly a single "id = <value>"
// predicate, the fast-path direct key lookup of spec §4.6's operator table.
func idEquals(conds []backend.Op) (string, bool) {
	if len(conds) != 1 {
		return "", false
	}
	fieldName, op, raw, ok := parseCond(conds[0])
	if !ok || fieldName != "id" || op != "=" {
		return "", false
	}
	var v any
	_ = json.Unmarshal([]byte(raw), &v)
	return fmt.Sprint(v), true
}

func parseCond(c backend.Op) (fieldName, op, raw string, ok bool) {
	parts := strings.SplitN(string(c), "\x1f", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func filterRows(rows []backend.Row, conds []backend.Op) []backend.Row {
	var out []backend.Row
	for _, r := range rows {
		if rowMatchesAll(r, conds) {
			out = append(out, r)
		}
	}
	return out
}

func rowMatchesAll(row backend.Row, conds []backend.Op) bool {
	for _, c := range conds {
		fieldName, op, raw, ok := parseCond(c)
		if !ok {
			continue
		}
		var want any
		_ = json.Unmarshal([]byte(raw), &want)
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
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func sortRows(rows []backend.Row, order []backend.OrderTerm) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, term := range order {
			vi, _ := toFloat(rows[i][term.Field])
			vj, _ := toFloat(rows[j][term.Field])
			si := fmt.Sprint(rows[i][term.Field])
			sj := fmt.Sprint(rows[j][term.Field])
			var less, equal bool
			if vi != vj {
				less, equal = vi < vj, false
			} else {
				less, equal = si < sj, si == sj
			}
			if equal {
				continue
			}
			if term.Desc {
				return !less
			}
			return less
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
