package quantumgo

import (
	"github.com/go-logr/logr"

	"github.com/iristech-systems/quantumgo/backend"
	"github.com/iristech-systems/quantumgo/field"
	"github.com/iristech-systems/quantumgo/qerr"
)

// Schema is a document class's declared shape: its fields, by logical name,
// plus whichever of them carry a uniqueness constraint for upsert-by-unique
// resolution. It implements both query.FieldResolver and view.FieldResolver.
type Schema struct {
	Name       string
	Collection string
	fields     []*field.Field
	byName     map[string]*field.Field
	unique     []*field.Field
}

// NewSchema declares a document class named name, backed by collection
// (table/class name at the store), with the given fields.
func NewSchema(name, collection string, fields ...*field.Field) *Schema {
	s := &Schema{Name: name, Collection: collection, fields: fields, byName: make(map[string]*field.Field, len(fields))}
	for _, f := range fields {
		s.byName[f.Name] = f
		for _, idx := range f.Indexes {
			if idx.Unique {
				s.unique = append(s.unique, f)
				break
			}
		}
	}
	return s
}

// ResolveField looks up a declared field by logical name.
func (s *Schema) ResolveField(name string) (*field.Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// Fields returns the schema's declared fields in declaration order.
func (s *Schema) Fields() []*field.Field { return s.fields }

// Meta carries the per-class physical placement hints a columnar backend
// needs and every other backend ignores, plus which connection alias the
// class is routed through.
type Meta struct {
	BackendAlias string
	Engine       string
	PartitionBy  string
	TTL          string
	OrderBy      []string
}

func (m Meta) tableOptions() backend.TableOptions {
	return backend.TableOptions{
		Engine:      m.Engine,
		PartitionBy: m.PartitionBy,
		TTL:         m.TTL,
		OrderBy:     m.OrderBy,
		IfNotExists: true,
	}
}

// Instance is one in-memory row of a document class: validated field values
// plus dirty-tracking so Save only writes what actually changed, per spec
// §6.1's save/to_db/from_db contract.
type Instance struct {
	schema  *Schema
	values  map[string]any
	changed map[string]bool
	saved   bool
}

// NewInstance builds an unsaved Instance from a set of initial field values,
// applying field.Validate (and therefore defaults) to every declared field.
func NewInstance(schema *Schema, values map[string]any) (*Instance, error) {
	inst := &Instance{schema: schema, values: make(map[string]any, len(schema.fields)), changed: make(map[string]bool)}
	for _, f := range schema.fields {
		raw, ok := values[f.Name]
		if !ok {
			raw = field.Missing
		}
		v, err := f.Validate(raw)
		if err != nil {
			return nil, err
		}
		inst.values[f.Name] = v
		if ok {
			inst.changed[f.Name] = true
		}
	}
	return inst, nil
}

// Get returns the current in-memory value of a field.
func (i *Instance) Get(name string) any { return i.values[name] }

// Set validates and assigns a new value, marking the field dirty.
func (i *Instance) Set(name string, value any) error {
	f, ok := i.schema.ResolveField(name)
	if !ok {
		return qerr.New(qerr.Validation, "Instance.Set", "unknown field").WithField(name)
	}
	v, err := f.Validate(value)
	if err != nil {
		return err
	}
	i.values[name] = v
	i.changed[name] = true
	return nil
}

// ID returns the instance's identifier field value, or nil if unset.
func (i *Instance) ID() any { return i.values["id"] }

// IsSaved reports whether this instance has ever been written to a store.
func (i *Instance) IsSaved() bool { return i.saved }

// IsDirty reports whether any field has changed since the last save/refresh.
func (i *Instance) IsDirty() bool { return len(i.changed) > 0 }

// ToDB renders every declared field's current value into a backend.Row,
// delegating per field to field.Field.ToDB for the resolved backend, per
// spec §4.2's to_db(). Identifier generation, where the backend doesn't
// assign one, is the adapter's responsibility (Insert returns the assigned
// row).
func (i *Instance) ToDB(backendName string, logger logr.Logger) (backend.Row, error) {
	row := make(backend.Row, len(i.values))
	for k, v := range i.values {
		if v == nil {
			continue // let the backend assign unset fields (notably id)
		}
		f, ok := i.schema.ResolveField(k)
		if !ok {
			row[k] = v
			continue
		}
		wire, err := f.ToDB(v, backendName, logger)
		if err != nil {
			return nil, qerr.Wrap(qerr.Validation, "Instance.ToDB", err).WithField(k)
		}
		row[k] = wire
	}
	return row, nil
}

// changedRow is ToDB restricted to dirty fields, used by Save's update path
// so an Update patch only touches what actually changed.
func (i *Instance) changedRow(backendName string, logger logr.Logger) (backend.Row, error) {
	row := make(backend.Row, len(i.changed))
	for name := range i.changed {
		v := i.values[name]
		if v == nil {
			continue
		}
		f, ok := i.schema.ResolveField(name)
		if !ok {
			row[name] = v
			continue
		}
		wire, err := f.ToDB(v, backendName, logger)
		if err != nil {
			return nil, qerr.Wrap(qerr.Validation, "Instance.changedRow", err).WithField(name)
		}
		row[name] = wire
	}
	return row, nil
}

// FromDB populates the instance from a row returned by a backend, delegating
// per field to field.Field.FromDB for the resolved backend, clearing
// dirty-tracking and marking the instance saved, per spec §4.2's from_db().
func (i *Instance) FromDB(row backend.Row, backendName string) error {
	for k, v := range row {
		f, ok := i.schema.ResolveField(k)
		if !ok {
			i.values[k] = v
			continue
		}
		native, err := f.FromDB(v, backendName)
		if err != nil {
			return qerr.Wrap(qerr.Validation, "Instance.FromDB", err).WithField(k)
		}
		i.values[k] = native
	}
	i.changed = make(map[string]bool)
	i.saved = true
	return nil
}

// uniqueFilter builds the AND-of-equalities over the schema's unique fields
// that currently have a value, grounding Save's upsert-by-unique-constraint
// path. Returns ok=false when no unique field has a value yet.
func (i *Instance) uniqueFilter() (map[string]any, bool) {
	if len(i.schema.unique) == 0 {
		return nil, false
	}
	out := make(map[string]any, len(i.schema.unique))
	for _, f := range i.schema.unique {
		v, ok := i.values[f.Name]
		if !ok || v == nil {
			return nil, false
		}
		out[f.Name] = v
	}
	return out, true
}
