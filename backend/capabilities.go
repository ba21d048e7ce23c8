package backend

import "github.com/iristech-systems/quantumgo/qerr"

// Capabilities is the declared boolean feature set of a backend, consulted
// by query lowering and the view engine to gate or rewrite operations
// before any I/O, per spec §4.3.
type Capabilities struct {
	Transactions     bool
	References       bool
	GraphRelations   bool
	DirectRecord     bool
	Explain          bool
	Indexes          bool
	FullTextSearch   bool
	BulkOperations   bool
	MaterializedViews bool
}

// Require fails with CapabilityError if the named capability is false.
// op identifies the operation for the resulting error's Op field.
func (c Capabilities) Require(op string, has bool, name string) error {
	if has {
		return nil
	}
	return qerr.New(qerr.Capability, op, "backend does not support "+name)
}

func (c Capabilities) RequireTransactions(op string) error   { return c.Require(op, c.Transactions, "transactions") }
func (c Capabilities) RequireReferences(op string) error     { return c.Require(op, c.References, "references") }
func (c Capabilities) RequireGraphRelations(op string) error { return c.Require(op, c.GraphRelations, "graph relations") }
func (c Capabilities) RequireDirectRecord(op string) error   { return c.Require(op, c.DirectRecord, "direct record access") }
func (c Capabilities) RequireExplain(op string) error        { return c.Require(op, c.Explain, "explain") }
func (c Capabilities) RequireIndexes(op string) error        { return c.Require(op, c.Indexes, "indexes") }
func (c Capabilities) RequireFullTextSearch(op string) error { return c.Require(op, c.FullTextSearch, "full text search") }
func (c Capabilities) RequireBulkOperations(op string) error { return c.Require(op, c.BulkOperations, "bulk operations") }
func (c Capabilities) RequireMaterializedViews(op string) error {
	return c.Require(op, c.MaterializedViews, "materialized views")
}
