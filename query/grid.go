package query

// GridRequest is the generic paginated-list request shape: limit/offset
// paging, free-text search, a sort spec, and an arbitrary filter map.
type GridRequest struct {
	Limit  int
	Offset int
	Search string
	Sort   []SortTerm
	Filter map[string]any
}

// SortTerm is one (field, descending) pair.
type SortTerm struct {
	Field string
	Desc  bool
}

// GridResult is what every grid-style endpoint returns: the total matching
// row count (pre-pagination) and the page of rows actually returned.
type GridResult struct {
	Total int64
	Rows  []map[string]any
}

// DataTablesRequest is the alternate "draw/start/length/search" request
// shape some front-end grid widgets send instead of GridRequest.
type DataTablesRequest struct {
	Draw    int
	Start   int
	Length  int
	Search  map[string]any
	OrderBy []SortTerm
}

// ToGridRequest normalizes a DataTablesRequest into the canonical
// GridRequest shape, per spec §4.6's "variant request format".
func (d DataTablesRequest) ToGridRequest() GridRequest {
	var search string
	if v, ok := d.Search["value"]; ok {
		search, _ = v.(string)
	}
	limit := d.Length
	if limit <= 0 {
		limit = 10
	}
	return GridRequest{
		Limit:  limit,
		Offset: d.Start,
		Search: search,
		Sort:   d.OrderBy,
		Filter: d.Search,
	}
}

// SearchFields, when non-empty, is OR'd together for GridRequest.Search: a
// text-contains predicate against each named field.
func BuildGridExpression(req GridRequest, searchFields []string) *Expression {
	var root Node = And()
	for key, value := range req.Filter {
		if key == "value" || key == "regex" {
			continue // DataTables envelope keys, not real filter fields
		}
		root = And(root, LeafFromKeyword(key, value))
	}
	if req.Search != "" && len(searchFields) > 0 {
		var disjuncts []Node
		for _, f := range searchFields {
			disjuncts = append(disjuncts, Leaf{Field: f, Op: ContainsText, Value: req.Search})
		}
		root = And(root, Or(disjuncts...))
	}
	return NewExpression(root)
}
