package view

import (
	"fmt"

	"github.com/iristech-systems/quantumgo/backend"
	"github.com/iristech-systems/quantumgo/qerr"
)

// Category is the backend family a view's canonical query is rewritten for,
// per spec §4.7.1's "per-backend rewrites" table.
type Category string

const (
	CategoryColumnar Category = "columnar"
	CategoryDocument Category = "document"
)

// CategoryFor classifies a registered backend name, or reports false for a
// backend with no view story at all (e.g. the kv backend).
func CategoryFor(backendName string) (Category, bool) {
	switch backendName {
	case backend.NameClickHouse:
		return CategoryColumnar, true
	case backend.NameSurrealDB:
		return CategoryDocument, true
	default:
		return "", false
	}
}

// funcDef is a portable function's per-category rewrite template. Templates
// use fmt verbs against the function's arguments in order, except Has,
// which is special-cased below because the document form reverses them.
type funcDef struct {
	columnar string
	document string
}

// portable is the function dialect of spec §4.7.1.
var portable = map[string]funcDef{
	"Count":         {"count(%s)", "count(%s)"},
	"Sum":           {"sum(%s)", "math::sum(%s)"},
	"Avg":           {"avg(%s)", "math::mean(%s)"},
	"Min":           {"min(%s)", "math::min(%s)"},
	"Max":           {"max(%s)", "math::max(%s)"},
	"CountDistinct": {"uniq(%s)", "count(array::distinct(%s))"},
	"ToDate":        {"toDate(%s)", "time::day(%s)"},
	"ToYearMonth":   {"toYYYYMM(%s)", "time::format(%s,'%%Y%%m')"},
	"Has":           {"has(%s, %s)", "%s INSIDE %s"},
	"Length":        {"length(%s)", "string::length(%s)"},
	"Lower":         {"lower(%s)", "string::lowercase(%s)"},
	"Upper":         {"upper(%s)", "string::uppercase(%s)"},
	"Round":         {"round(%s, %s)", "math::round(%s, %s)"},
}

// Rewrite translates a portable function call into cat's native syntax.
// An fn absent from the dialect, or a cat without views at all, fails with
// CapabilityError — always at view-compile time, never at query time, per
// spec §4.7.1's "any function absent on a given backend fails... never at
// runtime".
func Rewrite(fn string, args []string, cat Category) (string, error) {
	def, ok := portable[fn]
	if !ok {
		return "", qerr.New(qerr.Capability, "view.Rewrite", "function has no rewrite in the portable dialect").WithField(fn)
	}
	if cat != CategoryColumnar && cat != CategoryDocument {
		return "", qerr.New(qerr.Capability, "view.Rewrite", "backend category has no view dialect").WithField(fn)
	}
	if fn == "Has" {
		if len(args) != 2 {
			return "", qerr.New(qerr.Validation, "view.Rewrite", "Has takes exactly two arguments").WithField(fn)
		}
		if cat == CategoryColumnar {
			return fmt.Sprintf(def.columnar, args[0], args[1]), nil
		}
		return fmt.Sprintf(def.document, args[1], args[0]), nil
	}
	tmpl := def.columnar
	if cat == CategoryDocument {
		tmpl = def.document
	}
	anyArgs := make([]any, len(args))
	for i, a := range args {
		anyArgs[i] = a
	}
	return fmt.Sprintf(tmpl, anyArgs...), nil
}
