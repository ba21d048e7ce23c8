package clickhouse

import (
	"sort"
	"strings"

	"github.com/iristech-systems/quantumgo/field"
)

var timeNameHints = []string{"created", "updated", "collected", "timestamp", "time", "date"}
var categoricalNameHints = []string{"id", "key", "name", "code", "type", "category", "brand", "seller"}

// DetermineOrderBy implements the smart order-by inference of spec §4.7.2:
// ClickHouse requires an explicit ORDER BY, so a table declared without one
// gets one chosen from its required timestamp and categorical fields. The
// second return value reports whether the synthetic last-resort fallback
// fired, so the caller can surface the documented warning.
func DetermineOrderBy(fields []*field.Field) ([]string, bool) {
	type scored struct {
		priority int
		name     string
	}
	var timeFields, categoricalFields []scored
	var requiredFields []string

	for _, f := range fields {
		lower := strings.ToLower(f.Name)

		switch {
		case f.PyKind == field.Timestamp && f.Required:
			priority := 1
			if containsAny(lower, timeNameHints) {
				priority = 0
			}
			timeFields = append(timeFields, scored{priority, f.Name})

		case (f.PyKind == field.Text || f.PyKind == field.LowCardText) && f.Required && containsAny(lower, categoricalNameHints):
			priority := 1
			if f.PyKind == field.LowCardText {
				priority = 0
			}
			categoricalFields = append(categoricalFields, scored{priority, f.Name})

		case f.Required:
			requiredFields = append(requiredFields, f.Name)
		}
	}

	sort.SliceStable(timeFields, func(i, j int) bool { return timeFields[i].priority < timeFields[j].priority })
	sort.SliceStable(categoricalFields, func(i, j int) bool { return categoricalFields[i].priority < categoricalFields[j].priority })

	var order []string
	switch {
	case len(timeFields) > 0:
		order = append(order, timeFields[0].name)
		if len(categoricalFields) > 0 && len(order) < 3 {
			order = append(order, categoricalFields[0].name)
		}
	case len(categoricalFields) > 0:
		for i := 0; i < len(categoricalFields) && i < 2; i++ {
			order = append(order, categoricalFields[i].name)
		}
	case len(requiredFields) > 0:
		order = append(order, requiredFields[0])
	}

	if len(order) > 0 {
		return order, false
	}

	// Last resort: synthetic ordering over the first few declared fields.
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	if len(names) == 0 {
		return []string{"tuple()"}, true
	}
	if len(names) > 3 {
		names = names[:3]
	}
	return names, true
}

func containsAny(s string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}
