// Package diff compares a desired object payload against the one read from
// the device and reports field-level changes.
package diff

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Kind is the kind of a field change.
type Kind int

const (
	Added Kind = iota
	Removed
	Modified
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "modified"
	}
}

// symbol is the Summary line marker for the kind.
func (k Kind) symbol() string {
	switch k {
	case Added:
		return "+"
	case Removed:
		return "-"
	default:
		return "~"
	}
}

// IgnoredFields are device metadata attributes never reported as changes.
var IgnoredFields = map[string]bool{
	"@admin":     true,
	"@dirtyId":   true,
	"@time":      true,
	"@uuid":      true,
	"@loc":       true,
	"@ptpl":      true,
	"@src":       true,
	"@overrides": true,
}

// FieldChange is one differing top-level field.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue any    `json:"old_value,omitempty"`
	NewValue any    `json:"new_value,omitempty"`
	Kind     Kind   `json:"-"`
}

// ConfigDiff is the set of changes needed to turn actual into desired.
type ConfigDiff struct {
	ObjectType string        `json:"object_type"`
	ObjectName string        `json:"object_name"`
	Changes    []FieldChange `json:"changes"`
}

// Compare diffs desired against actual. Changes are sorted by field.
func Compare(objectType, name string, desired, actual map[string]any) ConfigDiff {
	d := ConfigDiff{ObjectType: objectType, ObjectName: name}

	fields := make(map[string]bool, len(desired)+len(actual))
	for k := range desired {
		fields[k] = true
	}
	for k := range actual {
		fields[k] = true
	}

	for f := range fields {
		if IgnoredFields[f] {
			continue
		}
		want, inDesired := desired[f]
		have, inActual := actual[f]
		switch {
		case inDesired && !inActual:
			d.Changes = append(d.Changes, FieldChange{Field: f, NewValue: want, Kind: Added})
		case !inDesired && inActual:
			d.Changes = append(d.Changes, FieldChange{Field: f, OldValue: have, Kind: Removed})
		case !Equal(want, have):
			d.Changes = append(d.Changes, FieldChange{Field: f, OldValue: have, NewValue: want, Kind: Modified})
		}
	}

	sort.Slice(d.Changes, func(i, j int) bool { return d.Changes[i].Field < d.Changes[j].Field })
	return d
}

// IsIdentical reports whether there are no changes.
func (d ConfigDiff) IsIdentical() bool {
	return len(d.Changes) == 0
}

// Count returns the number of changes of kind k.
func (d ConfigDiff) Count(k Kind) int {
	n := 0
	for _, c := range d.Changes {
		if c.Kind == k {
			n++
		}
	}
	return n
}

// Summary renders one line per change:
//
//	~ field: old → new
//	+ field: new
//	- field: old
func (d ConfigDiff) Summary() string {
	if d.IsIdentical() {
		return "no changes"
	}
	lines := make([]string, 0, len(d.Changes))
	for _, c := range d.Changes {
		switch c.Kind {
		case Added:
			lines = append(lines, fmt.Sprintf("%s %s: %s", c.Kind.symbol(), c.Field, Render(c.NewValue)))
		case Removed:
			lines = append(lines, fmt.Sprintf("%s %s: %s", c.Kind.symbol(), c.Field, Render(c.OldValue)))
		default:
			lines = append(lines, fmt.Sprintf("%s %s: %s → %s", c.Kind.symbol(), c.Field, Render(c.OldValue), Render(c.NewValue)))
		}
	}
	return strings.Join(lines, "\n")
}

var equalOpts = cmp.Options{cmpopts.EquateEmpty()}

// Equal compares two values after normalization: nil equals "", strings
// are trimmed, booleans are yes/no and numbers their decimal text, lists
// are unordered and maps compare key-wise.
func Equal(a, b any) bool {
	return cmp.Equal(normalize(a), normalize(b), equalOpts)
}

// normalize returns a canonical form of v. Lists come back sorted by
// their rendering, so list comparison ignores order but not multiplicity.
func normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case bool:
		if t {
			return "yes"
		}
		return "no"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if IgnoredFields[k] {
				continue
			}
			out[k] = normalize(val)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = normalize(rv.Index(i).Interface())
		}
		sort.Slice(items, func(i, j int) bool { return Render(items[i]) < Render(items[j]) })
		return items
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := fmt.Sprint(iter.Key().Interface())
			if IgnoredFields[k] {
				continue
			}
			out[k] = normalize(iter.Value().Interface())
		}
		return out
	}
	return v
}

// Render formats a value deterministically for summaries.
func Render(v any) string {
	switch t := v.(type) {
	case nil:
		return "<none>"
	case string:
		return t
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + Render(t[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = Render(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Map {
		return Render(normalize(v))
	}
	return fmt.Sprint(v)
}
