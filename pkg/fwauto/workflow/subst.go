package workflow

import (
	"regexp"
	"sort"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_\-]+)\s*\}\}`)

// placeholders returns the distinct parameter names referenced in s.
func placeholders(s string) []string {
	var out []string
	for _, m := range placeholder.FindAllStringSubmatch(s, -1) {
		out = append(out, m[1])
	}
	return out
}

func stepPlaceholders(s Step) []string {
	seen := map[string]bool{}
	add := func(str string) {
		for _, p := range placeholders(str) {
			seen[p] = true
		}
	}
	add(s.ObjectName)
	add(s.Description)
	add(s.Filter)
	for _, a := range s.PartialAdmins {
		add(a)
	}
	walkStrings(s.Payload, add)

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func walkStrings(v any, fn func(string)) {
	switch t := v.(type) {
	case string:
		fn(t)
	case map[string]any:
		for k, val := range t {
			fn(k)
			walkStrings(val, fn)
		}
	case []any:
		for _, item := range t {
			walkStrings(item, fn)
		}
	}
}

// substitute replaces {{param}} in s. Unknown params become "".
func substitute(s string, params map[string]string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		return params[placeholder.FindStringSubmatch(m)[1]]
	})
}

// unsetOnly reports whether s is a single placeholder whose param is unset.
func unsetOnly(s string, params map[string]string) bool {
	m := placeholder.FindStringSubmatch(strings.TrimSpace(s))
	return m != nil && m[0] == strings.TrimSpace(s) && params[m[1]] == ""
}

// substituteValue copies v with placeholders replaced. Map entries and
// list items that consist of a single unset placeholder are dropped, so
// an omitted optional param leaves its field out.
func substituteValue(v any, params map[string]string) (any, bool) {
	switch t := v.(type) {
	case string:
		if unsetOnly(t, params) {
			return nil, false
		}
		return substitute(t, params), true
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if sv, ok := substituteValue(val, params); ok {
				out[substitute(k, params)] = sv
			}
		}
		return out, true
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if sv, ok := substituteValue(item, params); ok {
				out = append(out, sv)
			}
		}
		return out, true
	}
	return v, true
}

func substitutePayload(p map[string]any, params map[string]string) map[string]any {
	if p == nil {
		return nil
	}
	out, _ := substituteValue(p, params)
	return out.(map[string]any)
}
