package panos

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// EncodeEntry serializes a payload into an <entry name="..."> element.
//
// Scalars become text elements (bools as yes/no), lists become <member>
// children, lists of maps become <entry> children named by their "name" or
// "@name" key, maps nest, and "@"-prefixed keys become attributes.
func EncodeEntry(name string, payload map[string]any) (string, error) {
	doc := etree.NewDocument()
	root := doc.CreateElement("entry")
	root.CreateAttr("name", name)
	if err := encodeMap(root, payload); err != nil {
		return "", err
	}
	return doc.WriteToString()
}

func encodeMap(parent *etree.Element, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := m[k]
		if strings.HasPrefix(k, "@") {
			parent.CreateAttr(strings.TrimPrefix(k, "@"), scalar(v))
			continue
		}
		if err := encodeValue(parent.CreateElement(k), v); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
	}
	return nil
}

func encodeValue(el *etree.Element, v any) error {
	switch val := v.(type) {
	case nil:
	case map[string]any:
		return encodeMap(el, val)
	case []string:
		for _, s := range val {
			el.CreateElement("member").SetText(s)
		}
	case []any:
		for i, item := range val {
			if m, ok := item.(map[string]any); ok {
				if err := encodeListEntry(el, m); err != nil {
					return fmt.Errorf("[%d]: %w", i, err)
				}
				continue
			}
			el.CreateElement("member").SetText(scalar(item))
		}
	case []map[string]any:
		for i, m := range val {
			if err := encodeListEntry(el, m); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
	case string, bool, int, int64, float64:
		el.SetText(scalar(val))
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
	return nil
}

func encodeListEntry(parent *etree.Element, m map[string]any) error {
	name := scalar(m["name"])
	if name == "" {
		name = scalar(m["@name"])
	}
	if name == "" {
		return fmt.Errorf("list entry has no name")
	}
	rest := make(map[string]any, len(m))
	for k, v := range m {
		if k != "name" && k != "@name" {
			rest[k] = v
		}
	}
	el := parent.CreateElement("entry")
	el.CreateAttr("name", name)
	return encodeMap(el, rest)
}

func scalar(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "yes"
		}
		return "no"
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// DecodeEntry converts an <entry> element into its name and payload map,
// the inverse of EncodeEntry. Attributes of the entry other than name are
// kept with an "@" prefix.
func DecodeEntry(el *etree.Element) (string, map[string]any) {
	if el == nil {
		return "", nil
	}
	out := make(map[string]any)
	for _, a := range el.Attr {
		if a.Key != "name" {
			out["@"+a.Key] = a.Value
		}
	}
	decodeChildren(el, out)
	return el.SelectAttrValue("name", ""), out
}

func decodeChildren(el *etree.Element, out map[string]any) {
	seen := make(map[string]int)
	for _, child := range el.ChildElements() {
		seen[child.Tag]++
	}
	for _, child := range el.ChildElements() {
		v := decodeValue(child)
		if seen[child.Tag] > 1 {
			list, _ := out[child.Tag].([]any)
			out[child.Tag] = append(list, v)
			continue
		}
		out[child.Tag] = v
	}
}

func decodeValue(el *etree.Element) any {
	children := el.ChildElements()
	if len(children) == 0 {
		return strings.TrimSpace(el.Text())
	}

	if allTagged(children, "member") {
		members := make([]any, 0, len(children))
		for _, c := range children {
			members = append(members, strings.TrimSpace(c.Text()))
		}
		return members
	}

	if allTagged(children, "entry") {
		entries := make([]any, 0, len(children))
		for _, c := range children {
			name, m := DecodeEntry(c)
			m["name"] = name
			entries = append(entries, m)
		}
		return entries
	}

	m := make(map[string]any)
	for _, a := range el.Attr {
		m["@"+a.Key] = a.Value
	}
	decodeChildren(el, m)
	return m
}

func allTagged(els []*etree.Element, tag string) bool {
	for _, e := range els {
		if e.Tag != tag {
			return false
		}
	}
	return true
}

// EntryNames returns the name attribute of each element.
func EntryNames(entries []*etree.Element) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if n := e.SelectAttrValue("name", ""); n != "" {
			names = append(names, n)
		}
	}
	return names
}
