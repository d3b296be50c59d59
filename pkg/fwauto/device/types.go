package device

import (
	"fmt"
	"sort"

	"github.com/fwauto/fwauto/pkg/util"
)

// Scope says where an object type lives in the configuration tree.
type Scope int

const (
	// ScopeContent objects live under a vsys, template, device group or shared.
	ScopeContent Scope = iota
	// ScopeManagement objects (device groups, templates, stacks) live at the device root.
	ScopeManagement
	// ScopeStack objects live under a template stack.
	ScopeStack
)

// ObjectType is one registry record.
type ObjectType struct {
	Name string

	// Segment is appended to a device-like base (standalone vsys, template vsys).
	Segment string

	// ManagerSegment is appended to device-group and shared bases.
	// Empty means the same as Segment.
	ManagerSegment string

	Scope Scope

	// Required lists sub-elements an <entry> body must carry. Each inner
	// slice is satisfied when any one of its element names is present.
	Required [][]string
}

func (t *ObjectType) managerSegment() string {
	if t.ManagerSegment != "" {
		return t.ManagerSegment
	}
	return t.Segment
}

var registry = map[string]*ObjectType{
	"address": {
		Name: "address", Segment: "address",
		Required: [][]string{{"ip-netmask", "ip-range", "fqdn", "ip-wildcard"}},
	},
	"address-group": {
		Name: "address-group", Segment: "address-group",
		Required: [][]string{{"static", "dynamic"}},
	},
	"service": {
		Name: "service", Segment: "service",
		Required: [][]string{{"protocol"}},
	},
	"service-group": {
		Name: "service-group", Segment: "service-group",
		Required: [][]string{{"members"}},
	},
	"tag": {
		Name: "tag", Segment: "tag",
	},
	"application-group": {
		Name: "application-group", Segment: "application-group",
		Required: [][]string{{"members"}},
	},
	"security-rule": {
		Name: "security-rule", Segment: "rulebase/security/rules", ManagerSegment: "pre-rulebase/security/rules",
		Required: [][]string{{"from"}, {"to"}, {"source"}, {"destination"}, {"application"}, {"service"}, {"action"}},
	},
	"nat-rule": {
		Name: "nat-rule", Segment: "rulebase/nat/rules", ManagerSegment: "pre-rulebase/nat/rules",
		Required: [][]string{{"from"}, {"to"}, {"source"}, {"destination"}},
	},
	"security-profile-group": {
		Name: "security-profile-group", Segment: "profile-group",
	},
	"external-dynamic-list": {
		Name: "external-dynamic-list", Segment: "external-list",
		Required: [][]string{{"type"}},
	},
	"device-group": {
		Name: "device-group", Segment: "device-group", Scope: ScopeManagement,
	},
	"template": {
		Name: "template", Segment: "template", Scope: ScopeManagement,
	},
	"template-stack": {
		Name: "template-stack", Segment: "template-stack", Scope: ScopeManagement,
		Required: [][]string{{"templates"}},
	},
	"template-stack-variable": {
		Name: "template-stack-variable", Segment: "variable", Scope: ScopeStack,
		Required: [][]string{{"type"}},
	},
}

var aliases = map[string]string{
	"address-object":  "address",
	"service-object":  "service",
	"security-policy": "security-rule",
	"security-rules":  "security-rule",
	"nat-policy":      "nat-rule",
	"nat-rules":       "nat-rule",
	"profile-group":   "security-profile-group",
	"edl":             "external-dynamic-list",
	"external-list":   "external-dynamic-list",
	"stack-variable":  "template-stack-variable",
	"variable":        "template-stack-variable",
	"dg":              "device-group",
}

// CanonicalType normalizes an object-type identifier (case, '_', '-' and
// spaces are interchangeable) and resolves aliases. The second return is
// false for unknown types.
func CanonicalType(objectType string) (string, bool) {
	key := util.NormalizeKey(objectType)
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	_, ok := registry[key]
	return key, ok
}

// LookupType returns the registry record for objectType.
func LookupType(objectType string) (*ObjectType, error) {
	key, ok := CanonicalType(objectType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", util.ErrUnknownObjectType, objectType)
	}
	return registry[key], nil
}

// ObjectTypes lists canonical type names in sorted order.
func ObjectTypes() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
