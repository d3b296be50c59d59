// Package validate checks object payloads before anything is sent to the
// device. Rules are table-driven per object type.
package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fwauto/fwauto/pkg/fwauto/device"
	"github.com/fwauto/fwauto/pkg/util"
)

// Result accumulates validation findings. Callers check Valid.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func newResult() Result {
	return Result{Valid: true}
}

func (r *Result) errorf(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Err returns the errors as a *util.ValidationError, or nil when valid.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return util.NewValidationError(r.Errors...)
}

// Pipeline validates payloads against a rule table.
type Pipeline struct {
	rules    map[string]*Rules
	validate *validator.Validate
}

// New returns a pipeline with the built-in rules for every registered
// object type.
func New() *Pipeline {
	return &Pipeline{
		rules:    defaultRules,
		validate: validator.New(),
	}
}

// Validate checks payload for objectType. Unknown object types pass with a
// warning. The payload is normalized first, so underscored spellings and the
// short address form are accepted.
func (p *Pipeline) Validate(objectType string, payload map[string]any) Result {
	res := newResult()
	canonical, _ := device.CanonicalType(objectType)
	rules, ok := p.rules[canonical]
	if !ok {
		res.warnf("no validation rules for object type %q", objectType)
		return res
	}
	if payload == nil {
		res.errorf("payload is required")
		return res
	}
	p.check(&res, "", rules, Normalize(canonical, payload))
	return res
}

func (p *Pipeline) check(res *Result, prefix string, rules *Rules, m map[string]any) {
	for _, name := range rules.Required {
		v, ok := lookup(m, name)
		switch {
		case !ok:
			res.errorf("%s is required", prefix+name)
		case isEmpty(v):
			res.errorf("%s must not be empty", prefix+name)
		}
	}

	for _, group := range rules.RequiredOneOf {
		var present []string
		for _, name := range group {
			if v, ok := lookup(m, name); ok && !isEmpty(v) {
				present = append(present, name)
			}
		}
		switch len(present) {
		case 1:
		case 0:
			res.errorf("%sexactly one of %s is required", where(prefix), strings.Join(group, ", "))
		default:
			res.errorf("%sonly one of %s may be set, got %s", where(prefix), strings.Join(group, ", "), strings.Join(present, ", "))
		}
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if strings.HasPrefix(key, "@") {
			continue
		}
		field := util.Hyphenate(key)
		rule, ok := rules.Fields[field]
		if !ok {
			res.warnf("%s is not a recognized field", prefix+field)
			continue
		}
		p.checkField(res, prefix+field, rule, m[key])
	}
}

func (p *Pipeline) checkField(res *Result, path string, rule FieldRule, v any) {
	if v == nil {
		return
	}
	switch rule.Kind {
	case KindString:
		s, ok := scalarString(v)
		if !ok {
			res.errorf("%s must be a string, got %s", path, describe(v))
			return
		}
		if rule.Check != "" {
			if err := p.checkValue(rule.Check, s); err != nil {
				res.errorf("%s: %v", path, err)
			}
		}

	case KindList:
		items, ok := listItems(v)
		if !ok {
			res.errorf("%s must be a list, got %s", path, describe(v))
			return
		}
		for i, item := range items {
			s, ok := scalarString(item)
			if !ok {
				res.errorf("%s[%d] must be a string, got %s", path, i, describe(item))
				continue
			}
			if rule.Items != "" {
				if err := p.checkValue(rule.Items, s); err != nil {
					res.errorf("%s[%d]: %v", path, i, err)
				}
			}
		}

	case KindDict:
		m, ok := v.(map[string]any)
		if !ok {
			res.errorf("%s must be a dict, got %s", path, describe(v))
			return
		}
		if rule.Nested != nil {
			p.check(res, path+".", rule.Nested, m)
		}
	}
}

var colorPattern = regexp.MustCompile(`^color([1-9]|[1-3][0-9]|4[0-2])$`)

func (p *Pipeline) checkValue(check, s string) error {
	s = strings.TrimSpace(s)
	switch check {
	case "non_empty":
		if s == "" {
			return fmt.Errorf("must not be empty")
		}
	case "cidr_or_ip":
		if err := p.validate.Var(s, "required,cidr|ip"); err != nil {
			return fmt.Errorf("%q is not an IP address or CIDR", s)
		}
	case "ip_range":
		if _, _, err := util.ParseIPRange(s); err != nil {
			return err
		}
	case "fqdn":
		if err := p.validate.Var(s, "required,fqdn"); err != nil {
			return fmt.Errorf("%q is not a valid FQDN", s)
		}
	case "ip_wildcard":
		if !util.IsValidIPWildcard(s) {
			return fmt.Errorf("%q is not an address/wildcard-mask pair", s)
		}
	case "port_spec":
		if _, err := util.ParsePortSpec(s); err != nil {
			return err
		}
	case "url":
		if err := p.validate.Var(s, "required,url"); err != nil {
			return fmt.Errorf("%q is not a valid URL", s)
		}
	case "action":
		if err := p.validate.Var(s, "required,"+ruleActions); err != nil {
			return fmt.Errorf("%q is not a valid action (allow, deny, drop, reset-client, reset-server, reset-both)", s)
		}
	case "yes_no":
		if err := p.validate.Var(s, "required,oneof=yes no"); err != nil {
			return fmt.Errorf("%q must be yes or no", s)
		}
	case "rule_type":
		if err := p.validate.Var(s, "required,oneof=universal intrazone interzone"); err != nil {
			return fmt.Errorf("%q is not a valid rule type (universal, intrazone, interzone)", s)
		}
	case "nat_type":
		if err := p.validate.Var(s, "required,oneof=ipv4 nat64 nptv6"); err != nil {
			return fmt.Errorf("%q is not a valid NAT type (ipv4, nat64, nptv6)", s)
		}
	case "color":
		if !colorPattern.MatchString(s) {
			return fmt.Errorf("%q is not a valid color (color1 through color42)", s)
		}
	default:
		return fmt.Errorf("unknown check %q", check)
	}
	return nil
}

// lookup finds a field by its hyphenated or underscored spelling.
func lookup(m map[string]any, name string) (any, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	v, ok := m[util.Underscore(name)]
	return v, ok
}

func where(prefix string) string {
	if prefix == "" {
		return ""
	}
	return strings.TrimSuffix(prefix, ".") + ": "
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	}
	return false
}

func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case bool:
		if val {
			return "yes", true
		}
		return "no", true
	case int, int64, float64:
		return fmt.Sprint(val), true
	}
	return "", false
}

func listItems(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func describe(v any) string {
	switch v.(type) {
	case map[string]any:
		return "dict"
	case []any, []string:
		return "list"
	default:
		return fmt.Sprintf("%T", v)
	}
}
