package validate

import (
	"strings"

	"github.com/fwauto/fwauto/pkg/fwauto/device"
	"github.com/fwauto/fwauto/pkg/util"
)

// DefaultAddressType is assumed when the short address form omits "type".
const DefaultAddressType = "ip-netmask"

// Normalize returns a copy of payload in the device's canonical shape:
// underscored keys become hyphenated at every level, and short forms are
// expanded:
//
//	address:                 {value, type}           -> {<type>: value}
//	service:                 {protocol: tcp, port}   -> {protocol: {tcp: {port}}}
//	external-dynamic-list:   {type: ip, url, ...}    -> {type: {ip: {url, ...}}}
//	template-stack-variable: {type: fqdn, value}     -> {type: {fqdn: value}}
//
// The input is never modified.
func Normalize(objectType string, payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := hyphenateKeys(payload)
	canonical, _ := device.CanonicalType(objectType)

	switch canonical {
	case "address":
		if v, ok := out["value"]; ok {
			t := DefaultAddressType
			if s, ok := out["type"].(string); ok && s != "" {
				t = util.Hyphenate(strings.ToLower(s))
			}
			delete(out, "value")
			delete(out, "type")
			out[t] = v
		}

	case "service":
		if proto, ok := out["protocol"].(string); ok {
			inner := map[string]any{}
			for _, k := range []string{"port", "source-port"} {
				if v, ok := out[k]; ok {
					inner[k] = v
					delete(out, k)
				}
			}
			out["protocol"] = map[string]any{strings.ToLower(proto): inner}
		}

	case "external-dynamic-list":
		if t, ok := out["type"].(string); ok {
			inner := map[string]any{}
			for _, k := range []string{"url", "description", "certificate-profile", "exception-list", "expand-domain", "auth"} {
				if v, ok := out[k]; ok {
					inner[k] = v
					delete(out, k)
				}
			}
			if r, ok := out["recurring"].(string); ok {
				inner["recurring"] = map[string]any{r: map[string]any{}}
				delete(out, "recurring")
			} else if r, ok := out["recurring"]; ok {
				inner["recurring"] = r
				delete(out, "recurring")
			}
			out["type"] = map[string]any{strings.ToLower(t): inner}
		}

	case "template-stack-variable":
		if t, ok := out["type"].(string); ok {
			out["type"] = map[string]any{util.Hyphenate(strings.ToLower(t)): out["value"]}
			delete(out, "value")
		}
	}
	return out
}

func hyphenateKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if !strings.HasPrefix(k, "@") {
			k = util.Hyphenate(k)
		}
		out[k] = hyphenateValue(v)
	}
	return out
}

func hyphenateValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return hyphenateKeys(val)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = hyphenateValue(item)
		}
		return items
	default:
		return v
	}
}
