package util

import "strings"

// SplitCommaSeparated splits a comma-separated string and trims whitespace from each element.
// Empty input returns nil.
func SplitCommaSeparated(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// NormalizeKey lowercases s and folds '_' and ' ' into '-', so that
// "Address_Group", "address group" and "address-group" compare equal.
func NormalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		if r == '_' || r == ' ' {
			return '-'
		}
		return r
	}, s)
}

// Hyphenate converts an underscored field name to the device's hyphenated
// spelling without changing case ("ip_netmask" -> "ip-netmask").
func Hyphenate(s string) string {
	return strings.ReplaceAll(s, "_", "-")
}

// Underscore is the inverse of Hyphenate.
func Underscore(s string) string {
	return strings.ReplaceAll(s, "-", "_")
}
