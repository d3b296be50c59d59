package util

import "testing"

func TestSplitCommaSeparated(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"web", 1},
		{"web,db", 2},
		{"web, db, , cache", 3},
	}

	for _, tt := range tests {
		got := SplitCommaSeparated(tt.input)
		if len(got) != tt.want {
			t.Errorf("SplitCommaSeparated(%q) = %v (len %d), want len %d", tt.input, got, len(got), tt.want)
		}
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"address", "address"},
		{"Address_Group", "address-group"},
		{"address group", "address-group"},
		{" SECURITY-RULE ", "security-rule"},
	}
	for _, tt := range tests {
		if got := NormalizeKey(tt.in); got != tt.want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHyphenateUnderscore(t *testing.T) {
	if got := Hyphenate("ip_netmask"); got != "ip-netmask" {
		t.Errorf("Hyphenate = %q", got)
	}
	if got := Underscore("destination-port"); got != "destination_port" {
		t.Errorf("Underscore = %q", got)
	}
}
