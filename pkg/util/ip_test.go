package util

import (
	"testing"
)

func TestIsValidIPOrCIDR(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"10.0.0.1", true},
		{"10.0.0.0/8", true},
		{" 10.0.0.1/32 ", true},
		{"2001:db8::/32", true},
		{"10.0.0.256", false},
		{"10.0.0.0/33", false},
		{"web.example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidIPOrCIDR(tt.in); got != tt.want {
			t.Errorf("IsValidIPOrCIDR(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseIPRange(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"10.0.0.1-10.0.0.20", false},
		{"10.0.0.5-10.0.0.5", false},
		{"2001:db8::1-2001:db8::ff", false},
		{"10.0.0.20-10.0.0.1", true},
		{"10.0.0.1-2001:db8::1", true},
		{"10.0.0.1", true},
		{"a-b", true},
	}
	for _, tt := range tests {
		_, _, err := ParseIPRange(tt.spec)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseIPRange(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
		}
	}
}

func TestIsValidIPWildcard(t *testing.T) {
	if !IsValidIPWildcard("10.1.0.5/0.0.255.0") {
		t.Error("expected wildcard mask to be valid")
	}
	if IsValidIPWildcard("10.1.0.5/24") {
		t.Error("prefix length is not a wildcard mask")
	}
	if IsValidIPWildcard("10.1.0.5") {
		t.Error("missing mask should be invalid")
	}
}
