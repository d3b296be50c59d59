package validate

import (
	"strings"
	"testing"
)

func TestValidateElement(t *testing.T) {
	p := New()

	tests := []struct {
		name       string
		objectType string
		body       string
		wantErr    string
	}{
		{
			name:       "address ok",
			objectType: "address",
			body:       `<entry name="web-1"><ip-netmask>10.0.0.1/32</ip-netmask></entry>`,
		},
		{
			name:       "tag has no required elements",
			objectType: "tag",
			body:       `<entry name="prod"/>`,
		},
		{
			name:       "malformed",
			objectType: "address",
			body:       `<entry name="web-1"><ip-netmask>10.0.0.1</entry>`,
			wantErr:    "not well-formed",
		},
		{
			name:       "wrong root",
			objectType: "address",
			body:       `<address name="web-1"/>`,
			wantErr:    "want <entry>",
		},
		{
			name:       "missing name",
			objectType: "tag",
			body:       `<entry><color>color1</color></entry>`,
			wantErr:    "no name attribute",
		},
		{
			name:       "missing one-of",
			objectType: "address",
			body:       `<entry name="web-1"><description>x</description></entry>`,
			wantErr:    "missing one of <ip-netmask>, <ip-range>",
		},
		{
			name:       "rule missing action",
			objectType: "security-rule",
			body: `<entry name="r"><from><member>a</member></from><to><member>b</member></to>` +
				`<source><member>any</member></source><destination><member>any</member></destination>` +
				`<application><member>any</member></application><service><member>any</member></service></entry>`,
			wantErr: "missing <action>",
		},
		{
			name:       "empty body",
			objectType: "address",
			body:       ``,
			wantErr:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.ValidateElement(tt.objectType, tt.body)
			if tt.name == "empty body" {
				if res.Valid {
					t.Error("empty body should be invalid")
				}
				return
			}
			if tt.wantErr == "" {
				if !res.Valid {
					t.Errorf("expected valid, got %v", res.Errors)
				}
				return
			}
			if res.Valid {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if all := strings.Join(res.Errors, "\n"); !strings.Contains(all, tt.wantErr) {
				t.Errorf("errors %q missing %q", all, tt.wantErr)
			}
		})
	}
}

func TestValidateElementUnknownType(t *testing.T) {
	res := New().ValidateElement("widget", `<entry name="w"/>`)
	if !res.Valid || len(res.Warnings) != 1 {
		t.Errorf("unknown type: valid=%v warnings=%v", res.Valid, res.Warnings)
	}
}
