package workflow

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fwauto/fwauto/internal/testutil"
	"github.com/fwauto/fwauto/pkg/util"
)

func TestLoadSampleCatalog(t *testing.T) {
	dir := testutil.WriteCatalog(t, testutil.SampleCatalog)
	loaded, loadErr := Load(dir)
	c := testutil.Must(t, loaded, loadErr)

	if got := strings.Join(c.Names(), ","); got != "block_ip,cleanup_address,web_server_setup" {
		t.Errorf("Names() = %s", got)
	}
	if c.Dir() != dir || len(c.Files()) != 1 {
		t.Errorf("Dir() = %s, Files() = %v", c.Dir(), c.Files())
	}

	wf, ok := c.Lookup("web_server_setup")
	if !ok {
		t.Fatal("web_server_setup not found")
	}
	if wf.Name != "web_server_setup" || len(wf.Steps) != 3 || wf.Defaults["port"] != "443" {
		t.Errorf("workflow = %+v", wf)
	}
	if wf.Steps[0].Payload["ip-netmask"] != "{{server_ip}}" {
		t.Errorf("payload = %v", wf.Steps[0].Payload)
	}
	if _, ok := c.Lookup("nope"); ok {
		t.Error("Lookup(nope) should fail")
	}

	table := c.RoutingTable()
	if len(table) != 3 || table[2].Name != "web_server_setup" || len(table[2].RequiredParams) != 2 {
		t.Errorf("RoutingTable() = %+v", table)
	}
}

func TestLoadMergesFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("a.yaml", "workflows:\n  one:\n    description: first\n    steps:\n      - action: commit\n")
	write("b.yml", "workflows:\n  two:\n    description: second\n    steps:\n      - action: commit\n")
	write("notes.txt", "not a catalog")

	loaded, loadErr := Load(dir)
	c := testutil.Must(t, loaded, loadErr)
	if c.Len() != 2 || len(c.Files()) != 2 {
		t.Errorf("Len() = %d, Files() = %v", c.Len(), c.Files())
	}

	write("c.yaml", "workflows:\n  one:\n    description: again\n    steps:\n      - action: commit\n")
	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), `"one" defined twice`) {
		t.Errorf("duplicate err = %v", err)
	}
}

func TestLoadEmptyDir(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil || !strings.Contains(err.Error(), "no workflows") {
		t.Errorf("err = %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("missing directory should fail")
	}
}

func catalogWith(steps string) string {
	return "workflows:\n  w:\n    description: test\n    required_params: [name]\n    steps:\n" + steps
}

func TestCatalogValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown action",
			yaml:    catalogWith("      - action: frobnicate\n"),
			wantErr: `unknown action "frobnicate"`,
		},
		{
			name:    "create without payload",
			yaml:    catalogWith("      - action: create\n        object_type: address\n        object_name: x\n"),
			wantErr: "create requires payload",
		},
		{
			name:    "read without name",
			yaml:    catalogWith("      - action: read\n        object_type: address\n"),
			wantErr: "read requires object_name",
		},
		{
			name:    "unknown object type",
			yaml:    catalogWith("      - action: list\n        object_type: widget\n"),
			wantErr: `unknown object type "widget"`,
		},
		{
			name:    "list without type",
			yaml:    catalogWith("      - action: list\n"),
			wantErr: "list requires object_type",
		},
		{
			name:    "commit with object",
			yaml:    catalogWith("      - action: commit\n        object_type: address\n"),
			wantErr: "commit takes no object_type",
		},
		{
			name:    "approval outside commit",
			yaml:    catalogWith("      - action: delete\n        object_type: address\n        object_name: x\n        require_approval: true\n"),
			wantErr: "apply to commit only",
		},
		{
			name:    "bad mode",
			yaml:    catalogWith("      - action: delete\n        object_type: address\n        object_name: x\n        mode: sometimes\n"),
			wantErr: `unknown mode "sometimes"`,
		},
		{
			name:    "undeclared placeholder",
			yaml:    catalogWith("      - action: delete\n        object_type: address\n        object_name: \"{{other}}\"\n"),
			wantErr: "placeholder {{other}} is not a declared param",
		},
		{
			name:    "no steps",
			yaml:    "workflows:\n  w:\n    description: x\n    steps: []\n",
			wantErr: "has no steps",
		},
		{
			name:    "bad intent pattern",
			yaml:    "workflows:\n  w:\n    description: x\n    intent_patterns: [\"(unclosed\"]\n    steps:\n      - action: commit\n",
			wantErr: "intent pattern",
		},
		{
			name:    "required param with default",
			yaml:    "workflows:\n  w:\n    description: x\n    required_params: [name]\n    defaults:\n      name: x\n    steps:\n      - action: commit\n",
			wantErr: "must not have a default",
		},
		{
			name:    "empty workflow",
			yaml:    "workflows:\n  w:\n",
			wantErr: "is empty",
		},
		{
			name:    "malformed yaml",
			yaml:    "workflows: [",
			wantErr: "parsing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestCatalogValidationCollectsAll(t *testing.T) {
	_, err := Parse([]byte(catalogWith(
		"      - action: create\n        object_type: widget\n        object_name: \"{{x}}\"\n      - action: bogus\n")))

	var verr *util.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %T %v", err, err)
	}
	// unknown type, missing payload, undeclared placeholder, unknown action
	if len(verr.Errors) != 4 {
		t.Errorf("errors = %q", verr.Errors)
	}
}

func TestCatalogValidStepsPass(t *testing.T) {
	c, err := Parse([]byte(catalogWith(`      - action: diff
        object_type: address
        object_name: "{{name}}"
        payload: {ip-netmask: 10.0.0.1}
      - action: list
        object_type: address
        filter: "web-*"
      - action: commit
        require_approval: true
        partial_admins: [admin]
`)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Dir() != "" || c.Len() != 1 {
		t.Errorf("catalog = %+v", c)
	}
}
