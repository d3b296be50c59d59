package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fwauto/fwauto/pkg/audit"
	"github.com/fwauto/fwauto/pkg/settings"
)

func TestBuildPayload(t *testing.T) {
	t.Run("sets only", func(t *testing.T) {
		got, err := buildPayload("", []string{
			"ip-netmask=10.1.1.10/32",
			"protocol.tcp.port=443",
			"tag=[prod, web]",
			"description=a=b",
		})
		if err != nil {
			t.Fatalf("buildPayload() error: %v", err)
		}
		want := map[string]any{
			"ip-netmask":  "10.1.1.10/32",
			"protocol":    map[string]any{"tcp": map[string]any{"port": "443"}},
			"tag":         []any{"prod", "web"},
			"description": "a=b",
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("payload mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("file with override", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "payload.yaml")
		data := "ip-netmask: 10.1.1.10/32\ndescription: from file\n"
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
		got, err := buildPayload(path, []string{"description=from flag"})
		if err != nil {
			t.Fatalf("buildPayload() error: %v", err)
		}
		want := map[string]any{"ip-netmask": "10.1.1.10/32", "description": "from flag"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("payload mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("nothing given", func(t *testing.T) {
		got, err := buildPayload("", nil)
		if err != nil || got != nil {
			t.Errorf("buildPayload(\"\", nil) = %v, %v; want nil, nil", got, err)
		}
	})

	errCases := []struct {
		name string
		sets []string
	}{
		{"no equals", []string{"ip-netmask"}},
		{"empty key", []string{"=x"}},
		{"empty segment", []string{"protocol..port=1"}},
		{"scalar then nested", []string{"protocol=tcp", "protocol.tcp.port=1"}},
	}
	for _, tt := range errCases {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buildPayload("", tt.sets); err == nil {
				t.Errorf("buildPayload(%v) expected error", tt.sets)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		if _, err := buildPayload(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestParseParams(t *testing.T) {
	got, err := parseParams([]string{"server_name=web-1", " port =8443", "empty="})
	if err != nil {
		t.Fatalf("parseParams() error: %v", err)
	}
	want := map[string]string{"server_name": "web-1", "port": "8443", "empty": ""}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}

	if _, err := parseParams([]string{"novalue"}); err == nil {
		t.Error("expected error for param without =")
	}
}

func TestEventTarget(t *testing.T) {
	tests := []struct {
		event *audit.Event
		want  string
	}{
		{&audit.Event{ObjectType: "address", ObjectName: "web-1"}, "address web-1"},
		{&audit.Event{ObjectType: "address"}, "address"},
		{&audit.Event{Workflow: "block_ip"}, "workflow block_ip"},
		{&audit.Event{TicketID: "t-1", JobID: "7"}, "ticket t-1"},
		{&audit.Event{JobID: "7"}, "job 7"},
	}
	for _, tt := range tests {
		if got := eventTarget(tt.event); got != tt.want {
			t.Errorf("eventTarget(%+v) = %q, want %q", tt.event, got, tt.want)
		}
	}
}

func TestApplyFlags(t *testing.T) {
	a := &App{
		host:        "fw2.example.net",
		deviceGroup: "branch",
		catalogDir:  "/tmp/workflows",
		settings: &settings.Settings{
			Host:     "fw1.example.net",
			Vsys:     "vsys2",
			Template: "old",
		},
	}
	a.applyFlags()

	s := a.settings
	if s.Host != "fw2.example.net" {
		t.Errorf("Host = %q", s.Host)
	}
	if s.GetCatalogDir() != "/tmp/workflows" {
		t.Errorf("CatalogDir = %q", s.CatalogDir)
	}
	devCtx, err := s.DeviceContext()
	if err != nil {
		t.Fatalf("DeviceContext() error: %v", err)
	}
	if devCtx.Scope() != "device-group branch" {
		t.Errorf("Scope() = %q, want device-group branch", devCtx.Scope())
	}
	if s.Vsys != "vsys2" {
		t.Errorf("Vsys = %q, want kept vsys2", s.Vsys)
	}
}

func TestIsSettingsOrHelp(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{[]string{"settings", "show"}, true},
		{[]string{"version"}, true},
		{[]string{"object", "list"}, false},
		{[]string{"workflow", "run"}, false},
	}
	for _, tt := range tests {
		cmd, _, err := rootCmd.Find(tt.args)
		if err != nil {
			t.Fatalf("Find(%v) error: %v", tt.args, err)
		}
		if got := isSettingsOrHelp(cmd); got != tt.want {
			t.Errorf("isSettingsOrHelp(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
}
