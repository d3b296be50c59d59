package intent

import (
	"context"
	"reflect"
	"testing"
)

func TestKeywordClassify(t *testing.T) {
	k := NewKeywordClassifier()
	tests := []struct {
		text       string
		intent     string
		targets    []string
		multi      bool
		complexity Complexity
		entities   map[string][]string
	}{
		{
			text:       "create address 10.0.0.1/32 and then commit",
			intent:     "create",
			targets:    []string{"address"},
			multi:      true,
			complexity: Complex,
			entities:   map[string][]string{"cidr": {"10.0.0.1/32"}},
		},
		{
			text:       "delete the address group named blocklist",
			intent:     "delete",
			targets:    []string{"address-group"},
			complexity: Simple,
			entities:   map[string][]string{"name": {"blocklist"}},
		},
		{
			text:       `add service "web-https" on port 8443`,
			intent:     "create",
			targets:    []string{"service"},
			complexity: Simple,
			entities:   map[string][]string{"name": {"web-https"}, "port": {"8443"}},
		},
		{
			text:       "list all security rules and tags and addresses",
			intent:     "list",
			targets:    []string{"security-rule", "tag", "address"},
			complexity: Moderate,
			entities:   map[string][]string{},
		},
		{
			text:       "hello there",
			complexity: Unknown,
			entities:   map[string][]string{},
		},
		{
			text:       "set up a web server at 10.0.0.5:8080",
			intent:     "setup",
			complexity: Simple,
			entities:   map[string][]string{"ip": {"10.0.0.5"}, "port": {"8080"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			c, err := k.Classify(context.Background(), tt.text)
			if err != nil {
				t.Fatal(err)
			}
			if c.PrimaryIntent != tt.intent {
				t.Errorf("PrimaryIntent = %q, want %q", c.PrimaryIntent, tt.intent)
			}
			if !reflect.DeepEqual(c.TargetObjects, tt.targets) {
				t.Errorf("TargetObjects = %v, want %v", c.TargetObjects, tt.targets)
			}
			if c.MultiStep != tt.multi {
				t.Errorf("MultiStep = %v", c.MultiStep)
			}
			if c.Complexity != tt.complexity {
				t.Errorf("Complexity = %s, want %s", c.Complexity, tt.complexity)
			}
			if !reflect.DeepEqual(c.Entities, tt.entities) {
				t.Errorf("Entities = %v, want %v", c.Entities, tt.entities)
			}
		})
	}
}

func TestKeywordMatch(t *testing.T) {
	k := NewKeywordClassifier()
	ctx := context.Background()

	m, _ := k.Match(ctx, nil, "set up a web server named web1 at 10.0.0.5", sampleTable)
	if m.Workflow != "web_server_setup" || m.Confidence < 0.8 {
		t.Errorf("match = %+v", m)
	}

	m, _ = k.Match(ctx, nil, "delete address named web-old", sampleTable)
	if m.Workflow != "cleanup_address" || len(m.Alternatives) != 1 || m.Alternatives[0].Name != "web_server_setup" {
		t.Errorf("match = %+v", m)
	}

	m, _ = k.Match(ctx, nil, "reboot the device", sampleTable)
	if m.Workflow != "" {
		t.Errorf("unrelated text matched %+v", m)
	}

	bad := StaticCatalog{{Name: "broken", Keywords: []string{"reboot"}, IntentPatterns: []string{"("}}}
	m, _ = k.Match(ctx, nil, "reboot now", bad)
	if m.Workflow != "broken" || m.Confidence != 0.5*0+0.5*1 {
		t.Errorf("invalid pattern should be skipped: %+v", m)
	}
}

func TestKeywordExtractParams(t *testing.T) {
	k := NewKeywordClassifier()
	web := sampleTable[0]

	tests := []struct {
		text string
		want map[string]string
	}{
		{
			text: "set up a web server named web1 at 10.0.0.5",
			want: map[string]string{"server_name": "web1", "server_ip": "10.0.0.5"},
		},
		{
			text: `server_name="web 9" server-ip: 10.1.1.1 port=8443`,
			want: map[string]string{"server_name": "web 9", "server_ip": "10.1.1.1", "port": "8443"},
		},
		{
			text: `create web server "edge" 192.0.2.10/32 port 8080`,
			want: map[string]string{"server_name": "edge", "server_ip": "192.0.2.10/32", "port": "8080"},
		},
		{
			text: "set up a web server",
			want: map[string]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := k.ExtractParams(context.Background(), tt.text, web)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractParams = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeywordRouting(t *testing.T) {
	r := NewRouter(NewKeywordClassifier(), sampleTable)
	ctx := context.Background()

	tests := []struct {
		text      string
		wantRoute Route
		wantWF    string
		params    map[string]string
	}{
		{"Run workflow web_server_setup", Deterministic, "web_server_setup", map[string]string{}},
		{"set up a web server named web1 at 10.0.0.5", Deterministic, "web_server_setup",
			map[string]string{"server_name": "web1", "server_ip": "10.0.0.5"}},
		{"block 203.0.113.9", Deterministic, "block_ip", map[string]string{"ip": "203.0.113.9"}},
		{"delete address named web-old", Deterministic, "cleanup_address", map[string]string{"name": "web-old"}},
		{"delete address web-old", Exploratory, "cleanup_address", map[string]string{}},
		{"what is configured for web servers", Exploratory, "web_server_setup", nil},
		{"reboot the device", Exploratory, "", map[string]string{}},
		{"run a report on the web farm", Exploratory, "web_server_setup", nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			d := r.Route(ctx, tt.text)
			if d.Route != tt.wantRoute || d.Workflow != tt.wantWF {
				t.Fatalf("decision = %s %q (%.2f: %s), want %s %q", d.Route, d.Workflow, d.Confidence, d.Reason, tt.wantRoute, tt.wantWF)
			}
			if tt.params != nil && !reflect.DeepEqual(d.Params, tt.params) {
				t.Errorf("Params = %v, want %v", d.Params, tt.params)
			}
		})
	}
}

func TestParamKind(t *testing.T) {
	for name, want := range map[string]string{
		"server_ip":   "address",
		"ip":          "address",
		"description": "",
		"server_name": "name",
		"name":        "name",
		"port":        "port",
		"dst-port":    "port",
		"subnet":      "address",
	} {
		if got := paramKind(name); got != want {
			t.Errorf("paramKind(%q) = %q, want %q", name, got, want)
		}
	}
}
