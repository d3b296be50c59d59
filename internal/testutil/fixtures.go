// Package testutil provides test helpers: a fake device speaking the XML
// API, workflow catalog fixtures, and Redis helpers for integration tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// SampleCatalog is a workflow catalog used across router and runner tests.
const SampleCatalog = `workflows:
  web_server_setup:
    description: Create a web server address, its service and tag it for production
    keywords: [web, server, setup, http, https]
    intent_patterns:
      - "(set ?up|create|provision).*web ?server"
    required_params: [server_name, server_ip]
    optional_params: [port]
    defaults:
      port: "443"
    steps:
      - name: create address
        action: create
        object_type: address
        object_name: "{{server_name}}"
        payload:
          ip-netmask: "{{server_ip}}"
          description: "web server {{server_name}}"
      - name: create service
        action: create
        object_type: service
        object_name: "{{server_name}}-https"
        payload:
          protocol:
            tcp:
              port: "{{port}}"
      - name: commit
        action: commit
        description: "web server {{server_name}}"
  block_ip:
    description: Block an IP address by adding it to the blocklist group
    keywords: [block, deny, blocklist, ip]
    intent_patterns:
      - "block .*\\d+\\.\\d+\\.\\d+\\.\\d+"
    required_params: [ip]
    steps:
      - name: create address
        action: create
        object_type: address
        object_name: "blocked-{{ip}}"
        payload:
          ip-netmask: "{{ip}}"
      - name: update group
        action: update
        object_type: address-group
        object_name: blocklist
        payload:
          static: ["blocked-{{ip}}"]
        continue_on_error: true
  cleanup_address:
    description: Remove an address object if present
    keywords: [remove, cleanup, delete, address]
    required_params: [name]
    steps:
      - name: delete address
        action: delete
        object_type: address
        object_name: "{{name}}"
        mode: skip_if_missing
`

// WriteCatalog writes content as catalog.yaml in a fresh temp directory and
// returns the directory.
func WriteCatalog(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "catalog.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("writing catalog: %v", err)
	}
	return dir
}

// Context returns a context with a reasonable timeout for tests.
// The cancel function is registered via t.Cleanup.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error, msg string) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s: expected error but got nil", msg)
	}
}

// Must is a generic helper that calls t.Fatal if err is not nil and returns the value.
func Must[T any](t *testing.T, val T, err error) T {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return val
}
