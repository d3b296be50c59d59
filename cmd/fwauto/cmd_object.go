package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fwauto/fwauto/pkg/audit"
	"github.com/fwauto/fwauto/pkg/auth"
	"github.com/fwauto/fwauto/pkg/cli"
	"github.com/fwauto/fwauto/pkg/fwauto/device"
	"github.com/fwauto/fwauto/pkg/fwauto/diff"
	"github.com/fwauto/fwauto/pkg/fwauto/object"
	"github.com/fwauto/fwauto/pkg/util"
)

var (
	objectSets   []string
	objectFile   string
	objectMode   string
	objectFilter string
)

var objectCmd = &cobra.Command{
	Use:   "object",
	Short: "Create, read, update, delete and list configuration objects",
	Long: `Operate on one configuration object in the selected scope.

Payload fields come from --file (YAML) and --set key=value; --set wins.
Dotted keys nest (--set protocol.tcp.port=443) and [a,b] values are lists.

Modes:
  strict           - existence mismatch is an error
  skip_if_exists   - create of an existing object is skipped (create default)
  skip_if_missing  - delete of a missing object is skipped

Examples:
  fwauto object create address web-1 --set ip-netmask=10.1.1.10/32
  fwauto object update address-group blocklist --set 'static=[bad-1,bad-2]'
  fwauto object delete address web-1 --mode skip_if_missing
  fwauto object list security-rule --filter 'allow-*'
  fwauto object types`,
}

func newObjectOpCmd(op object.Operation, use, short string, args cobra.PositionalArgs) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := object.Request{Operation: op, ObjectType: args[0], Filter: objectFilter}
			if len(args) > 1 {
				req.ObjectName = args[1]
			}
			if op == object.Create || op == object.Update {
				payload, err := buildPayload(objectFile, objectSets)
				if err != nil {
					return err
				}
				req.Payload = payload
			}
			mode, err := object.ParseMode(objectMode)
			if err != nil {
				return err
			}
			req.Mode = mode
			return runObject(cmd.Context(), req)
		},
	}
}

var objectTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List supported object types",
	RunE: func(cmd *cobra.Command, args []string) error {
		types := device.ObjectTypes()
		if app.jsonOutput {
			return printJSON(types)
		}
		t := cli.NewTable("TYPE")
		for _, name := range types {
			t.Row(name)
		}
		t.Flush()
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{
		newObjectOpCmd(object.Create, "create <type> <name>", "Create an object", cobra.ExactArgs(2)),
		newObjectOpCmd(object.Read, "read <type> <name>", "Read an object", cobra.ExactArgs(2)),
		newObjectOpCmd(object.Update, "update <type> <name>", "Update an object", cobra.ExactArgs(2)),
		newObjectOpCmd(object.Delete, "delete <type> <name>", "Delete an object", cobra.ExactArgs(2)),
		newObjectOpCmd(object.List, "list <type>", "List objects of a type", cobra.ExactArgs(1)),
	} {
		objectCmd.AddCommand(c)
	}
	objectCmd.AddCommand(objectTypesCmd)

	objectCmd.PersistentFlags().StringArrayVar(&objectSets, "set", nil, "Payload field key=value (repeatable)")
	objectCmd.PersistentFlags().StringVarP(&objectFile, "file", "f", "", "YAML payload file")
	objectCmd.PersistentFlags().StringVar(&objectMode, "mode", "", "Existence mode: strict, skip_if_exists, skip_if_missing")
	objectCmd.PersistentFlags().StringVar(&objectFilter, "filter", "", "Glob filter on listed names")
}

// runObject checks permissions, executes req and records it.
func runObject(ctx context.Context, req object.Request) error {
	perm := auth.ForOperation(req.Operation.String())
	if err := app.check(perm, app.authContext().WithObjectType(req.ObjectType)); err != nil {
		return err
	}

	engine, err := app.objectEngine()
	if err != nil {
		return err
	}

	// Updates record the field changes they make
	var changes []diff.FieldChange
	if req.Operation == object.Update {
		if d, pre := engine.Diff(ctx, req.ObjectType, req.ObjectName, req.Payload); pre.OK() {
			changes = d.Changes
		}
	}

	start := time.Now()
	out := engine.Execute(ctx, req)

	if perm.IsWriteOperation() {
		event := app.newEvent(audit.EventTypeMutation, req.Operation.String()).
			WithObject(req.ObjectType, req.ObjectName).
			WithStatus(out.Status.String(), out.OK()).
			WithDuration(time.Since(start))
		if out.Status == object.Success {
			event.WithChanges(changes)
		}
		logEvent(event, out.Err)
	}

	if app.jsonOutput {
		if err := printJSON(out); err != nil {
			return err
		}
		if !out.OK() {
			return errSilentFailure
		}
		return nil
	}

	if err := printOutcome(out.Message, out.OK()); err != nil {
		return err
	}
	switch req.Operation {
	case object.Read:
		return printYAML(out.Data)
	case object.List:
		printNames(out.Names)
	}
	return nil
}

func printNames(names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Println()
	t := cli.NewTable("NAME")
	for _, n := range names {
		t.Row(n)
	}
	t.Flush()
}

func printYAML(v any) error {
	if v == nil {
		return nil
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

// ============================================================================
// Payload Helpers
// ============================================================================

// buildPayload merges a YAML payload file with key=value overrides.
// It returns nil when neither is given.
func buildPayload(file string, sets []string) (map[string]any, error) {
	var payload map[string]any
	if file != "" {
		p, err := loadPayloadFile(file)
		if err != nil {
			return nil, err
		}
		payload = p
	}
	if len(sets) > 0 && payload == nil {
		payload = make(map[string]any)
	}
	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", kv)
		}
		if err := setPath(payload, strings.Split(key, "."), parseValue(value)); err != nil {
			return nil, fmt.Errorf("invalid --set %q: %w", kv, err)
		}
	}
	return payload, nil
}

func loadPayloadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	var payload map[string]any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parsing payload %s: %w", path, err)
	}
	if payload == nil {
		payload = make(map[string]any)
	}
	return payload, nil
}

// parseValue turns "[a, b]" into a list and leaves everything else a
// string.
func parseValue(v string) any {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]") {
		items := util.SplitCommaSeparated(v[1 : len(v)-1])
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = item
		}
		return out
	}
	return v
}

func setPath(m map[string]any, path []string, value any) error {
	for i, key := range path {
		if key == "" {
			return fmt.Errorf("empty key segment")
		}
		if i == len(path)-1 {
			m[key] = value
			return nil
		}
		next, ok := m[key].(map[string]any)
		if !ok {
			if _, exists := m[key]; exists {
				return fmt.Errorf("%s is not a map", strings.Join(path[:i+1], "."))
			}
			next = make(map[string]any)
			m[key] = next
		}
		m = next
	}
	return nil
}

// parseParams turns repeated key=value flags into a map.
func parseParams(kvs []string) (map[string]string, error) {
	params := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q: expected key=value", kv)
		}
		params[key] = value
	}
	return params, nil
}
