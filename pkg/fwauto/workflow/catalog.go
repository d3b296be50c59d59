package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fwauto/fwauto/pkg/fwauto/device"
	"github.com/fwauto/fwauto/pkg/fwauto/intent"
	"github.com/fwauto/fwauto/pkg/fwauto/object"
	"github.com/fwauto/fwauto/pkg/util"
)

// CatalogDir is the default catalog directory.
var CatalogDir = "/etc/fwauto/workflows"

// Catalog is a loaded, validated set of workflows. It is read-only after
// Load returns.
type Catalog struct {
	dir       string
	workflows map[string]*Workflow
	files     []string
}

// stepRule lists what a step of one action must and must not carry.
type stepRule struct {
	needsType    bool
	needsName    bool
	needsPayload bool
	commitOnly   bool
}

var actionRules = map[Action]stepRule{
	ActionCreate: {needsType: true, needsName: true, needsPayload: true},
	ActionRead:   {needsType: true, needsName: true},
	ActionUpdate: {needsType: true, needsName: true, needsPayload: true},
	ActionDelete: {needsType: true, needsName: true},
	ActionList:   {needsType: true},
	ActionCommit: {commitOnly: true},
	ActionDiff:   {needsType: true, needsName: true, needsPayload: true},
}

// Load reads every *.yaml and *.yml file in dir (empty means CatalogDir)
// and validates the result.
func Load(dir string) (*Catalog, error) {
	if dir == "" {
		dir = CatalogDir
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading catalog directory: %w", err)
	}

	c := &Catalog{dir: dir, workflows: make(map[string]*Workflow)}
	for _, e := range entries {
		if e.IsDir() || !isCatalogFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := c.loadFile(path); err != nil {
			return nil, err
		}
		c.files = append(c.files, path)
	}
	if len(c.workflows) == 0 {
		return nil, fmt.Errorf("no workflows found in %s", dir)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("validating catalog %s: %w", dir, err)
	}
	return c, nil
}

// Parse builds a catalog from one YAML document.
func Parse(data []byte) (*Catalog, error) {
	c := &Catalog{workflows: make(map[string]*Workflow)}
	if err := c.add(data, "<input>"); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func isCatalogFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func (c *Catalog) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return c.add(data, path)
}

func (c *Catalog) add(data []byte, source string) error {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing %s: %w", source, err)
	}
	for name, wf := range f.Workflows {
		if wf == nil {
			return fmt.Errorf("%s: workflow %q is empty", source, name)
		}
		if _, dup := c.workflows[name]; dup {
			return fmt.Errorf("%s: workflow %q defined twice", source, name)
		}
		wf.Name = name
		c.workflows[name] = wf
	}
	return nil
}

func (c *Catalog) validate() error {
	v := &util.ValidationBuilder{}
	for _, name := range c.Names() {
		validateWorkflow(v, c.workflows[name])
	}
	return v.Build()
}

func validateWorkflow(v *util.ValidationBuilder, wf *Workflow) {
	prefix := "workflow " + wf.Name
	v.Add(len(wf.Steps) > 0, prefix+": has no steps")

	for _, p := range wf.IntentPatterns {
		if _, err := regexp.Compile(p); err != nil {
			v.AddErrorf("%s: intent pattern %q: %v", prefix, p, err)
		}
	}
	for _, p := range wf.RequiredParams {
		if _, ok := wf.Defaults[p]; ok {
			v.AddErrorf("%s: required param %s must not have a default", prefix, p)
		}
	}

	for i, s := range wf.Steps {
		label := fmt.Sprintf("%s: step %d", prefix, i+1)
		if s.Name != "" {
			label += " (" + s.Name + ")"
		}
		rule, ok := actionRules[s.Action]
		if !ok {
			v.AddErrorf("%s: unknown action %q", label, s.Action)
			continue
		}
		if rule.needsType {
			if s.ObjectType == "" {
				v.AddErrorf("%s: %s requires object_type", label, s.Action)
			} else if _, ok := device.CanonicalType(s.ObjectType); !ok {
				v.AddErrorf("%s: unknown object type %q", label, s.ObjectType)
			}
		}
		v.Add(!rule.needsName || s.ObjectName != "", fmt.Sprintf("%s: %s requires object_name", label, s.Action))
		v.Add(!rule.needsPayload || len(s.Payload) > 0, fmt.Sprintf("%s: %s requires payload", label, s.Action))
		if rule.commitOnly {
			v.Add(s.ObjectType == "" && s.ObjectName == "" && len(s.Payload) == 0,
				fmt.Sprintf("%s: commit takes no object_type, object_name or payload", label))
		} else {
			v.Add(!s.RequireApproval && !s.Async && len(s.PartialAdmins) == 0,
				fmt.Sprintf("%s: require_approval, async and partial_admins apply to commit only", label))
		}
		if s.Mode != "" {
			if _, err := object.ParseMode(s.Mode); err != nil {
				v.AddErrorf("%s: %v", label, err)
			}
		}
		for _, p := range stepPlaceholders(s) {
			v.Add(wf.declared(p), fmt.Sprintf("%s: placeholder {{%s}} is not a declared param", label, p))
		}
	}
}

// Dir returns the directory the catalog was loaded from.
func (c *Catalog) Dir() string {
	return c.dir
}

// Files returns the files the catalog was loaded from.
func (c *Catalog) Files() []string {
	return c.files
}

// Lookup returns the named workflow.
func (c *Catalog) Lookup(name string) (*Workflow, bool) {
	wf, ok := c.workflows[name]
	return wf, ok
}

// Names returns workflow names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.workflows))
	for n := range c.workflows {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of workflows.
func (c *Catalog) Len() int {
	return len(c.workflows)
}

// RoutingTable implements intent.Catalog.
func (c *Catalog) RoutingTable() []intent.Workflow {
	out := make([]intent.Workflow, 0, len(c.workflows))
	for _, n := range c.Names() {
		out = append(out, c.workflows[n].Routing())
	}
	return out
}
