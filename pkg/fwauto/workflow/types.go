// Package workflow loads predefined multi-step workflows from YAML and runs
// them through the object engine and commit machine.
package workflow

import "github.com/fwauto/fwauto/pkg/fwauto/intent"

// Action is what a step does.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionList   Action = "list"
	ActionCommit Action = "commit"
	ActionDiff   Action = "diff"
)

// Step is one workflow step. String fields and payload values may hold
// {{param}} placeholders.
type Step struct {
	Name       string         `yaml:"name" json:"name"`
	Action     Action         `yaml:"action" json:"action"`
	ObjectType string         `yaml:"object_type,omitempty" json:"object_type,omitempty"`
	ObjectName string         `yaml:"object_name,omitempty" json:"object_name,omitempty"`
	Payload    map[string]any `yaml:"payload,omitempty" json:"payload,omitempty"`
	Mode       string         `yaml:"mode,omitempty" json:"mode,omitempty"`
	Filter     string         `yaml:"filter,omitempty" json:"filter,omitempty"`

	Description     string   `yaml:"description,omitempty" json:"description,omitempty"`
	PartialAdmins   []string `yaml:"partial_admins,omitempty" json:"partial_admins,omitempty"`
	RequireApproval bool     `yaml:"require_approval,omitempty" json:"require_approval,omitempty"`
	Async           bool     `yaml:"async,omitempty" json:"async,omitempty"`

	ContinueOnError bool `yaml:"continue_on_error,omitempty" json:"continue_on_error,omitempty"`
}

// Workflow is a named sequence of steps.
type Workflow struct {
	Name           string            `yaml:"-" json:"name"`
	Description    string            `yaml:"description" json:"description"`
	Keywords       []string          `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	IntentPatterns []string          `yaml:"intent_patterns,omitempty" json:"intent_patterns,omitempty"`
	RequiredParams []string          `yaml:"required_params,omitempty" json:"required_params,omitempty"`
	OptionalParams []string          `yaml:"optional_params,omitempty" json:"optional_params,omitempty"`
	Defaults       map[string]string `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Steps          []Step            `yaml:"steps" json:"steps"`
}

// Routing returns the fields the intent router needs.
func (w *Workflow) Routing() intent.Workflow {
	return intent.Workflow{
		Name:           w.Name,
		Description:    w.Description,
		Keywords:       w.Keywords,
		IntentPatterns: w.IntentPatterns,
		RequiredParams: w.RequiredParams,
		OptionalParams: w.OptionalParams,
	}
}

// declared reports whether name is a parameter of w.
func (w *Workflow) declared(name string) bool {
	for _, p := range w.RequiredParams {
		if p == name {
			return true
		}
	}
	for _, p := range w.OptionalParams {
		if p == name {
			return true
		}
	}
	_, ok := w.Defaults[name]
	return ok
}

// catalogFile is the on-disk layout of a catalog file.
type catalogFile struct {
	Workflows map[string]*Workflow `yaml:"workflows"`
}
