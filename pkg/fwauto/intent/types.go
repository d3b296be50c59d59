// Package intent decides whether a free-text request should run a
// predefined workflow or be handed to exploratory execution.
package intent

import "context"

// Route is where a request goes.
type Route int

const (
	Exploratory Route = iota
	Deterministic
)

func (r Route) String() string {
	if r == Deterministic {
		return "deterministic"
	}
	return "exploratory"
}

// Complexity is the classifier's estimate of how involved a request is.
type Complexity string

const (
	Simple   Complexity = "simple"
	Moderate Complexity = "moderate"
	Complex  Complexity = "complex"
	Unknown  Complexity = "unknown"
)

// inverse maps complexity to the score factor favouring simple requests.
func (c Complexity) inverse() float64 {
	switch c {
	case Simple:
		return 1.0
	case Moderate:
		return 0.6
	case Complex:
		return 0.3
	default:
		return 0.5
	}
}

// Classification is the structured reading of a request.
type Classification struct {
	PrimaryIntent string              `json:"primary_intent,omitempty"`
	TargetObjects []string            `json:"target_objects,omitempty"`
	Entities      map[string][]string `json:"entities,omitempty"`
	MultiStep     bool                `json:"multi_step"`
	Complexity    Complexity          `json:"complexity"`
}

// Alternative is a runner-up workflow.
type Alternative struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Match is the best workflow for a request. An empty Workflow means none.
type Match struct {
	Workflow     string        `json:"workflow,omitempty"`
	Confidence   float64       `json:"confidence"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
}

// Workflow is what routing needs to know about a catalog entry.
type Workflow struct {
	Name           string
	Description    string
	Keywords       []string
	IntentPatterns []string
	RequiredParams []string
	OptionalParams []string
}

// Catalog supplies the workflows to route between. It is consulted on
// every request so a reloaded catalog takes effect immediately.
type Catalog interface {
	RoutingTable() []Workflow
}

// StaticCatalog is a fixed Catalog.
type StaticCatalog []Workflow

func (c StaticCatalog) RoutingTable() []Workflow { return c }

// Classifier reads requests. Implementations may call out to a language
// model; KeywordClassifier is a deterministic one.
type Classifier interface {
	Classify(ctx context.Context, text string) (*Classification, error)
	Match(ctx context.Context, c *Classification, text string, workflows []Workflow) (*Match, error)
	ExtractParams(ctx context.Context, text string, wf Workflow) (map[string]string, error)
}

// Decision is the routing result.
type Decision struct {
	Route      Route             `json:"-"`
	Confidence float64           `json:"confidence"`
	Workflow   string            `json:"matched_workflow,omitempty"`
	Params     map[string]string `json:"extracted_params"`
	Missing    []string          `json:"missing_params,omitempty"`
	Reason     string            `json:"reason"`

	// Forced is set when a routing keyword adjusted the score.
	Forced bool `json:"forced"`

	Classification *Classification `json:"classification,omitempty"`
	Match          *Match          `json:"match,omitempty"`
}
