package intent

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/fwauto/fwauto/pkg/fwauto/metrics"
	"github.com/fwauto/fwauto/pkg/util"
)

// Routing thresholds.
const (
	DefaultThreshold = 0.80
	AmbiguityMargin  = 0.10
)

// Score weights.
const (
	weightClarity    = 0.3
	weightMatch      = 0.4
	weightParams     = 0.2
	weightComplexity = 0.1

	unclearIntent            = 0.3
	forcedExploreCap         = 0.5
	forcedDeterministicBoost = 1.2
	scoreEpsilon             = 1e-9
	forcedMatchConfidence    = 1.0
)

var (
	exploratoryKeywords   = []string{"explore", "show me", "investigate", "what is", "why", "analyze"}
	deterministicKeywords = []string{"workflow", "run", "execute"}

	exploratoryPattern   = keywordPattern(exploratoryKeywords)
	deterministicPattern = keywordPattern(deterministicKeywords)
)

func keywordPattern(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(w), " ", `\s+`)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// forcing is the outcome of keyword checks.
type forcing int

const (
	notForced forcing = iota
	forcedExploratory
	forcedDeterministic
)

// forcedRoute checks routing keywords. Exploratory wins when both kinds
// appear.
func forcedRoute(text string) forcing {
	switch {
	case exploratoryPattern.MatchString(text):
		return forcedExploratory
	case deterministicPattern.MatchString(text):
		return forcedDeterministic
	}
	return notForced
}

// Router routes requests between workflows and exploratory execution.
type Router struct {
	classifier Classifier
	catalog    Catalog
	threshold  float64
	margin     float64
	metrics    *metrics.Metrics
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(t float64) RouterOption {
	return func(r *Router) { r.threshold = t }
}

// WithRouterMetrics records each decision.
func WithRouterMetrics(m *metrics.Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// NewRouter returns a router over catalog using classifier.
func NewRouter(classifier Classifier, catalog Catalog, opts ...RouterOption) *Router {
	r := &Router{
		classifier: classifier,
		catalog:    catalog,
		threshold:  DefaultThreshold,
		margin:     AmbiguityMargin,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route decides where text goes. Classifier failures never escape; they
// produce an Exploratory decision naming the failure.
func (r *Router) Route(ctx context.Context, text string) (d Decision) {
	log := util.WithOperation("route")
	defer func() {
		if p := recover(); p != nil {
			d = Decision{Route: Exploratory, Params: map[string]string{},
				Reason: fmt.Sprintf("classifier failed: %s: %v", util.TypeName(p), p)}
		}
		if d.Params == nil {
			d.Params = map[string]string{}
		}
		log.WithField("route", d.Route).Debugf("%s (%.2f): %s", d.Workflow, d.Confidence, d.Reason)
		r.metrics.RecordRoute(d.Route.String(), d.Forced)
	}()

	// ParseRequest
	force := forcedRoute(text)
	c, err := r.classifier.Classify(ctx, text)
	if err != nil {
		return Decision{Route: Exploratory, Forced: force == forcedExploratory, Reason: "classifier failed: " + err.Error()}
	}

	// MatchWorkflow
	workflows := r.catalog.RoutingTable()
	m := namedWorkflow(text, workflows, force)
	if m == nil {
		if m, err = r.classifier.Match(ctx, c, text, workflows); err != nil {
			return Decision{Route: Exploratory, Forced: force == forcedExploratory, Classification: c,
				Reason: "workflow matching failed: " + err.Error()}
		}
	}
	d = Decision{Classification: c, Match: m, Forced: force != notForced}
	if m == nil || m.Workflow == "" {
		d.Route = Exploratory
		d.Forced = force == forcedExploratory
		d.Reason = "no matching workflow"
		return d
	}
	wf, ok := lookup(workflows, m.Workflow)
	if !ok {
		d.Route = Exploratory
		d.Reason = fmt.Sprintf("no matching workflow (%q is not in the catalog)", m.Workflow)
		return d
	}
	d.Workflow = wf.Name

	// ExtractParameters
	params, err := r.classifier.ExtractParams(ctx, text, wf)
	if err != nil {
		d.Route = Exploratory
		d.Reason = "parameter extraction failed: " + err.Error()
		return d
	}
	d.Params = params
	completeness, missing := Completeness(wf.RequiredParams, params)
	d.Missing = missing

	// ScoreConfidence
	d.Confidence = Score(c.PrimaryIntent != "", m.Confidence, completeness, c.Complexity)
	switch force {
	case forcedExploratory:
		d.Confidence = math.Min(d.Confidence, forcedExploreCap)
	case forcedDeterministic:
		d.Confidence = math.Min(d.Confidence*forcedDeterministicBoost, 1.0)
	}

	// Decide
	switch {
	case force == forcedExploratory:
		d.Route = Exploratory
		d.Reason = "exploratory keywords in request"
	case d.Confidence+scoreEpsilon < r.threshold:
		d.Route = Exploratory
		d.Reason = fmt.Sprintf("confidence %.2f below threshold %.2f", d.Confidence, r.threshold)
	default:
		if alt, ok := r.ambiguous(m); ok {
			d.Route = Exploratory
			d.Reason = fmt.Sprintf("ambiguous: %s (%.2f) and %s (%.2f)", m.Workflow, m.Confidence, alt.Name, alt.Score)
			return d
		}
		d.Route = Deterministic
		d.Reason = fmt.Sprintf("matched workflow %s", wf.Name)
	}
	return d
}

// ambiguous returns an alternative scoring within the margin of the match.
func (r *Router) ambiguous(m *Match) (Alternative, bool) {
	for _, alt := range m.Alternatives {
		if alt.Name != m.Workflow && m.Confidence-alt.Score <= r.margin+scoreEpsilon {
			return alt, true
		}
	}
	return Alternative{}, false
}

// Score combines the routing factors with fixed weights.
func Score(intentIdentified bool, workflowMatch, paramCompleteness float64, complexity Complexity) float64 {
	clarity := unclearIntent
	if intentIdentified {
		clarity = 1.0
	}
	return weightClarity*clarity +
		weightMatch*workflowMatch +
		weightParams*paramCompleteness +
		weightComplexity*complexity.inverse()
}

// Completeness is the share of required params present in params, 1.0
// when nothing is required, along with the missing names.
func Completeness(required []string, params map[string]string) (float64, []string) {
	if len(required) == 0 {
		return 1.0, nil
	}
	var missing []string
	for _, p := range required {
		if strings.TrimSpace(params[p]) == "" {
			missing = append(missing, p)
		}
	}
	return float64(len(required)-len(missing)) / float64(len(required)), missing
}

// namedWorkflow matches a workflow named verbatim in a request that asked
// for a workflow explicitly.
func namedWorkflow(text string, workflows []Workflow, force forcing) *Match {
	if force != forcedDeterministic {
		return nil
	}
	normalized := " " + normalizeName(text) + " "
	best := ""
	for _, wf := range workflows {
		name := normalizeName(wf.Name)
		if name != "" && strings.Contains(normalized, " "+name+" ") && len(name) > len(best) {
			best = wf.Name
		}
	}
	if best == "" {
		return nil
	}
	return &Match{Workflow: best, Confidence: forcedMatchConfidence}
}

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeName lowercases s and collapses separators to single spaces.
func normalizeName(s string) string {
	return strings.TrimSpace(nonWord.ReplaceAllString(strings.ToLower(s), " "))
}

func lookup(workflows []Workflow, name string) (Workflow, bool) {
	for _, wf := range workflows {
		if wf.Name == name {
			return wf, true
		}
	}
	return Workflow{}, false
}
