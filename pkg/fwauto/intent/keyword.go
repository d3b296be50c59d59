package intent

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/fwauto/fwauto/pkg/fwauto/device"
	"github.com/fwauto/fwauto/pkg/util"
)

// verbs maps request words to primary intents. Two-word phrases are
// checked before single words.
var verbs = map[string]string{
	"set up":    "setup",
	"clean up":  "delete",
	"create":    "create",
	"add":       "create",
	"new":       "create",
	"make":      "create",
	"block":     "create",
	"setup":     "setup",
	"configure": "setup",
	"provision": "setup",
	"deploy":    "setup",
	"onboard":   "setup",
	"update":    "update",
	"modify":    "update",
	"change":    "update",
	"edit":      "update",
	"rename":    "update",
	"delete":    "delete",
	"remove":    "delete",
	"destroy":   "delete",
	"cleanup":   "delete",
	"show":      "read",
	"get":       "read",
	"read":      "read",
	"display":   "read",
	"describe":  "read",
	"view":      "read",
	"list":      "list",
	"enumerate": "list",
	"commit":    "commit",
	"push":      "commit",
	"apply":     "commit",
	"diff":      "diff",
	"compare":   "diff",
	"drift":     "diff",
	"reconcile": "diff",
}

// objectSynonyms covers words that are not object type names themselves.
var objectSynonyms = map[string]string{
	"rule":     "security-rule",
	"rules":    "security-rule",
	"policy":   "security-rule",
	"policies": "security-rule",
	"nat":      "nat-rule",
	"addr":     "address",
	"group":    "address-group",
	"groups":   "address-group",
}

var (
	addressPattern = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}(?:/\d{1,2})?\b`)
	quotedPattern  = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	namedPattern   = regexp.MustCompile(`(?i)\b(?:named|called)\s+([A-Za-z0-9][A-Za-z0-9._-]*)`)
	portPattern    = regexp.MustCompile(`(?i)\bports?\s+(\d{1,5})\b|:(\d{1,5})\b`)
	multiStepWords = regexp.MustCompile(`(?i)\b(?:and then|then|afterwards|followed by)\b`)
)

// KeywordClassifier is a deterministic Classifier built on word tables
// and regular expressions.
type KeywordClassifier struct {
	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

// NewKeywordClassifier returns a ready classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{patterns: make(map[string]*regexp.Regexp)}
}

// Classify reads intent, target objects, entities and complexity.
func (k *KeywordClassifier) Classify(_ context.Context, text string) (*Classification, error) {
	words := strings.Fields(normalizeName(text))
	c := &Classification{Entities: entities(text)}

	var intents []string
	seen := map[string]bool{}
	for i := 0; i < len(words); i++ {
		if i+1 < len(words) {
			if v, ok := verbs[words[i]+" "+words[i+1]]; ok {
				intents = appendUnique(intents, v)
				i++
				continue
			}
			if t, ok := device.CanonicalType(words[i] + "-" + words[i+1]); ok {
				if !seen[t] {
					seen[t] = true
					c.TargetObjects = append(c.TargetObjects, t)
				}
				i++
				continue
			}
		}
		if v, ok := verbs[words[i]]; ok {
			intents = appendUnique(intents, v)
			continue
		}
		if t, ok := objectWord(words[i]); ok && !seen[t] {
			seen[t] = true
			c.TargetObjects = append(c.TargetObjects, t)
		}
	}
	if len(intents) > 0 {
		c.PrimaryIntent = intents[0]
	}
	c.MultiStep = multiStepWords.MatchString(text) || len(intents) > 1

	n := len(intents) + len(c.TargetObjects)
	switch {
	case n == 0:
		c.Complexity = Unknown
	case c.MultiStep || n >= 5:
		c.Complexity = Complex
	case n >= 3:
		c.Complexity = Moderate
	default:
		c.Complexity = Simple
	}
	return c, nil
}

func objectWord(w string) (string, bool) {
	if t, ok := objectSynonyms[w]; ok {
		return t, true
	}
	for _, cand := range []string{w, strings.TrimSuffix(w, "es"), strings.TrimSuffix(w, "s")} {
		if t, ok := device.CanonicalType(cand); ok {
			return t, true
		}
	}
	return "", false
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// entities extracts addresses, names and ports in text order.
func entities(text string) map[string][]string {
	out := map[string][]string{}
	for _, a := range addressPattern.FindAllString(text, -1) {
		switch {
		case strings.Contains(a, "/") && util.IsValidIPOrCIDR(a):
			out["cidr"] = append(out["cidr"], a)
		case util.IsValidIP(a):
			out["ip"] = append(out["ip"], a)
		}
	}
	for _, m := range quotedPattern.FindAllStringSubmatch(text, -1) {
		out["name"] = append(out["name"], m[1]+m[2])
	}
	for _, m := range namedPattern.FindAllStringSubmatch(text, -1) {
		out["name"] = append(out["name"], strings.TrimRight(m[1], "."))
	}
	for _, m := range portPattern.FindAllStringSubmatch(text, -1) {
		out["port"] = append(out["port"], m[1]+m[2])
	}
	return out
}

// Match scores every workflow by keyword overlap and intent patterns.
func (k *KeywordClassifier) Match(_ context.Context, _ *Classification, text string, workflows []Workflow) (*Match, error) {
	words := map[string]bool{}
	for _, w := range strings.Fields(normalizeName(text)) {
		words[w] = true
	}
	normalized := " " + normalizeName(text) + " "

	var scored []Alternative
	for _, wf := range workflows {
		s := k.score(wf, text, normalized, words)
		if s > 0 {
			scored = append(scored, Alternative{Name: wf.Name, Score: s})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Name < scored[j].Name
	})

	if len(scored) == 0 {
		return &Match{}, nil
	}
	return &Match{
		Workflow:     scored[0].Name,
		Confidence:   scored[0].Score,
		Alternatives: scored[1:],
	}, nil
}

func (k *KeywordClassifier) score(wf Workflow, text, normalized string, words map[string]bool) float64 {
	if name := normalizeName(wf.Name); name != "" && strings.Contains(normalized, " "+name+" ") {
		return 0.95
	}

	kw := 0.0
	if len(wf.Keywords) > 0 {
		hits := 0
		for _, w := range wf.Keywords {
			if words[strings.ToLower(w)] {
				hits++
			}
		}
		denom := len(wf.Keywords)
		if denom > 3 {
			denom = 3
		}
		kw = float64(hits) / float64(denom)
		if kw > 1 {
			kw = 1
		}
	}
	if len(wf.IntentPatterns) == 0 {
		return kw
	}

	pattern := 0.0
	for _, p := range wf.IntentPatterns {
		if re := k.compile(p); re != nil && re.MatchString(text) {
			pattern = 1
			break
		}
	}
	return 0.5*pattern + 0.5*kw
}

func (k *KeywordClassifier) compile(p string) *regexp.Regexp {
	k.mu.Lock()
	defer k.mu.Unlock()
	if re, ok := k.patterns[p]; ok {
		return re
	}
	re, err := regexp.Compile("(?i)" + p)
	if err != nil {
		util.WithField("pattern", p).Warnf("Skipping invalid intent pattern: %v", err)
	}
	k.patterns[p] = re
	return re
}

// ExtractParams fills workflow parameters from key=value pairs first, then
// from typed entities: address params take IPs, name params take quoted
// or "named X" names, port params take ports.
func (k *KeywordClassifier) ExtractParams(_ context.Context, text string, wf Workflow) (map[string]string, error) {
	params := map[string]string{}
	all := append(append([]string{}, wf.RequiredParams...), wf.OptionalParams...)

	for _, p := range all {
		if v, ok := explicitParam(text, p); ok {
			params[p] = v
		}
	}

	ents := entities(text)
	addresses := addressPattern.FindAllString(text, -1)
	used := map[string]int{}
	take := func(kind string, list []string) string {
		for used[kind] < len(list) {
			v := list[used[kind]]
			used[kind]++
			if !containsValue(params, v) {
				return v
			}
		}
		return ""
	}

	for _, p := range all {
		if params[p] != "" {
			continue
		}
		var v string
		switch paramKind(p) {
		case "address":
			v = take("address", addresses)
		case "name":
			v = take("name", ents["name"])
		case "port":
			v = take("port", ents["port"])
		}
		if v != "" {
			params[p] = v
		}
	}
	return params, nil
}

func explicitParam(text, name string) (string, bool) {
	alts := []string{regexp.QuoteMeta(name)}
	if h := util.Hyphenate(name); h != name {
		alts = append(alts, regexp.QuoteMeta(h))
	}
	re, err := regexp.Compile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\s*[=:]\s*("[^"]*"|'[^']*'|[^\s,;]+)`)
	if err != nil {
		return "", false
	}
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.Trim(m[1], `"'`), true
}

// paramKind classifies a parameter by the words in its name.
func paramKind(name string) string {
	for _, part := range strings.FieldsFunc(strings.ToLower(name), func(r rune) bool { return r == '_' || r == '-' }) {
		switch part {
		case "ip", "address", "addr", "subnet", "network", "cidr", "host":
			return "address"
		case "name":
			return "name"
		case "port":
			return "port"
		}
	}
	return ""
}

func containsValue(m map[string]string, v string) bool {
	for _, x := range m {
		if x == v {
			return true
		}
	}
	return false
}
