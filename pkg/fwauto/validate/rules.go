package validate

// Kind is the expected shape of a payload field.
type Kind int

const (
	// KindString accepts strings and other scalars (numbers, booleans).
	KindString Kind = iota
	KindList
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	default:
		return "string"
	}
}

// FieldRule constrains one field.
type FieldRule struct {
	Kind Kind

	// Check names a value validator applied to a scalar field.
	Check string

	// Items names a value validator applied to every list element.
	Items string

	// Nested validates a dict field.
	Nested *Rules
}

// Rules describe one payload or nested dict.
type Rules struct {
	Required      []string
	RequiredOneOf [][]string
	Fields        map[string]FieldRule
}

var (
	str      = FieldRule{Kind: KindString}
	yesNo    = FieldRule{Kind: KindString, Check: "yes_no"}
	names    = FieldRule{Kind: KindList, Items: "non_empty"}
	portSpec = FieldRule{Kind: KindString, Check: "port_spec"}
)

var portRules = &Rules{
	Required: []string{"port"},
	Fields: map[string]FieldRule{
		"port":        portSpec,
		"source-port": portSpec,
		"override":    {Kind: KindDict},
	},
}

var edlSource = &Rules{
	Required: []string{"url"},
	Fields: map[string]FieldRule{
		"url":                 {Kind: KindString, Check: "url"},
		"description":         str,
		"recurring":           {Kind: KindDict, Nested: &Rules{RequiredOneOf: [][]string{{"five-minute", "hourly", "daily", "weekly", "monthly"}}, Fields: recurringFields}},
		"certificate-profile": str,
		"exception-list":      names,
		"expand-domain":       yesNo,
		"auth":                {Kind: KindDict},
	},
}

var recurringFields = map[string]FieldRule{
	"five-minute": {Kind: KindDict},
	"hourly":      {Kind: KindDict},
	"daily":       {Kind: KindDict},
	"weekly":      {Kind: KindDict},
	"monthly":     {Kind: KindDict},
}

var predefinedSource = &Rules{
	Required: []string{"url"},
	Fields: map[string]FieldRule{
		"url":            str,
		"description":    str,
		"exception-list": names,
	},
}

// edlTypes are the external dynamic list kinds the device supports.
var edlTypes = []string{"ip", "domain", "url", "predefined-ip", "predefined-url", "imsi", "imei"}

// variableTypes are the value kinds of a template stack variable.
var variableTypes = []string{
	"ip-netmask", "ip-range", "fqdn", "group-id", "device-priority", "device-id",
	"interface", "as-number", "qos-profile", "egress-max", "link-tag",
}

var ruleActions = "oneof=allow deny drop reset-client reset-server reset-both"

// defaultRules is the rule table keyed by canonical object type.
var defaultRules = map[string]*Rules{
	"address": {
		RequiredOneOf: [][]string{{"ip-netmask", "ip-range", "fqdn", "ip-wildcard"}},
		Fields: map[string]FieldRule{
			"ip-netmask":  {Kind: KindString, Check: "cidr_or_ip"},
			"ip-range":    {Kind: KindString, Check: "ip_range"},
			"fqdn":        {Kind: KindString, Check: "fqdn"},
			"ip-wildcard": {Kind: KindString, Check: "ip_wildcard"},
			"description": str,
			"tag":         names,
		},
	},
	"address-group": {
		RequiredOneOf: [][]string{{"static", "dynamic"}},
		Fields: map[string]FieldRule{
			"static": names,
			"dynamic": {Kind: KindDict, Nested: &Rules{
				Required: []string{"filter"},
				Fields:   map[string]FieldRule{"filter": str},
			}},
			"description": str,
			"tag":         names,
		},
	},
	"service": {
		Required: []string{"protocol"},
		Fields: map[string]FieldRule{
			"protocol": {Kind: KindDict, Nested: &Rules{
				RequiredOneOf: [][]string{{"tcp", "udp", "sctp"}},
				Fields: map[string]FieldRule{
					"tcp":  {Kind: KindDict, Nested: portRules},
					"udp":  {Kind: KindDict, Nested: portRules},
					"sctp": {Kind: KindDict, Nested: portRules},
				},
			}},
			"description": str,
			"tag":         names,
		},
	},
	"service-group": {
		Required: []string{"members"},
		Fields: map[string]FieldRule{
			"members": names,
			"tag":     names,
		},
	},
	"tag": {
		Fields: map[string]FieldRule{
			"color":    {Kind: KindString, Check: "color"},
			"comments": str,
		},
	},
	"application-group": {
		Required: []string{"members"},
		Fields: map[string]FieldRule{
			"members": names,
		},
	},
	"security-rule": {
		Required: []string{"from", "to", "source", "destination", "application", "service", "action"},
		Fields: map[string]FieldRule{
			"from":                               names,
			"to":                                 names,
			"source":                             names,
			"destination":                        names,
			"source-user":                        names,
			"category":                           names,
			"application":                        names,
			"service":                            names,
			"action":                             {Kind: KindString, Check: "action"},
			"description":                        str,
			"tag":                                names,
			"disabled":                           yesNo,
			"log-start":                          yesNo,
			"log-end":                            yesNo,
			"log-setting":                        str,
			"negate-source":                      yesNo,
			"negate-destination":                 yesNo,
			"rule-type":                          {Kind: KindString, Check: "rule_type"},
			"profile-setting":                    {Kind: KindDict},
			"source-hip":                         names,
			"destination-hip":                    names,
			"schedule":                           str,
			"icmp-unreachable":                   yesNo,
			"disable-server-response-inspection": yesNo,
		},
	},
	"nat-rule": {
		Required: []string{"from", "to", "source", "destination"},
		Fields: map[string]FieldRule{
			"from":                    names,
			"to":                      names,
			"source":                  names,
			"destination":             names,
			"service":                 str,
			"to-interface":            str,
			"nat-type":                {Kind: KindString, Check: "nat_type"},
			"source-translation":      {Kind: KindDict},
			"destination-translation": {Kind: KindDict},
			"description":             str,
			"tag":                     names,
			"disabled":                yesNo,
		},
	},
	"security-profile-group": {
		Fields: map[string]FieldRule{
			"virus":             names,
			"spyware":           names,
			"vulnerability":     names,
			"url-filtering":     names,
			"file-blocking":     names,
			"wildfire-analysis": names,
			"data-filtering":    names,
		},
	},
	"external-dynamic-list": {
		Required: []string{"type"},
		Fields: map[string]FieldRule{
			"type": {Kind: KindDict, Nested: &Rules{
				RequiredOneOf: [][]string{edlTypes},
				Fields: map[string]FieldRule{
					"ip":             {Kind: KindDict, Nested: edlSource},
					"domain":         {Kind: KindDict, Nested: edlSource},
					"url":            {Kind: KindDict, Nested: edlSource},
					"imsi":           {Kind: KindDict, Nested: edlSource},
					"imei":           {Kind: KindDict, Nested: edlSource},
					"predefined-ip":  {Kind: KindDict, Nested: predefinedSource},
					"predefined-url": {Kind: KindDict, Nested: predefinedSource},
				},
			}},
		},
	},
	"device-group": {
		Fields: map[string]FieldRule{
			"description": str,
			"devices":     {Kind: KindDict},
		},
	},
	"template": {
		Fields: map[string]FieldRule{
			"description": str,
			"settings":    {Kind: KindDict},
			"config":      {Kind: KindDict},
		},
	},
	"template-stack": {
		Required: []string{"templates"},
		Fields: map[string]FieldRule{
			"templates":   names,
			"description": str,
			"devices":     {Kind: KindDict},
			"settings":    {Kind: KindDict},
		},
	},
	"template-stack-variable": {
		Required: []string{"type"},
		Fields: map[string]FieldRule{
			"type":        {Kind: KindDict, Nested: variableRules()},
			"description": str,
		},
	},
}

func variableRules() *Rules {
	r := &Rules{
		RequiredOneOf: [][]string{variableTypes},
		Fields:        make(map[string]FieldRule, len(variableTypes)),
	}
	for _, t := range variableTypes {
		r.Fields[t] = str
	}
	r.Fields["ip-netmask"] = FieldRule{Kind: KindString, Check: "cidr_or_ip"}
	r.Fields["ip-range"] = FieldRule{Kind: KindString, Check: "ip_range"}
	r.Fields["fqdn"] = FieldRule{Kind: KindString, Check: "fqdn"}
	return r
}
