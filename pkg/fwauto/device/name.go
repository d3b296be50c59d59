package device

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fwauto/fwauto/pkg/util"
)

// MaxNameLength is the longest object name the device accepts.
const MaxNameLength = 63

var (
	namePattern     = regexp.MustCompile(`^[A-Za-z0-9\-_. ]+$`)
	variablePattern = regexp.MustCompile(`^\$[A-Za-z0-9\-_.]+$`)
)

// ValidateName checks an object name against the device naming rules and
// returns a *util.ValidationError describing every violation.
func ValidateName(name string) error {
	v := &util.ValidationBuilder{}
	if name == "" {
		return v.AddError("name must not be empty").Build()
	}
	v.Add(len(name) <= MaxNameLength, fmt.Sprintf("name %q is %d characters, maximum is %d", name, len(name), MaxNameLength))
	v.Add(!strings.HasPrefix(name, " ") && !strings.HasPrefix(name, "_"),
		fmt.Sprintf("name %q must not start with a space or underscore", name))
	v.Add(!strings.Contains(name, "  "), fmt.Sprintf("name %q must not contain consecutive spaces", name))
	v.Add(namePattern.MatchString(name),
		fmt.Sprintf("name %q may only contain letters, digits, '-', '_', '.' and spaces", name))
	return v.Build()
}

// ValidateNameFor applies the naming rules of objectType. Template stack
// variables are named "$name"; everything else follows ValidateName.
func ValidateNameFor(objectType, name string) error {
	t, err := LookupType(objectType)
	if err != nil {
		return err
	}
	if t.Scope != ScopeStack {
		return ValidateName(name)
	}
	v := &util.ValidationBuilder{}
	v.Add(len(name) <= MaxNameLength, fmt.Sprintf("variable %q is longer than %d characters", name, MaxNameLength))
	v.Add(variablePattern.MatchString(name), fmt.Sprintf("variable %q must start with '$' followed by letters, digits, '-', '_' or '.'", name))
	return v.Build()
}
