package device

import (
	"fmt"
	"strings"

	"github.com/fwauto/fwauto/pkg/util"
)

// Resolve returns the xpath for objectType in ctx. With an empty name the
// collection path is returned; otherwise the path of the named entry.
func Resolve(objectType, name string, ctx Context) (string, error) {
	t, err := LookupType(objectType)
	if err != nil {
		return "", err
	}
	base, err := collection(t, ctx)
	if err != nil {
		return "", err
	}
	if name == "" {
		return base, nil
	}
	if strings.Contains(name, "'") {
		return "", util.NewValidationError(fmt.Sprintf("name %q contains a single quote", name))
	}
	return base + entry(name), nil
}

// CollectionPath returns the path of the container holding objectType entries.
func CollectionPath(objectType string, ctx Context) (string, error) {
	return Resolve(objectType, "", ctx)
}

// EntryPath returns the path of a single named entry. name must not be empty.
func EntryPath(objectType, name string, ctx Context) (string, error) {
	if name == "" {
		return "", util.NewValidationError("object name is required")
	}
	return Resolve(objectType, name, ctx)
}

func collection(t *ObjectType, ctx Context) (string, error) {
	switch t.Scope {
	case ScopeManagement:
		return DeviceRoot + "/" + t.Segment, nil
	case ScopeStack:
		if ctx.Kind != Manager || ctx.TemplateStack == "" {
			return "", util.NewPreconditionError("resolve", t.Name, "template stack required in context", ctx.String())
		}
		return DeviceRoot + "/template-stack" + entry(ctx.TemplateStack) + "/" + t.Segment, nil
	}

	base, deviceLike := ctx.contentBase()
	if deviceLike {
		return base + "/" + t.Segment, nil
	}
	return base + "/" + t.managerSegment(), nil
}
