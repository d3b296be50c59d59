package object

import (
	"context"

	"github.com/fwauto/fwauto/pkg/fwauto/diff"
	"github.com/fwauto/fwauto/pkg/fwauto/validate"
)

// Diff reads the named object and compares it with payload. A missing
// object diffs against an empty one, so every desired field shows as
// added. The read outcome is returned alongside; when it is an error
// other than not-found the diff is empty and should be ignored.
func (e *Engine) Diff(ctx context.Context, objectType, name string, payload map[string]any) (diff.ConfigDiff, Outcome) {
	out := e.Execute(ctx, Request{Operation: Read, ObjectType: objectType, ObjectName: name})
	if !out.OK() && out.Reason != ReasonNotFound {
		return diff.ConfigDiff{ObjectType: objectType, ObjectName: name}, out
	}
	desired := validate.Normalize(objectType, payload)
	delete(desired, "name")
	return diff.Compare(objectType, name, desired, out.Data), out
}
