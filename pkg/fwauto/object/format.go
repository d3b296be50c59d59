package object

import (
	"fmt"

	"github.com/fwauto/fwauto/pkg/fwauto/device"
)

// Message prefixes.
const (
	PrefixOK    = "[OK]"
	PrefixSkip  = "[SKIP]"
	PrefixError = "[ERROR]"
)

var pastTense = map[Operation]string{
	Create: "Created",
	Read:   "Read",
	Update: "Updated",
	Delete: "Deleted",
	List:   "Listed",
}

// FormatResponse renders the one message for an outcome's
// (operation, status, reason) combination from values already recorded
// on it.
func FormatResponse(out Outcome, devCtx device.Context) string {
	obj := describeObject(out.ObjectType, out.ObjectName)

	switch out.Status {
	case Success:
		if out.Operation == List {
			return fmt.Sprintf("%s Found %d %s object(s) in %s", PrefixOK, out.Count, out.ObjectType, devCtx.Scope())
		}
		return fmt.Sprintf("%s %s %s in %s", PrefixOK, pastTense[out.Operation], obj, devCtx.Scope())

	case Skipped:
		switch out.Reason {
		case ReasonAlreadyExists:
			return fmt.Sprintf("%s %s already exists, not created", PrefixSkip, obj)
		case ReasonNotFound:
			return fmt.Sprintf("%s %s not found, nothing to %s", PrefixSkip, obj, out.Operation)
		}
		return fmt.Sprintf("%s %s %s skipped", PrefixSkip, out.Operation, obj)
	}

	switch out.Reason {
	case ReasonAlreadyExists:
		return fmt.Sprintf("%s %s already exists", PrefixError, obj)
	case ReasonNotFound:
		if out.Operation == Update {
			return fmt.Sprintf("%s %s does not exist", PrefixError, obj)
		}
		return fmt.Sprintf("%s %s not found", PrefixError, obj)
	}
	if out.Err == nil {
		return fmt.Sprintf("%s Failed to %s %s", PrefixError, out.Operation, obj)
	}
	return fmt.Sprintf("%s Failed to %s %s (%s): %v", PrefixError, out.Operation, obj, out.Category, out.Err)
}

func describeObject(objectType, name string) string {
	if name == "" {
		return objectType
	}
	return fmt.Sprintf("%s '%s'", objectType, name)
}
