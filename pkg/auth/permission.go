// Package auth provides permission-based access control.
package auth

import "strings"

// Permission defines an action that can be controlled
type Permission string

// Standard permissions
const (
	PermObjectView   Permission = "object.view"
	PermObjectCreate Permission = "object.create"
	PermObjectUpdate Permission = "object.update"
	PermObjectDelete Permission = "object.delete"

	PermCommit        Permission = "commit"
	PermCommitApprove Permission = "commit.approve"

	PermWorkflowView Permission = "workflow.view"
	PermWorkflowRun  Permission = "workflow.run"

	PermKeygen    Permission = "device.keygen"
	PermAuditView Permission = "audit.view"

	PermAll Permission = "all" // Superuser - allows everything
)

// PermissionCategory groups related permissions
type PermissionCategory struct {
	Name        string
	Description string
	Permissions []Permission
}

// StandardCategories defines standard permission categories
var StandardCategories = []PermissionCategory{
	{
		Name:        "object",
		Description: "Configuration objects",
		Permissions: []Permission{PermObjectView, PermObjectCreate, PermObjectUpdate, PermObjectDelete},
	},
	{
		Name:        "commit",
		Description: "Commits and approvals",
		Permissions: []Permission{PermCommit, PermCommitApprove},
	},
	{
		Name:        "workflow",
		Description: "Predefined workflows",
		Permissions: []Permission{PermWorkflowView, PermWorkflowRun},
	},
	{
		Name:        "device",
		Description: "Device credentials",
		Permissions: []Permission{PermKeygen},
	},
	{
		Name:        "audit",
		Description: "Audit log access",
		Permissions: []Permission{PermAuditView},
	},
}

// ForOperation maps an object operation name to its permission.
func ForOperation(operation string) Permission {
	switch strings.ToLower(operation) {
	case "create":
		return PermObjectCreate
	case "update":
		return PermObjectUpdate
	case "delete":
		return PermObjectDelete
	default:
		return PermObjectView
	}
}

// Context provides context for permission checks
type Context struct {
	Device     string
	ObjectType string
	Workflow   string
}

// NewContext creates a new permission context
func NewContext() *Context {
	return &Context{}
}

// WithDevice sets the device context
func (c *Context) WithDevice(device string) *Context {
	c.Device = device
	return c
}

// WithObjectType sets the object type context
func (c *Context) WithObjectType(objectType string) *Context {
	c.ObjectType = objectType
	return c
}

// WithWorkflow sets the workflow context
func (c *Context) WithWorkflow(name string) *Context {
	c.Workflow = name
	return c
}

// IsReadOnly returns true if the permission is read-only
func (p Permission) IsReadOnly() bool {
	switch p {
	case PermObjectView, PermWorkflowView, PermAuditView:
		return true
	}
	return false
}

// IsWriteOperation returns true if the permission involves modification
func (p Permission) IsWriteOperation() bool {
	return !p.IsReadOnly() && p != PermKeygen
}
