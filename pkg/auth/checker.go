package auth

import (
	"fmt"
	"os/user"
	"sort"

	"github.com/fwauto/fwauto/pkg/util"
)

// Policy maps permissions to the users and groups holding them. Keys of
// Permissions and of each Workflows entry are permission names or "all".
type Policy struct {
	SuperUsers  []string                       `json:"super_users,omitempty"`
	UserGroups  map[string][]string            `json:"user_groups,omitempty"`
	Permissions map[string][]string            `json:"permissions,omitempty"`
	Workflows   map[string]map[string][]string `json:"workflow_permissions,omitempty"`
}

// Checker validates user permissions
type Checker struct {
	policy      *Policy
	currentUser string
}

// NewChecker creates a permission checker. A nil policy disables
// enforcement: every check passes.
func NewChecker(policy *Policy) *Checker {
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	return &Checker{
		policy:      policy,
		currentUser: username,
	}
}

// SetUser overrides the current user (for testing or sudo)
func (c *Checker) SetUser(username string) {
	c.currentUser = username
}

// CurrentUser returns the current username
func (c *Checker) CurrentUser() string {
	return c.currentUser
}

// Enforcing reports whether a policy is configured.
func (c *Checker) Enforcing() bool {
	return c.policy != nil
}

// Check verifies if the current user has a permission
func (c *Checker) Check(permission Permission, ctx *Context) error {
	return c.CheckUser(c.currentUser, permission, ctx)
}

// CheckUser verifies if a specific user has a permission
func (c *Checker) CheckUser(username string, permission Permission, ctx *Context) error {
	if c.policy == nil || c.isSuperUser(username) {
		return nil
	}

	// Workflow-specific grants first
	if ctx != nil && ctx.Workflow != "" {
		if perms, ok := c.policy.Workflows[ctx.Workflow]; ok && c.checkPermissionMap(username, permission, perms) {
			return nil
		}
	}

	if c.checkPermissionMap(username, permission, c.policy.Permissions) {
		return nil
	}

	return &PermissionError{
		User:       username,
		Permission: permission,
		Context:    ctx,
	}
}

// IsSuperUser returns true if the current user is a superuser
func (c *Checker) IsSuperUser() bool {
	return c.isSuperUser(c.currentUser)
}

func (c *Checker) isSuperUser(username string) bool {
	if c.policy == nil {
		return false
	}
	for _, su := range c.policy.SuperUsers {
		if su == username {
			return true
		}
	}
	return false
}

// checkPermissionMap checks whether username has the given permission in permMap.
// It first checks the "all" wildcard key, then the specific permission key.
func (c *Checker) checkPermissionMap(username string, permission Permission, permMap map[string][]string) bool {
	if groups, ok := permMap[string(PermAll)]; ok && c.userInGroups(username, groups) {
		return true
	}
	groups, ok := permMap[string(permission)]
	return ok && c.userInGroups(username, groups)
}

func (c *Checker) userInGroups(username string, allowedGroups []string) bool {
	for _, group := range allowedGroups {
		if group == username {
			return true
		}
		for _, member := range c.policy.UserGroups[group] {
			if member == username {
				return true
			}
		}
	}
	return false
}

// ListPermissions returns all permissions the current user has
func (c *Checker) ListPermissions() []Permission {
	return c.ListPermissionsForUser(c.currentUser)
}

// ListPermissionsForUser returns the global permissions a user has, sorted.
func (c *Checker) ListPermissionsForUser(username string) []Permission {
	if c.policy == nil || c.isSuperUser(username) {
		return []Permission{PermAll}
	}

	var perms []Permission
	for permStr, groups := range c.policy.Permissions {
		if c.userInGroups(username, groups) {
			perms = append(perms, Permission(permStr))
		}
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// GetUserGroups returns the groups a user belongs to, sorted.
func (c *Checker) GetUserGroups(username string) []string {
	if c.policy == nil {
		return nil
	}
	var groups []string
	for groupName, members := range c.policy.UserGroups {
		for _, member := range members {
			if member == username {
				groups = append(groups, groupName)
				break
			}
		}
	}
	sort.Strings(groups)
	return groups
}

// PermissionError represents a permission denial
type PermissionError struct {
	User       string
	Permission Permission
	Context    *Context
}

func (e *PermissionError) Error() string {
	msg := fmt.Sprintf("permission denied: user '%s' does not have '%s' permission", e.User, e.Permission)
	if e.Context != nil {
		if e.Context.Workflow != "" {
			msg += fmt.Sprintf(" for workflow '%s'", e.Context.Workflow)
		}
		if e.Context.ObjectType != "" {
			msg += fmt.Sprintf(" on %s objects", e.Context.ObjectType)
		}
		if e.Context.Device != "" {
			msg += fmt.Sprintf(" on device '%s'", e.Context.Device)
		}
	}
	return msg
}

func (e *PermissionError) Unwrap() error {
	return util.ErrPermissionDenied
}
