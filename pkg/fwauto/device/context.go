// Package device resolves configuration paths for objects on a firewall or
// management appliance and validates the names placed into those paths.
package device

import (
	"fmt"
	"strings"
)

// Kind distinguishes a device that holds its own configuration from one that
// manages configuration for many devices.
type Kind int

const (
	Standalone Kind = iota
	Manager
)

// DefaultVsys is used when a standalone context leaves Vsys empty.
const DefaultVsys = "vsys1"

// DeviceRoot is the root of every device-local configuration tree.
const DeviceRoot = "/config/devices/entry[@name='localhost.localdomain']"

// SharedRoot is the manager's shared configuration base.
const SharedRoot = "/config/shared"

func (k Kind) String() string {
	switch k {
	case Standalone:
		return "standalone"
	case Manager:
		return "manager"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts "standalone"/"firewall" and "manager"/"panorama".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standalone", "firewall":
		return Standalone, nil
	case "manager", "panorama":
		return Manager, nil
	}
	return Standalone, fmt.Errorf("unknown device kind %q", s)
}

// Context scopes path resolution. For Manager devices at most one of
// Template and DeviceGroup is used per resolution; Template wins.
type Context struct {
	Kind          Kind   `json:"kind"`
	Vsys          string `json:"vsys,omitempty"`
	DeviceGroup   string `json:"device_group,omitempty"`
	Template      string `json:"template,omitempty"`
	TemplateStack string `json:"template_stack,omitempty"`
}

// StandaloneContext returns a standalone context for vsys (empty means vsys1).
func StandaloneContext(vsys string) Context {
	return Context{Kind: Standalone, Vsys: vsys}
}

// VsysOrDefault returns Vsys, or DefaultVsys when empty.
func (c Context) VsysOrDefault() string {
	if c.Vsys == "" {
		return DefaultVsys
	}
	return c.Vsys
}

// Scope names the base an object in this context lands under.
func (c Context) Scope() string {
	if c.Kind == Standalone {
		return "vsys " + c.VsysOrDefault()
	}
	switch {
	case c.Template != "":
		return "template " + c.Template
	case c.DeviceGroup != "":
		return "device-group " + c.DeviceGroup
	default:
		return "shared"
	}
}

func (c Context) String() string {
	return c.Kind.String() + " " + c.Scope()
}

// contentBase returns the base xpath for content objects and whether the
// base is device-like (vsys rulebase layout) rather than manager-like.
func (c Context) contentBase() (string, bool) {
	if c.Kind == Standalone {
		return DeviceRoot + "/vsys" + entry(c.VsysOrDefault()), true
	}
	switch {
	case c.Template != "":
		return DeviceRoot + "/template" + entry(c.Template) +
			"/config/devices/entry[@name='localhost.localdomain']/vsys" + entry(c.VsysOrDefault()), true
	case c.DeviceGroup != "":
		return DeviceRoot + "/device-group" + entry(c.DeviceGroup), false
	default:
		return SharedRoot, false
	}
}

func entry(name string) string {
	return "/entry[@name='" + name + "']"
}
