// Package panos talks to the device XML API: request encoding, response
// envelope parsing, payload conversion and a lazily-connected provider.
package panos

import (
	"context"
	"net/url"
	"strings"
)

// RequestType is the API "type" parameter.
type RequestType string

const (
	TypeConfig RequestType = "config"
	TypeOp     RequestType = "op"
	TypeCommit RequestType = "commit"
	TypeKeygen RequestType = "keygen"
)

// Action is the API "action" parameter for config requests.
type Action string

const (
	ActionGet    Action = "get"
	ActionSet    Action = "set"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Request is one call against /api/.
type Request struct {
	Type    RequestType
	Action  Action
	XPath   string
	Element string
	Cmd     string

	// Params carries extra form parameters (keygen user/password, vsys).
	Params map[string]string
}

// API is the device API surface the engine needs.
type API interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Get builds a config get request.
func Get(xpath string) Request {
	return Request{Type: TypeConfig, Action: ActionGet, XPath: xpath}
}

// Set builds a config set request. xpath addresses the parent collection.
func Set(xpath, element string) Request {
	return Request{Type: TypeConfig, Action: ActionSet, XPath: xpath, Element: element}
}

// Edit builds a config edit request. xpath addresses the entry itself.
func Edit(xpath, element string) Request {
	return Request{Type: TypeConfig, Action: ActionEdit, XPath: xpath, Element: element}
}

// Delete builds a config delete request.
func Delete(xpath string) Request {
	return Request{Type: TypeConfig, Action: ActionDelete, XPath: xpath}
}

// Op builds an operational command request.
func Op(cmd string) Request {
	return Request{Type: TypeOp, Cmd: cmd}
}

// Commit builds a commit request from a <commit> command body.
func Commit(cmd string) Request {
	return Request{Type: TypeCommit, Cmd: cmd}
}

// Mutating reports whether the request changes candidate configuration.
func (r Request) Mutating() bool {
	if r.Type == TypeCommit {
		return true
	}
	return r.Type == TypeConfig && r.Action != ActionGet
}

// Values encodes the request as form parameters.
func (r Request) Values(key string) url.Values {
	v := url.Values{}
	v.Set("type", string(r.Type))
	if r.Action != "" {
		v.Set("action", string(r.Action))
	}
	if r.XPath != "" {
		v.Set("xpath", r.XPath)
	}
	if r.Element != "" {
		v.Set("element", r.Element)
	}
	if r.Cmd != "" {
		v.Set("cmd", r.Cmd)
	}
	for k, val := range r.Params {
		v.Set(k, val)
	}
	if key != "" {
		v.Set("key", key)
	}
	return v
}

// String is a short description for logs; it never includes credentials.
func (r Request) String() string {
	var b strings.Builder
	b.WriteString(string(r.Type))
	if r.Action != "" {
		b.WriteString("/" + string(r.Action))
	}
	if r.XPath != "" {
		b.WriteString(" " + r.XPath)
	}
	if r.Cmd != "" {
		b.WriteString(" " + r.Cmd)
	}
	return b.String()
}
