package auth

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/fwauto/fwauto/pkg/util"
)

func TestContext_Chaining(t *testing.T) {
	ctx := NewContext().
		WithDevice("fw1").
		WithObjectType("address").
		WithWorkflow("block_ip")

	if ctx.Device != "fw1" || ctx.ObjectType != "address" || ctx.Workflow != "block_ip" {
		t.Errorf("ctx = %+v", ctx)
	}
}

func testPolicy() *Policy {
	return &Policy{
		SuperUsers: []string{"admin"},
		UserGroups: map[string][]string{
			"secops": {"alice", "bob"},
			"noc":    {"carol"},
			"viewer": {"eve"},
		},
		Permissions: map[string][]string{
			"all":            {"secops"},
			"object.view":    {"noc", "viewer"},
			"object.create":  {"noc"},
			"workflow.run":   {"noc"},
			"commit.approve": {"dave"},
		},
		Workflows: map[string]map[string][]string{
			"block_ip": {"workflow.run": {"viewer"}},
		},
	}
}

func TestChecker_SuperUser(t *testing.T) {
	checker := NewChecker(testPolicy())
	checker.SetUser("admin")

	for _, p := range []Permission{PermObjectDelete, PermCommit, PermCommitApprove} {
		if err := checker.Check(p, nil); err != nil {
			t.Errorf("superuser denied %s: %v", p, err)
		}
	}
	if !checker.IsSuperUser() {
		t.Error("admin should be superuser")
	}
	if got := checker.ListPermissions(); !reflect.DeepEqual(got, []Permission{PermAll}) {
		t.Errorf("ListPermissions() = %v", got)
	}
}

func TestChecker_Check(t *testing.T) {
	checker := NewChecker(testPolicy())

	tests := []struct {
		name  string
		user  string
		perm  Permission
		ctx   *Context
		allow bool
	}{
		{"all grant via group", "alice", PermObjectDelete, nil, true},
		{"specific grant", "carol", PermObjectCreate, nil, true},
		{"missing grant", "carol", PermObjectDelete, nil, false},
		{"direct username grant", "dave", PermCommitApprove, nil, true},
		{"viewer cannot commit", "eve", PermCommit, nil, false},
		{"viewer can view", "eve", PermObjectView, NewContext().WithObjectType("address"), true},
		{"workflow grant", "eve", PermWorkflowRun, NewContext().WithWorkflow("block_ip"), true},
		{"workflow grant is scoped", "eve", PermWorkflowRun, NewContext().WithWorkflow("web_server_setup"), false},
		{"global grant applies to any workflow", "carol", PermWorkflowRun, NewContext().WithWorkflow("web_server_setup"), true},
		{"unknown user", "mallory", PermObjectView, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checker.CheckUser(tt.user, tt.perm, tt.ctx)
			if tt.allow && err != nil {
				t.Errorf("expected allow, got %v", err)
			}
			if !tt.allow {
				if err == nil {
					t.Fatal("expected deny")
				}
				if !errors.Is(err, util.ErrPermissionDenied) {
					t.Errorf("error should unwrap to ErrPermissionDenied: %v", err)
				}
			}
		})
	}
}

func TestChecker_NilPolicyAllows(t *testing.T) {
	checker := NewChecker(nil)
	checker.SetUser("anyone")
	if checker.Enforcing() {
		t.Error("nil policy should not enforce")
	}
	if err := checker.Check(PermCommit, nil); err != nil {
		t.Errorf("nil policy denied: %v", err)
	}
	if checker.IsSuperUser() || checker.GetUserGroups("anyone") != nil {
		t.Error("nil policy has no superusers or groups")
	}
}

func TestChecker_ListPermissionsAndGroups(t *testing.T) {
	checker := NewChecker(testPolicy())

	got := checker.ListPermissionsForUser("carol")
	want := []Permission{PermObjectCreate, PermObjectView, PermWorkflowRun}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListPermissionsForUser(carol) = %v, want %v", got, want)
	}
	if got := checker.GetUserGroups("alice"); !reflect.DeepEqual(got, []string{"secops"}) {
		t.Errorf("GetUserGroups(alice) = %v", got)
	}
	checker.SetUser("bob")
	if checker.CurrentUser() != "bob" {
		t.Errorf("CurrentUser() = %q", checker.CurrentUser())
	}
}

func TestPermissionError_Message(t *testing.T) {
	err := &PermissionError{
		User:       "eve",
		Permission: PermWorkflowRun,
		Context:    NewContext().WithWorkflow("block_ip").WithDevice("fw1"),
	}
	msg := err.Error()
	for _, want := range []string{"'eve'", "'workflow.run'", "workflow 'block_ip'", "device 'fw1'"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestForOperation(t *testing.T) {
	tests := map[string]Permission{
		"create": PermObjectCreate,
		"Update": PermObjectUpdate,
		"delete": PermObjectDelete,
		"read":   PermObjectView,
		"list":   PermObjectView,
	}
	for op, want := range tests {
		if got := ForOperation(op); got != want {
			t.Errorf("ForOperation(%q) = %s, want %s", op, got, want)
		}
	}
}

func TestPermission_ReadWrite(t *testing.T) {
	if !PermObjectView.IsReadOnly() || PermObjectView.IsWriteOperation() {
		t.Error("object.view should be read-only")
	}
	if PermCommit.IsReadOnly() || !PermCommit.IsWriteOperation() {
		t.Error("commit should be a write")
	}
	if PermKeygen.IsWriteOperation() {
		t.Error("keygen is not a config write")
	}
	n := 0
	for _, c := range StandardCategories {
		n += len(c.Permissions)
	}
	if n != 10 {
		t.Errorf("categorized permissions = %d, want 10", n)
	}
}
