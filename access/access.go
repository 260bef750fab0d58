// Package access authorizes principals for operations within a scope.
// Read-class operations pass without membership; write-class operations
// require an active membership; admin-class operations additionally require
// the owner or manager role. Role grants are looked up live on every call
// and never cached.
package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dealerops/sheetbridge/command"
)

// Role is a principal's standing within one scope.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

// AdminRoles are the roles allowed to run admin-class operations.
func AdminRoles() []Role {
	return []Role{RoleOwner, RoleManager}
}

var (
	// ErrNotMember matches NotMemberError through errors.Is.
	ErrNotMember = errors.New("not a member of scope")
	// ErrInsufficientRole matches InsufficientRoleError through errors.Is.
	ErrInsufficientRole = errors.New("insufficient role")
)

// NotMemberError reports a write-class operation attempted by a principal
// with no active membership in the scope.
type NotMemberError struct {
	PrincipalID string
	ScopeID     string
}

func (e *NotMemberError) Error() string {
	return fmt.Sprintf("principal %s is not a member of scope %s", e.PrincipalID, e.ScopeID)
}

func (e *NotMemberError) Is(target error) bool {
	return target == ErrNotMember
}

// InsufficientRoleError reports an admin-class operation attempted by a
// member without an admin role. It carries both sides of the check so the
// API can surface requiredRoles and actualRole verbatim.
type InsufficientRoleError struct {
	ActualRole    Role
	RequiredRoles []Role
}

func (e *InsufficientRoleError) Error() string {
	names := make([]string, 0, len(e.RequiredRoles))
	for _, r := range e.RequiredRoles {
		names = append(names, string(r))
	}
	return fmt.Sprintf("role %s cannot run admin operations, requires one of %s",
		e.ActualRole, strings.Join(names, ", "))
}

func (e *InsufficientRoleError) Is(target error) bool {
	return target == ErrInsufficientRole
}

// MembershipStore looks up one principal's active role grant in a scope.
type MembershipStore interface {
	// Role returns the principal's role in the scope. The second result is
	// false when the principal has no active membership.
	Role(ctx context.Context, principalID, scopeID string) (Role, bool, error)
}

// Gate is the access control gate.
type Gate struct {
	Members MembershipStore
}

// NewGate returns a gate backed by the given membership store.
func NewGate(members MembershipStore) *Gate {
	return &Gate{Members: members}
}

// Authorize checks that principalID may run op within scopeID and returns
// the role the decision was based on. Read-class operations pass without a
// membership when scopeID is empty; the returned role is then empty.
func (g *Gate) Authorize(ctx context.Context, principalID, scopeID string, op command.Operation) (Role, error) {
	class := op.Class()
	scopeID = strings.TrimSpace(scopeID)
	if class == command.ClassRead && scopeID == "" {
		return "", nil
	}
	if g == nil || g.Members == nil {
		if class == command.ClassRead {
			return "", nil
		}
		return "", &NotMemberError{PrincipalID: principalID, ScopeID: scopeID}
	}
	role, ok, err := g.Members.Role(ctx, principalID, scopeID)
	if err != nil {
		return "", fmt.Errorf("membership lookup: %w", err)
	}
	if !ok {
		if class == command.ClassRead {
			// Reads never require a membership; the scope only narrows them.
			return "", nil
		}
		return "", &NotMemberError{PrincipalID: principalID, ScopeID: scopeID}
	}
	if class == command.ClassAdmin && role != RoleOwner && role != RoleManager {
		return role, &InsufficientRoleError{ActualRole: role, RequiredRoles: AdminRoles()}
	}
	return role, nil
}
