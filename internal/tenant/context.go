// Package tenant carries the caller identity that every core operation is
// scoped by.
package tenant

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleOwner   Role = "OWNER"
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleMember  Role = "MEMBER"
)

var roleRank = map[Role]int{
	RoleMember:  1,
	RoleManager: 2,
	RoleAdmin:   3,
	RoleOwner:   4,
}

// ParseRole normalizes a role name. The second result is false for unknown roles.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	_, ok := roleRank[role]
	return role, ok
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r grants everything min grants.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min] && roleRank[min] > 0
}

func (r Role) String() string { return string(r) }

// Context identifies the caller of a core operation.
// MemberID is zero for system callers, which suppresses actor-attributed events.
type Context struct {
	OrgID    snowflake.ID
	UserID   snowflake.ID
	MemberID snowflake.ID
	Role     Role
}

func (c Context) HasMember() bool { return c.MemberID != 0 }

// MemberRef returns the member id as a nullable reference.
func (c Context) MemberRef() *snowflake.ID {
	if c.MemberID == 0 {
		return nil
	}
	id := c.MemberID
	return &id
}

type contextKey struct{}

func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

func FromContext(ctx context.Context) (Context, bool) {
	if ctx == nil {
		return Context{}, false
	}
	tc, ok := ctx.Value(contextKey{}).(Context)
	if !ok || tc.OrgID == 0 {
		return Context{}, false
	}
	return tc, true
}
