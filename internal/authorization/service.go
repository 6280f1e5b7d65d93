package authorization

import (
	"context"
	"errors"

	"github.com/smallbiznis/dealflow/internal/tenant"
)

const (
	ObjectPipeline     = "pipeline"
	ObjectDeal         = "deal"
	ObjectLead         = "lead"
	ObjectProduct      = "product"
	ObjectCustomField  = "custom_field"
	ObjectLostReason   = "lost_reason"
	ObjectMember       = "member"
	ObjectOrganization = "organization"
	ObjectAuditLog     = "audit_log"
)

const (
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionDelete     = "delete"
	ActionReorder    = "reorder"
	ActionMembers    = "members"
	ActionAssign     = "assign"
	ActionManage     = "manage"
	ActionInvite     = "invite"
	ActionUpdateRole = "update_role"
	ActionRemove     = "remove"
	ActionView       = "view"
)

// Service answers whether the caller's role may perform an action on an object.
type Service interface {
	Authorize(ctx context.Context, tc tenant.Context, object string, action string) error
}

var (
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
)
