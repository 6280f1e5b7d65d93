package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dealflow/internal/tenant"
	"github.com/smallbiznis/dealflow/pkg/db/pagination"
)

type CreateLeadRequest struct {
	Name         string        `json:"name" binding:"required,min=2,max=200"`
	Phone        string        `json:"phone" binding:"required,min=8,max=32"`
	Email        *string       `json:"email" binding:"omitempty,email"`
	Status       Status        `json:"status" binding:"omitempty,oneof=NEW CONTACTED QUALIFIED UNQUALIFIED CONVERTED"`
	Temperature  Temperature   `json:"temperature" binding:"omitempty,oneof=COLD WARM HOT"`
	Source       *string       `json:"source" binding:"omitempty,max=100"`
	Notes        *string       `json:"notes"`
	AssignedToID *snowflake.ID `json:"assignedToId"`
}

type UpdateLeadRequest struct {
	Name        *string      `json:"name" binding:"omitempty,min=2,max=200"`
	Phone       *string      `json:"phone" binding:"omitempty,min=8,max=32"`
	Email       *string      `json:"email" binding:"omitempty,email"`
	Status      *Status      `json:"status" binding:"omitempty,oneof=NEW CONTACTED QUALIFIED UNQUALIFIED CONVERTED"`
	Temperature *Temperature `json:"temperature" binding:"omitempty,oneof=COLD WARM HOT"`
	Source      *string      `json:"source" binding:"omitempty,max=100"`
	Notes       *string      `json:"notes"`
}

type AssignLeadRequest struct {
	AssignedToID *snowflake.ID `json:"assignedToId"`
}

type ListLeadRequest struct {
	pagination.Pagination
	Search       string        `form:"search"`
	Status       Status        `form:"status"`
	Temperature  Temperature   `form:"temperature"`
	AssignedToID *snowflake.ID `form:"assignedToId"`
}

type ListLeadResponse struct {
	pagination.PageInfo
	Leads []Lead `json:"leads"`
}

type Service interface {
	Create(ctx context.Context, tc tenant.Context, req CreateLeadRequest) (*Lead, error)
	Get(ctx context.Context, tc tenant.Context, id snowflake.ID) (*Lead, error)
	List(ctx context.Context, tc tenant.Context, req ListLeadRequest) (ListLeadResponse, error)
	Update(ctx context.Context, tc tenant.Context, id snowflake.ID, req UpdateLeadRequest) (*Lead, error)
	Assign(ctx context.Context, tc tenant.Context, id snowflake.ID, req AssignLeadRequest) (*Lead, error)
	Delete(ctx context.Context, tc tenant.Context, id snowflake.ID) error
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidPhone        = errors.New("invalid_phone")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrInvalidTemperature  = errors.New("invalid_temperature")
	ErrLeadNotFound        = errors.New("lead_not_found")
	ErrPhoneTaken          = errors.New("lead_phone_taken")
	ErrEmailTaken          = errors.New("lead_email_taken")
	ErrMemberNotFound      = errors.New("member_not_found")
	ErrLeadHasDeals        = errors.New("lead_has_deals")
)
