package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dealflow/internal/tenant"
)

type Service interface {
	Create(ctx context.Context, tc tenant.Context, req CreatePipelineRequest) (*Pipeline, error)
	List(ctx context.Context, tc tenant.Context) ([]Pipeline, error)
	Get(ctx context.Context, tc tenant.Context, id snowflake.ID) (*Pipeline, error)
	// GetDefault returns the default pipeline, promoting or creating one when the organization has none.
	GetDefault(ctx context.Context, tc tenant.Context) (*Pipeline, error)
	Update(ctx context.Context, tc tenant.Context, id snowflake.ID, req UpdatePipelineRequest) (*Pipeline, error)
	Delete(ctx context.Context, tc tenant.Context, id snowflake.ID) error
	SetMembers(ctx context.Context, tc tenant.Context, id snowflake.ID, req SetMembersRequest) (*Pipeline, error)

	CreateStage(ctx context.Context, tc tenant.Context, pipelineID snowflake.ID, req StageRequest) (*Stage, error)
	UpdateStage(ctx context.Context, tc tenant.Context, stageID snowflake.ID, req UpdateStageRequest) (*Stage, error)
	DeleteStage(ctx context.Context, tc tenant.Context, stageID snowflake.ID) error
	ReorderStages(ctx context.Context, tc tenant.Context, pipelineID snowflake.ID, req ReorderStagesRequest) ([]Stage, error)
}

type CreatePipelineRequest struct {
	Name        string         `json:"name" binding:"required,min=1,max=100"`
	Description *string        `json:"description" binding:"omitempty,max=500"`
	Color       string         `json:"color" binding:"omitempty,hexcolor"`
	IsDefault   bool           `json:"isDefault"`
	Visibility  Visibility     `json:"visibility" binding:"omitempty,oneof=PUBLIC RESTRICTED"`
	Stages      []StageRequest `json:"stages" binding:"omitempty,dive"`
}

type UpdatePipelineRequest struct {
	Name        *string     `json:"name" binding:"omitempty,min=1,max=100"`
	Description *string     `json:"description" binding:"omitempty,max=500"`
	Color       *string     `json:"color" binding:"omitempty,hexcolor"`
	IsDefault   *bool       `json:"isDefault"`
	Position    *int        `json:"position" binding:"omitempty,min=0"`
	Visibility  *Visibility `json:"visibility" binding:"omitempty,oneof=PUBLIC RESTRICTED"`
}

type StageRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=100"`
	Color       string `json:"color" binding:"omitempty,hexcolor"`
	Position    *int   `json:"position" binding:"omitempty,min=0"`
	Probability *int   `json:"probability" binding:"omitempty,min=0,max=100"`
	IsWon       bool   `json:"isWon"`
	IsLost      bool   `json:"isLost"`
}

type UpdateStageRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=100"`
	Color       *string `json:"color" binding:"omitempty,hexcolor"`
	Position    *int    `json:"position" binding:"omitempty,min=0"`
	Probability *int    `json:"probability" binding:"omitempty,min=0,max=100"`
	IsWon       *bool   `json:"isWon"`
	IsLost      *bool   `json:"isLost"`
}

type ReorderStagesRequest struct {
	StageIDs []snowflake.ID `json:"stageIds" binding:"required,min=1"`
}

type SetMembersRequest struct {
	MemberIDs []snowflake.ID `json:"memberIds"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidVisibility   = errors.New("invalid_visibility")
	ErrInvalidProbability  = errors.New("invalid_probability")
	ErrPipelineNotFound    = errors.New("pipeline_not_found")
	ErrStageNotFound       = errors.New("stage_not_found")
	ErrStageBothTerminal   = errors.New("stage_both_won_and_lost")
	ErrWonStageExists      = errors.New("won_stage_exists")
	ErrLostStageExists     = errors.New("lost_stage_exists")
	ErrPipelineHasDeals    = errors.New("pipeline_has_deals")
	ErrStageHasDeals       = errors.New("stage_has_deals")
	ErrDuplicateStageID    = errors.New("duplicate_stage_id")
	ErrMemberNotFound      = errors.New("member_not_found")
)
