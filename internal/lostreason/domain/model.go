package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dealflow/internal/tenant"
)

// LostReason explains why a deal was moved into a lost stage.
type LostReason struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index" json:"orgId"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Position  int          `gorm:"not null;default:0" json:"position"`
	CreatedAt time.Time    `gorm:"not null" json:"createdAt"`
}

func (LostReason) TableName() string { return "lost_reasons" }

type CreateRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Position *int   `json:"position" binding:"omitempty,min=0"`
}

type Service interface {
	Create(ctx context.Context, tc tenant.Context, req CreateRequest) (*LostReason, error)
	List(ctx context.Context, tc tenant.Context) ([]LostReason, error)
	Get(ctx context.Context, tc tenant.Context, id snowflake.ID) (*LostReason, error)
	Delete(ctx context.Context, tc tenant.Context, id snowflake.ID) error
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrNotFound            = errors.New("lost_reason_not_found")
)
