package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	lostreasondomain "github.com/smallbiznis/dealflow/internal/lostreason/domain"
	orgdomain "github.com/smallbiznis/dealflow/internal/organization/domain"
	"gorm.io/gorm"
)

type ListFilter struct {
	Search       string
	StageID      *snowflake.ID
	LeadID       *snowflake.ID
	PipelineID   *snowflake.ID
	AssignedToID *snowflake.ID
	MinValue     *decimal.Decimal
	MaxValue     *decimal.Decimal
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	ClosedFrom   *time.Time
	ClosedTo     *time.Time
	SortBy       string
	SortOrder    string
	Offset       int
	Limit        int
}

// AggregateFilter narrows the deals summed by Aggregate. Zero fields do not filter.
type AggregateFilter struct {
	CreatedSince   *time.Time
	OpenOnly       bool
	ExpectedFrom   *time.Time
	ExpectedBefore *time.Time
	ClosedSince    *time.Time
	WonStage       bool
	LostStage      bool
}

type Aggregate struct {
	Count int64
	Value decimal.Decimal
	// Weighted is Σ value × probability / 100.
	Weighted decimal.Decimal
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, deal *Deal) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Deal, error)
	// FindForUpdate locks the deal row until the surrounding transaction ends.
	FindForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Deal, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	// Delete removes the deal with its line items, events and custom values.
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	ListSummaries(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]DealSummary, error)
	CountSummaries(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) (int64, error)

	InsertEvent(ctx context.Context, db *gorm.DB, event *DealEvent) error
	ListEvents(ctx context.Context, db *gorm.DB, dealID snowflake.ID) ([]DealEvent, error)

	CreateLineItem(ctx context.Context, db *gorm.DB, item *DealProduct) error
	FindLineItem(ctx context.Context, db *gorm.DB, dealID, itemID snowflake.ID) (*DealProduct, error)
	LineItemExists(ctx context.Context, db *gorm.DB, dealID, productID snowflake.ID) (bool, error)
	UpdateLineItem(ctx context.Context, db *gorm.DB, itemID snowflake.ID, fields map[string]any) error
	DeleteLineItem(ctx context.Context, db *gorm.DB, itemID snowflake.ID) error
	ListLineItems(ctx context.Context, db *gorm.DB, dealID snowflake.ID) ([]DealProduct, error)

	FindLostReason(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*lostreasondomain.LostReason, error)
	FindAssignee(ctx context.Context, db *gorm.DB, orgID, memberID snowflake.ID) (*orgdomain.MemberView, error)

	Aggregate(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter AggregateFilter) (Aggregate, error)
	AverageValue(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (decimal.Decimal, error)
	StageBreakdown(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]StageStat, error)
}
