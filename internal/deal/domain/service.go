package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	customfielddomain "github.com/smallbiznis/dealflow/internal/customfield/domain"
	leaddomain "github.com/smallbiznis/dealflow/internal/lead/domain"
	lostreasondomain "github.com/smallbiznis/dealflow/internal/lostreason/domain"
	orgdomain "github.com/smallbiznis/dealflow/internal/organization/domain"
	pipelinedomain "github.com/smallbiznis/dealflow/internal/pipeline/domain"
	"github.com/smallbiznis/dealflow/internal/tenant"
	"github.com/smallbiznis/dealflow/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, tc tenant.Context, req CreateRequest) (*Deal, error)
	Get(ctx context.Context, tc tenant.Context, id snowflake.ID) (*DealDetail, error)
	List(ctx context.Context, tc tenant.Context, req ListRequest) (*ListResponse, error)
	ListByLead(ctx context.Context, tc tenant.Context, leadID snowflake.ID) ([]DealSummary, error)
	Board(ctx context.Context, tc tenant.Context, pipelineID snowflake.ID) (*Board, error)
	History(ctx context.Context, tc tenant.Context, id snowflake.ID) ([]DealEvent, error)
	Update(ctx context.Context, tc tenant.Context, id snowflake.ID, req UpdateRequest) (*Deal, error)
	Delete(ctx context.Context, tc tenant.Context, id snowflake.ID) error

	// Move is the only lifecycle transition: it sets closedAt for won and lost stages and
	// appends exactly one WON, LOST or STAGE_CHANGED event.
	Move(ctx context.Context, tc tenant.Context, id snowflake.ID, req MoveRequest) (*Deal, error)
	Assign(ctx context.Context, tc tenant.Context, id snowflake.ID, req AssignRequest) (*Deal, error)
	RecordActivity(ctx context.Context, tc tenant.Context, id snowflake.ID, req ActivityRequest) (*DealEvent, error)

	AddProduct(ctx context.Context, tc tenant.Context, id snowflake.ID, req AddProductRequest) (*LineItemChange, error)
	UpdateProduct(ctx context.Context, tc tenant.Context, id, itemID snowflake.ID, req UpdateProductRequest) (*LineItemChange, error)
	RemoveProduct(ctx context.Context, tc tenant.Context, id, itemID snowflake.ID) (*LineItemChange, error)

	Stats(ctx context.Context, tc tenant.Context) (*Stats, error)
	Forecast(ctx context.Context, tc tenant.Context) (*Forecast, error)
}

type CreateRequest struct {
	LeadID            snowflake.ID     `json:"leadId" binding:"required"`
	Title             *string          `json:"title" binding:"omitempty,max=200"`
	PipelineID        *snowflake.ID    `json:"pipelineId"`
	StageID           *snowflake.ID    `json:"stageId"`
	Value             *decimal.Decimal `json:"value"`
	Probability       *int             `json:"probability" binding:"omitempty,min=0,max=100"`
	ExpectedCloseDate *time.Time       `json:"expectedCloseDate"`
	Notes             *string          `json:"notes"`
	AssignedToID      *snowflake.ID    `json:"assignedToId"`
}

type UpdateRequest struct {
	Title             *string          `json:"title" binding:"omitempty,min=1,max=200"`
	Value             *decimal.Decimal `json:"value"`
	Notes             *string          `json:"notes"`
	Probability       *int             `json:"probability" binding:"omitempty,min=0,max=100"`
	ExpectedCloseDate *time.Time       `json:"expectedCloseDate"`
	PipelineID        *snowflake.ID    `json:"pipelineId"`
	StageID           *snowflake.ID    `json:"stageId"`
}

type MoveRequest struct {
	StageID      snowflake.ID  `json:"stageId" binding:"required"`
	LostReasonID *snowflake.ID `json:"lostReasonId"`
	Notes        *string       `json:"notes"`
}

// AssignRequest unassigns the deal when AssignedToID is nil.
type AssignRequest struct {
	AssignedToID *snowflake.ID `json:"assignedToId"`
}

type ActivityRequest struct {
	ActivityID snowflake.ID `json:"activityId" binding:"required"`
	Kind       string       `json:"kind" binding:"required,max=50"`
	Title      string       `json:"title" binding:"required,max=200"`
}

type AddProductRequest struct {
	ProductID snowflake.ID     `json:"productId" binding:"required"`
	Quantity  *int             `json:"quantity" binding:"omitempty,min=1"`
	UnitPrice *decimal.Decimal `json:"unitPrice"`
	Discount  *decimal.Decimal `json:"discount"`
}

type UpdateProductRequest struct {
	Quantity  *int             `json:"quantity" binding:"omitempty,min=1"`
	UnitPrice *decimal.Decimal `json:"unitPrice"`
	Discount  *decimal.Decimal `json:"discount"`
}

type ListRequest struct {
	Search       string        `form:"search"`
	StageID      *snowflake.ID `form:"stageId"`
	LeadID       *snowflake.ID `form:"leadId"`
	PipelineID   *snowflake.ID `form:"pipelineId"`
	AssignedToID *snowflake.ID `form:"assignedToId"`
	MinValue     *float64      `form:"minValue" binding:"omitempty,min=0"`
	MaxValue     *float64      `form:"maxValue" binding:"omitempty,min=0"`
	CreatedFrom  *time.Time    `form:"createdFrom"`
	CreatedTo    *time.Time    `form:"createdTo"`
	ClosedFrom   *time.Time    `form:"closedFrom"`
	ClosedTo     *time.Time    `form:"closedTo"`
	Page         int           `form:"page" binding:"omitempty,min=1"`
	Limit        int           `form:"limit" binding:"omitempty,min=1,max=100"`
	SortBy       string        `form:"sortBy"`
	SortOrder    string        `form:"sortOrder" binding:"omitempty,oneof=asc desc"`
}

type ListResponse struct {
	Meta  pagination.Page `json:"meta"`
	Deals []DealSummary   `json:"deals"`
}

// DealSummary is a list row with the names a board or table needs.
type DealSummary struct {
	Deal
	LeadName        string  `json:"leadName"`
	LeadPhone       string  `json:"leadPhone"`
	LeadTemperature string  `json:"leadTemperature"`
	PipelineName    *string `json:"pipelineName,omitempty"`
	StageName       *string `json:"stageName,omitempty"`
	StageColor      *string `json:"stageColor,omitempty"`
	AssignedToName  *string `json:"assignedToName,omitempty"`
}

type DealDetail struct {
	Deal
	Lead         *leaddomain.Lead               `json:"lead,omitempty"`
	AssignedTo   *orgdomain.MemberView          `json:"assignedTo,omitempty"`
	Pipeline     *pipelinedomain.Pipeline       `json:"pipeline,omitempty"`
	Stage        *pipelinedomain.Stage          `json:"stage,omitempty"`
	LostReason   *lostreasondomain.LostReason   `json:"lostReason,omitempty"`
	Products     []DealProduct                  `json:"products"`
	CustomFields []customfielddomain.FieldValue `json:"customFields"`
}

type LineItemChange struct {
	Item      *DealProduct    `json:"item,omitempty"`
	DealValue decimal.Decimal `json:"dealValue"`
}

type BoardColumn struct {
	Stage pipelinedomain.Stage `json:"stage"`
	Count int                  `json:"count"`
	Value decimal.Decimal      `json:"value"`
	Deals []DealSummary        `json:"deals"`
}

type Board struct {
	Pipeline *pipelinedomain.Pipeline `json:"pipeline"`
	Columns  []BoardColumn            `json:"columns"`
}

type StageStat struct {
	StageID   *snowflake.ID   `json:"stageId"`
	StageName string          `json:"stageName"`
	Count     int64           `json:"count"`
	Value     decimal.Decimal `json:"value"`
}

type Stats struct {
	Total        int64           `json:"total"`
	RecentDeals  int64           `json:"recentDeals"`
	TotalValue   decimal.Decimal `json:"totalValue"`
	WonValue     decimal.Decimal `json:"wonValue"`
	AverageValue decimal.Decimal `json:"avgDealValue"`
	ByStage      []StageStat     `json:"byStage"`
}

type ForecastBucket struct {
	Count    int64            `json:"count"`
	Value    decimal.Decimal  `json:"value"`
	Weighted *decimal.Decimal `json:"weightedValue,omitempty"`
}

type Forecast struct {
	OpenDeals         ForecastBucket `json:"openDeals"`
	MonthlyForecast   ForecastBucket `json:"monthlyForecast"`
	QuarterlyForecast ForecastBucket `json:"quarterlyForecast"`
	WonThisMonth      ForecastBucket `json:"wonThisMonth"`
	WinRate           int            `json:"winRate"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidTitle        = errors.New("invalid_title")
	ErrInvalidValue        = errors.New("invalid_value")
	ErrInvalidProbability  = errors.New("invalid_probability")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrInvalidLineAmount   = errors.New("invalid_line_amount")
	ErrInvalidAssignee     = errors.New("invalid_assignee")
	ErrStageNotInPipeline  = errors.New("stage_not_in_pipeline")
	ErrPipelineHasNoStages = errors.New("pipeline_has_no_stages")
	ErrDealNotFound        = errors.New("deal_not_found")
	ErrLeadNotFound        = errors.New("lead_not_found")
	ErrPipelineNotFound    = errors.New("pipeline_not_found")
	ErrStageNotFound       = errors.New("stage_not_found")
	ErrLostReasonNotFound  = errors.New("lost_reason_not_found")
	ErrProductNotFound     = errors.New("product_not_found")
	ErrLineItemNotFound    = errors.New("line_item_not_found")
	ErrProductAlreadyAdded = errors.New("product_already_added")
	ErrValueFromLineItems  = errors.New("value_from_line_items")
	ErrTerminalStageChange = errors.New("terminal_stage_change")
)
