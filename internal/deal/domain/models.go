// Package domain holds deals, their line items and the append-only event log.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	productdomain "github.com/smallbiznis/dealflow/internal/product/domain"
)

const DefaultProbability = 50

// Deal is an opportunity attached to a lead. PipelineID and StageID are nil only for
// deals whose pipeline was removed out of band.
type Deal struct {
	ID                snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID             snowflake.ID    `gorm:"not null;index" json:"orgId"`
	LeadID            snowflake.ID    `gorm:"not null;index" json:"leadId"`
	PipelineID        *snowflake.ID   `gorm:"index" json:"pipelineId,omitempty"`
	StageID           *snowflake.ID   `gorm:"index" json:"stageId,omitempty"`
	Title             string          `gorm:"type:text;not null" json:"title"`
	Value             decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"value"`
	Probability       int             `gorm:"not null" json:"probability"`
	ExpectedCloseDate *time.Time      `json:"expectedCloseDate,omitempty"`
	Notes             *string         `gorm:"type:text" json:"notes,omitempty"`
	AssignedToID      *snowflake.ID   `gorm:"index" json:"assignedToId,omitempty"`
	LostReasonID      *snowflake.ID   `json:"lostReasonId,omitempty"`
	StageEnteredAt    time.Time       `gorm:"not null" json:"stageEnteredAt"`
	ClosedAt          *time.Time      `json:"closedAt,omitempty"`
	CreatedAt         time.Time       `gorm:"not null" json:"createdAt"`
	UpdatedAt         time.Time       `gorm:"not null" json:"updatedAt"`
}

func (Deal) TableName() string { return "deals" }

func (d Deal) Closed() bool { return d.ClosedAt != nil }

// DealProduct is a line item. A product appears at most once per deal.
type DealProduct struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	DealID    snowflake.ID    `gorm:"not null;uniqueIndex:ux_deal_products_deal_product,priority:1" json:"dealId"`
	ProductID snowflake.ID    `gorm:"not null;uniqueIndex:ux_deal_products_deal_product,priority:2;index" json:"productId"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"unitPrice"`
	Discount  decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"discount"`
	Total     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total"`
	CreatedAt time.Time       `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time       `gorm:"not null" json:"updatedAt"`

	Product *productdomain.Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

func (DealProduct) TableName() string { return "deal_products" }

// LineTotal is quantity × unit price − discount.
func LineTotal(quantity int, unitPrice, discount decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Sub(discount)
}
