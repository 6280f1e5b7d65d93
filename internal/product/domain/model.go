package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Product is a sellable item that deals reference through line items.
type Product struct {
	ID          snowflake.ID     `json:"id" gorm:"primaryKey"`
	OrgID       snowflake.ID     `json:"orgId" gorm:"column:org_id;not null;uniqueIndex:ux_products_org_sku,priority:1"`
	Name        string           `json:"name" gorm:"type:text;not null"`
	Description *string          `json:"description,omitempty" gorm:"type:text"`
	SKU         *string          `json:"sku,omitempty" gorm:"column:sku;type:text;uniqueIndex:ux_products_org_sku,priority:2"`
	Price       decimal.Decimal  `json:"price" gorm:"type:numeric(14,2);not null"`
	Cost        *decimal.Decimal `json:"cost,omitempty" gorm:"type:numeric(14,2)"`
	Category    *string          `json:"category,omitempty" gorm:"type:text"`
	IsActive    bool             `json:"isActive" gorm:"not null"`
	CreatedAt   time.Time        `json:"createdAt" gorm:"not null"`
	UpdatedAt   time.Time        `json:"updatedAt" gorm:"not null"`
}

func (Product) TableName() string { return "products" }
