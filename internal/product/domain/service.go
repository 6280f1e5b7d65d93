package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/dealflow/internal/tenant"
)

type Service interface {
	Create(ctx context.Context, tc tenant.Context, req CreateRequest) (*Product, error)
	List(ctx context.Context, tc tenant.Context, req ListRequest) ([]Product, error)
	Get(ctx context.Context, tc tenant.Context, id snowflake.ID) (*Product, error)
	Update(ctx context.Context, tc tenant.Context, id snowflake.ID, req UpdateRequest) (*Product, error)
	Delete(ctx context.Context, tc tenant.Context, id snowflake.ID) error
}

type ListRequest struct {
	Search    string `form:"search"`
	Category  string `form:"category"`
	Active    *bool  `form:"isActive"`
	SortBy    string `form:"sortBy"`
	SortOrder string `form:"sortOrder" binding:"omitempty,oneof=asc desc"`
}

type CreateRequest struct {
	Name        string           `json:"name" binding:"required,max=200"`
	Description *string          `json:"description"`
	SKU         *string          `json:"sku" binding:"omitempty,max=64"`
	Price       decimal.Decimal  `json:"price"`
	Cost        *decimal.Decimal `json:"cost"`
	Category    *string          `json:"category" binding:"omitempty,max=100"`
	IsActive    *bool            `json:"isActive"`
}

type UpdateRequest struct {
	Name        *string          `json:"name" binding:"omitempty,max=200"`
	Description *string          `json:"description"`
	SKU         *string          `json:"sku" binding:"omitempty,max=64"`
	Price       *decimal.Decimal `json:"price"`
	Cost        *decimal.Decimal `json:"cost"`
	Category    *string          `json:"category" binding:"omitempty,max=100"`
	IsActive    *bool            `json:"isActive"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidPrice        = errors.New("invalid_price")
	ErrNotFound            = errors.New("product_not_found")
	ErrSKUTaken            = errors.New("product_sku_taken")
	ErrProductInUse        = errors.New("product_in_use")
)
