package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dealflow/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListLeadFilter struct {
	Search       string
	Status       Status
	Temperature  Temperature
	AssignedToID *snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, lead *Lead) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Lead, error)
	// ExistsByPhone and ExistsByEmail ignore excludeID so updates can keep their own values.
	ExistsByPhone(ctx context.Context, db *gorm.DB, orgID snowflake.ID, phone string, excludeID snowflake.ID) (bool, error)
	ExistsByEmail(ctx context.Context, db *gorm.DB, orgID snowflake.ID, email string, excludeID snowflake.ID) (bool, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListLeadFilter, page pagination.Pagination) ([]*Lead, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	CountDeals(ctx context.Context, db *gorm.DB, leadID snowflake.ID) (int64, error)
}
