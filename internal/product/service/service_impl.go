package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/dealflow/internal/clock"
	"github.com/smallbiznis/dealflow/internal/product/domain"
	"github.com/smallbiznis/dealflow/internal/tenant"
	"github.com/smallbiznis/dealflow/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("product.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) List(ctx context.Context, tc tenant.Context, req domain.ListRequest) ([]domain.Product, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.List(ctx, s.db, tc.OrgID, domain.ListFilter{
		Search:    strings.TrimSpace(req.Search),
		Category:  strings.TrimSpace(req.Category),
		Active:    req.Active,
		SortBy:    strings.TrimSpace(req.SortBy),
		SortOrder: strings.TrimSpace(req.SortOrder),
	})
}

func (s *Service) Create(ctx context.Context, tc tenant.Context, req domain.CreateRequest) (*domain.Product, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.Price.IsNegative() || (req.Cost != nil && req.Cost.IsNegative()) {
		return nil, domain.ErrInvalidPrice
	}

	sku := trimmed(req.SKU)
	if sku != nil {
		taken, err := s.repo.SKUExists(ctx, s.db, tc.OrgID, *sku, 0)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, domain.ErrSKUTaken
		}
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	now := s.clock.Now()
	product := &domain.Product{
		ID:          s.genID.Generate(),
		OrgID:       tc.OrgID,
		Name:        name,
		Description: trimmed(req.Description),
		SKU:         sku,
		Price:       req.Price.Round(2),
		Cost:        roundedPtr(req.Cost),
		Category:    trimmed(req.Category),
		IsActive:    active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, s.db, product); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSKUTaken
		}
		return nil, err
	}

	return product, nil
}

func (s *Service) Get(ctx context.Context, tc tenant.Context, id snowflake.ID) (*domain.Product, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	item, err := s.repo.FindByID(ctx, s.db, tc.OrgID, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) Update(ctx context.Context, tc tenant.Context, id snowflake.ID, req domain.UpdateRequest) (*domain.Product, error) {
	product, err := s.Get(ctx, tc, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{"updated_at": s.clock.Now()}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		fields["name"] = name
	}
	if req.Description != nil {
		fields["description"] = trimmed(req.Description)
	}
	if req.SKU != nil {
		sku := trimmed(req.SKU)
		if sku != nil {
			taken, err := s.repo.SKUExists(ctx, s.db, tc.OrgID, *sku, product.ID)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, domain.ErrSKUTaken
			}
		}
		fields["sku"] = sku
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, domain.ErrInvalidPrice
		}
		fields["price"] = req.Price.Round(2)
	}
	if req.Cost != nil {
		if req.Cost.IsNegative() {
			return nil, domain.ErrInvalidPrice
		}
		fields["cost"] = req.Cost.Round(2)
	}
	if req.Category != nil {
		fields["category"] = trimmed(req.Category)
	}
	if req.IsActive != nil {
		fields["is_active"] = *req.IsActive
	}

	if err := s.repo.Update(ctx, s.db, product.ID, fields); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSKUTaken
		}
		return nil, err
	}
	return s.Get(ctx, tc, product.ID)
}

func (s *Service) Delete(ctx context.Context, tc tenant.Context, id snowflake.ID) error {
	product, err := s.Get(ctx, tc, id)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		count, err := s.repo.CountLineItems(ctx, tx, product.ID)
		if err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrProductInUse
		}
		return s.repo.Delete(ctx, tx, product.ID)
	})
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	out := strings.TrimSpace(*v)
	if out == "" {
		return nil
	}
	return &out
}

func roundedPtr(v *decimal.Decimal) *decimal.Decimal {
	if v == nil {
		return nil
	}
	out := v.Round(2)
	return &out
}
