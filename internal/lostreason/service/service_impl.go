package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dealflow/internal/clock"
	"github.com/smallbiznis/dealflow/internal/lostreason/domain"
	"github.com/smallbiznis/dealflow/internal/tenant"
	"github.com/smallbiznis/dealflow/pkg/db/option"
	"github.com/smallbiznis/dealflow/pkg/repository"
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
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  repository.Repository[domain.LostReason]
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("lostreason.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  repository.ProvideStore[domain.LostReason](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, tc tenant.Context, req domain.CreateRequest) (*domain.LostReason, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	reason := &domain.LostReason{
		ID:        s.genID.Generate(),
		OrgID:     tc.OrgID,
		Name:      name,
		CreatedAt: s.clock.Now(),
	}
	if req.Position != nil {
		reason.Position = *req.Position
	} else {
		max, err := s.repo.Max(ctx, &domain.LostReason{OrgID: tc.OrgID}, "position")
		if err != nil {
			return nil, err
		}
		reason.Position = max + 1
	}

	if err := s.repo.Create(ctx, reason); err != nil {
		return nil, err
	}
	return reason, nil
}

func (s *Service) List(ctx context.Context, tc tenant.Context) ([]domain.LostReason, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	items, err := s.repo.Find(ctx, &domain.LostReason{OrgID: tc.OrgID}, option.WithOrder("position ASC, id ASC"))
	if err != nil {
		return nil, err
	}
	reasons := make([]domain.LostReason, 0, len(items))
	for _, item := range items {
		reasons = append(reasons, *item)
	}
	return reasons, nil
}

func (s *Service) Get(ctx context.Context, tc tenant.Context, id snowflake.ID) (*domain.LostReason, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if id == 0 {
		return nil, domain.ErrNotFound
	}
	reason, err := s.repo.FindOne(ctx, &domain.LostReason{ID: id, OrgID: tc.OrgID})
	if err != nil {
		return nil, err
	}
	if reason == nil {
		return nil, domain.ErrNotFound
	}
	return reason, nil
}

// Delete detaches the reason from any deal that recorded it.
func (s *Service) Delete(ctx context.Context, tc tenant.Context, id snowflake.ID) error {
	reason, err := s.Get(ctx, tc, id)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`UPDATE deals SET lost_reason_id = NULL WHERE lost_reason_id = ?`, reason.ID).Error; err != nil {
			return err
		}
		return s.repo.WithTrx(tx).Delete(ctx, reason.ID.Int64())
	})
}
