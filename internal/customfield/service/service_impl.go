package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dealflow/internal/clock"
	"github.com/smallbiznis/dealflow/internal/customfield/domain"
	"github.com/smallbiznis/dealflow/internal/tenant"
	"github.com/smallbiznis/dealflow/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
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
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("customfield.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, tc tenant.Context, req domain.CreateRequest) (*domain.CustomField, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if !req.Entity.Valid() {
		return nil, domain.ErrInvalidEntity
	}
	if !req.Type.Valid() {
		return nil, domain.ErrInvalidType
	}
	name := strings.TrimSpace(req.Name)
	label := strings.TrimSpace(req.Label)
	if name == "" || label == "" {
		return nil, domain.ErrInvalidName
	}

	taken, err := s.repo.NameExists(ctx, s.db, tc.OrgID, req.Entity, name, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.ErrNameTaken
	}

	now := s.clock.Now()
	field := &domain.CustomField{
		ID:         s.genID.Generate(),
		OrgID:      tc.OrgID,
		Entity:     req.Entity,
		Name:       name,
		Label:      label,
		Type:       req.Type,
		Options:    datatypes.NewJSONSlice(cleanOptions(req.Options)),
		IsRequired: req.IsRequired,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.Position != nil {
		field.Position = *req.Position
	} else {
		max, err := s.repo.MaxPosition(ctx, s.db, tc.OrgID, req.Entity)
		if err != nil {
			return nil, err
		}
		field.Position = max + 1
	}

	if err := s.repo.Create(ctx, s.db, field); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrNameTaken
		}
		return nil, err
	}
	return field, nil
}

func (s *Service) List(ctx context.Context, tc tenant.Context, entity domain.Entity) ([]domain.CustomField, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if entity != "" && !entity.Valid() {
		return nil, domain.ErrInvalidEntity
	}
	return s.repo.List(ctx, s.db, tc.OrgID, entity)
}

func (s *Service) Get(ctx context.Context, tc tenant.Context, id snowflake.ID) (*domain.CustomField, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	field, err := s.repo.FindByID(ctx, s.db, tc.OrgID, id)
	if err != nil {
		return nil, err
	}
	if field == nil {
		return nil, domain.ErrNotFound
	}
	return field, nil
}

func (s *Service) Update(ctx context.Context, tc tenant.Context, id snowflake.ID, req domain.UpdateRequest) (*domain.CustomField, error) {
	field, err := s.Get(ctx, tc, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{"updated_at": s.clock.Now()}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		if name != field.Name {
			taken, err := s.repo.NameExists(ctx, s.db, tc.OrgID, field.Entity, name, field.ID)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, domain.ErrNameTaken
			}
		}
		updates["name"] = name
	}
	if req.Label != nil {
		label := strings.TrimSpace(*req.Label)
		if label == "" {
			return nil, domain.ErrInvalidName
		}
		updates["label"] = label
	}
	if req.Type != nil {
		if !req.Type.Valid() {
			return nil, domain.ErrInvalidType
		}
		updates["type"] = *req.Type
	}
	if req.Options != nil {
		updates["options"] = datatypes.NewJSONSlice(cleanOptions(req.Options))
	}
	if req.IsRequired != nil {
		updates["is_required"] = *req.IsRequired
	}
	if req.Position != nil {
		updates["position"] = *req.Position
	}

	if err := s.repo.Update(ctx, s.db, field.ID, updates); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrNameTaken
		}
		return nil, err
	}
	return s.Get(ctx, tc, field.ID)
}

func (s *Service) Delete(ctx context.Context, tc tenant.Context, id snowflake.ID) error {
	field, err := s.Get(ctx, tc, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.Delete(ctx, tx, field.ID)
	})
}

func (s *Service) Reorder(ctx context.Context, tc tenant.Context, req domain.ReorderRequest) ([]domain.CustomField, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	var (
		entity domain.Entity
		mixed  bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seen := make(map[snowflake.ID]struct{}, len(req.FieldIDs))
		for _, id := range req.FieldIDs {
			if _, dup := seen[id]; dup {
				return domain.ErrDuplicateFieldID
			}
			seen[id] = struct{}{}

			field, err := s.repo.FindByID(ctx, tx, tc.OrgID, id)
			if err != nil {
				return err
			}
			if field == nil {
				return domain.ErrNotFound
			}
			if entity == "" {
				entity = field.Entity
			} else if entity != field.Entity {
				mixed = true
			}
		}

		now := s.clock.Now()
		for position, id := range req.FieldIDs {
			if err := s.repo.Update(ctx, tx, id, map[string]any{"position": position, "updated_at": now}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if mixed {
		entity = ""
	}
	return s.repo.List(ctx, s.db, tc.OrgID, entity)
}

func (s *Service) SetValues(ctx context.Context, tc tenant.Context, entityID snowflake.ID, values []domain.ValueInput) ([]domain.FieldValue, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		for _, input := range values {
			field, err := s.repo.FindByID(ctx, tx, tc.OrgID, input.CustomFieldID)
			if err != nil {
				return err
			}
			if field == nil {
				continue
			}
			if err := s.repo.UpsertValue(ctx, tx, &domain.CustomFieldValue{
				ID:            s.genID.Generate(),
				CustomFieldID: field.ID,
				EntityID:      entityID,
				Value:         input.Value,
				CreatedAt:     now,
				UpdatedAt:     now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetValues(ctx, tc, entityID)
}

func (s *Service) GetValues(ctx context.Context, tc tenant.Context, entityID snowflake.ID) ([]domain.FieldValue, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.ListValues(ctx, s.db, tc.OrgID, entityID)
}

func cleanOptions(options []string) []string {
	out := make([]string, 0, len(options))
	for _, option := range options {
		if trimmed := strings.TrimSpace(option); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
