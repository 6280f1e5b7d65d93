package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dealflow/internal/clock"
	"github.com/smallbiznis/dealflow/internal/lead/domain"
	limitdomain "github.com/smallbiznis/dealflow/internal/limit/domain"
	orgdomain "github.com/smallbiznis/dealflow/internal/organization/domain"
	"github.com/smallbiznis/dealflow/internal/tenant"
	"github.com/smallbiznis/dealflow/pkg/db"
	"github.com/smallbiznis/dealflow/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Limits  limitdomain.Enforcer
	Members orgdomain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	limits  limitdomain.Enforcer
	members orgdomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("lead.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		limits:  p.Limits,
		members: p.Members,
	}
}

func (s *Service) Create(ctx context.Context, tc tenant.Context, req domain.CreateLeadRequest) (*domain.Lead, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		return nil, domain.ErrInvalidPhone
	}
	status := req.Status
	if status == "" {
		status = domain.StatusNew
	}
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	temperature := req.Temperature
	if temperature == "" {
		temperature = domain.TemperatureCold
	}
	if !temperature.Valid() {
		return nil, domain.ErrInvalidTemperature
	}

	if err := s.limits.CheckLimit(ctx, tc.OrgID, limitdomain.ResourceContacts); err != nil {
		return nil, err
	}

	email := normalizedEmail(req.Email)
	if err := s.ensureUnique(ctx, tc.OrgID, phone, email, 0); err != nil {
		return nil, err
	}
	if err := s.ensureAssignable(ctx, tc.OrgID, req.AssignedToID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	lead := &domain.Lead{
		ID:           s.genID.Generate(),
		OrgID:        tc.OrgID,
		Name:         name,
		Phone:        phone,
		Email:        email,
		Status:       status,
		Temperature:  temperature,
		Source:       trimmed(req.Source),
		Notes:        trimmed(req.Notes),
		AssignedToID: req.AssignedToID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, lead); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrPhoneTaken
		}
		return nil, err
	}

	s.log.Debug("lead created", zap.String("org_id", tc.OrgID.String()), zap.String("lead_id", lead.ID.String()))
	return lead, nil
}

func (s *Service) Get(ctx context.Context, tc tenant.Context, id snowflake.ID) (*domain.Lead, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	lead, err := s.repo.FindByID(ctx, s.db, tc.OrgID, id)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, domain.ErrLeadNotFound
	}
	return lead, nil
}

func (s *Service) List(ctx context.Context, tc tenant.Context, req domain.ListLeadRequest) (domain.ListLeadResponse, error) {
	if tc.OrgID == 0 {
		return domain.ListLeadResponse{}, domain.ErrInvalidOrganization
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	items, err := s.repo.List(ctx, s.db, tc.OrgID, domain.ListLeadFilter{
		Search:       req.Search,
		Status:       req.Status,
		Temperature:  req.Temperature,
		AssignedToID: req.AssignedToID,
	}, pagination.Pagination{PageToken: req.PageToken, PageSize: pageSize})
	if err != nil {
		return domain.ListLeadResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(lead *domain.Lead) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        lead.ID.String(),
			CreatedAt: lead.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	leads := make([]domain.Lead, 0, len(items))
	for _, item := range items {
		leads = append(leads, *item)
	}
	return domain.ListLeadResponse{PageInfo: pageInfo, Leads: leads}, nil
}

func (s *Service) Update(ctx context.Context, tc tenant.Context, id snowflake.ID, req domain.UpdateLeadRequest) (*domain.Lead, error) {
	lead, err := s.Get(ctx, tc, id)
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

	phone := ""
	if req.Phone != nil {
		phone = strings.TrimSpace(*req.Phone)
		if phone == "" {
			return nil, domain.ErrInvalidPhone
		}
		if phone != lead.Phone {
			fields["phone"] = phone
		} else {
			phone = ""
		}
	}
	var email *string
	if req.Email != nil {
		email = normalizedEmail(req.Email)
		fields["email"] = email
		if email != nil && lead.Email != nil && *email == *lead.Email {
			email = nil
		}
	}
	if err := s.ensureUnique(ctx, tc.OrgID, phone, email, lead.ID); err != nil {
		return nil, err
	}

	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, domain.ErrInvalidStatus
		}
		fields["status"] = *req.Status
	}
	if req.Temperature != nil {
		if !req.Temperature.Valid() {
			return nil, domain.ErrInvalidTemperature
		}
		fields["temperature"] = *req.Temperature
	}
	if req.Source != nil {
		fields["source"] = trimmed(req.Source)
	}
	if req.Notes != nil {
		fields["notes"] = trimmed(req.Notes)
	}

	if err := s.repo.Update(ctx, s.db, lead.ID, fields); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrPhoneTaken
		}
		return nil, err
	}
	return s.Get(ctx, tc, lead.ID)
}

func (s *Service) Assign(ctx context.Context, tc tenant.Context, id snowflake.ID, req domain.AssignLeadRequest) (*domain.Lead, error) {
	lead, err := s.Get(ctx, tc, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureAssignable(ctx, tc.OrgID, req.AssignedToID); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, s.db, lead.ID, map[string]any{
		"assigned_to_id": req.AssignedToID,
		"updated_at":     s.clock.Now(),
	}); err != nil {
		return nil, err
	}
	return s.Get(ctx, tc, lead.ID)
}

func (s *Service) Delete(ctx context.Context, tc tenant.Context, id snowflake.ID) error {
	lead, err := s.Get(ctx, tc, id)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deals, err := s.repo.CountDeals(ctx, tx, lead.ID)
		if err != nil {
			return err
		}
		if deals > 0 {
			return domain.ErrLeadHasDeals
		}
		return s.repo.Delete(ctx, tx, lead.ID)
	})
}

func (s *Service) ensureUnique(ctx context.Context, orgID snowflake.ID, phone string, email *string, excludeID snowflake.ID) error {
	if phone != "" {
		taken, err := s.repo.ExistsByPhone(ctx, s.db, orgID, phone, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrPhoneTaken
		}
	}
	if email != nil {
		taken, err := s.repo.ExistsByEmail(ctx, s.db, orgID, *email, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrEmailTaken
		}
	}
	return nil
}

func (s *Service) ensureAssignable(ctx context.Context, orgID snowflake.ID, memberID *snowflake.ID) error {
	if memberID == nil {
		return nil
	}
	member, err := s.members.FindMember(ctx, orgID, *memberID)
	if err != nil {
		return err
	}
	if member == nil || !member.IsActive {
		return domain.ErrMemberNotFound
	}
	return nil
}

func normalizedEmail(v *string) *string {
	if v == nil {
		return nil
	}
	email := strings.ToLower(strings.TrimSpace(*v))
	if email == "" {
		return nil
	}
	return &email
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
