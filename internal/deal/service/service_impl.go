package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/dealflow/internal/clock"
	customfielddomain "github.com/smallbiznis/dealflow/internal/customfield/domain"
	"github.com/smallbiznis/dealflow/internal/deal/domain"
	leaddomain "github.com/smallbiznis/dealflow/internal/lead/domain"
	limitdomain "github.com/smallbiznis/dealflow/internal/limit/domain"
	"github.com/smallbiznis/dealflow/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/dealflow/internal/organization/domain"
	"github.com/smallbiznis/dealflow/internal/outbox"
	pipelinedomain "github.com/smallbiznis/dealflow/internal/pipeline/domain"
	productdomain "github.com/smallbiznis/dealflow/internal/product/domain"
	"github.com/smallbiznis/dealflow/internal/tenant"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	Limits       limitdomain.Enforcer
	Pipelines    pipelinedomain.Service
	Stages       pipelinedomain.Repository
	Leads        leaddomain.Repository
	Products     productdomain.Repository
	Members      orgdomain.Repository
	CustomFields customfielddomain.Service
	Outbox       outbox.Publisher `optional:"true"`
	Metrics      *metrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	limits       limitdomain.Enforcer
	pipelines    pipelinedomain.Service
	stages       pipelinedomain.Repository
	leads        leaddomain.Repository
	products     productdomain.Repository
	members      orgdomain.Repository
	customFields customfielddomain.Service
	outbox       outbox.Publisher
	metrics      *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("deal.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		limits:       p.Limits,
		pipelines:    p.Pipelines,
		stages:       p.Stages,
		leads:        p.Leads,
		products:     p.Products,
		members:      p.Members,
		customFields: p.CustomFields,
		outbox:       p.Outbox,
		metrics:      p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, tc tenant.Context, req domain.CreateRequest) (*domain.Deal, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if req.Probability != nil && !validProbability(*req.Probability) {
		return nil, domain.ErrInvalidProbability
	}
	if req.Value != nil && req.Value.IsNegative() {
		return nil, domain.ErrInvalidValue
	}

	if err := s.limits.CheckLimit(ctx, tc.OrgID, limitdomain.ResourceDeals); err != nil {
		return nil, err
	}

	lead, err := s.leads.FindByID(ctx, s.db, tc.OrgID, req.LeadID)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, domain.ErrLeadNotFound
	}

	if err := s.ensureAssignable(ctx, tc.OrgID, req.AssignedToID); err != nil {
		return nil, err
	}
	pipeline, stage, err := s.resolvePlacement(ctx, tc, req.PipelineID, req.StageID)
	if err != nil {
		return nil, err
	}

	title := ""
	if req.Title != nil {
		title = strings.TrimSpace(*req.Title)
	}
	if title == "" {
		title = defaultTitle(lead)
	}

	probability := domain.DefaultProbability
	if req.Probability != nil {
		probability = *req.Probability
	}
	value := decimal.Zero
	if req.Value != nil {
		value = req.Value.Round(2)
	}

	now := s.clock.Now()
	pipelineID, stageID := pipeline.ID, stage.ID
	deal := &domain.Deal{
		ID:                s.genID.Generate(),
		OrgID:             tc.OrgID,
		LeadID:            lead.ID,
		PipelineID:        &pipelineID,
		StageID:           &stageID,
		Title:             title,
		Value:             value,
		Probability:       probability,
		ExpectedCloseDate: utcPtr(req.ExpectedCloseDate),
		Notes:             trimmedPtr(req.Notes),
		AssignedToID:      req.AssignedToID,
		StageEnteredAt:    now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Create(ctx, tx, deal); err != nil {
			return err
		}
		if !tc.HasMember() {
			return nil
		}
		event := domain.NewEvent(s.genID.Generate(), deal.ID, domain.CreatedPayload{Title: deal.Title}, tc.MemberRef(), now)
		return s.repo.InsertEvent(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("deal created",
		zap.String("org_id", tc.OrgID.String()),
		zap.String("deal_id", deal.ID.String()),
		zap.String("stage_id", stage.ID.String()),
	)
	return deal, nil
}

// resolvePlacement picks the pipeline (explicit, the stage's, or the default) and the
// stage (explicit or the first by position). It never writes: a missing default
// pipeline is reported, not created.
func (s *Service) resolvePlacement(ctx context.Context, tc tenant.Context, pipelineID, stageID *snowflake.ID) (*pipelinedomain.Pipeline, *pipelinedomain.Stage, error) {
	var stage *pipelinedomain.Stage
	if stageID != nil {
		found, err := s.stages.FindStage(ctx, s.db, tc.OrgID, *stageID)
		if err != nil {
			return nil, nil, err
		}
		if found == nil {
			return nil, nil, domain.ErrStageNotFound
		}
		stage = found
	}

	var (
		pipeline *pipelinedomain.Pipeline
		err      error
	)
	switch {
	case pipelineID != nil:
		pipeline, err = s.pipelines.Get(ctx, tc, *pipelineID)
	case stage != nil:
		pipeline, err = s.pipelines.Get(ctx, tc, stage.PipelineID)
	default:
		pipeline, err = s.stages.FindDefault(ctx, s.db, tc.OrgID)
		if err == nil && pipeline == nil {
			err = pipelinedomain.ErrPipelineNotFound
		}
	}
	if errors.Is(err, pipelinedomain.ErrPipelineNotFound) {
		return nil, nil, domain.ErrPipelineNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	if stage != nil {
		if stage.PipelineID != pipeline.ID {
			return nil, nil, domain.ErrStageNotInPipeline
		}
		return pipeline, stage, nil
	}

	first, err := s.stages.FirstStage(ctx, s.db, pipeline.ID)
	if err != nil {
		return nil, nil, err
	}
	if first == nil {
		return nil, nil, domain.ErrPipelineHasNoStages
	}
	return pipeline, first, nil
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
		return domain.ErrInvalidAssignee
	}
	return nil
}

func (s *Service) Move(ctx context.Context, tc tenant.Context, id snowflake.ID, req domain.MoveRequest) (*domain.Deal, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if req.LostReasonID != nil {
		reason, err := s.repo.FindLostReason(ctx, s.db, tc.OrgID, *req.LostReasonID)
		if err != nil {
			return nil, err
		}
		if reason == nil {
			return nil, domain.ErrLostReasonNotFound
		}
	}

	var (
		moved *domain.Deal
		event *domain.DealEvent
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deal, err := s.repo.FindForUpdate(ctx, tx, tc.OrgID, id)
		if err != nil {
			return err
		}
		if deal == nil {
			return domain.ErrDealNotFound
		}

		stage, err := s.stages.FindStage(ctx, tx, tc.OrgID, req.StageID)
		if err != nil {
			return err
		}
		if stage == nil {
			return domain.ErrStageNotFound
		}

		now := s.clock.Now()
		fromStageID := deal.StageID
		applyTransition(deal, stage, req.LostReasonID, now)

		if err := s.repo.Update(ctx, tx, deal.ID, map[string]any{
			"stage_id":         deal.StageID,
			"pipeline_id":      deal.PipelineID,
			"stage_entered_at": deal.StageEnteredAt,
			"closed_at":        deal.ClosedAt,
			"lost_reason_id":   deal.LostReasonID,
			"updated_at":       now,
		}); err != nil {
			return err
		}

		payload := domain.TransitionPayload{
			Type:        transitionType(stage),
			FromStageID: fromStageID,
			ToStageID:   stage.ID,
			StageName:   stage.Name,
			Notes:       trimmedPtr(req.Notes),
		}
		event = domain.NewEvent(s.genID.Generate(), deal.ID, payload, tc.MemberRef(), now)
		if err := s.repo.InsertEvent(ctx, tx, event); err != nil {
			return err
		}
		moved = deal
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordDealTransition(ctx, string(event.Type))
	if event.Type == domain.EventWon {
		outbox.PublishBestEffort(ctx, s.outbox, tc.OrgID, outbox.TopicDealWon, map[string]any{
			"dealId":   moved.ID.String(),
			"leadId":   moved.LeadID.String(),
			"stageId":  moved.StageID.String(),
			"value":    moved.Value.StringFixed(2),
			"closedAt": moved.ClosedAt,
		})
	}

	s.log.Info("deal moved",
		zap.String("org_id", tc.OrgID.String()),
		zap.String("deal_id", moved.ID.String()),
		zap.String("event", string(event.Type)),
	)
	return moved, nil
}

// applyTransition mutates deal for a move into stage.
func applyTransition(deal *domain.Deal, stage *pipelinedomain.Stage, lostReasonID *snowflake.ID, now time.Time) {
	switch {
	case stage.IsWon:
		deal.ClosedAt = &now
		deal.LostReasonID = nil
	case stage.IsLost:
		deal.ClosedAt = &now
		if lostReasonID != nil {
			deal.LostReasonID = lostReasonID
		}
	case deal.Closed():
		deal.ClosedAt = nil
		deal.LostReasonID = nil
	}

	stageID, pipelineID := stage.ID, stage.PipelineID
	deal.StageID = &stageID
	deal.PipelineID = &pipelineID
	deal.StageEnteredAt = now
	deal.UpdatedAt = now
}

func transitionType(stage *pipelinedomain.Stage) domain.EventType {
	switch {
	case stage.IsWon:
		return domain.EventWon
	case stage.IsLost:
		return domain.EventLost
	default:
		return domain.EventStageChanged
	}
}

func (s *Service) Assign(ctx context.Context, tc tenant.Context, id snowflake.ID, req domain.AssignRequest) (*domain.Deal, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if err := s.ensureAssignable(ctx, tc.OrgID, req.AssignedToID); err != nil {
		return nil, err
	}

	var assigned *domain.Deal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deal, err := s.repo.FindForUpdate(ctx, tx, tc.OrgID, id)
		if err != nil {
			return err
		}
		if deal == nil {
			return domain.ErrDealNotFound
		}

		now := s.clock.Now()
		if err := s.repo.Update(ctx, tx, deal.ID, map[string]any{
			"assigned_to_id": req.AssignedToID,
			"updated_at":     now,
		}); err != nil {
			return err
		}
		deal.AssignedToID = req.AssignedToID
		deal.UpdatedAt = now
		assigned = deal

		if !tc.HasMember() {
			return nil
		}
		event := domain.NewEvent(s.genID.Generate(), deal.ID, domain.AssignedPayload{AssignedToID: req.AssignedToID}, tc.MemberRef(), now)
		return s.repo.InsertEvent(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}
	return assigned, nil
}

func (s *Service) RecordActivity(ctx context.Context, tc tenant.Context, id snowflake.ID, req domain.ActivityRequest) (*domain.DealEvent, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	deal, err := s.repo.FindByID(ctx, s.db, tc.OrgID, id)
	if err != nil {
		return nil, err
	}
	if deal == nil {
		return nil, domain.ErrDealNotFound
	}

	event := domain.NewEvent(s.genID.Generate(), deal.ID, domain.ActivityAddedPayload{
		ActivityID: req.ActivityID,
		Kind:       strings.TrimSpace(req.Kind),
		Title:      strings.TrimSpace(req.Title),
	}, tc.MemberRef(), s.clock.Now())
	if err := s.repo.InsertEvent(ctx, s.db, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *Service) Update(ctx context.Context, tc tenant.Context, id snowflake.ID, req domain.UpdateRequest) (*domain.Deal, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	deal, err := s.repo.FindByID(ctx, s.db, tc.OrgID, id)
	if err != nil {
		return nil, err
	}
	if deal == nil {
		return nil, domain.ErrDealNotFound
	}

	now := s.clock.Now()
	fields := map[string]any{"updated_at": now}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, domain.ErrInvalidTitle
		}
		fields["title"] = title
	}
	if req.Value != nil {
		if req.Value.IsNegative() {
			return nil, domain.ErrInvalidValue
		}
		items, err := s.repo.ListLineItems(ctx, s.db, deal.ID)
		if err != nil {
			return nil, err
		}
		if len(items) > 0 {
			return nil, domain.ErrValueFromLineItems
		}
		fields["value"] = req.Value.Round(2)
	}
	if req.Notes != nil {
		fields["notes"] = trimmedPtr(req.Notes)
	}
	if req.Probability != nil {
		if !validProbability(*req.Probability) {
			return nil, domain.ErrInvalidProbability
		}
		fields["probability"] = *req.Probability
	}
	if req.ExpectedCloseDate != nil {
		fields["expected_close_date"] = utcPtr(req.ExpectedCloseDate)
	}

	if req.PipelineID != nil || req.StageID != nil {
		pipelineID := req.PipelineID
		if pipelineID == nil {
			pipelineID = deal.PipelineID
		}
		pipeline, stage, err := s.resolvePlacement(ctx, tc, pipelineID, req.StageID)
		if err != nil {
			return nil, err
		}
		fields["pipeline_id"] = pipeline.ID
		if deal.StageID == nil || *deal.StageID != stage.ID {
			// closed_at follows the stage, and only Move maintains it.
			if stage.IsWon || stage.IsLost || deal.Closed() {
				return nil, domain.ErrTerminalStageChange
			}
			fields["stage_id"] = stage.ID
			fields["stage_entered_at"] = now
		}
	}

	if err := s.repo.Update(ctx, s.db, deal.ID, fields); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, s.db, tc.OrgID, deal.ID)
}

func (s *Service) Delete(ctx context.Context, tc tenant.Context, id snowflake.ID) error {
	if tc.OrgID == 0 {
		return domain.ErrInvalidOrganization
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deal, err := s.repo.FindForUpdate(ctx, tx, tc.OrgID, id)
		if err != nil {
			return err
		}
		if deal == nil {
			return domain.ErrDealNotFound
		}
		return s.repo.Delete(ctx, tx, deal.ID)
	})
}

func defaultTitle(lead *leaddomain.Lead) string {
	name := strings.TrimSpace(lead.Name)
	if name == "" {
		name = lead.Phone
	}
	return "Deal - " + name
}

func validProbability(p int) bool { return p >= 0 && p <= 100 }

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
