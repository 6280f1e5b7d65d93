package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dealflow/internal/clock"
	limitdomain "github.com/smallbiznis/dealflow/internal/limit/domain"
	orgdomain "github.com/smallbiznis/dealflow/internal/organization/domain"
	"github.com/smallbiznis/dealflow/internal/pipeline/domain"
	"github.com/smallbiznis/dealflow/internal/tenant"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultPipelineName = "Sales Pipeline"

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
		log:     p.Log.Named("pipeline.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		limits:  p.Limits,
		members: p.Members,
	}
}

func (s *Service) Create(ctx context.Context, tc tenant.Context, req domain.CreatePipelineRequest) (*domain.Pipeline, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = domain.VisibilityPublic
	}
	if !visibility.Valid() {
		return nil, domain.ErrInvalidVisibility
	}
	if err := validateStageSet(req.Stages); err != nil {
		return nil, err
	}

	if err := s.limits.CheckLimit(ctx, tc.OrgID, limitdomain.ResourcePipelines); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	pipeline := &domain.Pipeline{
		ID:          s.genID.Generate(),
		OrgID:       tc.OrgID,
		Name:        name,
		Description: trimmedPtr(req.Description),
		Color:       colorOrDefault(req.Color),
		IsDefault:   req.IsDefault,
		Visibility:  visibility,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		max, err := s.repo.MaxPosition(ctx, tx, tc.OrgID)
		if err != nil {
			return err
		}
		pipeline.Position = max + 1

		if pipeline.IsDefault {
			if err := s.repo.ClearDefault(ctx, tx, tc.OrgID, pipeline.ID); err != nil {
				return err
			}
		}
		if err := s.repo.Create(ctx, tx, pipeline); err != nil {
			return err
		}

		stages := s.buildStages(pipeline.ID, req.Stages)
		if err := s.repo.CreateStages(ctx, tx, stages); err != nil {
			return err
		}
		pipeline.Stages = make([]domain.Stage, 0, len(stages))
		for _, stage := range stages {
			pipeline.Stages = append(pipeline.Stages, *stage)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("pipeline created",
		zap.String("org_id", tc.OrgID.String()),
		zap.String("pipeline_id", pipeline.ID.String()),
		zap.Int("stages", len(pipeline.Stages)),
	)
	return pipeline, nil
}

// buildStages uses the supplied stages or the default template, positioned in order.
func (s *Service) buildStages(pipelineID snowflake.ID, reqs []domain.StageRequest) []*domain.Stage {
	now := s.clock.Now()
	if len(reqs) == 0 {
		stages := make([]*domain.Stage, 0, len(domain.DefaultStageTemplate))
		for i, tpl := range domain.DefaultStageTemplate {
			stages = append(stages, &domain.Stage{
				ID:          s.genID.Generate(),
				PipelineID:  pipelineID,
				Name:        tpl.Name,
				Color:       tpl.Color,
				Position:    i,
				Probability: tpl.Probability,
				IsWon:       tpl.IsWon,
				IsLost:      tpl.IsLost,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
		return stages
	}

	stages := make([]*domain.Stage, 0, len(reqs))
	for i, req := range reqs {
		position := i
		if req.Position != nil {
			position = *req.Position
		}
		stages = append(stages, &domain.Stage{
			ID:          s.genID.Generate(),
			PipelineID:  pipelineID,
			Name:        strings.TrimSpace(req.Name),
			Color:       colorOrDefault(req.Color),
			Position:    position,
			Probability: probabilityOrDefault(req.Probability, req.IsWon, req.IsLost),
			IsWon:       req.IsWon,
			IsLost:      req.IsLost,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return stages
}

func (s *Service) List(ctx context.Context, tc tenant.Context) ([]domain.Pipeline, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	pipelines, err := s.repo.List(ctx, s.db, tc.OrgID)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.DealCounts(ctx, s.db, tc.OrgID)
	if err != nil {
		return nil, err
	}
	granted, err := s.restrictedGrants(ctx, tc)
	if err != nil {
		return nil, err
	}

	visible := make([]domain.Pipeline, 0, len(pipelines))
	for _, p := range pipelines {
		if !canView(tc, p, granted) {
			continue
		}
		p.DealCount = counts[p.ID]
		visible = append(visible, p)
	}
	return visible, nil
}

func (s *Service) Get(ctx context.Context, tc tenant.Context, id snowflake.ID) (*domain.Pipeline, error) {
	pipeline, err := s.find(ctx, tc, id)
	if err != nil {
		return nil, err
	}
	granted, err := s.restrictedGrants(ctx, tc)
	if err != nil {
		return nil, err
	}
	if !canView(tc, *pipeline, granted) {
		return nil, domain.ErrPipelineNotFound
	}
	return s.decorate(ctx, pipeline)
}

func (s *Service) GetDefault(ctx context.Context, tc tenant.Context) (*domain.Pipeline, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	pipeline, err := s.repo.FindDefault(ctx, s.db, tc.OrgID)
	if err != nil {
		return nil, err
	}
	if pipeline != nil {
		return s.decorate(ctx, pipeline)
	}

	first, err := s.repo.FindFirst(ctx, s.db, tc.OrgID)
	if err != nil {
		return nil, err
	}
	if first == nil {
		return s.Create(ctx, tc, domain.CreatePipelineRequest{Name: defaultPipelineName, IsDefault: true})
	}

	if err := s.repo.Update(ctx, s.db, first.ID, map[string]any{
		"is_default": true,
		"updated_at": s.clock.Now(),
	}); err != nil {
		return nil, err
	}
	first.IsDefault = true
	return s.decorate(ctx, first)
}

func (s *Service) Update(ctx context.Context, tc tenant.Context, id snowflake.ID, req domain.UpdatePipelineRequest) (*domain.Pipeline, error) {
	pipeline, err := s.find(ctx, tc, id)
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
		fields["description"] = trimmedPtr(req.Description)
	}
	if req.Color != nil {
		fields["color"] = colorOrDefault(*req.Color)
	}
	if req.Position != nil {
		fields["position"] = *req.Position
	}
	if req.Visibility != nil {
		if !req.Visibility.Valid() {
			return nil, domain.ErrInvalidVisibility
		}
		fields["visibility"] = *req.Visibility
	}
	if req.IsDefault != nil {
		fields["is_default"] = *req.IsDefault
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.IsDefault != nil && *req.IsDefault {
			if err := s.repo.ClearDefault(ctx, tx, tc.OrgID, pipeline.ID); err != nil {
				return err
			}
		}
		return s.repo.Update(ctx, tx, pipeline.ID, fields)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, tc, pipeline.ID)
}

func (s *Service) Delete(ctx context.Context, tc tenant.Context, id snowflake.ID) error {
	pipeline, err := s.find(ctx, tc, id)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deals, err := s.repo.CountDeals(ctx, tx, pipeline.ID)
		if err != nil {
			return err
		}
		if deals > 0 {
			return domain.ErrPipelineHasDeals
		}
		return s.repo.Delete(ctx, tx, pipeline.ID)
	})
}

func (s *Service) SetMembers(ctx context.Context, tc tenant.Context, id snowflake.ID, req domain.SetMembersRequest) (*domain.Pipeline, error) {
	pipeline, err := s.find(ctx, tc, id)
	if err != nil {
		return nil, err
	}

	seen := make(map[snowflake.ID]struct{}, len(req.MemberIDs))
	memberIDs := make([]snowflake.ID, 0, len(req.MemberIDs))
	for _, memberID := range req.MemberIDs {
		if _, dup := seen[memberID]; dup {
			continue
		}
		seen[memberID] = struct{}{}

		member, err := s.members.FindMember(ctx, tc.OrgID, memberID)
		if err != nil {
			return nil, err
		}
		if member == nil || !member.IsActive {
			return nil, domain.ErrMemberNotFound
		}
		memberIDs = append(memberIDs, memberID)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.ReplaceMembers(ctx, tx, pipeline.ID, memberIDs, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	return s.decorate(ctx, pipeline)
}

func (s *Service) CreateStage(ctx context.Context, tc tenant.Context, pipelineID snowflake.ID, req domain.StageRequest) (*domain.Stage, error) {
	pipeline, err := s.find(ctx, tc, pipelineID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.IsWon && req.IsLost {
		return nil, domain.ErrStageBothTerminal
	}

	now := s.clock.Now()
	stage := &domain.Stage{
		ID:          s.genID.Generate(),
		PipelineID:  pipeline.ID,
		Name:        name,
		Color:       colorOrDefault(req.Color),
		Probability: probabilityOrDefault(req.Probability, req.IsWon, req.IsLost),
		IsWon:       req.IsWon,
		IsLost:      req.IsLost,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureTerminalFree(ctx, tx, pipeline.ID, 0, req.IsWon, req.IsLost); err != nil {
			return err
		}
		if req.Position != nil {
			stage.Position = *req.Position
		} else {
			max, err := s.repo.MaxStagePosition(ctx, tx, pipeline.ID)
			if err != nil {
				return err
			}
			stage.Position = max + 1
		}
		return s.repo.CreateStages(ctx, tx, []*domain.Stage{stage})
	})
	if err != nil {
		return nil, err
	}
	return stage, nil
}

func (s *Service) UpdateStage(ctx context.Context, tc tenant.Context, stageID snowflake.ID, req domain.UpdateStageRequest) (*domain.Stage, error) {
	stage, err := s.findStage(ctx, tc, stageID)
	if err != nil {
		return nil, err
	}

	isWon, isLost := stage.IsWon, stage.IsLost
	if req.IsWon != nil {
		isWon = *req.IsWon
	}
	if req.IsLost != nil {
		isLost = *req.IsLost
	}
	if isWon && isLost {
		return nil, domain.ErrStageBothTerminal
	}

	fields := map[string]any{
		"is_won":     isWon,
		"is_lost":    isLost,
		"updated_at": s.clock.Now(),
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		fields["name"] = name
	}
	if req.Color != nil {
		fields["color"] = colorOrDefault(*req.Color)
	}
	if req.Position != nil {
		fields["position"] = *req.Position
	}
	if req.Probability != nil {
		if *req.Probability < 0 || *req.Probability > 100 {
			return nil, domain.ErrInvalidProbability
		}
		fields["probability"] = *req.Probability
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureTerminalFree(ctx, tx, stage.PipelineID, stage.ID, isWon && !stage.IsWon, isLost && !stage.IsLost); err != nil {
			return err
		}
		return s.repo.UpdateStage(ctx, tx, stage.ID, fields)
	})
	if err != nil {
		return nil, err
	}
	return s.findStage(ctx, tc, stage.ID)
}

func (s *Service) DeleteStage(ctx context.Context, tc tenant.Context, stageID snowflake.ID) error {
	stage, err := s.findStage(ctx, tc, stageID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deals, err := s.repo.CountStageDeals(ctx, tx, stage.ID)
		if err != nil {
			return err
		}
		if deals > 0 {
			return domain.ErrStageHasDeals
		}
		return s.repo.DeleteStage(ctx, tx, stage.ID)
	})
}

// ReorderStages assigns positions 0..n-1 following the given order. Nothing is
// written unless every id is a stage of the pipeline.
func (s *Service) ReorderStages(ctx context.Context, tc tenant.Context, pipelineID snowflake.ID, req domain.ReorderStagesRequest) ([]domain.Stage, error) {
	pipeline, err := s.find(ctx, tc, pipelineID)
	if err != nil {
		return nil, err
	}

	var stages []domain.Stage
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.ListStages(ctx, tx, pipeline.ID)
		if err != nil {
			return err
		}
		known := make(map[snowflake.ID]struct{}, len(current))
		for _, stage := range current {
			known[stage.ID] = struct{}{}
		}

		seen := make(map[snowflake.ID]struct{}, len(req.StageIDs))
		for _, id := range req.StageIDs {
			if _, ok := known[id]; !ok {
				return domain.ErrStageNotFound
			}
			if _, dup := seen[id]; dup {
				return domain.ErrDuplicateStageID
			}
			seen[id] = struct{}{}
		}

		now := s.clock.Now()
		for position, id := range req.StageIDs {
			if err := s.repo.UpdateStage(ctx, tx, id, map[string]any{
				"position":   position,
				"updated_at": now,
			}); err != nil {
				return err
			}
		}

		stages, err = s.repo.ListStages(ctx, tx, pipeline.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stages, nil
}

// ensureTerminalFree fails when another stage of the pipeline already holds the
// won (or lost) flag being claimed.
func (s *Service) ensureTerminalFree(ctx context.Context, tx *gorm.DB, pipelineID, stageID snowflake.ID, claimWon, claimLost bool) error {
	if claimWon {
		existing, err := s.repo.TerminalStage(ctx, tx, pipelineID, true, stageID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrWonStageExists
		}
	}
	if claimLost {
		existing, err := s.repo.TerminalStage(ctx, tx, pipelineID, false, stageID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrLostStageExists
		}
	}
	return nil
}

func (s *Service) find(ctx context.Context, tc tenant.Context, id snowflake.ID) (*domain.Pipeline, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	pipeline, err := s.repo.FindByID(ctx, s.db, tc.OrgID, id)
	if err != nil {
		return nil, err
	}
	if pipeline == nil {
		return nil, domain.ErrPipelineNotFound
	}
	return pipeline, nil
}

func (s *Service) findStage(ctx context.Context, tc tenant.Context, id snowflake.ID) (*domain.Stage, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	stage, err := s.repo.FindStage(ctx, s.db, tc.OrgID, id)
	if err != nil {
		return nil, err
	}
	if stage == nil {
		return nil, domain.ErrStageNotFound
	}
	return stage, nil
}

func (s *Service) decorate(ctx context.Context, pipeline *domain.Pipeline) (*domain.Pipeline, error) {
	count, err := s.repo.CountDeals(ctx, s.db, pipeline.ID)
	if err != nil {
		return nil, err
	}
	pipeline.DealCount = count
	if pipeline.Visibility == domain.VisibilityRestricted {
		ids, err := s.repo.ListMemberIDs(ctx, s.db, pipeline.ID)
		if err != nil {
			return nil, err
		}
		pipeline.MemberIDs = ids
	}
	return pipeline, nil
}

func (s *Service) restrictedGrants(ctx context.Context, tc tenant.Context) (map[snowflake.ID]struct{}, error) {
	if tc.Role.AtLeast(tenant.RoleAdmin) || tc.MemberID == 0 {
		return nil, nil
	}
	ids, err := s.repo.AccessibleRestrictedIDs(ctx, s.db, tc.OrgID, tc.MemberID)
	if err != nil {
		return nil, err
	}
	granted := make(map[snowflake.ID]struct{}, len(ids))
	for _, id := range ids {
		granted[id] = struct{}{}
	}
	return granted, nil
}

// canView hides restricted pipelines from members below ADMIN that were not granted access.
// System callers without a member see everything.
func canView(tc tenant.Context, p domain.Pipeline, granted map[snowflake.ID]struct{}) bool {
	if p.Visibility != domain.VisibilityRestricted {
		return true
	}
	if tc.Role.AtLeast(tenant.RoleAdmin) || tc.MemberID == 0 {
		return true
	}
	_, ok := granted[p.ID]
	return ok
}

func validateStageSet(stages []domain.StageRequest) error {
	var won, lost int
	for _, stage := range stages {
		if strings.TrimSpace(stage.Name) == "" {
			return domain.ErrInvalidName
		}
		if stage.IsWon && stage.IsLost {
			return domain.ErrStageBothTerminal
		}
		if stage.Probability != nil && (*stage.Probability < 0 || *stage.Probability > 100) {
			return domain.ErrInvalidProbability
		}
		if stage.IsWon {
			won++
		}
		if stage.IsLost {
			lost++
		}
	}
	if won > 1 {
		return domain.ErrWonStageExists
	}
	if lost > 1 {
		return domain.ErrLostStageExists
	}
	return nil
}

func probabilityOrDefault(p *int, won, lost bool) int {
	switch {
	case p != nil:
		return *p
	case won:
		return 100
	case lost:
		return 0
	default:
		return 50
	}
}

func colorOrDefault(color string) string {
	color = strings.TrimSpace(color)
	if color == "" {
		return domain.DefaultStageColor
	}
	return color
}

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
