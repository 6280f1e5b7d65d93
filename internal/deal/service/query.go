package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/dealflow/internal/deal/domain"
	pipelinedomain "github.com/smallbiznis/dealflow/internal/pipeline/domain"
	"github.com/smallbiznis/dealflow/internal/tenant"
	"github.com/smallbiznis/dealflow/pkg/db/pagination"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (s *Service) Get(ctx context.Context, tc tenant.Context, id snowflake.ID) (*domain.DealDetail, error) {
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

	detail := &domain.DealDetail{Deal: *deal}

	if detail.Lead, err = s.leads.FindByID(ctx, s.db, tc.OrgID, deal.LeadID); err != nil {
		return nil, err
	}
	if deal.AssignedToID != nil {
		if detail.AssignedTo, err = s.repo.FindAssignee(ctx, s.db, tc.OrgID, *deal.AssignedToID); err != nil {
			return nil, err
		}
	}
	if deal.PipelineID != nil {
		pipeline, err := s.stages.FindByID(ctx, s.db, tc.OrgID, *deal.PipelineID)
		if err != nil {
			return nil, err
		}
		detail.Pipeline = pipeline
	}
	if deal.StageID != nil && detail.Pipeline != nil {
		for i := range detail.Pipeline.Stages {
			if detail.Pipeline.Stages[i].ID == *deal.StageID {
				stage := detail.Pipeline.Stages[i]
				detail.Stage = &stage
			}
		}
	}
	if deal.LostReasonID != nil {
		if detail.LostReason, err = s.repo.FindLostReason(ctx, s.db, tc.OrgID, *deal.LostReasonID); err != nil {
			return nil, err
		}
	}

	if detail.Products, err = s.repo.ListLineItems(ctx, s.db, deal.ID); err != nil {
		return nil, err
	}
	if detail.CustomFields, err = s.customFields.GetValues(ctx, tc, deal.ID); err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *Service) List(ctx context.Context, tc tenant.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	filter := domain.ListFilter{
		Search:       req.Search,
		StageID:      req.StageID,
		LeadID:       req.LeadID,
		PipelineID:   req.PipelineID,
		AssignedToID: req.AssignedToID,
		MinValue:     decimalPtr(req.MinValue),
		MaxValue:     decimalPtr(req.MaxValue),
		CreatedFrom:  req.CreatedFrom,
		CreatedTo:    req.CreatedTo,
		ClosedFrom:   req.ClosedFrom,
		ClosedTo:     req.ClosedTo,
		SortBy:       req.SortBy,
		SortOrder:    req.SortOrder,
		Offset:       (page - 1) * limit,
		Limit:        limit,
	}

	total, err := s.repo.CountSummaries(ctx, s.db, tc.OrgID, filter)
	if err != nil {
		return nil, err
	}
	deals, err := s.repo.ListSummaries(ctx, s.db, tc.OrgID, filter)
	if err != nil {
		return nil, err
	}
	if deals == nil {
		deals = []domain.DealSummary{}
	}
	return &domain.ListResponse{
		Meta:  pagination.NewPage(total, page, limit),
		Deals: deals,
	}, nil
}

func (s *Service) ListByLead(ctx context.Context, tc tenant.Context, leadID snowflake.ID) ([]domain.DealSummary, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.ListSummaries(ctx, s.db, tc.OrgID, domain.ListFilter{LeadID: &leadID})
}

func (s *Service) Board(ctx context.Context, tc tenant.Context, pipelineID snowflake.ID) (*domain.Board, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	pipeline, err := s.pipelines.Get(ctx, tc, pipelineID)
	if errors.Is(err, pipelinedomain.ErrPipelineNotFound) {
		return nil, domain.ErrPipelineNotFound
	}
	if err != nil {
		return nil, err
	}

	deals, err := s.repo.ListSummaries(ctx, s.db, tc.OrgID, domain.ListFilter{PipelineID: &pipeline.ID})
	if err != nil {
		return nil, err
	}

	columns := make([]domain.BoardColumn, 0, len(pipeline.Stages))
	index := make(map[snowflake.ID]int, len(pipeline.Stages))
	for _, stage := range pipeline.Stages {
		index[stage.ID] = len(columns)
		columns = append(columns, domain.BoardColumn{Stage: stage, Value: decimal.Zero, Deals: []domain.DealSummary{}})
	}
	for _, deal := range deals {
		if deal.StageID == nil {
			continue
		}
		i, ok := index[*deal.StageID]
		if !ok {
			continue
		}
		columns[i].Deals = append(columns[i].Deals, deal)
		columns[i].Count++
		columns[i].Value = columns[i].Value.Add(deal.Value)
	}

	return &domain.Board{Pipeline: pipeline, Columns: columns}, nil
}

func (s *Service) History(ctx context.Context, tc tenant.Context, id snowflake.ID) ([]domain.DealEvent, error) {
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
	return s.repo.ListEvents(ctx, s.db, deal.ID)
}

func decimalPtr(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v)
	return &d
}
