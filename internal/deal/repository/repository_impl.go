package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/dealflow/internal/deal/domain"
	lostreasondomain "github.com/smallbiznis/dealflow/internal/lostreason/domain"
	orgdomain "github.com/smallbiznis/dealflow/internal/organization/domain"
	"github.com/smallbiznis/dealflow/pkg/db/option"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var sortColumns = map[string]string{
	"createdAt":         "deals.created_at",
	"updatedAt":         "deals.updated_at",
	"value":             "deals.value",
	"title":             "deals.title",
	"expectedCloseDate": "deals.expected_close_date",
	"closedAt":          "deals.closed_at",
}

const summaryColumns = `deals.*,
	leads.name AS lead_name,
	leads.phone AS lead_phone,
	leads.temperature AS lead_temperature,
	pipelines.name AS pipeline_name,
	stages.name AS stage_name,
	stages.color AS stage_color,
	users.name AS assigned_to_name`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, deal *domain.Deal) error {
	return db.WithContext(ctx).Create(deal).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Deal, error) {
	return first(db.WithContext(ctx).Where("org_id = ? AND id = ?", orgID, id))
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Deal, error) {
	return first(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("org_id = ? AND id = ?", orgID, id))
}

func first(stmt *gorm.DB) (*domain.Deal, error) {
	var deal domain.Deal
	err := stmt.First(&deal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &deal, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).Model(&domain.Deal{}).Where("id = ?", id).Updates(fields).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	stmt := db.WithContext(ctx)
	if err := stmt.Where("deal_id = ?", id).Delete(&domain.DealProduct{}).Error; err != nil {
		return err
	}
	if err := stmt.Where("deal_id = ?", id).Delete(&domain.DealEvent{}).Error; err != nil {
		return err
	}
	if err := stmt.Exec(
		`DELETE FROM custom_field_values
		 WHERE entity_id = ? AND custom_field_id IN (SELECT id FROM custom_fields WHERE entity = ?)`,
		id, "DEAL",
	).Error; err != nil {
		return err
	}
	return stmt.Where("id = ?", id).Delete(&domain.Deal{}).Error
}

func (r *repo) ListSummaries(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]domain.DealSummary, error) {
	stmt := applyFilter(summaryQuery(ctx, db, orgID), filter).Select(summaryColumns)
	stmt = option.WithSortBy(filter.SortBy, filter.SortOrder, sortColumns, "deals.created_at").Apply(stmt)
	stmt = option.WithOffset(filter.Offset).Apply(stmt)
	stmt = option.WithLimit(filter.Limit).Apply(stmt)

	var items []domain.DealSummary
	if err := stmt.Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountSummaries(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) (int64, error) {
	var total int64
	err := applyFilter(summaryQuery(ctx, db, orgID), filter).Count(&total).Error
	return total, err
}

func summaryQuery(ctx context.Context, db *gorm.DB, orgID snowflake.ID) *gorm.DB {
	return db.WithContext(ctx).
		Table("deals").
		Joins("JOIN leads ON leads.id = deals.lead_id").
		Joins("LEFT JOIN pipelines ON pipelines.id = deals.pipeline_id").
		Joins("LEFT JOIN stages ON stages.id = deals.stage_id").
		Joins("LEFT JOIN organization_members ON organization_members.id = deals.assigned_to_id").
		Joins("LEFT JOIN users ON users.id = organization_members.user_id").
		Where("deals.org_id = ?", orgID)
}

func applyFilter(stmt *gorm.DB, filter domain.ListFilter) *gorm.DB {
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		like := "%" + search + "%"
		stmt = stmt.Where("(LOWER(deals.title) LIKE ? OR LOWER(leads.name) LIKE ? OR leads.phone LIKE ?)", like, like, like)
	}
	if filter.StageID != nil {
		stmt = stmt.Where("deals.stage_id = ?", *filter.StageID)
	}
	if filter.LeadID != nil {
		stmt = stmt.Where("deals.lead_id = ?", *filter.LeadID)
	}
	if filter.PipelineID != nil {
		stmt = stmt.Where("deals.pipeline_id = ?", *filter.PipelineID)
	}
	if filter.AssignedToID != nil {
		stmt = stmt.Where("deals.assigned_to_id = ?", *filter.AssignedToID)
	}
	if filter.MinValue != nil {
		stmt = stmt.Where("deals.value >= ?", *filter.MinValue)
	}
	if filter.MaxValue != nil {
		stmt = stmt.Where("deals.value <= ?", *filter.MaxValue)
	}
	if filter.CreatedFrom != nil {
		stmt = stmt.Where("deals.created_at >= ?", filter.CreatedFrom.UTC())
	}
	if filter.CreatedTo != nil {
		stmt = stmt.Where("deals.created_at <= ?", filter.CreatedTo.UTC())
	}
	if filter.ClosedFrom != nil {
		stmt = stmt.Where("deals.closed_at >= ?", filter.ClosedFrom.UTC())
	}
	if filter.ClosedTo != nil {
		stmt = stmt.Where("deals.closed_at <= ?", filter.ClosedTo.UTC())
	}
	return stmt
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.DealEvent) error {
	return db.WithContext(ctx).Create(event).Error
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, dealID snowflake.ID) ([]domain.DealEvent, error) {
	var events []domain.DealEvent
	err := db.WithContext(ctx).
		Where("deal_id = ?", dealID).
		Order("created_at DESC, id DESC").
		Find(&events).Error
	return events, err
}

func (r *repo) CreateLineItem(ctx context.Context, db *gorm.DB, item *domain.DealProduct) error {
	return db.WithContext(ctx).Omit(clause.Associations).Create(item).Error
}

func (r *repo) FindLineItem(ctx context.Context, db *gorm.DB, dealID, itemID snowflake.ID) (*domain.DealProduct, error) {
	var item domain.DealProduct
	err := db.WithContext(ctx).
		Preload("Product").
		Where("deal_id = ? AND id = ?", dealID, itemID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) LineItemExists(ctx context.Context, db *gorm.DB, dealID, productID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.DealProduct{}).
		Where("deal_id = ? AND product_id = ?", dealID, productID).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) UpdateLineItem(ctx context.Context, db *gorm.DB, itemID snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).Model(&domain.DealProduct{}).Where("id = ?", itemID).Updates(fields).Error
}

func (r *repo) DeleteLineItem(ctx context.Context, db *gorm.DB, itemID snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", itemID).Delete(&domain.DealProduct{}).Error
}

func (r *repo) ListLineItems(ctx context.Context, db *gorm.DB, dealID snowflake.ID) ([]domain.DealProduct, error) {
	var items []domain.DealProduct
	err := db.WithContext(ctx).
		Preload("Product").
		Where("deal_id = ?", dealID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) FindLostReason(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*lostreasondomain.LostReason, error) {
	var reason lostreasondomain.LostReason
	err := db.WithContext(ctx).Where("org_id = ? AND id = ?", orgID, id).First(&reason).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reason, nil
}

func (r *repo) FindAssignee(ctx context.Context, db *gorm.DB, orgID, memberID snowflake.ID) (*orgdomain.MemberView, error) {
	var views []orgdomain.MemberView
	err := db.WithContext(ctx).Raw(
		`SELECT m.id, m.user_id, u.name, u.email, m.role, m.is_active, m.created_at
		 FROM organization_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.org_id = ? AND m.id = ?
		 LIMIT 1`,
		orgID, memberID,
	).Scan(&views).Error
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, nil
	}
	return &views[0], nil
}

type aggregateRow struct {
	Count    int64
	Value    decimal.Decimal
	Weighted decimal.Decimal
}

func (r *repo) Aggregate(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.AggregateFilter) (domain.Aggregate, error) {
	stmt := db.WithContext(ctx).
		Table("deals").
		Select(`COUNT(*) AS count,
			COALESCE(SUM(deals.value), 0) AS value,
			COALESCE(SUM(deals.value * deals.probability), 0) AS weighted`).
		Where("deals.org_id = ?", orgID)

	if filter.WonStage || filter.LostStage {
		stmt = stmt.Joins("JOIN stages ON stages.id = deals.stage_id")
		if filter.WonStage {
			stmt = stmt.Where("stages.is_won = ?", true)
		}
		if filter.LostStage {
			stmt = stmt.Where("stages.is_lost = ?", true)
		}
	}
	if filter.CreatedSince != nil {
		stmt = stmt.Where("deals.created_at >= ?", filter.CreatedSince.UTC())
	}
	if filter.OpenOnly {
		stmt = stmt.Where("deals.closed_at IS NULL")
	}
	if filter.ExpectedFrom != nil {
		stmt = stmt.Where("deals.expected_close_date >= ?", filter.ExpectedFrom.UTC())
	}
	if filter.ExpectedBefore != nil {
		stmt = stmt.Where("deals.expected_close_date < ?", filter.ExpectedBefore.UTC())
	}
	if filter.ClosedSince != nil {
		stmt = stmt.Where("deals.closed_at >= ?", filter.ClosedSince.UTC())
	}

	var row aggregateRow
	if err := stmt.Scan(&row).Error; err != nil {
		return domain.Aggregate{}, err
	}
	return domain.Aggregate{
		Count:    row.Count,
		Value:    row.Value,
		Weighted: row.Weighted.Div(decimal.NewFromInt(100)).Round(2),
	}, nil
}

func (r *repo) AverageValue(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (decimal.Decimal, error) {
	var row struct {
		Average decimal.Decimal
	}
	err := db.WithContext(ctx).
		Table("deals").
		Select("COALESCE(AVG(value), 0) AS average").
		Where("org_id = ?", orgID).
		Scan(&row).Error
	return row.Average.Round(2), err
}

func (r *repo) StageBreakdown(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]domain.StageStat, error) {
	var rows []struct {
		StageID   *int64
		StageName *string
		Count     int64
		Value     decimal.Decimal
	}
	err := db.WithContext(ctx).
		Table("deals").
		Select(`deals.stage_id AS stage_id,
			MAX(stages.name) AS stage_name,
			COUNT(*) AS count,
			COALESCE(SUM(deals.value), 0) AS value`).
		Joins("LEFT JOIN stages ON stages.id = deals.stage_id").
		Where("deals.org_id = ?", orgID).
		Group("deals.stage_id").
		Order("MIN(stages.position) ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := make([]domain.StageStat, 0, len(rows))
	for _, row := range rows {
		stat := domain.StageStat{Count: row.Count, Value: row.Value}
		if row.StageID != nil {
			id := snowflake.ID(*row.StageID)
			stat.StageID = &id
		}
		if row.StageName != nil {
			stat.StageName = *row.StageName
		}
		stats = append(stats, stat)
	}
	return stats, nil
}
