package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dealflow/internal/pipeline/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, pipeline *domain.Pipeline) error {
	return db.WithContext(ctx).Omit("Stages").Create(pipeline).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Pipeline, error) {
	var pipeline domain.Pipeline
	query := withStages(db.WithContext(ctx)).Where("org_id = ? AND id = ?", orgID, id)
	return first(query, &pipeline)
}

func (r *repo) FindDefault(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*domain.Pipeline, error) {
	var pipeline domain.Pipeline
	query := withStages(db.WithContext(ctx)).Where("org_id = ? AND is_default = ?", orgID, true)
	return first(query, &pipeline)
}

func (r *repo) FindFirst(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*domain.Pipeline, error) {
	var pipelines []domain.Pipeline
	err := withStages(db.WithContext(ctx)).
		Where("org_id = ?", orgID).
		Order("position ASC, created_at ASC").
		Limit(1).
		Find(&pipelines).Error
	if err != nil || len(pipelines) == 0 {
		return nil, err
	}
	return &pipelines[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]domain.Pipeline, error) {
	var pipelines []domain.Pipeline
	err := withStages(db.WithContext(ctx)).
		Where("org_id = ?", orgID).
		Order("position ASC, created_at ASC").
		Find(&pipelines).Error
	return pipelines, err
}

func (r *repo) MaxPosition(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int, error) {
	return maxPosition(db.WithContext(ctx).Model(&domain.Pipeline{}).Where("org_id = ?", orgID))
}

func (r *repo) ClearDefault(ctx context.Context, db *gorm.DB, orgID snowflake.ID, exceptID snowflake.ID) error {
	return db.WithContext(ctx).
		Model(&domain.Pipeline{}).
		Where("org_id = ? AND id <> ? AND is_default = ?", orgID, exceptID, true).
		Update("is_default", false).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).Model(&domain.Pipeline{}).Where("id = ?", id).Updates(fields).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	db = db.WithContext(ctx)
	if err := db.Where("pipeline_id = ?", id).Delete(&domain.PipelineMember{}).Error; err != nil {
		return err
	}
	if err := db.Where("pipeline_id = ?", id).Delete(&domain.Stage{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&domain.Pipeline{}).Error
}

func (r *repo) CountDeals(ctx context.Context, db *gorm.DB, pipelineID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM deals WHERE pipeline_id = ?`, pipelineID).Scan(&count).Error
	return count, err
}

func (r *repo) DealCounts(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (map[snowflake.ID]int64, error) {
	var rows []struct {
		PipelineID int64
		Count      int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT pipeline_id, COUNT(*) AS count
		 FROM deals
		 WHERE org_id = ? AND pipeline_id IS NOT NULL
		 GROUP BY pipeline_id`,
		orgID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[snowflake.ID]int64, len(rows))
	for _, row := range rows {
		counts[snowflake.ID(row.PipelineID)] = row.Count
	}
	return counts, nil
}

func (r *repo) ListMemberIDs(ctx context.Context, db *gorm.DB, pipelineID snowflake.ID) ([]snowflake.ID, error) {
	var members []domain.PipelineMember
	err := db.WithContext(ctx).Where("pipeline_id = ?", pipelineID).Order("created_at ASC").Find(&members).Error
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.MemberID)
	}
	return ids, nil
}

func (r *repo) ReplaceMembers(ctx context.Context, db *gorm.DB, pipelineID snowflake.ID, memberIDs []snowflake.ID, now time.Time) error {
	db = db.WithContext(ctx)
	if err := db.Where("pipeline_id = ?", pipelineID).Delete(&domain.PipelineMember{}).Error; err != nil {
		return err
	}
	if len(memberIDs) == 0 {
		return nil
	}
	rows := make([]domain.PipelineMember, 0, len(memberIDs))
	for _, id := range memberIDs {
		rows = append(rows, domain.PipelineMember{PipelineID: pipelineID, MemberID: id, CreatedAt: now})
	}
	return db.Create(&rows).Error
}

func (r *repo) AccessibleRestrictedIDs(ctx context.Context, db *gorm.DB, orgID, memberID snowflake.ID) ([]snowflake.ID, error) {
	var raw []int64
	err := db.WithContext(ctx).Raw(
		`SELECT p.id
		 FROM pipelines p
		 JOIN pipeline_members pm ON pm.pipeline_id = p.id
		 WHERE p.org_id = ? AND pm.member_id = ?`,
		orgID, memberID,
	).Scan(&raw).Error
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, snowflake.ID(id))
	}
	return ids, nil
}

func (r *repo) CreateStages(ctx context.Context, db *gorm.DB, stages []*domain.Stage) error {
	if len(stages) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(stages).Error
}

func (r *repo) FindStage(ctx context.Context, db *gorm.DB, orgID, stageID snowflake.ID) (*domain.Stage, error) {
	var stages []domain.Stage
	err := db.WithContext(ctx).Raw(
		`SELECT s.*
		 FROM stages s
		 JOIN pipelines p ON p.id = s.pipeline_id
		 WHERE s.id = ? AND p.org_id = ?
		 LIMIT 1`,
		stageID, orgID,
	).Scan(&stages).Error
	if err != nil || len(stages) == 0 {
		return nil, err
	}
	return &stages[0], nil
}

func (r *repo) ListStages(ctx context.Context, db *gorm.DB, pipelineID snowflake.ID) ([]domain.Stage, error) {
	var stages []domain.Stage
	err := db.WithContext(ctx).Where("pipeline_id = ?", pipelineID).Order("position ASC, id ASC").Find(&stages).Error
	return stages, err
}

func (r *repo) FirstStage(ctx context.Context, db *gorm.DB, pipelineID snowflake.ID) (*domain.Stage, error) {
	var stages []domain.Stage
	err := db.WithContext(ctx).Where("pipeline_id = ?", pipelineID).Order("position ASC, id ASC").Limit(1).Find(&stages).Error
	if err != nil || len(stages) == 0 {
		return nil, err
	}
	return &stages[0], nil
}

func (r *repo) MaxStagePosition(ctx context.Context, db *gorm.DB, pipelineID snowflake.ID) (int, error) {
	return maxPosition(db.WithContext(ctx).Model(&domain.Stage{}).Where("pipeline_id = ?", pipelineID))
}

func (r *repo) TerminalStage(ctx context.Context, db *gorm.DB, pipelineID snowflake.ID, won bool, excludeID snowflake.ID) (*domain.Stage, error) {
	column := "is_lost"
	if won {
		column = "is_won"
	}
	var stages []domain.Stage
	err := db.WithContext(ctx).
		Where("pipeline_id = ? AND id <> ?", pipelineID, excludeID).
		Where(column+" = ?", true).
		Limit(1).
		Find(&stages).Error
	if err != nil || len(stages) == 0 {
		return nil, err
	}
	return &stages[0], nil
}

func (r *repo) UpdateStage(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).Model(&domain.Stage{}).Where("id = ?", id).Updates(fields).Error
}

func (r *repo) DeleteStage(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Stage{}).Error
}

func (r *repo) CountStageDeals(ctx context.Context, db *gorm.DB, stageID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM deals WHERE stage_id = ?`, stageID).Scan(&count).Error
	return count, err
}

func withStages(db *gorm.DB) *gorm.DB {
	return db.Preload("Stages", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position ASC, id ASC")
	})
}

// maxPosition returns -1 when no rows match.
func maxPosition(query *gorm.DB) (int, error) {
	var max *int
	if err := query.Select("MAX(position)").Scan(&max).Error; err != nil {
		return 0, err
	}
	if max == nil {
		return -1, nil
	}
	return *max, nil
}

func first[T any](query *gorm.DB, dest *T) (*T, error) {
	err := query.First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return dest, nil
}
