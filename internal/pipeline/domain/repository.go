package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, pipeline *Pipeline) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Pipeline, error)
	FindDefault(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*Pipeline, error)
	FindFirst(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*Pipeline, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Pipeline, error)
	MaxPosition(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int, error)
	ClearDefault(ctx context.Context, db *gorm.DB, orgID snowflake.ID, exceptID snowflake.ID) error
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	CountDeals(ctx context.Context, db *gorm.DB, pipelineID snowflake.ID) (int64, error)
	DealCounts(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (map[snowflake.ID]int64, error)

	ListMemberIDs(ctx context.Context, db *gorm.DB, pipelineID snowflake.ID) ([]snowflake.ID, error)
	ReplaceMembers(ctx context.Context, db *gorm.DB, pipelineID snowflake.ID, memberIDs []snowflake.ID, now time.Time) error
	// AccessibleRestrictedIDs lists the restricted pipelines memberID was granted.
	AccessibleRestrictedIDs(ctx context.Context, db *gorm.DB, orgID, memberID snowflake.ID) ([]snowflake.ID, error)

	CreateStages(ctx context.Context, db *gorm.DB, stages []*Stage) error
	// FindStage resolves a stage only when its pipeline belongs to orgID.
	FindStage(ctx context.Context, db *gorm.DB, orgID, stageID snowflake.ID) (*Stage, error)
	ListStages(ctx context.Context, db *gorm.DB, pipelineID snowflake.ID) ([]Stage, error)
	FirstStage(ctx context.Context, db *gorm.DB, pipelineID snowflake.ID) (*Stage, error)
	MaxStagePosition(ctx context.Context, db *gorm.DB, pipelineID snowflake.ID) (int, error)
	// TerminalStage returns the won (or lost) stage of a pipeline, ignoring excludeID.
	TerminalStage(ctx context.Context, db *gorm.DB, pipelineID snowflake.ID, won bool, excludeID snowflake.ID) (*Stage, error)
	UpdateStage(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	DeleteStage(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	CountStageDeals(ctx context.Context, db *gorm.DB, stageID snowflake.ID) (int64, error)
}
