// Package domain contains pipelines and their ordered stages.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Visibility string

const (
	VisibilityPublic     Visibility = "PUBLIC"
	VisibilityRestricted Visibility = "RESTRICTED"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityRestricted
}

const DefaultStageColor = "#6366f1"

// Pipeline is an ordered container of stages. At most one pipeline per organization is the default.
type Pipeline struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID `gorm:"not null;index" json:"orgId"`
	Name        string       `gorm:"type:text;not null" json:"name"`
	Description *string      `gorm:"type:text" json:"description,omitempty"`
	Color       string       `gorm:"type:text;not null;default:'#6366f1'" json:"color"`
	IsDefault   bool         `gorm:"not null;default:false" json:"isDefault"`
	Position    int          `gorm:"not null;default:0" json:"position"`
	Visibility  Visibility   `gorm:"type:text;not null;default:'PUBLIC'" json:"visibility"`
	CreatedAt   time.Time    `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updatedAt"`

	Stages    []Stage        `gorm:"foreignKey:PipelineID" json:"stages,omitempty"`
	MemberIDs []snowflake.ID `gorm:"-" json:"memberIds,omitempty"`
	DealCount int64          `gorm:"-" json:"dealCount"`
}

func (Pipeline) TableName() string { return "pipelines" }

// PipelineMember grants access to a RESTRICTED pipeline.
type PipelineMember struct {
	PipelineID snowflake.ID `gorm:"primaryKey" json:"pipelineId"`
	MemberID   snowflake.ID `gorm:"primaryKey" json:"memberId"`
	CreatedAt  time.Time    `gorm:"not null" json:"createdAt"`
}

func (PipelineMember) TableName() string { return "pipeline_members" }

// Stage is one step of a pipeline. IsWon and IsLost are mutually exclusive and each
// is held by at most one stage of a pipeline.
type Stage struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	PipelineID  snowflake.ID `gorm:"not null;index" json:"pipelineId"`
	Name        string       `gorm:"type:text;not null" json:"name"`
	Color       string       `gorm:"type:text;not null;default:'#6366f1'" json:"color"`
	Position    int          `gorm:"not null;default:0" json:"position"`
	Probability int          `gorm:"not null;default:0" json:"probability"`
	IsWon       bool         `gorm:"not null;default:false" json:"isWon"`
	IsLost      bool         `gorm:"not null;default:false" json:"isLost"`
	CreatedAt   time.Time    `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updatedAt"`
}

func (Stage) TableName() string { return "stages" }

func (s Stage) Terminal() bool { return s.IsWon || s.IsLost }

type StageTemplate struct {
	Name        string
	Color       string
	Probability int
	IsWon       bool
	IsLost      bool
}

// DefaultStageTemplate seeds new pipelines created without explicit stages.
var DefaultStageTemplate = []StageTemplate{
	{Name: "Qualification", Color: "#6366f1", Probability: 10},
	{Name: "Proposal", Color: "#8b5cf6", Probability: 30},
	{Name: "Negotiation", Color: "#f59e0b", Probability: 60},
	{Name: "Won", Color: "#22c55e", Probability: 100, IsWon: true},
	{Name: "Lost", Color: "#ef4444", Probability: 0, IsLost: true},
}
