package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusNew         Status = "NEW"
	StatusContacted   Status = "CONTACTED"
	StatusQualified   Status = "QUALIFIED"
	StatusUnqualified Status = "UNQUALIFIED"
	StatusConverted   Status = "CONVERTED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusQualified, StatusUnqualified, StatusConverted:
		return true
	}
	return false
}

type Temperature string

const (
	TemperatureCold Temperature = "COLD"
	TemperatureWarm Temperature = "WARM"
	TemperatureHot  Temperature = "HOT"
)

func (t Temperature) Valid() bool {
	return t == TemperatureCold || t == TemperatureWarm || t == TemperatureHot
}

// Lead is a contact. Phone and email are unique within an organization.
type Lead struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID  `gorm:"not null;uniqueIndex:ux_leads_org_phone;uniqueIndex:ux_leads_org_email" json:"orgId"`
	Name         string        `gorm:"type:text;not null" json:"name"`
	Phone        string        `gorm:"type:text;not null;uniqueIndex:ux_leads_org_phone" json:"phone"`
	Email        *string       `gorm:"type:text;uniqueIndex:ux_leads_org_email" json:"email,omitempty"`
	Status       Status        `gorm:"type:text;not null;default:'NEW'" json:"status"`
	Temperature  Temperature   `gorm:"type:text;not null;default:'COLD'" json:"temperature"`
	Source       *string       `gorm:"type:text" json:"source,omitempty"`
	Notes        *string       `gorm:"type:text" json:"notes,omitempty"`
	AssignedToID *snowflake.ID `gorm:"index" json:"assignedToId,omitempty"`
	CreatedAt    time.Time     `gorm:"not null" json:"createdAt"`
	UpdatedAt    time.Time     `gorm:"not null" json:"updatedAt"`
}

func (Lead) TableName() string { return "leads" }
