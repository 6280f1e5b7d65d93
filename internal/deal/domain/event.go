package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EventType string

const (
	EventCreated       EventType = "CREATED"
	EventStageChanged  EventType = "STAGE_CHANGED"
	EventWon           EventType = "WON"
	EventLost          EventType = "LOST"
	EventAssigned      EventType = "ASSIGNED"
	EventProductAdded  EventType = "PRODUCT_ADDED"
	EventActivityAdded EventType = "ACTIVITY_ADDED"
)

// EventPayload is implemented by one struct per event type.
type EventPayload interface {
	EventType() EventType
}

type CreatedPayload struct {
	Title string `json:"title"`
}

func (CreatedPayload) EventType() EventType { return EventCreated }

// TransitionPayload is shared by STAGE_CHANGED, WON and LOST.
type TransitionPayload struct {
	Type        EventType     `json:"-"`
	FromStageID *snowflake.ID `json:"fromStageId,omitempty"`
	ToStageID   snowflake.ID  `json:"toStageId"`
	StageName   string        `json:"stageName"`
	Notes       *string       `json:"notes,omitempty"`
}

func (p TransitionPayload) EventType() EventType {
	if p.Type == "" {
		return EventStageChanged
	}
	return p.Type
}

type AssignedPayload struct {
	AssignedToID *snowflake.ID `json:"assignedToId"`
}

func (AssignedPayload) EventType() EventType { return EventAssigned }

type ProductAddedPayload struct {
	ProductID   snowflake.ID    `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Total       decimal.Decimal `json:"total"`
}

func (ProductAddedPayload) EventType() EventType { return EventProductAdded }

type ActivityAddedPayload struct {
	ActivityID snowflake.ID `json:"activityId"`
	Kind       string       `json:"kind"`
	Title      string       `json:"title"`
}

func (ActivityAddedPayload) EventType() EventType { return EventActivityAdded }

// DealEvent is append-only. Payload is stored as JSON in the payload column and decoded
// by Type when read.
type DealEvent struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	DealID    snowflake.ID   `gorm:"not null;index" json:"dealId"`
	Type      EventType      `gorm:"type:text;not null" json:"type"`
	Raw       datatypes.JSON `gorm:"column:payload;type:json;not null" json:"-"`
	Payload   EventPayload   `gorm:"-" json:"payload"`
	MemberID  *snowflake.ID  `json:"memberId,omitempty"`
	CreatedAt time.Time      `gorm:"not null;index" json:"createdAt"`
}

func (DealEvent) TableName() string { return "deal_events" }

func NewEvent(id, dealID snowflake.ID, payload EventPayload, memberID *snowflake.ID, at time.Time) *DealEvent {
	return &DealEvent{
		ID:        id,
		DealID:    dealID,
		Type:      payload.EventType(),
		Payload:   payload,
		MemberID:  memberID,
		CreatedAt: at,
	}
}

func (e *DealEvent) BeforeCreate(*gorm.DB) error {
	if e.Payload == nil {
		e.Raw = datatypes.JSON("{}")
		return nil
	}
	if e.Type == "" {
		e.Type = e.Payload.EventType()
	}
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", e.Type, err)
	}
	e.Raw = raw
	return nil
}

func (e *DealEvent) AfterFind(*gorm.DB) error {
	payload, err := DecodePayload(e.Type, e.Raw)
	if err != nil {
		return err
	}
	e.Payload = payload
	return nil
}

// DecodePayload returns the typed payload for an event type.
func DecodePayload(eventType EventType, raw []byte) (EventPayload, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	var (
		payload EventPayload
		err     error
	)
	switch eventType {
	case EventCreated:
		var p CreatedPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventStageChanged, EventWon, EventLost:
		var p TransitionPayload
		err = json.Unmarshal(raw, &p)
		p.Type = eventType
		payload = p
	case EventAssigned:
		var p AssignedPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventProductAdded:
		var p ProductAddedPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventActivityAdded:
		var p ActivityAddedPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	default:
		return nil, fmt.Errorf("unknown deal event type %q", eventType)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	return payload, nil
}
