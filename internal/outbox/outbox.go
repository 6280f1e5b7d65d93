// Package outbox records integration events for an external relay.
package outbox

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/dealflow/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TopicOrganizationCreated = "organization.created"
	TopicInviteCreated       = "invite.created"
	TopicDealWon             = "deal.won"
)

type Event struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	EventKey  string         `gorm:"type:text;not null;uniqueIndex:ux_outbox_events_key" json:"eventKey"`
	OrgID     snowflake.ID   `gorm:"not null;index" json:"orgId"`
	Topic     string         `gorm:"type:text;not null" json:"topic"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	Published bool           `gorm:"not null;default:false" json:"published"`
	CreatedAt time.Time      `gorm:"not null" json:"createdAt"`
}

func (Event) TableName() string { return "outbox_events" }

type Publisher interface {
	Publish(ctx context.Context, orgID snowflake.ID, topic string, payload any) error
}

type Params struct {
	fx.In

	DB    *gorm.DB
	GenID *snowflake.Node
	Clock clock.Clock
}

type outboxPublisher struct {
	db      *gorm.DB
	genID   *snowflake.Node
	clock   clock.Clock

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewPublisher(p Params) Publisher {
	return &outboxPublisher{
		db:      p.DB,
		genID:   p.GenID,
		clock:   p.Clock,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (p *outboxPublisher) Publish(ctx context.Context, orgID snowflake.ID, topic string, payload any) error {
	if orgID == 0 {
		return errors.New("missing organization id")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	now := p.clock.Now()
	p.mu.Lock()
	key, err := ulid.New(ulid.Timestamp(now), p.entropy)
	p.mu.Unlock()
	if err != nil {
		return err
	}

	return p.db.WithContext(ctx).Exec(
		`INSERT INTO outbox_events (id, event_key, org_id, topic, payload, published, created_at)
		 VALUES (?, ?, ?, ?, ?, false, ?)`,
		p.genID.Generate(),
		key.String(),
		orgID,
		topic,
		datatypes.JSON(data),
		now,
	).Error
}

// PublishBestEffort logs instead of failing the caller.
func PublishBestEffort(ctx context.Context, pub Publisher, orgID snowflake.ID, topic string, payload any) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, orgID, topic, payload); err != nil {
		zap.L().Warn("failed to publish outbox event",
			zap.String("topic", topic),
			zap.String("org_id", orgID.String()),
			zap.Error(err),
		)
	}
}

var Module = fx.Module("outbox",
	fx.Provide(NewPublisher),
)
