// Package event persists organization events to a transactional outbox.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	OrganizationCreatedTopic = "organization.created"
	MembershipAcceptedTopic  = "membership.accepted"
	MembershipRemovedTopic   = "membership.removed"
)

type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

type outboxPublisher struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func NewOutboxPublisher(db *gorm.DB, genID *snowflake.Node) EventPublisher {
	return &outboxPublisher{
		db:    db,
		genID: genID,
	}
}

type orgScopedPayload struct {
	OrganizationID string `json:"organization_id"`
}

// OutboxEvent is a row in the transactional outbox. A relay process marks
// rows published after delivery.
type OutboxEvent struct {
	ID        snowflake.ID   `gorm:"primaryKey"`
	OrgID     snowflake.ID   `gorm:"column:org_id;not null;index"`
	EventType string         `gorm:"column:event_type;type:text;not null"`
	Payload   datatypes.JSON `gorm:"column:payload;not null"`
	Published bool           `gorm:"column:published;not null;default:false;index"`
	CreatedAt time.Time      `gorm:"column:created_at;not null"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

func (p *outboxPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	var parsed orgScopedPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return err
	}

	orgID := strings.TrimSpace(parsed.OrganizationID)
	if orgID == "" {
		return errors.New("missing organization_id")
	}

	parsedID, err := snowflake.ParseString(orgID)
	if err != nil {
		return err
	}

	row := OutboxEvent{
		ID:        p.genID.Generate(),
		OrgID:     parsedID,
		EventType: topic,
		Payload:   datatypes.JSON(payload),
		Published: false,
		CreatedAt: time.Now().UTC(),
	}
	return p.db.WithContext(ctx).Create(&row).Error
}
