// Package events publishes session security events over watermill so other
// instances and audit consumers can react to revocations.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// TopicRevoked is the topic carrying RevokedEvent messages.
const TopicRevoked = "session.revoked"

// RevokedEvent is emitted whenever sessions are revoked: single logout,
// logout everywhere, or a reuse-detection cascade. FamilyID is empty for
// subject-wide revocations.
type RevokedEvent struct {
	SubjectID  string    `json:"subject_id"`
	FamilyID   string    `json:"family_id,omitempty"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// WatermillPublisher publishes session events through any watermill publisher
// (Redis Streams in production, GoChannel in tests).
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher wraps the given watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishRevoked emits a RevokedEvent on TopicRevoked.
func (p *WatermillPublisher) PublishRevoked(ctx context.Context, subjectID, familyID, reason string) error {
	event := RevokedEvent{
		SubjectID:  subjectID,
		FamilyID:   familyID,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling revoked event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.publisher.Publish(TopicRevoked, msg); err != nil {
		return fmt.Errorf("publishing revoked event: %w", err)
	}
	return nil
}
