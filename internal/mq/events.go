package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names an account lifecycle change.
type EventType string

const (
	EventRegistered      EventType = "account.registered"
	EventPasswordChanged EventType = "account.password_changed"
	EventUsernameChanged EventType = "account.username_changed"
	EventTokensRevoked   EventType = "account.tokens_revoked"
	EventDeleted         EventType = "account.deleted"
)

// AccountEvent is published after an account mutation has been committed.
// TokenVersion lets consumers drop any cached session older than it.
type AccountEvent struct {
	Type         EventType `json:"type"`
	UserID       uuid.UUID `json:"user_id"`
	TokenVersion uint64    `json:"token_version"`
	OccurredAt   int64     `json:"occurred_at"`
}

// NewAccountEvent stamps an event with the current time.
func NewAccountEvent(eventType EventType, userID uuid.UUID, tokenVersion uint64) AccountEvent {
	return AccountEvent{
		Type:         eventType,
		UserID:       userID,
		TokenVersion: tokenVersion,
		OccurredAt:   time.Now().Unix(),
	}
}

// AccountEvents publishes AccountEvent values as JSON on one channel.
type AccountEvents struct {
	mq      *MQ
	channel string
}

func NewAccountEvents(m *MQ, channel string) *AccountEvents {
	return &AccountEvents{mq: m, channel: channel}
}

func (p *AccountEvents) PublishAccountEvent(ctx context.Context, ev AccountEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode account event: %w", err)
	}
	attrs := map[string]string{
		"type":    string(ev.Type),
		"user_id": ev.UserID.String(),
	}
	if _, err := p.mq.Publish(ctx, p.channel, data, attrs); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// DecodeAccountEvent parses a message produced by PublishAccountEvent.
func DecodeAccountEvent(msg Message) (AccountEvent, error) {
	var ev AccountEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		return AccountEvent{}, fmt.Errorf("decode account event: %w", err)
	}
	return ev, nil
}
