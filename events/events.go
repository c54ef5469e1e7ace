// Package events publishes loan lifecycle notifications to a message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"toolhub/logging"
)

// LoanTransitionedType is the "type" attribute on every transition message.
const LoanTransitionedType = "loan.transitioned"

// LoanTransitioned is emitted after a status change has been committed.
type LoanTransitioned struct {
	LoanID     string    `json:"loanId"`
	UserID     string    `json:"userId"`
	ItemKind   string    `json:"itemKind"`
	ItemID     string    `json:"itemId"`
	FromStatus string    `json:"fromStatus"`
	ToStatus   string    `json:"toStatus"`
	ActorID    string    `json:"actorId,omitempty"`
	ActorRole  string    `json:"actorRole"`
	FineAmount string    `json:"fineAmount,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher is the broker-agnostic publishing side.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// Notifier turns domain events into broker messages on one channel.
type Notifier struct {
	pub     Publisher
	channel string
}

func NewNotifier(pub Publisher, channel string) *Notifier {
	return &Notifier{pub: pub, channel: channel}
}

func (n *Notifier) LoanTransitioned(ctx context.Context, evt LoanTransitioned) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s: %w", LoanTransitionedType, err)
	}
	attrs := map[string]string{
		"type":    LoanTransitionedType,
		"loan_id": evt.LoanID,
		"to":      evt.ToStatus,
	}
	if _, err := n.pub.Publish(ctx, n.channel, data, attrs); err != nil {
		return fmt.Errorf("publish %s: %w", LoanTransitionedType, err)
	}
	return nil
}

// LogPublisher writes messages to the log instead of a broker. Used when no
// broker is configured.
type LogPublisher struct {
	log logging.Logger
}

func NewLogPublisher(log logging.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	id := newMessageID()
	p.log.Info(ctx, "event", "channel", channel, "message_id", id, "type", attrs["type"], "body", string(data))
	return id, nil
}

func (p *LogPublisher) Close() error { return nil }
