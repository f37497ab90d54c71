// Package events 在預約狀態變更的交易提交後發出通知
package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

const (
	ReservationCreated  = "reservation.created"
	ReservationReleased = "reservation.released"
	ReservationSettled  = "reservation.settled"
	SettlementFailed    = "settlement.failed"
)

type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	OccurredAt    time.Time `json:"occurred_at"`
	ReservationID int       `json:"reservation_id"`
	RenterID      int       `json:"renter_id"`
	LotID         int       `json:"lot_id"`
	SpotID        int       `json:"spot_id"`
	Amount        float64   `json:"amount,omitempty"`
	ReceiptID     string    `json:"receipt_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

func New(eventType string, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: at,
	}
}

// Publisher 事件發送者。發送失敗不影響已提交的交易
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// LogPublisher 將事件寫入標準日誌，未設定 RabbitMQ 時使用
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	log.Printf("Event %s: %s", event.Type, body)
	return nil
}

func (LogPublisher) Close() error { return nil }
