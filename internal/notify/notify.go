// Package notify publishes run completion events to Kafka.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

const EventCompleted = "processing.completed"

type CategoryCounts struct {
	Category   string `json:"category"`
	In         int    `json:"in"`
	Out        int    `json:"out"`
	Dropped    int    `json:"dropped"`
	DurationMS int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
}

type Event struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	RunID      string           `json:"runId"`
	Success    bool             `json:"success"`
	Categories []CategoryCounts `json:"categories"`
	TS         time.Time        `json:"ts"`
}

// NewCompleted builds a completion event; success is derived from the categories.
func NewCompleted(runID string, cats []CategoryCounts, now time.Time) Event {
	ok := true
	for _, c := range cats {
		if c.Error != "" {
			ok = false
		}
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       EventCompleted,
		RunID:      runID,
		Success:    ok,
		Categories: cats,
		TS:         now.UTC(),
	}
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
	Close() error
}

type Noop struct{}

func (Noop) Notify(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// Publisher sends each event synchronously so the process exits only after
// the broker acknowledged it.
type Publisher struct {
	topic string
	prod  sarama.SyncProducer
}

func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("notify: create sync producer: %w", err)
	}
	return NewPublisherWith(prod, topic), nil
}

func NewPublisherWith(prod sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{topic: topic, prod: prod}
}

func (p *Publisher) Notify(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.RunID),
		Value: sarama.ByteEncoder(b),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(ev.Type)},
		},
	}
	if _, _, err := p.prod.SendMessage(msg); err != nil {
		return fmt.Errorf("notify: send %s: %w", ev.Type, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("notify: close producer: %w", err)
	}
	return nil
}
