package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/ports"
)

// Config contains the producer parameters.
type Config struct {
	Brokers []string
	Topic   string
	// MaxAttempts defaults to 3.
	MaxAttempts  int
	WriteTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CycleEvent is the message value for one terminal cycle.
type CycleEvent struct {
	CycleID    string                `json:"cycle_id"`
	Status     domain.CycleStatus    `json:"status"`
	Reason     string                `json:"reason,omitempty"`
	Error      string                `json:"error,omitempty"`
	Bucket     string                `json:"bucket"`
	UploadType domain.UploadType     `json:"upload_type"`
	Attempts   []AttemptEvent        `json:"attempts"`
	Record     *domain.PublishRecord `json:"record,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
}

// AttemptEvent is one attempt inside a CycleEvent.
type AttemptEvent struct {
	ItemIDs []string              `json:"item_ids"`
	Outcome domain.AttemptOutcome `json:"outcome"`
	Error   string                `json:"error,omitempty"`
}

// KafkaPublisher streams cycle results to a topic, keyed by bucket.
type KafkaPublisher struct {
	writer      messageWriter
	maxAttempts int
	sleep       func(time.Duration)
}

var _ ports.EventPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher constructs the publisher.
func NewKafkaPublisher(cfg Config) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		Async:        false,
	})
	return &KafkaPublisher{writer: w, maxAttempts: cfg.MaxAttempts, sleep: time.Sleep}, nil
}

// NewEvent flattens a cycle result into its wire form.
func NewEvent(result domain.CycleResult) CycleEvent {
	ev := CycleEvent{
		CycleID:    result.CycleID,
		Status:     result.Status,
		Reason:     result.Reason,
		Bucket:     result.Rotation.Bucket.Name,
		UploadType: result.Rotation.UploadType,
		Record:     result.Record,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Attempts:   make([]AttemptEvent, 0, len(result.Attempts)),
	}
	if result.Err != nil {
		ev.Error = result.Err.Error()
	}
	for _, a := range result.Attempts {
		ae := AttemptEvent{ItemIDs: a.ItemIDs, Outcome: a.Outcome}
		if a.Err != nil {
			ae.Error = a.Err.Error()
		}
		ev.Attempts = append(ev.Attempts, ae)
	}
	return ev
}

// PublishCycle writes the result with a short retry loop.
func (p *KafkaPublisher) PublishCycle(ctx context.Context, result domain.CycleResult) error {
	value, err := json.Marshal(NewEvent(result))
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		msg := kafka.Message{
			Key:   []byte(result.Rotation.Bucket.Name),
			Value: value,
			Time:  time.Now().UTC(),
		}

		ctxAttempt, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := p.writer.WriteMessages(ctxAttempt, msg)
		cancel()
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt < p.maxAttempts {
			p.sleep(backoff)
			if backoff < 2*time.Second {
				backoff *= 2
			}
		}
	}
	return fmt.Errorf("produce failed after %d attempts: %w", p.maxAttempts, lastErr)
}

// Close shuts down the underlying writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
