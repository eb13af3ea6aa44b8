package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"firestige.xyz/hsprobe/internal/config"
	"firestige.xyz/hsprobe/internal/log"
)

// KafkaCommand is the wire format for commands received via Kafka.
//
// Example JSON:
//
//	{
//	  "version":    "v1",
//	  "target":     "probe-01",
//	  "command":    "console_exec",
//	  "timestamp":  "2024-01-15T10:30:00Z",
//	  "request_id": "req-abc-123",
//	  "payload":    {"message": "mid: 12 -r 5"}
//	}
type KafkaCommand struct {
	Version   string          `json:"version"`    // Protocol version ("v1")
	Target    string          `json:"target"`     // Probe name or "*" for broadcast
	Command   string          `json:"command"`    // Method name (e.g., "console_exec")
	Timestamp time.Time       `json:"timestamp"`  // When the command was issued
	RequestID string          `json:"request_id"` // Unique request ID for tracing
	Payload   json.RawMessage `json:"payload"`    // Command-specific parameters
}

// errSkipped marks messages that are valid but not meant for this probe.
var errSkipped = errors.New("command skipped")

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaCommandConsumer consumes commands from Kafka and dispatches them to the handler.
// Replies to console commands leave the probe as SYNC records, so nothing is produced back.
type KafkaCommandConsumer struct {
	cfg     config.KafkaCommandConfig
	target  string // local probe name for target matching
	reader  messageReader
	handler *CommandHandler
	now     func() time.Time
}

// NewKafkaCommandConsumer creates a consumer for the configured command topic.
func NewKafkaCommandConsumer(cfg config.KafkaCommandConfig, target string, handler *CommandHandler) (*KafkaCommandConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("group_id is required")
	}
	if cfg.CommandTTL <= 0 {
		cfg.CommandTTL = 5 * time.Minute
	}

	var startOffset int64
	switch cfg.AutoOffsetReset {
	case "earliest":
		startOffset = kafka.FirstOffset
	case "", "latest":
		startOffset = kafka.LastOffset
	default:
		return nil, fmt.Errorf("invalid auto_offset_reset %q", cfg.AutoOffsetReset)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		StartOffset:    startOffset,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		CommitInterval: time.Second,
		MaxWait:        time.Second,
	})

	return &KafkaCommandConsumer{
		cfg:     cfg,
		target:  target,
		reader:  reader,
		handler: handler,
		now:     time.Now,
	}, nil
}

// Start consumes commands until ctx is cancelled.
func (c *KafkaCommandConsumer) Start(ctx context.Context) error {
	log.GetLogger().WithFields(map[string]interface{}{
		"brokers":  c.cfg.Brokers,
		"topic":    c.cfg.Topic,
		"group_id": c.cfg.GroupID,
		"target":   c.target,
		"ttl":      c.cfg.CommandTTL,
	}).Info("kafka command consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.GetLogger().WithField("reason", ctx.Err()).Info("kafka command consumer stopped")
				return ctx.Err()
			}
			log.GetLogger().WithError(err).Error("failed to fetch kafka message")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
				continue
			}
		}

		if err := c.processMessage(ctx, msg); err != nil && !errors.Is(err, errSkipped) {
			log.GetLogger().WithError(err).WithFields(map[string]interface{}{
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Error("failed to process command")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.GetLogger().WithError(err).Error("failed to commit message")
		}
	}
}

func (c *KafkaCommandConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var kCmd KafkaCommand
	if err := json.Unmarshal(msg.Value, &kCmd); err != nil {
		return fmt.Errorf("failed to parse kafka command: %w", err)
	}

	if kCmd.Target != "*" && kCmd.Target != "" && kCmd.Target != c.target {
		log.GetLogger().WithFields(map[string]interface{}{
			"target":     kCmd.Target,
			"request_id": kCmd.RequestID,
		}).Debug("skipping command for another probe")
		return errSkipped
	}

	if !kCmd.Timestamp.IsZero() && c.now().Sub(kCmd.Timestamp) > c.cfg.CommandTTL {
		log.GetLogger().WithFields(map[string]interface{}{
			"command":    kCmd.Command,
			"request_id": kCmd.RequestID,
			"timestamp":  kCmd.Timestamp,
		}).Warn("skipping stale command")
		return errSkipped
	}

	// Shutdown is only accepted locally.
	if kCmd.Command == MethodDaemonShutdown {
		return fmt.Errorf("method %s not allowed over kafka", kCmd.Command)
	}

	resp := c.handler.Handle(ctx, Command{
		Method: kCmd.Command,
		Params: kCmd.Payload,
		ID:     kCmd.RequestID,
	})
	if resp.Error != nil {
		return fmt.Errorf("command %s failed: %s", kCmd.Command, resp.Error.Message)
	}
	return nil
}

// Stop closes the reader. Safe to call more than once.
func (c *KafkaCommandConsumer) Stop() error {
	if c.reader == nil {
		return nil
	}
	reader := c.reader
	c.reader = nil
	log.GetLogger().Info("closing kafka command consumer")
	if err := reader.Close(); err != nil {
		return fmt.Errorf("failed to close kafka reader: %w", err)
	}
	return nil
}
