package ipfix

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
)

// Transport carries encoded messages to a collector.
type Transport interface {
	// Connect establishes the connection when there is none.
	Connect() error
	// Generation changes whenever a new connection is established. The exporter
	// resends its templates on every new generation.
	Generation() uint64
	Send(msg []byte) error
	// Periodic reports whether templates must be refreshed on a timer because the
	// transport gives no delivery guarantee.
	Periodic() bool
	Close() error
	String() string
}

func newTransport(cfg Config, odid uint32) (Transport, error) {
	switch cfg.Transport {
	case "tcp", "udp":
		if cfg.Collector == "" {
			return nil, errors.Errorf("ipfix: collector address required for %s", cfg.Transport)
		}
		return &connTransport{network: cfg.Transport, addr: cfg.Collector, timeout: cfg.DialTimeout}, nil
	case "kafka":
		return newKafkaTransport(cfg.Kafka, odid, cfg.DialTimeout)
	default:
		return nil, errors.Errorf("ipfix: unsupported transport %q", cfg.Transport)
	}
}

// ─── TCP / UDP ─────────────────────────────────────────────────────────────

// connTransport writes each message to a stream or datagram socket. A failed write
// closes the socket; the next Connect dials again.
type connTransport struct {
	network string
	addr    string
	timeout time.Duration

	conn net.Conn
	gen  uint64
}

func (t *connTransport) Connect() error {
	if t.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout(t.network, t.addr, t.timeout)
	if err != nil {
		return err
	}
	t.conn = conn
	t.gen++
	return nil
}

func (t *connTransport) Generation() uint64 { return t.gen }

func (t *connTransport) Send(msg []byte) error {
	if err := t.Connect(); err != nil {
		return err
	}
	if t.timeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.timeout))
	}
	if _, err := t.conn.Write(msg); err != nil {
		_ = t.conn.Close()
		t.conn = nil
		return err
	}
	return nil
}

func (t *connTransport) Periodic() bool { return t.network == "udp" }

func (t *connTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *connTransport) String() string { return t.network + "://" + t.addr }

// ─── Kafka ─────────────────────────────────────────────────────────────────

// kafkaTransport publishes every message as one Kafka message keyed by the
// observation domain id, so a domain's messages stay ordered in one partition.
type kafkaTransport struct {
	writer  *kafka.Writer
	key     []byte
	timeout time.Duration
	topic   string
}

func newKafkaTransport(cfg KafkaConfig, odid uint32, timeout time.Duration) (*kafkaTransport, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("ipfix: kafka transport needs brokers and a topic")
	}

	writerConfig := kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    1,
		BatchTimeout: cfg.BatchTimeout,
		Async:        false,
	}
	switch cfg.Compression {
	case "none", "":
	case "gzip":
		writerConfig.CompressionCodec = compress.Gzip.Codec()
	case "snappy":
		writerConfig.CompressionCodec = compress.Snappy.Codec()
	case "lz4":
		writerConfig.CompressionCodec = compress.Lz4.Codec()
	default:
		return nil, errors.Errorf("ipfix: invalid kafka compression %q", cfg.Compression)
	}

	return &kafkaTransport{
		writer:  kafka.NewWriter(writerConfig),
		key:     binary.BigEndian.AppendUint32(nil, odid),
		timeout: timeout,
		topic:   cfg.Topic,
	}, nil
}

func (t *kafkaTransport) Connect() error { return nil }

func (t *kafkaTransport) Generation() uint64 { return 1 }

func (t *kafkaTransport) Send(msg []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	value := make([]byte, len(msg))
	copy(value, msg)
	return t.writer.WriteMessages(ctx, kafka.Message{
		Key:   t.key,
		Value: value,
		Time:  time.Now(),
	})
}

func (t *kafkaTransport) Periodic() bool { return true }

func (t *kafkaTransport) Close() error { return t.writer.Close() }

func (t *kafkaTransport) String() string { return fmt.Sprintf("kafka://%s", t.topic) }
