package ipfix

import (
	"time"

	"github.com/pkg/errors"

	"firestige.xyz/hsprobe/internal/core"
	"firestige.xyz/hsprobe/internal/log"
	"firestige.xyz/hsprobe/internal/record"
	"firestige.xyz/hsprobe/internal/template"
)

const (
	defaultMaxMessageSize = 1400
	defaultDialTimeout    = 5 * time.Second
)

// Config configures one exporter.
type Config struct {
	Transport       string // tcp | udp | kafka
	Collector       string // host:port for tcp and udp
	Kafka           KafkaConfig
	MaxMessageSize  int
	TemplateRefresh time.Duration // udp and kafka only; 0 disables
	DialTimeout     time.Duration
}

// KafkaConfig configures the kafka transport.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	Compression  string
}

// Stats are the exporter's lifetime counters.
type Stats struct {
	Messages uint64 // messages sent
	Records  uint64 // data records sent
	Errors   uint64 // failed connects and sends
	Dropped  uint64 // data records lost with a failed message
	// OverflowFlushErrors counts failed flushes triggered by a full message.
	OverflowFlushErrors uint64
}

// Option customises an Exporter.
type Option func(*Exporter)

// WithTransport replaces the transport selected by Config.Transport.
func WithTransport(t Transport) Option {
	return func(e *Exporter) { e.tr = t }
}

// WithClock sets the clock used for export times and template refresh.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// Exporter buffers data records of registered templates into IPFIX messages and sends
// them on Flush, or earlier when the next record would overflow the message size.
// An Exporter is not safe for concurrent use.
type Exporter struct {
	cfg  Config
	odid uint32
	tr   Transport
	now  func() time.Time

	templates map[int]*template.Descriptor
	order     []*template.Descriptor

	pending        []byte
	setID          uint16
	setStart       int
	pendingRecords uint32

	sequence      uint32
	generation    uint64
	templatesDue  bool
	lastTemplates time.Time

	stats        Stats
	onFlushError func(error)
}

// New creates an exporter for observation domain odid.
func New(cfg Config, odid uint32, opts ...Option) (*Exporter, error) {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}

	e := &Exporter{
		cfg:       cfg,
		odid:      odid,
		now:       time.Now,
		templates: make(map[int]*template.Descriptor),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.tr == nil {
		tr, err := newTransport(cfg, odid)
		if err != nil {
			return nil, err
		}
		e.tr = tr
	}
	return e, nil
}

// ObservationDomainID returns the domain the exporter writes.
func (e *Exporter) ObservationDomainID() uint32 { return e.odid }

// Sequence returns the number of data records sent so far, modulo 2^32.
func (e *Exporter) Sequence() uint32 { return e.sequence }

// Stats returns the lifetime counters.
func (e *Exporter) Stats() Stats { return e.stats }

// SetFlushErrorHandler registers fn to be called, on the caller's goroutine, when a
// flush triggered by Export fails.
func (e *Exporter) SetFlushErrorHandler(fn func(error)) { e.onFlushError = fn }

// MakeTemplate registers desc. Templates are sent with the next message.
func (e *Exporter) MakeTemplate(desc *template.Descriptor) error {
	if desc == nil || len(desc.Fields) == 0 {
		return errors.New("ipfix: empty template")
	}
	if _, ok := e.templates[desc.ID]; ok {
		return nil
	}
	e.templates[desc.ID] = desc
	e.order = append(e.order, desc)
	e.templatesDue = true
	return nil
}

// Export buffers one data record of template id. When the record does not fit the
// current message, the buffered records are flushed first. A failure of that flush
// drops the earlier records only: it is counted in Stats and reported to the flush
// error handler, and the record is still accepted.
func (e *Exporter) Export(id int, values [][]byte) error {
	desc, ok := e.templates[id]
	if !ok {
		return errors.Wrapf(template.ErrTemplateNotFound, "ipfix: template %d not registered", id)
	}
	if err := record.Validate(desc, values); err != nil {
		return errors.Wrap(err, "ipfix: invalid record")
	}

	n := recordLen(desc, values)
	if HeaderLen+setHeaderLen+n > e.cfg.MaxMessageSize {
		return errors.Wrapf(core.ErrExportFailure, "ipfix: record of %d bytes exceeds message size %d", n, e.cfg.MaxMessageSize)
	}

	if e.size()+e.growth(desc, n) > e.cfg.MaxMessageSize && e.pendingRecords > 0 {
		if err := e.Flush(); err != nil {
			e.stats.OverflowFlushErrors++
			log.GetLogger().WithError(err).WithField("odid", e.odid).Warn("overflow flush failed")
			if e.onFlushError != nil {
				e.onFlushError(err)
			}
		}
	}

	wire := desc.WireID()
	if e.setID != wire {
		e.closeSet()
		e.setStart = len(e.pending)
		e.setID = wire
		e.pending = appendSetHeader(e.pending, wire)
	}
	e.pending = appendDataRecord(e.pending, desc, values)
	e.pendingRecords++
	return nil
}

// size is the length the next message would have.
func (e *Exporter) size() int {
	n := HeaderLen + len(e.pending)
	if e.templatesDue {
		n += len(templateSet(e.order))
	}
	return n
}

func (e *Exporter) growth(desc *template.Descriptor, n int) int {
	if e.setID != desc.WireID() {
		return n + setHeaderLen
	}
	return n
}

func (e *Exporter) closeSet() {
	if e.setID != 0 {
		finishSet(e.pending, e.setStart)
		e.setID = 0
	}
}

func (e *Exporter) resetPending() {
	e.pending = e.pending[:0]
	e.setID = 0
	e.setStart = 0
	e.pendingRecords = 0
}

// Flush sends the buffered records, preceded by the templates when the collector has
// not seen them on this connection or a refresh is due. A failed message is dropped.
func (e *Exporter) Flush() error {
	now := e.now()

	if err := e.tr.Connect(); err != nil {
		e.stats.Errors++
		e.stats.Dropped += uint64(e.pendingRecords)
		e.resetPending()
		return errors.Wrapf(core.ErrExportFailure, "ipfix: connect %s: %v", e.tr, err)
	}
	if g := e.tr.Generation(); g != e.generation {
		e.generation = g
		e.templatesDue = true
	}
	if e.tr.Periodic() && e.cfg.TemplateRefresh > 0 && now.Sub(e.lastTemplates) >= e.cfg.TemplateRefresh {
		e.templatesDue = true
	}
	if e.pendingRecords == 0 && (!e.templatesDue || len(e.order) == 0) {
		return nil
	}

	e.closeSet()
	msg := appendHeader(make([]byte, 0, e.cfg.MaxMessageSize), uint32(now.Unix()), e.sequence, e.odid)
	if e.templatesDue {
		msg = append(msg, templateSet(e.order)...)
	}
	msg = append(msg, e.pending...)
	records := e.pendingRecords
	e.resetPending()

	msg, err := finishMessage(msg)
	if err == nil {
		err = e.tr.Send(msg)
	}
	if err != nil {
		e.stats.Errors++
		e.stats.Dropped += uint64(records)
		return errors.Wrapf(core.ErrExportFailure, "ipfix: send to %s: %v", e.tr, err)
	}

	e.sequence += records
	e.templatesDue = false
	e.lastTemplates = now
	e.stats.Messages++
	e.stats.Records += uint64(records)

	log.GetLogger().WithFields(map[string]interface{}{
		"odid":    e.odid,
		"records": records,
		"bytes":   len(msg),
	}).Trace("ipfix message sent")
	return nil
}

// Close flushes the buffered records and closes the transport.
func (e *Exporter) Close() error {
	err := e.Flush()
	if cerr := e.tr.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "ipfix: close transport")
	}
	return err
}
