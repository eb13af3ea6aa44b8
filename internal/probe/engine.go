package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/hsprobe/internal/core"
	"firestige.xyz/hsprobe/internal/log"
	"firestige.xyz/hsprobe/internal/metrics"
	"firestige.xyz/hsprobe/internal/source"
	"firestige.xyz/hsprobe/internal/template"
)

// DispatchBatch is the most packets one readiness notification dispatches.
const DispatchBatch = 10

// readErrorBackoff paces a reader whose source keeps failing.
const readErrorBackoff = 100 * time.Millisecond

// ErrNotRunning is returned by control requests when the event loop is not running.
var ErrNotRunning = errors.New("probe: event loop not running")

// Periodic tasks of the event loop.
const (
	taskPacketID = iota
	taskInterfaceStats
	taskProbeStats
	taskLocation
	numTasks
)

var taskNames = [numTasks]string{"packet_id", "interface_stats", "probe_stats", "location"}

// Option customises an Engine.
type Option func(*Engine)

// WithStatsCollector sets the source of probe statistics.
func WithStatsCollector(c StatsCollector) Option {
	return func(e *Engine) { e.stats = c }
}

// WithClock sets the clock used for export times.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine owns the devices and runs the event loop. All device state and the settings
// are touched only by the loop goroutine; readers hand packets over through the
// device queues.
type Engine struct {
	settings *Settings
	devices  []*Device
	stats    StatsCollector
	now      func() time.Time

	notify    chan *Device // readiness, at most one pending per device
	exhausted chan *Device // reader ended
	console   chan consoleCall
	statusReq chan chan Status

	tickers [numTasks]ticker

	// set by console handlers, applied by the loop after the handler returns
	intervalsDirty bool

	readers sync.WaitGroup
	running atomic.Bool
	done    chan struct{}
}

// NewEngine builds the devices and registers every template on their exporters.
func NewEngine(settings *Settings, specs []DeviceSpec, opts ...Option) (*Engine, error) {
	if settings == nil {
		return nil, fmt.Errorf("probe: nil settings: %w", core.ErrConfigInvalid)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("probe: no devices: %w", core.ErrConfigInvalid)
	}

	e := &Engine{
		settings:  settings,
		now:       time.Now,
		notify:    make(chan *Device, len(specs)),
		exhausted: make(chan *Device, len(specs)),
		console:   make(chan consoleCall),
		statusReq: make(chan chan Status),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	for i, spec := range specs {
		if spec.Source == nil || spec.Exporter == nil {
			return nil, fmt.Errorf("probe: device %q lacks source or exporter: %w", spec.Name, core.ErrConfigInvalid)
		}
		for _, desc := range template.All() {
			if err := spec.Exporter.MakeTemplate(desc); err != nil {
				return nil, fmt.Errorf("device %s: register template %s: %w", spec.Name, desc.Name(), err)
			}
		}
		d := newDevice(i, spec, settings.SnapLength)
		if n, ok := spec.Exporter.(flushErrorNotifier); ok {
			n.SetFlushErrorHandler(func(err error) { e.flushFailed(d, flushOverflow, err) })
		}
		e.devices = append(e.devices, d)
	}

	if errs := e.applyFilter(); len(errs) > 0 {
		return nil, fmt.Errorf("probe: filter %q: %w", settings.Filter, errors.Join(errs...))
	}
	metrics.SamplingRatio.Set(settings.Range.Ratio())
	return e, nil
}

// Devices returns the devices in configuration order.
func (e *Engine) Devices() []*Device { return e.devices }

// Run starts a reader per device and runs the event loop until ctx is cancelled or
// every source has ended. On return every device has been flushed once and all
// exporters and sources are closed.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("probe: engine already started")
	}

	readCtx, cancel := context.WithCancel(ctx)
	for _, d := range e.devices {
		e.readers.Add(1)
		go e.read(readCtx, d)
	}
	e.resetTickers()

	log.GetLogger().WithFields(map[string]interface{}{
		"devices":   len(e.devices),
		"selection": e.settings.Selection.String(),
		"hash":      e.settings.HashName,
		"range":     e.settings.Range.String(),
		"template":  e.settings.Template.Name(),
	}).Info("probe started")

	e.loop(ctx)

	cancel()
	e.readers.Wait()
	e.stopTickers()
	e.shutdown()
	close(e.done)
	return nil
}

// Close releases the devices of an engine that was never run. It is a no-op once
// Run has started.
func (e *Engine) Close() {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	e.shutdown()
	close(e.done)
}

// Done is closed once Run has returned.
func (e *Engine) Done() <-chan struct{} { return e.done }

func (e *Engine) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.GetLogger().WithField("reason", ctx.Err()).Info("probe stopping")
			return

		case d := <-e.notify:
			e.dispatch(d)

		case d := <-e.exhausted:
			e.drain(d)
			if e.allExhausted() {
				log.GetLogger().Info("all sources exhausted, probe stopping")
				return
			}

		case <-e.tickers[taskPacketID].C():
			e.flushAll(flushTimer)
		case <-e.tickers[taskInterfaceStats].C():
			e.exportInterfaceStats()
		case <-e.tickers[taskProbeStats].C():
			e.exportProbeStats()
		case <-e.tickers[taskLocation].C():
			e.exportLocation()

		case call := <-e.console:
			call.reply <- e.execConsole(call.req)
		case reply := <-e.statusReq:
			reply <- e.status()
		}
	}
}

// dispatch processes up to DispatchBatch queued packets of d and re-arms the
// notification when more remain.
func (e *Engine) dispatch(d *Device) {
	d.armed.Store(false)
	n := 0
	// The loop is the only consumer, so a non-empty queue never blocks the receive.
	for n < DispatchBatch && len(d.queue) > 0 {
		e.processPacket(d, <-d.queue)
		n++
	}
	if n > 0 {
		metrics.DispatchBatchSize.Observe(float64(n))
	}
	if len(d.queue) > 0 && d.armed.CompareAndSwap(false, true) {
		e.notify <- d
	}
}

// drain processes what an ended reader left queued.
func (e *Engine) drain(d *Device) {
	d.eof = true
	for len(d.queue) > 0 {
		e.processPacket(d, <-d.queue)
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"device": d.Name,
		"total":  d.Total,
	}).Info("source ended")
}

func (e *Engine) allExhausted() bool {
	for _, d := range e.devices {
		if !d.eof {
			return false
		}
	}
	return true
}

// read is the reader goroutine of d. It blocks only on the capture read and the
// queue and never touches device state.
func (e *Engine) read(ctx context.Context, d *Device) {
	defer e.readers.Done()
	for {
		data, ci, err := d.src.ReadPacketData()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			switch {
			case errors.Is(err, source.ErrTimeout):
				continue
			case errors.Is(err, io.EOF), errors.Is(err, core.ErrSourceClosed):
				e.exhausted <- d
				return
			}
			log.GetLogger().WithError(err).WithField("device", d.Name).Warn("capture read failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(readErrorBackoff):
			}
			continue
		}

		raw := core.RawPacket{
			Data:       data,
			Timestamp:  ci.Timestamp,
			CaptureLen: uint32(ci.CaptureLength),
			OrigLen:    uint32(ci.Length),
		}
		select {
		case d.queue <- raw:
		case <-ctx.Done():
			return
		}
		if d.armed.CompareAndSwap(false, true) {
			e.notify <- d
		}
	}
}

// shutdown flushes every device once and releases exporters and sources.
func (e *Engine) shutdown() {
	for _, d := range e.devices {
		if n := len(d.queue); n > 0 {
			d.Dropped += uint64(n)
			metrics.PacketsTotal.WithLabelValues(d.Name, metrics.ResultDropped).Add(float64(n))
		}
		e.flush(d, flushShutdown)
		if err := d.exp.Close(); err != nil {
			log.GetLogger().WithError(err).WithField("device", d.Name).Warn("exporter close failed")
		}
		if err := d.src.Close(); err != nil {
			log.GetLogger().WithError(err).WithField("device", d.Name).Warn("source close failed")
		}
		log.GetLogger().WithFields(map[string]interface{}{
			"device":   d.Name,
			"total":    d.Total,
			"sampled":  d.Sampled,
			"exported": d.Exported,
			"errors":   d.ExportErrors,
		}).Info("device closed")
	}
}

// applyFilter installs the current filter on every source. Sources that cannot
// filter are skipped.
func (e *Engine) applyFilter() []error {
	var errs []error
	for _, d := range e.devices {
		err := d.src.SetFilter(e.settings.Filter)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrFilterUnsupported):
			if e.settings.Filter != "" {
				log.GetLogger().WithField("device", d.Name).Info("source does not support filters")
			}
		default:
			errs = append(errs, fmt.Errorf("%s: %w", d.Name, err))
			log.GetLogger().WithError(err).WithFields(map[string]interface{}{
				"device": d.Name,
				"filter": e.settings.Filter,
			}).Warn("filter not applied")
		}
	}
	return errs
}

// ─── Timers ───

type ticker struct {
	t      *time.Ticker
	period time.Duration
}

// C returns the tick channel, nil when disabled.
func (t *ticker) C() <-chan time.Time {
	if t.t == nil {
		return nil
	}
	return t.t.C
}

func (t *ticker) reset(period time.Duration) {
	if t.t != nil && t.period == period {
		return
	}
	t.stop()
	t.period = period
	if period > 0 {
		t.t = time.NewTicker(period)
	}
}

func (t *ticker) stop() {
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
}

func (e *Engine) intervals() [numTasks]time.Duration {
	s := e.settings
	return [numTasks]time.Duration{s.PacketIDInterval, s.InterfaceStatsInterval, s.ProbeStatsInterval, s.LocationInterval}
}

func (e *Engine) resetTickers() {
	for i, period := range e.intervals() {
		e.tickers[i].reset(period)
		log.GetLogger().WithFields(map[string]interface{}{
			"task":     taskNames[i],
			"interval": period,
		}).Debug("periodic task scheduled")
	}
}

func (e *Engine) stopTickers() {
	for i := range e.tickers {
		e.tickers[i].stop()
	}
}

// ─── Control ───

// Status is a snapshot of the runtime settings and device counters.
type Status struct {
	Selection      string            `json:"selection"`
	Hash           string            `json:"hash"`
	PacketIDHash   string            `json:"packet_id_hash,omitempty"`
	RangeMin       uint32            `json:"range_min"`
	RangeMax       uint32            `json:"range_max"`
	Ratio          float64           `json:"ratio"`
	Template       string            `json:"template"`
	Filter         string            `json:"filter"`
	FlushThreshold int               `json:"flush_threshold"`
	Intervals      map[string]string `json:"intervals"`
	Devices        []DeviceStatus    `json:"devices"`
}

func (e *Engine) status() Status {
	s := e.settings
	st := Status{
		Selection:      s.Selection.String(),
		Hash:           s.HashName,
		PacketIDHash:   s.PacketIDHashName,
		RangeMin:       s.Range.Min,
		RangeMax:       s.Range.Max,
		Ratio:          s.Range.Ratio(),
		Template:       s.Template.Name(),
		Filter:         s.Filter,
		FlushThreshold: s.FlushThreshold,
		Intervals:      make(map[string]string, numTasks),
	}
	for i, period := range e.intervals() {
		st.Intervals[taskNames[i]] = period.String()
	}
	for _, d := range e.devices {
		st.Devices = append(st.Devices, d.status(s.Template))
	}
	return st
}

// Status returns a snapshot taken on the loop goroutine. After Run has returned
// the final state is reported.
func (e *Engine) Status(ctx context.Context) (interface{}, error) {
	select {
	case <-e.done:
		return e.status(), nil
	default:
	}
	if !e.running.Load() {
		return nil, ErrNotRunning
	}

	reply := make(chan Status, 1)
	select {
	case e.statusReq <- reply:
	case <-e.done:
		return e.status(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
