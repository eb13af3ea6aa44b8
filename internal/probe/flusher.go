package probe

import (
	"firestige.xyz/hsprobe/internal/log"
	"firestige.xyz/hsprobe/internal/metrics"
	"firestige.xyz/hsprobe/internal/template"
)

// Flush triggers.
const (
	flushThreshold = "threshold"
	flushTimer     = "timer"
	flushSync      = "sync"
	flushShutdown  = "shutdown"
	flushOverflow  = "overflow"
)

// submit hands one record to the device's exporter. It reports whether the record
// was accepted.
func (e *Engine) submit(d *Device, desc *template.Descriptor, values [][]byte) bool {
	if err := d.exp.Export(desc.ID, values); err != nil {
		d.ExportErrors++
		metrics.ExportErrorsTotal.WithLabelValues(d.Name, "export").Inc()
		log.GetLogger().WithError(err).WithFields(map[string]interface{}{
			"device":   d.Name,
			"template": desc.Name(),
		}).Warn("export failed")
		return false
	}
	d.Exported++
	d.LastExport = e.now()
	metrics.RecordsExportedTotal.WithLabelValues(d.Name, desc.Name()).Inc()
	return true
}

// maybeFlush flushes the device once ExportPacketCount reaches the threshold. The
// counter resets whether or not the flush succeeds.
func (e *Engine) maybeFlush(d *Device) {
	if d.ExportPacketCount < uint64(e.settings.FlushThreshold) {
		return
	}
	d.ExportPacketCount = 0
	e.flush(d, flushThreshold)
}

func (e *Engine) flush(d *Device, reason string) bool {
	metrics.FlushesTotal.WithLabelValues(d.Name, reason).Inc()
	if err := d.exp.Flush(); err != nil {
		e.flushFailed(d, reason, err)
		return false
	}
	return true
}

func (e *Engine) flushFailed(d *Device, reason string, err error) {
	d.ExportErrors++
	metrics.ExportErrorsTotal.WithLabelValues(d.Name, "flush").Inc()
	log.GetLogger().WithError(err).WithFields(map[string]interface{}{
		"device": d.Name,
		"reason": reason,
	}).Warn("flush failed")
}

func (e *Engine) flushAll(reason string) {
	for _, d := range e.devices {
		e.flush(d, reason)
	}
}
