package probe

import (
	"firestige.xyz/hsprobe/internal/core"
	"firestige.xyz/hsprobe/internal/core/decoder"
	"firestige.xyz/hsprobe/internal/log"
	"firestige.xyz/hsprobe/internal/metrics"
	"firestige.xyz/hsprobe/internal/record"
)

// processPacket runs one frame through locate → select → hash → admit → assemble →
// submit. Per-packet failures end here.
func (e *Engine) processPacket(d *Device, raw core.RawPacket) {
	d.Total++
	d.SamplingDeltaCount++
	metrics.PacketsTotal.WithLabelValues(d.Name, metrics.ResultSeen).Inc()

	l := decoder.Locate(raw.Data, d.LinkType)

	n := e.settings.Selection.Select(raw.Data, &l, d.scratch)
	if n == 0 {
		d.NoSelection++
		metrics.PacketsTotal.WithLabelValues(d.Name, metrics.ResultNoSelection).Inc()
		if log.GetLogger().IsTraceEnabled() {
			log.GetLogger().WithFields(map[string]interface{}{
				"device": d.Name,
				"len":    len(raw.Data),
			}).Trace("packet does not contain a selection")
		}
		return
	}
	selected := d.scratch[:n]

	h := e.settings.Hash(selected)
	if !e.settings.Range.Admit(h) {
		metrics.PacketsTotal.WithLabelValues(d.Name, metrics.ResultRejected).Inc()
		return
	}

	d.Sampled++
	d.ExportPacketCount++
	d.SamplingSize++
	metrics.PacketsTotal.WithLabelValues(d.Name, metrics.ResultSampled).Inc()

	if e.settings.PacketIDInterval <= 0 {
		return
	}

	desc := d.template(e.settings.Template)
	values, err := record.AssemblePacket(desc, record.Packet{
		Frame:     raw.Data,
		Layers:    &l,
		Timestamp: raw.Timestamp,
		PacketID:  e.settings.packetID(h, selected),
	})
	if err != nil {
		log.GetLogger().WithError(err).WithField("device", d.Name).Debug("record assembly failed")
		return
	}

	e.submit(d, desc, values)
	e.maybeFlush(d)
}
