package probe

import (
	"firestige.xyz/hsprobe/internal/log"
	"firestige.xyz/hsprobe/internal/metrics"
	"firestige.xyz/hsprobe/internal/record"
	"firestige.xyz/hsprobe/internal/source"
	"firestige.xyz/hsprobe/internal/sysstats"
	"firestige.xyz/hsprobe/internal/template"
)

// StatsCollector samples system and process usage.
type StatsCollector interface {
	Collect() (sysstats.Snapshot, error)
}

// exportInterfaceStats exports one interface statistics record per device and
// resets the interval counters of the devices whose record was accepted.
func (e *Engine) exportInterfaceStats() {
	now := e.now()
	desc := template.MustGet(template.InterfaceStats)
	for _, d := range e.devices {
		var st source.Stats
		if d.Kind == source.Live {
			var err error
			if st, err = d.src.Stats(); err != nil {
				log.GetLogger().WithError(err).WithField("device", d.Name).Warn("capture statistics unavailable")
			}
			metrics.CaptureReceived.WithLabelValues(d.Name).Set(float64(st.Received))
			metrics.CaptureDropped.WithLabelValues(d.Name).Set(float64(st.Dropped))
		}

		values := record.InterfaceStats(record.InterfaceStatsValues{
			Time:             now,
			SamplingSize:     uint32(d.SamplingSize),
			PacketDeltaCount: d.SamplingDeltaCount,
			PcapRecv:         st.Received,
			PcapDrop:         st.Dropped,
			Name:             d.Name,
			Description:      d.Description(),
		})
		if e.submit(d, desc, values) {
			d.SamplingSize = 0
			d.SamplingDeltaCount = 0
		}
	}
	e.flushAll(flushTimer)
}

// exportProbeStats exports one probe statistics record through the first device.
func (e *Engine) exportProbeStats() {
	if e.stats == nil || len(e.devices) == 0 {
		return
	}
	snap, err := e.stats.Collect()
	if err != nil {
		log.GetLogger().WithError(err).Debug("probe statistics incomplete")
	}
	d := e.devices[0]
	values := record.ProbeStats(record.ProbeStatsValues{
		Time:        e.now(),
		CPUIdle:     snap.CPUIdle,
		MemFree:     snap.MemFree,
		ProcCPUUser: snap.ProcCPUUser,
		ProcCPUSys:  snap.ProcCPUSys,
		ProcMemVzs:  snap.ProcMemVzs,
		ProcMemRss:  snap.ProcMemRss,
		MemTotal:    snap.MemTotal,
		Threads:     snap.Threads,
	})
	e.submit(d, template.MustGet(template.ProbeStats), values)
	e.flushAll(flushTimer)
}

// exportLocation exports the configured location on every device.
func (e *Engine) exportLocation() {
	now := e.now()
	loc := e.settings.Location
	desc := template.MustGet(template.Location)
	for _, d := range e.devices {
		e.submit(d, desc, record.Location(record.LocationValues{
			Time:         now,
			Addr:         d.IPv4,
			Latitude:     loc.Latitude,
			Longitude:    loc.Longitude,
			ProbeName:    loc.ProbeName,
			LocationName: loc.LocationName,
		}))
	}
	e.flushAll(flushTimer)
}

// exportSync exports a console reply on every device and flushes each at once.
func (e *Engine) exportSync(mid uint32, reply string) {
	now := e.now()
	desc := template.MustGet(template.Sync)
	for _, d := range e.devices {
		e.submit(d, desc, record.Sync(now, mid, 0, reply))
		e.flush(d, flushSync)
	}
}
