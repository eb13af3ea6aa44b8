package probe

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/hsprobe/internal/core"
	"firestige.xyz/hsprobe/internal/source"
	"firestige.xyz/hsprobe/internal/sysstats"
	"firestige.xyz/hsprobe/internal/template"
)

type exported struct {
	id     int
	values [][]byte
}

type fakeExporter struct {
	mu        sync.Mutex
	templates []int
	records   []exported
	flushes   int
	closed    bool

	failTemplate bool
	failExport   bool
	failFlush    bool
}

func (f *fakeExporter) MakeTemplate(desc *template.Descriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTemplate {
		return errors.New("template rejected")
	}
	f.templates = append(f.templates, desc.ID)
	return nil
}

func (f *fakeExporter) Export(id int, values [][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failExport {
		return core.ErrExportFailure
	}
	f.records = append(f.records, exported{id: id, values: values})
	return nil
}

func (f *fakeExporter) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	if f.failFlush {
		return core.ErrExportFailure
	}
	return nil
}

func (f *fakeExporter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeExporter) byTemplate(id int) []exported {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []exported
	for _, r := range f.records {
		if r.id == id {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeExporter) flushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushes
}

// fakeSource replays frames. Offline sources end with io.EOF; live sources time out
// until closed.
type fakeSource struct {
	mu      sync.Mutex
	kind    source.Kind
	frames  [][]byte
	stamp   time.Time
	filters []string
	stats   source.Stats

	filterErr error
	closed    bool
}

func (s *fakeSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		if s.kind.Offline() {
			return nil, gopacket.CaptureInfo{}, io.EOF
		}
		if s.closed {
			return nil, gopacket.CaptureInfo{}, core.ErrSourceClosed
		}
		s.mu.Unlock()
		time.Sleep(time.Millisecond)
		s.mu.Lock()
		return nil, gopacket.CaptureInfo{}, source.ErrTimeout
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, gopacket.CaptureInfo{Timestamp: s.stamp, CaptureLength: len(f), Length: len(f)}, nil
}

func (s *fakeSource) push(frames ...[]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frames...)
}

func (s *fakeSource) LinkType() layers.LinkType { return layers.LinkTypeEthernet }
func (s *fakeSource) Kind() source.Kind         { return s.kind }

func (s *fakeSource) Stats() (source.Stats, error) { return s.stats, nil }

func (s *fakeSource) SetFilter(expr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filterErr != nil {
		return s.filterErr
	}
	s.filters = append(s.filters, expr)
	return nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeStats struct {
	snap sysstats.Snapshot
	err  error
}

func (f fakeStats) Collect() (sysstats.Snapshot, error) { return f.snap, f.err }
