// Package stats implements the four named statistics spec.md §6 assigns to
// the plugin host, plus per-event records for debugging and acceptance
// testing.
//
// Recorder is modelled on github.com/sarchlab/akita/v4/data_recorder's
// DataRecorder: an Init/insert/Flush lifecycle a concrete backend
// implements, kept deliberately narrower than the teacher's interface
// since this core only ever records four counters and two event kinds,
// never arbitrary tracing.Task values.
package stats

import (
	"sync"

	"github.com/mithrilplus/memctl/signal"
)

// MissKind names one of the three ACT-cause statistics spec.md §6 lists.
type MissKind int

const (
	MissRead MissKind = iota
	MissWrite
	MissMix
)

// Name returns the statistic name spec.md §6's table gives for this kind.
func (k MissKind) Name() string {
	switch k {
	case MissRead:
		return "Total ACTs due to read"
	case MissWrite:
		return "Total ACTs due to write"
	case MissMix:
		return "Total ACTs due to mix of read/write"
	default:
		return "unknown"
	}
}

// Recorder is the backend that collects the core's statistics. Every
// method must be safe to call once per controller cycle from the single
// goroutine driving the plugin host; no concurrent access is required.
type Recorder interface {
	// Init prepares the backend (opening a connection, creating tables);
	// called once at plugin-host setup.
	Init()

	// RecordWriteback counts one priority Write request the host emitted
	// for (bank, row, col), draining the cache's dirty buffer.
	RecordWriteback(bank signal.FlatBankID, row signal.RowID, col int64)

	// RecordVRR counts one priority VictimRowRefresh request the host
	// emitted for (bank, row).
	RecordVRR(bank signal.FlatBankID, row signal.RowID)

	// RecordMiss counts one post-PRE activation attributed to kind.
	RecordMiss(kind MissKind)

	// Flush persists any buffered state. Registered with
	// github.com/tebeka/atexit by backends that buffer in memory.
	Flush()
}

// Counts is a point-in-time snapshot of MemRecorder's counters.
type Counts struct {
	TotalWritebackRequests int
	MissReads              int
	MissWrites             int
	MissMixes              int
}

// MemRecorder is the default, in-process Recorder: four counters behind a
// mutex, with no persistence. Every test in this module and every
// plugin.Host built without an explicit backend uses one.
type MemRecorder struct {
	mu     sync.Mutex
	counts Counts
}

// NewMemRecorder creates a ready-to-use MemRecorder.
func NewMemRecorder() *MemRecorder {
	return &MemRecorder{}
}

// Init is a no-op: MemRecorder has no external resource to acquire.
func (r *MemRecorder) Init() {}

// RecordWriteback implements Recorder.
func (r *MemRecorder) RecordWriteback(signal.FlatBankID, signal.RowID, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts.TotalWritebackRequests++
}

// RecordVRR implements Recorder. MemRecorder does not separately count
// VRRs (spec.md §6 names no such statistic); it exists for backends that
// persist per-event rows.
func (r *MemRecorder) RecordVRR(signal.FlatBankID, signal.RowID) {}

// RecordMiss implements Recorder.
func (r *MemRecorder) RecordMiss(kind MissKind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch kind {
	case MissRead:
		r.counts.MissReads++
	case MissWrite:
		r.counts.MissWrites++
	case MissMix:
		r.counts.MissMixes++
	}
}

// Flush is a no-op for MemRecorder.
func (r *MemRecorder) Flush() {}

// Snapshot returns a copy of the current counters.
func (r *MemRecorder) Snapshot() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.counts
}
