// Package plugin implements PluginHost, the controller-facing adapter that
// dispatches each cycle's observed command to MithrilTracker and/or MSCache
// and chooses how they compose.
//
// It is grounded on github.com/sarchlab/akita/v4/mem/dram's Comp, the
// component that owns a channel's sub-modules and drives them from a
// single per-cycle Tick, and on mem/cache.Comp's middleware dispatch by
// request kind.
package plugin

import (
	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/sim/hooking"
	"github.com/sarchlab/akita/v4/sim/naming"

	"github.com/mithrilplus/memctl/errs"
	"github.com/mithrilplus/memctl/mscache"
	"github.com/mithrilplus/memctl/signal"
	"github.com/mithrilplus/memctl/stats"
	"github.com/mithrilplus/memctl/topology"
	"github.com/mithrilplus/memctl/tracker"
)

// Mode selects which sub-components a Host drives and how their outputs
// compose, per spec.md §2's "dependency order leaves-first" description.
type Mode int

const (
	// TrackerOnly drives MithrilTracker alone: every ACT is counted.
	TrackerOnly Mode = iota

	// CacheOnly drives MSCache alone, with no RowHammer tracking.
	CacheOnly

	// Combined drives both: the cache's post-PRE status gates whether,
	// and with what miss kind, the tracker counts an activation.
	Combined
)

// HookPosEmit fires every time the host hands a Request to the outbound
// sender, with the Request as HookCtx.Item.
var HookPosEmit = &hooking.HookPos{Name: "PluginHost emit"}

// BankSnapshot is a point-in-time view of one bank's state, for debugging
// and acceptance testing.
type BankSnapshot struct {
	Bank signal.FlatBankID

	HasTracker bool
	RAA        uint32
	MaxRow     signal.RowID
	MinRow     signal.RowID
	NumTracked int

	HasCache bool
	NumDirty int
}

// Host is the per-channel plugin instance: one BankTopology, an optional
// Tracker, an optional Cache, and the glue that drives them from the
// commands a controller selects.
type Host struct {
	naming.NamedBase
	hooking.HookableBase

	mode Mode
	topo *topology.BankTopology

	trk   *tracker.Tracker
	cache *mscache.Cache

	sender     signal.Sender
	recorder   stats.Recorder
	resolve    map[int]signal.Command
	requestIDs map[signal.RequestKind]int

	numBanks int
}

// Send implements signal.Sender. It is the single egress point for every
// outbound Request, whether emitted by MithrilTracker directly (wired as
// its sender at Build time) or built by the host itself while draining
// MSCache: it stamps KindID from the request symbol table, forwards to the
// real outbound sender, updates statistics, and — per spec.md §9 open
// question 5 — records a refresh in the cache's white list whenever the
// emitted request is a VRR and both sub-components are present.
func (h *Host) Send(req signal.Request) {
	req.KindID = h.requestIDs[req.Kind]

	if h.sender != nil {
		h.sender.Send(req)
	}

	switch req.Kind {
	case signal.VictimRowRefresh:
		h.recorder.RecordVRR(req.Bank, req.Row)

		if h.mode == Combined && h.cache != nil {
			h.cache.RecordRefresh(req.Bank, req.Row)
		}
	case signal.Write:
		h.recorder.RecordWriteback(req.Bank, req.Row, req.Col)
	}

	h.InvokeHook(hooking.HookCtx{Domain: h, Pos: HookPosEmit, Item: req})
}

// HandleCycle is the per-cycle entry point: the controller calls this at
// most once per cycle with whether a request was selected, that request's
// resolved command id, and its address vector. It implements spec.md
// §4.4's dispatch table.
func (h *Host) HandleCycle(requestFound bool, commandID int, addr topology.AddrVec) {
	if !requestFound {
		return
	}

	cmd, known := h.resolve[commandID]
	errs.Assert(known, "plugin: unresolved command id %d", commandID)

	bank := signal.FlatBankID(h.topo.FlatBankID(addr))
	row := signal.RowID(addr.Row)
	col := int64(addr.Column)

	switch cmd {
	case signal.ACT:
		h.handleAct(bank, row)
	case signal.RD, signal.WR:
		h.handleAccess(bank, col, cmd == signal.WR)
	case signal.PRE, signal.RDA, signal.WRA:
		h.handleClose(bank, row, col, cmd)
	case signal.VRR:
		// Outbound only; the controller never hands this back as an
		// observed command.
	}
}

func (h *Host) handleAct(bank signal.FlatBankID, row signal.RowID) {
	switch h.mode {
	case TrackerOnly:
		h.trk.OnActivation(bank, row)
		h.trk.MaybeTriggerRFM(bank)
	case CacheOnly:
		h.cache.OnAct(bank, row)
	case Combined:
		h.cache.OnAct(bank, row)
		h.trk.BumpRAA(bank)
	}
}

func (h *Host) handleAccess(bank signal.FlatBankID, col int64, isWrite bool) {
	if h.mode == TrackerOnly {
		return
	}

	h.cache.OnAccess(bank, col, isWrite)
}

func (h *Host) handleClose(bank signal.FlatBankID, row signal.RowID, col int64, cmd signal.Command) {
	if h.mode == TrackerOnly {
		return
	}

	if cmd == signal.RDA || cmd == signal.WRA {
		h.cache.OnAccess(bank, col, cmd == signal.WRA)
	}

	h.cache.OnPre(bank)

	for _, rc := range h.cache.DrainDirty(bank) {
		h.Send(signal.Request{
			ID:   xid.New().String(),
			Kind: signal.Write,
			Bank: bank,
			Row:  rc.Row,
			Col:  rc.Col,
		})
	}

	status := h.cache.GetStatus(bank)
	if h.mode != Combined || status == mscache.HIT {
		return
	}

	h.trk.RecordRow(bank, row)
	h.trk.MaybeTriggerRFM(bank)
	h.recorder.RecordMiss(statusToMissKind(status))
}

func statusToMissKind(s mscache.Status) stats.MissKind {
	switch s {
	case mscache.MissWrite:
		return stats.MissWrite
	case mscache.MissMix:
		return stats.MissMix
	default:
		return stats.MissRead
	}
}

// Snapshot returns a point-in-time view of every bank's state.
func (h *Host) Snapshot() []BankSnapshot {
	snaps := make([]BankSnapshot, h.numBanks)

	for b := 0; b < h.numBanks; b++ {
		bank := signal.FlatBankID(b)
		s := BankSnapshot{Bank: bank}

		if h.trk != nil {
			s.HasTracker = true
			s.RAA = h.trk.RAA(bank)
			s.NumTracked = len(h.trk.Counts(bank))
			s.MaxRow, _ = h.trk.MaxRow(bank)
			s.MinRow, _ = h.trk.MinRow(bank)
		}

		if h.cache != nil {
			s.HasCache = true
			s.NumDirty = h.cache.NumDirty(bank)
		}

		snaps[b] = s
	}

	return snaps
}
