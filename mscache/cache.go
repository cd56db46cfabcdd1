// Package mscache implements MSCache, the optional per-bank memory-side
// cache that filters DRAM row activations before they reach the device and
// batches dirty lines into row-grouped write-back requests.
//
// It is grounded on github.com/sarchlab/akita/v4/mem/cache: the set
// structure follows that package's internal/tagging tag array (redesigned
// for O(1) operation in mscache/internal/lru per spec.md §9), and the
// dirty-eviction-into-a-side-buffer policy follows its
// internal/mshr/writebackbuffer write-combining behaviour, generalised
// here to the row-batched drain spec.md §4.3 and §9 (open question 4)
// describe.
package mscache

import (
	"math/bits"

	"github.com/sarchlab/akita/v4/sim/hooking"
	"github.com/sarchlab/akita/v4/sim/naming"

	"github.com/mithrilplus/memctl/errs"
	"github.com/mithrilplus/memctl/mscache/internal/lru"
	"github.com/mithrilplus/memctl/signal"
)

// Status is the per-bank status register, read and reset by the host after
// each precharge (PRE, RDA or WRA).
type Status int

// The status lattice spec.md §4.3 defines. HIT is the identity element;
// MissMix is absorbing.
const (
	HIT Status = iota
	MissRead
	MissWrite
	MissMix
)

func (s Status) String() string {
	switch s {
	case HIT:
		return "HIT"
	case MissRead:
		return "MISS_READ"
	case MissWrite:
		return "MISS_WRITE"
	case MissMix:
		return "MISS_MIX"
	default:
		return "UNKNOWN"
	}
}

// DrainPolicy selects when drain_dirty flushes the dirty buffer.
type DrainPolicy int

const (
	// Immediate drains on every PRE, additionally flushing any
	// still-resident dirty line belonging to a row the buffer is already
	// draining (batching the write-back by row).
	DrainImmediate DrainPolicy = iota

	// DrainThreshold only drains once the number of pending dirty-buffer
	// entries reaches Config.DrainThreshold, and otherwise does nothing.
	DrainThreshold
)

// RowCol is one (row, col) pair MSCache has decided must be written back.
type RowCol struct {
	Row signal.RowID
	Col int64
}

// HookPosDrain fires whenever drain_dirty returns a non-empty batch, with
// the bank and batch as HookCtx.Item.
var HookPosDrain = &hooking.HookPos{Name: "MSCache drain"}

// DrainEvent is the payload delivered to hooks at HookPosDrain.
type DrainEvent struct {
	Bank  signal.FlatBankID
	Batch []RowCol
}

// Config holds MSCache's tunables.
type Config struct {
	// NumLines is the total number of cache lines, across all sets.
	NumLines uint32

	// Associativity is the number of ways per set. NumLines must be a
	// multiple of it.
	Associativity uint32

	// ColSize is the number of distinct column ids per row, used only to
	// size the column field folded into a line's address; it must be a
	// power of two (spec.md §4.3's col_bits = log2(col_size)).
	ColSize uint32

	// WriteBackEnabled selects write-back (true) or write-through (false)
	// handling of writes.
	WriteBackEnabled bool

	// WhiteListSize is the capacity of the optional refresh-aware white
	// list. Zero disables it: every miss allocates.
	WhiteListSize uint32

	DrainPolicy DrainPolicy

	// DrainThreshold is the pending-entry count Threshold drain waits for.
	// Unused under Immediate.
	DrainThreshold uint32
}

type derived struct {
	numSets uint64
	numWays int
	colBits uint
	colMask uint64
	idxBits uint
}

func (c Config) validate() error {
	if c.NumLines == 0 || c.Associativity == 0 {
		return errs.NewConfigurationError("mscache: num_lines and associativity must be positive")
	}

	if c.NumLines%c.Associativity != 0 {
		return errs.NewConfigurationError("mscache: num_lines must be a multiple of associativity")
	}

	if !isPow2(c.ColSize) {
		return errs.NewConfigurationError("mscache: col_size must be a power of two, got %d", c.ColSize)
	}

	numSets := uint64(c.NumLines / c.Associativity)
	if !isPow2(uint32(numSets)) {
		return errs.NewConfigurationError("mscache: num_lines/associativity must be a power of two, got %d", numSets)
	}

	if c.DrainPolicy == DrainThreshold && c.DrainThreshold == 0 {
		return errs.NewConfigurationError("mscache: drain_threshold must be positive under the Threshold policy")
	}

	return nil
}

func (c Config) derive() derived {
	numSets := uint64(c.NumLines / c.Associativity)

	return derived{
		numSets: numSets,
		numWays: int(c.Associativity),
		colBits: uint(bits.TrailingZeros32(c.ColSize)),
		colMask: uint64(c.ColSize - 1),
		idxBits: uint(bits.TrailingZeros64(numSets)),
	}
}

func isPow2(n uint32) bool {
	return n != 0 && n&(n-1) == 0
}

type bankState struct {
	sets []*lru.Set

	// dirty maps a line address to whether its write-back is still
	// pending (true) or has already been drained this round (false, kept
	// only until a later write removes it per spec.md §4.3's on_access).
	dirty    map[uint64]bool
	numDirty int

	activatedRow signal.RowID
	rowOpen      bool

	status Status

	whiteList *whiteList
}

func newBankState(d derived, whiteListSize int) *bankState {
	b := &bankState{
		sets:         make([]*lru.Set, d.numSets),
		dirty:        make(map[uint64]bool),
		activatedRow: -1,
	}

	for i := range b.sets {
		b.sets[i] = lru.NewSet(d.numWays)
	}

	if whiteListSize > 0 {
		b.whiteList = newWhiteList(whiteListSize)
	}

	return b
}

func (b *bankState) changeStatus(isWrite bool) {
	switch b.status {
	case HIT:
		if isWrite {
			b.status = MissWrite
		} else {
			b.status = MissRead
		}
	case MissRead:
		if isWrite {
			b.status = MissMix
		}
	case MissWrite:
		if !isWrite {
			b.status = MissMix
		}
	case MissMix:
		// absorbing
	}
}

// Cache is the per-controller collection of per-bank MSCache state.
type Cache struct {
	naming.NamedBase
	hooking.HookableBase

	cfg Config
	d   derived

	banks []*bankState
}

// NumBanks returns the number of flat banks this cache maintains state for.
func (c *Cache) NumBanks() int {
	return len(c.banks)
}

func (c *Cache) bank(bank signal.FlatBankID) *bankState {
	return c.banks[bank]
}

func (c *Cache) addr(row signal.RowID, col int64) uint64 {
	return (uint64(row) << c.d.colBits) | uint64(col)
}

func (c *Cache) rowColOf(addr uint64) RowCol {
	return RowCol{
		Row: signal.RowID(addr >> c.d.colBits),
		Col: int64(addr & c.d.colMask),
	}
}

func (c *Cache) setIndex(addr uint64) uint64 {
	return addr & (c.d.numSets - 1)
}

func (c *Cache) tagOf(addr uint64) uint64 {
	return addr >> c.d.idxBits
}

// OnAct opens row in bank. It panics if a row is already open: the host
// must always precharge before opening another row (spec.md §4.3's
// on_act/on_pre pairing).
func (c *Cache) OnAct(bank signal.FlatBankID, row signal.RowID) {
	b := c.bank(bank)

	errs.Assert(!b.rowOpen, "mscache: ACT to bank %d while a row is already open", bank)

	b.activatedRow = row
	b.rowOpen = true
}

// OnPre closes whatever row is open in bank. It is a no-op on the cache's
// own state beyond clearing the open-row flag; draining is a separate,
// explicit step the host takes via DrainDirty.
func (c *Cache) OnPre(bank signal.FlatBankID) {
	b := c.bank(bank)
	b.rowOpen = false
	b.activatedRow = -1
}

// OnAccess applies a read or write to (the open row of bank, col),
// updating the bank's status register. It panics if no row is open.
func (c *Cache) OnAccess(bank signal.FlatBankID, col int64, isWrite bool) {
	b := c.bank(bank)

	errs.Assert(b.rowOpen, "mscache: access to bank %d with no open row", bank)

	addr := c.addr(b.activatedRow, col)

	if !c.cfg.WriteBackEnabled && isWrite {
		b.changeStatus(true)
		return
	}

	if c.cfg.WriteBackEnabled {
		if pending, buffered := b.dirty[addr]; buffered {
			// An entry whose write-back has already been drained is only
			// removed by a later write; a read of it changes nothing.
			if !pending {
				if isWrite {
					b.changeStatus(true)
					delete(b.dirty, addr)
				}

				return
			}

			// Any access (read or write) to a still-pending address
			// re-promotes it into the cache as a new dirty line before
			// its write-back has actually gone out, per spec.md's
			// data-model invariant. The status register is untouched:
			// this is not a miss.
			set := b.sets[c.setIndex(addr)]
			tag := c.tagOf(addr)

			evictedAddr, evictedDirty := set.Insert(lru.Way{Tag: tag, Addr: addr, Dirty: true})
			if evictedDirty {
				b.dirty[evictedAddr] = true
				b.numDirty++
			}

			delete(b.dirty, addr)
			b.numDirty--

			return
		}
	}

	set := b.sets[c.setIndex(addr)]
	tag := c.tagOf(addr)

	if way, hit := set.Lookup(tag); hit {
		way.Dirty = way.Dirty || isWrite
		return
	}

	if b.whiteList != nil && !b.whiteList.Contains(int64(b.activatedRow)) {
		b.changeStatus(isWrite)
		return
	}

	evictedAddr, evictedDirty := set.Insert(lru.Way{Tag: tag, Addr: addr, Dirty: isWrite})
	if evictedDirty {
		b.dirty[evictedAddr] = true
		b.numDirty++
	}

	b.changeStatus(isWrite)
}

// GetStatus returns the bank's current status and resets it to HIT. The
// host calls it once after each precharge, so the value covers one
// ACT-to-precharge window.
func (c *Cache) GetStatus(bank signal.FlatBankID) Status {
	b := c.bank(bank)
	s := b.status
	b.status = HIT

	return s
}

// RecordRefresh marks row as recently refreshed in bank's white list, if
// one is configured. The host calls this whenever MithrilTracker emits a
// VRR for that (bank, row), per spec.md §9 open question 5.
func (c *Cache) RecordRefresh(bank signal.FlatBankID, row signal.RowID) {
	b := c.bank(bank)
	if b.whiteList != nil {
		b.whiteList.Record(int64(row))
	}
}

// DrainDirty flushes bank's dirty buffer according to the configured
// DrainPolicy and returns the (row, col) pairs that must be written back.
func (c *Cache) DrainDirty(bank signal.FlatBankID) []RowCol {
	b := c.bank(bank)

	var batch []RowCol

	switch c.cfg.DrainPolicy {
	case DrainThreshold:
		batch = c.drainThreshold(b)
	default:
		batch = c.drainImmediate(b)
	}

	if len(batch) > 0 {
		c.InvokeHook(hooking.HookCtx{
			Domain: c,
			Pos:    HookPosDrain,
			Item:   DrainEvent{Bank: bank, Batch: batch},
		})
	}

	return batch
}

// drainImmediate flushes every pending dirty-buffer entry, then
// additionally flushes any still-resident dirty line whose row matches one
// of those entries, batching the write-back by row (spec.md §4.3).
func (c *Cache) drainImmediate(b *bankState) []RowCol {
	if b.numDirty == 0 {
		return nil
	}

	batch := make([]RowCol, 0, b.numDirty)
	rows := make(map[signal.RowID]bool, b.numDirty)

	for addr, pending := range b.dirty {
		if !pending {
			continue
		}

		rc := c.rowColOf(addr)
		batch = append(batch, rc)
		rows[rc.Row] = true
		b.dirty[addr] = false
	}

	for _, set := range b.sets {
		for _, way := range set.Lines() {
			if !way.Dirty {
				continue
			}

			rc := c.rowColOf(way.Addr)
			if rows[rc.Row] {
				batch = append(batch, rc)
				way.Dirty = false
			}
		}
	}

	b.numDirty = 0

	return batch
}

// drainThreshold only flushes the full set of pending dirty-buffer entries
// once their count reaches Config.DrainThreshold; otherwise it returns
// nil.
func (c *Cache) drainThreshold(b *bankState) []RowCol {
	if uint32(b.numDirty) < c.cfg.DrainThreshold {
		return nil
	}

	batch := make([]RowCol, 0, b.numDirty)

	for addr, pending := range b.dirty {
		if !pending {
			continue
		}

		batch = append(batch, c.rowColOf(addr))
		b.dirty[addr] = false
	}

	b.numDirty = 0

	return batch
}

// NumDirty returns the count of pending dirty-buffer entries for a bank,
// for tests and stats snapshots.
func (c *Cache) NumDirty(bank signal.FlatBankID) int {
	return c.bank(bank).numDirty
}
