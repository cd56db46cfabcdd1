package plugin

import (
	"github.com/sarchlab/akita/v4/sim/hooking"
	"github.com/sarchlab/akita/v4/sim/naming"

	"github.com/mithrilplus/memctl/errs"
	"github.com/mithrilplus/memctl/mscache"
	"github.com/mithrilplus/memctl/signal"
	"github.com/mithrilplus/memctl/stats"
	"github.com/mithrilplus/memctl/topology"
	"github.com/mithrilplus/memctl/tracker"
)

// Builder constructs Host instances, following the same fluent With*
// pattern as tracker.Builder and mscache.Builder. It owns constructing the
// Tracker and Cache it drives, rather than taking pre-built instances, so
// it can wire itself in as the tracker's outbound sender (see Host.Send).
type Builder struct {
	mode     Mode
	topo     *topology.BankTopology
	numBanks int

	trackerCfg tracker.Config
	cacheCfg   mscache.Config

	sender     signal.Sender
	recorder   stats.Recorder
	commandIDs map[signal.Command]int
	requestIDs map[signal.RequestKind]int

	hooks []hooking.Hook
}

// MakeBuilder creates a builder in Combined mode with default tracker and
// cache configuration and a single bank.
func MakeBuilder() Builder {
	return Builder{
		mode:     Combined,
		numBanks: 1,
		trackerCfg: tracker.Config{
			NTable:            4,
			AdaptiveThreshold: 3,
			RFMThreshold:      5,
		},
		cacheCfg: mscache.Config{
			NumLines:         256,
			Associativity:    4,
			ColSize:          64,
			WriteBackEnabled: true,
			DrainPolicy:      mscache.DrainImmediate,
		},
	}
}

// WithMode selects tracker-only, cache-only, or combined composition.
func (b Builder) WithMode(m Mode) Builder {
	b.mode = m
	return b
}

// WithTopology sets the BankTopology the host uses to flatten incoming
// address vectors.
func (b Builder) WithTopology(t *topology.BankTopology) Builder {
	b.topo = t
	return b
}

// WithNumBanks sets the number of flat banks the host's sub-components
// maintain independent state for.
func (b Builder) WithNumBanks(n int) Builder {
	b.numBanks = n
	return b
}

// WithTrackerConfig sets MithrilTracker's tunables.
func (b Builder) WithTrackerConfig(cfg tracker.Config) Builder {
	b.trackerCfg = cfg
	return b
}

// WithCacheConfig sets MSCache's tunables.
func (b Builder) WithCacheConfig(cfg mscache.Config) Builder {
	b.cacheCfg = cfg
	return b
}

// WithSender sets the real outbound priority-send channel to the
// controller.
func (b Builder) WithSender(sender signal.Sender) Builder {
	b.sender = sender
	return b
}

// WithRecorder sets the statistics backend. Defaults to stats.MemRecorder
// if never called.
func (b Builder) WithRecorder(r stats.Recorder) Builder {
	b.recorder = r
	return b
}

// WithCommandIDs sets the DRAM model's command symbol table: the
// controller's own integer id for each signal.Command the host must
// resolve.
func (b Builder) WithCommandIDs(ids map[signal.Command]int) Builder {
	b.commandIDs = ids
	return b
}

// WithRequestIDs sets the controller's request symbol table: the integer
// id to stamp onto each outbound Request's KindID.
func (b Builder) WithRequestIDs(ids map[signal.RequestKind]int) Builder {
	b.requestIDs = ids
	return b
}

// WithHook attaches an additional hook, invoked at HookPosEmit.
func (b Builder) WithHook(hook hooking.Hook) Builder {
	b.hooks = append(b.hooks, hook)
	return b
}

func (b Builder) usesTracker() bool {
	return b.mode == TrackerOnly || b.mode == Combined
}

func (b Builder) usesCache() bool {
	return b.mode == CacheOnly || b.mode == Combined
}

func (b Builder) validate() error {
	if b.topo == nil {
		return errs.NewConfigurationError("plugin: a bank topology is required")
	}

	if _, ok := b.commandIDs[signal.VRR]; !ok {
		return errs.NewConfigurationError("plugin requires VRR command")
	}

	for _, required := range []signal.Command{signal.ACT, signal.RD, signal.WR, signal.PRE, signal.RDA, signal.WRA} {
		if _, ok := b.commandIDs[required]; !ok {
			return errs.NewConfigurationError("plugin: command table is missing %s", required)
		}
	}

	if b.usesTracker() {
		if _, ok := b.requestIDs[signal.VictimRowRefresh]; !ok {
			return errs.NewConfigurationError("plugin: request table is missing victim-row-refresh")
		}
	}

	if b.usesCache() {
		if _, ok := b.requestIDs[signal.Write]; !ok {
			return errs.NewConfigurationError("plugin: request table is missing write")
		}
	}

	return nil
}

// Build validates the configuration, constructs the selected
// sub-components, and returns a ready-to-drive Host.
func (b Builder) Build(name string) (*Host, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	resolve := make(map[int]signal.Command, len(b.commandIDs))
	for cmd, id := range b.commandIDs {
		resolve[id] = cmd
	}

	recorder := b.recorder
	if recorder == nil {
		recorder = stats.NewMemRecorder()
	}

	recorder.Init()

	h := &Host{
		NamedBase:  naming.MakeNamedBase(name),
		mode:       b.mode,
		topo:       b.topo,
		sender:     b.sender,
		recorder:   recorder,
		resolve:    resolve,
		requestIDs: b.requestIDs,
		numBanks:   b.numBanks,
	}

	if b.usesTracker() {
		trk, err := tracker.MakeBuilder().
			WithNumTableEntries(b.trackerCfg.NTable).
			WithAdaptiveThreshold(b.trackerCfg.AdaptiveThreshold).
			WithRFMThreshold(b.trackerCfg.RFMThreshold).
			WithNumBanks(b.numBanks).
			WithSender(h).
			Build(name + ".tracker")
		if err != nil {
			return nil, err
		}

		h.trk = trk
	}

	if b.usesCache() {
		cache, err := mscache.MakeBuilder().
			WithNumLines(b.cacheCfg.NumLines).
			WithAssociativity(b.cacheCfg.Associativity).
			WithColSize(b.cacheCfg.ColSize).
			WithWriteBack(b.cacheCfg.WriteBackEnabled).
			WithWhiteListSize(b.cacheCfg.WhiteListSize).
			WithDrainPolicy(b.cacheCfg.DrainPolicy).
			WithDrainThreshold(b.cacheCfg.DrainThreshold).
			WithNumBanks(b.numBanks).
			Build(name + ".cache")
		if err != nil {
			return nil, err
		}

		h.cache = cache
	}

	for _, hook := range b.hooks {
		h.AcceptHook(hook)
	}

	return h, nil
}
