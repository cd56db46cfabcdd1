package tracker

import (
	"github.com/sarchlab/akita/v4/sim/hooking"
	"github.com/sarchlab/akita/v4/sim/naming"

	"github.com/mithrilplus/memctl/signal"
)

// Builder constructs Tracker instances, following the fluent With*
// pattern github.com/sarchlab/akita/v4/mem/dram.Builder and
// mem/cache.Builder both use.
type Builder struct {
	cfg      Config
	numBanks int
	sender   signal.Sender
	hooks    []hooking.Hook
}

// MakeBuilder creates a builder with default configuration.
func MakeBuilder() Builder {
	return Builder{
		cfg: Config{
			NTable:            4,
			AdaptiveThreshold: 3,
			RFMThreshold:      5,
		},
		numBanks: 1,
	}
}

// WithNumTableEntries sets N_table, the per-bank counter table capacity.
func (b Builder) WithNumTableEntries(n uint32) Builder {
	b.cfg.NTable = n
	return b
}

// WithAdaptiveThreshold sets the minimum max-min count difference
// required to emit a VRR.
func (b Builder) WithAdaptiveThreshold(n uint32) Builder {
	b.cfg.AdaptiveThreshold = n
	return b
}

// WithRFMThreshold sets the RAA count that triggers an RFM evaluation.
func (b Builder) WithRFMThreshold(n uint32) Builder {
	b.cfg.RFMThreshold = n
	return b
}

// WithNumBanks sets the number of flat banks this tracker maintains
// independent state for.
func (b Builder) WithNumBanks(n int) Builder {
	b.numBanks = n
	return b
}

// WithSender sets the priority-send channel used to emit VRR requests.
func (b Builder) WithSender(sender signal.Sender) Builder {
	b.sender = sender
	return b
}

// WithHook attaches an additional hook, invoked at HookPosVRR.
func (b Builder) WithHook(hook hooking.Hook) Builder {
	b.hooks = append(b.hooks, hook)
	return b
}

// Build validates the configuration and constructs a Tracker, or returns
// an *errs.ConfigurationError.
func (b Builder) Build(name string) (*Tracker, error) {
	if err := b.cfg.validate(); err != nil {
		return nil, err
	}

	t := &Tracker{
		NamedBase: naming.MakeNamedBase(name),
		cfg:       b.cfg,
		sender:    b.sender,
		banks:     make([]*bankState, b.numBanks),
	}

	for i := range t.banks {
		t.banks[i] = newBankState(b.cfg.NTable)
	}

	for _, hook := range b.hooks {
		t.AcceptHook(hook)
	}

	return t, nil
}
