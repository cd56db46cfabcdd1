package mscache

import (
	"github.com/sarchlab/akita/v4/sim/hooking"
	"github.com/sarchlab/akita/v4/sim/naming"
)

// Builder constructs Cache instances, following the same fluent With*
// pattern as github.com/sarchlab/akita/v4/mem/cache.Builder.
type Builder struct {
	cfg      Config
	numBanks int
	hooks    []hooking.Hook
}

// MakeBuilder creates a builder with default configuration: a 256-line,
// 4-way write-back cache over a single bank with 64 columns per row, no
// white list, draining immediately on every PRE.
func MakeBuilder() Builder {
	return Builder{
		cfg: Config{
			NumLines:         256,
			Associativity:    4,
			ColSize:          64,
			WriteBackEnabled: true,
			DrainPolicy:      DrainImmediate,
		},
		numBanks: 1,
	}
}

// WithNumLines sets the total number of cache lines, across all sets.
func (b Builder) WithNumLines(n uint32) Builder {
	b.cfg.NumLines = n
	return b
}

// WithAssociativity sets the number of ways per set.
func (b Builder) WithAssociativity(n uint32) Builder {
	b.cfg.Associativity = n
	return b
}

// WithColSize sets the number of distinct column ids per row.
func (b Builder) WithColSize(n uint32) Builder {
	b.cfg.ColSize = n
	return b
}

// WithWriteBack enables or disables write-back handling of writes.
func (b Builder) WithWriteBack(enabled bool) Builder {
	b.cfg.WriteBackEnabled = enabled
	return b
}

// WithWhiteListSize sets the capacity of the refresh-aware white list.
// Zero (the default) disables it.
func (b Builder) WithWhiteListSize(n uint32) Builder {
	b.cfg.WhiteListSize = n
	return b
}

// WithDrainPolicy selects when DrainDirty flushes the dirty buffer.
func (b Builder) WithDrainPolicy(p DrainPolicy) Builder {
	b.cfg.DrainPolicy = p
	return b
}

// WithDrainThreshold sets the pending-entry count the Threshold policy
// waits for.
func (b Builder) WithDrainThreshold(n uint32) Builder {
	b.cfg.DrainThreshold = n
	return b
}

// WithNumBanks sets the number of flat banks this cache maintains
// independent state for.
func (b Builder) WithNumBanks(n int) Builder {
	b.numBanks = n
	return b
}

// WithHook attaches an additional hook, invoked at HookPosDrain.
func (b Builder) WithHook(hook hooking.Hook) Builder {
	b.hooks = append(b.hooks, hook)
	return b
}

// Build validates the configuration and constructs a Cache, or returns an
// *errs.ConfigurationError.
func (b Builder) Build(name string) (*Cache, error) {
	if err := b.cfg.validate(); err != nil {
		return nil, err
	}

	d := b.cfg.derive()

	c := &Cache{
		NamedBase: naming.MakeNamedBase(name),
		cfg:       b.cfg,
		d:         d,
		banks:     make([]*bankState, b.numBanks),
	}

	for i := range c.banks {
		c.banks[i] = newBankState(d, int(b.cfg.WhiteListSize))
	}

	for _, hook := range b.hooks {
		c.AcceptHook(hook)
	}

	return c, nil
}
