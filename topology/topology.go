// Package topology computes the mapping between a DRAM addressing vector
// and a dense per-controller bank index.
//
// It is grounded on how github.com/sarchlab/akita/v4/mem/dram's Builder
// lays out ranks, bank groups and banks (see that package's
// buildChannel/generateTiming): the level order is always rank, optional
// bank group, bank, with row and column left for the caller to fill in.
package topology

import "fmt"

// Level names one axis of the DRAM addressing hierarchy.
type Level int

// The fixed level order the core understands. BankGroup is only present
// when the DRAM model reports bank groups at setup.
const (
	Rank Level = iota
	BankGroup
	Bank
	Row
	Column
)

func (l Level) String() string {
	switch l {
	case Rank:
		return "rank"
	case BankGroup:
		return "bankgroup"
	case Bank:
		return "bank"
	case Row:
		return "row"
	case Column:
		return "column"
	default:
		return "unknown"
	}
}

// FlatBankID is a dense, non-negative bank index: 0 <= id <
// NumRanks*BanksPerRank.
type FlatBankID uint64

// AddrVec is the ordered addressing tuple (rank, [bankgroup], bank, row,
// column). BankGroup is only meaningful when Config.HasBankGroup is true.
type AddrVec struct {
	Rank      uint64
	BankGroup uint64
	Bank      uint64
	Row       uint64
	Column    uint64
}

// Config describes the DRAM organisation that BankTopology was built from.
type Config struct {
	HasBankGroup bool
	NumRanks     uint64
	NumBankGroup uint64 // 1 when HasBankGroup is false
	NumBank      uint64
}

// BanksPerRank is bankgroups*banksPerGroup when bank groups exist, else
// just the bank count.
func (c Config) BanksPerRank() uint64 {
	return c.NumBankGroup * c.NumBank
}

// NumFlatBanks is the total number of flat banks this configuration
// addresses.
func (c Config) NumFlatBanks() uint64 {
	return c.NumRanks * c.BanksPerRank()
}

func (c Config) validate() error {
	if c.NumRanks == 0 {
		return fmt.Errorf("topology: num ranks must be positive")
	}

	if c.NumBank == 0 {
		return fmt.Errorf("topology: num banks must be positive")
	}

	if !c.HasBankGroup && c.NumBankGroup > 1 {
		return fmt.Errorf("topology: num bank groups > 1 without bank groups enabled")
	}

	return nil
}

// BankTopology converts between AddrVec and FlatBankID for one controller.
// The inverse mapping is computed eagerly at construction and cached, since
// it is small (one entry per flat bank) and is read far more often than the
// organisation changes.
type BankTopology struct {
	cfg       Config
	templates []AddrVec
}

// New builds a BankTopology from a DRAM organisation. It returns an error
// if the organisation is not addressable (zero ranks or banks, or bank
// groups referenced without being enabled) — a setup-time configuration
// problem, never a runtime one.
func New(cfg Config) (*BankTopology, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if !cfg.HasBankGroup {
		cfg.NumBankGroup = 1
	}

	t := &BankTopology{cfg: cfg}
	t.buildTemplates()

	return t, nil
}

func (t *BankTopology) buildTemplates() {
	n := t.cfg.NumFlatBanks()
	t.templates = make([]AddrVec, n)

	banksPerGroup := t.cfg.NumBank
	groupsPerRank := t.cfg.NumBankGroup

	for flat := uint64(0); flat < n; flat++ {
		bank := flat % banksPerGroup
		rest := flat / banksPerGroup
		group := rest % groupsPerRank
		rank := rest / groupsPerRank

		t.templates[flat] = AddrVec{
			Rank:      rank,
			BankGroup: group,
			Bank:      bank,
		}
	}
}

// FlatBankID folds (rank, [bankgroup], bank) into a dense flat bank index.
//
// The algorithm matches spec.md §4.1: starting from the bank field, walk
// outward through the levels between bank and rank (bank group, then
// rank), each time multiplying the running stride by the count of the
// level just stepped over.
func (t *BankTopology) FlatBankID(addr AddrVec) FlatBankID {
	flat := addr.Bank
	acc := uint64(1)

	acc *= t.cfg.NumBank
	flat += addr.BankGroup * acc

	acc *= t.cfg.NumBankGroup
	flat += addr.Rank * acc

	return FlatBankID(flat)
}

// BankAddrTemplate returns the address vector for a flat bank id, with
// rank, bank group and bank populated and row/column left zero. It is the
// inverse of FlatBankID restricted to those three fields.
func (t *BankTopology) BankAddrTemplate(id FlatBankID) (AddrVec, error) {
	if uint64(id) >= uint64(len(t.templates)) {
		return AddrVec{}, fmt.Errorf("topology: flat bank id %d out of range [0,%d)", id, len(t.templates))
	}

	return t.templates[id], nil
}

// NumFlatBanks returns the number of distinct flat banks this topology
// addresses.
func (t *BankTopology) NumFlatBanks() uint64 {
	return t.cfg.NumFlatBanks()
}

// Config returns the organisation this topology was built from.
func (t *BankTopology) Config() Config {
	return t.cfg
}
