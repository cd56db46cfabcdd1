package plugin_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/mithrilplus/memctl/mscache"
	"github.com/mithrilplus/memctl/plugin"
	"github.com/mithrilplus/memctl/signal"
	"github.com/mithrilplus/memctl/stats"
	"github.com/mithrilplus/memctl/topology"
	"github.com/mithrilplus/memctl/tracker"
)

func TestPlugin(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Plugin Suite")
}

type capturingSender struct {
	reqs []signal.Request
}

func (s *capturingSender) Send(req signal.Request) {
	s.reqs = append(s.reqs, req)
}

var fullCommandIDs = map[signal.Command]int{
	signal.ACT: 0,
	signal.RD:  1,
	signal.WR:  2,
	signal.PRE: 3,
	signal.RDA: 4,
	signal.WRA: 5,
	signal.VRR: 6,
}

var fullRequestIDs = map[signal.RequestKind]int{
	signal.Write:            0,
	signal.VictimRowRefresh: 1,
}

func oneBankTopology() *topology.BankTopology {
	topo, err := topology.New(topology.Config{NumRanks: 1, NumBank: 1})
	Expect(err).NotTo(HaveOccurred())
	return topo
}

var _ = Describe("Host builder", func() {
	It("rejects a command table missing VRR", func() {
		ids := map[signal.Command]int{signal.ACT: 0, signal.RD: 1, signal.WR: 2, signal.PRE: 3, signal.RDA: 4, signal.WRA: 5}
		_, err := plugin.MakeBuilder().
			WithTopology(oneBankTopology()).
			WithCommandIDs(ids).
			WithRequestIDs(fullRequestIDs).
			Build("Bad")
		Expect(err).To(HaveOccurred())
	})

	It("rejects a missing topology", func() {
		_, err := plugin.MakeBuilder().
			WithCommandIDs(fullCommandIDs).
			WithRequestIDs(fullRequestIDs).
			Build("Bad")
		Expect(err).To(HaveOccurred())
	})

	It("rejects a request table missing write-back when a cache is driven", func() {
		_, err := plugin.MakeBuilder().
			WithMode(plugin.CacheOnly).
			WithTopology(oneBankTopology()).
			WithCommandIDs(fullCommandIDs).
			WithRequestIDs(map[signal.RequestKind]int{signal.VictimRowRefresh: 1}).
			Build("Bad")
		Expect(err).To(HaveOccurred())
	})
})

// spec.md §8 scenario 4, full combined-plugin control flow.
var _ = Describe("Combined plugin (scenario 4)", func() {
	It("counts exactly one activation for ACT, RD, RD(hit), PRE", func() {
		sender := &capturingSender{}

		host, err := plugin.MakeBuilder().
			WithMode(plugin.Combined).
			WithTopology(oneBankTopology()).
			WithNumBanks(1).
			WithTrackerConfig(tracker.Config{NTable: 4, AdaptiveThreshold: 3, RFMThreshold: 5}).
			WithCacheConfig(mscache.Config{
				NumLines: 2, Associativity: 1, ColSize: 8,
				WriteBackEnabled: true, DrainPolicy: mscache.DrainImmediate,
			}).
			WithSender(sender).
			WithCommandIDs(fullCommandIDs).
			WithRequestIDs(fullRequestIDs).
			Build("Host")
		Expect(err).NotTo(HaveOccurred())

		host.HandleCycle(true, fullCommandIDs[signal.ACT], topology.AddrVec{Row: 7})
		host.HandleCycle(true, fullCommandIDs[signal.RD], topology.AddrVec{Row: 7, Column: 0})
		host.HandleCycle(true, fullCommandIDs[signal.RD], topology.AddrVec{Row: 7, Column: 0})
		host.HandleCycle(true, fullCommandIDs[signal.PRE], topology.AddrVec{Row: 7})

		snap := host.Snapshot()
		Expect(snap[0].NumTracked).To(Equal(1))
		Expect(sender.reqs).To(BeEmpty())
	})

	It("ignores a not-found request", func() {
		sender := &capturingSender{}

		host, err := plugin.MakeBuilder().
			WithTopology(oneBankTopology()).
			WithSender(sender).
			WithCommandIDs(fullCommandIDs).
			WithRequestIDs(fullRequestIDs).
			Build("Host")
		Expect(err).NotTo(HaveOccurred())

		host.HandleCycle(false, fullCommandIDs[signal.ACT], topology.AddrVec{Row: 7})

		snap := host.Snapshot()
		Expect(snap[0].NumTracked).To(Equal(0))
	})
})

var _ = Describe("Cache-only plugin", func() {
	It("emits a write-back request and records it in stats", func() {
		sender := &capturingSender{}
		rec := stats.NewMemRecorder()

		host, err := plugin.MakeBuilder().
			WithMode(plugin.CacheOnly).
			WithTopology(oneBankTopology()).
			WithCacheConfig(mscache.Config{
				NumLines: 2, Associativity: 1, ColSize: 2,
				WriteBackEnabled: true, DrainPolicy: mscache.DrainImmediate,
			}).
			WithSender(sender).
			WithRecorder(rec).
			WithCommandIDs(fullCommandIDs).
			WithRequestIDs(fullRequestIDs).
			Build("Host")
		Expect(err).NotTo(HaveOccurred())

		host.HandleCycle(true, fullCommandIDs[signal.ACT], topology.AddrVec{Row: 7})
		host.HandleCycle(true, fullCommandIDs[signal.WR], topology.AddrVec{Row: 7, Column: 0})
		host.HandleCycle(true, fullCommandIDs[signal.PRE], topology.AddrVec{Row: 7})
		Expect(sender.reqs).To(BeEmpty())

		// Row 9's line maps to the same set and evicts row 7's dirty line,
		// which the next PRE drains as one write-back.
		host.HandleCycle(true, fullCommandIDs[signal.ACT], topology.AddrVec{Row: 9})
		host.HandleCycle(true, fullCommandIDs[signal.WR], topology.AddrVec{Row: 9, Column: 0})
		host.HandleCycle(true, fullCommandIDs[signal.PRE], topology.AddrVec{Row: 9})

		Expect(sender.reqs).To(HaveLen(1))
		Expect(sender.reqs[0].Kind).To(Equal(signal.Write))
		Expect(sender.reqs[0].KindID).To(Equal(fullRequestIDs[signal.Write]))
		Expect(sender.reqs[0].Row).To(Equal(signal.RowID(7)))
		Expect(rec.Snapshot().TotalWritebackRequests).To(Equal(1))
	})
})

var _ = Describe("Tracker-only plugin", func() {
	It("emits a VRR stamped with the request table's id", func() {
		sender := &capturingSender{}

		host, err := plugin.MakeBuilder().
			WithMode(plugin.TrackerOnly).
			WithTopology(oneBankTopology()).
			WithTrackerConfig(tracker.Config{NTable: 4, AdaptiveThreshold: 3, RFMThreshold: 5}).
			WithSender(sender).
			WithCommandIDs(fullCommandIDs).
			WithRequestIDs(fullRequestIDs).
			Build("Host")
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 5; i++ {
			host.HandleCycle(true, fullCommandIDs[signal.ACT], topology.AddrVec{Row: 10})
		}

		Expect(sender.reqs).To(HaveLen(1))
		Expect(sender.reqs[0].Kind).To(Equal(signal.VictimRowRefresh))
		Expect(sender.reqs[0].KindID).To(Equal(fullRequestIDs[signal.VictimRowRefresh]))
		Expect(sender.reqs[0].Row).To(Equal(signal.RowID(10)))
	})

	It("never calls the outbound sender for a row that never drifts past threshold", func() {
		ctrl := gomock.NewController(GinkgoT())
		defer ctrl.Finish()

		sender := NewMockSender(ctrl)
		sender.EXPECT().Send(gomock.Any()).Times(0)

		host, err := plugin.MakeBuilder().
			WithMode(plugin.TrackerOnly).
			WithTopology(oneBankTopology()).
			WithTrackerConfig(tracker.Config{NTable: 4, AdaptiveThreshold: 100, RFMThreshold: 5}).
			WithSender(sender).
			WithCommandIDs(fullCommandIDs).
			WithRequestIDs(fullRequestIDs).
			Build("Host")
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 5; i++ {
			host.HandleCycle(true, fullCommandIDs[signal.ACT], topology.AddrVec{Row: 10})
		}
	})
})
