package stats_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mithrilplus/memctl/stats"
)

func TestStats(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Stats Suite")
}

var _ = Describe("MemRecorder", func() {
	It("counts write-backs and miss kinds independently", func() {
		r := stats.NewMemRecorder()
		r.Init()

		r.RecordWriteback(0, 7, 0)
		r.RecordWriteback(0, 7, 1)
		r.RecordMiss(stats.MissRead)
		r.RecordMiss(stats.MissWrite)
		r.RecordMiss(stats.MissWrite)
		r.RecordMiss(stats.MissMix)

		counts := r.Snapshot()
		Expect(counts.TotalWritebackRequests).To(Equal(2))
		Expect(counts.MissReads).To(Equal(1))
		Expect(counts.MissWrites).To(Equal(2))
		Expect(counts.MissMixes).To(Equal(1))
	})

	It("names miss kinds per the statistics table", func() {
		Expect(stats.MissRead.Name()).To(Equal("Total ACTs due to read"))
		Expect(stats.MissWrite.Name()).To(Equal("Total ACTs due to write"))
		Expect(stats.MissMix.Name()).To(Equal("Total ACTs due to mix of read/write"))
	})
})
