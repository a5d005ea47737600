package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/softcore/timing/pipeline"
)

var _ = Describe("BranchPredictor", func() {
	var bp *pipeline.BranchPredictor

	BeforeEach(func() {
		bp = pipeline.NewBranchPredictor()
	})

	It("should always predict the fall-through", func() {
		pred := bp.Predict(0x1000)
		Expect(pred.Taken).To(BeFalse())
		Expect(pred.Target).To(Equal(uint32(0x1004)))
	})

	It("should not learn", func() {
		for i := 0; i < 10; i++ {
			bp.Update(0x1000, true)
		}
		Expect(bp.Predict(0x1000).Taken).To(BeFalse())
	})

	It("should count taken branches as mispredictions", func() {
		Expect(bp.Update(0x1000, true)).To(BeTrue())
		Expect(bp.Update(0x1000, false)).To(BeFalse())
		Expect(bp.Update(0x1000, false)).To(BeFalse())

		stats := bp.Stats()
		Expect(stats.Predictions).To(Equal(uint64(3)))
		Expect(stats.Correct).To(Equal(uint64(2)))
		Expect(stats.Mispredictions).To(Equal(uint64(1)))
		Expect(stats.Accuracy()).To(BeNumerically("~", 66.67, 0.01))
		Expect(stats.MispredictionRate()).To(BeNumerically("~", 33.33, 0.01))
	})

	It("should count a taken branch to the next instruction as a misprediction", func() {
		Expect(bp.Update(0x1000, true)).To(BeTrue())
		Expect(bp.Stats().Mispredictions).To(Equal(uint64(1)))
	})

	It("should clear statistics on reset", func() {
		bp.Update(0x1000, true)
		bp.Reset()
		Expect(bp.Stats()).To(Equal(pipeline.BranchPredictorStats{}))
		Expect(bp.Stats().Accuracy()).To(BeZero())
	})
})
