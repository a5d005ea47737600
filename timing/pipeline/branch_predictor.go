package pipeline

// BranchPredictorStats holds statistics for the branch predictor.
type BranchPredictorStats struct {
	// Predictions is the total number of control instructions resolved.
	Predictions uint64
	// Correct is the number of correct predictions.
	Correct uint64
	// Mispredictions is the number of incorrect predictions. Each costs the
	// redirect penalty.
	Mispredictions uint64
}

// Accuracy returns the prediction accuracy as a percentage.
func (s BranchPredictorStats) Accuracy() float64 {
	if s.Predictions == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Predictions) * 100
}

// MispredictionRate returns the misprediction rate as a percentage.
func (s BranchPredictorStats) MispredictionRate() float64 {
	if s.Predictions == 0 {
		return 0
	}
	return float64(s.Mispredictions) / float64(s.Predictions) * 100
}

// Prediction represents a branch prediction result.
type Prediction struct {
	// Taken indicates whether the branch is predicted to be taken.
	Taken bool
	// Target is the predicted address of the next instruction.
	Target uint32
}

// BranchPredictor is a static predict-not-taken predictor. Fetch always
// continues at pc+4; the predictor only keeps score.
type BranchPredictor struct {
	stats BranchPredictorStats
}

// NewBranchPredictor creates a new branch predictor.
func NewBranchPredictor() *BranchPredictor {
	return &BranchPredictor{}
}

// Predict returns the prediction for the control instruction at pc.
func (bp *BranchPredictor) Predict(pc uint32) Prediction {
	return Prediction{Taken: false, Target: pc + 4}
}

// Update records the resolved outcome of the control instruction at pc and
// reports whether it was mispredicted. Every taken transfer is a
// misprediction, including one whose target is pc+4.
func (bp *BranchPredictor) Update(pc uint32, taken bool) bool {
	pred := bp.Predict(pc)
	bp.stats.Predictions++

	if pred.Taken == taken {
		bp.stats.Correct++
		return false
	}
	bp.stats.Mispredictions++
	return true
}

// Stats returns the predictor statistics.
func (bp *BranchPredictor) Stats() BranchPredictorStats {
	return bp.stats
}

// Reset clears the statistics.
func (bp *BranchPredictor) Reset() {
	bp.stats = BranchPredictorStats{}
}
