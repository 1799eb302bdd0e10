package scoring

import "math"

// CandidateScore is the composite result for one candidate.
type CandidateScore struct {
	PatentID        string          `json:"patent_id"`
	Dimensions      DimensionScores `json:"dimensions"`
	Raw             float64         `json:"raw"`
	Composite       float64         `json:"composite"`
	Generation      int             `json:"generation"`
	DepthMultiplier float64         `json:"depth_multiplier"`
	Completeness    float64         `json:"completeness"`
}

// DepthMultiplier is 1/(1 + decay*generation).
func DepthMultiplier(decay float64, generation int) float64 {
	if generation < 0 {
		generation = 0
	}
	return 1 / (1 + decay*float64(generation))
}

// Combine folds dimension scores into a 0..100 composite. Dimensions without
// data are excluded from both the weighted sum and the weight total. It is
// deterministic and has no side effects, which is what makes rescoring cheap.
func Combine(patentID string, dims DimensionScores, w ScoringWeights, generation int) CandidateScore {
	var num, den float64
	for _, dim := range AllDimensions {
		v, ok := dims.Get(dim)
		if !ok {
			continue
		}
		wt := w.Weight(dim)
		num += wt * v
		den += wt
	}
	raw := 0.0
	if den > 0 {
		raw = num / den
	}
	mult := DepthMultiplier(w.DepthDecay, generation)
	final := math.Min(100, math.Max(0, raw*mult*100))

	return CandidateScore{
		PatentID:        patentID,
		Dimensions:      dims,
		Raw:             raw,
		Composite:       final,
		Generation:      generation,
		DepthMultiplier: mult,
		Completeness:    dims.Completeness(),
	}
}
