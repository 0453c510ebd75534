package service

import (
	"math"
	"sort"
)

// logitSumLimit is the score total above which outputs cannot be probabilities.
const logitSumLimit = 1.2

// LooksLikeLogits reports whether scores are unnormalized: any negative
// value, or a total above logitSumLimit.
func LooksLikeLogits(scores []float64) bool {
	var sum float64
	for _, s := range scores {
		if s < 0 {
			return true
		}
		sum += s
	}
	return sum > logitSumLimit
}

// Softmax converts logits to probabilities. A zero denominator yields all
// zeros.
func Softmax(scores []float64) []float64 {
	probs := make([]float64, len(scores))
	if len(scores) == 0 {
		return probs
	}
	maxScore := scores[0]
	for _, s := range scores[1:] {
		maxScore = math.Max(maxScore, s)
	}
	var sum float64
	for i, s := range scores {
		probs[i] = math.Exp(s - maxScore)
		sum += probs[i]
	}
	if sum == 0 {
		clear(probs)
		return probs
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// Postprocess pairs scores with labels by index, drops confidences below
// threshold and returns at most MaxResults entries, best first. Scores or
// labels past the shorter of the two are ignored.
func Postprocess(raw []float32, labels LabelSet, threshold float64) []Result {
	scores := make([]float64, len(raw))
	for i, v := range raw {
		scores[i] = float64(v)
	}
	if LooksLikeLogits(scores) {
		scores = Softmax(scores)
	}

	n := min(len(scores), len(labels))
	items := make([]Result, 0, n)
	for i := range n {
		if scores[i] < threshold {
			continue
		}
		items = append(items, Result{Label: labels[i], Confidence: scores[i]})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Confidence > items[j].Confidence
	})
	if len(items) > MaxResults {
		items = items[:MaxResults]
	}
	return items
}
