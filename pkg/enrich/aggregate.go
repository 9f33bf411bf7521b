package enrich

import "math"

// Trend values for a record's sentiment trajectory.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// FieldSentiment is one scored field in chronological order
// (summary, description, then comments by comment number).
type FieldSentiment struct {
	Label         string
	Confidence    float64
	CommentNumber int
}

// Rollup is the record-level sentiment derived from its fields.
type Rollup struct {
	Label      string
	Confidence float64
	Trend      string
}

// Aggregate computes the record-level sentiment with a recency-weighted
// vote: the last five results carry linearly increasing weights, each scaled
// by its confidence. Scores above +0.2 read positive, below -0.2 negative.
// The input must be in chronological order.
func Aggregate(sentiments []FieldSentiment) Rollup {
	if len(sentiments) == 0 {
		return Rollup{Label: LabelNeutral, Confidence: 0.5, Trend: TrendStable}
	}

	recent := sentiments
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}

	var weightedScore, weightedConfidence, totalWeight float64
	for i, s := range recent {
		w := float64(i + 1)
		weightedScore += score(s.Label) * w * s.Confidence
		weightedConfidence += s.Confidence * w
		totalWeight += w
	}

	avgScore := weightedScore / totalWeight
	label := LabelNeutral
	switch {
	case avgScore > 0.2:
		label = LabelPositive
	case avgScore < -0.2:
		label = LabelNegative
	}

	return Rollup{
		Label:      label,
		Confidence: round3(weightedConfidence / totalWeight),
		Trend:      trend(sentiments),
	}
}

// trend compares the average score of the first half against the second
// half; a swing beyond 0.3 in either direction counts as a trajectory.
func trend(sentiments []FieldSentiment) string {
	if len(sentiments) < 2 {
		return TrendStable
	}

	mid := len(sentiments) / 2
	firstAvg := avgScore(sentiments[:mid])
	secondAvg := avgScore(sentiments[mid:])

	switch {
	case secondAvg > firstAvg+0.3:
		return TrendImproving
	case secondAvg < firstAvg-0.3:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func avgScore(sentiments []FieldSentiment) float64 {
	if len(sentiments) == 0 {
		return 0.0
	}
	var sum float64
	for _, s := range sentiments {
		sum += score(s.Label)
	}
	return sum / float64(len(sentiments))
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
