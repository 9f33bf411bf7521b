package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregateEmpty(t *testing.T) {
	r := Aggregate(nil)
	assert.Equal(t, LabelNeutral, r.Label)
	assert.Equal(t, 0.5, r.Confidence)
	assert.Equal(t, TrendStable, r.Trend)
}

func TestAggregateRecentCommentsDominate(t *testing.T) {
	// Old negativity followed by strong recent positives.
	sentiments := []FieldSentiment{
		{Label: LabelNegative, Confidence: 0.9},
		{Label: LabelNegative, Confidence: 0.9},
		{Label: LabelPositive, Confidence: 0.9},
		{Label: LabelPositive, Confidence: 0.9},
		{Label: LabelPositive, Confidence: 0.9},
		{Label: LabelPositive, Confidence: 0.9},
	}

	r := Aggregate(sentiments)
	assert.Equal(t, LabelPositive, r.Label)
	assert.Equal(t, TrendImproving, r.Trend)
}

func TestAggregateOnlyLastFiveCount(t *testing.T) {
	sentiments := make([]FieldSentiment, 0, 25)
	for i := 0; i < 20; i++ {
		sentiments = append(sentiments, FieldSentiment{Label: LabelPositive, Confidence: 1.0})
	}
	for i := 0; i < 5; i++ {
		sentiments = append(sentiments, FieldSentiment{Label: LabelNegative, Confidence: 1.0})
	}

	r := Aggregate(sentiments)
	assert.Equal(t, LabelNegative, r.Label)
	assert.Equal(t, TrendDeclining, r.Trend)
}

func TestAggregateLowScoreReadsNeutral(t *testing.T) {
	// Weighted score lands at zero: (1*1*0.3 + -1*2*0.15) / 3.
	sentiments := []FieldSentiment{
		{Label: LabelPositive, Confidence: 0.3},
		{Label: LabelNegative, Confidence: 0.15},
	}

	r := Aggregate(sentiments)
	assert.Equal(t, LabelNeutral, r.Label)
}

func TestAggregateSingleResult(t *testing.T) {
	r := Aggregate([]FieldSentiment{{Label: LabelNegative, Confidence: 0.7}})
	assert.Equal(t, LabelNegative, r.Label)
	assert.Equal(t, 0.7, r.Confidence)
	assert.Equal(t, TrendStable, r.Trend)
}

func TestAggregateConfidenceIsWeightedAverage(t *testing.T) {
	// Weights 1 and 2 over confidences 0.6 and 0.9: (0.6 + 1.8) / 3 = 0.8.
	r := Aggregate([]FieldSentiment{
		{Label: LabelNeutral, Confidence: 0.6},
		{Label: LabelNeutral, Confidence: 0.9},
	})
	assert.InDelta(t, 0.8, r.Confidence, 1e-9)
}

func TestTrendStableWithinThreshold(t *testing.T) {
	sentiments := []FieldSentiment{
		{Label: LabelNeutral, Confidence: 0.5},
		{Label: LabelNeutral, Confidence: 0.5},
		{Label: LabelNeutral, Confidence: 0.5},
		{Label: LabelNeutral, Confidence: 0.5},
	}
	assert.Equal(t, TrendStable, Aggregate(sentiments).Trend)
}
