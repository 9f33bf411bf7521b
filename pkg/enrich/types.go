// Package enrich calls the external ML service for sentiment and entity
// analysis and rolls per-field results up to a record-level sentiment.
package enrich

// Sentiment labels returned by the ML service.
const (
	LabelPositive = "positive"
	LabelNeutral  = "neutral"
	LabelNegative = "negative"
)

// Sentiment is the classification of one text field.
type Sentiment struct {
	Label      string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
}

// Neutral is the sentinel used for empty text and for fields whose analysis
// could not complete. It is indistinguishable from a genuine neutral result
// on purpose: an unscored field must never fail its record.
func Neutral() Sentiment {
	return Sentiment{Label: LabelNeutral, Confidence: 0.5}
}

// Entity is one named entity extracted from a text field. Start and End are
// the character offsets of the span within the analyzed text.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// score maps a label onto the [-1, 1] axis used by the roll-up.
func score(label string) float64 {
	switch label {
	case LabelPositive:
		return 1.0
	case LabelNegative:
		return -1.0
	default:
		return 0.0
	}
}
