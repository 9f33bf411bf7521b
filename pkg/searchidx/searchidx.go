// Package searchidx mirrors enriched records into an Elasticsearch-compatible
// index for full-text search. Indexing is best-effort: an unreachable cluster
// degrades search freshness, never ingestion.
package searchidx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/3leaps/goconflux/pkg/storesync"
)

// DefaultIndex is the index name used when none is configured.
const DefaultIndex = "tickets"

// DefaultTimeout bounds each indexing call when none is configured.
const DefaultTimeout = 5 * time.Second

// Config connects the search indexer.
type Config struct {
	URL     string
	Index   string
	Timeout time.Duration
}

// Indexer upserts one document per record, id-keyed so re-ingestion
// overwrites in place.
type Indexer struct {
	es      *elasticsearch.Client
	index   string
	timeout time.Duration
	logger  *zap.Logger
}

var _ storesync.Sink = (*Indexer)(nil)

// document is the search-facing shape of a record.
type document struct {
	RecordID          string    `json:"record_id"`
	Summary           string    `json:"summary"`
	Description       string    `json:"description"`
	OverallSentiment  string    `json:"overall_sentiment"`
	OverallConfidence float64   `json:"overall_confidence"`
	SentimentTrend    string    `json:"sentiment_trend"`
	CommentCount      int       `json:"comment_count"`
	Entities          []entity  `json:"entities"`
	JobID             string    `json:"job_id"`
	IndexedAt         time.Time `json:"indexed_at"`
}

type entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// New builds an Indexer and ensures the index exists.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Indexer, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Index == "" {
		cfg.Index = DefaultIndex
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
	})
	if err != nil {
		return nil, fmt.Errorf("build search client: %w", err)
	}

	idx := &Indexer{es: es, index: cfg.Index, timeout: cfg.Timeout, logger: logger}
	if err := idx.ensureIndex(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (i *Indexer) ensureIndex(ctx context.Context) error {
	exists, err := esapi.IndicesExistsRequest{Index: []string{i.index}}.Do(ctx, i.es)
	if err != nil {
		return fmt.Errorf("check search index: %w", err)
	}
	defer drain(exists)
	if exists.StatusCode == 200 {
		return nil
	}

	mapping := map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"record_id":          map[string]any{"type": "keyword"},
				"summary":            map[string]any{"type": "text"},
				"description":        map[string]any{"type": "text"},
				"overall_sentiment":  map[string]any{"type": "keyword"},
				"overall_confidence": map[string]any{"type": "float"},
				"sentiment_trend":    map[string]any{"type": "keyword"},
				"comment_count":      map[string]any{"type": "integer"},
				"entities": map[string]any{
					"type": "nested",
					"properties": map[string]any{
						"text":  map[string]any{"type": "keyword"},
						"label": map[string]any{"type": "keyword"},
						"start": map[string]any{"type": "integer"},
						"end":   map[string]any{"type": "integer"},
					},
				},
			},
		},
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("encode index mapping: %w", err)
	}

	res, err := esapi.IndicesCreateRequest{
		Index: i.index,
		Body:  bytes.NewReader(body),
	}.Do(ctx, i.es)
	if err != nil {
		return fmt.Errorf("create search index: %w", err)
	}
	defer drain(res)

	// Concurrent startup can race the existence check.
	if res.IsError() && res.StatusCode != 400 {
		return fmt.Errorf("create search index: %s", res.Status())
	}
	return nil
}

func (i *Indexer) Name() string { return "search" }

// Write indexes the record, keyed by record id. Each call is bounded by the
// configured timeout so a stalled cluster cannot hold up ingestion.
func (i *Indexer) Write(ctx context.Context, jobID string, rec *storesync.EnrichedRecord) error {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	doc := document{
		RecordID:          rec.RecordID,
		Summary:           rec.Summary,
		Description:       rec.Description,
		OverallSentiment:  rec.Rollup.Label,
		OverallConfidence: rec.Rollup.Confidence,
		SentimentTrend:    rec.Rollup.Trend,
		JobID:             jobID,
		IndexedAt:         time.Now().UTC(),
	}
	for _, f := range rec.Fields {
		if f.CommentNumber > 0 {
			doc.CommentCount++
		}
		for _, e := range f.Entities {
			doc.Entities = append(doc.Entities, entity{Text: e.Text, Label: e.Label, Start: e.Start, End: e.End})
		}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode search document %s: %w", rec.RecordID, err)
	}

	res, err := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: rec.RecordID,
		Body:       bytes.NewReader(body),
	}.Do(ctx, i.es)
	if err != nil {
		return fmt.Errorf("index record %s: %w", rec.RecordID, err)
	}
	defer drain(res)

	if res.IsError() {
		return fmt.Errorf("index record %s: %s", rec.RecordID, res.Status())
	}
	return nil
}

// CheckHealth pings the search cluster.
func (i *Indexer) CheckHealth(ctx context.Context) error {
	res, err := esapi.PingRequest{}.Do(ctx, i.es)
	if err != nil {
		return fmt.Errorf("ping search cluster: %w", err)
	}
	drain(res)
	if res.IsError() {
		return fmt.Errorf("ping search cluster: %s", res.Status())
	}
	return nil
}

func drain(res *esapi.Response) {
	if res != nil && res.Body != nil {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}
}
