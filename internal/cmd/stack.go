package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/3leaps/goconflux/internal/config"
	"github.com/3leaps/goconflux/pkg/analytics"
	"github.com/3leaps/goconflux/pkg/enrich"
	"github.com/3leaps/goconflux/pkg/ingest"
	"github.com/3leaps/goconflux/pkg/jobtracker"
	"github.com/3leaps/goconflux/pkg/reader"
	"github.com/3leaps/goconflux/pkg/searchidx"
	"github.com/3leaps/goconflux/pkg/source"
	"github.com/3leaps/goconflux/pkg/storesync"
	"github.com/3leaps/goconflux/pkg/ticketstore"
)

// appStack is the assembled ingestion pipeline shared by serve and the
// direct-ingest CLI path.
type appStack struct {
	db      *sql.DB
	tracker *jobtracker.Tracker
	sync    *storesync.Synchronizer
	runner  *ingest.Runner
	sinks   []storesync.Sink

	analytics *analytics.Writer
	search    *searchidx.Indexer
}

// buildStack opens the relational store, connects the enabled secondary
// stores, and wires the pipeline components together.
func buildStack(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*appStack, error) {
	db, err := ticketstore.Open(ctx, ticketstore.Config{Path: cfg.Stores.Relational.Path})
	if err != nil {
		return nil, fmt.Errorf("open relational store: %w", err)
	}
	if err := ticketstore.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate relational store: %w", err)
	}

	st := &appStack{db: db}

	if cfg.Stores.Analytics.Enabled {
		w, err := analytics.New(ctx, analytics.Config{
			Addr:     cfg.Stores.Analytics.Addr,
			Database: cfg.Stores.Analytics.Database,
			Username: cfg.Stores.Analytics.Username,
			Password: cfg.Stores.Analytics.Password,
			Timeout:  cfg.Stores.Analytics.Timeout,
		}, logger)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("connect analytics store: %w", err)
		}
		st.analytics = w
		st.sinks = append(st.sinks, w)
	}

	if cfg.Stores.Search.Enabled {
		idx, err := searchidx.New(ctx, searchidx.Config{
			URL:     cfg.Stores.Search.URL,
			Index:   cfg.Stores.Search.Index,
			Timeout: cfg.Stores.Search.Timeout,
		}, logger)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("connect search index: %w", err)
		}
		st.search = idx
		st.sinks = append(st.sinks, idx)
	}

	st.tracker = jobtracker.New(db, logger)
	st.sync = storesync.New(db, st.sinks, logger)

	ml := enrich.NewClient(enrich.ClientConfig{
		BaseURL:     cfg.Enrichment.BaseURL,
		Timeout:     cfg.Enrichment.Timeout,
		MaxRetries:  cfg.Enrichment.MaxRetries,
		MaxTextLen:  cfg.Enrichment.MaxTextLen,
		RateLimit:   cfg.Enrichment.RateLimit,
		EntityLimit: cfg.Enrichment.EntityLimit,
	})

	st.runner = ingest.NewRunner(st.tracker, st.sync, ml, reader.Options{
		ChunkSize:      cfg.Ingest.ChunkSize,
		MaxJSONRecords: cfg.Ingest.MaxJSONRecords,
		SpoolDir:       cfg.Ingest.UploadDir,
	}, logger)

	return st, nil
}

// Close releases all store connections, best effort.
func (s *appStack) Close() {
	if s.analytics != nil {
		_ = s.analytics.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

func s3OptionsFromConfig(cfg *config.Config) source.S3Options {
	return source.S3Options{
		Region:          cfg.Sources.S3.Region,
		Endpoint:        cfg.Sources.S3.Endpoint,
		Profile:         cfg.Sources.S3.Profile,
		AccessKeyID:     cfg.Sources.S3.AccessKeyID,
		SecretAccessKey: cfg.Sources.S3.SecretAccessKey,
		ForcePathStyle:  cfg.Sources.S3.ForcePathStyle,
	}
}
