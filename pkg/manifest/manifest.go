// Package manifest loads ingestion manifests: declarative descriptions of
// one or more sources to submit as jobs from the CLI.
package manifest

import (
	"fmt"
	"strings"
)

// SupportedVersion is the only manifest schema version this build accepts.
const SupportedVersion = "1.0"

// Manifest describes a batch of ingestion submissions.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	// Sources lists the submissions, one job each.
	Sources []SourceEntry `json:"sources" yaml:"sources"`

	// Options tunes ingestion for every source in this manifest.
	Options *IngestOptions `json:"options,omitempty" yaml:"options,omitempty"`
}

// SourceEntry is one submission.
type SourceEntry struct {
	// Kind is the submission shape: csv, json, or parquet.
	Kind string `json:"kind" yaml:"kind"`

	// URI is a local path, file: path, or s3://bucket/key.
	URI string `json:"uri" yaml:"uri"`

	// Label overrides the display name on the job record. Optional.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`

	// S3 configures access for s3:// URIs. Optional.
	S3 *S3Entry `json:"s3,omitempty" yaml:"s3,omitempty"`
}

// S3Entry mirrors the source package's S3 options.
type S3Entry struct {
	Region         string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint       string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Profile        string `json:"profile,omitempty" yaml:"profile,omitempty"`
	ForcePathStyle bool   `json:"force_path_style,omitempty" yaml:"force_path_style,omitempty"`
}

// IngestOptions tunes the pipeline for this manifest's jobs.
type IngestOptions struct {
	// ChunkSize overrides the records-per-chunk default.
	ChunkSize int `json:"chunk_size,omitempty" yaml:"chunk_size,omitempty"`
}

var validKinds = map[string]bool{"csv": true, "json": true, "parquet": true}

// Validate checks structural requirements and applies no defaults.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.Version) == "" {
		return fmt.Errorf("manifest version is required (expected %q)", SupportedVersion)
	}
	if m.Version != SupportedVersion {
		return fmt.Errorf("unsupported manifest version %q (expected %q)", m.Version, SupportedVersion)
	}
	if len(m.Sources) == 0 {
		return fmt.Errorf("manifest has no sources")
	}

	for i, s := range m.Sources {
		if !validKinds[strings.ToLower(strings.TrimSpace(s.Kind))] {
			return fmt.Errorf("source %d: unsupported kind %q (csv, json, or parquet)", i, s.Kind)
		}
		if strings.TrimSpace(s.URI) == "" {
			return fmt.Errorf("source %d: uri is required", i)
		}
	}

	if m.Options != nil && m.Options.ChunkSize < 0 {
		return fmt.Errorf("options.chunk_size must not be negative")
	}
	return nil
}
