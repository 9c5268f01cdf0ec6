// Package summary describes a finished build: counts, sizes, dedup savings
// and the warnings collected along the way.
package summary

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"git.home.luguber.info/inful/edgebundle/internal/assemble"
	"git.home.luguber.info/inful/edgebundle/internal/assets"
	"git.home.luguber.info/inful/edgebundle/internal/chunks"
	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
	"git.home.luguber.info/inful/edgebundle/internal/functions"
	"git.home.luguber.info/inful/edgebundle/internal/model"
	"git.home.luguber.info/inful/edgebundle/internal/routes"
)

// FileName is the summary file written into the output directory.
const FileName = "build-summary.json"

// Summary is the build summary document.
type Summary struct {
	BuildID        string             `json:"build_id"`
	Version        string             `json:"version"`
	GeneratedAt    time.Time          `json:"generated_at"`
	SourceRevision string             `json:"source_revision,omitempty"`
	Assets         AssetStats         `json:"assets"`
	Functions      FunctionStats      `json:"functions"`
	Chunks         ChunkStats         `json:"chunks"`
	Routes         RouteStats         `json:"routes"`
	Bundle         BundleStats        `json:"bundle"`
	Warnings       []Warning          `json:"warnings"`
	StageDurations map[string]float64 `json:"stage_durations_ms"`
}

type AssetStats struct {
	Count int   `json:"count"`
	Bytes int64 `json:"bytes"`
}

type FunctionStats struct {
	Edge        int `json:"edge"`
	Prerendered int `json:"prerendered"`
	Unsupported int `json:"unsupported"`
}

type ChunkStats struct {
	Count        int   `json:"count"`
	Bytes        int64 `json:"bytes"`
	BytesSaved   int64 `json:"bytes_saved"`
	DedupEnabled bool  `json:"dedup_enabled"`
}

type RouteStats struct {
	Entries     int `json:"entries"`
	Unreachable int `json:"unreachable"`
}

type BundleStats struct {
	Files     int   `json:"files"`
	Bytes     int64 `json:"bytes"`
	GzipBytes int64 `json:"gzip_bytes"`
	Minified  int   `json:"minified"`
}

// Warning is a recoverable problem surfaced to the user.
type Warning struct {
	Code     string `json:"code"`
	Function string `json:"function,omitempty"`
	Path     string `json:"path,omitempty"`
	Message  string `json:"message"`
}

// WarningFrom converts a classified warning.
func WarningFrom(e *errors.ClassifiedError) Warning {
	w := Warning{Code: string(e.Category()), Function: e.Function(), Path: e.Path(), Message: e.Message()}
	if e.Cause() != nil {
		w.Message += ": " + e.Cause().Error()
	}
	return w
}

// Input collects the stage results the summary is derived from.
type Input struct {
	Version        string
	SourceRevision string
	Manifest       *assets.Manifest
	Functions      *functions.Result
	Dedup          *chunks.Result
	DedupEnabled   bool
	Table          *routes.Table
	Bundle         *assemble.Bundle
	Warnings       []*errors.ClassifiedError
	StageDurations map[string]time.Duration
	Now            func() time.Time
}

// Build derives the summary. Bundle files are read to measure their gzip size.
func Build(in Input) (*Summary, error) {
	now := time.Now
	if in.Now != nil {
		now = in.Now
	}
	s := &Summary{
		BuildID:        uuid.NewString(),
		Version:        in.Version,
		GeneratedAt:    now().UTC(),
		SourceRevision: in.SourceRevision,
		Assets:         AssetStats{Count: in.Manifest.Len(), Bytes: in.Manifest.TotalBytes()},
		Functions: FunctionStats{
			Edge:        in.Functions.Count(model.RuntimeEdge),
			Prerendered: in.Functions.Count(model.RuntimePrerendered),
			Unsupported: in.Functions.Count(model.RuntimeUnsupported),
		},
		Chunks: ChunkStats{
			Count:        in.Dedup.Chunks.Len(),
			Bytes:        in.Dedup.Chunks.TotalBytes(),
			BytesSaved:   in.Dedup.BytesSaved,
			DedupEnabled: in.DedupEnabled,
		},
		Routes:         RouteStats{Entries: len(in.Table.Entries), Unreachable: in.Table.Unreachable()},
		Warnings:       []Warning{},
		StageDurations: map[string]float64{},
	}
	for _, w := range in.Warnings {
		s.Warnings = append(s.Warnings, WarningFrom(w))
	}
	sort.SliceStable(s.Warnings, func(i, j int) bool { return s.Warnings[i].Code < s.Warnings[j].Code })
	for stage, d := range in.StageDurations {
		s.StageDurations[stage] = float64(d.Microseconds()) / 1000
	}

	if in.Bundle != nil {
		gz, err := GzipSize(in.Bundle.Dir, in.Bundle.Files)
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryFileSystem, "measure bundle size").Fatal().Build()
		}
		s.Bundle = BundleStats{
			Files:     len(in.Bundle.Files),
			Bytes:     in.Bundle.Bytes(),
			GzipBytes: gz,
			Minified:  in.Bundle.Minified,
		}
	}
	return s, nil
}

type countingWriter struct{ n int64 }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

// GzipSize sums the gzip-compressed size of each file, compressed individually
// as a CDN would serve it.
func GzipSize(dir string, files []assemble.File) (int64, error) {
	var total int64
	for _, f := range files {
		n, err := gzipFile(filepath.Join(dir, filepath.FromSlash(f.Path)))
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func gzipFile(path string) (int64, error) {
	in, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = in.Close() }()

	cw := &countingWriter{}
	zw, err := gzip.NewWriterLevel(cw, gzip.BestCompression)
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(zw, in); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	return cw.n, nil
}

// Write stores s as indented JSON in dir.
func Write(dir string, s *Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "encode build summary").Fatal().Build()
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "write build summary").
			Fatal().WithContext("path", path).Build()
	}
	return nil
}

// Read loads a summary written by Write.
func Read(dir string) (*Summary, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
