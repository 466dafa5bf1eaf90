package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arkiv-labs/arkiv/internal/archive"
	"github.com/arkiv-labs/arkiv/internal/core/domain"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driven"
	"github.com/arkiv-labs/arkiv/internal/logger"
)

// IndexBuilder turns an extracted archive into a detached index
// artifact. Malformed rows and unsupported files degrade to report
// warnings; only I/O and storage failures abort a build.
type IndexBuilder struct {
	decoders    driven.DecoderRegistry
	store       driven.IndexStore
	newEmbedder func() driven.Embedder
}

// NewIndexBuilder creates an index builder. newEmbedder may be nil to
// build keyword-only indexes.
func NewIndexBuilder(
	decoders driven.DecoderRegistry,
	store driven.IndexStore,
	newEmbedder func() driven.Embedder,
) *IndexBuilder {
	return &IndexBuilder{
		decoders:    decoders,
		store:       store,
		newEmbedder: newEmbedder,
	}
}

// Build parses the archive and writes a complete index artifact at
// stagingPath. On failure it returns a *domain.BuildError carrying the
// partial report; the staging artifact is the caller's to discard.
func (b *IndexBuilder) Build(
	ctx context.Context, datasetID, buildID, archiveDir, stagingPath string, fp domain.Fingerprint,
) (*domain.IndexManifest, error) {
	logger.Section("Index Build")
	logger.Debug("Dataset: %s, build: %s", datasetID, buildID)

	start := time.Now()
	var report domain.BuildReport

	fail := func(err error) (*domain.IndexManifest, error) {
		report.Duration = time.Since(start)
		return nil, &domain.BuildError{DatasetID: datasetID, Report: report, Err: err}
	}

	files, err := archive.Walk(archiveDir, archive.WalkOptions{})
	if err != nil {
		return fail(fmt.Errorf("walking archive: %w", err))
	}
	report.FileCount = len(files)
	logger.Debug("Archive files: %d", len(files))

	records, err := b.decodeAll(ctx, archiveDir, files, &report)
	if err != nil {
		return fail(err)
	}
	report.RecordCount = len(records)
	logger.Info("Parsed %d records from %d files (%d skipped, %d warnings)",
		report.RecordCount, report.FileCount, report.SkippedFiles, len(report.Warnings))

	embedder := b.prepareEmbedder(records, &report)

	writer, err := b.store.OpenWriter(stagingPath)
	if err != nil {
		return fail(fmt.Errorf("opening staging artifact: %w", err))
	}

	manifest, err := b.write(ctx, writer, records, embedder, &report, buildID, fp, start)
	if err != nil {
		writer.Close() //nolint:errcheck // already failing
		return fail(err)
	}

	if err := writer.Close(); err != nil {
		return fail(fmt.Errorf("finalising staging artifact: %w", err))
	}

	logger.Info("Build %s complete in %s", buildID, manifest.Report.Duration)
	return manifest, nil
}

// decodeAll reads and decodes every archive file, collecting records
// and downgrading per-file failures to warnings.
func (b *IndexBuilder) decodeAll(
	ctx context.Context, archiveDir string, files []archive.FileInfo, report *domain.BuildReport,
) ([]domain.Record, error) {
	var records []domain.Record
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := archive.ReadFile(archiveDir, f.Path)
		if err != nil {
			report.Warn(f.Path, 0, "unreadable: %v", err)
			continue
		}

		result, err := b.decoders.Decode(ctx, driven.ArchiveFile{
			Path:    f.Path,
			Size:    f.Size,
			ModTime: f.ModTime,
			Content: content,
		})
		if err != nil {
			if errors.Is(err, domain.ErrUnsupportedFile) {
				report.SkippedFiles++
				logger.Debug("Skipping unsupported file %s", f.Path)
				continue
			}
			report.Warn(f.Path, 0, "decode failed: %v", err)
			continue
		}

		records = append(records, result.Records...)
		report.Warnings = append(report.Warnings, result.Warnings...)
	}
	return records, nil
}

// prepareEmbedder builds the corpus vocabulary. A failed preparation
// degrades the index to keyword-only.
func (b *IndexBuilder) prepareEmbedder(records []domain.Record, report *domain.BuildReport) driven.Embedder {
	if b.newEmbedder == nil || len(records) == 0 {
		return nil
	}

	corpus := make([]string, len(records))
	for i, rec := range records {
		corpus[i] = rec.Title + "\n" + rec.Text
	}

	embedder := b.newEmbedder()
	if err := embedder.Prepare(corpus); err != nil {
		logger.Warn("Embedder preparation failed, building keyword-only index: %v", err)
		report.Warn("", 0, "embeddings unavailable: %v", err)
		return nil
	}
	logger.Debug("Embedder %s prepared, dimension %d", embedder.Name(), embedder.Dimension())
	return embedder
}

// write streams records and embeddings into the artifact and seals it
// with embedder state and manifest.
func (b *IndexBuilder) write(
	ctx context.Context,
	writer driven.IndexWriter,
	records []domain.Record,
	embedder driven.Embedder,
	report *domain.BuildReport,
	buildID string,
	fp domain.Fingerprint,
	start time.Time,
) (*domain.IndexManifest, error) {
	for i := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var embedding []float32
		if embedder != nil {
			var err error
			embedding, err = embedder.Embed(records[i].Title + "\n" + records[i].Text)
			if err != nil {
				report.Warn(records[i].SourceFile, records[i].Row, "embedding failed: %v", err)
			}
		}

		if err := writer.AddRecord(ctx, records[i], embedding); err != nil {
			return nil, fmt.Errorf("storing record %s: %w", records[i].ID, err)
		}
	}

	dim := 0
	if embedder != nil {
		dim = embedder.Dimension()
		state, err := embedder.MarshalState()
		if err != nil {
			return nil, fmt.Errorf("marshalling embedder state: %w", err)
		}
		if err := writer.SetEmbedderState(ctx, embedder.Name(), state); err != nil {
			return nil, fmt.Errorf("storing embedder state: %w", err)
		}
	}

	report.Duration = time.Since(start)
	manifest := domain.IndexManifest{
		BuildID:      buildID,
		Fingerprint:  fp,
		BuiltAt:      time.Now().UTC(),
		RecordCount:  len(records),
		EmbeddingDim: dim,
		Report:       *report,
	}
	if err := writer.SetManifest(ctx, manifest); err != nil {
		return nil, fmt.Errorf("storing manifest: %w", err)
	}
	return &manifest, nil
}
