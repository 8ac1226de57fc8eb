package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/certmint/certmint/pkg/gateway"
	"github.com/certmint/certmint/pkg/log"
	"github.com/certmint/certmint/pkg/metrics"
	"github.com/certmint/certmint/pkg/pdf"
	"github.com/certmint/certmint/pkg/types"
)

const mimePDF = "application/pdf"

// TemplateSource yields template bytes for a template id, normally the
// two-tier cache in front of the file gateway.
type TemplateSource interface {
	Get(ctx context.Context, templateID string) ([]byte, error)
}

// QRGenerator renders a verification QR PNG from an item's qr section.
type QRGenerator interface {
	Generate(spec types.QRSpec) ([]byte, error)
}

// Uploader pushes a finished certificate to the file gateway.
type Uploader interface {
	Upload(ctx context.Context, req gateway.UploadRequest) (*gateway.UploadResult, error)
}

// PersistFunc saves the current state of the item's parent job. The
// pipeline calls it after every non-terminal status transition so
// status queries see live progress.
type PersistFunc func(ctx context.Context) error

// Pipeline drives one certificate item through its five stages:
// download, render, qr_generation, qr_insertion, upload. It is
// stateless between invocations; everything it learns lands on the
// item record.
type Pipeline struct {
	templates TemplateSource
	qr        QRGenerator
	uploader  Uploader
	scratch   string
	logger    zerolog.Logger
}

// New builds a pipeline and creates its scratch directory.
func New(templates TemplateSource, generator QRGenerator, uploader Uploader, scratchDir string) (*Pipeline, error) {
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory %s: %w", scratchDir, err)
	}
	return &Pipeline{
		templates: templates,
		qr:        generator,
		uploader:  uploader,
		scratch:   scratchDir,
		logger:    log.WithComponent("pipeline"),
	}, nil
}

// Run processes a single item. Stages run strictly in order and the
// first failure short-circuits: the item is marked failed with that
// stage's error and no upload happens. On success the item carries its
// result data. Terminal state is left for the caller to persist
// alongside the batch counters; Run only persists progress.
//
// Scratch files live under <scratch>/<item_id>/ and are removed on
// success and failure alike.
func (p *Pipeline) Run(ctx context.Context, job *types.BatchJob, item *types.BatchItem, persist PersistFunc) *types.StageError {
	logger := p.logger.With().
		Str("job_id", job.InternalID).
		Str("pdf_job_id", job.ExternalID).
		Str("item_id", item.ItemID).
		Str("serial_code", item.SerialCode).
		Logger()
	logger.Info().Msg("Processing item")

	if err := item.ValidateIdentity(); err != nil {
		serr := types.WrapStage(types.StageValidation, err)
		p.fail(item, serr, logger)
		return serr
	}

	start := time.Now()
	dir := filepath.Join(p.scratch, item.ItemID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		serr := types.NewStageError(types.StageOrchestration, "failed to create item scratch directory: %v", err)
		p.fail(item, serr, logger)
		return serr
	}
	defer p.removeScratch(dir, logger)

	advance := func(status types.ItemStatus) {
		item.UpdateStatus(status)
		if err := persist(ctx); err != nil {
			logger.Warn().Err(err).Str("status", string(status)).Msg("Failed to persist item progress")
		}
	}

	advance(types.ItemStatusDownloading)
	template, serr := p.download(ctx, item, dir)
	if serr != nil {
		p.fail(item, serr, logger)
		return serr
	}
	advance(types.ItemStatusDownloaded)

	advance(types.ItemStatusRendering)
	rendered, serr := p.render(item, template, dir)
	if serr != nil {
		p.fail(item, serr, logger)
		return serr
	}
	advance(types.ItemStatusRendered)

	advance(types.ItemStatusGeneratingQR)
	qrPNG, serr := p.generateQR(item, dir)
	if serr != nil {
		p.fail(item, serr, logger)
		return serr
	}
	advance(types.ItemStatusQRGenerated)

	advance(types.ItemStatusInsertingQR)
	final, serr := p.insertQR(item, rendered, qrPNG, dir)
	if serr != nil {
		p.fail(item, serr, logger)
		return serr
	}
	advance(types.ItemStatusQRInserted)

	advance(types.ItemStatusUploading)
	result, serr := p.upload(ctx, item, final)
	if serr != nil {
		p.fail(item, serr, logger)
		return serr
	}

	sum := sha256.Sum256(final)
	fileName := result.FileName
	if fileName == "" {
		fileName = outputName(item)
	}
	item.SetCompleted(&types.ItemData{
		FileID:           result.FileID,
		OriginalName:     outputName(item),
		FileName:         fileName,
		FileSize:         int64(len(final)),
		FileHash:         hex.EncodeToString(sum[:]),
		MimeType:         mimePDF,
		IsPublic:         item.IsPublic,
		DownloadURL:      result.DownloadURL,
		CreatedAt:        time.Now().UTC(),
		ProcessingTimeMS: time.Since(start).Milliseconds(),
	})
	metrics.ItemsProcessed.WithLabelValues(string(types.ItemStatusCompleted)).Inc()
	logger.Info().
		Str("file_id", result.FileID).
		Int64("processing_time_ms", item.Data.ProcessingTimeMS).
		Msg("Item completed")
	return nil
}

// fail records the stage error on the item and its metrics.
func (p *Pipeline) fail(item *types.BatchItem, serr *types.StageError, logger zerolog.Logger) {
	item.Fail(serr)
	metrics.ItemsProcessed.WithLabelValues(string(types.ItemStatusFailed)).Inc()
	metrics.ItemFailures.WithLabelValues(string(serr.Stage)).Inc()
	logger.Error().
		Str("stage", string(serr.Stage)).
		Str("code", serr.Code).
		Msg(serr.Message)
}

func (p *Pipeline) download(ctx context.Context, item *types.BatchItem, dir string) ([]byte, *types.StageError) {
	timer := metrics.NewTimer()
	data, err := p.templates.Get(ctx, item.TemplateID)
	timer.ObserveDurationVec(metrics.StageDuration, string(types.StageDownload))
	if err != nil {
		return nil, types.WrapStage(types.StageDownload, err)
	}
	if !pdf.HasMagic(data) {
		return nil, types.NewStageError(types.StageDownload, "template %s is not a PDF document", item.TemplateID)
	}
	p.writeScratch(dir, "template.pdf", data)
	return data, nil
}

func (p *Pipeline) render(item *types.BatchItem, template []byte, dir string) ([]byte, *types.StageError) {
	timer := metrics.NewTimer()
	rendered, err := pdf.Render(template, item.Placeholders)
	timer.ObserveDurationVec(metrics.StageDuration, string(types.StageRender))
	if err != nil {
		return nil, types.WrapStage(types.StageRender, err)
	}
	p.writeScratch(dir, "rendered.pdf", rendered)
	return rendered, nil
}

func (p *Pipeline) generateQR(item *types.BatchItem, dir string) ([]byte, *types.StageError) {
	timer := metrics.NewTimer()
	png, err := p.qr.Generate(types.ParseQRSpec(item.QRConfig))
	timer.ObserveDurationVec(metrics.StageDuration, string(types.StageQRGeneration))
	if err != nil {
		return nil, types.WrapStage(types.StageQRGeneration, err)
	}
	p.writeScratch(dir, "qr.png", png)
	return png, nil
}

func (p *Pipeline) insertQR(item *types.BatchItem, rendered, qrPNG []byte, dir string) ([]byte, *types.StageError) {
	placement, err := types.ParsePlacement(item.QRPDFConfig)
	if err != nil {
		return nil, types.WrapStage(types.StageQRInsertion, err)
	}
	timer := metrics.NewTimer()
	final, err := pdf.InsertQR(rendered, qrPNG, placement)
	timer.ObserveDurationVec(metrics.StageDuration, string(types.StageQRInsertion))
	if err != nil {
		return nil, types.WrapStage(types.StageQRInsertion, err)
	}
	p.writeScratch(dir, outputName(item), final)
	return final, nil
}

func (p *Pipeline) upload(ctx context.Context, item *types.BatchItem, final []byte) (*gateway.UploadResult, *types.StageError) {
	timer := metrics.NewTimer()
	result, err := p.uploader.Upload(ctx, gateway.UploadRequest{
		FileName:    outputName(item),
		ContentType: mimePDF,
		Content:     final,
		UserID:      item.UserID,
		IsPublic:    item.IsPublic,
	})
	timer.ObserveDurationVec(metrics.StageDuration, string(types.StageUpload))
	if err != nil {
		return nil, types.WrapStage(types.StageUpload, err)
	}
	return result, nil
}

// outputName is the canonical certificate filename.
func outputName(item *types.BatchItem) string {
	return item.SerialCode + ".pdf"
}

// writeScratch mirrors a stage artifact to the item's scratch
// directory. The pipeline works from memory; the mirror exists for
// inspection, so failures only warn.
func (p *Pipeline) writeScratch(dir, name string, data []byte) {
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		p.logger.Warn().Err(err).Str("path", filepath.Join(dir, name)).Msg("Failed to write scratch file")
	}
}

func (p *Pipeline) removeScratch(dir string, logger zerolog.Logger) {
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn().Err(err).Str("path", dir).Msg("Failed to remove scratch directory")
	}
}

// SweepScratch removes leftover item directories older than maxAge.
// In-flight directories are far younger than any sane job TTL, so the
// sweep only catches debris from interrupted runs. Returns the number
// of directories removed.
func (p *Pipeline) SweepScratch(maxAge time.Duration) int {
	entries, err := os.ReadDir(p.scratch)
	if err != nil {
		p.logger.Warn().Err(err).Str("path", p.scratch).Msg("Failed to read scratch directory")
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(p.scratch, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			p.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove stale scratch directory")
			continue
		}
		removed++
	}
	if removed > 0 {
		p.logger.Info().Int("removed", removed).Msg("Swept stale scratch directories")
	}
	return removed
}
