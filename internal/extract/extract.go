// Package extract converts raw contract documents into ordered text
// segments with provenance and confidence. Text-bearing formats come out
// at confidence 1.0; raster content is delegated to the OCR adapter and
// carries the backend's confidence.
package extract

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lexfield/contract-insight/constants"
	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
	"github.com/lexfield/contract-insight/internal/ocr"
)

// Recognizer is the OCR surface the extractor needs. *ocr.Adapter
// satisfies it; tests substitute fakes.
type Recognizer interface {
	RecognizeBytes(ctx context.Context, payload []byte, ext string) ([]ocr.Fragment, error)
	RecognizePDFPageBytes(ctx context.Context, payload []byte, page int) ([]ocr.Fragment, error)
	WarnConfidence() float64
}

type Config struct {
	// Concurrency caps parallel page parsing and OCR tasks. Default 4.
	Concurrency int
	// MinPageTextChars is the char floor under which an image-bearing PDF
	// page is treated as scanned and sent to OCR. Default 50.
	MinPageTextChars int
	// MaxFileSize guards against runaway payloads. Default 64MB.
	MaxFileSize int
}

func (c *Config) defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MinPageTextChars <= 0 {
		c.MinPageTextChars = 50
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 64 << 20
	}
}

// Result carries the ordered segments plus non-fatal extraction warnings
// (typically low-confidence OCR notes) for run diagnostics.
type Result struct {
	Segments []domain.Segment
	Warnings []string
}

// Extractor dispatches documents to per-format handlers.
type Extractor struct {
	cfg    Config
	ocr    Recognizer
	logger *slog.Logger
}

func New(cfg Config, recognizer Recognizer, logger *slog.Logger) *Extractor {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{cfg: cfg, ocr: recognizer, logger: logger}
}

// Extract parses the document into its normalized segment sequence.
// It fails with ErrUnsupportedFormat when no handler matches and with
// ErrCorruptDocument when the matched handler cannot parse the payload;
// it never substitutes an empty sequence for either failure.
func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (Result, error) {
	if len(doc.Payload) == 0 {
		return Result{}, common.CorruptDocumentError(string(doc.DetectedFormat), fmt.Errorf("empty payload"))
	}
	if len(doc.Payload) > e.cfg.MaxFileSize {
		return Result{}, fmt.Errorf("file too large: %d bytes (max %d)", len(doc.Payload), e.cfg.MaxFileSize)
	}

	format := doc.DetectedFormat
	if format == "" || format == constants.FormatUnknown {
		var err error
		format, err = e.Detect(doc.Filename, doc.Payload, doc.DeclaredFormat)
		if err != nil {
			return Result{}, err
		}
	}

	e.logger.Debug("extract.start", "format", format, "bytes", len(doc.Payload))

	var (
		res Result
		err error
	)
	switch format {
	case constants.FormatPDF:
		res, err = e.extractPDF(ctx, doc.Payload)
	case constants.FormatDOCX:
		res.Segments, err = extractDocx(doc.Payload)
	case constants.FormatODT:
		res.Segments, err = extractODT(doc.Payload)
	case constants.FormatPPTX:
		res, err = e.extractPPTX(ctx, doc.Payload)
	case constants.FormatXLSX:
		res.Segments, err = extractXLSX(doc.Payload)
	case constants.FormatCSV:
		res.Segments, err = extractCSV(doc.Payload)
	case constants.FormatTXT:
		res.Segments, err = extractText(doc.Payload)
	case constants.FormatMarkdown:
		res.Segments, err = extractMarkdown(doc.Payload)
	case constants.FormatHTML:
		res.Segments, err = extractHTML(doc.Payload)
	case constants.FormatImage:
		res, err = e.extractImage(ctx, doc.Payload, doc.Filename)
	default:
		return Result{}, common.UnsupportedFormatError(string(format))
	}

	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, err
	}

	res.Segments = finalize(res.Segments)
	if len(res.Segments) == 0 {
		return Result{}, common.CorruptDocumentError(string(format), fmt.Errorf("no text content"))
	}

	e.logger.Info("extract.done",
		"format", format,
		"segments", len(res.Segments),
		"warnings", len(res.Warnings),
	)
	return res, nil
}

// finalize drops empty segments and assigns contiguous indexes. Handlers
// emit segments already in reading order; index assignment happens once,
// here, so downstream spans stay stable.
func finalize(segments []domain.Segment) []domain.Segment {
	out := segments[:0]
	for _, s := range segments {
		if s.Text == "" {
			continue
		}
		s.Index = len(out)
		out = append(out, s)
	}
	return out
}
