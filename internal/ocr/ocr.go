// Package ocr recognizes text in raster images through the tesseract
// binary, reporting the backend's own per-line confidence.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	Tesseract string // binary name or absolute path; if empty -> "tesseract"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned PDF pages, default 300

	TessdataDir string

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default

	// WarnConfidence is the mean-confidence floor below which recognition
	// is flagged low-confidence. Recognition still succeeds; the flag only
	// feeds diagnostics and risk signals.
	WarnConfidence float64
}

// Fragment is one recognized line in reading order. Confidence is the mean
// of tesseract's per-word certainties for the line, scaled to 0..1.
type Fragment struct {
	Line       int
	Text       string
	Confidence float64
}

// Adapter shells out to tesseract and pdftoppm. Rotated or skewed input is
// recognized best-effort; it shows up as lowered confidence, never as an
// error on its own.
type Adapter struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewAdapter(cfg Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.WarnConfidence <= 0 {
		cfg.WarnConfidence = 0.4
	}
	return &Adapter{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// WarnConfidence exposes the configured low-confidence floor.
func (a *Adapter) WarnConfidence() float64 {
	return a.cfg.WarnConfidence
}

// Recognize runs tesseract over one raster image and returns its lines in
// reading order. An image with no recognizable words yields an empty slice
// and no error.
func (a *Adapter) Recognize(ctx context.Context, imagePath string) ([]Fragment, error) {
	start := time.Now()

	args := []string{imagePath, "stdout", "-l", a.cfg.TesseractLang}
	if a.cfg.PSM > 0 {
		args = append(args, "--psm", fmt.Sprintf("%d", a.cfg.PSM))
	}
	if a.cfg.OEM > 0 {
		args = append(args, "--oem", fmt.Sprintf("%d", a.cfg.OEM))
	}
	if a.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", a.cfg.TessdataDir)
	}
	// TSV output carries per-word confidence alongside the text
	args = append(args, "tsv")

	out, errb, err := a.runner.Run(ctx, a.cfg.Tesseract, args...)
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w (%s)", err, truncate(string(errb), 512))
	}

	frags := parseTSV(string(out))
	a.logger.Debug("ocr.recognize.done",
		"image", filepath.Base(imagePath),
		"lines", len(frags),
		"mean_confidence", MeanConfidence(frags),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return frags, nil
}

// RecognizeBytes writes the payload to a scratch file and recognizes it.
// Tesseract only reads from disk.
func (a *Adapter) RecognizeBytes(ctx context.Context, payload []byte, ext string) ([]Fragment, error) {
	tmp, err := os.CreateTemp("", "ci-ocr-*"+ext)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	return a.Recognize(ctx, tmp.Name())
}

// MeanConfidence averages fragment confidences; 0 for no fragments.
func MeanConfidence(frags []Fragment) float64 {
	if len(frags) == 0 {
		return 0
	}
	var sum float64
	for _, f := range frags {
		sum += f.Confidence
	}
	return sum / float64(len(frags))
}
