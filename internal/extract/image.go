package extract

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/lexfield/contract-insight/constants"
	"github.com/lexfield/contract-insight/internal/ocr"
)

// extractImage runs OCR over a raster payload. Every fragment the
// backend returns becomes a segment on page 1 carrying the backend's
// own confidence for that line.
func (e *Extractor) extractImage(ctx context.Context, payload []byte, filename string) (Result, error) {
	ext := constants.NormalizeExt(filepath.Ext(filename))
	if ext == "" {
		ext = "png"
	}

	frags, err := e.ocr.RecognizeBytes(ctx, payload, ext)
	if err != nil {
		return Result{}, fmt.Errorf("ocr image: %w", err)
	}

	res := Result{Segments: fragmentsToSegments(frags, 1)}
	if mean := ocr.MeanConfidence(frags); len(frags) > 0 && mean < e.ocr.WarnConfidence() {
		res.Warnings = append(res.Warnings, fmt.Sprintf("low OCR confidence %.2f on image", mean))
	}
	return res, nil
}
