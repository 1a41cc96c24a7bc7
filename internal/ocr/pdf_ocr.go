package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// RecognizePDFPage rasterizes one page of a PDF and recognizes it. Page
// numbers are 1-based. The scratch PNG lives only for the call.
func (a *Adapter) RecognizePDFPage(ctx context.Context, pdfPath string, page int) ([]Fragment, error) {
	tmpDir, err := os.MkdirTemp("", "ci-pp-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			a.logger.Warn("ocr.tmpdir.remove", "dir", tmpDir, "error", rmErr)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -f N -l N -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := a.runner.Run(ctx, a.cfg.Pdftoppm,
		"-f", fmt.Sprintf("%d", page),
		"-l", fmt.Sprintf("%d", page),
		"-r", fmt.Sprintf("%d", a.cfg.DPI),
		"-png", pdfPath, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm page %d: %w (%s)", page, err, truncate(string(errb), 512))
	}

	// pdftoppm names output page-N.png with zero padding that varies by
	// total page count, so glob instead of guessing
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no image for page %d", page)
	}

	return a.Recognize(ctx, matches[0])
}

// RecognizePDFPageBytes writes the PDF payload to a scratch file first, for
// callers that hold the document in memory.
func (a *Adapter) RecognizePDFPageBytes(ctx context.Context, payload []byte, page int) ([]Fragment, error) {
	tmp, err := os.CreateTemp("", "ci-pdf-*.pdf")
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
	return a.RecognizePDFPage(ctx, tmp.Name(), page)
}
