// Command runextract runs format detection and text extraction on one file
// and reports what came out. Debugging tool for new document formats and
// OCR tuning; no model calls, no persistence.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
	"github.com/lexfield/contract-insight/internal/extract"
	"github.com/lexfield/contract-insight/internal/ocr"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config (falls back to CONTRACT_INSIGHT_CONFIG)")
		showText   = flag.Bool("text", false, "print the extracted text to stdout")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: runextract [flags] <document>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read document", "path", path, "err", err)
		os.Exit(1)
	}

	recognizer := ocr.NewAdapter(ocr.Config{
		Tesseract:      cfg.OCR.Tesseract,
		Pdftoppm:       cfg.OCR.Pdftoppm,
		TesseractLang:  cfg.OCR.Languages,
		DPI:            cfg.OCR.DPI,
		TessdataDir:    cfg.OCR.TessdataDir,
		WarnConfidence: cfg.OCR.WarnConfidence,
	}, logger)

	ex := extract.New(extract.Config{
		Concurrency:      cfg.Pipeline.ExtractConcurrency,
		MinPageTextChars: cfg.Pipeline.MinTextChars,
	}, recognizer, logger)

	doc := &domain.Document{Filename: filepath.Base(path), Payload: payload}
	format, err := ex.Detect(doc.Filename, doc.Payload, doc.DeclaredFormat)
	if err != nil {
		logger.Error("detect failed", "path", path, "err", err)
		os.Exit(1)
	}
	doc.DetectedFormat = format

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	res, err := ex.Extract(ctx, doc)
	dur := time.Since(start)

	if err != nil {
		logger.Error("extraction failed",
			"format", format, "err", err, "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	minConf := domain.MinConfidence(res.Segments, 0, len(res.Segments)-1)
	logger.Info("extraction OK",
		"format", format,
		"segments", len(res.Segments),
		"bytes", len(domain.JoinText(res.Segments)),
		"min_confidence", minConf,
		"warnings", res.Warnings,
		"duration_ms", dur.Milliseconds(),
	)

	if *showText {
		fmt.Println(domain.JoinText(res.Segments))
	}
}
