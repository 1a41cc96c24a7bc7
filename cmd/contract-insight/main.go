// Command contract-insight analyzes one contract document and writes the
// report as JSON, with an optional XLSX workbook. Logs go to stderr so the
// report can be piped.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lexfield/contract-insight/constants"
	"github.com/lexfield/contract-insight/internal/analyze"
	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
	"github.com/lexfield/contract-insight/internal/export"
	"github.com/lexfield/contract-insight/internal/extract"
	"github.com/lexfield/contract-insight/internal/gateway"
	"github.com/lexfield/contract-insight/internal/ocr"
	"github.com/lexfield/contract-insight/internal/pipeline"
	"github.com/lexfield/contract-insight/internal/redact"
	"github.com/lexfield/contract-insight/internal/risk"
	"github.com/lexfield/contract-insight/internal/summarize"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config (falls back to CONTRACT_INSIGHT_CONFIG)")
		out        = flag.String("out", "", "report JSON output path (default stdout)")
		xlsxOut    = flag.String("xlsx", "", "also write the report as an XLSX workbook to this path")
		formatStr  = flag.String("format", "", "declared document format, overrides filename detection (pdf, docx, txt, ...)")
		timeout    = flag.Duration("timeout", 10*time.Minute, "overall run deadline")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: contract-insight [flags] <document>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	payload, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read document", "path", path, "err", err)
		os.Exit(1)
	}

	doc := &domain.Document{Filename: filepath.Base(path), Payload: payload}
	if *formatStr != "" {
		format, ok := constants.ParseFormat(*formatStr)
		if !ok {
			logger.Error("unknown format", "format", *formatStr)
			os.Exit(2)
		}
		doc.DeclaredFormat = format
	}

	recognizer := ocr.NewAdapter(ocr.Config{
		Tesseract:      cfg.OCR.Tesseract,
		Pdftoppm:       cfg.OCR.Pdftoppm,
		TesseractLang:  cfg.OCR.Languages,
		DPI:            cfg.OCR.DPI,
		TessdataDir:    cfg.OCR.TessdataDir,
		WarnConfidence: cfg.OCR.WarnConfidence,
	}, logger)

	gw := gateway.New(cfg.Providers, logger)

	// One-shot runs are not persisted; the nil store keeps this a pure
	// file-in, report-out tool.
	pipe := pipeline.New(cfg.Pipeline,
		extract.New(extract.Config{
			Concurrency:      cfg.Pipeline.ExtractConcurrency,
			MinPageTextChars: cfg.Pipeline.MinTextChars,
		}, recognizer, logger),
		analyze.New(gw, cfg.Analysis, logger),
		summarize.New(gw, cfg.Summary, logger),
		risk.New(gw, cfg.Risk, logger),
		redact.New(cfg.Redaction, logger),
		nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	report, err := pipe.Run(ctx, doc)
	if err != nil {
		logger.Error("run failed", "err", err, "elapsed_ms", time.Since(start).Milliseconds())
		os.Exit(1)
	}
	if report.Degraded {
		logger.Warn("report degraded", "reason", report.DegradedReason)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Error("encode report", "err", err)
		os.Exit(1)
	}
	data = append(data, '\n')

	if *out == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			logger.Error("write report", "err", err)
			os.Exit(1)
		}
	} else if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Error("write report", "path", *out, "err", err)
		os.Exit(1)
	}

	if *xlsxOut != "" {
		workbook, err := export.NewService(logger).ExportReportXLSX(report)
		if err != nil {
			logger.Error("export xlsx", "err", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*xlsxOut, workbook, 0o644); err != nil {
			logger.Error("write xlsx", "path", *xlsxOut, "err", err)
			os.Exit(1)
		}
	}

	riskScore := -1
	if report.Risk != nil {
		riskScore = report.Risk.Score
	}
	logger.Info("run complete",
		"run_id", report.RunID,
		"title", report.Title,
		"risk_score", riskScore,
		"degraded", report.Degraded,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}
