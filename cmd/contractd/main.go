package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lexfield/contract-insight/internal/analyze"
	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/export"
	"github.com/lexfield/contract-insight/internal/extract"
	"github.com/lexfield/contract-insight/internal/gateway"
	"github.com/lexfield/contract-insight/internal/metrics"
	"github.com/lexfield/contract-insight/internal/ocr"
	"github.com/lexfield/contract-insight/internal/pipeline"
	"github.com/lexfield/contract-insight/internal/redact"
	"github.com/lexfield/contract-insight/internal/risk"
	"github.com/lexfield/contract-insight/internal/server"
	"github.com/lexfield/contract-insight/internal/store"
	"github.com/lexfield/contract-insight/internal/summarize"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (falls back to CONTRACT_INSIGHT_CONFIG)")
	flag.Parse()

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := common.NewLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	metrics.RegisterPipelineMetrics()
	metrics.RegisterGatewayMetrics()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "path", cfg.Store.Path, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	recognizer := ocr.NewAdapter(ocr.Config{
		Tesseract:      cfg.OCR.Tesseract,
		Pdftoppm:       cfg.OCR.Pdftoppm,
		TesseractLang:  cfg.OCR.Languages,
		DPI:            cfg.OCR.DPI,
		TessdataDir:    cfg.OCR.TessdataDir,
		WarnConfidence: cfg.OCR.WarnConfidence,
	}, logger)

	gw := gateway.New(cfg.Providers, logger)

	pipe := pipeline.New(cfg.Pipeline,
		extract.New(extract.Config{
			Concurrency:      cfg.Pipeline.ExtractConcurrency,
			MinPageTextChars: cfg.Pipeline.MinTextChars,
		}, recognizer, logger),
		analyze.New(gw, cfg.Analysis, logger),
		summarize.New(gw, cfg.Summary, logger),
		risk.New(gw, cfg.Risk, logger),
		redact.New(cfg.Redaction, logger),
		st, logger)

	api := server.NewServer(pipe, st, export.NewService(logger), cfg.Server, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("contractd listening", "addr", cfg.Server.Addr, "providers", cfg.Providers.Order)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "err", err)
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}
