package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"job-market-etl/config"
	"job-market-etl/services"
	"job-market-etl/storage"
	"job-market-etl/utils"
)

func main() {
	cfg := config.Load()
	logger := utils.NewLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	if len(os.Args) > 1 {
		cfg.InputPath = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("=== Job Market ETL starting ===")
	logger.Info("Config — input: %s | sink: %s | workers: %d | batch: %d",
		cfg.InputPath, cfg.Sink, cfg.NormalizeWorkers, cfg.BatchSize)

	taxonomy, err := config.LoadTaxonomy(cfg.TaxonomyPath)
	if err != nil {
		logger.Error("Failed to load taxonomy: %v", err)
		os.Exit(1)
	}

	var writers []storage.TableWriter

	var csvWriter *storage.CSVWriter
	if cfg.WantsCSV() {
		csvWriter, err = storage.NewCSVWriter(cfg.OutputDir)
		if err != nil {
			logger.Error("Failed to create CSV writer: %v", err)
			os.Exit(1)
		}
		defer csvWriter.Close()
		writers = append(writers, csvWriter)
	}

	var sqlWriter *storage.SQLWriter
	if cfg.WantsSQL() {
		retry := utils.RetryConfig{MaxAttempts: cfg.MaxRetries, BaseDelay: time.Second, Logger: logger}
		sqlWriter, err = storage.NewSQLWriter(ctx, cfg.SinkDriver, cfg.DataSource(), cfg.BatchSize, retry, logger)
		if err != nil {
			logger.Error("Failed to connect to %s: %v", cfg.SinkDriver, err)
			if cfg.SinkDriver == config.DriverPostgres {
				logger.Error("Make sure Docker is running: docker compose up -d")
			}
			os.Exit(1)
		}
		defer sqlWriter.Close()
		writers = append(writers, sqlWriter)
	}

	pipeline := services.NewPipeline(logger, cfg, taxonomy)
	result, err := pipeline.Run(ctx, cfg.InputPath)
	if err != nil {
		logger.Error("Pipeline failed: %v", err)
		os.Exit(1)
	}

	failed := false
	for _, w := range writers {
		if err := w.Write(ctx, result.Tables); err != nil {
			logger.Error("Write failed: %v", err)
			failed = true
			continue
		}
		if err := w.WriteReport(ctx, result.Report); err != nil {
			logger.Error("Quality report write failed: %v", err)
			failed = true
		}
	}

	insightSvc := services.NewInsightService(logger, cfg.TopN)
	insights := insightSvc.Generate(result.Tables)

	if csvWriter != nil {
		if err := csvWriter.WriteSummaries(ctx, insights); err != nil {
			logger.Error("Summary write failed: %v", err)
			failed = true
		} else {
			logger.Info("Tables, quality report and summaries saved to %s", csvWriter.Dir())
		}
	}

	if sqlWriter != nil && !failed {
		counts, err := sqlWriter.Counts(ctx)
		if err != nil {
			logger.Error("Failed to read back table counts: %v", err)
		} else {
			logger.Info("Stored in %s — jobs: %d | companies: %d | skills: %d | job_skills: %d",
				cfg.SinkDriver, counts.Jobs, counts.Companies, counts.Skills, counts.JobSkills)
		}
		if top, err := sqlWriter.TopSkills(ctx, 5); err == nil && len(top) > 0 {
			logger.Info("Most demanded skill in store: %s (%.2f%% of jobs)", top[0].SkillName, top[0].Percentage)
		}
	}

	insightSvc.Print(insights, result.Report)

	fmt.Printf("  Done. Run %s | %d jobs emitted | %d data-quality issues\n\n",
		result.RunID, result.Report.JobsEmitted, result.Report.Issues())

	if failed {
		os.Exit(1)
	}
}
