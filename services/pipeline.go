package services

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"job-market-etl/config"
	"job-market-etl/errors"
	"job-market-etl/models"
	"job-market-etl/utils"
)

// Pipeline runs the cleaning stages in order:
// Loaded → Deduplicated → Normalized → SkillsExtracted → Emitted.
type Pipeline struct {
	logger       *utils.Logger
	loader       *Loader
	deduplicator *Deduplicator
	normalizer   *Normalizer
	extractor    *SkillExtractor
	emitter      *Emitter
}

// NewPipeline wires every stage from the configuration and taxonomy.
func NewPipeline(logger *utils.Logger, cfg *config.Config, tax *config.Taxonomy) *Pipeline {
	return &Pipeline{
		logger:       logger,
		loader:       NewLoader(logger),
		deduplicator: NewDeduplicator(logger),
		normalizer:   NewNormalizer(logger, cfg.DateFormats, NewLocationPolicy(tax), cfg.NormalizeWorkers),
		extractor:    NewSkillExtractor(logger, tax, cfg.FallbackSkillCategory),
		emitter:      NewEmitter(logger),
	}
}

// Run executes one batch run over the CSV at path. Only an unreadable
// source (or a cancelled context) fails the run; every other anomaly is
// tallied in the returned report.
func (p *Pipeline) Run(ctx context.Context, path string) (*models.Result, error) {
	runID := uuid.New().String()
	report := models.NewQualityReport(runID, path)
	log := p.logger.With("run_id", runID)
	log.Info("[pipeline] Starting run on %s", path)

	stageStart := time.Now()
	raw, loadStats, err := p.loader.Load(ctx, path)
	if err != nil {
		return nil, p.fail(log, "load", err)
	}
	report.RowsRead = loadStats.Rows + loadStats.MalformedRows
	report.Add(errors.ErrTypeMalformedRow, loadStats.MalformedRows)
	report.Transition(models.StageLoaded, len(raw), time.Since(stageStart))

	stageStart = time.Now()
	rows, dedupStats := p.deduplicator.Deduplicate(raw)
	report.Add(errors.ErrTypeMissingIdentifier, dedupStats.MissingIdentifier)
	report.Add(errors.ErrTypeDuplicateIdentifier, dedupStats.DuplicateIdentifier)
	report.Transition(models.StageDeduplicated, len(rows), time.Since(stageStart))

	stageStart = time.Now()
	jobs, normStats, err := p.normalizer.NormalizeAll(ctx, rows)
	if err != nil {
		return nil, p.fail(log, "normalize", err)
	}
	report.Add(errors.ErrTypeUnparsableDate, normStats.UnparsableDates)
	report.Add(errors.ErrTypeUnparsableExperience, normStats.UnparsableExperience)
	report.Add(errors.ErrTypeUnparsableSalary, normStats.UnparsableSalary)
	report.Add(errors.ErrTypeSalaryRangeViolation, normStats.SalaryRangeViolations)
	report.Add(errors.ErrTypeUnresolvedLocation, normStats.UnresolvedLocations)
	report.Transition(models.StageNormalized, len(jobs), time.Since(stageStart))

	stageStart = time.Now()
	skills := NewSkillRegistry()
	skillStats, err := p.extractor.ExtractAll(ctx, rows, jobs, skills)
	if err != nil {
		return nil, p.fail(log, "skill extraction", err)
	}
	report.Add(errors.ErrTypeMalformedSkillList, skillStats.MalformedLists)
	report.Add(errors.ErrTypeUnclassifiedSkill, skillStats.UnclassifiedSkills)
	report.Transition(models.StageSkillsExtracted, len(jobs), time.Since(stageStart))

	stageStart = time.Now()
	tables, emitStats := p.emitter.Emit(jobs, skills)
	report.Add(errors.ErrTypeReferentialIntegrity, emitStats.IntegrityViolations)
	report.SalaryViolations = emitStats.SalaryViolations
	report.JobsEmitted = len(tables.Jobs)
	report.Transition(models.StageEmitted, len(tables.Jobs), time.Since(stageStart))

	report.FinishedAt = time.Now().UTC()
	log.Info("[pipeline] Run complete: %d rows read → %d jobs emitted, %d data-quality issues in %s",
		report.RowsRead, report.JobsEmitted, report.Issues(), report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))

	return &models.Result{
		RunID:  runID,
		Jobs:   emitStats.Emitted,
		Tables: tables,
		Report: report,
	}, nil
}

// fail logs an error that ends the run. Fatal pipeline errors also log their
// stack trace at debug level.
func (p *Pipeline) fail(log *utils.Logger, stage string, err error) error {
	var pe *errors.PipelineError
	if stderrors.As(err, &pe) && pe.Type.Fatal() {
		log.Error("[pipeline] Run aborted during %s: %v", stage, err)
		log.Debug("[pipeline] Stack trace:\n%s", pe.StackTrace())
		return err
	}
	log.Error("[pipeline] Run stopped during %s: %v", stage, err)
	return err
}
