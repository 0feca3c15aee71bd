package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"job-market-etl/config"
	"job-market-etl/errors"
	"job-market-etl/models"
	"job-market-etl/storage/migrations"
	"job-market-etl/utils"
)

// maxParams keeps one multi-row INSERT under the bind-parameter limits of
// both PostgreSQL (65535) and SQLite (32766).
const maxParams = 30000

var (
	companyColumns = []string{"company_id", "company_name", "company_industry", "company_size"}
	skillColumns   = []string{"skill_id", "skill_name", "skill_category"}
	jobColumns     = []string{
		"job_id", "posting_id", "company_id", "posting_date", "posting_year", "posting_month",
		"job_title", "job_title_full", "job_title_additional", "position_type", "position_level",
		"experience_years", "experience_level", "city", "country",
		"salary_min", "salary_max", "currency", "pay_rate", "applicants",
	}
	jobSkillColumns  = []string{"job_id", "skill_id"}
	issueColumns     = []string{"run_id", "kind", "issue_count"}
	violationColumns = []string{"run_id", "job_id", "posting_id", "salary_min", "salary_max"}
)

// SQLWriter persists the relational tables to PostgreSQL or SQLite.
type SQLWriter struct {
	db        *sql.DB
	driver    string
	batchSize int
	logger    *utils.Logger
}

// NewSQLWriter opens a connection with the given driver ("postgres" or
// "sqlite3"), waits for the database to answer, applies the embedded goose
// migrations and returns a ready-to-use SQLWriter.
func NewSQLWriter(ctx context.Context, driver, dsn string, batchSize int, retry utils.RetryConfig, logger *utils.Logger) (*SQLWriter, error) {
	if driver != config.DriverPostgres && driver != config.DriverSQLite {
		return nil, fmt.Errorf("sql: unsupported driver %q", driver)
	}
	if driver == config.DriverSQLite && !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql: open %s: %w", driver, err)
	}
	if driver == config.DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := retry.Do(ctx, driver+" ping", func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sql: %w", err)
	}

	if batchSize <= 0 {
		batchSize = 500
	}
	w := &SQLWriter{db: db, driver: driver, batchSize: batchSize, logger: logger}
	if err := w.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sql: migrate: %w", err)
	}
	return w, nil
}

func (w *SQLWriter) migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(w.logger)
	if err := goose.SetDialect(w.driver); err != nil {
		return err
	}
	return goose.UpContext(ctx, w.db, ".")
}

// Write replaces the stored tables with the given ones inside a single
// transaction.
func (w *SQLWriter) Write(ctx context.Context, tables *models.Tables) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sql: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := w.clear(ctx, tx); err != nil {
		return err
	}

	if err := w.insertRows(ctx, tx, "companies", companyColumns, len(tables.Companies), func(i int) []any {
		c := tables.Companies[i]
		return []any{c.ID, c.Name, c.Industry, c.Size}
	}); err != nil {
		return err
	}

	if err := w.insertRows(ctx, tx, "skills", skillColumns, len(tables.Skills), func(i int) []any {
		s := tables.Skills[i]
		return []any{s.ID, s.Name, s.Category}
	}); err != nil {
		return err
	}

	if err := w.insertRows(ctx, tx, "jobs", jobColumns, len(tables.Jobs), func(i int) []any {
		j := tables.Jobs[i]
		return []any{
			j.JobID, j.PostingID, j.CompanyID, dateValue(j.PostingDate), j.PostingYear, j.PostingMonth,
			j.JobTitle, j.JobTitleFull, j.JobTitleAdditional, j.PositionType, j.PositionLevel,
			j.ExperienceYears, nullIfEmpty(j.ExperienceLevel), j.City, j.Country,
			j.SalaryMin, j.SalaryMax, j.Currency, j.PayRate, j.Applicants,
		}
	}); err != nil {
		return err
	}

	if err := w.insertRows(ctx, tx, "job_skills", jobSkillColumns, len(tables.JobSkills), func(i int) []any {
		js := tables.JobSkills[i]
		return []any{js.JobID, js.SkillID}
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sql: commit: %w", err)
	}
	w.logger.Info("[sql] Stored %d jobs, %d companies, %d skills, %d job-skill links",
		len(tables.Jobs), len(tables.Companies), len(tables.Skills), len(tables.JobSkills))
	return nil
}

// clear deletes all rows of the relational tables, children first. Run
// history is kept.
func (w *SQLWriter) clear(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{"job_skills", "jobs", "skills", "companies"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("sql: clear %s: %w", table, err)
		}
	}
	return nil
}

// WriteReport records the run and its per-kind issue counts.
func (w *SQLWriter) WriteReport(ctx context.Context, report *models.QualityReport) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sql: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var finished any
	if !report.FinishedAt.IsZero() {
		finished = report.FinishedAt
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO pipeline_runs (run_id, source_path, started_at, finished_at, rows_read, jobs_emitted) VALUES (%s)",
			w.placeholders(0, 6)),
		report.RunID, report.SourcePath, report.StartedAt, finished, report.RowsRead, report.JobsEmitted,
	); err != nil {
		return fmt.Errorf("sql: insert run: %w", err)
	}

	var kinds []errors.ErrorType
	for _, kind := range errors.Kinds {
		if report.Count(kind) > 0 {
			kinds = append(kinds, kind)
		}
	}
	if err := w.insertRows(ctx, tx, "quality_issues", issueColumns, len(kinds), func(i int) []any {
		return []any{report.RunID, string(kinds[i]), report.Count(kinds[i])}
	}); err != nil {
		return err
	}

	if err := w.insertRows(ctx, tx, "salary_violations", violationColumns, len(report.SalaryViolations), func(i int) []any {
		v := report.SalaryViolations[i]
		return []any{report.RunID, v.JobID, v.PostingID, v.SalaryMin, v.SalaryMax}
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sql: commit: %w", err)
	}
	return nil
}

// insertRows batch-inserts n rows using multi-row VALUES statements.
func (w *SQLWriter) insertRows(ctx context.Context, tx *sql.Tx, table string, columns []string, n int, row func(i int) []any) error {
	if n == 0 {
		return nil
	}
	batch := w.batchSize
	if limit := maxParams / len(columns); batch > limit {
		batch = limit
	}

	for start := 0; start < n; start += batch {
		end := min(start+batch, n)

		valueStrings := make([]string, 0, end-start)
		valueArgs := make([]any, 0, (end-start)*len(columns))
		for i := start; i < end; i++ {
			valueStrings = append(valueStrings, "("+w.placeholders(len(valueArgs), len(columns))+")")
			valueArgs = append(valueArgs, row(i)...)
		}

		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			table, strings.Join(columns, ", "), strings.Join(valueStrings, ","))
		if _, err := tx.ExecContext(ctx, query, valueArgs...); err != nil {
			return fmt.Errorf("sql: insert %s: %w", table, err)
		}
	}
	return nil
}

// placeholders renders n bind parameters starting after offset, in the
// driver's style: "$1,$2" for PostgreSQL, "?,?" for SQLite.
func (w *SQLWriter) placeholders(offset, n int) string {
	ps := make([]string, n)
	for i := range ps {
		if w.driver == config.DriverPostgres {
			ps[i] = fmt.Sprintf("$%d", offset+i+1)
		} else {
			ps[i] = "?"
		}
	}
	return strings.Join(ps, ",")
}

// TableCounts is the row count of each relational table.
type TableCounts struct {
	Jobs      int
	Companies int
	Skills    int
	JobSkills int
}

// Counts returns the current row count of each table.
func (w *SQLWriter) Counts(ctx context.Context) (TableCounts, error) {
	var c TableCounts
	err := w.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM jobs),
			(SELECT COUNT(*) FROM companies),
			(SELECT COUNT(*) FROM skills),
			(SELECT COUNT(*) FROM job_skills)
	`).Scan(&c.Jobs, &c.Companies, &c.Skills, &c.JobSkills)
	if err != nil {
		return c, fmt.Errorf("sql: counts: %w", err)
	}
	return c, nil
}

// TopSkills returns the most demanded skills with the share of jobs that
// list each one.
func (w *SQLWriter) TopSkills(ctx context.Context, limit int) ([]models.SkillDemand, error) {
	query := fmt.Sprintf(`
		SELECT skill_id, skill_name, skill_category, job_count,
		       CAST(job_count AS DOUBLE PRECISION) * 100 / total_jobs
		FROM (
			SELECT s.skill_id, s.skill_name, s.skill_category,
			       COUNT(js.job_id) AS job_count,
			       (SELECT COUNT(*) FROM jobs) AS total_jobs,
			       ROW_NUMBER() OVER (ORDER BY COUNT(js.job_id) DESC, s.skill_id) AS rn
			FROM skills s
			JOIN job_skills js ON js.skill_id = s.skill_id
			GROUP BY s.skill_id, s.skill_name, s.skill_category
		) ranked
		WHERE rn <= %s
		ORDER BY rn
	`, w.placeholders(0, 1))

	rows, err := w.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("sql: top skills: %w", err)
	}
	defer rows.Close()

	var out []models.SkillDemand
	for rows.Next() {
		var d models.SkillDemand
		if err := rows.Scan(&d.SkillID, &d.SkillName, &d.Category, &d.JobCount, &d.Percentage); err != nil {
			return nil, fmt.Errorf("sql: scan skill: %w", err)
		}
		d.Percentage = math.Round(d.Percentage*100) / 100
		out = append(out, d)
	}
	return out, rows.Err()
}

func (w *SQLWriter) Close() error {
	return w.db.Close()
}

func dateValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
