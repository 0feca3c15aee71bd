package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"job-market-etl/errors"
	"job-market-etl/models"
)

// CSVWriter writes the relational tables, the quality report and the
// insight summaries as flat CSV files into one directory.
// It is safe for concurrent use.
type CSVWriter struct {
	mu  sync.Mutex
	dir string
}

// NewCSVWriter prepares the output directory, creating it if needed.
func NewCSVWriter(dir string) (*CSVWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}
	return &CSVWriter{dir: dir}, nil
}

// Dir returns the output directory.
func (c *CSVWriter) Dir() string {
	return c.dir
}

// Write writes jobs.csv, companies.csv, skills.csv and job_skills.csv,
// truncating any previous output.
func (c *CSVWriter) Write(ctx context.Context, tables *models.Tables) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.writeFile(ctx, "companies.csv",
		[]string{"company_id", "company_name", "company_industry", "company_size"},
		len(tables.Companies), func(i int) []string {
			co := tables.Companies[i]
			return []string{formatInt(co.ID), co.Name, co.Industry, co.Size}
		})
	if err != nil {
		return err
	}

	err = c.writeFile(ctx, "skills.csv",
		[]string{"skill_id", "skill_name", "skill_category"},
		len(tables.Skills), func(i int) []string {
			s := tables.Skills[i]
			return []string{formatInt(s.ID), s.Name, s.Category}
		})
	if err != nil {
		return err
	}

	err = c.writeFile(ctx, "jobs.csv", jobColumns, len(tables.Jobs), func(i int) []string {
		j := tables.Jobs[i]
		return []string{
			formatInt(j.JobID), j.PostingID, formatOptInt64(j.CompanyID), formatDate(j.PostingDate),
			formatOptInt(j.PostingYear), formatOptInt(j.PostingMonth),
			j.JobTitle, j.JobTitleFull, j.JobTitleAdditional, j.PositionType, j.PositionLevel,
			formatOptInt(j.ExperienceYears), j.ExperienceLevel, j.City, j.Country,
			formatOptFloat(j.SalaryMin), formatOptFloat(j.SalaryMax), j.Currency, j.PayRate,
			formatOptFloat(j.Applicants),
		}
	})
	if err != nil {
		return err
	}

	return c.writeFile(ctx, "job_skills.csv", jobSkillColumns, len(tables.JobSkills), func(i int) []string {
		js := tables.JobSkills[i]
		return []string{formatInt(js.JobID), formatInt(js.SkillID)}
	})
}

// WriteReport writes quality_report.csv (one row per error kind, zeros
// included) and salary_violations.csv.
func (c *CSVWriter) WriteReport(ctx context.Context, report *models.QualityReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.writeFile(ctx, "quality_report.csv",
		[]string{"run_id", "kind", "count"},
		len(errors.Kinds), func(i int) []string {
			kind := errors.Kinds[i]
			return []string{report.RunID, string(kind), strconv.Itoa(report.Count(kind))}
		})
	if err != nil {
		return err
	}

	return c.writeFile(ctx, "salary_violations.csv", violationColumns, len(report.SalaryViolations), func(i int) []string {
		v := report.SalaryViolations[i]
		return []string{report.RunID, formatInt(v.JobID), v.PostingID, formatFloat(v.SalaryMin), formatFloat(v.SalaryMax)}
	})
}

// WriteSummaries writes the dashboard summary files derived from an
// InsightReport.
func (c *CSVWriter) WriteSummaries(ctx context.Context, r *models.InsightReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.writeFile(ctx, "skills_summary.csv",
		[]string{"skill_id", "skill_name", "skill_category", "job_count", "percentage"},
		len(r.SkillDemand), func(i int) []string {
			s := r.SkillDemand[i]
			return []string{formatInt(s.SkillID), s.SkillName, s.Category, strconv.Itoa(s.JobCount), formatFloat(s.Percentage)}
		})
	if err != nil {
		return err
	}

	err = c.writeFile(ctx, "monthly_trends.csv",
		[]string{"posting_year", "posting_month", "job_count"},
		len(r.Monthly), func(i int) []string {
			m := r.Monthly[i]
			return []string{strconv.Itoa(m.Year), strconv.Itoa(m.Month), strconv.Itoa(m.Count)}
		})
	if err != nil {
		return err
	}

	err = c.writeFile(ctx, "experience_summary.csv",
		[]string{"experience_level", "job_count", "percentage", "avg_salary", "avg_applicants"},
		len(r.Experience), func(i int) []string {
			e := r.Experience[i]
			return []string{e.Level, strconv.Itoa(e.JobCount), formatFloat(e.Percentage), formatOptFloat(e.AvgSalary), formatOptFloat(e.AvgApplicants)}
		})
	if err != nil {
		return err
	}

	err = c.writeFile(ctx, "location_summary.csv",
		[]string{"city", "country", "job_count", "percentage"},
		len(r.Locations), func(i int) []string {
			l := r.Locations[i]
			return []string{l.City, l.Country, strconv.Itoa(l.JobCount), formatFloat(l.Percentage)}
		})
	if err != nil {
		return err
	}

	return c.writeFile(ctx, "industry_summary.csv",
		[]string{"company_industry", "job_count", "company_count", "avg_salary", "percentage"},
		len(r.Industries), func(i int) []string {
			ind := r.Industries[i]
			return []string{ind.Industry, strconv.Itoa(ind.JobCount), strconv.Itoa(ind.CompanyCount), formatOptFloat(ind.AvgSalary), formatFloat(ind.Percentage)}
		})
}

// Close is a no-op; every file is closed as soon as it is written.
func (c *CSVWriter) Close() error {
	return nil
}

// writeFile creates (or truncates) name in the output directory and writes
// the header followed by n rows.
func (c *CSVWriter) writeFile(ctx context.Context, name string, header []string, n int, row func(i int) []string) (err error) {
	path := filepath.Join(c.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv: create file %q: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("csv: close %q: %w", path, cerr)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for i := 0; i < n; i++ {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := w.Write(row(i)); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv: flush %q: %w", path, err)
	}
	return nil
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatOptInt64(v *int64) string {
	if v == nil {
		return ""
	}
	return formatInt(*v)
}

func formatOptFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
