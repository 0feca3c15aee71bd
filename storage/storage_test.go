package storage

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job-market-etl/config"
	"job-market-etl/errors"
	"job-market-etl/models"
	"job-market-etl/utils"
)

func sampleTables() *models.Tables {
	companyID := int64(1)
	year, month := 2023, 3
	posted := time.Date(2023, 3, 14, 0, 0, 0, 0, time.UTC)
	exp := 4
	lo, hi := 4000.0, 6000.0

	return &models.Tables{
		Companies: []*models.Company{{ID: 1, Name: "Acme", Industry: "Software", Size: "51-200"}},
		Skills: []*models.Skill{
			{ID: 1, Name: "python", Category: config.CategoryTechnical},
			{ID: 2, Name: "sql", Category: config.CategoryTechnical},
			{ID: 3, Name: "teamwork", Category: config.CategorySoft},
		},
		Jobs: []*models.JobRow{
			{
				JobID: 1, PostingID: "12345", CompanyID: &companyID,
				PostingDate: &posted, PostingYear: &year, PostingMonth: &month,
				JobTitle: "data analyst", ExperienceYears: &exp, ExperienceLevel: models.LevelMid,
				City: "Cairo", Country: "Egypt", SalaryMin: &lo, SalaryMax: &hi, Currency: "EGP",
			},
			{JobID: 2, PostingID: "777", City: models.UnknownLocation, Country: models.UnknownLocation},
		},
		JobSkills: []*models.JobSkill{
			{JobID: 1, SkillID: 1},
			{JobID: 1, SkillID: 2},
			{JobID: 2, SkillID: 2},
			{JobID: 2, SkillID: 3},
		},
	}
}

func sampleReport(runID string) *models.QualityReport {
	r := models.NewQualityReport(runID, "postings.csv")
	r.RowsRead = 3
	r.JobsEmitted = 2
	r.Add(errors.ErrTypeDuplicateIdentifier, 1)
	r.Add(errors.ErrTypeSalaryRangeViolation, 1)
	r.SalaryViolations = []models.SalaryViolation{{JobID: 2, PostingID: "777", SalaryMin: 50000, SalaryMax: 40000}}
	r.FinishedAt = time.Now().UTC()
	return r
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestCSVWriterTables(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w, err := NewCSVWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	ctx := context.Background()
	require.NoError(t, w.Write(ctx, sampleTables()))
	require.NoError(t, w.WriteReport(ctx, sampleReport("run-1")))

	jobs := readCSV(t, filepath.Join(dir, "jobs.csv"))
	require.Len(t, jobs, 3)
	assert.Equal(t, jobColumns, jobs[0])
	assert.Equal(t, []string{
		"1", "12345", "1", "2023-03-14", "2023", "3",
		"data analyst", "", "", "", "",
		"4", "Mid", "Cairo", "Egypt",
		"4000", "6000", "EGP", "", "",
	}, jobs[1])
	assert.Equal(t, "", jobs[2][2], "missing company is an empty cell")

	assert.Len(t, readCSV(t, filepath.Join(dir, "companies.csv")), 2)
	assert.Len(t, readCSV(t, filepath.Join(dir, "skills.csv")), 4)
	assert.Len(t, readCSV(t, filepath.Join(dir, "job_skills.csv")), 5)

	quality := readCSV(t, filepath.Join(dir, "quality_report.csv"))
	assert.Len(t, quality, len(errors.Kinds)+1)
	assert.Contains(t, quality, []string{"run-1", "DUPLICATE_IDENTIFIER", "1"})
	assert.Contains(t, quality, []string{"run-1", "MALFORMED_ROW", "0"})

	violations := readCSV(t, filepath.Join(dir, "salary_violations.csv"))
	assert.Equal(t, []string{"run-1", "2", "777", "50000", "40000"}, violations[1])
}

func TestCSVWriterSummaries(t *testing.T) {
	dir := t.TempDir()
	w, err := NewCSVWriter(dir)
	require.NoError(t, err)

	avg := 5000.0
	report := &models.InsightReport{
		SkillDemand: []models.SkillDemand{
			{SkillID: 2, SkillName: "sql", Category: "technical", JobCount: 2, Percentage: 100},
			{SkillID: 1, SkillName: "python", Category: "technical", JobCount: 1, Percentage: 50},
		},
		TopSkills:  []models.SkillDemand{{SkillID: 2, SkillName: "sql", Category: "technical", JobCount: 2, Percentage: 100}},
		Monthly:    []models.MonthlyCount{{Year: 2023, Month: 3, Count: 1}},
		Experience: []models.ExperienceSummary{{Level: models.LevelMid, JobCount: 1, Percentage: 50, AvgSalary: &avg}},
		Locations:  []models.LocationCount{{City: "Cairo", Country: "Egypt", JobCount: 1, Percentage: 50}},
		Industries: []models.IndustrySummary{{Industry: "Software", JobCount: 1, CompanyCount: 1, Percentage: 50}},
	}
	require.NoError(t, w.WriteSummaries(context.Background(), report))

	skills := readCSV(t, filepath.Join(dir, "skills_summary.csv"))
	require.Len(t, skills, 3, "every skill is summarised, not only the top ones")
	assert.Equal(t, []string{"2", "sql", "technical", "2", "100"}, skills[1])
	assert.Equal(t, []string{"2023", "3", "1"}, readCSV(t, filepath.Join(dir, "monthly_trends.csv"))[1])
	assert.Equal(t, []string{"Mid", "1", "50", "5000", ""}, readCSV(t, filepath.Join(dir, "experience_summary.csv"))[1])
	assert.Equal(t, []string{"Cairo", "Egypt", "1", "50"}, readCSV(t, filepath.Join(dir, "location_summary.csv"))[1])
	assert.Equal(t, []string{"Software", "1", "1", "", "50"}, readCSV(t, filepath.Join(dir, "industry_summary.csv"))[1])
}

func newSQLiteWriter(t *testing.T) *SQLWriter {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.db")
	retry := utils.RetryConfig{MaxAttempts: 1}
	w, err := NewSQLWriter(context.Background(), config.DriverSQLite, path, 2, retry, utils.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestSQLWriterRoundTrip(t *testing.T) {
	w := newSQLiteWriter(t)
	ctx := context.Background()

	require.NoError(t, w.Write(ctx, sampleTables()))
	require.NoError(t, w.WriteReport(ctx, sampleReport("run-1")))

	counts, err := w.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, TableCounts{Jobs: 2, Companies: 1, Skills: 3, JobSkills: 4}, counts)

	top, err := w.TopSkills(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "sql", top[0].SkillName)
	assert.Equal(t, 2, top[0].JobCount)
	assert.Equal(t, 100.0, top[0].Percentage)
	assert.Equal(t, "python", top[1].SkillName, "ties are ordered by skill id")
	assert.Equal(t, 50.0, top[1].Percentage)

	var issues int
	require.NoError(t, w.db.QueryRowContext(ctx, "SELECT SUM(issue_count) FROM quality_issues WHERE run_id = ?", "run-1").Scan(&issues))
	assert.Equal(t, 2, issues)

	var lo, hi float64
	require.NoError(t, w.db.QueryRowContext(ctx,
		"SELECT salary_min, salary_max FROM salary_violations WHERE run_id = ? AND posting_id = ?", "run-1", "777").Scan(&lo, &hi))
	assert.Equal(t, 50000.0, lo, "violating bounds are kept outside the jobs table")
	assert.Equal(t, 40000.0, hi)
}

func TestSQLWriterReplacesPreviousRun(t *testing.T) {
	w := newSQLiteWriter(t)
	ctx := context.Background()

	require.NoError(t, w.Write(ctx, sampleTables()))
	require.NoError(t, w.Write(ctx, sampleTables()))

	counts, err := w.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Jobs, "a second write replaces rather than appends")
}

func TestSQLWriterEnforcesConstraints(t *testing.T) {
	w := newSQLiteWriter(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*models.Tables)
	}{
		{"salary max below min", func(tb *models.Tables) {
			lo, hi := 10.0, 5.0
			tb.Jobs[0].SalaryMin, tb.Jobs[0].SalaryMax = &lo, &hi
		}},
		{"unknown experience level", func(tb *models.Tables) { tb.Jobs[0].ExperienceLevel = "Principal" }},
		{"unknown skill category", func(tb *models.Tables) { tb.Skills[0].Category = "hard" }},
		{"dangling skill link", func(tb *models.Tables) {
			tb.JobSkills = append(tb.JobSkills, &models.JobSkill{JobID: 1, SkillID: 99})
		}},
		{"dangling company", func(tb *models.Tables) {
			missing := int64(42)
			tb.Jobs[1].CompanyID = &missing
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tables := sampleTables()
			tt.mutate(tables)
			assert.Error(t, w.Write(ctx, tables))
		})
	}

	counts, err := w.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Jobs, "failed writes roll back")
}

func TestNewSQLWriterRejectsUnknownDriver(t *testing.T) {
	_, err := NewSQLWriter(context.Background(), "mysql", "", 0, utils.RetryConfig{}, utils.NewNopLogger())
	assert.Error(t, err)
}
