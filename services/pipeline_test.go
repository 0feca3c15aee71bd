package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"job-market-etl/config"
	"job-market-etl/errors"
	"job-market-etl/models"
	"job-market-etl/utils"
)

const pipelineFixture = `Job ID,Job Posting Date,Job Title,Years of Experience,Job Location,Job Skills,Minimum Pay,Maximum Pay,Currency,Applicants,Company Name,Company Industry,Company Size
12345,2023-01-05,Data Analyst,4,"San Francisco, CA","['Python', 'python ', 'SQL']",5000,8000,USD,120,Acme,Software,51-200
12345,2023-01-06,Senior Data Analyst,7,"Cairo, Egypt",['Excel'],,,,,Acme,,
777,not a date,Accountant,-1,Giza,"['Excel', 'Teamwork']","50,000","40,000",EGP,30,acme,Retail,10
888,2023-02-01,Sales Rep,abc,"Springfield, XY","['Negotiation', 'broken",5000,,,,Globex,Sales,
,2023-02-02,Ghost,1,Cairo,,,,,,,,
999,2023-02-03,Engineer,0,,"JS, javascript, Underwater Welding",,,,,Initech,Engineering,1000+
1000,oops
`

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	cfg := &config.Config{DateFormats: config.DefaultDateFormats, NormalizeWorkers: 2}
	return NewPipeline(newTestLogger(), cfg, defaultTaxonomy(t))
}

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "postings.csv")
	require.NoError(t, os.WriteFile(path, []byte(pipelineFixture), 0o644))
	return path
}

func TestPipelineRun(t *testing.T) {
	res, err := newTestPipeline(t).Run(context.Background(), writeFixture(t))
	require.NoError(t, err)

	report := res.Report
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, res.RunID, report.RunID)
	assert.Equal(t, 7, report.RowsRead)
	assert.Equal(t, 4, report.JobsEmitted)

	wantCounts := map[errors.ErrorType]int{
		errors.ErrTypeMalformedRow:         1,
		errors.ErrTypeMissingIdentifier:    1,
		errors.ErrTypeDuplicateIdentifier:  1,
		errors.ErrTypeUnparsableDate:       1,
		errors.ErrTypeUnparsableExperience: 2,
		errors.ErrTypeUnparsableSalary:     1,
		errors.ErrTypeSalaryRangeViolation: 1,
		errors.ErrTypeUnresolvedLocation:   1,
		errors.ErrTypeMalformedSkillList:   1,
		errors.ErrTypeUnclassifiedSkill:    1,
	}
	assert.Equal(t, wantCounts, report.Counts)

	var stages []models.Stage
	for _, s := range report.Stages {
		stages = append(stages, s.Stage)
	}
	assert.Equal(t, []models.Stage{
		models.StageLoaded, models.StageDeduplicated, models.StageNormalized,
		models.StageSkillsExtracted, models.StageEmitted,
	}, stages)

	tables := res.Tables
	require.Len(t, tables.Jobs, 4)

	first := tables.Jobs[0]
	assert.Equal(t, "12345", first.PostingID)
	assert.Equal(t, "data analyst", first.JobTitle, "first-seen duplicate wins")
	assert.Equal(t, models.LevelMid, first.ExperienceLevel)
	assert.Equal(t, "San Francisco", first.City)
	assert.Equal(t, "United States", first.Country)
	assert.Equal(t, 2023, *first.PostingYear)
	assert.Equal(t, 1, *first.PostingMonth)

	violator := tables.Jobs[1]
	assert.Equal(t, "777", violator.PostingID)
	assert.Nil(t, violator.PostingYear)
	assert.Empty(t, violator.ExperienceLevel)
	assert.Equal(t, "Giza", violator.City)
	assert.Equal(t, "Egypt", violator.Country)
	assert.Nil(t, violator.SalaryMin)
	require.Len(t, report.SalaryViolations, 1)
	assert.Equal(t, models.SalaryViolation{JobID: 2, PostingID: "777", SalaryMin: 50000, SalaryMax: 40000}, report.SalaryViolations[0])

	assert.Equal(t, models.UnknownLocation, tables.Jobs[3].City)
	assert.Equal(t, models.LevelEntry, tables.Jobs[3].ExperienceLevel)

	var companyNames []string
	for _, c := range tables.Companies {
		companyNames = append(companyNames, c.Name)
	}
	assert.Equal(t, []string{"Acme", "Globex", "Initech"}, companyNames)
	assert.Equal(t, *tables.Jobs[0].CompanyID, *tables.Jobs[1].CompanyID)

	var skillNames []string
	for _, s := range tables.Skills {
		skillNames = append(skillNames, s.Name)
	}
	assert.Equal(t, []string{"python", "sql", "microsoft excel", "teamwork", "javascript", "underwater welding"}, skillNames)
	assert.Len(t, tables.JobSkills, 6)
	assert.Empty(t, res.Jobs[2].SkillTokens, "malformed skill list means no skills")
}

func TestPipelineInvariants(t *testing.T) {
	res, err := newTestPipeline(t).Run(context.Background(), writeFixture(t))
	require.NoError(t, err)
	tables := res.Tables

	jobIDs := make(map[int64]bool)
	for _, j := range tables.Jobs {
		assert.False(t, jobIDs[j.JobID], "job id %d is unique", j.JobID)
		jobIDs[j.JobID] = true

		if j.SalaryMin != nil && j.SalaryMax != nil {
			assert.GreaterOrEqual(t, *j.SalaryMax, *j.SalaryMin)
		}
		if j.ExperienceYears != nil {
			assert.Equal(t, ExperienceLevel(*j.ExperienceYears), j.ExperienceLevel)
		} else {
			assert.Empty(t, j.ExperienceLevel)
		}
		assert.Equal(t, j.PostingDate == nil, j.PostingYear == nil)
		assert.Equal(t, j.PostingYear == nil, j.PostingMonth == nil)
	}

	companyIDs := make(map[int64]bool)
	companyNames := make(map[string]bool)
	for _, c := range tables.Companies {
		companyIDs[c.ID] = true
		assert.False(t, companyNames[companyKey(c.Name)], "company %q is unique", c.Name)
		companyNames[companyKey(c.Name)] = true
	}
	for _, j := range tables.Jobs {
		if j.CompanyID != nil {
			assert.True(t, companyIDs[*j.CompanyID])
		}
	}

	skillIDs := make(map[int64]bool)
	for _, s := range tables.Skills {
		skillIDs[s.ID] = true
		assert.True(t, config.ValidCategory(s.Category))
	}
	pairs := make(map[models.JobSkill]bool)
	for _, js := range tables.JobSkills {
		assert.True(t, jobIDs[js.JobID])
		assert.True(t, skillIDs[js.SkillID])
		assert.False(t, pairs[*js], "pair %+v is unique", *js)
		pairs[*js] = true
	}

	require.Len(t, res.Jobs, len(tables.Jobs))
	for i, job := range res.Jobs {
		assert.Equal(t, tables.Jobs[i].JobID, job.JobID, "result jobs line up with the jobs table")
	}

	for _, job := range res.Jobs {
		seen := make(map[string]bool)
		for _, name := range job.SkillTokens {
			assert.False(t, seen[name], "job %d lists %q once", job.JobID, name)
			seen[name] = true
		}
	}
}

func TestPipelineIsIdempotent(t *testing.T) {
	path := writeFixture(t)
	p := newTestPipeline(t)

	first, err := p.Run(context.Background(), path)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), path)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Tables, second.Tables)
	assert.Equal(t, first.Report.Counts, second.Report.Counts)
}

func TestPipelineSourceUnreadable(t *testing.T) {
	_, err := newTestPipeline(t).Run(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTypeSourceUnreadable))
}

func TestPipelineLogsStackOnFatalError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := &config.Config{DateFormats: config.DefaultDateFormats}
	p := NewPipeline(utils.NewLoggerFromZap(zap.New(core)), cfg, defaultTaxonomy(t))

	_, err := p.Run(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)

	aborted := logs.FilterLevelExact(zapcore.ErrorLevel).FilterMessageSnippet("aborted during load")
	require.Equal(t, 1, aborted.Len())
	assert.Contains(t, aborted.All()[0].Message, string(errors.ErrTypeSourceUnreadable))
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.DebugLevel).FilterMessageSnippet("Stack trace").Len())
}
