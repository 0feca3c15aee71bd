package services

import (
	"fmt"
	"strings"

	"job-market-etl/errors"
	"job-market-etl/models"
	"job-market-etl/utils"
)

// CompanyRegistry assigns 1-based company IDs in first-seen order. Identity
// is the case-folded, whitespace-collapsed name; display name, industry and
// size come from the first job that named the company.
type CompanyRegistry struct {
	byKey     map[string]*models.Company
	companies []*models.Company
}

// NewCompanyRegistry creates an empty registry.
func NewCompanyRegistry() *CompanyRegistry {
	return &CompanyRegistry{byKey: make(map[string]*models.Company)}
}

// Resolve returns the company for job's company name, registering it if
// new. Jobs without a company name resolve to nil.
func (r *CompanyRegistry) Resolve(job *models.NormalizedJob) *models.Company {
	key := companyKey(job.CompanyName)
	if key == "" {
		return nil
	}
	if c, ok := r.byKey[key]; ok {
		return c
	}
	c := &models.Company{
		ID:       int64(len(r.companies) + 1),
		Name:     collapseSpace(job.CompanyName),
		Industry: job.CompanyIndustry,
		Size:     job.CompanySize,
	}
	r.byKey[key] = c
	r.companies = append(r.companies, c)
	return c
}

// Companies returns the registered companies ordered by ID.
func (r *CompanyRegistry) Companies() []*models.Company {
	return append([]*models.Company(nil), r.companies...)
}

func companyKey(name string) string {
	return strings.ToLower(collapseSpace(name))
}

// EmitStats describes what the emitter kept and excluded. Emitted holds the
// normalized jobs behind the jobs table, in table order.
type EmitStats struct {
	Emitted             []*models.NormalizedJob
	IntegrityViolations int
	SalaryViolations    []models.SalaryViolation
}

// Emitter assembles the relational output from normalized jobs.
type Emitter struct {
	logger *utils.Logger
}

// NewEmitter creates an Emitter with the given logger.
func NewEmitter(logger *utils.Logger) *Emitter {
	return &Emitter{logger: logger}
}

// Emit builds the jobs, companies, skills and job_skills tables. Every
// reference is checked before a row is emitted; rows that would dangle are
// excluded and counted. Salary ranges with max below min are emitted with
// null salary and returned as violations with their original values.
func (e *Emitter) Emit(jobs []*models.NormalizedJob, skills *SkillRegistry) (*models.Tables, EmitStats) {
	var stats EmitStats
	companies := NewCompanyRegistry()
	tables := &models.Tables{
		Jobs: make([]*models.JobRow, 0, len(jobs)),
	}

	jobIDs := make(map[int64]struct{}, len(jobs))
	emitted := make([]*models.NormalizedJob, 0, len(jobs))
	for _, job := range jobs {
		if _, dup := jobIDs[job.JobID]; dup || job.JobID <= 0 {
			e.violation(&stats, errors.ReferentialIntegrity(fmt.Sprintf("job id %d for posting %s is invalid or not unique", job.JobID, job.PostingID), nil))
			continue
		}

		row := toJobRow(job)
		if c := companies.Resolve(job); c != nil {
			id := c.ID
			row.CompanyID = &id
		}
		if job.SalaryRangeViolation && job.SalaryMin != nil && job.SalaryMax != nil {
			stats.SalaryViolations = append(stats.SalaryViolations, models.SalaryViolation{
				JobID:     job.JobID,
				PostingID: job.PostingID,
				SalaryMin: *job.SalaryMin,
				SalaryMax: *job.SalaryMax,
			})
			row.SalaryMin, row.SalaryMax = nil, nil
		}

		jobIDs[job.JobID] = struct{}{}
		emitted = append(emitted, job)
		tables.Jobs = append(tables.Jobs, row)
	}

	tables.Companies = companies.Companies()
	tables.Skills = skills.Skills()

	companyIDs := make(map[int64]struct{}, len(tables.Companies))
	for _, c := range tables.Companies {
		companyIDs[c.ID] = struct{}{}
	}
	keptRows, keptJobs := tables.Jobs[:0], emitted[:0]
	for i, row := range tables.Jobs {
		if row.CompanyID != nil {
			if _, ok := companyIDs[*row.CompanyID]; !ok {
				delete(jobIDs, row.JobID)
				e.violation(&stats, errors.ReferentialIntegrity(fmt.Sprintf("job %d references missing company %d", row.JobID, *row.CompanyID), nil))
				continue
			}
		}
		keptRows = append(keptRows, row)
		keptJobs = append(keptJobs, emitted[i])
	}
	tables.Jobs, emitted = keptRows, keptJobs
	stats.Emitted = emitted

	skillIDs := make(map[int64]struct{}, len(tables.Skills))
	for _, s := range tables.Skills {
		skillIDs[s.ID] = struct{}{}
	}
	pairs := make(map[models.JobSkill]struct{})
	for _, job := range emitted {
		for _, name := range job.SkillTokens {
			skill, ok := skills.Lookup(name)
			if !ok {
				e.violation(&stats, errors.ReferentialIntegrity(fmt.Sprintf("job %d references unregistered skill %q", job.JobID, name), nil))
				continue
			}
			link := models.JobSkill{JobID: job.JobID, SkillID: skill.ID}
			if _, ok := jobIDs[link.JobID]; !ok {
				e.violation(&stats, errors.ReferentialIntegrity(fmt.Sprintf("skill link for missing job %d", link.JobID), nil))
				continue
			}
			if _, ok := skillIDs[link.SkillID]; !ok {
				e.violation(&stats, errors.ReferentialIntegrity(fmt.Sprintf("skill link for missing skill %d", link.SkillID), nil))
				continue
			}
			if _, dup := pairs[link]; dup {
				continue
			}
			pairs[link] = struct{}{}
			tables.JobSkills = append(tables.JobSkills, &link)
		}
	}

	e.logger.Info("[emitter] Emitted %d jobs, %d companies, %d skills, %d job-skill links (%d integrity violations, %d salary range violations)",
		len(tables.Jobs), len(tables.Companies), len(tables.Skills), len(tables.JobSkills),
		stats.IntegrityViolations, len(stats.SalaryViolations))
	return tables, stats
}

func (e *Emitter) violation(stats *EmitStats, err error) {
	stats.IntegrityViolations++
	e.logger.Warn("[emitter] %v", err)
}

func toJobRow(job *models.NormalizedJob) *models.JobRow {
	return &models.JobRow{
		JobID:              job.JobID,
		PostingID:          job.PostingID,
		PostingDate:        job.PostingDate,
		PostingYear:        job.PostingYear,
		PostingMonth:       job.PostingMonth,
		JobTitle:           job.JobTitle,
		JobTitleFull:       job.JobTitleFull,
		JobTitleAdditional: job.JobTitleAdditional,
		PositionType:       job.PositionType,
		PositionLevel:      job.PositionLevel,
		ExperienceYears:    job.ExperienceYears,
		ExperienceLevel:    job.ExperienceLevel,
		City:               job.City,
		Country:            job.Country,
		SalaryMin:          job.SalaryMin,
		SalaryMax:          job.SalaryMax,
		Currency:           job.Currency,
		PayRate:            job.PayRate,
		Applicants:         job.Applicants,
	}
}
