package services

import (
	"fmt"
	"sort"
	"strings"

	"job-market-etl/errors"
	"job-market-etl/models"
	"job-market-etl/utils"
)

var experienceOrder = []string{models.LevelEntry, models.LevelMid, models.LevelSenior}

type InsightService struct {
	logger *utils.Logger
	topN   int
}

func NewInsightService(logger *utils.Logger, topN int) *InsightService {
	if topN <= 0 {
		topN = 10
	}
	return &InsightService{logger: logger, topN: topN}
}

func (s *InsightService) Generate(tables *models.Tables) *models.InsightReport {
	report := &models.InsightReport{}
	if tables == nil || len(tables.Jobs) == 0 {
		return report
	}

	total := len(tables.Jobs)
	report.TotalJobs = total
	report.TotalCompanies = len(tables.Companies)
	report.TotalSkills = len(tables.Skills)

	companies := make(map[int64]*models.Company, len(tables.Companies))
	for _, c := range tables.Companies {
		companies[c.ID] = c
	}

	type agg struct {
		count        int
		salarySum    float64
		salaryN      int
		applicantSum float64
		applicantN   int
		companies    map[int64]struct{}
	}
	newAgg := func() *agg { return &agg{companies: make(map[int64]struct{})} }

	byLevel := make(map[string]*agg)
	byMonth := make(map[[2]int]int)
	byLocation := make(map[[2]string]int)
	byIndustry := make(map[string]*agg)
	withSalary := 0

	for _, j := range tables.Jobs {
		salary, hasSalary := midSalary(j)
		if hasSalary {
			withSalary++
		}

		if j.ExperienceLevel != "" {
			a := byLevel[j.ExperienceLevel]
			if a == nil {
				a = newAgg()
				byLevel[j.ExperienceLevel] = a
			}
			a.count++
			if hasSalary {
				a.salarySum += salary
				a.salaryN++
			}
			if j.Applicants != nil {
				a.applicantSum += *j.Applicants
				a.applicantN++
			}
		}

		if j.PostingYear != nil && j.PostingMonth != nil {
			byMonth[[2]int{*j.PostingYear, *j.PostingMonth}]++
		}

		if j.City != models.UnknownLocation || j.Country != models.UnknownLocation {
			byLocation[[2]string{j.City, j.Country}]++
		}

		if j.CompanyID != nil {
			if c := companies[*j.CompanyID]; c != nil && c.Industry != "" {
				a := byIndustry[c.Industry]
				if a == nil {
					a = newAgg()
					byIndustry[c.Industry] = a
				}
				a.count++
				a.companies[c.ID] = struct{}{}
				if hasSalary {
					a.salarySum += salary
					a.salaryN++
				}
			}
		}
	}

	report.SalaryCoverage = percentage(withSalary, total)

	// Skill demand
	jobsPerSkill := make(map[int64]int)
	for _, js := range tables.JobSkills {
		jobsPerSkill[js.SkillID]++
	}
	for _, sk := range tables.Skills {
		n := jobsPerSkill[sk.ID]
		report.SkillDemand = append(report.SkillDemand, models.SkillDemand{
			SkillID:    sk.ID,
			SkillName:  sk.Name,
			Category:   sk.Category,
			JobCount:   n,
			Percentage: percentage(n, total),
		})
	}
	sort.SliceStable(report.SkillDemand, func(i, j int) bool {
		return report.SkillDemand[i].JobCount > report.SkillDemand[j].JobCount
	})
	for _, d := range head(report.SkillDemand, s.topN) {
		if d.JobCount > 0 {
			report.TopSkills = append(report.TopSkills, d)
		}
	}

	// Monthly trend, chronological
	for k, n := range byMonth {
		report.Monthly = append(report.Monthly, models.MonthlyCount{Year: k[0], Month: k[1], Count: n})
	}
	sort.Slice(report.Monthly, func(i, j int) bool {
		a, b := report.Monthly[i], report.Monthly[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Month < b.Month
	})

	for _, level := range experienceOrder {
		a := byLevel[level]
		if a == nil {
			continue
		}
		report.Experience = append(report.Experience, models.ExperienceSummary{
			Level:         level,
			JobCount:      a.count,
			Percentage:    percentage(a.count, total),
			AvgSalary:     mean(a.salarySum, a.salaryN),
			AvgApplicants: mean(a.applicantSum, a.applicantN),
		})
	}

	for k, n := range byLocation {
		report.Locations = append(report.Locations, models.LocationCount{
			City:       k[0],
			Country:    k[1],
			JobCount:   n,
			Percentage: percentage(n, total),
		})
	}
	sort.Slice(report.Locations, func(i, j int) bool {
		a, b := report.Locations[i], report.Locations[j]
		if a.JobCount != b.JobCount {
			return a.JobCount > b.JobCount
		}
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		return a.City < b.City
	})
	report.Locations = head(report.Locations, s.topN)

	for industry, a := range byIndustry {
		report.Industries = append(report.Industries, models.IndustrySummary{
			Industry:     industry,
			JobCount:     a.count,
			CompanyCount: len(a.companies),
			AvgSalary:    mean(a.salarySum, a.salaryN),
			Percentage:   percentage(a.count, total),
		})
	}
	sort.Slice(report.Industries, func(i, j int) bool {
		a, b := report.Industries[i], report.Industries[j]
		if a.JobCount != b.JobCount {
			return a.JobCount > b.JobCount
		}
		return a.Industry < b.Industry
	})
	report.Industries = head(report.Industries, s.topN)

	s.logger.Debug("[insights] %d skills, %d months, %d locations, %d industries summarised",
		len(report.TopSkills), len(report.Monthly), len(report.Locations), len(report.Industries))
	return report
}

func (s *InsightService) Print(r *models.InsightReport, q *models.QualityReport) {
	sep := strings.Repeat("═", 60)
	thin := strings.Repeat("─", 60)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  📊 JOB MARKET INSIGHTS\033[0m\n")
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Printf("\033[1;33m  Overview\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Jobs       : \033[1m%d\033[0m\n", r.TotalJobs)
	fmt.Printf("  Companies  : \033[1m%d\033[0m\n", r.TotalCompanies)
	fmt.Printf("  Skills     : \033[1m%d\033[0m\n", r.TotalSkills)
	fmt.Printf("  Salary data: \033[1;32m%.2f%%\033[0m of postings\n", r.SalaryCoverage)
	fmt.Println()

	fmt.Printf("\033[1;33m  Top %d Skills in Demand\033[0m\n", len(r.TopSkills))
	fmt.Printf("  %s\n", thin)
	if len(r.TopSkills) == 0 {
		fmt.Printf("  No skill data\n")
	}
	for i, sk := range r.TopSkills {
		fmt.Printf("  \033[1m%2d.\033[0m %-30s %-9s %5d  \033[1;32m%6.2f%%\033[0m\n",
			i+1, truncate(sk.SkillName, 30), sk.Category, sk.JobCount, sk.Percentage)
	}
	fmt.Println()

	fmt.Printf("\033[1;33m  Postings per Month\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if len(r.Monthly) == 0 {
		fmt.Printf("  No dated postings\n")
	}
	for _, m := range r.Monthly {
		fmt.Printf("  %04d-%02d  %s (%d)\n", m.Year, m.Month, bar(m.Count, maxMonthly(r.Monthly)), m.Count)
	}
	fmt.Println()

	fmt.Printf("\033[1;33m  Experience Levels\033[0m\n")
	fmt.Printf("  %s\n", thin)
	for _, e := range r.Experience {
		fmt.Printf("  %-8s %5d  %6.2f%%  avg salary %-10s avg applicants %s\n",
			e.Level, e.JobCount, e.Percentage, formatOptional(e.AvgSalary), formatOptional(e.AvgApplicants))
	}
	fmt.Println()

	fmt.Printf("\033[1;33m  Top Locations\033[0m\n")
	fmt.Printf("  %s\n", thin)
	for _, l := range r.Locations {
		fmt.Printf("  %-36s %5d  %6.2f%%\n", truncate(l.City+", "+l.Country, 36), l.JobCount, l.Percentage)
	}
	fmt.Println()

	fmt.Printf("\033[1;33m  Top Industries\033[0m\n")
	fmt.Printf("  %s\n", thin)
	for _, ind := range r.Industries {
		fmt.Printf("  %-32s %5d jobs  %4d companies  avg salary %s\n",
			truncate(ind.Industry, 32), ind.JobCount, ind.CompanyCount, formatOptional(ind.AvgSalary))
	}
	fmt.Println()

	if q != nil {
		fmt.Printf("\033[1;33m  Data Quality\033[0m\n")
		fmt.Printf("  %s\n", thin)
		fmt.Printf("  Rows read %d → jobs emitted %d\n", q.RowsRead, q.JobsEmitted)
		if q.Issues() == 0 {
			fmt.Printf("  \033[1;32mNo issues\033[0m\n")
		}
		for _, kind := range errors.Kinds {
			if n := q.Count(kind); n > 0 {
				fmt.Printf("  %-34s \033[1;31m%d\033[0m\n", kind, n)
			}
		}
	}

	fmt.Printf("\n\033[1;35m%s\033[0m\n\n", sep)
}

// midSalary is the midpoint of a job's salary range.
func midSalary(j *models.JobRow) (float64, bool) {
	if j.SalaryMin == nil || j.SalaryMax == nil {
		return 0, false
	}
	return (*j.SalaryMin + *j.SalaryMax) / 2, true
}

func percentage(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(n) * 100 / float64(total))
}

func mean(sum float64, n int) *float64 {
	if n == 0 {
		return nil
	}
	m := round2(sum / float64(n))
	return &m
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func maxMonthly(ms []models.MonthlyCount) int {
	m := 0
	for _, c := range ms {
		if c.Count > m {
			m = c.Count
		}
	}
	return m
}

func bar(n, max int) string {
	const width = 30
	if max == 0 {
		return ""
	}
	return strings.Repeat("█", (n*width+max-1)/max)
}

func formatOptional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
