package models

// SkillDemand is one row of the skill demand summary.
type SkillDemand struct {
	SkillID    int64
	SkillName  string
	Category   string
	JobCount   int
	Percentage float64
}

// MonthlyCount is the number of postings in one calendar month.
type MonthlyCount struct {
	Year  int
	Month int
	Count int
}

// ExperienceSummary aggregates postings for one experience level.
type ExperienceSummary struct {
	Level         string
	JobCount      int
	Percentage    float64
	AvgSalary     *float64
	AvgApplicants *float64
}

// LocationCount aggregates postings for one city/country pair.
type LocationCount struct {
	City       string
	Country    string
	JobCount   int
	Percentage float64
}

// IndustrySummary aggregates postings for one company industry.
type IndustrySummary struct {
	Industry     string
	JobCount     int
	CompanyCount int
	AvgSalary    *float64
	Percentage   float64
}

// InsightReport holds the computed analytics over the emitted tables.
type InsightReport struct {
	TotalJobs      int
	TotalCompanies int
	TotalSkills    int
	SalaryCoverage float64

	// SkillDemand covers every skill; TopSkills is its head.
	SkillDemand []SkillDemand
	TopSkills   []SkillDemand
	Monthly     []MonthlyCount
	Experience  []ExperienceSummary
	Locations   []LocationCount
	Industries  []IndustrySummary
}
