package models

import "time"

const (
	LevelEntry  = "Entry"
	LevelMid    = "Mid"
	LevelSenior = "Senior"

	// UnknownLocation is the sentinel for a city or country that could not
	// be recovered from the raw location text.
	UnknownLocation = "Unknown"
)

// RawPosting holds one row exactly as read from the source file. Every
// field is optional; nil means the cell was blank. All coercion happens in
// the normalizer.
type RawPosting struct {
	Line int

	PostingID          *string
	PostingDate        *string
	JobTitle           *string
	JobTitleFull       *string
	JobTitleAdditional *string
	PositionType       *string
	PositionLevel      *string
	YearsExperience    *string
	Location           *string
	Skills             *string
	MinPay             *string
	MaxPay             *string
	PayRate            *string
	Currency           *string
	Applicants         *string
	CompanyName        *string
	CompanyIndustry    *string
	CompanySize        *string
}

// NormalizedJob is the canonical per-posting record. It is never mutated
// after the skill extractor has filled SkillTokens.
type NormalizedJob struct {
	JobID     int64
	PostingID string

	PostingDate  *time.Time
	PostingYear  *int
	PostingMonth *int

	JobTitle           string
	JobTitleFull       string
	JobTitleAdditional string
	PositionType       string
	PositionLevel      string

	ExperienceYears *int
	ExperienceLevel string

	City    string
	Country string

	SalaryMin            *float64
	SalaryMax            *float64
	SalaryRangeViolation bool
	Currency             string
	PayRate              string
	Applicants           *float64

	CompanyName     string
	CompanyIndustry string
	CompanySize     string

	SkillTokens []string
}

// Company is identified by its normalized name.
type Company struct {
	ID       int64
	Name     string
	Industry string
	Size     string
}

// Skill is identified by its canonical name.
type Skill struct {
	ID       int64
	Name     string
	Category string
}

// JobSkill links a job to one of its skills.
type JobSkill struct {
	JobID   int64
	SkillID int64
}

// JobRow is the jobs-table shape of a NormalizedJob: the company is
// referenced by ID instead of by name. A salary range whose maximum is below
// its minimum is emitted with nil bounds; the original values travel in
// QualityReport.SalaryViolations.
type JobRow struct {
	JobID     int64
	PostingID string
	CompanyID *int64

	PostingDate  *time.Time
	PostingYear  *int
	PostingMonth *int

	JobTitle           string
	JobTitleFull       string
	JobTitleAdditional string
	PositionType       string
	PositionLevel      string

	ExperienceYears *int
	ExperienceLevel string

	City    string
	Country string

	SalaryMin  *float64
	SalaryMax  *float64
	Currency   string
	PayRate    string
	Applicants *float64
}

// Tables is the complete relational output of one pipeline run.
type Tables struct {
	Jobs      []*JobRow
	Companies []*Company
	Skills    []*Skill
	JobSkills []*JobSkill
}
