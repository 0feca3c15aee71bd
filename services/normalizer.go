package services

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"job-market-etl/config"
	"job-market-etl/models"
	"job-market-etl/utils"
)

var (
	// experienceRegexp accepts whole years, optionally written as a float
	// with a zero fraction ("4", "4.0").
	experienceRegexp = regexp.MustCompile(`^\+?(\d+)(?:\.0+)?$`)
	// payRegexp captures numeric pay values with an optional thousands suffix.
	payRegexp = regexp.MustCompile(`(\d+(?:\.\d+)?)([kK])?`)
	// letterRunRegexp finds candidate currency codes in pay strings.
	letterRunRegexp = regexp.MustCompile(`[A-Za-z]+`)
)

var knownCurrencies = map[string]struct{}{
	"USD": {}, "EUR": {}, "GBP": {}, "EGP": {}, "SAR": {}, "AED": {}, "QAR": {}, "KWD": {}, "JOD": {},
}

// currencySymbols is checked in order; "E£" must win over "£".
var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"E£", "EGP"},
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
}

// rowIssues flags the field-level anomalies found in one row.
type rowIssues uint8

const (
	issueDate rowIssues = 1 << iota
	issueExperience
	issueSalary
	issueSalaryRange
	issueLocation
)

// NormalizeStats counts field-level anomalies across a batch.
type NormalizeStats struct {
	UnparsableDates       int
	UnparsableExperience  int
	UnparsableSalary      int
	SalaryRangeViolations int
	UnresolvedLocations   int
}

func (s *NormalizeStats) add(i rowIssues) {
	if i&issueDate != 0 {
		s.UnparsableDates++
	}
	if i&issueExperience != 0 {
		s.UnparsableExperience++
	}
	if i&issueSalary != 0 {
		s.UnparsableSalary++
	}
	if i&issueSalaryRange != 0 {
		s.SalaryRangeViolations++
	}
	if i&issueLocation != 0 {
		s.UnresolvedLocations++
	}
}

// Normalizer turns RawPostings into NormalizedJobs (without skills).
type Normalizer struct {
	logger    *utils.Logger
	layouts   []string
	locations *LocationPolicy
	workers   int
}

// NewNormalizer creates a Normalizer. workers > 1 normalizes rows in
// parallel; the output order and job IDs do not depend on it.
func NewNormalizer(logger *utils.Logger, layouts []string, locations *LocationPolicy, workers int) *Normalizer {
	if len(layouts) == 0 {
		layouts = config.DefaultDateFormats
	}
	return &Normalizer{
		logger:    logger,
		layouts:   layouts,
		locations: locations,
		workers:   workers,
	}
}

// NormalizeAll normalizes every row and assigns job IDs 1..n in input order.
func (n *Normalizer) NormalizeAll(ctx context.Context, rows []*models.RawPosting) ([]*models.NormalizedJob, NormalizeStats, error) {
	var stats NormalizeStats
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	jobs := make([]*models.NormalizedJob, len(rows))
	issues := make([]rowIssues, len(rows))

	if n.workers <= 1 {
		for i, r := range rows {
			jobs[i], issues[i] = n.Normalize(r)
		}
	} else {
		pool := utils.NewWorkerPool(n.workers)
		for i, r := range rows {
			i, r := i, r
			pool.Submit(func() {
				jobs[i], issues[i] = n.Normalize(r)
			})
		}
		pool.Wait()
	}

	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	for i, job := range jobs {
		job.JobID = int64(i + 1)
		stats.add(issues[i])
	}

	n.logger.Info("[normalizer] Normalized %d rows (bad dates %d, bad experience %d, bad salary %d, salary range %d, unresolved location %d)",
		len(jobs), stats.UnparsableDates, stats.UnparsableExperience, stats.UnparsableSalary,
		stats.SalaryRangeViolations, stats.UnresolvedLocations)
	return jobs, stats, nil
}

// Normalize converts one raw row. It never fails: unusable fields become
// nil or unknown and are reported through the returned flags.
func (n *Normalizer) Normalize(r *models.RawPosting) (*models.NormalizedJob, rowIssues) {
	var issues rowIssues

	job := &models.NormalizedJob{
		PostingID:          strings.TrimSpace(deref(r.PostingID)),
		JobTitle:           NormalizeText(r.JobTitle),
		JobTitleFull:       NormalizeText(r.JobTitleFull),
		JobTitleAdditional: NormalizeText(r.JobTitleAdditional),
		PositionType:       NormalizeText(r.PositionType),
		PositionLevel:      NormalizeText(r.PositionLevel),
		PayRate:            NormalizeText(r.PayRate),
		CompanyName:        collapseSpace(deref(r.CompanyName)),
		CompanyIndustry:    collapseSpace(deref(r.CompanyIndustry)),
		CompanySize:        collapseSpace(deref(r.CompanySize)),
		Applicants:         ParseApplicants(r.Applicants),
	}

	date, ok := ParseDate(r.PostingDate, n.layouts)
	if !ok {
		issues |= issueDate
	}
	if date != nil {
		year, month := date.Year(), int(date.Month())
		job.PostingDate = date
		job.PostingYear = &year
		job.PostingMonth = &month
	}

	years, ok := ParseExperience(r.YearsExperience)
	if !ok {
		issues |= issueExperience
	}
	if years != nil {
		job.ExperienceYears = years
		job.ExperienceLevel = ExperienceLevel(*years)
	}

	loc := n.locations.Split(r.Location)
	job.City, job.Country = loc.City, loc.Country
	if loc.Unresolved {
		issues |= issueLocation
	}

	sal := ParseSalary(r.MinPay, r.MaxPay, r.Currency)
	job.SalaryMin, job.SalaryMax, job.Currency = sal.Min, sal.Max, sal.Currency
	job.SalaryRangeViolation = sal.RangeViolation
	if sal.Unparsable {
		issues |= issueSalary
	}
	if sal.RangeViolation {
		issues |= issueSalaryRange
	}

	return job, issues
}

// NormalizeText lowercases, trims and collapses internal whitespace. A nil
// or blank value stays empty.
func NormalizeText(raw *string) string {
	return strings.ToLower(collapseSpace(deref(raw)))
}

// ParseDate tries each layout in order and returns the calendar date. The
// boolean is false only when a value was present but matched no layout.
func ParseDate(raw *string, layouts []string) (*time.Time, bool) {
	s := strings.TrimSpace(deref(raw))
	if s == "" {
		return nil, true
	}
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return &d, true
	}
	return nil, false
}

// ParseExperience returns the number of years. Negative or non-numeric
// values are unknown; the boolean is false only when a value was present but
// unusable.
func ParseExperience(raw *string) (*int, bool) {
	s := strings.TrimSpace(deref(raw))
	if s == "" {
		return nil, true
	}
	m := experienceRegexp.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	years, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, false
	}
	return &years, true
}

// ExperienceLevel buckets years of experience: 0–2 Entry, 3–5 Mid, 6+
// Senior. Negative input has no bucket.
func ExperienceLevel(years int) string {
	switch {
	case years < 0:
		return ""
	case years <= 2:
		return models.LevelEntry
	case years <= 5:
		return models.LevelMid
	default:
		return models.LevelSenior
	}
}

// Salary is the parsed pay range of one posting.
type Salary struct {
	Min            *float64
	Max            *float64
	Currency       string
	Unparsable     bool
	RangeViolation bool
}

// ParseSalary converts the raw pay bounds. Partial data is not kept: if
// either bound is missing or unparsable, both come back nil. A maximum below
// the minimum is kept as-is and flagged.
func ParseSalary(minRaw, maxRaw, currencyRaw *string) Salary {
	out := Salary{Currency: detectCurrency(currencyRaw, minRaw, maxRaw)}

	minStr, maxStr := strings.TrimSpace(deref(minRaw)), strings.TrimSpace(deref(maxRaw))
	if minStr == "" && maxStr == "" {
		return out
	}

	lo, okLo := parsePay(minStr)
	hi, okHi := parsePay(maxStr)
	if !okLo || !okHi {
		out.Unparsable = true
		return out
	}

	out.Min, out.Max = &lo, &hi
	out.RangeViolation = hi < lo
	return out
}

// parsePay extracts a single non-negative amount, e.g.
//
//	"50,000" → 50000
//	"$12.5k" → 12500
//	"EGP 8 000" → 8000
func parsePay(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	cleaned := strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)

	matches := payRegexp.FindAllStringSubmatchIndex(cleaned, -1)
	if len(matches) != 1 {
		return 0, false
	}
	m := matches[0]
	if m[0] > 0 && cleaned[m[0]-1] == '-' {
		return 0, false
	}

	val, err := strconv.ParseFloat(cleaned[m[2]:m[3]], 64)
	if err != nil {
		return 0, false
	}
	// "k" only counts as a suffix when it does not start a word such as "KWD".
	if m[4] >= 0 && (m[5] == len(cleaned) || !unicode.IsLetter(rune(cleaned[m[5]]))) {
		val *= 1000
	}
	return val, true
}

// detectCurrency prefers the explicit currency column, then an ISO code or
// symbol found in the pay strings.
func detectCurrency(currencyRaw *string, pay ...*string) string {
	if c := strings.ToUpper(collapseSpace(deref(currencyRaw))); c != "" {
		return c
	}
	for _, p := range pay {
		s := deref(p)
		for _, word := range letterRunRegexp.FindAllString(s, -1) {
			code := strings.ToUpper(word)
			if _, ok := knownCurrencies[code]; ok {
				return code
			}
		}
	}
	for _, p := range pay {
		s := strings.ToUpper(deref(p))
		for _, cs := range currencySymbols {
			if strings.Contains(s, strings.ToUpper(cs.symbol)) {
				return cs.code
			}
		}
	}
	return ""
}

// ParseApplicants returns a non-negative applicant count or nil.
func ParseApplicants(raw *string) *float64 {
	s := strings.ReplaceAll(strings.TrimSpace(deref(raw)), ",", "")
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

// Location is a split location field.
type Location struct {
	City       string
	Country    string
	Unresolved bool
}

// LocationPolicy resolves free-text locations into city and country using
// the taxonomy's country and region tables.
//
// Precedence:
//  1. blank → Unknown, Unknown
//  2. no comma → the whole value is the country; a known region instead
//     yields that region as city and its country
//  3. otherwise split on the last comma; the segment before it is the city
//     and the tail is resolved as a country name/alias, then as a region;
//     an unrecognized tail gives country Unknown and is flagged
type LocationPolicy struct {
	countries map[string]string
	regions   map[string]string
}

// NewLocationPolicy builds the lookup tables from the taxonomy.
func NewLocationPolicy(tax *config.Taxonomy) *LocationPolicy {
	p := &LocationPolicy{
		countries: make(map[string]string),
		regions:   make(map[string]string),
	}
	for country, aliases := range tax.Countries {
		p.countries[config.LocationKey(country)] = country
		for _, a := range aliases {
			p.countries[config.LocationKey(a)] = country
		}
	}
	for country, names := range tax.Regions {
		for _, n := range names {
			p.regions[config.LocationKey(n)] = country
		}
	}
	return p
}

// Split applies the precedence rules documented on LocationPolicy.
func (p *LocationPolicy) Split(raw *string) Location {
	s := collapseSpace(deref(raw))
	if s == "" {
		return Location{City: models.UnknownLocation, Country: models.UnknownLocation}
	}

	idx := strings.LastIndex(s, ",")
	if idx < 0 {
		if c, ok := p.countries[config.LocationKey(s)]; ok {
			return Location{City: models.UnknownLocation, Country: c}
		}
		if c, ok := p.regions[config.LocationKey(s)]; ok {
			return Location{City: s, Country: c}
		}
		return Location{City: models.UnknownLocation, Country: s}
	}

	head := strings.TrimSpace(s[:idx])
	tail := strings.TrimSpace(s[idx+1:])
	if tail == "" {
		return p.Split(&head)
	}

	city := head
	if j := strings.LastIndex(head, ","); j >= 0 {
		city = strings.TrimSpace(head[j+1:])
	}
	if city == "" {
		city = models.UnknownLocation
	}

	if c, ok := p.countries[config.LocationKey(tail)]; ok {
		return Location{City: city, Country: c}
	}
	if c, ok := p.regions[config.LocationKey(tail)]; ok {
		return Location{City: city, Country: c}
	}
	return Location{City: city, Country: models.UnknownLocation, Unresolved: true}
}

// collapseSpace strips leading/trailing whitespace and collapses internal
// whitespace.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
