package services

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"job-market-etl/errors"
	"job-market-etl/models"
	"job-market-etl/utils"
)

// headerNonWord folds headers like "Job Posting Date" and "job_posting_date"
// onto the same key.
var headerNonWord = regexp.MustCompile(`[^a-z0-9]+`)

// columnSetters maps folded header names onto RawPosting fields.
var columnSetters = map[string]func(*models.RawPosting, *string){
	"job_id":     func(r *models.RawPosting, v *string) { r.PostingID = v },
	"posting_id": func(r *models.RawPosting, v *string) { r.PostingID = v },
	"id":         func(r *models.RawPosting, v *string) { r.PostingID = v },

	"job_posting_date": func(r *models.RawPosting, v *string) { r.PostingDate = v },
	"posting_date":     func(r *models.RawPosting, v *string) { r.PostingDate = v },

	"job_title":            func(r *models.RawPosting, v *string) { r.JobTitle = v },
	"job_title_full":       func(r *models.RawPosting, v *string) { r.JobTitleFull = v },
	"job_title_additional": func(r *models.RawPosting, v *string) { r.JobTitleAdditional = v },
	"position_type":        func(r *models.RawPosting, v *string) { r.PositionType = v },
	"job_position_type":    func(r *models.RawPosting, v *string) { r.PositionType = v },
	"position_level":       func(r *models.RawPosting, v *string) { r.PositionLevel = v },
	"job_position_level":   func(r *models.RawPosting, v *string) { r.PositionLevel = v },

	"years_of_experience": func(r *models.RawPosting, v *string) { r.YearsExperience = v },
	"years_experience":    func(r *models.RawPosting, v *string) { r.YearsExperience = v },

	"job_location": func(r *models.RawPosting, v *string) { r.Location = v },
	"location":     func(r *models.RawPosting, v *string) { r.Location = v },

	"job_skills": func(r *models.RawPosting, v *string) { r.Skills = v },
	"skills":     func(r *models.RawPosting, v *string) { r.Skills = v },

	"minimum_pay": func(r *models.RawPosting, v *string) { r.MinPay = v },
	"salary_min":  func(r *models.RawPosting, v *string) { r.MinPay = v },
	"maximum_pay": func(r *models.RawPosting, v *string) { r.MaxPay = v },
	"salary_max":  func(r *models.RawPosting, v *string) { r.MaxPay = v },
	"pay_rate":    func(r *models.RawPosting, v *string) { r.PayRate = v },
	"currency":    func(r *models.RawPosting, v *string) { r.Currency = v },

	"applicants":     func(r *models.RawPosting, v *string) { r.Applicants = v },
	"num_applicants": func(r *models.RawPosting, v *string) { r.Applicants = v },

	"company_name":     func(r *models.RawPosting, v *string) { r.CompanyName = v },
	"company_industry": func(r *models.RawPosting, v *string) { r.CompanyIndustry = v },
	"company_size":     func(r *models.RawPosting, v *string) { r.CompanySize = v },
}

var identifierColumns = []string{"job_id", "posting_id", "id"}

// LoadStats describes what the loader kept and skipped.
type LoadStats struct {
	Rows           int
	MalformedRows  int
	DroppedColumns []string
}

// Loader reads the raw job-postings CSV into RawPostings.
type Loader struct {
	logger *utils.Logger
}

// NewLoader creates a Loader with the given logger.
func NewLoader(logger *utils.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load opens path and reads every well-formed row. Only an unreadable
// source is an error; malformed rows are skipped and counted.
func (l *Loader) Load(ctx context.Context, path string) ([]*models.RawPosting, LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadStats{}, errors.SourceUnreadable(fmt.Sprintf("open %q", path), err)
	}
	defer f.Close()

	return l.Read(ctx, f)
}

// Read parses CSV from r. The first record must be a header containing a
// posting-identifier column.
func (l *Loader) Read(ctx context.Context, r io.Reader) ([]*models.RawPosting, LoadStats, error) {
	var stats LoadStats

	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err == io.EOF {
		return nil, stats, errors.SourceUnreadable("empty source", nil)
	}
	if err != nil {
		return nil, stats, errors.SourceUnreadable("read header", err)
	}
	reader.FieldsPerRecord = len(header)
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	setters := make([]func(*models.RawPosting, *string), len(header))
	hasID := false
	for i, h := range header {
		key := foldHeader(h)
		setter, ok := columnSetters[key]
		if !ok {
			stats.DroppedColumns = append(stats.DroppedColumns, h)
			continue
		}
		setters[i] = setter
		for _, id := range identifierColumns {
			if key == id {
				hasID = true
			}
		}
	}
	if !hasID {
		return nil, stats, errors.SourceUnreadable("header has no posting identifier column", nil)
	}
	if len(stats.DroppedColumns) > 0 {
		l.logger.Debug("[loader] Dropping columns: %s", strings.Join(stats.DroppedColumns, ", "))
	}

	var rows []*models.RawPosting
	for {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if stderrors.As(err, &parseErr) {
				stats.MalformedRows++
				l.logger.Debug("[loader] Skipping malformed row at line %d: %v", parseErr.StartLine, parseErr.Err)
				continue
			}
			return nil, stats, errors.SourceUnreadable("read row", err)
		}

		line, _ := reader.FieldPos(0)
		row := &models.RawPosting{Line: line}
		for i, cell := range record {
			if setters[i] == nil {
				continue
			}
			setters[i](row, cellValue(cell))
		}
		rows = append(rows, row)
	}

	stats.Rows = len(rows)
	if stats.MalformedRows > 0 {
		l.logger.Warn("[loader] Skipped %d malformed rows", stats.MalformedRows)
	}
	l.logger.Info("[loader] Loaded %d rows", stats.Rows)
	return rows, stats, nil
}

func foldHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Trim(headerNonWord.ReplaceAllString(h, "_"), "_")
}

func cellValue(cell string) *string {
	if strings.TrimSpace(cell) == "" {
		return nil
	}
	v := cell
	return &v
}
