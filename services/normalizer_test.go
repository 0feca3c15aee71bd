package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job-market-etl/config"
	"job-market-etl/models"
)

func TestExperienceLevel(t *testing.T) {
	tests := []struct {
		years int
		want  string
	}{
		{0, models.LevelEntry},
		{2, models.LevelEntry},
		{3, models.LevelMid},
		{4, models.LevelMid},
		{5, models.LevelMid},
		{6, models.LevelSenior},
		{25, models.LevelSenior},
		{-1, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExperienceLevel(tt.years), "years=%d", tt.years)
	}
}

func TestParseExperience(t *testing.T) {
	tests := []struct {
		raw     *string
		want    *int
		wantOK  bool
		comment string
	}{
		{str("4"), intPtr(4), true, "plain integer"},
		{str(" 4.0 "), intPtr(4), true, "float with zero fraction"},
		{str("+3"), intPtr(3), true, "explicit sign"},
		{nil, nil, true, "absent is not an anomaly"},
		{str("  "), nil, true, "blank is not an anomaly"},
		{str("-1"), nil, false, "negative"},
		{str("3.5"), nil, false, "fractional"},
		{str("five"), nil, false, "non-numeric"},
		{str("2-4"), nil, false, "range"},
	}
	for _, tt := range tests {
		got, ok := ParseExperience(tt.raw)
		assert.Equal(t, tt.want, got, tt.comment)
		assert.Equal(t, tt.wantOK, ok, tt.comment)
	}
}

func TestParseDate(t *testing.T) {
	layouts := config.DefaultDateFormats

	tests := []struct {
		raw    *string
		want   string
		wantOK bool
	}{
		{str("2023-04-15"), "2023-04-15", true},
		{str("2023-04-15 13:45:00"), "2023-04-15", true},
		{str("04/15/2023"), "2023-04-15", true},
		{str("15 April 2023"), "2023-04-15", true},
		{str("Apr 15, 2023"), "2023-04-15", true},
		{str("yesterday"), "", false},
		{str("2023-13-01"), "", false},
		{nil, "", true},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.raw, layouts)
		assert.Equal(t, tt.wantOK, ok)
		if tt.want == "" {
			assert.Nil(t, got)
			continue
		}
		require.NotNil(t, got)
		assert.Equal(t, tt.want, got.Format("2006-01-02"))
		assert.Equal(t, time.UTC, got.Location())
	}
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "senior data analyst", NormalizeText(str("  Senior   DATA\tAnalyst ")))
	assert.Equal(t, "", NormalizeText(nil))
	assert.Equal(t, "", NormalizeText(str("   ")))
}

func TestParseSalary(t *testing.T) {
	tests := []struct {
		name          string
		min, max      *string
		currency      *string
		wantMin       *float64
		wantMax       *float64
		wantCurrency  string
		wantBad       bool
		wantViolation bool
	}{
		{
			name: "plain range", min: str("4000"), max: str("6000"), currency: str("egp"),
			wantMin: floatPtr(4000), wantMax: floatPtr(6000), wantCurrency: "EGP",
		},
		{
			name: "separators and symbol", min: str("$50,000"), max: str("$70,000"),
			wantMin: floatPtr(50000), wantMax: floatPtr(70000), wantCurrency: "USD",
		},
		{
			name: "thousands suffix", min: str("12.5k"), max: str("15K"),
			wantMin: floatPtr(12500), wantMax: floatPtr(15000),
		},
		{
			name: "code in pay string", min: str("8,000 KWD"), max: str("9,000 KWD"),
			wantMin: floatPtr(8000), wantMax: floatPtr(9000), wantCurrency: "KWD",
		},
		{
			name: "range violation keeps both values", min: str("50,000"), max: str("40,000"),
			wantMin: floatPtr(50000), wantMax: floatPtr(40000), wantViolation: true,
		},
		{
			name: "one bound missing", min: str("5000"), max: nil,
			wantBad: true,
		},
		{
			name: "one bound unparsable", min: str("5000"), max: str("negotiable"),
			wantBad: true,
		},
		{
			name: "negative amount", min: str("-5"), max: str("10"),
			wantBad: true,
		},
		{
			name: "ambiguous amount", min: str("1000-2000"), max: str("3000"),
			wantBad: true,
		},
		{
			name: "both absent", min: nil, max: str(" "),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSalary(tt.min, tt.max, tt.currency)
			assert.Equal(t, tt.wantMin, got.Min)
			assert.Equal(t, tt.wantMax, got.Max)
			assert.Equal(t, tt.wantCurrency, got.Currency)
			assert.Equal(t, tt.wantBad, got.Unparsable)
			assert.Equal(t, tt.wantViolation, got.RangeViolation)
		})
	}
}

func TestParseApplicants(t *testing.T) {
	assert.Equal(t, floatPtr(1200), ParseApplicants(str("1,200")))
	assert.Equal(t, floatPtr(0), ParseApplicants(str("0")))
	assert.Nil(t, ParseApplicants(str("-3")))
	assert.Nil(t, ParseApplicants(str("many")))
	assert.Nil(t, ParseApplicants(nil))
}

func TestLocationPolicySplit(t *testing.T) {
	policy := NewLocationPolicy(defaultTaxonomy(t))

	tests := []struct {
		raw        *string
		city       string
		country    string
		unresolved bool
	}{
		{str("San Francisco, CA"), "San Francisco", "United States", false},
		{str("Cairo, Egypt"), "Cairo", "Egypt", false},
		{str("Maadi, Cairo, Egypt"), "Cairo", "Egypt", false},
		{str("Riyadh,  KSA "), "Riyadh", "Saudi Arabia", false},
		{str("Nasr City, Cairo"), "Nasr City", "Egypt", false},
		{str("Egypt"), models.UnknownLocation, "Egypt", false},
		{str("Dubai"), "Dubai", "United Arab Emirates", false},
		{str("Atlantis"), models.UnknownLocation, "Atlantis", false},
		{str("Springfield, XY"), "Springfield", models.UnknownLocation, true},
		{str(", Egypt"), models.UnknownLocation, "Egypt", false},
		{str("Giza,"), "Giza", "Egypt", false},
		{str(""), models.UnknownLocation, models.UnknownLocation, false},
		{nil, models.UnknownLocation, models.UnknownLocation, false},
	}
	for _, tt := range tests {
		got := policy.Split(tt.raw)
		assert.Equal(t, tt.city, got.City, "city for %v", deref(tt.raw))
		assert.Equal(t, tt.country, got.Country, "country for %v", deref(tt.raw))
		assert.Equal(t, tt.unresolved, got.Unresolved, "unresolved for %v", deref(tt.raw))
	}
}

func TestNormalizeRow(t *testing.T) {
	n := NewNormalizer(newTestLogger(), nil, NewLocationPolicy(defaultTaxonomy(t)), 1)

	job, issues := n.Normalize(&models.RawPosting{
		PostingID:       str(" 12345 "),
		PostingDate:     str("not a date"),
		JobTitle:        str("  Senior  Accountant "),
		YearsExperience: str("4"),
		Location:        str("San Francisco, CA"),
		MinPay:          str("50,000"),
		MaxPay:          str("40,000"),
		CompanyName:     str("  Acme   Corp "),
	})

	assert.Equal(t, "12345", job.PostingID)
	assert.Nil(t, job.PostingDate)
	assert.Nil(t, job.PostingYear)
	assert.Nil(t, job.PostingMonth)
	assert.Equal(t, "senior accountant", job.JobTitle)
	assert.Equal(t, models.LevelMid, job.ExperienceLevel)
	assert.Equal(t, "San Francisco", job.City)
	assert.Equal(t, "United States", job.Country)
	assert.Equal(t, floatPtr(50000), job.SalaryMin)
	assert.Equal(t, floatPtr(40000), job.SalaryMax)
	assert.True(t, job.SalaryRangeViolation)
	assert.Equal(t, "Acme Corp", job.CompanyName)

	assert.NotZero(t, issues&issueDate)
	assert.NotZero(t, issues&issueSalaryRange)
	assert.Zero(t, issues&issueExperience)
	assert.Zero(t, issues&issueLocation)
}

func TestNormalizeAllAssignsSequentialIDs(t *testing.T) {
	rows := make([]*models.RawPosting, 0, 50)
	for i := 0; i < 50; i++ {
		exp := "7"
		if i%5 == 0 {
			exp = "n/a"
		}
		rows = append(rows, &models.RawPosting{
			PostingID:       str(string(rune('a'+i%26)) + string(rune('0'+i/26))),
			PostingDate:     str("2023-01-15"),
			YearsExperience: str(exp),
		})
	}

	policy := NewLocationPolicy(defaultTaxonomy(t))
	for _, workers := range []int{1, 8} {
		n := NewNormalizer(newTestLogger(), config.DefaultDateFormats, policy, workers)
		jobs, stats, err := n.NormalizeAll(context.Background(), rows)
		require.NoError(t, err)
		require.Len(t, jobs, len(rows))

		for i, job := range jobs {
			assert.EqualValues(t, i+1, job.JobID)
			assert.Equal(t, *rows[i].PostingID, job.PostingID)
			require.NotNil(t, job.PostingYear)
			assert.Equal(t, 2023, *job.PostingYear)
			assert.Equal(t, 1, *job.PostingMonth)
		}
		assert.Equal(t, 10, stats.UnparsableExperience, "workers=%d", workers)
		assert.Zero(t, stats.UnparsableDates)
	}
}

func TestNormalizeAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := NewNormalizer(newTestLogger(), nil, NewLocationPolicy(defaultTaxonomy(t)), 1)
	_, _, err := n.NormalizeAll(ctx, []*models.RawPosting{{PostingID: str("1")}})
	assert.ErrorIs(t, err, context.Canceled)
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
