package services

import (
	"strings"

	"job-market-etl/models"
	"job-market-etl/utils"
)

// DedupStats counts the rows the deduplicator removed, by reason.
type DedupStats struct {
	MissingIdentifier   int
	DuplicateIdentifier int
}

// Deduplicator keeps one RawPosting per posting identifier.
type Deduplicator struct {
	logger *utils.Logger
}

// NewDeduplicator creates a Deduplicator with the given logger.
func NewDeduplicator(logger *utils.Logger) *Deduplicator {
	return &Deduplicator{logger: logger}
}

// Deduplicate drops rows without an identifier and every row whose
// identifier was already seen. The first occurrence wins and input order is
// preserved.
func (d *Deduplicator) Deduplicate(rows []*models.RawPosting) ([]*models.RawPosting, DedupStats) {
	var stats DedupStats
	seen := utils.NewKeySet()
	result := make([]*models.RawPosting, 0, len(rows))

	for _, r := range rows {
		id := ""
		if r.PostingID != nil {
			id = strings.TrimSpace(*r.PostingID)
		}
		if id == "" {
			stats.MissingIdentifier++
			d.logger.Debug("[dedup] Dropping row at line %d with no posting id", r.Line)
			continue
		}

		if seen.Contains(id) {
			stats.DuplicateIdentifier++
			d.logger.Debug("[dedup] Duplicate posting id %s skipped (line %d)", id, r.Line)
			continue
		}
		seen.Add(id)

		kept := *r
		kept.PostingID = &id
		result = append(result, &kept)
	}

	d.logger.Info("[dedup] Deduplicated %d → %d rows across %d distinct ids (duplicates %d, missing id %d)",
		len(rows), len(result), seen.Size(), stats.DuplicateIdentifier, stats.MissingIdentifier)
	return result, stats
}
