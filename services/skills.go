package services

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/kljensen/snowball"

	"job-market-etl/config"
	"job-market-etl/errors"
	"job-market-etl/models"
	"job-market-etl/utils"
)

// skillWrapChars are stripped from both ends of a skill token.
const skillWrapChars = "\"'`[](){}<>*•·;:!?-_/\\|"

// ParseSkillList splits a raw skill-list cell into its items. It accepts a
// bracketed list literal with single or double quoted items
// ("['Python', 'SQL']") or a plain comma-separated list. Commas inside
// quotes belong to the item. Unbalanced brackets or an unterminated quote
// make the whole list malformed.
func ParseSkillList(raw string) ([]string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}

	opened, closed := strings.HasPrefix(s, "["), strings.HasSuffix(s, "]")
	if opened != closed {
		return nil, errors.MalformedSkillList("unbalanced brackets in "+quoteShort(s), nil)
	}
	if opened {
		s = s[1 : len(s)-1]
	}

	var (
		items   []string
		cur     strings.Builder
		quote   rune
		atStart = true
	)
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
		case atStart && (r == '\'' || r == '"'):
			quote = r
			atStart = false
		case r == ',':
			items = append(items, cur.String())
			cur.Reset()
			atStart = true
		case atStart && unicode.IsSpace(r):
		default:
			cur.WriteRune(r)
			atStart = false
		}
	}
	if quote != 0 {
		return nil, errors.MalformedSkillList("unterminated quote in "+quoteShort(s), nil)
	}
	return append(items, cur.String()), nil
}

// NormalizeSkillToken lowercases a token, collapses whitespace and strips
// wrapping punctuation. Structurally empty tokens come back as "".
func NormalizeSkillToken(tok string) string {
	t := strings.ToLower(collapseSpace(tok))
	t = strings.Trim(t, skillWrapChars)
	t = strings.TrimRight(t, ".,")
	t = strings.TrimSpace(t)
	if config.SkillKey(t) == "" {
		return ""
	}
	return t
}

// SkillStats counts skill-stage anomalies.
type SkillStats struct {
	MalformedLists     int
	UnclassifiedSkills int
	Links              int
}

// SkillExtractor turns raw skill-list cells into canonical skill names and
// classifies them. It is read-only after construction.
type SkillExtractor struct {
	logger     *utils.Logger
	canonical  map[string]string
	categories map[string]string
	softStems  map[string]struct{}
	fallback   string
}

// NewSkillExtractor builds the synonym and category indexes from the
// taxonomy. fallback overrides the taxonomy's fallback category when it
// names a valid category.
func NewSkillExtractor(logger *utils.Logger, tax *config.Taxonomy, fallback string) *SkillExtractor {
	e := &SkillExtractor{
		logger:     logger,
		canonical:  make(map[string]string),
		categories: make(map[string]string),
		softStems:  make(map[string]struct{}),
		fallback:   tax.FallbackCategory,
	}

	fallback = strings.ToLower(strings.TrimSpace(fallback))
	switch {
	case fallback == "":
	case config.ValidCategory(fallback):
		e.fallback = fallback
	default:
		logger.Warn("[skills] Ignoring unknown fallback category %q, using %q", fallback, e.fallback)
	}

	for name, variants := range tax.Synonyms {
		canon := NormalizeSkillToken(name)
		e.canonical[config.SkillKey(canon)] = canon
		for _, v := range variants {
			if k := config.SkillKey(v); k != "" {
				e.canonical[k] = canon
			}
		}
	}
	for category, names := range tax.Categories {
		for _, name := range names {
			e.categories[config.SkillKey(name)] = category
		}
	}
	for _, kw := range tax.SoftKeywords {
		e.softStems[stem(strings.ToLower(kw))] = struct{}{}
	}
	return e
}

// Canonical maps a normalized token onto its canonical skill name.
func (e *SkillExtractor) Canonical(token string) string {
	if c, ok := e.canonical[config.SkillKey(token)]; ok {
		return c
	}
	return token
}

// Classify returns the category for a canonical skill name. The boolean is
// false when neither the category table nor the soft keywords matched and
// the fallback was used.
func (e *SkillExtractor) Classify(name string) (string, bool) {
	if c, ok := e.categories[config.SkillKey(name)]; ok {
		return c, true
	}
	words := strings.FieldsFunc(name, func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		if _, ok := e.softStems[stem(w)]; ok {
			return config.CategorySoft, true
		}
	}
	return e.fallback, false
}

// Extract parses one raw skill-list cell into distinct canonical names in
// first-seen order.
func (e *SkillExtractor) Extract(raw *string) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	items, err := ParseSkillList(*raw)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(items))
	names := make([]string, 0, len(items))
	for _, item := range items {
		tok := NormalizeSkillToken(item)
		if tok == "" {
			continue
		}
		canon := e.Canonical(tok)
		key := config.SkillKey(canon)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, canon)
	}
	return names, nil
}

// ExtractAll fills SkillTokens on every job from the skill cell of the raw
// row it was normalized from (rows[i] belongs to jobs[i]) and registers each
// skill in reg. Jobs are processed in order so skill IDs follow first
// appearance.
func (e *SkillExtractor) ExtractAll(ctx context.Context, rows []*models.RawPosting, jobs []*models.NormalizedJob, reg *SkillRegistry) (SkillStats, error) {
	var stats SkillStats
	if len(rows) != len(jobs) {
		return stats, errors.Internal(fmt.Sprintf("skill extraction got %d rows for %d jobs", len(rows), len(jobs)), nil)
	}

	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		names, err := e.Extract(rows[i].Skills)
		if err != nil {
			stats.MalformedLists++
			e.logger.Debug("[skills] Job %d (%s): %v", job.JobID, job.PostingID, err)
			job.SkillTokens = nil
			continue
		}

		tokens := make([]string, 0, len(names))
		linked := make(map[int64]struct{}, len(names))
		for _, name := range names {
			skill, ok := reg.Lookup(name)
			if !ok {
				category, classified := e.Classify(name)
				if !classified {
					stats.UnclassifiedSkills++
					e.logger.Debug("[skills] Unclassified skill %q filed as %s", name, category)
				}
				skill = reg.Resolve(name, category)
			}
			if _, dup := linked[skill.ID]; dup {
				continue
			}
			linked[skill.ID] = struct{}{}
			tokens = append(tokens, skill.Name)
		}
		job.SkillTokens = tokens
		stats.Links += len(tokens)
	}

	e.logger.Info("[skills] Extracted %d distinct skills across %d jobs (%d links, %d malformed lists, %d unclassified)",
		reg.Len(), len(jobs), stats.Links, stats.MalformedLists, stats.UnclassifiedSkills)
	return stats, nil
}

// SkillRegistry assigns stable, 1-based skill IDs in first-seen order. One
// registry belongs to one pipeline run and has a single writer.
type SkillRegistry struct {
	byKey  map[string]*models.Skill
	skills []*models.Skill
}

// NewSkillRegistry creates an empty registry.
func NewSkillRegistry() *SkillRegistry {
	return &SkillRegistry{byKey: make(map[string]*models.Skill)}
}

// Resolve returns the skill registered under name, creating it with the
// given category if it is new. The category of an existing skill is never
// changed.
func (r *SkillRegistry) Resolve(name, category string) *models.Skill {
	key := config.SkillKey(name)
	if s, ok := r.byKey[key]; ok {
		return s
	}
	s := &models.Skill{
		ID:       int64(len(r.skills) + 1),
		Name:     name,
		Category: category,
	}
	r.byKey[key] = s
	r.skills = append(r.skills, s)
	return s
}

// Lookup returns the skill registered under name without creating one.
func (r *SkillRegistry) Lookup(name string) (*models.Skill, bool) {
	s, ok := r.byKey[config.SkillKey(name)]
	return s, ok
}

// Skills returns the registered skills ordered by ID.
func (r *SkillRegistry) Skills() []*models.Skill {
	return append([]*models.Skill(nil), r.skills...)
}

// Len returns the number of registered skills.
func (r *SkillRegistry) Len() int {
	return len(r.skills)
}

func stem(word string) string {
	stemmed, err := snowball.Stem(word, "english", true)
	if err != nil {
		return word
	}
	return stemmed
}

func quoteShort(s string) string {
	const limit = 40
	if r := []rune(s); len(r) > limit {
		s = string(r[:limit]) + "..."
	}
	return `"` + s + `"`
}
