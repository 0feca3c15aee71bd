package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode"

	"go.yaml.in/yaml/v4"
)

const (
	CategoryTechnical = "technical"
	CategorySoft      = "soft"
)

//go:embed taxonomy.yaml
var defaultTaxonomy []byte

// Taxonomy is the static lookup data for skill and location normalization.
// It is loaded once per run and treated as read-only afterwards.
type Taxonomy struct {
	FallbackCategory string              `yaml:"fallback_category"`
	Synonyms         map[string][]string `yaml:"synonyms"`
	Categories       map[string][]string `yaml:"categories"`
	SoftKeywords     []string            `yaml:"soft_keywords"`
	Countries        map[string][]string `yaml:"countries"`
	Regions          map[string][]string `yaml:"regions"`
}

// LoadTaxonomy reads the taxonomy from path, or the embedded default when
// path is empty.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data := defaultTaxonomy
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("taxonomy: read %q: %w", path, err)
		}
		data = raw
	}
	return ParseTaxonomy(data)
}

// ParseTaxonomy decodes and validates a YAML taxonomy document.
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("taxonomy: decode: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks category names, that no skill is filed under both
// categories, and that no folded skill or location key is claimed by two
// different entries.
func (t *Taxonomy) Validate() error {
	t.FallbackCategory = strings.ToLower(strings.TrimSpace(t.FallbackCategory))
	if t.FallbackCategory == "" {
		t.FallbackCategory = CategoryTechnical
	}
	if !ValidCategory(t.FallbackCategory) {
		return fmt.Errorf("taxonomy: unknown fallback category %q", t.FallbackCategory)
	}

	owner := make(map[string]string)
	for category, skills := range t.Categories {
		if !ValidCategory(category) {
			return fmt.Errorf("taxonomy: unknown category %q", category)
		}
		for _, s := range skills {
			key := SkillKey(s)
			if prev, ok := owner[key]; ok && prev != category {
				return fmt.Errorf("taxonomy: skill %q listed as both %s and %s", s, prev, category)
			}
			owner[key] = category
		}
	}

	canonical := make(map[string]string)
	for name, variants := range t.Synonyms {
		canon := LocationKey(name)
		for _, v := range append([]string{name}, variants...) {
			if err := claim(canonical, SkillKey(v), canon, "synonym", v); err != nil {
				return err
			}
		}
	}

	countries := make(map[string]string)
	for country, aliases := range t.Countries {
		for _, a := range append([]string{country}, aliases...) {
			if err := claim(countries, LocationKey(a), country, "country alias", a); err != nil {
				return err
			}
		}
	}
	regions := make(map[string]string)
	for country, names := range t.Regions {
		for _, n := range names {
			if err := claim(regions, LocationKey(n), country, "region", n); err != nil {
				return err
			}
		}
	}
	return nil
}

// claim records key as owned by owner, failing if another owner holds it.
// Empty keys are ignored.
func claim(owners map[string]string, key, owner, what, raw string) error {
	if key == "" {
		return nil
	}
	if prev, ok := owners[key]; ok && prev != owner {
		return fmt.Errorf("taxonomy: %s %q maps to both %q and %q", what, raw, prev, owner)
	}
	owners[key] = owner
	return nil
}

// SkillKey is the identity used for synonym lookup and skill dedup:
// letters, digits, '+' and '#' survive; everything else is dropped, so
// "Node.js", "node js" and "nodejs" share a key while "c", "c++" and "c#"
// stay distinct.
func SkillKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LocationKey folds a country, alias or region name for lookup.
func LocationKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// ValidCategory reports whether c is one of the two skill categories.
func ValidCategory(c string) bool {
	return c == CategoryTechnical || c == CategorySoft
}
