package location

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"valumatch/server/internal/models"
)

var foldTransformer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Normalize folds a place name into its canonical comparison form: lower
// case, diacritics stripped, punctuation removed, whitespace collapsed.
// "Nueva Andalucía" and "nueva  andalucia" normalize to the same name.
func Normalize(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return ""
	}

	if folded, _, err := transform.String(foldTransformer, name); err == nil {
		name = folded
	}

	var b strings.Builder
	b.Grow(len(name))
	lastSpace := false
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '/' || r == ',' || r == '.':
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Resolve normalizes a property's location into its typed hierarchy. Pure
// function: it never consults the geocoder or any other external service.
func Resolve(p *models.Property) Hierarchy {
	return Hierarchy{
		Street:       Normalize(p.Street),
		Urbanization: Normalize(p.Urbanization),
		Suburb:       Normalize(p.Suburb),
		City:         Normalize(p.City),
		Province:     Normalize(p.Province),
	}
}

// ResolveCriteria normalizes the subject side of a search the same way the
// corpus side was normalized at index time.
func ResolveCriteria(c *models.SearchCriteria) Hierarchy {
	return Hierarchy{
		Street:       Normalize(c.Street),
		Urbanization: Normalize(c.Urbanization),
		Suburb:       Normalize(c.Suburb),
		City:         Normalize(c.City),
		Province:     Normalize(c.Province),
	}
}
