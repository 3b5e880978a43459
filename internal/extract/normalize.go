package extract

import "strings"

// sectionAliases folds the free-form section labels publications use onto
// canonical names, so the feed, summaries, and notifications agree.
var sectionAliases = map[string]string{
	"obituary":          "Obituaries",
	"obituaries":        "Obituaries",
	"obits":             "Obituaries",
	"sports":            "Sports",
	"news":              "News",
	"local":             "Local",
	"business":          "Business",
	"opinion":           "Opinion",
	"editorial":         "Opinion",
	"police":            "Public Safety",
	"police and courts": "Public Safety",
	"crime":             "Public Safety",
	"classifieds":       "Classifieds",
}

// NormalizeSection maps a section label to its canonical title. Empty
// values become "General"; numeric labels are kept as-is; custom names are
// title-cased with collapsed whitespace. Idempotent: applying it twice is a
// no-op.
func NormalizeSection(section string) string {
	if strings.TrimSpace(section) == "" {
		return "General"
	}
	key := strings.ToLower(strings.TrimSpace(section))
	if normalized, ok := sectionAliases[key]; ok {
		return normalized
	}
	cleaned := strings.Join(strings.Fields(section), " ")
	if isDigits(strings.ReplaceAll(cleaned, " ", "")) {
		return cleaned
	}
	return titleCase(cleaned)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// titleCase uppercases the first letter of each space-separated word,
// lowercasing the rest.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
