package convention

import "strings"

// suffixRule rewrites a word ending in suffix by dropping trim bytes and
// appending add.
type suffixRule struct {
	suffix string
	trim   int
	add    string
}

// suffixRules are tried in order; the first match wins.
var suffixRules = []suffixRule{
	{"ss", 0, "es"},
	{"sh", 0, "es"},
	{"ch", 0, "es"},
	{"s", 0, "es"},
	{"x", 0, "es"},
	{"z", 0, "es"},
	{"fe", 2, "ves"},
	{"f", 1, "ves"},
}

// Pluralize returns the plural form of a lower-case English word.
// Irregular nouns are looked up first, then suffix rules, then "s".
func Pluralize(word string) string {
	if word == "" {
		return ""
	}

	if plural, ok := irregularPlurals[word]; ok {
		return plural
	}
	if uncountable[word] {
		return word
	}

	// consonant + y -> ies
	if n := len(word); n > 1 && word[n-1] == 'y' && !isVowel(word[n-2]) {
		return word[:n-1] + "ies"
	}

	for _, r := range suffixRules {
		if strings.HasSuffix(word, r.suffix) {
			return word[:len(word)-r.trim] + r.add
		}
	}

	return word + "s"
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	default:
		return false
	}
}

var irregularPlurals = map[string]string{
	"person":   "people",
	"man":      "men",
	"woman":    "women",
	"child":    "children",
	"foot":     "feet",
	"tooth":    "teeth",
	"goose":    "geese",
	"mouse":    "mice",
	"ox":       "oxen",
	"index":    "indices",
	"matrix":   "matrices",
	"vertex":   "vertices",
	"analysis": "analyses",
	"crisis":   "crises",
	"thesis":   "theses",
	"datum":    "data",
	"medium":   "media",
	"schema":   "schemas",
	"status":   "statuses",
	"chief":    "chiefs",
	"roof":     "roofs",
	"belief":   "beliefs",
}

var uncountable = map[string]bool{
	"data":        true,
	"equipment":   true,
	"information": true,
	"metadata":    true,
	"news":        true,
	"series":      true,
	"species":     true,
	"sheep":       true,
}
