package agent

import "strings"

// Classifier decides from a sysDescr string whether a host is a printer.
type Classifier func(descriptor string) bool

// DefaultKeywords are the vendor and product tokens that mark a printer.
var DefaultKeywords = []string{
	"print", "hp", "xerox", "canon", "epson", "brother",
	"ricoh", "lexmark", "kyocera", "konica", "sharp", "oki",
}

// KeywordClassifier matches case-insensitively on any keyword as a substring.
// Empty keywords are ignored; a nil or empty list falls back to DefaultKeywords.
func KeywordClassifier(keywords []string) Classifier {
	var kws []string
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kws = append(kws, k)
		}
	}
	if len(kws) == 0 {
		kws = DefaultKeywords
	}
	return func(descriptor string) bool {
		lower := strings.ToLower(descriptor)
		for _, k := range kws {
			if strings.Contains(lower, k) {
				return true
			}
		}
		return false
	}
}
