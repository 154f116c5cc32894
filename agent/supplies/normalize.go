// Package supplies classifies printer supply table descriptions.
package supplies

import (
	"regexp"
	"strings"
)

// Canonical supply keys.
const (
	TonerBlack   = "toner_black"
	TonerCyan    = "toner_cyan"
	TonerMagenta = "toner_magenta"
	TonerYellow  = "toner_yellow"
	Drum         = "drum_life"
	WasteToner   = "waste_toner"
	Fuser        = "fuser_life"
	TransferBelt = "transfer_belt"
	Maintenance  = "maintenance_kit"
	Staples      = "staples"
)

// supplyKeywords decide whether a supply table row is a consumable worth reporting.
// Paper trays and output bins show up in the same table on some vendors.
var supplyKeywords = []string{
	"toner", "ink", "cartridge", "developer", "drum", "imaging", "photoconductor", "opc",
	"fuser", "fusing", "waste", "transfer", "belt", "maintenance", "kit", "staple",
	"black", "cyan", "magenta", "yellow",
}

// Part numbers whose trailing letter encodes the colour, e.g. TK-8517K, CE401A is not one.
var colorPartNumber = regexp.MustCompile(`(?i)^(?:supply\s+)?(tk|tn|ce|cf|cb|cc|w\d|q\d|c\d)[- ]?\d{3,5}([kcmy])$`)

// Mono toner part numbers without a colour suffix, e.g. TK-3182, TN-760.
var monoPartNumber = regexp.MustCompile(`(?i)^(?:supply\s+)?(tk|tn)[- ]?\d{3,5}$`)

var partColor = map[string]string{"k": TonerBlack, "c": TonerCyan, "m": TonerMagenta, "y": TonerYellow}

type colorRule struct {
	key   string
	words []string
	bare  string
}

// Colour words checked in order; the bare single letter matches only on its own.
var colorRules = []colorRule{
	{TonerBlack, []string{"black", " bk", "bk ", "blk", "negro", "noir", "schwarz", "nero"}, "k"},
	{TonerCyan, []string{"cyan", " cy", "cy ", "cyn"}, "c"},
	{TonerMagenta, []string{"magenta", " mg", "mg ", " mag", "mag "}, "m"},
	{TonerYellow, []string{"yellow", " yl", "yl ", "yel", "amarillo", "jaune", "gelb", "giallo"}, "y"},
}

type wordRule struct {
	key   string
	words []string
}

var otherRules = []wordRule{
	{Drum, []string{"drum", "imaging", "image", "opc", "photoconductor"}},
	{WasteToner, []string{"waste", "used"}},
	{Fuser, []string{"fuser", "fusing"}},
	{TransferBelt, []string{"transfer", "belt"}},
	{Maintenance, []string{"maintenance", "kit"}},
	{Staples, []string{"staple"}},
}

// IsSupplyName reports whether a supply description names a consumable.
func IsSupplyName(desc string) bool {
	lower := strings.ToLower(strings.TrimSpace(desc))
	if lower == "" {
		return false
	}
	if containsAny(lower, supplyKeywords) {
		return true
	}
	return NormalizeDescription(desc) != ""
}

// NormalizeDescription maps a supply description to a canonical key such as
// "toner_black". It returns "" when the description is not recognised.
func NormalizeDescription(desc string) string {
	clean := strings.TrimSpace(desc)
	if clean == "" {
		return ""
	}
	if m := colorPartNumber.FindStringSubmatch(clean); m != nil {
		return partColor[strings.ToLower(m[2])]
	}
	if monoPartNumber.MatchString(clean) {
		return TonerBlack
	}

	lower := strings.ToLower(clean)
	lower = strings.NewReplacer("_", " ", "-", " ", "\t", " ", "\n", " ").Replace(lower)
	lower = strings.TrimSpace(lower)

	consumable := containsAny(lower, []string{"toner", "ink", "cartridge", "developer", "supply"})
	drum := containsAny(lower, otherRules[0].words)

	for _, rule := range colorRules {
		if lower != rule.bare && !containsAny(lower, rule.words) {
			continue
		}
		if drum && !consumable {
			// A black drum is still the drum; colour drums are not tracked separately.
			if rule.key == TonerBlack {
				return Drum
			}
			return ""
		}
		return rule.key
	}

	for _, rule := range otherRules {
		if containsAny(lower, rule.words) {
			return rule.key
		}
	}
	return ""
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
