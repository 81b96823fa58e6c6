package domain

import (
	"regexp"
	"strings"
)

// Industry categories assigned by static lookup.
const (
	IndustrySemiconductors = "Semiconductors"
	IndustryAerospace      = "Aerospace & Defense"
	IndustryTaiwan         = "Taiwan Listed"
	IndustryInternational  = "US/International"
)

var (
	semiconductorCodes = map[string]struct{}{
		"TSM": {}, "NVDA": {}, "AMD": {}, "INTC": {},
	}
	aerospaceCodes = map[string]struct{}{
		"FLY": {}, "LMT": {}, "RTX": {},
	}
	regionCode = regexp.MustCompile(`^\d{4}$`)
)

// NormalizeCode trims whitespace and upper-cases user input.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// BareCode strips the exchange suffixes the batch job appends when querying
// Taiwan listings.
func BareCode(code string) string {
	code = strings.TrimSuffix(code, ".TWO")
	return strings.TrimSuffix(code, ".TW")
}

// IsRegionCode reports whether code is a 4-digit Taiwan listing.
func IsRegionCode(code string) bool {
	return regionCode.MatchString(BareCode(code))
}

// MarketFor returns the listing market of code.
func MarketFor(code string) Market {
	if IsRegionCode(code) {
		return MarketTW
	}
	return MarketUS
}

// CurrencyFor returns the trading currency of code.
func CurrencyFor(code string) string {
	if IsRegionCode(code) {
		return CurrencyTWD
	}
	return CurrencyUSD
}

// DetermineIndustry maps a ticker code to its display category. Every
// 4-digit listing falls in the Taiwan category, whatever its sector.
func DetermineIndustry(code string) string {
	c := BareCode(code)
	if regionCode.MatchString(c) {
		return IndustryTaiwan
	}
	if _, ok := semiconductorCodes[c]; ok {
		return IndustrySemiconductors
	}
	if _, ok := aerospaceCodes[c]; ok {
		return IndustryAerospace
	}
	return IndustryInternational
}
