// Package usgeo holds the USPS state code table used to validate run
// selectors before any I/O happens.
package usgeo

import "sort"

// StateFIPS maps two-letter USPS state codes to their census FIPS codes.
var StateFIPS = map[string]string{
	"AL": "01", "AK": "02", "AZ": "04", "AR": "05", "CA": "06",
	"CO": "08", "CT": "09", "DE": "10", "DC": "11", "FL": "12",
	"GA": "13", "HI": "15", "ID": "16", "IL": "17", "IN": "18",
	"IA": "19", "KS": "20", "KY": "21", "LA": "22", "ME": "23",
	"MD": "24", "MA": "25", "MI": "26", "MN": "27", "MS": "28",
	"MO": "29", "MT": "30", "NE": "31", "NV": "32", "NH": "33",
	"NJ": "34", "NM": "35", "NY": "36", "NC": "37", "ND": "38",
	"OH": "39", "OK": "40", "OR": "41", "PA": "42", "RI": "44",
	"SC": "45", "SD": "46", "TN": "47", "TX": "48", "UT": "49",
	"VT": "50", "VA": "51", "WA": "53", "WV": "54", "WI": "55",
	"WY": "56",
}

// ValidState reports whether code is a known two-letter USPS state code.
func ValidState(code string) bool {
	_, ok := StateFIPS[code]
	return ok
}

// FIPS returns the census FIPS code for a USPS state code.
func FIPS(code string) (string, bool) {
	f, ok := StateFIPS[code]
	return f, ok
}

// Codes returns all known state codes in sorted order.
func Codes() []string {
	codes := make([]string, 0, len(StateFIPS))
	for c := range StateFIPS {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
