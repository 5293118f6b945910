package matching

import (
	"regexp"
	"strconv"
)

var yearPattern = regexp.MustCompile(`\b20[12]\d\b`)

// ExtractYear returns the first year between 2010 and 2029 found in text,
// or 0 when there is none.
func ExtractYear(text string) int {
	m := yearPattern.FindString(text)
	if m == "" {
		return 0
	}
	year, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return year
}

// ResolveYear applies the cohort default to an undetected year. The returned
// flag reports whether the default was used.
func ResolveYear(detected, cohortDefault int) (int, bool) {
	if detected != 0 || cohortDefault == 0 {
		return detected, false
	}
	return cohortDefault, true
}
