package core

import "strconv"

// FormatF4 formats intensities, currents and times with 4 decimals.
func FormatF4(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// FormatF8 formats masses and m/z values with 8 decimals.
func FormatF8(v float64) string {
	return strconv.FormatFloat(v, 'f', 8, 64)
}

// FormatShortest formats v with the fewest digits that round-trip.
func FormatShortest(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
