package tracker

import "fmt"

// MaxOutputBytes caps captured tool output. Anything beyond the cap is cut,
// never silently: the marker states how much of the original survived.
const MaxOutputBytes = 8192

// Truncate caps s at MaxOutputBytes, appending a marker that states the
// original length. Strings at or under the cap pass through untouched.
func Truncate(s string) string {
	return TruncateTo(s, MaxOutputBytes)
}

// TruncateTo caps s at max bytes with the truncation marker.
func TruncateTo(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + fmt.Sprintf("\n[output truncated: showing %d of %d bytes]", max, len(s))
}
