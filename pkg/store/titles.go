package store

import "unicode/utf8"

// titleByteLimit is the storage bound for any title field.
const titleByteLimit = 254

// untitled replaces missing titles.
const untitled = "Untitled"

// ClipTitle normalizes a title for persistence: nil or empty becomes
// "Untitled"; longer values are clipped to 254 bytes without splitting a
// multi-byte rune.
func ClipTitle(title *string) string {
	if title == nil || *title == "" {
		return untitled
	}
	s := *title
	if len(s) <= titleByteLimit {
		return s
	}
	cut := titleByteLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
