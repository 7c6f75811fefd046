package content

import "unicode/utf8"

// Truncate returns the longest prefix of s that is at most n bytes and does
// not split a UTF-8 sequence. The second result reports whether s was cut.
func Truncate(s string, n int) (string, bool) {
	if n < 0 {
		n = 0
	}
	if len(s) <= n {
		return s, false
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n], true
}
