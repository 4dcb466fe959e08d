package util

// TruncateRunes cuts s to at most n runes. Unlike a byte slice, it never
// splits a multibyte character, so accented text stays valid UTF-8.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
