package util

import "strings"

// NormalizePhone adjusts WhatsApp sender numbers for countries whose mobile
// numbers carry an extra digit after the country code: Mexico (521 -> 52) and
// Argentina (549 -> 54).
func NormalizePhone(number string) string {
	switch {
	case strings.HasPrefix(number, "521"):
		return "52" + number[3:]
	case strings.HasPrefix(number, "549"):
		return "54" + number[3:]
	default:
		return number
	}
}
