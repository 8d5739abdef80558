package database

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
)

// formatFloat renders a float the way every node on the network does when it
// builds hash input: the shortest string that round trips, a trailing ".0" for
// integral values and exponent notation outside of [1e-4, 1e16).
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	if abs := math.Abs(f); abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}

	return s
}

// formatJSONFloat is formatFloat with the JSON spellings for the values JSON
// has no number for.
func formatJSONFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}

	return formatFloat(f)
}

// writeJSONString writes s as an ASCII only JSON string. Everything outside
// the printable ASCII range is written as a lowercase \u escape, characters
// outside the BMP as a surrogate pair.
func writeJSONString(b *strings.Builder, s string) {
	const hex = "0123456789abcdef"

	writeUnit := func(u uint16) {
		b.WriteString(`\u`)
		b.WriteByte(hex[u>>12&0xf])
		b.WriteByte(hex[u>>8&0xf])
		b.WriteByte(hex[u>>4&0xf])
		b.WriteByte(hex[u&0xf])
	}

	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			switch {
			case r >= 0x20 && r <= 0x7e:
				b.WriteRune(r)
			case r > 0xffff:
				r1, r2 := utf16.EncodeRune(r)
				writeUnit(uint16(r1))
				writeUnit(uint16(r2))
			default:
				writeUnit(uint16(r))
			}
		}
	}
	b.WriteByte('"')
}
