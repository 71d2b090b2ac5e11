// Package obfuscate translates the substituted base64 alphabet used by the
// live-events feeds back into the standard alphabet.
package obfuscate

import "strings"

// table maps each code point below 128 to its standard base64 counterpart.
// Only the letters are permuted; everything else maps to itself.
const table = "\x00\x01\x02\x03\x04\x05\x06\x07\x08\x09\x0a\x0b\x0c\x0d\x0e\x0f" +
	"\x10\x11\x12\x13\x14\x15\x16\x17\x18\x19\x1a\x1b\x1c\x1d\x1e\x1f" +
	" !\"#$%&'()*+,-./" +
	"0123456789:;<=>?" +
	"@EGMNKABUVCDYHLI" +
	"FPOZQSRWTXJ[\\]^_" +
	"`egmnkabuvcdyhli" +
	"fpozqsrwtxj{|}~\x7f"

var inverse = func() [len(table)]byte {
	var inv [len(table)]byte
	for i := 0; i < len(table); i++ {
		inv[table[i]] = byte(i)
	}
	return inv
}()

// Translate maps s from the substituted alphabet to standard base64. Runes
// outside the table pass through unchanged.
func Translate(s string) string {
	return mapTable(s, func(r rune) rune { return rune(table[r]) })
}

// Untranslate is the inverse of Translate.
func Untranslate(s string) string {
	return mapTable(s, func(r rune) rune { return rune(inverse[r]) })
}

func mapTable(s string, f func(rune) rune) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 0 && r < rune(len(table)) {
			r = f(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Reverse returns s with its runes in reverse order.
func Reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
