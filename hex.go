package serialchat

import (
	"encoding/hex"
	"strings"
)

// isHexSeparator matches the separators tolerated between hex bytes.
func isHexSeparator(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', ',', ';', ':', '-':
		return true
	}
	return false
}

func stripHexSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		if isHexSeparator(r) {
			return -1
		}
		return r
	}, s)
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// DecodeHexString converts a hex string to bytes. Separators (space,
// comma, semicolon, colon, dash) and mixed case are tolerated; an odd
// number of digits is left-padded with a zero, so "1" decodes as "01".
// Invalid input yields an empty slice, never an error.
func DecodeHexString(s string) []byte {
	clean := stripHexSeparators(s)
	for _, r := range clean {
		if !isHexDigit(r) {
			return nil
		}
	}
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	out, err := hex.DecodeString(clean)
	if err != nil {
		return nil
	}
	return out
}

// EncodeHexString renders data as uppercase hex bytes joined by sep.
func EncodeHexString(data []byte, sep string) string {
	if len(data) == 0 {
		return ""
	}
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = strings.ToUpper(hex.EncodeToString([]byte{b}))
	}
	return strings.Join(parts, sep)
}

// IsValidHexString reports whether s contains at least one hex digit and
// nothing but hex digits and tolerated separators.
func IsValidHexString(s string) bool {
	clean := stripHexSeparators(s)
	if clean == "" {
		return false
	}
	for _, r := range clean {
		if !isHexDigit(r) {
			return false
		}
	}
	return true
}

// FormatHexString normalizes any accepted hex string to the canonical
// uppercase space-separated form.
func FormatHexString(s string) string {
	return EncodeHexString(DecodeHexString(s), " ")
}
