package util

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// DecodeOctetString turns SNMP octet string bytes into printable text. Valid
// UTF-8 is kept as is; anything else is read as ISO-8859-1. Control characters
// other than tab and newline are dropped and the result is trimmed.
func DecodeOctetString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	s := string(b)
	if !utf8.Valid(b) {
		runes := make([]rune, len(b))
		for i, by := range b {
			runes[i] = rune(by)
		}
		s = string(runes)
	}

	var out strings.Builder
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\t' {
			continue
		}
		out.WriteRune(r)
	}
	return strings.TrimSpace(out.String())
}

// CoerceToInt converts the integer-ish values gosnmp hands back (native ints,
// decimal or 0x-prefixed strings, textual byte slices) to int64.
func CoerceToInt(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	case string:
		return parseStringInt(t)
	case []byte:
		return parseStringInt(DecodeOctetString(t))
	}
	return 0, false
}

func parseStringInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return i, true
	}
	return 0, false
}
