// Encodes records as delimiter-joined lines.

package flatdb

import (
	"fmt"
	"strconv"
	"strings"
)

// Delimiter separates fields on a line.
const Delimiter = '|'

// JoinFields escapes each field and joins them with Delimiter.
func JoinFields(fields ...string) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(Delimiter)
		}
		writeEscaped(&b, f)
	}
	return b.String()
}

// SplitFields splits a line produced by JoinFields back into exactly n
// unescaped fields.
func SplitFields(line string, n int) ([]string, error) {
	fields := splitFields(line, -1)
	if len(fields) != n {
		return nil, fmt.Errorf("%w: want %d fields, got %d", ErrCorruptRow, n, len(fields))
	}
	return fields, nil
}

// ParseInt parses a base 10 integer field.
func ParseInt(name, s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: field %s: %w", ErrCorruptRow, name, err)
	}
	return v, nil
}

// FormatInt formats an integer field.
func FormatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

// leadingField returns the unescaped first field of a line.
func leadingField(line string) string {
	return splitFields(line, 1)[0]
}

func writeEscaped(b *strings.Builder, s string) {
	if !strings.ContainsAny(s, "\\|\n\r") {
		b.WriteString(s)
		return
	}
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			b.WriteString(`\\`)
		case Delimiter:
			b.WriteString(`\|`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
}

// splitFields stops after limit fields when limit > 0. Special characters are all
// ASCII so scanning bytes is safe for UTF-8 input. Unknown escapes and a
// trailing backslash are kept literally.
func splitFields(line string, limit int) []string {
	var fields []string
	var b strings.Builder
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\\' && i+1 < len(line):
			i++
			switch n := line[i]; n {
			case '\\', Delimiter:
				b.WriteByte(n)
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte('\\')
				b.WriteByte(n)
			}
		case c == Delimiter:
			fields = append(fields, b.String())
			if limit > 0 && len(fields) == limit {
				return fields
			}
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	return append(fields, b.String())
}
