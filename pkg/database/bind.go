package database

import (
	"fmt"
	"strconv"
	"strings"
)

// BindNamed rewrites :name placeholders into the positional form of driver and
// returns the names in argument order. Quoted text and :: casts are left alone.
func BindNamed(driver, query string) (string, []string, error) {
	var (
		b     strings.Builder
		names []string
		quote rune
	)
	runes := []rune(query)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if quote != 0 {
			b.WriteRune(r)
			if r == quote {
				quote = 0
			}
			continue
		}
		switch {
		case r == '\'' || r == '"' || r == '`':
			quote = r
			b.WriteRune(r)
		case r == ':' && i+1 < len(runes) && runes[i+1] == ':':
			b.WriteString("::")
			i++
		case r == ':' && i+1 < len(runes) && isNameStart(runes[i+1]):
			j := i + 1
			for j < len(runes) && isNameChar(runes[j]) {
				j++
			}
			names = append(names, string(runes[i+1:j]))
			b.WriteString(placeholder(driver, len(names)))
			i = j - 1
		default:
			b.WriteRune(r)
		}
	}
	if quote != 0 {
		return "", nil, fmt.Errorf("unterminated quote in statement")
	}
	return b.String(), names, nil
}

func placeholder(driver string, n int) string {
	if driver == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func isNameStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isNameChar(r rune) bool {
	return isNameStart(r) || (r >= '0' && r <= '9')
}
