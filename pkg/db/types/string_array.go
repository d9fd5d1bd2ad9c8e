package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// StringArray maps to a Postgres text[] column.
type StringArray []string

func (a *StringArray) Scan(src any) error {
	if src == nil {
		*a = StringArray{}
		return nil
	}

	switch v := src.(type) {
	case string:
		return a.parseFromString(v)
	case []byte:
		return a.parseFromString(string(v))
	default:
		return fmt.Errorf("StringArray: unsupported Scan type %T", src)
	}
}

func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}
	parts := make([]string, 0, len(a))
	for _, s := range a {
		parts = append(parts, quoteArrayElement(s))
	}
	return "{" + strings.Join(parts, ",") + "}", nil
}

// Contains reports whether the array holds the given value.
func (a StringArray) Contains(value string) bool {
	for _, candidate := range a {
		if candidate == value {
			return true
		}
	}
	return false
}

func quoteArrayElement(s string) string {
	if s == "" || strings.ContainsAny(s, `{}," \`) {
		escaped := strings.ReplaceAll(s, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		return `"` + escaped + `"`
	}
	return s
}

// parseFromString walks the array literal byte by byte so that quoted
// elements may contain commas, braces and escaped quotes, matching what
// quoteArrayElement emits.
func (a *StringArray) parseFromString(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || s == "{}" {
		*a = StringArray{}
		return nil
	}
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return fmt.Errorf("StringArray: malformed array literal %q", s)
	}
	body := s[1 : len(s)-1]
	if body == "" {
		*a = StringArray{}
		return nil
	}

	out := make([]string, 0, 4)
	var elem strings.Builder
	inQuotes := false
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case inQuotes && c == '\\':
			if i+1 >= len(body) {
				return fmt.Errorf("StringArray: dangling escape in %q", s)
			}
			i++
			elem.WriteByte(body[i])
		case c == '"':
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			out = append(out, elem.String())
			elem.Reset()
		default:
			elem.WriteByte(c)
		}
	}
	if inQuotes {
		return fmt.Errorf("StringArray: unterminated quote in %q", s)
	}
	out = append(out, elem.String())
	*a = StringArray(out)
	return nil
}
