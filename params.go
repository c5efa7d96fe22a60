package tsodbc

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ethanyzhang/tsodbc/appbuf"
	"github.com/ethanyzhang/tsodbc/value"
)

const fractionalTimestamp = "2006-01-02 15:04:05.000000000"

// literal renders v as a SQL literal.
func literal(v value.Value) (string, error) {
	switch v.Kind() {
	case value.KindNull:
		return "NULL", nil
	case value.KindBool:
		if v.AsBool() {
			return "TRUE", nil
		}
		return "FALSE", nil
	case value.KindInt8, value.KindInt16, value.KindInt32, value.KindInt64,
		value.KindUint8, value.KindUint16, value.KindUint32, value.KindUint64,
		value.KindFloat32, value.KindFloat64, value.KindDecimal:
		return value.Render(v), nil
	case value.KindString, value.KindGuid:
		return quote(value.Render(v)), nil
	case value.KindBinary:
		return "from_hex('" + hex.EncodeToString(v.AsBytes()) + "')", nil
	case value.KindDate:
		return "DATE " + quote(value.Render(v)), nil
	case value.KindTime:
		return "TIME " + quote(value.Render(v)), nil
	case value.KindTimestamp:
		return "TIMESTAMP " + quote(v.AsTime().Format(fractionalTimestamp)), nil
	default:
		return "", fmt.Errorf("unsupported parameter kind: %s", v.Kind())
	}
}

// literalAs renders v for a parameter declared with sqlType. Character data
// bound to a numeric or temporal parameter is sent as that type's literal.
func literalAs(v value.Value, sqlType appbuf.SQLType) (string, error) {
	if v.IsNull() || v.Kind() != value.KindString {
		return literal(v)
	}
	s := strings.TrimSpace(v.AsString())
	switch sqlType {
	case appbuf.SQLTinyInt, appbuf.SQLSmallInt, appbuf.SQLInteger, appbuf.SQLBigInt,
		appbuf.SQLNumeric, appbuf.SQLDecimal, appbuf.SQLFloat, appbuf.SQLReal, appbuf.SQLDouble:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return "", fmt.Errorf("%w: %q is not numeric", appbuf.ErrInvalidFormat, s)
		}
		return d.String(), nil
	case appbuf.SQLBit:
		switch strings.ToLower(s) {
		case "1", "true":
			return "TRUE", nil
		case "0", "false":
			return "FALSE", nil
		}
		return "", fmt.Errorf("%w: %q is not boolean", appbuf.ErrInvalidFormat, s)
	case appbuf.SQLDate:
		return "DATE " + quote(s), nil
	case appbuf.SQLTime:
		return "TIME " + quote(s), nil
	case appbuf.SQLTimestamp:
		return "TIMESTAMP " + quote(s), nil
	default:
		return literal(v)
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// quoteIdent quotes an identifier for use in generated statements.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// countPlaceholders returns the number of ? markers outside string literals.
func countPlaceholders(query string) int {
	n := 0
	inString := false
	for i := 0; i < len(query); i++ {
		switch query[i] {
		case '\'':
			inString = !inString
		case '?':
			if !inString {
				n++
			}
		}
	}
	return n
}

// interpolateParams replaces ? placeholders in the query with the given
// literals. It skips ? characters inside single-quoted string literals.
func interpolateParams(query string, literals []string) (string, error) {
	if len(literals) == 0 {
		return query, nil
	}

	var buf strings.Builder
	buf.Grow(len(query) + len(literals)*8)
	argIdx := 0
	inString := false

	for i := 0; i < len(query); i++ {
		ch := query[i]
		if ch == '\'' {
			if inString && i+1 < len(query) && query[i+1] == '\'' {
				// Escaped quote inside string literal
				buf.WriteString("''")
				i++
				continue
			}
			inString = !inString
			buf.WriteByte(ch)
			continue
		}
		if ch == '?' && !inString {
			if argIdx >= len(literals) {
				return "", fmt.Errorf("not enough arguments: query has more placeholders than the %d provided arguments", len(literals))
			}
			buf.WriteString(literals[argIdx])
			argIdx++
			continue
		}
		buf.WriteByte(ch)
	}

	if argIdx != len(literals) {
		return "", fmt.Errorf("too many arguments: %d provided but only %d placeholders in query", len(literals), argIdx)
	}
	return buf.String(), nil
}
