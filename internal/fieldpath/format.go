package fieldpath

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// Value types understood by FormatValue.
const (
	TypeBytes   = "bytes"
	TypeTime    = "time"
	TypeCarbon  = "carbon"
	TypeEnergy  = "energy"
	TypeBoolean = "boolean"
	TypeNumber  = "number"
	TypeURL     = "url"
	TypeString  = "string"
)

// FormatDomainOnly renders a url value as hostname plus path.
const FormatDomainOnly = "domain-only"

// FormatValue renders value for display according to typ. A non-empty format
// replaces the type's default template; "{value}" is substituted in it, and
// for bytes "{valueMB}" as well. A nil value renders as "".
func FormatValue(value any, typ, format string) string {
	if value == nil {
		return ""
	}

	switch typ {
	case TypeBytes:
		n, ok := ToFloat(value)
		if !ok {
			return applyFormat(strings.ReplaceAll(format, "{valueMB}", ""), Stringify(value))
		}
		kb := strconv.FormatFloat(RoundHalfUp(n/1024), 'f', -1, 64)
		mb := strconv.FormatFloat(n/1048576, 'f', 2, 64)
		if format == "" {
			format = "{kb} KB"
		}
		out := strings.ReplaceAll(format, "{kb}", kb)
		out = strings.ReplaceAll(out, "{valueMB}", mb)
		return strings.ReplaceAll(out, "{value}", kb)
	case TypeTime:
		return withDefault(format, "{value}ms", Stringify(value))
	case TypeCarbon:
		return withDefault(format, "{value}g", Stringify(value))
	case TypeEnergy:
		return withDefault(format, "{value} kWh", Stringify(value))
	case TypeBoolean:
		s := "No"
		if truthy(value) {
			s = "Yes"
		}
		return applyFormat(format, s)
	case TypeURL:
		s := Stringify(value)
		if format == FormatDomainOnly {
			return domainOnly(s)
		}
		return applyFormat(format, s)
	default:
		return applyFormat(format, Stringify(value))
	}
}

func withDefault(format, def, value string) string {
	if format == "" {
		format = def
	}
	return strings.ReplaceAll(format, "{value}", value)
}

func applyFormat(format, value string) string {
	if format == "" {
		return value
	}
	return strings.ReplaceAll(format, "{value}", value)
}

func domainOnly(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		trimmed := strings.TrimPrefix(raw, "https://")
		return strings.TrimPrefix(trimmed, "http://")
	}
	return u.Hostname() + u.Path
}

// Stringify renders a decoded JSON value the way it would print in a template.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case []any, map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

// ToFloat converts numeric values, and strings holding a number, to float64.
func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// RoundHalfUp rounds to the nearest integer with halves rounded towards +Inf.
func RoundHalfUp(f float64) float64 {
	return math.Floor(f + 0.5)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case nil:
		return false
	}
	if f, ok := ToFloat(v); ok {
		return f != 0
	}
	return true
}
