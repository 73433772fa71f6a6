// Package fieldpath reads values out of decoded JSON records using dotted
// path expressions and renders them as display strings.
package fieldpath

import (
	"strconv"
	"strings"
)

// ExtractValue resolves pathExpr against record. pathExpr is a comma-separated
// list of alternatives such as "data.results.carbonEstimate,data.co2Estimate";
// the first alternative that resolves to a non-nil value wins. Segments may
// carry array indexes ("outputs[0]", "matrix[1][0]"), and a numeric segment
// indexes an array ("outputs.0.value"). Malformed alternatives
// never resolve. ExtractValue returns nil when nothing resolves.
func ExtractValue(record any, pathExpr string) any {
	for _, alt := range strings.Split(pathExpr, ",") {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			continue
		}
		if v, ok := resolve(record, alt); ok && v != nil {
			return v
		}
	}
	return nil
}

func resolve(record any, path string) (any, bool) {
	cur := record
	for _, seg := range strings.Split(path, ".") {
		name, indexes, ok := parseSegment(seg)
		if !ok {
			return nil, false
		}
		if name != "" {
			switch v := cur.(type) {
			case map[string]any:
				cur, ok = v[name]
				if !ok {
					return nil, false
				}
			case []any:
				idx, err := strconv.Atoi(name)
				if err != nil || idx < 0 || idx >= len(v) {
					return nil, false
				}
				cur = v[idx]
			default:
				return nil, false
			}
		}
		for _, idx := range indexes {
			arr, isArr := cur.([]any)
			if !isArr || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			cur = arr[idx]
		}
	}
	return cur, true
}

// parseSegment splits "name[1][2]" into its property name and indexes.
func parseSegment(seg string) (string, []int, bool) {
	open := strings.IndexByte(seg, '[')
	if open < 0 {
		if seg == "" || strings.ContainsRune(seg, ']') {
			return "", nil, false
		}
		return seg, nil, true
	}

	name := seg[:open]
	rest := seg[open:]
	var indexes []int
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, false
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", nil, false
		}
		n, err := strconv.Atoi(strings.TrimSpace(rest[1:end]))
		if err != nil {
			return "", nil, false
		}
		indexes = append(indexes, n)
		rest = rest[end+1:]
	}
	if name == "" && len(indexes) == 0 {
		return "", nil, false
	}
	return name, indexes, true
}
