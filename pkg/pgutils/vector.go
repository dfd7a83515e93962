// Package pgutils holds PostgreSQL helpers for pgvector literals and SQLSTATE checks.
package pgutils

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatVector renders v as a pgvector literal, e.g. "[0.1,0.2,0.3]".
func FormatVector(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}

	var buf strings.Builder
	buf.Grow(len(v)*12 + 2)
	buf.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	buf.WriteByte(']')
	return buf.String()
}

// ParseVector reads a pgvector literal back into a slice. The brackets are
// optional so comma separated input from flags parses too.
func ParseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if strings.TrimSpace(s) == "" {
		return []float32{}, nil
	}

	parts := strings.Split(s, ",")
	v := make([]float32, 0, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("vector component %d: %w", i, err)
		}
		v = append(v, float32(f))
	}
	return v, nil
}
