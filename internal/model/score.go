package model

import (
	"encoding/json"
	"strconv"
)

// Score field names written by the scoring stage.
const (
	FieldTotal        = "total_score"
	FieldPrize        = "prize_score"
	FieldUrgency      = "urgency_score"
	FieldQuality      = "quality_score"
	FieldBuilderMatch = "builder_match"
	FieldReason       = "reason"
)

// ScoreDimensions lists the numeric score fields, total first.
var ScoreDimensions = []string{FieldTotal, FieldPrize, FieldUrgency, FieldQuality, FieldBuilderMatch}

// Score is an open record of score fields. It is stored as schemaless JSON so
// the scoring prompt can add fields without a schema change.
type Score map[string]any

// Number returns the numeric value of key, accepting JSON numbers and numeric strings.
func (s Score) Number(key string) (float64, bool) {
	v, ok := s[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Total returns total_score, or 0 when absent.
func (s Score) Total() float64 {
	v, _ := s.Number(FieldTotal)
	return v
}

// Reason returns the free-text rationale, if any.
func (s Score) Reason() string {
	r, _ := s[FieldReason].(string)
	return r
}
