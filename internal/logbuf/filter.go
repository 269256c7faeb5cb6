package logbuf

import (
	"strings"
	"time"
)

// Filter narrows a log query. The zero value matches everything and keeps
// the most recent DefaultQueryCount records.
type Filter struct {
	Severities []Severity
	Contains   string
	Since      time.Time
	Until      time.Time
	Count      int
	Fields     []string
}

func (f Filter) matches(r Record) bool {
	if len(f.Severities) > 0 {
		ok := false
		for _, s := range f.Severities {
			if r.Severity == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Contains != "" &&
		!strings.Contains(r.Message, f.Contains) &&
		!strings.Contains(r.StackTrace, f.Contains) {
		return false
	}
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// apply filters recs (ordered oldest first) and keeps the most recent
// Count matches without disturbing their order.
func (f Filter) apply(recs []Record) []Record {
	matched := make([]Record, 0, len(recs))
	for _, r := range recs {
		if f.matches(r) {
			matched = append(matched, r)
		}
	}
	limit := f.Count
	if limit <= 0 {
		limit = DefaultQueryCount
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}

// Project shapes records down to the requested fields for transport.
// Unknown field names are ignored; an empty list keeps every field.
func Project(recs []Record, fields []string) []map[string]any {
	want := map[string]bool{}
	for _, f := range fields {
		want[strings.TrimSpace(f)] = true
	}
	all := len(want) == 0
	out := make([]map[string]any, 0, len(recs))
	for _, r := range recs {
		m := map[string]any{}
		if all || want["message"] {
			m["message"] = r.Message
		}
		if (all || want["stackTrace"]) && r.StackTrace != "" {
			m["stackTrace"] = r.StackTrace
		}
		if all || want["severity"] {
			m["severity"] = r.Severity
		}
		if all || want["timestamp"] {
			m["timestamp"] = r.Timestamp
		}
		out = append(out, m)
	}
	return out
}
