package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/setohima/UnityMCP-VRC/internal/logbuf"
	"github.com/setohima/UnityMCP-VRC/internal/logx"
	"github.com/setohima/UnityMCP-VRC/internal/toolserver"
)

// LogsHandler answers GET /logs with the same filter surface as the
// get_logs tool: severity, contains, since, until, count, fields.
func LogsHandler(ts *toolserver.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := filterFromQuery(r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		recs, err := ts.GetLogs(f)
		if err != nil {
			logx.Log.Error().Err(err).Msg("log query failed")
			http.Error(w, "log query failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(logbuf.Project(recs, f.Fields))
	}
}

func filterFromQuery(q url.Values) (logbuf.Filter, error) {
	f := logbuf.Filter{
		Contains: q.Get("contains"),
		Fields:   splitParam(q.Get("fields")),
	}
	for _, s := range splitParam(q.Get("severity")) {
		f.Severities = append(f.Severities, logbuf.ParseSeverity(s))
	}
	if v := q.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("count: %w", err)
		}
		f.Count = n
	}
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("since: %w", err)
		}
		f.Since = ts
	}
	if v := q.Get("until"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("until: %w", err)
		}
		f.Until = ts
	}
	return f, nil
}

func splitParam(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
