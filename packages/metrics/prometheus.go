package metrics

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WritePrometheus writes s in the Prometheus text exposition format.
// Durations are in milliseconds.
func WritePrometheus(w io.Writer, s Summary) {
	all := append([]Stats{s.Stats}, s.Labels...)

	fmt.Fprintf(w, "# HELP riskproxy_flows_total Monitored flows resolved\n")
	fmt.Fprintf(w, "# TYPE riskproxy_flows_total counter\n")
	for _, st := range all {
		fmt.Fprintf(w, "riskproxy_flows_total{label=\"%s\"} %d\n", sanitizeLabel(st.Label), st.Count)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP riskproxy_flows_failed_total Monitored flows that ended in an error\n")
	fmt.Fprintf(w, "# TYPE riskproxy_flows_failed_total counter\n")
	for _, st := range all {
		fmt.Fprintf(w, "riskproxy_flows_failed_total{label=\"%s\"} %d\n", sanitizeLabel(st.Label), st.Errors)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP riskproxy_flow_duration_ms Flow duration in milliseconds\n")
	fmt.Fprintf(w, "# TYPE riskproxy_flow_duration_ms gauge\n")
	for _, st := range all {
		label := sanitizeLabel(st.Label)
		for _, q := range []struct {
			name string
			d    time.Duration
		}{
			{"0.50", st.P50},
			{"0.95", st.P95},
			{"0.99", st.P99},
			{"max", st.Max},
			{"avg", st.Mean},
		} {
			fmt.Fprintf(w, "riskproxy_flow_duration_ms{label=\"%s\",quantile=\"%s\"} %.2f\n", label, q.name, ms(q.d))
		}
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// sanitizeLabel makes a string safe for use as a Prometheus label value
func sanitizeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// Handler serves the current summary of l on any path.
func Handler(l *Latency) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		WritePrometheus(w, l.Summary())
	})
}
