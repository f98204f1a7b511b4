package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	r := New()
	r.PacketsIn.WithLabelValues("source1").Add(42)
	r.CCErrors.WithLabelValues("256").Inc()
	r.JobQueueOverflows.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`astra_packets_in_total{node="source1"} 42`,
		`astra_cc_errors_total{pid="256"} 1`,
		`astra_jobqueue_overflows_total 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q\nfull body:\n%s", want, body)
		}
	}
}

func TestTwoRegistriesAreIndependent(t *testing.T) {
	a := New()
	b := New()
	a.PacketsIn.WithLabelValues("x").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)

	if strings.Contains(rec.Body.String(), `astra_packets_in_total{node="x"}`) {
		t.Fatalf("registry b leaked state from registry a: %s", rec.Body.String())
	}
}
