package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesInvocationMetrics(t *testing.T) {
	r := New()
	r.ObserveInvocation(1.5, 0, false)
	r.ObserveInvocation(0.2, 143, true)
	r.IncBroadcast()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"agentgateway_invocation_duration_seconds",
		"agentgateway_invocations_total",
		"agentgateway_watch_broadcasts_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}
