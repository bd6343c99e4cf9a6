package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentHandlerUsesRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(InstrumentHandler)
	router.HandleFunc("/api/requests/{kind}/approve/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodPatch)

	before := testutil.ToFloat64(httpRequests.WithLabelValues("PATCH", "/api/requests/{kind}/approve/{id}", "404"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/requests/loan/approve/7", nil))

	after := testutil.ToFloat64(httpRequests.WithLabelValues("PATCH", "/api/requests/{kind}/approve/{id}", "404"))
	if after-before != 1 {
		t.Fatalf("requests_total delta = %v, want 1", after-before)
	}
}

func TestCanonicalPathWithoutRoute(t *testing.T) {
	tests := map[string]string{
		"/":                 "/",
		"/health":           "/health",
		"/api/users/3/x":    "/api",
		"//metrics//extra/": "/metrics",
	}
	for in, want := range tests {
		if got := canonicalPath(httptest.NewRequest(http.MethodGet, "http://x"+in, nil)); got != want {
			t.Errorf("canonicalPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordTransitionAndNotification(t *testing.T) {
	RecordTransition("loan", "approved", "ok")
	if got := testutil.ToFloat64(transitions.WithLabelValues("loan", "approved", "ok")); got < 1 {
		t.Fatalf("transitions_total = %v", got)
	}

	RecordNotification("email", false)
	if got := testutil.ToFloat64(notifications.WithLabelValues("email", "failure")); got < 1 {
		t.Fatalf("notifications_total = %v", got)
	}

	SetEmailQueueDepth(3)
	if got := testutil.ToFloat64(emailQueueDepth); got != 3 {
		t.Fatalf("email_queue_depth = %v", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	RecordJobRun("pending_digest", 0, true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "savings_club_jobs_runs_total") {
		t.Fatalf("metrics output missing job counter")
	}
}
