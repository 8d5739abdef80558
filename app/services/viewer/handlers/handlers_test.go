package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/powledger/node/app/services/viewer/handlers"
	"github.com/powledger/node/business/sys/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_UIMux(t *testing.T) {
	t.Log("Given the need to serve the viewer page.")
	{
		app, err := handlers.UIMux(handlers.UIConfig{
			Build:    "test",
			Shutdown: make(chan os.Signal, 1),
			Log:      zap.NewNop().Sugar(),
			Metrics:  metrics.NewWeb(prometheus.NewRegistry()),
			NodeURL:  "http://localhost:8080/",
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the mux: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to construct the mux.", success)

		w := httptest.NewRecorder()
		app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("\t%s\tShould receive a 200 for the index, got %d.", failed, w.Code)
		}

		body := w.Body.String()
		if !strings.Contains(body, "ws://localhost:8080/v1/events") || !strings.Contains(body, "build test") {
			t.Fatalf("\t%s\tShould point the page at the node's events: %s", failed, body)
		}
		t.Logf("\t%s\tShould point the page at the node's events.", success)

		w = httptest.NewRecorder()
		app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/assets/viewer.js", nil))

		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "WebSocket") {
			t.Fatalf("\t%s\tShould serve the script asset, got %d.", failed, w.Code)
		}
		t.Logf("\t%s\tShould serve the script asset.", success)
	}
}
