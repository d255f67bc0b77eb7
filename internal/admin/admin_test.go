package admin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/sqmean/pkg/registry"
	"github.com/vango-dev/sqmean/pkg/server"
)

type fakeSource struct{ stats server.Stats }

func (f fakeSource) Stats() server.Stats { return f.stats }

func newTestSource() fakeSource {
	return fakeSource{stats: server.Stats{
		Running:  true,
		Address:  "127.0.0.1:64000",
		Accepted: 3,
		Registry: registry.Stats{Live: 2, Entries: 3},
	}}
}

func newTestGatherer(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "sqmean_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(2)
	return reg
}

func TestRouterEndpoints(t *testing.T) {
	h := NewRouter(newTestSource(), newTestGatherer(t))

	tests := []struct {
		path        string
		wantStatus  int
		wantContain string
	}{
		{"/healthz", http.StatusOK, "ok"},
		{"/metrics", http.StatusOK, "sqmean_test_total 2"},
		{"/stats", http.StatusOK, `"accepted":3`},
		{"/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantContain) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantContain)
			}
		})
	}
}

func TestStatsJSON(t *testing.T) {
	h := NewRouter(newTestSource(), newTestGatherer(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got server.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Registry.Live != 2 || got.Registry.Entries != 3 || !got.Running {
		t.Errorf("stats = %+v", got)
	}
}

func TestStatsStream(t *testing.T) {
	hub := NewHub(newTestSource(), 10*time.Millisecond)
	srv := httptest.NewServer(NewRouter(newTestSource(), newTestGatherer(t), WithHub(hub)))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stats/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	for i := 0; i < 3; i++ {
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage %d: %v", i, err)
		}
		var got server.Stats
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
		if got.Accepted != 3 {
			t.Errorf("message %d accepted = %d", i, got.Accepted)
		}
	}
	if n := hub.ClientCount(); n != 1 {
		t.Errorf("ClientCount = %d, want 1", n)
	}

	ws.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not removed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerLifecycle(t *testing.T) {
	s := NewServer("127.0.0.1:0", newTestSource(), newTestGatherer(t), nil)
	if s.Addr() != nil {
		t.Error("Addr before Start should be nil")
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + s.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestRequestMetrics(t *testing.T) {
	reg := newTestGatherer(t)
	h := NewRouter(newTestSource(), reg, WithRequestMetrics(reg))

	for _, path := range []string{"/healthz", "/healthz", "/nope"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`sqmean_admin_requests_total{code="200",route="/healthz"} 2`,
		`sqmean_admin_requests_total{code="404",route="unmatched"} 1`,
		`sqmean_admin_request_duration_seconds_count{route="/healthz"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
