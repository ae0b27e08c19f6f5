package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"fleet-monitor/tracker/internal/broadcast"
	"fleet-monitor/tracker/internal/domain"
	"fleet-monitor/tracker/internal/mode"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeQueries struct {
	err         error
	historyFrom int64
	historyTo   *int64
}

func (f *fakeQueries) GetCurrentLocation(_ context.Context, id string) (domain.Location, error) {
	if f.err != nil {
		return domain.Location{}, f.err
	}
	lat, lon, speed, ts := 31.23, 121.47, 42.5, int64(1700000000)
	return domain.Location{VehicleID: id, Latitude: &lat, Longitude: &lon, Speed: &speed, Timestamp: &ts}, nil
}

func (f *fakeQueries) GetAllCurrentStatuses(context.Context) ([]domain.VehicleState, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.VehicleState{{VehicleID: "V1", Status: "parked", Load: 40}}, nil
}

func (f *fakeQueries) GetLocationHistory(_ context.Context, _ string, from int64, to *int64) ([]domain.PositionSample, error) {
	f.historyFrom, f.historyTo = from, to
	if f.err != nil {
		return nil, f.err
	}
	return []domain.PositionSample{{Timestamp: 200, Latitude: 1, Longitude: 2, Speed: 3}}, nil
}

func (f *fakeQueries) GetVehiclePaths(_ context.Context, from, to int64) ([]domain.VehiclePath, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.VehiclePath{{VehicleID: "V1", Path: [][2]float64{{121.47, 31.23}}}}, nil
}

func (f *fakeQueries) GetHeatmapData(_ context.Context, from, to int64) ([]domain.HeatCell, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.HeatCell{{Lat: 31.23, Lng: 121.47, Density: 2}}, nil
}

type fakeHealth map[string]string

func (f fakeHealth) Check(context.Context) map[string]string { return f }

func newTestRouter(q *fakeQueries, feed Feed, h fakeHealth) *gin.Engine {
	if feed == nil {
		feed = broadcast.NewHub(4)
	}
	if h == nil {
		h = fakeHealth{"redis": "UP", "history": "UP", "stream": "UP"}
	}
	return NewRouter(Deps{
		Queries:        q,
		Feed:           feed,
		Health:         h,
		Mode:           mode.New(mode.Live),
		CORSOrigins:    "*",
		WSWriteTimeout: time.Second,
	})
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCurrentLocation(t *testing.T) {
	r := newTestRouter(&fakeQueries{}, nil, nil)

	w := do(r, http.MethodGet, "/vehicles/V001/location", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}

	var got map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["vehicleId"] != "V001" || got["latitude"] != 31.23 || got["timestamp"] != float64(1700000000) {
		t.Errorf("body = %v", got)
	}
}

func TestHistoryParams(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantCode int
		wantTo   *int64
	}{
		{"from only", "?from=150", http.StatusOK, nil},
		{"from and to", "?from=150&to=300", http.StatusOK, func() *int64 { v := int64(300); return &v }()},
		{"missing from", "", http.StatusBadRequest, nil},
		{"bad from", "?from=abc", http.StatusBadRequest, nil},
		{"bad to", "?from=1&to=x", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQueries{}
			r := newTestRouter(q, nil, nil)

			w := do(r, http.MethodGet, "/vehicles/V001/history"+tt.query, "")
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			if q.historyFrom != 150 {
				t.Errorf("from = %d, want 150", q.historyFrom)
			}
			if (tt.wantTo == nil) != (q.historyTo == nil) || (tt.wantTo != nil && *tt.wantTo != *q.historyTo) {
				t.Errorf("to = %v, want %v", q.historyTo, tt.wantTo)
			}
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid range", fmt.Errorf("%w: from after to", domain.ErrInvalidRange), http.StatusBadRequest},
		{"store down", fmt.Errorf("%w: %w", domain.ErrQueryFailed, domain.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{"scan failed", fmt.Errorf("%w: scan interrupted", domain.ErrQueryFailed), http.StatusInternalServerError},
		{"over scan limit", fmt.Errorf("%w: %w", domain.ErrQueryFailed, domain.ErrResultTruncated), http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&fakeQueries{err: tt.err}, nil, nil)
			if w := do(r, http.MethodGet, "/map/paths?from=1&to=2", ""); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestMapEndpoints(t *testing.T) {
	r := newTestRouter(&fakeQueries{}, nil, nil)

	w := do(r, http.MethodGet, "/map/heatmap?from=0&to=100", "")
	if w.Code != http.StatusOK {
		t.Fatalf("heatmap status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"density":2`) {
		t.Errorf("heatmap body = %s", w.Body)
	}

	w = do(r, http.MethodGet, "/map/paths?from=0&to=100", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"path":[[121.47,31.23]]`) {
		t.Errorf("paths = %d %s", w.Code, w.Body)
	}

	if w := do(r, http.MethodGet, "/map/heatmap?from=0", ""); w.Code != http.StatusBadRequest {
		t.Errorf("heatmap without to = %d, want 400", w.Code)
	}
}

func TestAllStatuses(t *testing.T) {
	r := newTestRouter(&fakeQueries{}, nil, nil)

	w := do(r, http.MethodGet, "/vehicles/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"parked"`) {
		t.Errorf("body = %s", w.Body)
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&fakeQueries{}, nil, nil)
	if w := do(r, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("healthy status = %d", w.Code)
	}

	r = newTestRouter(&fakeQueries{}, nil, fakeHealth{"redis": "UP", "history": "DOWN: timeout"})
	w := do(r, http.MethodGet, "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded status = %d, want 503", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"history":"DOWN: timeout"`) {
		t.Errorf("body = %s", w.Body)
	}
}

func TestMode(t *testing.T) {
	r := newTestRouter(&fakeQueries{}, nil, nil)

	if w := do(r, http.MethodGet, "/mode", ""); w.Body.String() != `{"mode":"live"}` {
		t.Errorf("GET /mode = %s", w.Body)
	}
	if w := do(r, http.MethodPost, "/mode", `{"mode":"mock"}`); w.Code != http.StatusOK || w.Body.String() != `{"mode":"mock"}` {
		t.Errorf("POST /mode = %d %s", w.Code, w.Body)
	}
	if w := do(r, http.MethodPost, "/mode", `{"mode":"turbo"}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid mode = %d, want 400", w.Code)
	}
	if w := do(r, http.MethodGet, "/mode", ""); w.Body.String() != `{"mode":"mock"}` {
		t.Errorf("mode after rejected update = %s", w.Body)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(&fakeQueries{}, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/vehicles/status", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(&fakeQueries{}, nil, nil)
	w := do(r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "tracker_broadcast_subscribers") {
		t.Errorf("metrics = %d", w.Code)
	}
}

type countingFeed struct {
	*broadcast.Hub
	mu    sync.Mutex
	count int
}

func (f *countingFeed) Subscribe(sub broadcast.Subscriber) func() {
	f.mu.Lock()
	f.count++
	f.mu.Unlock()
	return f.Hub.Subscribe(sub)
}

func TestLiveFeed(t *testing.T) {
	hub := broadcast.NewHub(8)
	defer hub.Close()
	feed := &countingFeed{Hub: hub}

	srv := httptest.NewServer(newTestRouter(&fakeQueries{}, feed, nil))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/vehicles", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	payload := `{"vehicle_id":"V001","latitude":31.23,"longitude":121.47,"speed":42.5,"timestamp":1700000000}`
	hub.Broadcast([]byte(payload))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != payload {
		t.Errorf("frame = %s, want the raw payload", msg)
	}

	feed.mu.Lock()
	defer feed.mu.Unlock()
	if feed.count != 1 {
		t.Errorf("subscriptions = %d, want 1", feed.count)
	}
}
