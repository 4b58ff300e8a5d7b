package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rchmtmaulana/skripsi-avc/internal/models"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/engine"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/persistence"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthCheck(t *testing.T) {
	r := gin.New()
	healthy := NewHealthHandler("gate-1", "1.2.3", map[string]Probe{
		"store": func(context.Context) error { return nil },
	})
	degraded := NewHealthHandler("gate-1", "1.2.3", map[string]Probe{
		"store":    func(context.Context) error { return nil },
		"detector": func(context.Context) error { return errors.New("detector TRANSIENT_FAILURE") },
	})
	r.GET("/ok", healthy.HealthCheck)
	r.GET("/bad", degraded.HealthCheck)
	r.GET("/", healthy.WorkerInfo)

	w := do(r, http.MethodGet, "/ok", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])

	w = do(r, http.MethodGet, "/bad", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "degraded", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["store"])
	assert.Equal(t, "detector TRANSIENT_FAILURE", checks["detector"])

	w = do(r, http.MethodGet, "/", "")
	assert.Equal(t, "1.2.3", decode(t, w)["version"])
}

func TestSystemStatsSections(t *testing.T) {
	r := gin.New()
	h := NewSystemHandler("gate-1", map[string]func() any{
		"events": func() any { return gin.H{"subscribers": 2} },
	})
	r.GET("/system/stats", h.GetStats)

	w := do(r, http.MethodGet, "/system/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)["stats"].(map[string]any)
	assert.Equal(t, "gate-1", stats["worker_id"])
	assert.Equal(t, 2.0, stats["events"].(map[string]any)["subscribers"])
}

type fakeSource struct {
	vehicles []models.Vehicle
	current  *models.Vehicle
}

func (f fakeSource) Vehicles() []models.Vehicle { return f.vehicles }
func (f fakeSource) Current() (models.Vehicle, bool) {
	if f.current == nil {
		return models.Vehicle{}, false
	}
	return *f.current, true
}
func (f fakeSource) OverheadPanel() models.OverheadUpdate {
	return models.OverheadUpdate{VehicleID: models.IdleVehicleID, Status: "idle", SystemStatus: models.SystemStandby}
}
func (f fakeSource) FrontalPanel() models.FrontalUpdate {
	return models.FrontalUpdate{VehicleID: models.IdleVehicleID, Status: "idle"}
}

func vehicleRouter(src VehicleSource, store persistence.Store) *gin.Engine {
	h := NewVehicleHandler(src, store)
	r := gin.New()
	r.GET("/vehicles", h.List)
	r.GET("/vehicles/current", h.Current)
	r.GET("/transactions", h.Transactions)
	r.GET("/transactions/stats", h.TransactionStats)
	return r
}

func TestVehicles(t *testing.T) {
	cur := models.Vehicle{ID: "V0002", AxleCount: 3, Status: models.StatusInTransaction, Classification: "Golongan 3"}
	src := fakeSource{vehicles: []models.Vehicle{{ID: "V0001"}, cur}}
	r := vehicleRouter(src, nil)

	w := do(r, http.MethodGet, "/vehicles", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, decode(t, w)["count"])

	w = do(r, http.MethodGet, "/vehicles/current", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "---", decode(t, w)["overhead"].(map[string]any)["vehicle_id"])

	src.current = &cur
	w = do(vehicleRouter(src, nil), http.MethodGet, "/vehicles/current", "")
	require.Equal(t, http.StatusOK, w.Code)
	v := decode(t, w)["vehicle"].(map[string]any)
	assert.Equal(t, "V0002", v["vehicle_id"])
	assert.Equal(t, "in_transaction", v["status"])
}

func TestTransactionsWithoutStore(t *testing.T) {
	r := vehicleRouter(fakeSource{}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/transactions", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/transactions/stats", "").Code)
}

func TestTransactions(t *testing.T) {
	store, err := persistence.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, dur := range []float64{1, 3} {
		require.NoError(t, store.Insert(context.Background(), models.Transaction{
			ID:                        "tx-" + string(rune('a'+i)),
			VehicleID:                 "V000" + string(rune('1'+i)),
			Classification:            "Golongan 1",
			AxleCount:                 2,
			TireConfig:                models.TireSingle,
			EntryTime:                 base,
			ExitTime:                  base.Add(time.Duration(i) * time.Minute),
			ProcessingDurationSeconds: dur,
			Status:                    models.TransactionCompleted,
		}))
	}
	r := vehicleRouter(fakeSource{}, store)

	w := do(r, http.MethodGet, "/transactions?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, 1.0, body["count"])
	assert.Equal(t, "V0002", body["transactions"].([]any)[0].(map[string]any)["vehicle_id"])

	w = do(r, http.MethodGet, "/transactions?vehicle_id=V0009", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, decode(t, w)["transactions"])

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/transactions?limit=x", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/transactions?since=yesterday", "").Code)

	w = do(r, http.MethodGet, "/transactions/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	st := decode(t, w)
	assert.Equal(t, 2.0, st["count"])
	assert.Equal(t, 2.0, st["mean_seconds"])
}

func commandRouter(e *engine.Engine) *gin.Engine {
	h := NewCommandHandler(e)
	r := gin.New()
	r.POST("/commands", h.Execute)
	r.POST("/commands/reset-soft", h.ResetSoft)
	r.POST("/commands/reset-hard", h.ResetHard)
	r.PUT("/line", h.SetLine)
	return r
}

func TestCommands(t *testing.T) {
	e := engine.New(engine.DefaultConfig())
	r := commandRouter(e)

	e.Registry().CreateVehicle(time.Now())
	require.Equal(t, 1, e.Registry().Counter())

	w := do(r, http.MethodPost, "/commands/reset-soft", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "reset_soft", decode(t, w)["command"])
	assert.Equal(t, 1, e.Registry().Counter())

	w = do(r, http.MethodPost, "/commands/reset-hard", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, e.Registry().Counter())

	w = do(r, http.MethodPost, "/commands", `{"type":"fly"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "unknown command")
}

func TestSetLine(t *testing.T) {
	e := engine.New(engine.DefaultConfig())
	r := commandRouter(e)

	w := do(r, http.MethodPut, "/line", `{"x1":100,"y1":300,"x2":400,"y2":200}`)
	require.Equal(t, http.StatusOK, w.Code)
	line := e.LineState().Line
	assert.Equal(t, 100.0, line.A.X)
	assert.Equal(t, 200.0, line.B.Y)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/line", `{"x1":-5,"y1":300,"x2":400,"y2":200}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/line", `{"x1":10,"y1":10,"x2":10,"y2":10}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/line", `not json`).Code)
	assert.Equal(t, 100.0, e.LineState().Line.A.X, "rejected lines leave the old one")
}

type fakeFrames struct{ jpeg []byte }

func (f fakeFrames) StreamMJPEGHTTP(w http.ResponseWriter, _ *http.Request, camera models.CameraRole) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("stream:" + camera.String()))
}

func (f fakeFrames) Latest(models.CameraRole) ([]byte, bool) { return f.jpeg, f.jpeg != nil }

type fakeEvents struct{}

func (fakeEvents) ServeWS(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusSwitchingProtocols) }

func TestStreamRoutes(t *testing.T) {
	h := NewStreamHandler(fakeFrames{jpeg: []byte{0xff, 0xd8}}, fakeEvents{})
	r := gin.New()
	r.GET("/stream/:camera", h.MJPEG)
	r.GET("/stream/:camera/frame", h.Frame)

	w := do(r, http.MethodGet, "/stream/overhead", "")
	assert.Equal(t, "stream:overhead", w.Body.String())

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/stream/rear", "").Code)

	w = do(r, http.MethodGet, "/stream/frontal/frame", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))

	empty := NewStreamHandler(fakeFrames{}, fakeEvents{})
	r2 := gin.New()
	r2.GET("/stream/:camera/frame", empty.Frame)
	assert.Equal(t, http.StatusServiceUnavailable, do(r2, http.MethodGet, "/stream/frontal/frame", "").Code)
}
