package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"workoutnet/internal/store/sqlitevec"
)

func init() { gin.SetMode(gin.TestMode) }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func get(t *testing.T, r http.Handler, path string) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s: %v", path, err)
		}
	}
	return w.Code, env
}

func seeded(t *testing.T) *sqlitevec.DB {
	t.Helper()
	db, err := sqlitevec.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	if err := db.CreateRun(ctx, "r1", time.Now().UTC(), "", 192, 48); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 2; i++ {
		if err := db.PutEpoch(ctx, "r1", sqlitevec.Epoch{Epoch: i, ValAcc: 0.5, LR: 0.001}); err != nil {
			t.Fatal(err)
		}
	}
	return db
}

func TestHealthAndMetrics(t *testing.T) {
	r := SetupRouter(seeded(t))
	if code, _ := get(t, r, "/health"); code != http.StatusOK {
		t.Fatalf("health=%d", code)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "workoutnet_") {
		t.Fatalf("metrics=%d", w.Code)
	}
}

func TestRunsEndpoints(t *testing.T) {
	r := SetupRouter(seeded(t))

	code, env := get(t, r, "/api/v1/runs")
	if code != http.StatusOK || env.Code != 0 {
		t.Fatalf("list=%d %+v", code, env)
	}
	var list struct {
		Runs  []sqlitevec.Run `json:"runs"`
		Total int             `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil || list.Total != 1 || list.Runs[0].ID != "r1" {
		t.Fatalf("list body: %v %+v", err, list)
	}

	code, env = get(t, r, "/api/v1/runs/r1")
	var run sqlitevec.Run
	if code != http.StatusOK || json.Unmarshal(env.Data, &run) != nil || run.TrainSize != 192 || run.Status != sqlitevec.StatusRunning {
		t.Fatalf("get=%d %+v", code, run)
	}

	code, env = get(t, r, "/api/v1/runs/r1/epochs")
	var eps struct {
		RunID  string            `json:"run_id"`
		Epochs []sqlitevec.Epoch `json:"epochs"`
	}
	if code != http.StatusOK || json.Unmarshal(env.Data, &eps) != nil || len(eps.Epochs) != 2 {
		t.Fatalf("epochs=%d %+v", code, eps)
	}

	if code, env = get(t, r, "/api/v1/runs/missing"); code != http.StatusNotFound || env.Code != http.StatusNotFound {
		t.Fatalf("missing=%d %+v", code, env)
	}
	if code, _ = get(t, r, "/api/v1/runs/missing/epochs"); code != http.StatusNotFound {
		t.Fatalf("missing epochs=%d", code)
	}
	if code, _ = get(t, r, "/api/v1/runs?limit=abc"); code != http.StatusBadRequest {
		t.Fatalf("bad limit=%d", code)
	}
}
