package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"workoutnet/internal/store/sqlitevec"
	"workoutnet/pkg/response"
)

type brokenStore struct{}

func (brokenStore) ListRuns(context.Context, int) ([]sqlitevec.Run, error) {
	return nil, errors.New("disk gone")
}
func (brokenStore) GetRun(_ context.Context, id string) (sqlitevec.Run, error) {
	return sqlitevec.Run{ID: id}, nil
}
func (brokenStore) LoadEpochs(context.Context, string) ([]sqlitevec.Epoch, error) {
	return nil, errors.New("disk gone")
}

func TestStoreErrorsAre500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewRunHandler(brokenStore{})
	r := gin.New()
	r.GET("/runs", h.ListRuns)
	r.GET("/runs/:id/epochs", h.GetEpochs)

	for _, path := range []string{"/runs", "/runs/x/epochs"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("%s: status %d", path, w.Code)
		}
		var body response.Response
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Code != http.StatusInternalServerError || body.Error != "disk gone" {
			t.Fatalf("%s: %+v", path, body)
		}
	}
}
