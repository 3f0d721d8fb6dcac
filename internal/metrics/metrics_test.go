package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsExposure(t *testing.T) {
	IncCommandRun("train")
	IncCommandError("train")
	ObserveCommand("train", "ok", 2*time.Second)
	SessionsFound.WithLabelValues("Walking").Inc()
	IncSkipped("too_short")
	WindowsBuilt.WithLabelValues("Walking").Add(4)
	HeartRateFallbacks.Inc()
	ObserveEpoch(1.2, 0.4, 1.3, 0.35, 0.35, 0.001)
	EarlyStops.Inc()
	ObserveTrainDuration(time.Now().Add(-1500 * time.Millisecond))
	ExportBytes.WithLabelValues("fp32").Set(1024)
	ExportAccuracy.WithLabelValues("fp16").Set(0.9)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, m := range []string{
		"workoutnet_command_runs_total",
		"workoutnet_command_errors_total",
		"workoutnet_command_duration_seconds",
		"workoutnet_sessions_found_total",
		"workoutnet_sessions_skipped_total",
		"workoutnet_windows_built_total",
		"workoutnet_heart_rate_fallbacks_total",
		"workoutnet_train_epochs_total",
		"workoutnet_train_loss",
		"workoutnet_train_accuracy",
		"workoutnet_best_val_accuracy",
		"workoutnet_learning_rate",
		"workoutnet_early_stops_total",
		"workoutnet_train_duration_seconds",
		"workoutnet_export_bytes",
		"workoutnet_export_accuracy",
	} {
		if !strings.Contains(body, m) {
			t.Fatalf("expected metric %s in body", m)
		}
	}
}
