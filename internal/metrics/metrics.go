package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workoutnet_command_runs_total",
		Help: "Total CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workoutnet_command_errors_total",
		Help: "Total CLI command failures",
	}, []string{"command"})
	CommandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "workoutnet_command_duration_seconds",
		Help:    "CLI command wall time by command and outcome",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"command", "outcome"})
	SessionsFound = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workoutnet_sessions_found_total",
		Help: "Session directories discovered per activity",
	}, []string{"activity"})
	SessionsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workoutnet_sessions_skipped_total",
		Help: "Sessions excluded from the dataset, by reason",
	}, []string{"reason"})
	WindowsBuilt = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workoutnet_windows_built_total",
		Help: "Windows emitted by the dataset builder per activity",
	}, []string{"activity"})
	HeartRateFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "workoutnet_heart_rate_fallbacks_total",
		Help: "Sessions that used the fallback heart rate",
	})
	Epochs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "workoutnet_train_epochs_total",
		Help: "Training epochs completed",
	})
	Loss = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "workoutnet_train_loss",
		Help: "Most recent epoch loss per split",
	}, []string{"split"})
	Accuracy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "workoutnet_train_accuracy",
		Help: "Most recent epoch accuracy per split",
	}, []string{"split"})
	BestAccuracy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "workoutnet_best_val_accuracy",
		Help: "Best validation accuracy seen in the current run",
	})
	LearningRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "workoutnet_learning_rate",
		Help: "Current optimizer learning rate",
	})
	EarlyStops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "workoutnet_early_stops_total",
		Help: "Training runs halted by early stopping",
	})
	TrainDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "workoutnet_train_duration_seconds",
		Help:    "Training loop duration seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})
	ExportBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "workoutnet_export_bytes",
		Help: "Size of the exported checkpoint per precision",
	}, []string{"precision"})
	ExportAccuracy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "workoutnet_export_accuracy",
		Help: "Validation accuracy of the exported model per precision",
	}, []string{"precision"})
)

func init() {
	prometheus.MustRegister(
		CommandRuns, CommandErrors, CommandDuration,
		SessionsFound, SessionsSkipped, WindowsBuilt, HeartRateFallbacks,
		Epochs, Loss, Accuracy, BestAccuracy, LearningRate, EarlyStops, TrainDuration,
		ExportBytes, ExportAccuracy,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, mux) }()
}

// ObserveTrainDuration records a training loop duration.
func ObserveTrainDuration(start time.Time) {
	TrainDuration.Observe(time.Since(start).Seconds())
}

func IncCommandRun(cmd string)   { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }

// ObserveCommand records how long cmd ran and whether it failed.
func ObserveCommand(cmd, outcome string, d time.Duration) {
	CommandDuration.WithLabelValues(cmd, outcome).Observe(d.Seconds())
}

// IncSkipped counts a session excluded for reason.
func IncSkipped(reason string) { SessionsSkipped.WithLabelValues(reason).Inc() }

// ObserveEpoch publishes one epoch's scalars.
func ObserveEpoch(trainLoss, trainAcc, valLoss, valAcc, best, lr float64) {
	Epochs.Inc()
	Loss.WithLabelValues("train").Set(trainLoss)
	Loss.WithLabelValues("val").Set(valLoss)
	Accuracy.WithLabelValues("train").Set(trainAcc)
	Accuracy.WithLabelValues("val").Set(valAcc)
	BestAccuracy.Set(best)
	LearningRate.Set(lr)
}
