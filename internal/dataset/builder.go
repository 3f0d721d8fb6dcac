package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"workoutnet/internal/activity"
	"workoutnet/internal/config"
	"workoutnet/internal/logging"
	"workoutnet/internal/metrics"
)

// Skip reasons reported by the builder.
const (
	SkipMissingAccel = "missing_accel"
	SkipTooShort     = "too_short"
	SkipReadError    = "read_error"
)

// Session is one recording directory of a single activity.
type Session struct {
	Name      string
	Activity  activity.Activity
	AccelPath string
	// HeartRatePath may name a file that does not exist.
	HeartRatePath string
}

// Options controls windowing.
type Options struct {
	WindowLen         int
	MaxWindows        int
	HeartRateFallback float64
	HeartRateMinBytes int64
}

// OptionsFrom derives builder options from the data config.
func OptionsFrom(c config.DataConfig) Options {
	return Options{
		WindowLen:         c.WindowLen(),
		MaxWindows:        c.MaxWindowsPerSession,
		HeartRateFallback: c.HeartRateFallback,
		HeartRateMinBytes: c.HeartRateMinBytes,
	}
}

// Report summarises a build for observability.
type Report struct {
	Found     map[string]int // sessions discovered per activity
	Skipped   map[string]int // sessions excluded per reason
	Fallbacks int            // sessions that used the fallback heart rate
	Windows   map[string]int // windows emitted per activity
}

func newReport() Report {
	return Report{Found: map[string]int{}, Skipped: map[string]int{}, Windows: map[string]int{}}
}

// Discover lists session directories under root for every activity, in label
// order and then lexicographically by directory name.
func Discover(root, accelFile, heartRateFile string) ([]Session, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	var byActivity [activity.Count][]string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if a, ok := activity.FromDir(e.Name()); ok {
			byActivity[a] = append(byActivity[a], e.Name())
		}
	}
	var out []Session
	for _, a := range activity.All() {
		dirs := byActivity[a]
		sort.Strings(dirs)
		logging.Info("sessions_found", map[string]any{"activity": a.String(), "count": len(dirs)})
		metrics.SessionsFound.WithLabelValues(a.String()).Add(float64(len(dirs)))
		for _, d := range dirs {
			out = append(out, Session{
				Name:          d,
				Activity:      a,
				AccelPath:     filepath.Join(root, d, accelFile),
				HeartRatePath: filepath.Join(root, d, heartRateFile),
			})
		}
	}
	return out, nil
}

// Build windows every session in order. Bad sessions are skipped, never fatal.
func Build(sessions []Session, opts Options) (*Dataset, Report) {
	if opts.WindowLen <= 0 || opts.MaxWindows <= 0 {
		panic(fmt.Sprintf("dataset: invalid options %+v", opts))
	}
	ds := New(opts.WindowLen)
	rep := newReport()
	for _, a := range activity.All() {
		rep.Found[a.String()] = 0
	}
	for _, s := range sessions {
		rep.Found[s.Activity.String()]++
		buildSession(ds, &rep, s, opts)
	}
	logging.Info("dataset_built", map[string]any{
		"windows": ds.Len(), "steps": ds.Steps, "features": FeatureCount,
		"per_class": ds.CountsMap(), "skipped": rep.Skipped, "hr_fallbacks": rep.Fallbacks,
	})
	return ds, rep
}

// Load discovers and builds in one step.
func Load(c config.DataConfig) (*Dataset, Report, error) {
	sessions, err := Discover(c.Dir, c.AccelFile, c.HeartRateFile)
	if err != nil {
		return nil, Report{}, err
	}
	ds, rep := Build(sessions, OptionsFrom(c))
	return ds, rep, nil
}

func skip(rep *Report, s Session, reason string, err error) {
	rep.Skipped[reason]++
	metrics.IncSkipped(reason)
	f := map[string]any{"session": s.Name, "reason": reason}
	if err != nil {
		f["error"] = err.Error()
	}
	logging.Warn("session_skipped", f)
}

func buildSession(ds *Dataset, rep *Report, s Session, opts Options) {
	if _, err := os.Stat(s.AccelPath); err != nil {
		skip(rep, s, SkipMissingAccel, nil)
		return
	}
	cols, err := readColumns(s.AccelPath, "x", "y", "z")
	if err != nil {
		skip(rep, s, SkipReadError, err)
		return
	}
	rows := len(cols[0])
	if rows < opts.WindowLen {
		skip(rep, s, SkipTooShort, nil)
		return
	}

	hr := sessionHeartRate(s, opts)
	if hr.fallback {
		rep.Fallbacks++
		metrics.HeartRateFallbacks.Inc()
	}
	bpm := float32(hr.value)

	n := min(opts.MaxWindows, rows/opts.WindowLen)
	for w := 0; w < n; w++ {
		start := w * opts.WindowLen
		x := make([]float32, opts.WindowLen*FeatureCount)
		for t := 0; t < opts.WindowLen; t++ {
			r := start + t
			x[t*FeatureCount+0] = float32(cols[0][r])
			x[t*FeatureCount+1] = float32(cols[1][r])
			x[t*FeatureCount+2] = float32(cols[2][r])
			x[t*FeatureCount+3] = bpm
		}
		ds.Append(Sample{X: x, Label: s.Activity, Session: s.Name, Index: w})
	}
	rep.Windows[s.Activity.String()] += n
	metrics.WindowsBuilt.WithLabelValues(s.Activity.String()).Add(float64(n))
}

type heartRate struct {
	value    float64
	fallback bool
}

// sessionHeartRate is the mean of the session's parsable bpm cells, or the
// fallback when the file is absent, too small, unreadable or has no values.
func sessionHeartRate(s Session, opts Options) heartRate {
	fb := heartRate{value: opts.HeartRateFallback, fallback: true}
	fi, err := os.Stat(s.HeartRatePath)
	if err != nil || fi.Size() <= opts.HeartRateMinBytes {
		return fb
	}
	cols, err := readSparseColumns(s.HeartRatePath, "bpm")
	if err != nil {
		logging.Warn("heart_rate_unreadable", map[string]any{"session": s.Name, "error": err.Error()})
		return fb
	}
	if len(cols[0]) == 0 {
		return fb
	}
	sum := 0.0
	for _, v := range cols[0] {
		sum += v
	}
	return heartRate{value: sum / float64(len(cols[0]))}
}
