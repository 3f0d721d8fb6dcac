package dataset

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"workoutnet/internal/activity"
)

// SynthOptions describes a synthetic recording tree.
type SynthOptions struct {
	SessionsPerActivity int
	Rows                int     // accelerometer rows per session
	SampleRate          float64 // Hz
	Noise               float64 // std-dev of additive gaussian noise
	AccelFile           string
	HeartRateFile       string
	HeartRateRows       int // 0 writes no heart-rate file
}

// waveform is a per-activity signature: one sinusoid per axis plus a heart rate.
type waveform struct {
	freq  [3]float64
	amp   [3]float64
	phase [3]float64
	bpm   float64
}

var signatures = [activity.Count]waveform{
	activity.WeightLift:   {freq: [3]float64{0.4, 0.4, 0.4}, amp: [3]float64{0.3, 0.8, 0.2}, bpm: 110},
	activity.Walking:      {freq: [3]float64{1.8, 1.8, 0.9}, amp: [3]float64{0.4, 0.3, 0.6}, phase: [3]float64{0, 1, 2}, bpm: 95},
	activity.Plank:        {freq: [3]float64{0.1, 0.1, 0.1}, amp: [3]float64{0.02, 0.02, 0.02}, bpm: 90},
	activity.JumpingJacks: {freq: [3]float64{1.5, 1.5, 3.0}, amp: [3]float64{1.5, 0.9, 1.1}, phase: [3]float64{0, 0.5, 1}, bpm: 140},
	activity.Squats:       {freq: [3]float64{0.5, 0.5, 0.5}, amp: [3]float64{0.2, 0.9, 0.6}, phase: [3]float64{1, 0, 2}, bpm: 120},
	activity.JumpRope:     {freq: [3]float64{2.4, 2.4, 2.4}, amp: [3]float64{0.8, 1.6, 0.7}, phase: [3]float64{0, 2, 1}, bpm: 150},
}

// SessionDir is the directory name of the n-th synthetic session of a.
func SessionDir(a activity.Activity, n int) string {
	return fmt.Sprintf("%s%03d", a.Prefix(), n)
}

// WriteSynthetic writes SessionsPerActivity session directories per activity under root.
// The accelerometer files use the phone-logger column order (time, seconds_elapsed, z, y, x).
func WriteSynthetic(root string, opts SynthOptions, rng *rand.Rand) error {
	if opts.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %g", opts.SampleRate)
	}
	for _, a := range activity.All() {
		for n := 1; n <= opts.SessionsPerActivity; n++ {
			dir := filepath.Join(root, SessionDir(a, n))
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			if err := writeAccel(filepath.Join(dir, opts.AccelFile), signatures[a], opts, rng); err != nil {
				return err
			}
			if opts.HeartRateRows > 0 {
				if err := writeHeartRate(filepath.Join(dir, opts.HeartRateFile), signatures[a].bpm, opts, rng); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }

func writeCSV(path string, header []string, rows int, row func(i int) []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	for i := 0; i < rows; i++ {
		if err := w.Write(row(i)); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeAccel(path string, wf waveform, opts SynthOptions, rng *rand.Rand) error {
	period := 1.0 / opts.SampleRate
	return writeCSV(path, []string{"time", "seconds_elapsed", "z", "y", "x"}, opts.Rows, func(i int) []string {
		t := period * float64(i)
		var v [3]float64
		for k := range v {
			v[k] = wf.amp[k]*math.Sin(2*math.Pi*wf.freq[k]*t+wf.phase[k]) + opts.Noise*rng.NormFloat64()
		}
		ns := int64(t * 1e9)
		return []string{strconv.FormatInt(ns, 10), ftoa(t), ftoa(v[2]), ftoa(v[1]), ftoa(v[0])}
	})
}

func writeHeartRate(path string, bpm float64, opts SynthOptions, rng *rand.Rand) error {
	return writeCSV(path, []string{"time", "seconds_elapsed", "bpm"}, opts.HeartRateRows, func(i int) []string {
		t := float64(i) * 5
		return []string{strconv.FormatInt(int64(t*1e9), 10), ftoa(t), ftoa(bpm + 3*rng.NormFloat64())}
	})
}
