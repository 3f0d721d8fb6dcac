package dataset

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"workoutnet/internal/activity"
)

const (
	accelName = "WatchAccelerometerUncalibrated.csv"
	hrName    = "HeartRate.csv"
)

func testOptions(windowLen int) Options {
	return Options{WindowLen: windowLen, MaxWindows: 4, HeartRateFallback: 100.0, HeartRateMinBytes: 50}
}

// writeAccelRows writes rows where x=i, y=-i, z=i/2 so slices are easy to check.
func writeAccelRows(t *testing.T, dir string, rows int) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	var b strings.Builder
	b.WriteString("time,seconds_elapsed,z,y,x\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "%d,%g,%g,%g,%g\n", i*10_000_000, float64(i)/100, float64(i)/2, -float64(i), float64(i))
	}
	if err := os.WriteFile(filepath.Join(dir, accelName), []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func sessionAt(root, name string, a activity.Activity) Session {
	return Session{Name: name, Activity: a, AccelPath: filepath.Join(root, name, accelName), HeartRatePath: filepath.Join(root, name, hrName)}
}

func TestBuildSkipsShortAndMissingSessions(t *testing.T) {
	root := t.TempDir()
	writeAccelRows(t, filepath.Join(root, "Walking_1"), 9)
	if err := os.MkdirAll(filepath.Join(root, "Walking_2"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeAccelRows(t, filepath.Join(root, "Walking_3"), 10)

	sessions, err := Discover(root, accelName, hrName)
	if err != nil {
		t.Fatal(err)
	}
	ds, rep := Build(sessions, testOptions(10))
	if ds.Len() != 1 || ds.Samples[0].Session != "Walking_3" {
		t.Fatalf("expected only Walking_3 to contribute, got %d windows", ds.Len())
	}
	if rep.Skipped[SkipTooShort] != 1 || rep.Skipped[SkipMissingAccel] != 1 {
		t.Fatalf("unexpected skip report: %+v", rep.Skipped)
	}
	if rep.Found["Walking"] != 3 {
		t.Fatalf("expected 3 walking sessions found, got %d", rep.Found["Walking"])
	}
}

func TestBuildSkipsMalformedAccel(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "Plank_1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, accelName), "a,b,c\n1,2,3\n")
	writeAccelRows(t, filepath.Join(root, "Plank_2"), 10)

	ds, rep := Build([]Session{sessionAt(root, "Plank_1", activity.Plank), sessionAt(root, "Plank_2", activity.Plank)}, testOptions(10))
	if ds.Len() != 1 || rep.Skipped[SkipReadError] != 1 {
		t.Fatalf("malformed session should be skipped: windows=%d skipped=%+v", ds.Len(), rep.Skipped)
	}
}

func TestWindowCountAndContiguity(t *testing.T) {
	const L = 10
	for _, rows := range []int{10, 19, 25, 40, 41, 75} {
		root := t.TempDir()
		writeAccelRows(t, filepath.Join(root, "Squats_1"), rows)
		ds, _ := Build([]Session{sessionAt(root, "Squats_1", activity.Squats)}, testOptions(L))
		want := min(4, rows/L)
		if ds.Len() != want {
			t.Fatalf("rows=%d: got %d windows want %d", rows, ds.Len(), want)
		}
		for w, s := range ds.Samples {
			if s.Index != w || s.Label != activity.Squats || len(s.X) != L*FeatureCount {
				t.Fatalf("rows=%d: bad window %d: %+v", rows, w, s.Index)
			}
			for step := 0; step < L; step++ {
				r := s.Row(step)
				src := float32(w*L + step)
				if r[0] != src || r[1] != -src || r[2] != src/2 {
					t.Fatalf("rows=%d window %d step %d: got %v want x=%v", rows, w, step, r, src)
				}
			}
		}
	}
}

func TestHeartRateFallbackBroadcast(t *testing.T) {
	cases := map[string]func(dir string){
		"absent": func(string) {},
		"tiny":   func(dir string) { writeFile(t, filepath.Join(dir, hrName), "bpm\n80\n") },
		"no rows": func(dir string) {
			writeFile(t, filepath.Join(dir, hrName), "time,seconds_elapsed,bpm,source_identifier_for_device\n")
		},
		"only blanks": func(dir string) {
			writeFile(t, filepath.Join(dir, hrName), "time,seconds_elapsed,bpm,source_identifier_for_device\n0,0,,watch\n5,5,NaN,watch\n")
		},
		"unreadable": func(dir string) {
			writeFile(t, filepath.Join(dir, hrName), "time,seconds_elapsed,rate,source_identifier_for_device\n1,2,3,4\n")
		},
	}
	for name, prep := range cases {
		root := t.TempDir()
		dir := filepath.Join(root, "Plank_1")
		writeAccelRows(t, dir, 20)
		prep(dir)
		ds, rep := Build([]Session{sessionAt(root, "Plank_1", activity.Plank)}, testOptions(10))
		if ds.Len() != 2 || rep.Fallbacks != 1 {
			t.Fatalf("%s: windows=%d fallbacks=%d", name, ds.Len(), rep.Fallbacks)
		}
		for _, s := range ds.Samples {
			for step := 0; step < ds.Steps; step++ {
				if s.Row(step)[3] != 100.0 {
					t.Fatalf("%s: heart rate at step %d = %v", name, step, s.Row(step)[3])
				}
			}
		}
	}
}

func TestHeartRateMeanBroadcast(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "JumpRope_1")
	writeAccelRows(t, dir, 30)
	writeFile(t, filepath.Join(dir, hrName), "time,seconds_elapsed,bpm\n0,0,120\n5,5,130\n10,10,140\n")
	ds, rep := Build([]Session{sessionAt(root, "JumpRope_1", activity.JumpRope)}, testOptions(10))
	if rep.Fallbacks != 0 || ds.Len() != 3 {
		t.Fatalf("windows=%d fallbacks=%d", ds.Len(), rep.Fallbacks)
	}
	for _, s := range ds.Samples {
		for step := 0; step < ds.Steps; step++ {
			if s.Row(step)[3] != 130 {
				t.Fatalf("expected mean 130 broadcast, got %v", s.Row(step)[3])
			}
		}
	}
}

func TestHeartRateMeanSkipsBlankCells(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "Walking_1")
	writeAccelRows(t, dir, 10)
	writeFile(t, filepath.Join(dir, hrName), "time,seconds_elapsed,bpm\n0,0,80\n5,5,\n10,10,90\n15,15,nan\n20\n")
	ds, rep := Build([]Session{sessionAt(root, "Walking_1", activity.Walking)}, testOptions(10))
	if rep.Fallbacks != 0 || ds.Len() != 1 {
		t.Fatalf("windows=%d fallbacks=%d", ds.Len(), rep.Fallbacks)
	}
	if hr := ds.Samples[0].Row(0)[3]; hr != 85 {
		t.Fatalf("heart rate %v, want mean of the filled cells 85", hr)
	}
}

func TestDiscoverOrdersByActivityThenName(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"Walking_2", "WeightLift_3", "Walking_10", "WeightLift_1", "Yoga_1"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	writeFile(t, filepath.Join(root, "Walking_file"), "not a dir")
	sessions, err := Discover(root, accelName, hrName)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, s := range sessions {
		got = append(got, s.Name)
	}
	want := "WeightLift_1,WeightLift_3,Walking_10,Walking_2"
	if strings.Join(got, ",") != want {
		t.Fatalf("order: got %v want %s", got, want)
	}
}

func TestDiscoverMissingRoot(t *testing.T) {
	if _, err := Discover(filepath.Join(t.TempDir(), "nope"), accelName, hrName); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestAppendRejectsWrongShape(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on mismatched window")
		}
	}()
	ds := New(10)
	ds.Append(Sample{X: make([]float32, 9*FeatureCount), Label: activity.Walking})
}

func TestEndToEndSyntheticTree(t *testing.T) {
	root := t.TempDir()
	opts := SynthOptions{
		SessionsPerActivity: 10, Rows: 2000, SampleRate: 100, Noise: 0.05,
		AccelFile: accelName, HeartRateFile: hrName, HeartRateRows: 12,
	}
	if err := WriteSynthetic(root, opts, rand.New(rand.NewSource(1))); err != nil {
		t.Fatal(err)
	}
	sessions, err := Discover(root, accelName, hrName)
	if err != nil {
		t.Fatal(err)
	}
	ds, rep := Build(sessions, testOptions(500))
	if ds.Len() != 240 {
		t.Fatalf("expected 240 windows, got %d", ds.Len())
	}
	for a, n := range ds.Counts() {
		if n != 40 {
			t.Fatalf("class %s has %d windows, want 40", activity.Activity(a), n)
		}
	}
	if rep.Fallbacks != 0 {
		t.Fatalf("synthetic heart-rate files should be used, got %d fallbacks", rep.Fallbacks)
	}
	for i := 1; i < ds.Len(); i++ {
		if ds.Samples[i].Label < ds.Samples[i-1].Label {
			t.Fatalf("discovery order broken at %d", i)
		}
	}
}
