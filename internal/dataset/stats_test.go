package dataset

import (
	"math"
	"testing"

	"workoutnet/internal/activity"
)

func TestStats(t *testing.T) {
	ds := New(2)
	// rows: [1,2,3,80] [3,2,1,80]
	ds.Append(Sample{X: []float32{1, 2, 3, 80, 3, 2, 1, 80}, Label: activity.Squats, Session: "Squats_001"})
	st := ds.Stats()
	sq := st[activity.Squats]
	if sq.Windows != 1 {
		t.Fatalf("windows=%d", sq.Windows)
	}
	want := [FeatureCount]float64{2, 2, 2, 80}
	wantStd := [FeatureCount]float64{1, 0, 1, 0}
	for f := 0; f < FeatureCount; f++ {
		if math.Abs(sq.Mean[f]-want[f]) > 1e-9 || math.Abs(sq.Std[f]-wantStd[f]) > 1e-9 {
			t.Fatalf("feature %d: mean=%v std=%v", f, sq.Mean[f], sq.Std[f])
		}
	}
	if st[activity.Plank].Windows != 0 || st[activity.Plank].Mean[0] != 0 {
		t.Fatalf("empty class: %+v", st[activity.Plank])
	}
}
