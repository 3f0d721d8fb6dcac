package dataset

import (
	"math"

	"workoutnet/internal/activity"
)

// FeatureStats is the per-feature mean and standard deviation over every
// timestep of a set of windows.
type FeatureStats struct {
	Windows int                   `json:"windows"`
	Mean    [FeatureCount]float64 `json:"mean"`
	Std     [FeatureCount]float64 `json:"std"`
}

// Stats summarises each activity's windows. Classes without windows have
// zero statistics.
func (d *Dataset) Stats() [activity.Count]FeatureStats {
	var sum, sq [activity.Count][FeatureCount]float64
	var out [activity.Count]FeatureStats
	for _, s := range d.Samples {
		out[s.Label].Windows++
		for t := 0; t < d.Steps; t++ {
			for f, v := range s.Row(t) {
				sum[s.Label][f] += float64(v)
				sq[s.Label][f] += float64(v) * float64(v)
			}
		}
	}
	for a := range out {
		n := float64(out[a].Windows * d.Steps)
		if n == 0 {
			continue
		}
		for f := 0; f < FeatureCount; f++ {
			mean := sum[a][f] / n
			out[a].Mean[f] = mean
			out[a].Std[f] = math.Sqrt(math.Max(0, sq[a][f]/n-mean*mean))
		}
	}
	return out
}
