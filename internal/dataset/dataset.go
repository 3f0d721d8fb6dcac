package dataset

import (
	"fmt"

	"workoutnet/internal/activity"
)

// FeatureCount is the per-timestep width: accel x, y, z and the session heart rate.
const FeatureCount = 4

// FeatureNames label the columns of a window in order.
var FeatureNames = [FeatureCount]string{"Accel X", "Accel Y", "Accel Z", "Heart Rate"}

// Sample is one labelled window. X is row-major, Steps rows of FeatureCount values.
type Sample struct {
	X       []float32
	Label   activity.Activity
	Session string
	Index   int // window index within the session
}

// Row returns timestep t of the window.
func (s Sample) Row(t int) []float32 {
	return s.X[t*FeatureCount : (t+1)*FeatureCount]
}

// Dataset is an ordered collection of equally shaped windows.
type Dataset struct {
	Steps   int
	Samples []Sample
}

// New returns an empty dataset whose windows are steps long.
func New(steps int) *Dataset { return &Dataset{Steps: steps} }

// Append adds s. A window of the wrong shape is a programming error.
func (d *Dataset) Append(s Sample) {
	if len(s.X) != d.Steps*FeatureCount {
		panic(fmt.Sprintf("dataset: window %s#%d has %d values, want %d", s.Session, s.Index, len(s.X), d.Steps*FeatureCount))
	}
	if !s.Label.Valid() {
		panic(fmt.Sprintf("dataset: window %s#%d has invalid label %d", s.Session, s.Index, int(s.Label)))
	}
	d.Samples = append(d.Samples, s)
}

func (d *Dataset) Len() int { return len(d.Samples) }

// Counts returns the number of windows per activity label.
func (d *Dataset) Counts() [activity.Count]int {
	var c [activity.Count]int
	for _, s := range d.Samples {
		c[s.Label]++
	}
	return c
}

// Inputs returns the window matrices in dataset order. The slices are shared, not copied.
func (d *Dataset) Inputs() [][]float32 {
	out := make([][]float32, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = s.X
	}
	return out
}

// Labels returns the integer class ids in dataset order.
func (d *Dataset) Labels() []int {
	out := make([]int, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = s.Label.Label()
	}
	return out
}

// Subset returns the samples at idx, in that order.
func (d *Dataset) Subset(idx []int) *Dataset {
	out := &Dataset{Steps: d.Steps, Samples: make([]Sample, 0, len(idx))}
	for _, i := range idx {
		out.Samples = append(out.Samples, d.Samples[i])
	}
	return out
}

// CountsMap is Counts keyed by activity name, for logs and reports.
func (d *Dataset) CountsMap() map[string]int {
	c := d.Counts()
	out := make(map[string]int, activity.Count)
	for _, a := range activity.All() {
		out[a.String()] = c[a]
	}
	return out
}
