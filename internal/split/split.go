// Package split partitions a dataset into stratified train and validation sets.
package split

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"workoutnet/internal/activity"
	"workoutnet/internal/dataset"
)

// Result holds the two disjoint subsets and the source indices they came from.
type Result struct {
	Train    *dataset.Dataset
	Val      *dataset.Dataset
	TrainIdx []int
	ValIdx   []int
}

// Stratified holds out valFraction of ds, allocating the held-out count across
// classes in proportion to their size. The same rng seed yields the same split.
func Stratified(ds *dataset.Dataset, valFraction float64, rng *rand.Rand) (Result, error) {
	n := ds.Len()
	if valFraction <= 0 || valFraction >= 1 {
		return Result{}, fmt.Errorf("val fraction must be in (0,1), got %g", valFraction)
	}
	nVal := int(math.Ceil(valFraction * float64(n)))
	nTrain := n - nVal
	if nVal == 0 || nTrain == 0 {
		return Result{}, fmt.Errorf("cannot split %d windows with val fraction %g", n, valFraction)
	}

	var byClass [activity.Count][]int
	for i, s := range ds.Samples {
		byClass[s.Label] = append(byClass[s.Label], i)
	}
	var counts [activity.Count]int
	classes := 0
	for c := range byClass {
		counts[c] = len(byClass[c])
		if counts[c] > 0 {
			classes++
		}
	}
	if nVal < classes || nTrain < classes {
		return Result{}, fmt.Errorf("val size %d and train size %d must each cover %d classes", nVal, nTrain, classes)
	}

	valPer := allocate(counts, nVal)
	var trainIdx, valIdx []int
	for c := range byClass {
		idx := append([]int(nil), byClass[c]...)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		valIdx = append(valIdx, idx[:valPer[c]]...)
		trainIdx = append(trainIdx, idx[valPer[c]:]...)
	}
	rng.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })
	rng.Shuffle(len(valIdx), func(i, j int) { valIdx[i], valIdx[j] = valIdx[j], valIdx[i] })

	return Result{
		Train:    ds.Subset(trainIdx),
		Val:      ds.Subset(valIdx),
		TrainIdx: trainIdx,
		ValIdx:   valIdx,
	}, nil
}

// allocate distributes total across classes proportionally to counts: floor
// shares first, then the remainder to the largest fractional parts. Ties go to
// the larger class, then the lower label.
func allocate(counts [activity.Count]int, total int) [activity.Count]int {
	sum := 0
	for _, c := range counts {
		sum += c
	}
	var out [activity.Count]int
	type rem struct {
		class int
		frac  float64
	}
	var rems []rem
	given := 0
	for c, n := range counts {
		exact := float64(total) * float64(n) / float64(sum)
		out[c] = int(math.Floor(exact))
		given += out[c]
		if n > out[c] {
			rems = append(rems, rem{class: c, frac: exact - float64(out[c])})
		}
	}
	sort.SliceStable(rems, func(i, j int) bool {
		if rems[i].frac != rems[j].frac {
			return rems[i].frac > rems[j].frac
		}
		if counts[rems[i].class] != counts[rems[j].class] {
			return counts[rems[i].class] > counts[rems[j].class]
		}
		return rems[i].class < rems[j].class
	})
	for i := 0; given < total && i < len(rems); i++ {
		out[rems[i].class]++
		given++
	}
	return out
}
