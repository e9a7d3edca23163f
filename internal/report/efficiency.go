// Package report summarizes tuning results as efficiency curves and draws
// prequential metrics.
package report

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ExperimentSizes are the numbers of trials per simulated tuning experiment.
var ExperimentSizes = []int{1, 2, 4, 8, 16, 32}

// Point is the best g-mean of one simulated experiment of Size trials.
type Point struct {
	Size  int     `json:"experiment_size"`
	GMean float64 `json:"g-mean"`
}

// EfficiencyCurve splits the trials, in order, into consecutive experiments
// of each size and keeps the best g-mean of each. The last experiment of a
// size may be shorter.
func EfficiencyCurve(gmeans []float64) []Point {
	var curve []Point
	for _, size := range ExperimentSizes {
		for start := 0; start < len(gmeans); start += size {
			chunk := gmeans[start:min(start+size, len(gmeans))]
			best := chunk[0]
			for _, g := range chunk[1:] {
				best = max(best, g)
			}
			curve = append(curve, Point{Size: size, GMean: best})
		}
	}

	return curve
}

// Stats is the distribution of the best g-mean for one experiment size.
type Stats struct {
	Size   int
	Mean   float64
	StdDev float64
	N      int
}

// Aggregate groups a curve by experiment size, in increasing size.
func Aggregate(curve []Point) []Stats {
	bySize := make(map[int][]float64)
	for _, p := range curve {
		bySize[p.Size] = append(bySize[p.Size], p.GMean)
	}

	res := make([]Stats, 0, len(bySize))
	for size, values := range bySize {
		mean, std := stat.MeanStdDev(values, nil)
		if len(values) < 2 {
			std = 0
		}
		res = append(res, Stats{Size: size, Mean: mean, StdDev: std, N: len(values)})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Size < res[j].Size })

	return res
}
