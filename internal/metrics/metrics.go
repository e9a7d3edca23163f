// Package metrics computes prequential (test-then-train) metrics with a
// fading factor over a stream of predictions.
//
// For a fading factor f, every per-class statistic is kept as a faded sum
// S = x + f*S and a faded count N = 1 + f*N, and reported as S/N.
package metrics

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// NoPrediction marks a timestep for which the model produced no prediction.
// It counts as a wrong prediction.
const NoPrediction = -1

var ErrFadingFactor = errors.New("fading factor must be in (0, 1]")

// Result is the prediction made for one commit, evaluated when its label is
// known.
type Result struct {
	Timestep   int
	Target     int
	Prediction int
}

type faded struct {
	sum   float64
	count float64
}

func (fd *faded) add(x, f float64) {
	fd.sum = x + f*fd.sum
	fd.count = 1 + f*fd.count
}

func (fd faded) value() float64 {
	if fd.count == 0 {
		return 0
	}

	return fd.sum / fd.count
}

func checkFadingFactor(f float64) error {
	if f <= 0 || f > 1 || math.IsNaN(f) {
		return errors.Wrapf(ErrFadingFactor, "got %v", f)
	}

	return nil
}

func indicator(b bool) float64 {
	if b {
		return 1
	}

	return 0
}

// PrequentialRecalls returns the faded recall of class 0 and class 1 after
// each result. A class recall only moves on timesteps whose target is that
// class and stays 0 until the class is first seen.
func PrequentialRecalls(results []Result, f float64) (r0, r1 []float64, err error) {
	if err := checkFadingFactor(f); err != nil {
		return nil, nil, err
	}

	r0 = make([]float64, len(results))
	r1 = make([]float64, len(results))
	var recalls [2]faded
	for i, res := range results {
		if res.Target == 0 || res.Target == 1 {
			recalls[res.Target].add(indicator(res.Prediction == res.Target), f)
		}
		r0[i] = recalls[0].value()
		r1[i] = recalls[1].value()
	}

	return r0, r1, nil
}

// PrequentialGMean is the geometric mean of the two class recalls.
func PrequentialGMean(r0, r1 []float64) []float64 {
	n := min(len(r0), len(r1))
	gmean := make([]float64, n)
	for i := range n {
		gmean[i] = math.Sqrt(r0[i] * r1[i])
	}

	return gmean
}

// PrequentialProportions returns the faded share of each predicted class.
// A missing prediction counts for neither class.
func PrequentialProportions(predictions []int, f float64) (p0, p1 []float64, err error) {
	if err := checkFadingFactor(f); err != nil {
		return nil, nil, err
	}

	p0 = make([]float64, len(predictions))
	p1 = make([]float64, len(predictions))
	var zero, one faded
	for i, p := range predictions {
		zero.add(indicator(p == 0), f)
		one.add(indicator(p == 1), f)
		p0[i] = zero.value()
		p1[i] = one.value()
	}

	return p0, p1, nil
}

// Row holds the metrics after one timestep.
type Row struct {
	Timestep int
	R0       float64
	R1       float64
	// R0R1 is |r0 - r1|.
	R0R1  float64
	GMean float64
	// T1 is the faded share of defective targets.
	T1 float64
	P1 float64
	// THMA is |th - p1|, the distance between the expected and the observed
	// share of defect predictions.
	THMA float64
}

// Prequential computes every metric for results, in the given order.
func Prequential(results []Result, f, th float64) ([]Row, error) {
	r0, r1, err := PrequentialRecalls(results, f)
	if err != nil {
		return nil, err
	}
	gmean := PrequentialGMean(r0, r1)

	predictions := make([]int, len(results))
	targets := make([]int, len(results))
	for i, res := range results {
		predictions[i] = res.Prediction
		targets[i] = res.Target
	}
	_, p1, err := PrequentialProportions(predictions, f)
	if err != nil {
		return nil, err
	}
	_, t1, err := PrequentialProportions(targets, f)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, len(results))
	for i, res := range results {
		rows[i] = Row{
			Timestep: res.Timestep,
			R0:       r0[i],
			R1:       r1[i],
			R0R1:     math.Abs(r0[i] - r1[i]),
			GMean:    gmean[i],
			T1:       t1[i],
			P1:       p1[i],
			THMA:     math.Abs(th - p1[i]),
		}
	}

	return rows, nil
}

// Names of the metrics as reported and stored.
const (
	NameR0    = "r0"
	NameR1    = "r1"
	NameR0R1  = "r0-r1"
	NameGMean = "g-mean"
	NameT1    = "t1"
	NameP1    = "p1"
	NameTHMA  = "th-ma"
)

// Names lists the metric names in report order.
var Names = []string{NameR0, NameR1, NameR0R1, NameGMean, NameT1, NameP1, NameTHMA}

// Summary is the mean of every metric over the rows.
type Summary map[string]float64

func Summarize(rows []Row) Summary {
	columns := make(map[string][]float64, len(Names))
	for _, r := range rows {
		columns[NameR0] = append(columns[NameR0], r.R0)
		columns[NameR1] = append(columns[NameR1], r.R1)
		columns[NameR0R1] = append(columns[NameR0R1], r.R0R1)
		columns[NameGMean] = append(columns[NameGMean], r.GMean)
		columns[NameT1] = append(columns[NameT1], r.T1)
		columns[NameP1] = append(columns[NameP1], r.P1)
		columns[NameTHMA] = append(columns[NameTHMA], r.THMA)
	}

	s := make(Summary, len(Names))
	for _, name := range Names {
		if len(columns[name]) == 0 {
			s[name] = 0

			continue
		}
		s[name] = stat.Mean(columns[name], nil)
	}

	return s
}
