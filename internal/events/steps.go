package events

import (
	"sort"

	"github.com/pkg/errors"
)

// CalculateSteps splits the sorted data into consecutive intervals delimited
// by the bins falling strictly inside the data range, and returns how many
// values land in each non-empty interval.
//
// With right set, intervals are closed on the right, (a, b], the first one
// also holding its left edge. Otherwise they are closed on the left, [a, b).
// The outer edges are widened by one so every value lands in an interval.
func CalculateSteps(data, bins []int64, right bool) []int {
	if len(data) == 0 {
		return nil
	}

	lo, hi := data[0], data[len(data)-1]
	if right {
		lo--
	} else {
		hi++
	}
	minEdge, maxEdge := min(lo, hi), max(lo, hi)

	edges := []int64{lo}
	for _, b := range bins {
		if minEdge < b && b < maxEdge {
			edges = append(edges, b)
		}
	}
	edges = append(edges, hi)
	edges = dedupe(edges)

	counts := make([]int, len(edges)-1)
	for _, x := range data {
		var idx int
		if right {
			idx = sort.Search(len(edges), func(i int) bool { return edges[i] >= x })
			if x == edges[0] {
				idx = 1
			}
		} else {
			idx = sort.Search(len(edges), func(i int) bool { return edges[i] > x })
		}
		if idx == 0 || idx == len(edges) {
			continue
		}
		counts[idx-1]++
	}

	steps := make([]int, 0, len(counts))
	for _, c := range counts {
		if c > 0 {
			steps = append(steps, c)
		}
	}

	return steps
}

func dedupe(values []int64) []int64 {
	seen := make(map[int64]struct{}, len(values))
	res := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		res = append(res, v)
	}

	return res
}

// BatchKind tells whether a batch trains or tests the model.
type BatchKind string

const (
	TrainBatch BatchKind = "train"
	TestBatch  BatchKind = "test"
)

type Batch struct {
	Kind BatchKind
	Size int
}

// Schedule interleaves training and testing batches. Every test batch is
// preceded by the next training batch, except the first one when there are
// no more training batches than test batches.
func Schedule(testSteps, trainSteps []int) []Batch {
	trainFirst := len(testSteps) < len(trainSteps)
	pending := append([]int(nil), trainSteps...)

	batches := make([]Batch, 0, len(testSteps)+len(trainSteps))
	for _, test := range testSteps {
		if trainFirst {
			if len(pending) > 0 {
				batches = append(batches, Batch{Kind: TrainBatch, Size: pending[0]})
				pending = pending[1:]
			}
		} else {
			trainFirst = true
		}
		batches = append(batches, Batch{Kind: TestBatch, Size: test})
	}

	return batches
}

// Options controls Prepare.
type Options struct {
	WaitingDays int
	NoiseN      int
	// KeepNoise skips RemoveNoise.
	KeepNoise bool
	// KeepOrder skips BalanceEvents.
	KeepOrder bool
}

var ErrNoCommits = errors.New("no commits")

// Prepared is the training stream of a test stream and its schedule.
type Prepared struct {
	Events   []Event
	Schedule []Batch
}

// Prepare builds the training events for train and schedules them against
// the test commits.
func Prepare(test, train []Commit, opts Options) (Prepared, error) {
	if len(test) == 0 {
		return Prepared{}, ErrNoCommits
	}

	events := ExtractEvents(train, opts.WaitingDays)
	if !opts.KeepNoise {
		events = RemoveNoise(events, opts.NoiseN)
	}
	if !opts.KeepOrder {
		events = BalanceEvents(events)
	}

	testTimes := make([]int64, len(test))
	for i, c := range test {
		testTimes[i] = c.Timestamp
	}
	eventTimes := make([]int64, len(events))
	for i, e := range events {
		eventTimes[i] = e.Timestamp
	}

	testSteps := CalculateSteps(testTimes, eventTimes, false)
	trainSteps := CalculateSteps(eventTimes, testTimes, true)

	return Prepared{Events: events, Schedule: Schedule(testSteps, trainSteps)}, nil
}
