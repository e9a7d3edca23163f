// Package events turns a stream of commits into the labelling events an
// online defect predictor trains on, and schedules training against testing.
//
// A commit is tested when it is made, but its label only becomes known later:
// a clean label after a waiting time without a fix, a defective label when the
// fix lands.
package events

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Features are the commit metrics, in column order.
var Features = []string{"fix", "ns", "nd", "nf", "entropy", "la", "ld", "lt", "ndev", "age", "nuc", "exp", "rexp", "sexp"}

var ErrMissingColumn = errors.New("missing column")

// Commit is one row of a dataset. Timestamps are unix seconds.
type Commit struct {
	Timestamp    int64
	TimestampFix int64
	Target       int
	Features     []float64
}

// LoadCommits reads a CSV with a header holding timestamp, timestamp_fix,
// target and every feature column. Other columns are ignored. Empty feature
// cells are NaN and an empty timestamp_fix is 0.
func LoadCommits(r io.Reader) ([]Commit, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	required := append([]string{"timestamp", "timestamp_fix", "target"}, Features...)
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, errors.Wrap(ErrMissingColumn, col)
		}
	}

	var commits []Commit
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}

		c := Commit{Features: make([]float64, len(Features))}
		if c.Timestamp, err = parseTimestamp(record[idx["timestamp"]]); err != nil {
			return nil, errors.Wrapf(err, "line %d: timestamp", line)
		}
		if fix := strings.TrimSpace(record[idx["timestamp_fix"]]); fix != "" {
			if c.TimestampFix, err = parseTimestamp(fix); err != nil {
				return nil, errors.Wrapf(err, "line %d: timestamp_fix", line)
			}
		}
		target, err := strconv.ParseFloat(strings.TrimSpace(record[idx["target"]]), 64)
		if err != nil || (target != 0 && target != 1) {
			return nil, errors.Errorf("line %d: target must be 0 or 1, got %q", line, record[idx["target"]])
		}
		c.Target = int(target)
		for i, f := range Features {
			cell := strings.TrimSpace(record[idx[f]])
			if cell == "" {
				c.Features[i] = math.NaN()

				continue
			}
			if c.Features[i], err = strconv.ParseFloat(cell, 64); err != nil {
				return nil, errors.Wrapf(err, "line %d: %s", line, f)
			}
		}
		commits = append(commits, c)
	}

	return commits, nil
}

// parseTimestamp accepts integers and floats, truncating the latter.
func parseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}

	return int64(v), nil
}

// MergeCrossProject appends the commits of other projects made up to the
// last commit of data.
func MergeCrossProject(data, others []Commit) []Commit {
	merged := append([]Commit(nil), data...)
	if len(data) == 0 {
		return merged
	}
	last := data[0].Timestamp
	for _, c := range data[1:] {
		last = max(last, c.Timestamp)
	}
	for _, c := range others {
		if c.Timestamp <= last {
			merged = append(merged, c)
		}
	}

	return merged
}
