package metrics

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var ErrMissingColumn = errors.New("missing column")

// ReadResults reads a CSV with the columns timestep, target and prediction,
// in any order. An empty prediction is NoPrediction. Results are returned
// sorted by timestep, keeping file order within a timestep.
func ReadResults(r io.Reader) ([]Result, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range []string{"timestep", "target", "prediction"} {
		if _, ok := idx[col]; !ok {
			return nil, errors.Wrap(ErrMissingColumn, col)
		}
	}

	var results []Result
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}

		var res Result
		if res.Timestep, err = strconv.Atoi(strings.TrimSpace(record[idx["timestep"]])); err != nil {
			return nil, errors.Wrapf(err, "line %d: timestep", line)
		}
		if res.Target, err = parseClass(record[idx["target"]]); err != nil {
			return nil, errors.Wrapf(err, "line %d: target", line)
		}
		res.Prediction = NoPrediction
		if p := strings.TrimSpace(record[idx["prediction"]]); p != "" {
			if res.Prediction, err = parseClass(p); err != nil {
				return nil, errors.Wrapf(err, "line %d: prediction", line)
			}
		}
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Timestep < results[j].Timestep })

	return results, nil
}

// parseClass accepts integer or float encodings of 0 and 1 ("1", "1.0").
func parseClass(s string) (int, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if v != 0 && v != 1 {
		return 0, errors.Errorf("class must be 0 or 1, got %v", v)
	}

	return int(v), nil
}
