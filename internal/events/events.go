package events

import (
	"encoding/csv"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const secondsByDay = 24 * 60 * 60

// Event is a commit label becoming known at Timestamp.
type Event struct {
	Timestamp int64
	// CommitTimestamp is when the labelled commit was made.
	CommitTimestamp int64
	Target          int
	Features        []float64
}

// ExtractEvents labels every commit. Clean commits are labelled clean once
// waitingDays have passed. Defective commits are labelled defective when
// fixed and, if the fix took at least waitingDays, also labelled clean at the
// end of the waiting time, as the model would have seen them. Events are
// sorted by time; ties keep the order clean, defective, then clean-before-fix.
func ExtractEvents(commits []Commit, waitingDays int) []Event {
	latency := int64(waitingDays) * secondsByDay

	var cleaned, bugged, bugCleaned []Event
	for _, c := range commits {
		switch c.Target {
		case 0:
			cleaned = append(cleaned, Event{Timestamp: c.Timestamp + latency, CommitTimestamp: c.Timestamp, Target: 0, Features: c.Features})
		case 1:
			bugged = append(bugged, Event{Timestamp: c.TimestampFix, CommitTimestamp: c.Timestamp, Target: 1, Features: c.Features})
			if c.TimestampFix-c.Timestamp >= latency {
				bugCleaned = append(bugCleaned, Event{Timestamp: c.Timestamp + latency, CommitTimestamp: c.Timestamp, Target: 0, Features: c.Features})
			}
		}
	}

	events := make([]Event, 0, len(cleaned)+len(bugged)+len(bugCleaned))
	events = append(events, cleaned...)
	events = append(events, bugged...)
	events = append(events, bugCleaned...)
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp < events[j].Timestamp })

	return events
}

// RemoveNoise drops defective events whose features were already seen with a
// clean label more than n times. Events with missing features are kept.
func RemoveNoise(events []Event, n int) []Event {
	type counter struct{ seen, bugs int }
	groups := make(map[string]*counter)

	kept := make([]Event, 0, len(events))
	for _, e := range events {
		key, ok := featureKey(e.Features)
		if !ok {
			kept = append(kept, e)

			continue
		}
		g, found := groups[key]
		if !found {
			g = &counter{}
			groups[key] = g
		}
		// seen counts earlier events of the group, bugs includes this one
		g.bugs += e.Target
		noisy := e.Target == 1 && g.seen-g.bugs >= n
		g.seen++
		if !noisy {
			kept = append(kept, e)
		}
	}

	return kept
}

func featureKey(features []float64) (string, bool) {
	parts := make([]string, len(features))
	for i, f := range features {
		if math.IsNaN(f) {
			return "", false
		}
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}

	return strings.Join(parts, ","), true
}

// BalanceEvents pairs every clean event with the oldest defective event not
// yet paired, moved to the clean event's time. Defective events left unpaired
// at the end are dropped.
func BalanceEvents(events []Event) []Event {
	var pool []Event
	balanced := make([]Event, 0, len(events))
	for _, e := range events {
		switch e.Target {
		case 1:
			pool = append(pool, e)
		case 0:
			balanced = append(balanced, e)
			if len(pool) > 0 {
				bug := pool[0]
				pool = pool[1:]
				bug.Timestamp = e.Timestamp
				balanced = append(balanced, bug)
			}
		}
	}

	return balanced
}

// WriteEvents writes events as CSV with the same feature columns as the
// commit datasets.
func WriteEvents(w io.Writer, events []Event) error {
	cw := csv.NewWriter(w)
	header := append([]string{"timestamp_event", "timestamp"}, Features...)
	header = append(header, "target")
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "write header")
	}

	for _, e := range events {
		record := make([]string, 0, len(header))
		record = append(record, strconv.FormatInt(e.Timestamp, 10), strconv.FormatInt(e.CommitTimestamp, 10))
		for _, f := range e.Features {
			if math.IsNaN(f) {
				record = append(record, "")

				continue
			}
			record = append(record, strconv.FormatFloat(f, 'g', -1, 64))
		}
		record = append(record, strconv.Itoa(e.Target))
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, "write event")
		}
	}
	cw.Flush()

	return errors.Wrap(cw.Error(), "flush events")
}
