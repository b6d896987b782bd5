package rca

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/blacktop/fwtrace/pkg/trace"
	"github.com/pkg/errors"
)

// Occurrence is the representative crashing trace of one (stop reason, crash
// site) pair and how often the pair was seen
type Occurrence struct {
	Reason        string    `yaml:"reason"`
	LastAddress   uint32    `yaml:"last_address"`
	Mnemonic      string    `yaml:"mnemonic,omitempty"`
	File          string    `yaml:"file"`
	Time          time.Time `yaml:"time"`
	InputLength   uint64    `yaml:"input_length"`
	InputConsumed uint64    `yaml:"input_consumed"`
	Count         int       `yaml:"count"`
}

// Order picks the representative trace of a crash group
type Order uint8

const (
	// OrderFirst keeps the oldest trace and sorts groups by discovery time
	OrderFirst Order = iota
	// OrderShortest keeps the trace with the shortest input and sorts groups
	// by input length
	OrderShortest
)

type crashSite struct {
	reason trace.StopReason
	last   uint32
}

// EvalCrashes groups the crashing traces below dir by stop reason and crash
// site, keeping one representative trace file per group as chosen by order.
func EvalCrashes(ctx context.Context, dir string, workers int, order Order) ([]Occurrence, error) {
	files, _, err := trace.SummaryFiles(dir)
	if err != nil {
		return nil, err
	}
	sums, err := LoadSummaries(ctx, files, workers)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load crashing traces")
	}

	times := make([]time.Time, len(files))
	for i, f := range files {
		fi, err := os.Stat(f)
		if err != nil {
			return nil, err
		}
		times[i] = fi.ModTime()
	}

	if order == OrderShortest {
		return shortestInputs(files, times, sums), nil
	}
	return firstOccurrences(files, times, sums), nil
}

func firstOccurrences(files []string, times []time.Time, sums []*trace.Summary) []Occurrence {
	occs := groupCrashes(files, times, sums, func(cand, cur *Occurrence) bool {
		return cand.Time.Before(cur.Time)
	})
	sort.SliceStable(occs, func(i, j int) bool { return occs[i].Time.Before(occs[j].Time) })
	return occs
}

// shortestInputs keeps the smallest reproducer of every crash, the older one
// on equal length
func shortestInputs(files []string, times []time.Time, sums []*trace.Summary) []Occurrence {
	shorter := func(a, b *Occurrence) bool {
		if a.InputLength != b.InputLength {
			return a.InputLength < b.InputLength
		}
		return a.Time.Before(b.Time)
	}
	occs := groupCrashes(files, times, sums, shorter)
	sort.SliceStable(occs, func(i, j int) bool { return shorter(&occs[i], &occs[j]) })
	return occs
}

// groupCrashes folds sums into one Occurrence per crash site, replacing the
// representative whenever better(candidate, current) holds
func groupCrashes(files []string, times []time.Time, sums []*trace.Summary, better func(cand, cur *Occurrence) bool) []Occurrence {
	seen := make(map[crashSite]*Occurrence)
	var order []crashSite
	for i, s := range sums {
		k := crashSite{s.StopReason, s.LastAddress}
		cand := &Occurrence{
			Reason:        s.StopReason.String(),
			LastAddress:   s.LastAddress,
			File:          files[i],
			Time:          times[i],
			InputLength:   s.Input.Length,
			InputConsumed: s.Input.Consumed,
		}
		if in, ok := s.Instruction(s.LastAddress); ok {
			cand.Mnemonic = in.Mnemonic
		}

		occ, ok := seen[k]
		switch {
		case !ok:
			occ = cand
			seen[k] = occ
			order = append(order, k)
		case better(cand, occ):
			cand.Count = occ.Count
			*occ = *cand
		}
		occ.Count++
	}

	occs := make([]Occurrence, 0, len(order))
	for _, k := range order {
		occs = append(occs, *seen[k])
	}
	return occs
}
