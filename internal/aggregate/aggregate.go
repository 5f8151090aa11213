// Package aggregate folds records into per-fingerprint statistics.
package aggregate

import "time"

// Entry holds the running statistics for one fingerprint.
type Entry struct {
	Fingerprint string
	Count       int64
	TotalTime   time.Duration
	AvgTime     time.Duration
	MaxTime     time.Duration
}

// Aggregator groups query times by fingerprint. Entries keep the order in
// which their fingerprints were first seen.
type Aggregator struct {
	entries map[string]*Entry
	order   []*Entry
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{entries: make(map[string]*Entry)}
}

// Add folds one query time into the entry for fingerprint. The running
// average is kept in whole microseconds and truncates on every step, so it
// depends on insertion order and can differ from the mean of the totals.
func (a *Aggregator) Add(fingerprint string, queryTime time.Duration) {
	e, ok := a.entries[fingerprint]
	if !ok {
		e = &Entry{Fingerprint: fingerprint}
		a.entries[fingerprint] = e
		a.order = append(a.order, e)
	}
	avg := e.AvgTime.Microseconds()
	qt := queryTime.Microseconds()
	e.AvgTime = time.Duration((avg*e.Count+qt)/(e.Count+1)) * time.Microsecond
	e.Count++
	e.TotalTime += queryTime
	if queryTime > e.MaxTime {
		e.MaxTime = queryTime
	}
}

// Entries returns the aggregated entries in first-seen order. The slice is
// the caller's to reorder.
func (a *Aggregator) Entries() []*Entry {
	out := make([]*Entry, len(a.order))
	copy(out, a.order)
	return out
}

// Summary describes one whole aggregation run.
type Summary struct {
	TotalQueries  int64
	UniqueQueries int
	TotalTime     time.Duration
	AvgTime       time.Duration
	MaxTime       time.Duration
}

// Summarize reduces all entries to one Summary. An empty aggregation yields
// the zero Summary.
func (a *Aggregator) Summarize() Summary {
	s := Summary{UniqueQueries: len(a.order)}
	for _, e := range a.order {
		s.TotalQueries += e.Count
		s.TotalTime += e.TotalTime
		if e.MaxTime > s.MaxTime {
			s.MaxTime = e.MaxTime
		}
	}
	if s.TotalQueries > 0 {
		s.AvgTime = s.TotalTime / time.Duration(s.TotalQueries)
	}
	return s
}
