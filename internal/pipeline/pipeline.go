// Package pipeline runs extracted slow log records through filtering and
// fingerprinting.
package pipeline

import (
	"sync"

	"slowdigest/internal/filter"
	"slowdigest/internal/fingerprint"
	"slowdigest/internal/slowlog"
)

// Record is one kept slow log entry together with its aggregation key. When
// normalization is off the key is the raw query text.
type Record struct {
	slowlog.Entry
	Fingerprint string
}

// Options controls one pipeline run.
type Options struct {
	Filters   []filter.Filter
	Normalize bool
	Workers   int
}

// Run drops entries rejected by the filters and computes the aggregation key
// for the rest. Records come back in input order. Normalization fans out
// over a fixed worker pool; each worker owns its own parser.
func Run(entries []slowlog.Entry, opts Options) []Record {
	kept := make([]Record, 0, len(entries))
	for i := range entries {
		if filter.All(opts.Filters, &entries[i]) {
			kept = append(kept, Record{Entry: entries[i], Fingerprint: entries[i].Query})
		}
	}
	if !opts.Normalize || len(kept) == 0 {
		return kept
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(kept) {
		workers = len(kept)
	}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			n := fingerprint.New()
			for i := worker; i < len(kept); i += workers {
				kept[i].Fingerprint = n.Normalize(kept[i].Query)
			}
		}(w)
	}
	wg.Wait()
	return kept
}
