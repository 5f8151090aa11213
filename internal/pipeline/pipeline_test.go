package pipeline

import (
	"fmt"
	"testing"
	"time"

	"slowdigest/internal/filter"
	"slowdigest/internal/slowlog"
)

func entry(user string, queryTime time.Duration, query string) slowlog.Entry {
	return slowlog.Entry{
		User:      user,
		Host:      "localhost",
		QueryTime: queryTime,
		Query:     query,
	}
}

func TestRunFiltersAndNormalizes(t *testing.T) {
	slow, err := filter.Compile("query_time", ">", "0.5")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	entries := []slowlog.Entry{
		entry("app", 600*time.Millisecond, "SELECT * FROM t WHERE id = 1;"),
		entry("app", 100*time.Millisecond, "SELECT * FROM t WHERE id = 2;"),
		entry("app", 700*time.Millisecond, "SELECT * FROM t WHERE id = 3;"),
	}
	records := Run(entries, Options{
		Filters:   []filter.Filter{slow},
		Normalize: true,
		Workers:   2,
	})
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	want := "SELECT * FROM `t` WHERE `id`=0;"
	for i, r := range records {
		if r.Fingerprint != want {
			t.Fatalf("records[%d].Fingerprint = %q, want %q", i, r.Fingerprint, want)
		}
	}
	if records[0].QueryTime != 600*time.Millisecond || records[1].QueryTime != 700*time.Millisecond {
		t.Fatalf("kept wrong records: %v, %v", records[0].QueryTime, records[1].QueryTime)
	}
}

func TestRunWithoutNormalizeKeepsRawQuery(t *testing.T) {
	entries := []slowlog.Entry{
		entry("app", time.Second, "SELECT * FROM t WHERE id = 42;"),
	}
	records := Run(entries, Options{})
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Fingerprint != "SELECT * FROM t WHERE id = 42;" {
		t.Fatalf("Fingerprint = %q, want the raw query", records[0].Fingerprint)
	}
}

func TestRunPreservesOrderAcrossWorkers(t *testing.T) {
	var entries []slowlog.Entry
	for i := 0; i < 25; i++ {
		entries = append(entries, entry("app", time.Second,
			fmt.Sprintf("SELECT * FROM t%d WHERE id = %d;", i, i)))
	}
	records := Run(entries, Options{Normalize: true, Workers: 4})
	if len(records) != len(entries) {
		t.Fatalf("got %d records, want %d", len(records), len(entries))
	}
	for i, r := range records {
		want := fmt.Sprintf("SELECT * FROM `t%d` WHERE `id`=0;", i)
		if r.Fingerprint != want {
			t.Fatalf("records[%d].Fingerprint = %q, want %q", i, r.Fingerprint, want)
		}
	}
}

func TestRunEmptyInput(t *testing.T) {
	records := Run(nil, Options{Normalize: true, Workers: 8})
	if len(records) != 0 {
		t.Fatalf("got %d records, want 0", len(records))
	}
}
