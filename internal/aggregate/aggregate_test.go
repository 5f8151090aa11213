package aggregate

import (
	"testing"
	"time"
)

func TestAddRunningAverage(t *testing.T) {
	a := New()
	a.Add("q", 100*time.Microsecond)
	a.Add("q", 300*time.Microsecond)
	entries := a.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Count != 2 {
		t.Fatalf("Count = %d, want 2", e.Count)
	}
	if want := 200 * time.Microsecond; e.AvgTime != want {
		t.Fatalf("AvgTime = %v, want %v", e.AvgTime, want)
	}
	if want := 400 * time.Microsecond; e.TotalTime != want {
		t.Fatalf("TotalTime = %v, want %v", e.TotalTime, want)
	}
	if want := 300 * time.Microsecond; e.MaxTime != want {
		t.Fatalf("MaxTime = %v, want %v", e.MaxTime, want)
	}
}

func TestAddTruncatesEveryStep(t *testing.T) {
	a := New()
	a.Add("q", 1*time.Microsecond)
	a.Add("q", 2*time.Microsecond)
	a.Add("q", 0)
	e := a.Entries()[0]
	// step two truncates (1+2)/2 to 1, step three carries that loss on:
	// (1*2+0)/3 = 0, while the mean of the totals would still be 1.
	if e.AvgTime != 0 {
		t.Fatalf("AvgTime = %v, want 0", e.AvgTime)
	}
	if want := 3 * time.Microsecond; e.TotalTime != want {
		t.Fatalf("TotalTime = %v, want %v", e.TotalTime, want)
	}
	if want := 2 * time.Microsecond; e.MaxTime != want {
		t.Fatalf("MaxTime = %v, want %v", e.MaxTime, want)
	}
}

func TestAddKeepsSubMicrosecondTotals(t *testing.T) {
	a := New()
	a.Add("q", 1500*time.Nanosecond)
	e := a.Entries()[0]
	if want := 1 * time.Microsecond; e.AvgTime != want {
		t.Fatalf("AvgTime = %v, want %v", e.AvgTime, want)
	}
	if want := 1500 * time.Nanosecond; e.TotalTime != want {
		t.Fatalf("TotalTime = %v, want %v", e.TotalTime, want)
	}
}

func TestEntriesFirstSeenOrder(t *testing.T) {
	a := New()
	a.Add("b", time.Millisecond)
	a.Add("a", time.Millisecond)
	a.Add("b", time.Millisecond)
	a.Add("c", time.Millisecond)
	entries := a.Entries()
	want := []string{"b", "a", "c"}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, fp := range want {
		if entries[i].Fingerprint != fp {
			t.Fatalf("entries[%d] = %q, want %q", i, entries[i].Fingerprint, fp)
		}
	}
	if entries[0].Count != 2 {
		t.Fatalf("entries[0].Count = %d, want 2", entries[0].Count)
	}
}

func TestSummarize(t *testing.T) {
	a := New()
	a.Add("a", 100*time.Millisecond)
	a.Add("a", 200*time.Millisecond)
	a.Add("b", 50*time.Millisecond)
	s := a.Summarize()
	if s.TotalQueries != 3 {
		t.Fatalf("TotalQueries = %d, want 3", s.TotalQueries)
	}
	if s.UniqueQueries != 2 {
		t.Fatalf("UniqueQueries = %d, want 2", s.UniqueQueries)
	}
	if want := 350 * time.Millisecond; s.TotalTime != want {
		t.Fatalf("TotalTime = %v, want %v", s.TotalTime, want)
	}
	if want := 350 * time.Millisecond / 3; s.AvgTime != want {
		t.Fatalf("AvgTime = %v, want %v", s.AvgTime, want)
	}
	if want := 200 * time.Millisecond; s.MaxTime != want {
		t.Fatalf("MaxTime = %v, want %v", s.MaxTime, want)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := New().Summarize()
	if s != (Summary{}) {
		t.Fatalf("empty summary = %+v, want zero value", s)
	}
}
