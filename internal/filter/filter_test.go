package filter

import (
	"errors"
	"testing"
	"time"

	"slowdigest/internal/slowlog"
)

func entry(user string, qt time.Duration, query string) *slowlog.Entry {
	return &slowlog.Entry{User: user, QueryTime: qt, Query: query}
}

func TestCompileUserFilters(t *testing.T) {
	cases := []struct {
		op    string
		user  string
		match bool
	}{
		{"=", "app", true},
		{"=", "other", false},
		{"!=", "app", false},
		{"!=", "other", true},
		{"~=", "ap+", true},
		{"~=", "^pp", false},
	}
	for _, c := range cases {
		pattern := c.user
		f, err := Compile("user", c.op, pattern)
		if err != nil {
			t.Fatalf("Compile(user, %q, %q): %v", c.op, pattern, err)
		}
		e := entry("app", 0, "")
		if got := f.Matches(e); got != c.match {
			t.Errorf("user %s %q on %q: got %v, want %v", c.op, pattern, e.User, got, c.match)
		}
	}
}

func TestCompileQueryFilter(t *testing.T) {
	f, err := Compile("query", "~=", "FROM orders")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !f.Matches(entry("u", 0, "SELECT * FROM orders;")) {
		t.Errorf("query filter missed a matching query")
	}
	if f.Matches(entry("u", 0, "SELECT * FROM users;")) {
		t.Errorf("query filter matched a non-matching query")
	}
}

func TestQueryTimeThresholdsAreInclusive(t *testing.T) {
	cases := []struct {
		op    string
		qt    time.Duration
		match bool
	}{
		{">", 500 * time.Millisecond, true},
		{">", 500*time.Millisecond + 900*time.Microsecond, true}, // truncates to 500ms
		{">", 499*time.Millisecond + 999*time.Microsecond, false},
		{">=", 500 * time.Millisecond, true},
		{"<", 500 * time.Millisecond, true},
		{"<", 501 * time.Millisecond, false},
		{"<=", 499 * time.Millisecond, true},
	}
	for _, c := range cases {
		f, err := Compile("query_time", c.op, "0.5")
		if err != nil {
			t.Fatalf("Compile(query_time, %q): %v", c.op, err)
		}
		if got := f.Matches(entry("u", c.qt, "")); got != c.match {
			t.Errorf("query_time %s 0.5 with %v: got %v, want %v", c.op, c.qt, got, c.match)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	cases := []struct {
		name     string
		operator string
		value    string
		want     error
	}{
		{"latency", "=", "1", ErrInvalidName},
		{"user", ">", "app", ErrInvalidOperator},
		{"query", "=", "x", ErrInvalidOperator},
		{"query_time", "~=", "0.5", ErrInvalidOperator},
		{"query_time", ">", "fast", ErrInvalidValue},
		{"user", "~=", "(unclosed", ErrInvalidPattern},
		{"query", "~=", "[z-a]", ErrInvalidPattern},
	}
	for _, c := range cases {
		_, err := Compile(c.name, c.operator, c.value)
		if err == nil {
			t.Fatalf("Compile(%q, %q, %q) succeeded, want error", c.name, c.operator, c.value)
		}
		if !errors.Is(err, c.want) {
			t.Errorf("Compile(%q, %q, %q)=%v, want errors.Is %v", c.name, c.operator, c.value, err, c.want)
		}
	}
}

func TestParse(t *testing.T) {
	f, err := Parse("user = app")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !f.Matches(entry("app", 0, "")) {
		t.Errorf("parsed filter did not match")
	}

	f, err = Parse("query_time>0.25")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !f.Matches(entry("u", 300*time.Millisecond, "")) {
		t.Errorf("query_time>0.25 should keep 300ms")
	}
	if f.Matches(entry("u", 200*time.Millisecond, "")) {
		t.Errorf("query_time>0.25 should drop 200ms")
	}

	if _, err := Parse("nonsense"); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("Parse(nonsense)=%v, want ErrInvalidFormat", err)
	}
}

func TestAllEmptyListKeepsEverything(t *testing.T) {
	if !All(nil, entry("anyone", time.Hour, "DROP TABLE t;")) {
		t.Fatalf("empty filter list must keep every entry")
	}
}

func TestAllRequiresEveryFilter(t *testing.T) {
	userF, err := Compile("user", "=", "app")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	timeF, err := Compile("query_time", ">", "1")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	filters := []Filter{userF, timeF}
	if !All(filters, entry("app", 2*time.Second, "")) {
		t.Errorf("both filters match, entry should be kept")
	}
	if All(filters, entry("app", 500*time.Millisecond, "")) {
		t.Errorf("time filter misses, entry should be dropped")
	}
	if All(filters, entry("other", 2*time.Second, "")) {
		t.Errorf("user filter misses, entry should be dropped")
	}
}
