// Package filter provides predicate filters over slow log entries.
package filter

import (
	"regexp"
	"strconv"
	"strings"

	"slowdigest/internal/slowlog"

	"github.com/pkg/errors"
)

// Filter reports whether a slow log entry should be kept. Filters are
// immutable after construction and safe for concurrent use.
type Filter interface {
	Matches(e *slowlog.Entry) bool
}

// Construction failures, matchable with errors.Is. They all surface before
// any record is read.
var (
	ErrInvalidFormat   = errors.New("invalid filter format")
	ErrInvalidName     = errors.New("unknown filter name")
	ErrInvalidOperator = errors.New("invalid filter operator")
	ErrInvalidPattern  = errors.New("invalid regular expression")
	ErrInvalidValue    = errors.New("invalid filter value")
)

// UserEquals matches entries whose user equals a name exactly.
type UserEquals struct {
	name string
}

// NewUserEquals builds an exact-user filter.
func NewUserEquals(name string) *UserEquals {
	return &UserEquals{name: name}
}

// Matches implements Filter.
func (f *UserEquals) Matches(e *slowlog.Entry) bool {
	return e.User == f.name
}

// UserMatches matches entries whose user matches a regular expression.
type UserMatches struct {
	pattern *regexp.Regexp
}

// NewUserMatches compiles pattern and builds a user-regexp filter.
func NewUserMatches(pattern string) (*UserMatches, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidPattern, "%q: %v", pattern, err)
	}
	return &UserMatches{pattern: re}, nil
}

// Matches implements Filter.
func (f *UserMatches) Matches(e *slowlog.Entry) bool {
	return f.pattern.MatchString(e.User)
}

// QueryMatches matches entries whose query text matches a regular expression.
type QueryMatches struct {
	pattern *regexp.Regexp
}

// NewQueryMatches compiles pattern and builds a query-regexp filter.
func NewQueryMatches(pattern string) (*QueryMatches, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidPattern, "%q: %v", pattern, err)
	}
	return &QueryMatches{pattern: re}, nil
}

// Matches implements Filter.
func (f *QueryMatches) Matches(e *slowlog.Entry) bool {
	return f.pattern.MatchString(e.Query)
}

// QueryTimeGreaterThan keeps entries whose query time, truncated to whole
// milliseconds, is at or above the threshold.
type QueryTimeGreaterThan struct {
	millis int64
}

// NewQueryTimeGreaterThan builds the filter from a millisecond threshold.
func NewQueryTimeGreaterThan(millis int64) *QueryTimeGreaterThan {
	return &QueryTimeGreaterThan{millis: millis}
}

// Matches implements Filter.
func (f *QueryTimeGreaterThan) Matches(e *slowlog.Entry) bool {
	return e.QueryTime.Milliseconds() >= f.millis
}

// QueryTimeLessThan keeps entries whose query time, truncated to whole
// milliseconds, is at or below the threshold.
type QueryTimeLessThan struct {
	millis int64
}

// NewQueryTimeLessThan builds the filter from a millisecond threshold.
func NewQueryTimeLessThan(millis int64) *QueryTimeLessThan {
	return &QueryTimeLessThan{millis: millis}
}

// Matches implements Filter.
func (f *QueryTimeLessThan) Matches(e *slowlog.Entry) bool {
	return e.QueryTime.Milliseconds() <= f.millis
}

// Not inverts another filter.
type Not struct {
	inner Filter
}

// NewNot wraps inner with a logical negation.
func NewNot(inner Filter) *Not {
	return &Not{inner: inner}
}

// Matches implements Filter.
func (f *Not) Matches(e *slowlog.Entry) bool {
	return !f.inner.Matches(e)
}

// Compile builds a filter from its name, operator and value.
//
//	user        =, !=, ~=     exact match, negated exact match, regexp
//	query       ~=            regexp over the query text
//	query_time  >, >=, <, <=  threshold in seconds, compared inclusively
func Compile(name, operator, value string) (Filter, error) {
	switch name {
	case "user":
		switch operator {
		case "=":
			return NewUserEquals(value), nil
		case "!=":
			return NewNot(NewUserEquals(value)), nil
		case "~=":
			return NewUserMatches(value)
		default:
			return nil, errors.Wrapf(ErrInvalidOperator, "user filter expects one of \"=\", \"!=\" or \"~=\", found %q", operator)
		}
	case "query":
		if operator != "~=" {
			return nil, errors.Wrapf(ErrInvalidOperator, "query filter only supports \"~=\", found %q", operator)
		}
		return NewQueryMatches(value)
	case "query_time":
		seconds, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidValue, "query time filter needs a numeric threshold in seconds, found %q", value)
		}
		millis := int64(1000 * seconds)
		switch operator {
		case ">", ">=":
			return NewQueryTimeGreaterThan(millis), nil
		case "<", "<=":
			return NewQueryTimeLessThan(millis), nil
		default:
			return nil, errors.Wrapf(ErrInvalidOperator, "query time filter expects one of \"<\", \"<=\", \">\" or \">=\", found %q", operator)
		}
	default:
		return nil, errors.Wrapf(ErrInvalidName, "%q", name)
	}
}

var specPattern = regexp.MustCompile(`^(\w+)\s*([=<>!~]+)\s*(.+)$`)

// Parse compiles a command-line filter argument of the form "name op value".
func Parse(arg string) (Filter, error) {
	m := specPattern.FindStringSubmatch(strings.TrimSpace(arg))
	if m == nil {
		return nil, errors.Wrapf(ErrInvalidFormat, "%q", arg)
	}
	return Compile(m[1], m[2], m[3])
}

// All reports whether every filter matches the entry, short-circuiting on
// the first miss. An empty list keeps everything.
func All(filters []Filter, e *slowlog.Entry) bool {
	for _, f := range filters {
		if !f.Matches(e) {
			return false
		}
	}
	return true
}
