// Package slowlog extracts execution records from MySQL slow query logs.
package slowlog

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Entry is one executed-query record from a slow log.
type Entry struct {
	Time         time.Time
	User         string
	Host         string
	QueryTime    time.Duration
	LockTime     time.Duration
	RowsSent     int64
	RowsExamined int64
	Query        string
}

// FormatError reports a malformed line inside a started record. Lines seen
// while still looking for a record header are skipped as noise instead.
type FormatError struct {
	Line int
	Want string
	Text string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed slow log at line %d: want %s line, got %q", e.Line, e.Want, e.Text)
}

type parseState int

const (
	stateSeekHeader parseState = iota
	stateUserHost
	stateMetrics
	stateQuery
)

const (
	userHostPrefix  = "# User@Host:"
	usePreamble     = "use "
	setTimePreamble = "SET timestamp="

	// sql_text in a slow log holds whole statements; mediumblob tops out
	// at 16 MiB, so single lines can be far past the bufio default.
	maxLineBytes = 16 << 20
)

var (
	headerPattern  = regexp.MustCompile(`^# Time: (\S+)`)
	metricsPattern = regexp.MustCompile(`^# Query_time: ([0-9.]+)\s+Lock_time: ([0-9.]+)\s+Rows_sent: (\d+)\s+Rows_examined: (\d+)`)
	// user[user] @ host [ip]; the host slot is empty for TCP peers without
	// reverse DNS, in which case the bracketed address is the host.
	userHostPattern = regexp.MustCompile(`^([^\[\s]+)\[[^\]]*\]\s*@\s*([^\s\[]*)\s*\[([^\]]*)\]`)
	spaceRunPattern = regexp.MustCompile(`[ \t]*\t[ \t]*| {2,}`)
)

// Extract reads a slow query log and returns its records in input order.
// Once a header line has opened a record, a user/host or metrics line that
// fails to parse aborts the whole run with a *FormatError; no partial
// result is returned. A record cut off by end of input is dropped.
func Extract(r io.Reader) ([]Entry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		entries []Entry
		cur     Entry
		query   strings.Builder
		state   = stateSeekHeader
		lineNo  int
	)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSuffix(sc.Text(), "\r")

		switch state {
		case stateSeekHeader:
			m := headerPattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			ts, err := time.Parse(time.RFC3339Nano, m[1])
			if err != nil {
				// Header-shaped but not a timestamp we handle
				// (e.g. the legacy datetime format); keep seeking.
				continue
			}
			cur = Entry{Time: ts}
			state = stateUserHost

		case stateUserHost:
			if !strings.HasPrefix(line, userHostPrefix) {
				return nil, &FormatError{Line: lineNo, Want: "user/host", Text: line}
			}
			user, host, ok := ParseUserHost(strings.TrimSpace(line[len(userHostPrefix):]))
			if !ok {
				return nil, &FormatError{Line: lineNo, Want: "user/host", Text: line}
			}
			cur.User, cur.Host = user, host
			state = stateMetrics

		case stateMetrics:
			m := metricsPattern.FindStringSubmatch(line)
			if m == nil {
				return nil, &FormatError{Line: lineNo, Want: "metrics", Text: line}
			}
			qt, err1 := ParseSeconds(m[1])
			lt, err2 := ParseSeconds(m[2])
			sent, err3 := strconv.ParseInt(m[3], 10, 64)
			examined, err4 := strconv.ParseInt(m[4], 10, 64)
			if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
				return nil, &FormatError{Line: lineNo, Want: "metrics", Text: line}
			}
			cur.QueryTime, cur.LockTime = qt, lt
			cur.RowsSent, cur.RowsExamined = sent, examined
			query.Reset()
			state = stateQuery

		case stateQuery:
			if query.Len() == 0 && isPreamble(line) {
				continue
			}
			appendQueryLine(&query, line)
			if strings.HasSuffix(line, ";") {
				cur.Query = collapseSpaces(query.String())
				entries = append(entries, cur)
				state = stateSeekHeader
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read slow log")
	}
	return entries, nil
}

// ParseUserHost splits a `user[user] @ host [ip]` value as written on
// `# User@Host:` lines and in the mysql.slow_log user_host column. The
// returned host is the first non-empty of the name and address slots.
func ParseUserHost(s string) (user, host string, ok bool) {
	m := userHostPattern.FindStringSubmatch(s)
	if m == nil {
		return "", "", false
	}
	host = m[2]
	if host == "" {
		host = m[3]
	}
	return m[1], host, true
}

func isPreamble(line string) bool {
	return strings.HasPrefix(line, usePreamble) || strings.HasPrefix(line, setTimePreamble)
}

// appendQueryLine joins a continuation line with a single space, except
// across a digit/digit boundary where the number was wrapped mid-value.
func appendQueryLine(b *strings.Builder, line string) {
	if b.Len() == 0 {
		b.WriteString(line)
		return
	}
	joined := b.String()
	if line != "" && isDigit(joined[len(joined)-1]) && isDigit(line[0]) {
		b.WriteString(line)
		return
	}
	b.WriteByte(' ')
	b.WriteString(line)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func collapseSpaces(s string) string {
	return spaceRunPattern.ReplaceAllString(s, " ")
}

// ParseSeconds converts a decimal seconds value, as printed in slow log
// metrics lines and TIME columns, to a duration with microsecond resolution,
// truncating below the microsecond.
func ParseSeconds(s string) (time.Duration, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(int64(f*1e6)) * time.Microsecond, nil
}
