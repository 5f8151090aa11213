package source

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"slowdigest/internal/slowlog"
	"slowdigest/internal/util"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// DB wraps a server connection used to read the mysql.slow_log table. That
// table is populated when log_output includes TABLE.
type DB struct {
	*sql.DB
}

// OpenDB connects to the server behind dsn and verifies the connection.
func OpenDB(dsn string) (*DB, error) {
	handle, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	if err := handle.Ping(); err != nil {
		util.CloseWithErr(handle, "mysql handle")
		return nil, errors.Wrap(err, "ping mysql")
	}
	return &DB{handle}, nil
}

const slowLogQuery = "SELECT start_time, user_host, query_time, lock_time, rows_sent, rows_examined, sql_text" +
	" FROM mysql.slow_log ORDER BY start_time"

// ReadSlowLog loads entries from mysql.slow_log in start_time order. Rows
// with empty statement text (administrative noise) are dropped. A limit
// above zero caps the number of rows fetched.
func (d *DB) ReadSlowLog(ctx context.Context, limit int) ([]slowlog.Entry, error) {
	query := slowLogQuery
	if limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, limit)
	}
	rows, err := d.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "query mysql.slow_log")
	}
	defer util.CloseWithErr(rows, "slow_log rows")

	var entries []slowlog.Entry
	for rows.Next() {
		var (
			startTime, userHost string
			queryTime, lockTime string
			sent, examined      int64
			text                string
		)
		if err := rows.Scan(&startTime, &userHost, &queryTime, &lockTime, &sent, &examined, &text); err != nil {
			return nil, errors.Wrap(err, "scan slow_log row")
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if !strings.HasSuffix(text, ";") {
			text += ";"
		}
		qt, err := parseTableTime(queryTime)
		if err != nil {
			return nil, err
		}
		lt, err := parseTableTime(lockTime)
		if err != nil {
			return nil, err
		}
		// start_time carries no zone, so it parses as UTC.
		ts, err := time.Parse("2006-01-02 15:04:05.999999", startTime)
		if err != nil {
			return nil, errors.Wrapf(err, "parse start_time %q", startTime)
		}
		user, host, _ := slowlog.ParseUserHost(userHost)
		entries = append(entries, slowlog.Entry{
			Time:         ts,
			User:         user,
			Host:         host,
			QueryTime:    qt,
			LockTime:     lt,
			RowsSent:     sent,
			RowsExamined: examined,
			Query:        text,
		})
	}
	return entries, errors.Wrap(rows.Err(), "iterate slow_log")
}

// parseTableTime converts a TIME(6) column value, H:MM:SS.ffffff with hours
// possibly beyond 23, to a duration.
func parseTableTime(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, errors.Errorf("malformed TIME value %q", s)
	}
	hours, err1 := strconv.Atoi(parts[0])
	minutes, err2 := strconv.Atoi(parts[1])
	seconds, err3 := slowlog.ParseSeconds(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, errors.Errorf("malformed TIME value %q", s)
	}
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + seconds, nil
}
