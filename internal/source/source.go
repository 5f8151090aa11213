// Package source opens slow log input from files, stdin or a live server's
// mysql.slow_log table.
package source

import (
	"bufio"
	"io"
	"os"

	"slowdigest/internal/util"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

var gzipMagic = []byte{0x1f, 0x8b}

type reader struct {
	io.Reader
	closers []io.Closer
}

func (r *reader) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open returns a reader over the slow log text at path. An empty path or
// "-" selects stdin, which is never closed. Input starting with the gzip
// magic number is decompressed transparently.
func Open(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return sniff(os.Stdin, nil)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open slow log %s", path)
	}
	return sniff(f, f)
}

func sniff(r io.Reader, file io.Closer) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		if file != nil {
			util.CloseWithErr(file, "slow log file")
		}
		return nil, errors.Wrap(err, "sniff slow log")
	}
	var closers []io.Closer
	if len(head) == len(gzipMagic) && head[0] == gzipMagic[0] && head[1] == gzipMagic[1] {
		gz, err := gzip.NewReader(br)
		if err != nil {
			if file != nil {
				util.CloseWithErr(file, "slow log file")
			}
			return nil, errors.Wrap(err, "gzip slow log")
		}
		closers = append(closers, gz)
		if file != nil {
			closers = append(closers, file)
		}
		return &reader{Reader: gz, closers: closers}, nil
	}
	if file != nil {
		closers = append(closers, file)
	}
	return &reader{Reader: br, closers: closers}, nil
}
