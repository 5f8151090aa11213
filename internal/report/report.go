// Package report renders digests to a stream and persists run artifacts
// (JSON digest, text digest, compressed archive) for later upload.
package report

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"slowdigest/internal/aggregate"
	"slowdigest/internal/pipeline"
	"slowdigest/internal/runinfo"
	"slowdigest/internal/util"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Order selects the key used to sort digest entries before display.
type Order string

const (
	OrderNone      Order = "none"
	OrderCount     Order = "count"
	OrderTotalTime Order = "total_time"
	OrderAvgTime   Order = "avg_time"
	OrderMaxTime   Order = "max_time"
)

// ParseOrder validates a sort order name. The empty string means OrderNone.
func ParseOrder(s string) (Order, error) {
	switch Order(s) {
	case "":
		return OrderNone, nil
	case OrderNone, OrderCount, OrderTotalTime, OrderAvgTime, OrderMaxTime:
		return Order(s), nil
	default:
		return "", errors.Errorf("unknown sort order %q, expected one of \"none\", \"count\", \"total_time\", \"avg_time\" or \"max_time\"", s)
	}
}

// Sort reorders entries in place, descending by the chosen key. Ties keep
// their first-seen order, and OrderNone leaves the slice untouched.
func Sort(entries []*aggregate.Entry, order Order) {
	switch order {
	case OrderCount:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Count > entries[j].Count
		})
	case OrderTotalTime:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].TotalTime > entries[j].TotalTime
		})
	case OrderAvgTime:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].AvgTime > entries[j].AvgTime
		})
	case OrderMaxTime:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].MaxTime > entries[j].MaxTime
		})
	}
}

// Top returns at most n leading entries. n <= 0 disables the window and
// keeps everything.
func Top(entries []*aggregate.Entry, n int) []*aggregate.Entry {
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[:n]
}

// PrintDigest writes one block per aggregated entry.
func PrintDigest(w io.Writer, entries []*aggregate.Entry) error {
	for _, e := range entries {
		_, err := fmt.Fprintf(w, "%d queries, avg time %.3f seconds, max time %.3f seconds\n%s\n\n",
			e.Count, e.AvgTime.Seconds(), e.MaxTime.Seconds(), e.Fingerprint)
		if err != nil {
			return errors.Wrap(err, "print digest")
		}
	}
	return nil
}

// PrintRecords writes one block per kept record.
func PrintRecords(w io.Writer, records []pipeline.Record) error {
	for _, r := range records {
		_, err := fmt.Fprintf(w, "Executed in %.3f seconds returning %d row(s) for %s@%s\n%s\n\n",
			r.QueryTime.Seconds(), r.RowsSent, r.User, r.Host, r.Fingerprint)
		if err != nil {
			return errors.Wrap(err, "print records")
		}
	}
	return nil
}

// PrintSummary writes the closing summary block.
func PrintSummary(w io.Writer, s aggregate.Summary) error {
	_, err := fmt.Fprintf(w, "Summary\n=======\n%d unique queries (%d total), average execution time %.3f seconds\nExecution time: average %.3f seconds, maximum %.3f seconds\n",
		s.UniqueQueries, s.TotalQueries, s.AvgTime.Seconds(), s.AvgTime.Seconds(), s.MaxTime.Seconds())
	return errors.Wrap(err, "print summary")
}

// Digest is the persisted form of one run.
type Digest struct {
	GeneratedAt string             `json:"generated_at"`
	Source      string             `json:"source"`
	Order       string             `json:"order"`
	Limit       int                `json:"limit"`
	Entries     []DigestEntry      `json:"entries"`
	Summary     DigestSummary      `json:"summary"`
	RunInfo     *runinfo.BasicInfo `json:"run_info,omitempty"`
}

// DigestEntry mirrors one aggregate entry. Durations are stored as whole
// microseconds, the granularity the aggregator works in.
type DigestEntry struct {
	Fingerprint string `json:"fingerprint"`
	Count       int64  `json:"count"`
	TotalMicros int64  `json:"total_time_us"`
	AvgMicros   int64  `json:"avg_time_us"`
	MaxMicros   int64  `json:"max_time_us"`
}

// DigestSummary mirrors the aggregate summary.
type DigestSummary struct {
	TotalQueries  int64 `json:"total_queries"`
	UniqueQueries int   `json:"unique_queries"`
	TotalMicros   int64 `json:"total_time_us"`
	AvgMicros     int64 `json:"avg_time_us"`
	MaxMicros     int64 `json:"max_time_us"`
}

// NewDigest captures the displayed entries and summary in persistable form.
func NewDigest(source string, order Order, limit int, entries []*aggregate.Entry, s aggregate.Summary) Digest {
	d := Digest{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Source:      source,
		Order:       string(order),
		Limit:       limit,
		Entries:     make([]DigestEntry, 0, len(entries)),
		Summary: DigestSummary{
			TotalQueries:  s.TotalQueries,
			UniqueQueries: s.UniqueQueries,
			TotalMicros:   s.TotalTime.Microseconds(),
			AvgMicros:     s.AvgTime.Microseconds(),
			MaxMicros:     s.MaxTime.Microseconds(),
		},
	}
	for _, e := range entries {
		d.Entries = append(d.Entries, DigestEntry{
			Fingerprint: e.Fingerprint,
			Count:       e.Count,
			TotalMicros: e.TotalTime.Microseconds(),
			AvgMicros:   e.AvgTime.Microseconds(),
			MaxMicros:   e.MaxTime.Microseconds(),
		})
	}
	return d
}

// Writer persists run artifacts under OutputDir, one directory per run.
type Writer struct {
	OutputDir string
}

// Run identifies one report directory.
type Run struct {
	ID  string
	Dir string
}

// NewRun allocates a fresh directory for this run's artifacts.
func (w *Writer) NewRun() (Run, error) {
	runID := uuid.New().String()
	if v7, err := uuid.NewV7(); err == nil {
		runID = v7.String()
	}
	dir := filepath.Join(w.OutputDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Run{}, errors.Wrapf(err, "create run dir %s", dir)
	}
	return Run{ID: runID, Dir: dir}, nil
}

// WriteDigest writes digest.json into the run directory.
func (w *Writer) WriteDigest(r Run, d Digest) error {
	f, err := os.Create(filepath.Join(r.Dir, "digest.json"))
	if err != nil {
		return errors.Wrap(err, "create digest.json")
	}
	defer util.CloseWithErr(f, "digest.json")
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return errors.Wrap(enc.Encode(d), "encode digest.json")
}

// WriteText writes a plain text artifact into the run directory.
func (w *Writer) WriteText(r Run, name, content string) error {
	err := os.WriteFile(filepath.Join(r.Dir, name), []byte(content), 0o644)
	return errors.Wrapf(err, "write %s", name)
}

// ArchiveName is the file name of the compressed run archive.
const ArchiveName = "digest.tar.zst"

// WriteArchive compresses everything in the run directory into a single
// zstd tarball inside that same directory and returns its path.
func (w *Writer) WriteArchive(r Run) (string, error) {
	archivePath := filepath.Join(r.Dir, ArchiveName)
	if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
		return "", errors.Wrap(err, "remove stale archive")
	}
	f, err := os.Create(archivePath)
	if err != nil {
		return "", errors.Wrap(err, "create archive")
	}
	defer func() {
		if err != nil {
			util.CloseWithErr(f, "archive file")
			_ = os.Remove(archivePath)
		}
	}()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return "", errors.Wrap(err, "zstd writer")
	}
	tw := tar.NewWriter(zw)

	err = filepath.WalkDir(r.Dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || path == archivePath {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(r.Dir, path)
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, src)
		util.CloseWithErr(src, "archive source")
		return err
	})
	if err != nil {
		return "", errors.Wrap(err, "archive run dir")
	}
	if err = tw.Close(); err != nil {
		return "", errors.Wrap(err, "close tar writer")
	}
	if err = zw.Close(); err != nil {
		return "", errors.Wrap(err, "close zstd writer")
	}
	if err = f.Close(); err != nil {
		return "", errors.Wrap(err, "close archive")
	}
	return archivePath, nil
}
