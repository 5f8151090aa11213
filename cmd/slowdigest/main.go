package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"slowdigest/internal/aggregate"
	"slowdigest/internal/config"
	"slowdigest/internal/filter"
	"slowdigest/internal/pipeline"
	"slowdigest/internal/report"
	"slowdigest/internal/slowlog"
	"slowdigest/internal/source"
	"slowdigest/internal/uploader"
	"slowdigest/internal/util"

	"gopkg.in/yaml.v3"
)

const version = "1.0.0"

type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ", ")
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func main() {
	var filterExprs stringList
	configPath := flag.String("config", "", "path to config file")
	infile := flag.String("infile", "", "slow query log file, - or empty for stdin")
	dsn := flag.String("dsn", "", "read mysql.slow_log from this server instead of a file")
	flag.Var(&filterExprs, "filter", "filter expression, repeatable")
	normalize := flag.Bool("normalize", false, "replace literals with placeholders")
	aggregateFlag := flag.Bool("aggregate", false, "group identical queries into a digest")
	order := flag.String("order", "", "digest sort key: none, count, total_time, avg_time or max_time")
	limit := flag.Int("limit", 0, "print this many digest entries, 0 prints all")
	workers := flag.Int("workers", 0, "normalizer goroutines")
	reportDir := flag.String("report-dir", "", "persist run artifacts under this directory")
	archive := flag.Bool("archive", false, "compress run artifacts into a tarball")
	verbose := flag.Bool("verbose", false, "debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if *showVersion {
		fmt.Printf("slowdigest v%s\n", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail("failed to load config: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "infile":
			cfg.Source.Path = *infile
		case "dsn":
			cfg.Source.MySQL.Enabled = true
			cfg.Source.MySQL.DSN = *dsn
		case "filter":
			cfg.Filters = append(cfg.Filters, filterExprs...)
		case "normalize":
			cfg.Normalize = *normalize
		case "aggregate":
			cfg.Aggregate = *aggregateFlag
		case "order":
			cfg.Order = *order
		case "limit":
			cfg.Limit = *limit
		case "workers":
			cfg.Workers = *workers
		case "report-dir":
			cfg.Report.Dir = *reportDir
		case "archive":
			cfg.Report.Archive = *archive
		case "verbose":
			cfg.Logging.Verbose = *verbose
		}
	})
	if cfg.Report.Archive && cfg.Report.Dir == "" {
		cfg.Report.Dir = "reports"
	}
	util.Verbose = cfg.Logging.Verbose

	if cfg.Logging.LogFile != "" {
		if dir := filepath.Dir(cfg.Logging.LogFile); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				fail("failed to create log dir: %v", err)
			}
		}
		logFile, err := os.OpenFile(cfg.Logging.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fail("failed to open log file: %v", err)
		}
		defer util.CloseWithErr(logFile, "log file")
		log.SetOutput(io.MultiWriter(os.Stderr, logFile))
	}
	if cfg.Logging.Verbose {
		if data, err := yaml.Marshal(&cfg); err == nil {
			util.Highlightf("config:\n%s", string(data))
		}
	}

	if err := run(cfg); err != nil {
		fail("run failed: %v", err)
	}
}

// fail reports a fatal error through the leveled logger, so it reaches the
// log file when one is configured, and exits.
func fail(format string, args ...any) {
	util.Errorf(format, args...)
	os.Exit(1)
}

func run(cfg config.Config) error {
	order, err := report.ParseOrder(cfg.Order)
	if err != nil {
		return err
	}
	filters := make([]filter.Filter, 0, len(cfg.Filters))
	for _, expr := range cfg.Filters {
		f, err := filter.Parse(expr)
		if err != nil {
			return err
		}
		filters = append(filters, f)
	}

	entries, sourceName, err := readEntries(cfg)
	if err != nil {
		return err
	}
	util.Debugf("extracted %d entries from %s", len(entries), sourceName)

	records := pipeline.Run(entries, pipeline.Options{
		Filters:   filters,
		Normalize: cfg.Normalize,
		Workers:   cfg.Workers,
	})

	if !cfg.Aggregate {
		return report.PrintRecords(os.Stdout, records)
	}

	agg := aggregate.New()
	for _, r := range records {
		agg.Add(r.Fingerprint, r.QueryTime)
	}
	top := agg.Entries()
	report.Sort(top, order)
	top = report.Top(top, cfg.Limit)
	summary := agg.Summarize()

	if err := report.PrintDigest(os.Stdout, top); err != nil {
		return err
	}
	if err := report.PrintSummary(os.Stdout, summary); err != nil {
		return err
	}

	if cfg.Report.Dir == "" {
		return nil
	}
	return persist(cfg, order, top, summary, sourceName)
}

func readEntries(cfg config.Config) ([]slowlog.Entry, string, error) {
	if cfg.Source.MySQL.Enabled {
		db, err := source.OpenDB(cfg.Source.MySQL.DSN)
		if err != nil {
			return nil, "", err
		}
		defer util.CloseWithErr(db, "mysql connection")
		entries, err := db.ReadSlowLog(context.Background(), cfg.Source.MySQL.Limit)
		return entries, "mysql.slow_log", err
	}

	in, err := source.Open(cfg.Source.Path)
	if err != nil {
		return nil, "", err
	}
	defer util.CloseWithErr(in, "slow log input")
	entries, err := slowlog.Extract(in)
	name := cfg.Source.Path
	if name == "" || name == "-" {
		name = "stdin"
	}
	return entries, name, err
}

func persist(cfg config.Config, order report.Order, entries []*aggregate.Entry, summary aggregate.Summary, sourceName string) error {
	w := &report.Writer{OutputDir: cfg.Report.Dir}
	run, err := w.NewRun()
	if err != nil {
		return err
	}

	digest := report.NewDigest(sourceName, order, cfg.Limit, entries, summary)
	digest.RunInfo = cfg.RunInfo
	if err := w.WriteDigest(run, digest); err != nil {
		return err
	}
	var text bytes.Buffer
	if err := report.PrintDigest(&text, entries); err != nil {
		return err
	}
	if err := report.PrintSummary(&text, summary); err != nil {
		return err
	}
	if err := w.WriteText(run, "digest.txt", text.String()); err != nil {
		return err
	}

	uploadTarget := run.Dir
	if cfg.Report.Archive {
		archivePath, err := w.WriteArchive(run)
		if err != nil {
			return err
		}
		uploadTarget = archivePath
	}
	util.Infof("run artifacts written to %s", run.Dir)
	return upload(cfg, uploadTarget)
}

func upload(cfg config.Config, target string) error {
	if !cfg.Storage.CloudEnabled() {
		return nil
	}
	s3Up, err := uploader.NewS3(cfg.Storage.S3)
	if err != nil {
		return err
	}
	gcsUp, err := uploader.NewGCS(cfg.Storage.GCS)
	if err != nil {
		return err
	}

	info, err := os.Stat(target)
	if err != nil {
		return err
	}
	ctx := context.Background()
	for _, up := range []uploader.Uploader{s3Up, gcsUp} {
		if !up.Enabled() {
			continue
		}
		var location string
		if info.IsDir() {
			location, err = up.UploadDir(ctx, target)
		} else {
			location, err = up.UploadFile(ctx, target)
		}
		if err != nil {
			return err
		}
		if location != "" {
			util.Infof("uploaded artifacts to %s", location)
		}
	}
	return nil
}
