package source

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

func writeFile(t *testing.T, name string, data []byte) string {
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestOpenPlainFile(t *testing.T) {
	want := "# Time: 2024-03-01T12:00:00.000000Z\nSELECT 1;\n"
	path := writeFile(t, "plain.log", []byte(want))
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestOpenGzipFile(t *testing.T) {
	want := "# Time: 2024-03-01T12:00:00.000000Z\nSELECT 1;\n"
	path := filepath.Join(t.TempDir(), "slow.log.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte(want)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("file close: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestOpenEmptyFile(t *testing.T) {
	path := writeFile(t, "empty.log", nil)
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d bytes, want 0", len(got))
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "absent.log")); err == nil {
		t.Fatal("want error for missing file")
	}
}

func TestParseTableTime(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"00:00:01.500000", 1500 * time.Millisecond, true},
		{"01:02:03.000004", time.Hour + 2*time.Minute + 3*time.Second + 4*time.Microsecond, true},
		{"123:00:00.000000", 123 * time.Hour, true},
		{"00:00:00.000000", 0, true},
		{"12:34", 0, false},
		{"aa:bb:cc", 0, false},
	}
	for _, c := range cases {
		got, err := parseTableTime(c.in)
		if c.ok != (err == nil) {
			t.Fatalf("parseTableTime(%q) error = %v, want ok=%v", c.in, err, c.ok)
		}
		if got != c.want {
			t.Fatalf("parseTableTime(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
