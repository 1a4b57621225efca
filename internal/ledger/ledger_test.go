package ledger_test

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/photoop/internal/ledger"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func openLedger(t *testing.T) (*ledger.Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracking", "image_tracking.csv")
	l, err := ledger.Open(path, ledger.WithClock(newStepClock().Now))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return l, path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestAppendToFreshPathWritesOneHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image_tracking.csv")
	l, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected ledger to be created on open: %v", err)
	}
	if _, err := l.Append(context.Background(), "a.png", "req1", ledger.StatusReady); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines: %q", len(lines), lines)
	}
	if lines[0] != "timestamp,filename,request_id,status" {
		t.Fatalf("unexpected header %q", lines[0])
	}
}

func TestReopenDoesNotDuplicateHeader(t *testing.T) {
	l, path := openLedger(t)
	if _, err := l.Append(context.Background(), "a.png", "req1", ""); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := ledger.Open(path); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines after reopen, got %q", lines)
	}
}

func TestAppendEmptyExistingFileGetsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image_tracking.csv")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("seed empty file: %v", err)
	}
	l, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := l.Append(context.Background(), "a.png", "req1", ""); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	lines := readLines(t, path)
	if len(lines) != 2 || lines[0] != strings.Join(ledger.Header, ",") {
		t.Fatalf("unexpected contents %q", lines)
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	l, _ := openLedger(t)
	ctx := context.Background()

	const n = 7
	for i := 0; i < n; i++ {
		if _, err := l.Append(ctx, fmt.Sprintf("img_%d.png", i), fmt.Sprintf("req%d", i%3), ledger.StatusReady); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	entries, err := l.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != n {
		t.Fatalf("expected %d entries, got %d", n, len(entries))
	}
	for i, e := range entries {
		if want := fmt.Sprintf("img_%d.png", i); e.Filename != want {
			t.Fatalf("entry %d: expected %s, got %s", i, want, e.Filename)
		}
	}
}

func TestLatestReadyScenario(t *testing.T) {
	l, _ := openLedger(t)
	ctx := context.Background()

	if _, err := l.LatestReady(ctx, "req1"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before append, got %v", err)
	}
	if _, err := l.Append(ctx, "a.png", "req1", ledger.StatusReady); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := l.LatestReady(ctx, "req1")
	if err != nil {
		t.Fatalf("LatestReady failed: %v", err)
	}
	if got.Filename != "a.png" || got.RequestID != "req1" || got.Status != ledger.StatusReady {
		t.Fatalf("unexpected entry %#v", got)
	}

	if _, err := l.LatestReady(ctx, "reqX"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for reqX, got %v", err)
	}
}

func TestLatestReadyReturnsNewestRow(t *testing.T) {
	l, _ := openLedger(t)
	ctx := context.Background()

	for _, name := range []string{"a.png", "b.png"} {
		if _, err := l.Append(ctx, name, "req1", ledger.StatusReady); err != nil {
			t.Fatalf("Append %s failed: %v", name, err)
		}
	}
	got, err := l.LatestReady(ctx, "req1")
	if err != nil {
		t.Fatalf("LatestReady failed: %v", err)
	}
	if got.Filename != "b.png" {
		t.Fatalf("expected b.png, got %s", got.Filename)
	}
}

func TestLatestReadyUsesTimestampNotFileOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image_tracking.csv")
	content := "timestamp,filename,request_id,status\n" +
		"2025-03-01T12:00:05.000000Z,newer.png,req1,ready\n" +
		"2025-03-01T12:00:01.000000Z,older.png,req1,ready\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	l, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	got, err := l.LatestReady(context.Background(), "req1")
	if err != nil {
		t.Fatalf("LatestReady failed: %v", err)
	}
	if got.Filename != "newer.png" {
		t.Fatalf("expected newer.png, got %s", got.Filename)
	}
}

func TestLatestReadyFiltersIDAndStatus(t *testing.T) {
	l, _ := openLedger(t)
	ctx := context.Background()

	rows := []struct {
		file   string
		id     string
		status ledger.Status
	}{
		{"mine.png", "req1", ledger.StatusReady},
		{"other.png", "req2", ledger.StatusReady},
		{"failed.png", "req1", ledger.StatusFailed},
		{"later-other.png", "req2", ledger.StatusReady},
	}
	for _, r := range rows {
		if _, err := l.Append(ctx, r.file, r.id, r.status); err != nil {
			t.Fatalf("Append %s failed: %v", r.file, err)
		}
	}

	got, err := l.LatestReady(ctx, "req1")
	if err != nil {
		t.Fatalf("LatestReady failed: %v", err)
	}
	if got.RequestID != "req1" || got.Status != ledger.StatusReady || got.Filename != "mine.png" {
		t.Fatalf("unexpected entry %#v", got)
	}

	if _, err := l.Append(ctx, "only-failed.png", "req3", ledger.StatusFailed); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := l.LatestReady(ctx, "req3"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for failed-only request, got %v", err)
	}
}

func TestUpdateStatusAppendsTransition(t *testing.T) {
	l, path := openLedger(t)
	ctx := context.Background()

	if _, err := l.Append(ctx, "a.png", "req1", ledger.StatusReady); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	updated, err := l.UpdateStatus(ctx, "req1", ledger.StatusEmailed)
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.Filename != "a.png" || updated.Status != ledger.StatusEmailed {
		t.Fatalf("unexpected updated entry %#v", updated)
	}

	current, err := l.Current(ctx, "req1")
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if current.Status != ledger.StatusEmailed {
		t.Fatalf("expected current status emailed, got %s", current.Status)
	}

	ready, err := l.LatestReady(ctx, "req1")
	if err != nil {
		t.Fatalf("LatestReady after update failed: %v", err)
	}
	if ready.Filename != "a.png" {
		t.Fatalf("expected ready row to remain visible, got %#v", ready)
	}

	if _, err := l.UpdateStatus(ctx, "req1", ledger.StatusEmailed); err != nil {
		t.Fatalf("repeated UpdateStatus failed: %v", err)
	}
	if lines := readLines(t, path); len(lines) != 3 {
		t.Fatalf("expected repeated update to be a no-op, got %d lines", len(lines))
	}

	history, err := l.History(ctx, "req1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 || history[0].Status != ledger.StatusReady || history[1].Status != ledger.StatusEmailed {
		t.Fatalf("unexpected history %#v", history)
	}
}

func TestNoOpUpdateStatusIsNotCountedAsAppend(t *testing.T) {
	l, path := openLedger(t)
	ctx := context.Background()

	if _, err := l.Append(ctx, "a.png", "req1", ledger.StatusReady); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := l.UpdateStatus(ctx, "req1", ledger.StatusReady); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}
	}

	if lines := readLines(t, path); len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d lines", len(lines))
	}
	if h := l.Health(); h.Appends != 1 || h.AppendFailures != 0 {
		t.Fatalf("expected one append and no failures, got %+v", h)
	}

	if _, err := l.UpdateStatus(ctx, "req1", ledger.StatusEmailed); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if h := l.Health(); h.Appends != 2 {
		t.Fatalf("expected a real transition to count, got %+v", h)
	}
}

func TestUpdateStatusUnknownRequest(t *testing.T) {
	l, path := openLedger(t)
	ctx := context.Background()

	if _, err := l.UpdateStatus(ctx, "missing", ledger.StatusEmailed); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if lines := readLines(t, path); len(lines) != 1 {
		t.Fatalf("expected only the header, got %q", lines)
	}
	if h := l.Health(); h.AppendFailures != 0 {
		t.Fatalf("not-found should not count as a write failure, got %d", h.AppendFailures)
	}
}

func TestUpdateStatusRejectsInvalidStatus(t *testing.T) {
	l, _ := openLedger(t)
	if _, err := l.UpdateStatus(context.Background(), "req1", "Not Valid"); !errors.Is(err, ledger.ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField, got %v", err)
	}
}

func TestRoundTripPreservesFields(t *testing.T) {
	l, _ := openLedger(t)
	ctx := context.Background()

	cases := []struct {
		file string
		id   string
	}{
		{"generated_ab12cd34_20250301_120000.png", "ab12cd34"},
		{"with space.png", "id-with-dash"},
		{"odd,name \"quoted\".png", "id,comma"},
	}
	var written []ledger.Entry
	for _, c := range cases {
		e, err := l.Append(ctx, c.file, c.id, ledger.StatusReady)
		if err != nil {
			t.Fatalf("Append %q failed: %v", c.file, err)
		}
		written = append(written, e)
	}

	entries, err := l.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != len(written) {
		t.Fatalf("expected %d entries, got %d", len(written), len(entries))
	}
	for i := range written {
		got, want := entries[i], written[i]
		if !got.Timestamp.Equal(want.Timestamp) || got.Filename != want.Filename || got.RequestID != want.RequestID || got.Status != want.Status {
			t.Fatalf("entry %d mismatch: got %#v want %#v", i, got, want)
		}
	}
}

func TestAppendRejectsInvalidFields(t *testing.T) {
	l, _ := openLedger(t)
	ctx := context.Background()

	cases := []struct {
		name string
		file string
		id   string
	}{
		{"empty filename", "", "req1"},
		{"empty request id", "a.png", ""},
		{"newline", "a\n.png", "req1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := l.Append(ctx, tc.file, tc.id, ledger.StatusReady); !errors.Is(err, ledger.ErrInvalidField) {
				t.Fatalf("expected ErrInvalidField, got %v", err)
			}
		})
	}
}

func TestAppendToUnwritablePathReportsFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image_tracking.csv")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	l, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if _, err := l.Append(context.Background(), "a.png", "req1", ledger.StatusReady); err == nil {
		t.Fatal("expected append to a directory to fail")
	}
	h := l.Health()
	if h.AppendFailures != 1 || h.LastFailure == "" || h.LastFailureAt == nil {
		t.Fatalf("expected failure to be recorded, got %#v", h)
	}
}

func TestReadIgnoresTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image_tracking.csv")
	content := "timestamp,filename,request_id,status\n" +
		"2025-03-01T12:00:01.000000Z,a.png,req1,ready\n" +
		"2025-03-01T12:00:02.000000Z,b.p"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	l, err := ledger.Open(path, ledger.WithClock(newStepClock().Now))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ctx := context.Background()

	entries, err := l.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected torn tail to be ignored, got %d entries", len(entries))
	}

	if _, err := l.Append(ctx, "c.png", "req2", ledger.StatusReady); err != nil {
		t.Fatalf("Append after torn tail failed: %v", err)
	}
	entries, err = l.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 2 || entries[1].Filename != "c.png" {
		t.Fatalf("unexpected entries after append %#v", entries)
	}
}

func TestReadsLegacyTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image_tracking.csv")
	content := "timestamp,filename,request_id,status\n" +
		"2024-11-02T09:15:30.123456,generated_1a2b3c4d_20241102_091530.png,1a2b3c4d,ready\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	l, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	got, err := l.LatestReady(context.Background(), "1a2b3c4d")
	if err != nil {
		t.Fatalf("LatestReady failed: %v", err)
	}
	want := time.Date(2024, 11, 2, 9, 15, 30, 123456000, time.UTC)
	if !got.Timestamp.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got.Timestamp)
	}
}

func TestConcurrentAppendsDoNotInterleave(t *testing.T) {
	l, path := openLedger(t)
	ctx := context.Background()

	const workers, perWorker = 8, 10
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := l.Append(ctx, fmt.Sprintf("w%d_%d.png", w, i), fmt.Sprintf("req-%d-%d", w, i), ledger.StatusReady); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Append failed: %v", err)
	}

	entries, err := l.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != workers*perWorker {
		t.Fatalf("expected %d entries, got %d", workers*perWorker, len(entries))
	}
	if lines := readLines(t, path); len(lines) != workers*perWorker+1 {
		t.Fatalf("expected %d lines, got %d", workers*perWorker+1, len(lines))
	}
	if h := l.Health(); h.Appends != workers*perWorker {
		t.Fatalf("expected %d successful appends, got %d", workers*perWorker, h.Appends)
	}
}

func TestStats(t *testing.T) {
	l, _ := openLedger(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		if _, err := l.Append(ctx, fmt.Sprintf("%d.png", i), fmt.Sprintf("req%d", i), ledger.StatusReady); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if _, err := l.UpdateStatus(ctx, "req3", ledger.StatusEmailed); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 13 || stats.Requests != 12 {
		t.Fatalf("unexpected totals %#v", stats)
	}
	if stats.ByStatus[ledger.StatusReady] != 12 || stats.ByStatus[ledger.StatusEmailed] != 1 {
		t.Fatalf("unexpected status counts %#v", stats.ByStatus)
	}
	if len(stats.Recent) != 10 || stats.Recent[9].Status != ledger.StatusEmailed {
		t.Fatalf("unexpected recent rows %#v", stats.Recent)
	}
}

func TestParseStatus(t *testing.T) {
	cases := []struct {
		raw   string
		valid bool
	}{
		{"ready", true},
		{" emailed ", true},
		{"print_queued", true},
		{"", false},
		{"Ready", false},
		{"a,b", false},
		{"9lives", false},
	}
	for _, tc := range cases {
		_, err := ledger.ParseStatus(tc.raw)
		if (err == nil) != tc.valid {
			t.Fatalf("ParseStatus(%q): valid=%v, err=%v", tc.raw, tc.valid, err)
		}
	}
}

func TestNewRequestID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := ledger.NewRequestID()
		if len(id) != 16 {
			t.Fatalf("expected 16 characters, got %q", id)
		}
		if _, err := hex.DecodeString(id); err != nil {
			t.Fatalf("expected hex id, got %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestCancelledContext(t *testing.T) {
	l, _ := openLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Append(ctx, "a.png", "req1", ledger.StatusReady); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
