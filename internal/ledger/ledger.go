// Package ledger implements the append-only tracking file that correlates
// generation request ids with the artifacts they produced.
//
// Every status change is a new row. Writers are serialized by an in-process
// mutex and an advisory lock file so that separate worker processes sharing
// the same ledger never interleave rows. Readers take lock-free snapshots of
// the file and ignore a trailing line that has not been terminated yet.
package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Ledger is a CSV-backed, append-only record of artifact lifecycle events.
type Ledger struct {
	path   string
	lock   *flock.Flock
	now    func() time.Time
	logger *slog.Logger

	mu sync.Mutex

	healthMu sync.Mutex
	health   Health
}

// Health reports write outcomes since the ledger was opened.
type Health struct {
	Path           string     `json:"path"`
	Appends        int64      `json:"appends"`
	AppendFailures int64      `json:"append_failures"`
	LastFailure    string     `json:"last_failure,omitempty"`
	LastFailureAt  *time.Time `json:"last_failure_at,omitempty"`
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for new rows.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger used for warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Open prepares a ledger at path. The parent directory is created and the
// header row is written if the file is missing or empty. A failure to write
// the header is logged rather than returned; Append retries it.
func Open(path string, opts ...Option) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path must be provided")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	l := &Ledger{
		path:   path,
		lock:   flock.New(path + ".lock"),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.health.Path = path

	if err := l.withWriteLock(l.ensureHeader); err != nil {
		l.logger.Warn("Ledger header could not be prepared; tracking may not work.", "path", path, "error", err)
	} else {
		l.logger.Info("Ledger is ready.", "path", path)
	}
	return l, nil
}

// Path returns the backing file location.
func (l *Ledger) Path() string {
	return l.path
}

// Append writes a row for filename and requestID, forces it to stable
// storage and confirms it can be read back. An empty status means ready.
func (l *Ledger) Append(ctx context.Context, filename, requestID string, status Status) (Entry, error) {
	if status == "" {
		status = StatusReady
	}
	entry := Entry{
		Timestamp: l.timestamp(),
		Filename:  filename,
		RequestID: requestID,
		Status:    status,
	}
	err := l.write(ctx, func() (bool, error) {
		if err := entry.validate(); err != nil {
			return false, err
		}
		return true, l.appendLocked(entry)
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// UpdateStatus records a transition of requestID to status by appending a
// row that carries the filename of the latest existing row. Unknown ids
// return ErrNotFound. When the latest row already has the requested status
// nothing is written and that row is returned.
func (l *Ledger) UpdateStatus(ctx context.Context, requestID string, status Status) (Entry, error) {
	status, err := ParseStatus(string(status))
	if err != nil {
		return Entry{}, err
	}

	var result Entry
	err = l.write(ctx, func() (bool, error) {
		entries, err := l.readAll()
		if err != nil {
			return false, err
		}
		latest, ok := latestWhere(entries, func(e Entry) bool { return e.RequestID == requestID })
		if !ok {
			return false, fmt.Errorf("%w: request %s", ErrNotFound, requestID)
		}
		if latest.Status == status {
			result = latest
			return false, nil
		}

		next := Entry{
			Timestamp: l.timestamp(),
			Filename:  latest.Filename,
			RequestID: requestID,
			Status:    status,
		}
		if err := l.appendLocked(next); err != nil {
			return true, err
		}
		result = next
		return true, nil
	})
	if err != nil {
		return Entry{}, err
	}
	return result, nil
}

// Health returns a snapshot of the write counters.
func (l *Ledger) Health() Health {
	l.healthMu.Lock()
	defer l.healthMu.Unlock()
	h := l.health
	if h.LastFailureAt != nil {
		at := *h.LastFailureAt
		h.LastFailureAt = &at
	}
	return h
}

// write runs fn as the single writer and records the outcome. fn reports
// whether it attempted to append a row; only attempts count as appends.
func (l *Ledger) write(ctx context.Context, fn func() (bool, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var wrote bool
	err := l.withWriteLock(func() error {
		var err error
		wrote, err = fn()
		return err
	})

	l.healthMu.Lock()
	defer l.healthMu.Unlock()
	switch {
	case err == nil:
		if wrote {
			l.health.Appends++
		}
	case errors.Is(err, ErrNotFound):
		// Not a storage failure.
	default:
		l.health.AppendFailures++
		l.health.LastFailure = err.Error()
		at := l.now().UTC()
		l.health.LastFailureAt = &at
	}
	return err
}

func (l *Ledger) withWriteLock(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lock.Lock(); err != nil {
		return fmt.Errorf("acquire ledger lock: %w", err)
	}
	defer func() {
		if err := l.lock.Unlock(); err != nil {
			l.logger.Warn("Failed to release ledger lock.", "lockPath", l.lock.Path(), "error", err)
		}
	}()
	return fn()
}

func (l *Ledger) timestamp() time.Time {
	return l.now().UTC().Truncate(time.Microsecond)
}

// ensureHeader must be called with the write lock held.
func (l *Ledger) ensureHeader() error {
	info, err := os.Stat(l.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat ledger: %w", err)
	}
	if err == nil && info.Size() > 0 {
		return nil
	}

	header, err := encode(Header)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("create ledger: %w", err)
	}
	return writeSynced(f, header)
}

// appendLocked must be called with the write lock held.
func (l *Ledger) appendLocked(entry Entry) error {
	if err := l.ensureHeader(); err != nil {
		return err
	}
	row, err := encode(entry.record())
	if err != nil {
		return err
	}

	terminated, err := endsWithNewline(l.path)
	if err != nil {
		return err
	}
	if !terminated {
		// Isolate a torn row left by an interrupted writer.
		row = append([]byte{'\n'}, row...)
	}

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger for append: %w", err)
	}
	if err := writeSynced(f, row); err != nil {
		return err
	}
	return l.verify(entry)
}

func (l *Ledger) verify(entry Entry) error {
	entries, err := l.readAll()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerification, err)
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if sameRow(entries[i], entry) {
			return nil
		}
	}
	return fmt.Errorf("%w: row for request %s not found after write", ErrVerification, entry.RequestID)
}

// readAll returns every well-formed row in file order.
func (l *Ledger) readAll() ([]Entry, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	data = data[:bytes.LastIndexByte(data, '\n')+1]

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	var entries []Entry
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				l.logger.Warn("Skipping malformed ledger row.", "path", l.path, "line", perr.Line, "error", err)
				continue
			}
			return nil, fmt.Errorf("parse ledger: %w", err)
		}
		if isHeader(rec) {
			continue
		}
		entry, err := parseRecord(rec)
		if err != nil {
			line, _ := r.FieldPos(0)
			l.logger.Warn("Skipping unreadable ledger row.", "path", l.path, "line", line, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func isHeader(rec []string) bool {
	if len(rec) != len(Header) {
		return false
	}
	for i := range Header {
		if rec[i] != Header[i] {
			return false
		}
	}
	return true
}

func encode(rec []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(rec); err != nil {
		return nil, fmt.Errorf("encode ledger row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode ledger row: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSynced(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	return nil
}

func endsWithNewline(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat ledger: %w", err)
	}
	if info.Size() == 0 {
		return true, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, fmt.Errorf("read ledger tail: %w", err)
	}
	return last[0] == '\n', nil
}
