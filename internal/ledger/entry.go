package ledger

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Status is the lifecycle status recorded on a ledger row.
type Status string

const (
	StatusReady   Status = "ready"
	StatusEmailed Status = "emailed"
	StatusFailed  Status = "failed"
)

// Header is the first row of every ledger file.
var Header = []string{"timestamp", "filename", "request_id", "status"}

// timestampLayout is fixed width so that string order matches time order.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// legacyLayout matches rows written without a zone offset.
const legacyLayout = "2006-01-02T15:04:05.999999"

var (
	// ErrNotFound is returned when no row matches a request id.
	ErrNotFound = errors.New("ledger: no matching entry")
	// ErrVerification is returned when a written row cannot be read back.
	ErrVerification = errors.New("ledger: write verification failed")
	// ErrInvalidField is returned for values that cannot be stored in a row.
	ErrInvalidField = errors.New("ledger: invalid field")
)

var statusPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,31}$`)

// Entry is one row of the ledger.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Filename  string    `json:"filename"`
	RequestID string    `json:"request_id"`
	Status    Status    `json:"status"`
}

// ParseStatus validates a raw status token.
func ParseStatus(raw string) (Status, error) {
	s := strings.TrimSpace(raw)
	if !statusPattern.MatchString(s) {
		return "", fmt.Errorf("%w: status %q must be a lowercase token", ErrInvalidField, raw)
	}
	return Status(s), nil
}

func (e Entry) record() []string {
	return []string{
		formatTimestamp(e.Timestamp),
		e.Filename,
		e.RequestID,
		string(e.Status),
	}
}

func (e Entry) validate() error {
	if e.Filename == "" {
		return fmt.Errorf("%w: filename is empty", ErrInvalidField)
	}
	if e.RequestID == "" {
		return fmt.Errorf("%w: request id is empty", ErrInvalidField)
	}
	for name, v := range map[string]string{"filename": e.Filename, "request_id": e.RequestID} {
		if strings.ContainsAny(v, "\r\n") {
			return fmt.Errorf("%w: %s contains a line break", ErrInvalidField, name)
		}
	}
	if _, err := ParseStatus(string(e.Status)); err != nil {
		return err
	}
	return nil
}

func parseRecord(rec []string) (Entry, error) {
	if len(rec) != len(Header) {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", len(Header), len(rec))
	}
	ts, err := parseTimestamp(rec[0])
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Timestamp: ts,
		Filename:  rec[1],
		RequestID: rec[2],
		Status:    Status(rec[3]),
	}, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(legacyLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}

// sameRow compares entries at the precision stored on disk.
func sameRow(a, b Entry) bool {
	return formatTimestamp(a.Timestamp) == formatTimestamp(b.Timestamp) &&
		a.Filename == b.Filename &&
		a.RequestID == b.RequestID &&
		a.Status == b.Status
}
