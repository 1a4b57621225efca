package ledger

import (
	"context"
	"fmt"
)

const recentLimit = 10

// Stats summarizes the ledger contents.
type Stats struct {
	Total    int            `json:"total"`
	Requests int            `json:"requests"`
	ByStatus map[Status]int `json:"by_status"`
	Recent   []Entry        `json:"recent"`
}

// LatestReady returns the most recent ready row for requestID, or
// ErrNotFound when the request has no ready row.
func (l *Ledger) LatestReady(ctx context.Context, requestID string) (Entry, error) {
	return l.latest(ctx, requestID, func(e Entry) bool {
		return e.RequestID == requestID && e.Status == StatusReady
	})
}

// Current returns the most recent row for requestID regardless of status.
func (l *Ledger) Current(ctx context.Context, requestID string) (Entry, error) {
	return l.latest(ctx, requestID, func(e Entry) bool {
		return e.RequestID == requestID
	})
}

// History returns every row for requestID in the order written.
func (l *Ledger) History(ctx context.Context, requestID string) ([]Entry, error) {
	entries, err := l.Entries(ctx)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range entries {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Entries returns every row in the order written.
func (l *Ledger) Entries(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.readAll()
}

// Stats counts rows by status and returns the most recent ones.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	entries, err := l.Entries(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{
		Total:    len(entries),
		ByStatus: make(map[Status]int),
	}
	requests := make(map[string]struct{})
	for _, e := range entries {
		stats.ByStatus[e.Status]++
		requests[e.RequestID] = struct{}{}
	}
	stats.Requests = len(requests)

	start := len(entries) - recentLimit
	if start < 0 {
		start = 0
	}
	stats.Recent = append([]Entry(nil), entries[start:]...)
	return stats, nil
}

func (l *Ledger) latest(ctx context.Context, requestID string, match func(Entry) bool) (Entry, error) {
	entries, err := l.Entries(ctx)
	if err != nil {
		return Entry{}, err
	}
	entry, ok := latestWhere(entries, match)
	if !ok {
		return Entry{}, fmt.Errorf("%w: request %s", ErrNotFound, requestID)
	}
	return entry, nil
}

// latestWhere picks the matching row with the greatest timestamp. Rows with
// equal timestamps resolve to the one written last.
func latestWhere(entries []Entry, match func(Entry) bool) (Entry, bool) {
	var (
		best  Entry
		found bool
	)
	for _, e := range entries {
		if !match(e) {
			continue
		}
		if !found || !e.Timestamp.Before(best.Timestamp) {
			best = e
			found = true
		}
	}
	return best, found
}
