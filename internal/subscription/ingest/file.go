// Package ingest reads extracted subscription events and usage events from
// JSON files.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"subsnap/internal/subscription/models"
)

// record is one subscription event as extracted. Older extracts name the
// fields after the subscriptions table, so both spellings are accepted.
type record struct {
	AccountID string  `json:"account_id"`
	UserID    string  `json:"user_id"`
	EventTS   string  `json:"event_ts"`
	StartDate string  `json:"start_date"`
	PlanID    string  `json:"plan_id"`
	PlanName  string  `json:"plan_name"`
	Status    string  `json:"status"`
	EndDate   *string `json:"end_date"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// parseTimestamp reads an ISO-8601 instant or date. Values without an offset are
// taken as UTC.
func parseTimestamp(s string) (*time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, true
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, true
		}
	}
	return nil, false
}

func (r record) raw(seq int) models.RawEvent {
	ev := models.RawEvent{
		AccountID: firstNonEmpty(r.AccountID, r.UserID),
		PlanID:    firstNonEmpty(r.PlanID, r.PlanName),
		Status:    r.Status,
		Seq:       seq,
	}
	// An unparsable timestamp leaves the field empty; the normalizer reports it.
	ev.Timestamp, _ = parseTimestamp(firstNonEmpty(r.EventTS, r.StartDate))
	if r.EndDate != nil {
		var ok bool
		if ev.EndDate, ok = parseTimestamp(*r.EndDate); !ok {
			ev.InvalidEndDate = *r.EndDate
		}
	}
	return ev
}

// FileSource reads subscription events from a JSON array or JSON lines file.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Events(ctx context.Context) ([]models.RawEvent, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()
	return ReadEvents(ctx, f)
}

// ReadEvents decodes events in input order, numbering them from 1.
func ReadEvents(ctx context.Context, r io.Reader) ([]models.RawEvent, error) {
	var events []models.RawEvent
	err := decode(ctx, r, func(data json.RawMessage) error {
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		events = append(events, rec.raw(len(events)+1))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

// decode calls fn for each object of a JSON array, or for each non-blank line of
// a JSON lines stream.
func decode(ctx context.Context, r io.Reader, fn func(json.RawMessage) error) error {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}

	if first == '[' {
		dec := json.NewDecoder(br)
		if _, err := dec.Token(); err != nil {
			return err
		}
		for i := 0; dec.More(); i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
			if err := fn(raw); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		_, err := dec.Token()
		return err
	}

	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		if err := fn(json.RawMessage(data)); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return scanner.Err()
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
