package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

func writeEvents(t *testing.T, path string, events []Event) {
	t.Helper()
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	for _, ev := range events {
		logger.Log(ev)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var got []Event
	for {
		ev, err := r.Next()
		if err == io.EOF {
			return got
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		got = append(got, ev)
	}
}

func TestFilteredReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.cbor")
	base := time.Date(2025, 10, 2, 12, 0, 0, 0, time.UTC)

	writeEvents(t, path, []Event{
		{Timestamp: base, SessionID: "a", Category: CategoryQuery, ServiceType: "_http._tcp.local."},
		{Timestamp: base.Add(time.Second), SessionID: "a", Category: CategoryAnswer, ServiceType: "_ipp._tcp.local."},
		{Timestamp: base.Add(2 * time.Second), SessionID: "b", Category: CategoryQuery, ServiceType: "_http._tcp.local."},
	})

	t.Run("by session", func(t *testing.T) {
		r, err := NewFilteredReader(path, Filter{SessionID: "a"})
		if err != nil {
			t.Fatalf("NewFilteredReader failed: %v", err)
		}
		defer r.Close()
		if got := readAll(t, r); len(got) != 2 {
			t.Errorf("got %d events, want 2", len(got))
		}
	})

	t.Run("by category", func(t *testing.T) {
		cat := CategoryQuery
		r, err := NewFilteredReader(path, Filter{Category: &cat})
		if err != nil {
			t.Fatalf("NewFilteredReader failed: %v", err)
		}
		defer r.Close()
		if got := readAll(t, r); len(got) != 2 {
			t.Errorf("got %d events, want 2", len(got))
		}
	})

	t.Run("by service type and session", func(t *testing.T) {
		r, err := NewFilteredReader(path, Filter{SessionID: "a", ServiceType: "_ipp._tcp.local."})
		if err != nil {
			t.Fatalf("NewFilteredReader failed: %v", err)
		}
		defer r.Close()
		got := readAll(t, r)
		if len(got) != 1 || got[0].Category != CategoryAnswer {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("by time window", func(t *testing.T) {
		start := base.Add(500 * time.Millisecond)
		end := base.Add(1500 * time.Millisecond)
		r, err := NewFilteredReader(path, Filter{TimeStart: &start, TimeEnd: &end})
		if err != nil {
			t.Fatalf("NewFilteredReader failed: %v", err)
		}
		defer r.Close()
		got := readAll(t, r)
		if len(got) != 1 || got[0].SessionID != "a" {
			t.Errorf("got %+v", got)
		}
	})
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "nope.cbor")); err == nil {
		t.Error("expected error for missing file")
	}
}
