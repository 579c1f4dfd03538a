package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

func TestFileLoggerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.cbor")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	events := []Event{
		sampleEvent(),
		{
			Timestamp: time.Now().UTC(),
			SessionID: "8f7d9e60-0000-4000-8000-000000000001",
			Direction: DirectionIn,
			Category:  CategoryAnswer,
			Answer:    &AnswerEvent{Answers: 3},
		},
	}
	for _, ev := range events {
		logger.Log(ev)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	var got []Event
	for {
		ev, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		got = append(got, ev)
	}

	if len(got) != len(events) {
		t.Fatalf("read %d events, want %d", len(got), len(events))
	}
	if got[0].Category != CategoryQuery || got[1].Category != CategoryAnswer {
		t.Errorf("categories = %v, %v", got[0].Category, got[1].Category)
	}
	if got[1].Answer == nil || got[1].Answer.Answers != 3 {
		t.Errorf("Answer = %+v", got[1].Answer)
	}
}

func TestFileLoggerLogAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.cbor")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Must not panic, and double close is fine.
	logger.Log(sampleEvent())
	if err := logger.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
}
