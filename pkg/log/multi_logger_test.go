package log

import "testing"

type countingLogger struct {
	events []Event
}

func (c *countingLogger) Log(event Event) {
	c.events = append(c.events, event)
}

func TestMultiLoggerFansOut(t *testing.T) {
	a := &countingLogger{}
	b := &countingLogger{}
	multi := NewMultiLogger(a, b)

	multi.Log(sampleEvent())
	multi.Log(sampleEvent())

	if len(a.events) != 2 || len(b.events) != 2 {
		t.Errorf("fan-out counts = %d, %d; want 2, 2", len(a.events), len(b.events))
	}
}

func TestMultiLoggerEmpty(t *testing.T) {
	// No loggers configured must not panic.
	NewMultiLogger().Log(sampleEvent())
}
