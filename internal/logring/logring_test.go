package logring

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
)

func TestRingEvictsOldest(t *testing.T) {
	r := New(3)
	for i := 0; i < 5; i++ {
		r.Append(Entry{Level: "INFO", Message: fmt.Sprintf("msg %d", i)})
	}
	if r.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", r.Len())
	}
	got := r.Tail(0, slog.LevelDebug)
	if got[0].Message != "msg 2" || got[2].Message != "msg 4" {
		t.Errorf("unexpected window: %v", got)
	}
}

func TestTailFilters(t *testing.T) {
	r := New(10)
	r.Append(Entry{Level: "DEBUG", Message: "noise"})
	r.Append(Entry{Level: "INFO", Message: "fine"})
	r.Append(Entry{Level: "ERROR", Message: "bad"})

	errs := r.Tail(0, slog.LevelError)
	if len(errs) != 1 || errs[0].Message != "bad" {
		t.Errorf("expected only the error entry, got %v", errs)
	}

	last := r.Tail(1, slog.LevelDebug)
	if len(last) != 1 || last[0].Message != "bad" {
		t.Errorf("expected the newest entry, got %v", last)
	}
}

func TestHandlerCapturesRecords(t *testing.T) {
	ring := New(10)
	inner := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	logger := slog.New(NewHandler(inner, ring))

	logger.Info("hello", "ticket", "t-1")
	logger.With("conn", "c-9").Warn("slow client")

	got := ring.Tail(0, slog.LevelDebug)
	if len(got) != 2 {
		t.Fatalf("expected 2 captured entries, got %d", len(got))
	}
	if got[0].Attrs["ticket"] != "t-1" {
		t.Errorf("expected record attr, got %v", got[0].Attrs)
	}
	if got[1].Attrs["conn"] != "c-9" {
		t.Errorf("expected bound attr, got %v", got[1].Attrs)
	}
}
