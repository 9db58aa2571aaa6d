package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestDumpCountsEventsAndDrops(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"type":"step","content":"Searching your project files...","thread_id":"t1"}`,
		`data: {broken`,
		`data: {"type":"final","content":"Done","thread_id":"t1"}`,
		``,
	}, "\n\n")

	var out bytes.Buffer
	count, dropped, err := dump(context.Background(), strings.NewReader(stream), zap.NewNop(), &out)
	if err != nil {
		t.Fatalf("dump err: %v", err)
	}
	if count != 2 || dropped != 1 {
		t.Fatalf("expected 2 events and 1 drop, got %d and %d", count, dropped)
	}
	if !strings.Contains(out.String(), "Searching your project files...") || !strings.Contains(out.String(), "thread=t1") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}
