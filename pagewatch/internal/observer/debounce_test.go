package observer

import (
	"testing"
	"time"

	"github.com/hazyhaar/credkeeper/pagewatch/mutation"
)

func TestCompressMergesAttrRuns(t *testing.T) {
	records := []mutation.Record{
		{Op: mutation.OpAttr, XPath: "/html[1]/body[1]/form[1]", Name: "class", Value: "a", OldValue: ""},
		{Op: mutation.OpAttr, XPath: "/html[1]/body[1]/form[1]", Name: "class", Value: "b", OldValue: "a"},
		{Op: mutation.OpAttr, XPath: "/html[1]/body[1]/form[1]", Name: "class", Value: "c", OldValue: "b"},
		{Op: mutation.OpInsert, XPath: "/html[1]/body[1]/div[2]", HTML: "<div></div>"},
	}

	out := compress(records)
	if len(out) != 2 {
		t.Fatalf("compressed to %d records, want 2", len(out))
	}
	if out[0].Value != "c" || out[0].OldValue != "" {
		t.Errorf("merged attr = value %q old %q, want value c old \"\"", out[0].Value, out[0].OldValue)
	}
	if out[1].Op != mutation.OpInsert {
		t.Errorf("out[1].Op = %s, want insert", out[1].Op)
	}
}

func TestCompressKeepsDistinctAttrs(t *testing.T) {
	records := []mutation.Record{
		{Op: mutation.OpAttr, XPath: "/html[1]/body[1]/form[1]", Name: "class", Value: "a"},
		{Op: mutation.OpAttr, XPath: "/html[1]/body[1]/form[1]", Name: "style", Value: "x"},
	}
	if out := compress(records); len(out) != 2 {
		t.Fatalf("compressed to %d records, want 2", len(out))
	}
}

func TestDebouncerFlushesOnFullBuffer(t *testing.T) {
	var flushed [][]mutation.Record
	d := newDebouncer(debounceConfig{Window: time.Hour, MaxBuffer: 3}, func(recs []mutation.Record) {
		flushed = append(flushed, recs)
	})

	for i := 0; i < 3; i++ {
		d.add(mutation.Record{Op: mutation.OpRemove, XPath: "/html[1]"})
	}
	if len(flushed) != 1 {
		t.Fatalf("flushes = %d, want 1", len(flushed))
	}
	if len(flushed[0]) != 3 {
		t.Fatalf("flushed records = %d, want 3", len(flushed[0]))
	}

	// Buffer reset after flush.
	d.add(mutation.Record{Op: mutation.OpRemove, XPath: "/html[1]"})
	if len(flushed) != 1 {
		t.Fatal("single record flushed before window expired")
	}
	d.flush()
	if len(flushed) != 2 || len(flushed[1]) != 1 {
		t.Fatalf("manual flush got %d batches", len(flushed))
	}
}
