package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func makeRows(n int) []SourceRow {
	rows := make([]SourceRow, n)
	for i := range rows {
		rows[i] = SourceRow{"Name": fmt.Sprintf("Item %03d", i), "Units": "EA"}
	}
	return rows
}

func TestRunBatchedPartitionReconstruction(t *testing.T) {
	for _, tc := range []struct{ n, batch int }{
		{120, 50},
		{1, 10},
		{10, 10},
		{11, 10},
		{99, 100},
		{250, 100},
	} {
		rows := makeRows(tc.n)
		calls := 0
		got, err := runBatched(rows, tc.batch, "labels", nil, func(start int, chunk []SourceRow) ([]string, error) {
			calls++
			out := make([]string, len(chunk))
			for i, row := range chunk {
				out[i] = row["Name"]
			}
			return out, nil
		})
		if err != nil {
			t.Fatalf("n=%d batch=%d unexpected error: %v", tc.n, tc.batch, err)
		}
		if len(got) != tc.n {
			t.Fatalf("n=%d batch=%d expected %d results, got %d", tc.n, tc.batch, tc.n, len(got))
		}
		for i, v := range got {
			if v != rows[i]["Name"] {
				t.Fatalf("n=%d batch=%d element %d out of order: got %q", tc.n, tc.batch, i, v)
			}
		}
		wantCalls := (tc.n + tc.batch - 1) / tc.batch
		if calls != wantCalls {
			t.Fatalf("n=%d batch=%d expected %d calls, got %d", tc.n, tc.batch, wantCalls, calls)
		}
	}
}

func TestRunBatchedChunkSizes(t *testing.T) {
	rows := makeRows(120)
	var sizes []int
	_, err := runBatched(rows, 50, "labels", nil, func(start int, chunk []SourceRow) ([]string, error) {
		sizes = append(sizes, len(chunk))
		return make([]string, len(chunk)), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sizes) != 3 || sizes[0] != 50 || sizes[1] != 50 || sizes[2] != 20 {
		t.Fatalf("expected chunk sizes [50 50 20], got %v", sizes)
	}
}

func TestRunBatchedSingleChunkPassthrough(t *testing.T) {
	rows := makeRows(5)
	calls := 0
	got, err := runBatched(rows, 50, "labels", nil, func(start int, chunk []SourceRow) ([]string, error) {
		calls++
		if start != 0 || len(chunk) != 5 {
			t.Fatalf("expected whole set in one call, start=%d len=%d", start, len(chunk))
		}
		return []string{"a", "b", "c", "d", "e"}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}
	if len(got) != 5 || got[4] != "e" {
		t.Fatalf("unexpected result: %v", got)
	}
}

func TestRunBatchedAbortsOnChunkError(t *testing.T) {
	rows := makeRows(120)
	cause := errors.New("model unavailable")
	calls := 0
	got, err := runBatched(rows, 50, "cost types", nil, func(start int, chunk []SourceRow) ([]string, error) {
		calls++
		if calls == 2 {
			return nil, cause
		}
		return make([]string, len(chunk)), nil
	})
	if got != nil {
		t.Fatalf("expected no partial results, got %d", len(got))
	}
	var abort *BatchAbortError
	if !errors.As(err, &abort) {
		t.Fatalf("expected BatchAbortError, got %T: %v", err, err)
	}
	if abort.Chunk != 2 || abort.Total != 3 {
		t.Fatalf("expected failure at chunk 2/3, got %d/%d", abort.Chunk, abort.Total)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected processing to stop at failing chunk, calls=%d", calls)
	}
}

func TestRunBatchedRejectsMiscountedChunk(t *testing.T) {
	rows := makeRows(60)
	_, err := runBatched(rows, 50, "labels", nil, func(start int, chunk []SourceRow) ([]string, error) {
		return make([]string, len(chunk)-1), nil
	})
	var abort *BatchAbortError
	if !errors.As(err, &abort) {
		t.Fatalf("expected BatchAbortError for miscounted chunk, got %v", err)
	}
	if !strings.Contains(err.Error(), "results for") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestRunBatchedProgress(t *testing.T) {
	rows := makeRows(120)
	type call struct{ chunk, total, first, end int }
	var seen []call
	progress := func(stage string, chunk, total, first, end int) {
		if stage != "takeoff types" {
			t.Fatalf("unexpected stage %q", stage)
		}
		seen = append(seen, call{chunk, total, first, end})
	}
	_, err := runBatched(rows, 50, "takeoff types", progress, func(start int, chunk []SourceRow) ([]string, error) {
		return make([]string, len(chunk)), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []call{{1, 3, 0, 50}, {2, 3, 50, 100}, {3, 3, 100, 120}}
	if len(seen) != len(want) {
		t.Fatalf("expected %d progress calls, got %d", len(want), len(seen))
	}
	for i, w := range want {
		if seen[i] != w {
			t.Fatalf("progress call %d = %+v, want %+v", i, seen[i], w)
		}
	}
}

func TestEstimateBatchSizeDefaults(t *testing.T) {
	if got := estimateBatchSize(nil, 200000); got != defaultBatchSize {
		t.Fatalf("expected default for empty data, got %d", got)
	}
}

func TestEstimateBatchSizeDegenerateWindow(t *testing.T) {
	rows := makeRows(40)
	if got := estimateBatchSize(rows, 1000); got != minBatchSize {
		t.Fatalf("expected clamp to %d when reserve exceeds window, got %d", minBatchSize, got)
	}
}

func TestEstimateBatchSizeClampsHigh(t *testing.T) {
	rows := makeRows(40)
	if got := estimateBatchSize(rows, 1048576); got != maxBatchSize {
		t.Fatalf("expected clamp to %d for a huge window, got %d", maxBatchSize, got)
	}
}

func TestEstimateBatchSizeScalesWithRowSize(t *testing.T) {
	small := makeRows(sizerSampleRows)
	big := make([]SourceRow, sizerSampleRows)
	filler := strings.Repeat("very long item description ", 40)
	for i := range big {
		big[i] = SourceRow{"Name": filler, "Units": "EA", "Description": filler}
	}
	smallSize := estimateBatchSize(small, 65536)
	bigSize := estimateBatchSize(big, 65536)
	if bigSize > smallSize {
		t.Fatalf("expected larger rows to shrink the batch, small=%d big=%d", smallSize, bigSize)
	}
}
