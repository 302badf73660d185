package store

import (
	"errors"
	"reflect"
	"testing"
)

func TestChunkRange(t *testing.T) {
	var windows [][2]int
	err := ChunkRange(10, 4, func(start, end int) error {
		windows = append(windows, [2]int{start, end})
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	want := [][2]int{{0, 4}, {4, 8}, {8, 10}}
	if !reflect.DeepEqual(windows, want) {
		t.Fatalf("expected %v, got %v", want, windows)
	}
}

func TestChunkRange_ZeroTotal(t *testing.T) {
	called := false
	if err := ChunkRange(0, 4, func(start, end int) error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if called {
		t.Fatal("fn must not be called for an empty range")
	}
}

func TestChunkRange_NonPositiveChunkCoversAll(t *testing.T) {
	var windows [][2]int
	if err := ChunkRange(5, 0, func(start, end int) error {
		windows = append(windows, [2]int{start, end})
		return nil
	}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(windows) != 1 || windows[0] != [2]int{0, 5} {
		t.Fatalf("expected one full window, got %v", windows)
	}
}

func TestChunkRange_StopsOnError(t *testing.T) {
	wantErr := errors.New("boom")
	calls := 0
	err := ChunkRange(10, 2, func(start, end int) error {
		calls++
		if calls == 2 {
			return wantErr
		}
		return nil
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestDedupeStrings(t *testing.T) {
	got := DedupeStrings([]string{"a", "", "b", "a", "c", "b"})
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestDedupeStrings_Empty(t *testing.T) {
	if got := DedupeStrings(nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
