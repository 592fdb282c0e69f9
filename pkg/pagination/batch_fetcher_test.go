package pagination

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func pageRows(page int) [][]string {
	return [][]string{
		{"p" + string(rune('0'+page)), "a"},
		{"p" + string(rune('0'+page)), "b"},
	}
}

func TestNewBatchFetcher_Defaults(t *testing.T) {
	bf := NewBatchFetcher(nil, Config{})
	if bf.config.MaxConcurrency != 2 {
		t.Errorf("MaxConcurrency = %d, want 2", bf.config.MaxConcurrency)
	}
}

func TestFetchRemainingPages_SinglePage(t *testing.T) {
	called := false
	bf := NewBatchFetcher(PageFetcherFunc(func(ctx context.Context, page int) ([][]string, error) {
		called = true
		return nil, nil
	}), DefaultConfig())

	first := pageRows(1)
	rows, err := bf.FetchRemainingPages(context.Background(), "USD", first, 1)
	if err != nil {
		t.Fatalf("FetchRemainingPages() error = %v", err)
	}
	if called {
		t.Error("FetchPage should not be called for a single page result")
	}
	if !reflect.DeepEqual(rows, first) {
		t.Errorf("rows = %v, want %v", rows, first)
	}
}

func TestFetchRemainingPages_OrderedDespiteArrival(t *testing.T) {
	// Later pages answer first.
	delays := map[int]time.Duration{2: 40 * time.Millisecond, 3: 20 * time.Millisecond, 4: 1 * time.Millisecond}

	var mu sync.Mutex
	requested := []int{}

	bf := NewBatchFetcher(PageFetcherFunc(func(ctx context.Context, page int) ([][]string, error) {
		mu.Lock()
		requested = append(requested, page)
		mu.Unlock()
		time.Sleep(delays[page])
		return pageRows(page), nil
	}), Config{MaxConcurrency: 3})

	rows, err := bf.FetchRemainingPages(context.Background(), "EUR", pageRows(1), 4)
	if err != nil {
		t.Fatalf("FetchRemainingPages() error = %v", err)
	}

	var want [][]string
	for p := 1; p <= 4; p++ {
		want = append(want, pageRows(p)...)
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
	if len(requested) != 3 {
		t.Errorf("requested pages = %v, want pages 2..4 only", requested)
	}
}

func TestFetchRemainingPages_FailureFailsClosed(t *testing.T) {
	boom := errors.New("boom")
	bf := NewBatchFetcher(PageFetcherFunc(func(ctx context.Context, page int) ([][]string, error) {
		if page == 3 {
			return nil, boom
		}
		return pageRows(page), nil
	}), DefaultConfig())

	rows, err := bf.FetchRemainingPages(context.Background(), "GBP", pageRows(1), 4)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if rows != nil {
		t.Errorf("rows = %v, want nil", rows)
	}
}

func TestFlatten(t *testing.T) {
	got := Flatten([][]int{{1, 2}, nil, {3}, {}})
	if !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Errorf("Flatten() = %v, want [1 2 3]", got)
	}
}
