package batch

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type flushRecorder struct {
	mu      sync.Mutex
	flushes [][]Item
}

func (r *flushRecorder) sink(_ string, items []Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes = append(r.flushes, items)
}

func (r *flushRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flushes)
}

func (r *flushRecorder) flush(i int) []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes[i]
}

func waitForFlushes(t *testing.T, r *flushRecorder, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for r.count() < n {
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for %d flushes, have %d", n, r.count())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestBurstFlushesOnceInOrder(t *testing.T) {
	rec := &flushRecorder{}
	b := New()
	b.Configure(KindFiles, 30*time.Millisecond, rec.sink)

	for i := 0; i < 5; i++ {
		b.Add("sess", KindFiles, Item{Title: fmt.Sprintf("file-%d", i)})
	}

	waitForFlushes(t, rec, 1)
	time.Sleep(80 * time.Millisecond)
	if rec.count() != 1 {
		t.Fatalf("expected exactly one flush, got %d", rec.count())
	}
	items := rec.flush(0)
	if len(items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(items))
	}
	for i, item := range items {
		if item.Title != fmt.Sprintf("file-%d", i) {
			t.Fatalf("order broken at %d: %q", i, item.Title)
		}
	}
	if b.PendingCount("sess", KindFiles) != 0 {
		t.Fatalf("expected cleared state after flush")
	}
}

func TestLateItemStartsSecondFlush(t *testing.T) {
	rec := &flushRecorder{}
	b := New()
	b.Configure(KindTools, 25*time.Millisecond, rec.sink)

	b.Add("sess", KindTools, Item{Title: "first"})
	waitForFlushes(t, rec, 1)

	b.Add("sess", KindTools, Item{Title: "second"})
	waitForFlushes(t, rec, 2)

	if len(rec.flush(0)) != 1 || rec.flush(0)[0].Title != "first" {
		t.Fatalf("unexpected first flush %+v", rec.flush(0))
	}
	if len(rec.flush(1)) != 1 || rec.flush(1)[0].Title != "second" {
		t.Fatalf("unexpected second flush %+v", rec.flush(1))
	}
}

func TestSteadyStreamPostponesFlush(t *testing.T) {
	rec := &flushRecorder{}
	b := New()
	b.Configure(KindFiles, 60*time.Millisecond, rec.sink)

	// Keep adding faster than the delay; no flush should happen meanwhile.
	for i := 0; i < 6; i++ {
		b.Add("sess", KindFiles, Item{Title: fmt.Sprintf("f%d", i)})
		time.Sleep(15 * time.Millisecond)
	}
	if rec.count() != 0 {
		t.Fatalf("flush fired during steady stream")
	}
	waitForFlushes(t, rec, 1)
	if len(rec.flush(0)) != 6 {
		t.Fatalf("expected all 6 items in the single flush, got %d", len(rec.flush(0)))
	}
}

func TestCancelDiscardsWithoutEmitting(t *testing.T) {
	rec := &flushRecorder{}
	b := New()
	b.Configure(KindFiles, 20*time.Millisecond, rec.sink)

	b.Add("sess", KindFiles, Item{Title: "doomed"})
	b.Cancel("sess", KindFiles)

	time.Sleep(80 * time.Millisecond)
	if rec.count() != 0 {
		t.Fatalf("cancelled batch flushed anyway")
	}
	if b.PendingCount("sess", KindFiles) != 0 {
		t.Fatalf("expected no pending items after cancel")
	}
}

func TestCancelAllCoversBothKinds(t *testing.T) {
	rec := &flushRecorder{}
	b := New()
	b.Configure(KindFiles, 20*time.Millisecond, rec.sink)
	b.Configure(KindTools, 20*time.Millisecond, rec.sink)

	b.Add("sess", KindFiles, Item{Title: "f"})
	b.Add("sess", KindTools, Item{Title: "t"})
	b.CancelAll("sess")

	time.Sleep(80 * time.Millisecond)
	if rec.count() != 0 {
		t.Fatalf("expected no flushes after CancelAll, got %d", rec.count())
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	rec := &flushRecorder{}
	b := New()
	b.Configure(KindFiles, 20*time.Millisecond, rec.sink)

	b.Add("a", KindFiles, Item{Title: "a1"})
	b.Add("b", KindFiles, Item{Title: "b1"})
	b.Cancel("a", KindFiles)

	waitForFlushes(t, rec, 1)
	if rec.flush(0)[0].Title != "b1" {
		t.Fatalf("wrong session flushed: %+v", rec.flush(0))
	}
}

func TestTruncate(t *testing.T) {
	items := []Item{{Title: "1"}, {Title: "2"}, {Title: "3"}}
	shown, more := Truncate(items, 2)
	if len(shown) != 2 || more != 1 {
		t.Fatalf("got %d shown, %d more", len(shown), more)
	}
	shown, more = Truncate(items, 5)
	if len(shown) != 3 || more != 0 {
		t.Fatalf("no-op truncate broken")
	}
}
