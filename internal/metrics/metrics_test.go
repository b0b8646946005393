package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type event struct {
	name   string
	value  float64
	labels Labels
}

type recorder struct {
	mu       sync.Mutex
	counters []event
	hists    []event
	flushed  int
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = append(r.counters, event{name, delta, labels})
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hists = append(r.hists, event{name, value, labels})
}

func (r *recorder) Flush() error {
	r.flushed++
	return nil
}

// Not parallel: the backend is process-global.
func TestHelpersReachBackend(t *testing.T) {
	r := &recorder{}
	SetBackend(r)
	t.Cleanup(func() { SetBackend(nil) })

	RecordStep("discover", nil, 2*time.Second)
	RecordRecords("orders", 3)
	RecordRecords("orders", 0)
	RecordFile("orders", errors.New("boom"))
	RecordStoreRequest("get", errors.New("boom"), time.Millisecond)

	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if r.flushed != 1 {
		t.Fatalf("flushed=%d", r.flushed)
	}

	want := []struct{ name, key, val string }{
		{StepTotal, "status", "ok"},
		{RecordsTotal, "table", "orders"},
		{FilesTotal, "status", "error"},
		{StoreRequestsTotal, "status", "error"},
		{StoreErrorsTotal, "op", "get"},
	}
	if len(r.counters) != len(want) {
		t.Fatalf("counters=%+v", r.counters)
	}
	for i, w := range want {
		c := r.counters[i]
		if c.name != w.name || c.labels[w.key] != w.val {
			t.Fatalf("counter[%d]=%+v want %s %s=%s", i, c, w.name, w.key, w.val)
		}
	}
	if len(r.hists) != 2 || r.hists[0].value != 2 {
		t.Fatalf("hists=%+v", r.hists)
	}
}

func TestNopBackendFlush(t *testing.T) {
	SetBackend(nil)
	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	IncCounter("anything", 1, nil)
}
