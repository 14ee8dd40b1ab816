package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"warfront.gg/internal/protocol"
)

func TestNotifyPostsJSON(t *testing.T) {
	var mu sync.Mutex
	var got []protocol.OwnershipNotice
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var n protocol.OwnershipNotice
		if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
		rw.WriteHeader(200)
	}))
	defer srv.Close()

	n := New(srv.URL, 8, nil)
	n.NotifyOwnership(protocol.OwnershipNotice{
		SchemaVersion: protocol.Version,
		UnitID:        "CP1",
		OldHolder:     "",
		NewHolder:     "red",
		Tick:          42,
	})
	n.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("posts = %d", len(got))
	}
	if got[0].UnitID != "CP1" || got[0].NewHolder != "red" || got[0].Tick != 42 {
		t.Fatalf("notice = %+v", got[0])
	}
	if s := n.Stats(); s.SentTotal != 1 || s.FailTotal != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestNotifyCountsRejections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := New(srv.URL, 8, nil)
	n.NotifyOwnership(protocol.OwnershipNotice{UnitID: "CP1"})
	n.Close()

	if s := n.Stats(); s.FailTotal != 1 || s.SentTotal != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestNotifyDropsWhenSaturated(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()

	n := New(srv.URL, 1, nil)
	// First notice occupies the worker, second fills the queue, the rest
	// must drop without blocking.
	for i := 0; i < 10; i++ {
		n.NotifyOwnership(protocol.OwnershipNotice{UnitID: "CP1", Tick: uint64(i)})
	}
	if s := n.Stats(); s.DroppedTotal == 0 {
		t.Fatalf("expected drops, stats = %+v", s)
	}
	close(block)
	n.Close()
}
