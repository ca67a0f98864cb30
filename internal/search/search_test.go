package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type recorded struct {
	method, path, user string
	doc                Doc
}

func newRecorder(t *testing.T, status int) (*httptest.Server, func() []recorded) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var d Doc
		_ = json.NewDecoder(r.Body).Decode(&d)
		user, _, _ := r.BasicAuth()
		mu.Lock()
		reqs = append(reqs, recorded{method: r.Method, path: r.URL.EscapedPath(), user: user, doc: d})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), reqs...)
	}
}

func TestOpenSearch_IndexesIntoBothIndices(t *testing.T) {
	srv, got := newRecorder(t, http.StatusCreated)
	idx := NewOpenSearch(Options{URL: srv.URL, Username: "admin", Password: "pw", AllIndex: "all-events", TrainIndex: "train-events"})

	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	doc := Doc{EventID: "ev1#primary", Vector: []float64{1, 2}, UserID: "u1", Start: &start, End: &end}

	if err := idx.IndexEvent(context.Background(), doc); err != nil {
		t.Fatalf("IndexEvent: %v", err)
	}
	if err := idx.IndexTraining(context.Background(), Doc{EventID: "ev1#primary", Vector: []float64{1, 2}, UserID: "u1"}); err != nil {
		t.Fatalf("IndexTraining: %v", err)
	}

	reqs := got()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if reqs[0].method != http.MethodPut || reqs[0].path != "/all-events/_doc/ev1%23primary" {
		t.Errorf("event request = %s %s", reqs[0].method, reqs[0].path)
	}
	if reqs[0].user != "admin" || reqs[0].doc.Start == nil || !reqs[0].doc.Start.Equal(start) {
		t.Errorf("event doc = %+v (user %q)", reqs[0].doc, reqs[0].user)
	}
	if reqs[1].path != "/train-events/_doc/ev1%23primary" || reqs[1].doc.Start != nil {
		t.Errorf("training request = %s %+v", reqs[1].path, reqs[1].doc)
	}
}

func TestOpenSearch_ReportsFailures(t *testing.T) {
	srv, _ := newRecorder(t, http.StatusBadRequest)
	idx := NewOpenSearch(Options{URL: srv.URL, AllIndex: "all-events"})

	if err := idx.IndexEvent(context.Background(), Doc{EventID: "e", UserID: "u"}); err == nil {
		t.Fatal("expected error on 400")
	}
	if err := idx.IndexEvent(context.Background(), Doc{UserID: "u"}); err == nil {
		t.Fatal("expected error for missing event ID")
	}
}

func TestNoop(t *testing.T) {
	var idx Indexer = Noop{}
	if err := idx.IndexEvent(context.Background(), Doc{}); err != nil {
		t.Fatal(err)
	}
}
