package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-dms/pkg/session"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNotifierDelivers(t *testing.T) {
	got := make(chan session.Alert, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var a session.Alert
		json.NewDecoder(r.Body).Decode(&a)
		got <- a
	}))
	defer srv.Close()

	n := New(Config{URL: srv.URL})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	n.HandleAlert(ctx, session.Alert{Stream: "cab-1", Kind: session.AlertDrowsy, Active: true})
	// cleared alerts are filtered by default
	n.HandleAlert(ctx, session.Alert{Stream: "cab-1", Kind: session.AlertDrowsy, Active: false})

	select {
	case a := <-got:
		if a.Stream != "cab-1" || a.Kind != session.AlertDrowsy || !a.Active {
			t.Errorf("delivered %+v", a)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("alert not delivered")
	}

	waitFor(t, func() bool { return n.Stats().Delivered == 1 })
	select {
	case a := <-got:
		t.Errorf("unexpected delivery %+v", a)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNotifierRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	n := New(Config{URL: srv.URL, Retries: 1})
	n.backoff = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	n.HandleAlert(ctx, session.Alert{Stream: "s", Kind: session.AlertDistracted, Active: true})

	waitFor(t, func() bool { return n.Stats().Delivered == 1 })
	if c := calls.Load(); c != 2 {
		t.Errorf("calls = %d, want 2", c)
	}
}

func TestNotifierGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := New(Config{URL: srv.URL, Retries: -1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	n.HandleAlert(ctx, session.Alert{Stream: "s", Kind: session.AlertDrowsy, Active: true})
	waitFor(t, func() bool { return n.Stats().Failed == 1 })
}

func TestNotifierQueueFull(t *testing.T) {
	n := New(Config{URL: "http://127.0.0.1:0", Queue: 1})

	a := session.Alert{Stream: "s", Kind: session.AlertDrowsy, Active: true}
	if err := n.HandleAlert(context.Background(), a); err != nil {
		t.Fatalf("first HandleAlert = %v", err)
	}
	if err := n.HandleAlert(context.Background(), a); !errors.Is(err, ErrQueueFull) {
		t.Errorf("second HandleAlert = %v, want ErrQueueFull", err)
	}
	if d := n.Stats().Dropped; d != 1 {
		t.Errorf("Dropped = %d, want 1", d)
	}
}
