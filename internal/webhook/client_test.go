package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestSendAddsSigningHeaders(t *testing.T) {
	var (
		gotSig  string
		gotTS   string
		gotEvt  string
		gotBody []byte
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotTS = r.Header.Get(HeaderTimestamp)
		gotEvt = r.Header.Get(HeaderEvent)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(Config{
		SigningSecret:  "test-secret",
		Timeout:        2 * time.Second,
		MaxAttempts:    1,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
	}, zaptest.NewLogger(t))

	err := client.Send(context.Background(), srv.URL, EventBatchCompleted, Event{BatchID: "b_1", Status: "succeeded"})
	if err != nil {
		t.Fatalf("send returned error: %v", err)
	}

	if gotTS == "" {
		t.Fatal("expected timestamp header")
	}
	if gotEvt != EventBatchCompleted {
		t.Fatalf("expected event header %s, got %q", EventBatchCompleted, gotEvt)
	}
	if err := Verify("test-secret", gotTS, gotSig, gotBody, time.Minute, time.Now()); err != nil {
		t.Fatalf("expected signature to verify: %v", err)
	}
	if err := Verify("other-secret", gotTS, gotSig, gotBody, 0, time.Now()); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for wrong secret, got %v", err)
	}
}

func TestSendRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}, zaptest.NewLogger(t))

	if err := client.Send(context.Background(), srv.URL, EventBatchFailed, Event{BatchID: "b_2"}); err != nil {
		t.Fatalf("send returned error: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestSendReportsLastFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{MaxAttempts: 2, InitialBackoff: time.Millisecond}, nil)
	if err := client.Send(context.Background(), srv.URL, EventBatchFailed, Event{}); err == nil {
		t.Fatal("expected delivery error")
	}
}

func TestVerifyRejectsStaleTimestamps(t *testing.T) {
	body := []byte(`{"batch_id":"b_3"}`)
	sig := Sign("s", "1000", body)

	if err := Verify("s", "1000", sig, body, time.Minute, time.Unix(1030, 0)); err != nil {
		t.Fatalf("expected fresh delivery to verify: %v", err)
	}
	if err := Verify("s", "1000", sig, body, time.Minute, time.Unix(5000, 0)); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected stale delivery to fail, got %v", err)
	}
}
