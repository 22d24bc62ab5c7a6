package cloudevent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	t.Parallel()
	before := time.Now().UTC()
	e1 := New("jobtracker.session.updated", "jobtracker/cli", "J1", map[string]any{"state": "POLLING"})
	e2 := New("jobtracker.session.updated", "jobtracker/cli", "J1", nil)

	if e1.SpecVersion != "1.0" {
		t.Errorf("SpecVersion = %q", e1.SpecVersion)
	}
	if e1.ID == "" || e1.ID == e2.ID {
		t.Errorf("expected unique non-empty IDs, got %q and %q", e1.ID, e2.ID)
	}
	if e1.Time.Before(before) {
		t.Errorf("Time %v before %v", e1.Time, before)
	}
	if e1.DataContentType != "application/json" {
		t.Errorf("DataContentType = %q", e1.DataContentType)
	}
}

func TestHTTPError_Error(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err      *HTTPError
		expected string
	}{
		{&HTTPError{StatusCode: 400}, "HTTP 400"},
		{&HTTPError{StatusCode: 503}, "HTTP 503"},
		{&HTTPError{StatusCode: 422, Body: "bad event"}, "HTTP 422: bad event"},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.expected {
			t.Errorf("Error() = %q, want %q", got, tt.expected)
		}
	}
}

func TestIsClientError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"400 Bad Request", &HTTPError{StatusCode: 400}, true},
		{"499 boundary", &HTTPError{StatusCode: 499}, true},
		{"500 Internal Server Error", &HTTPError{StatusCode: 500}, false},
		{"399 not a client error", &HTTPError{StatusCode: 399}, false},
		{"wrapped 404", fmt.Errorf("deliver: %w", &HTTPError{StatusCode: 404}), true},
		{"non-HTTP error", context.DeadlineExceeded, false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsClientError(tt.err); got != tt.expected {
				t.Errorf("IsClientError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestSignAndVerify(t *testing.T) {
	t.Parallel()
	payload := []byte(`{"test":"data"}`)

	signature := sign(payload, "secret-key")
	if len(signature) != len("sha256=")+64 || signature[:7] != "sha256=" {
		t.Fatalf("unexpected signature format %q", signature)
	}
	if signature != sign(payload, "secret-key") {
		t.Error("signature should be deterministic")
	}
	if !Verify(payload, signature, "secret-key") {
		t.Error("Verify rejected a valid signature")
	}
	if Verify(payload, signature, "other-key") {
		t.Error("Verify accepted a signature made with another key")
	}
	if Verify([]byte(`{"test":"tampered"}`), signature, "secret-key") {
		t.Error("Verify accepted a tampered body")
	}
}

func TestSender_Send(t *testing.T) {
	t.Parallel()
	type received struct {
		header http.Header
		body   []byte
	}
	got := make(chan received, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{header: r.Header.Clone(), body: body}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	event := New("jobtracker.session.terminal", "jobtracker/cli", "J1", map[string]any{"status": "COMPLETED"})
	sender := NewSender(5*time.Second, "jobtracker-test")
	if err := sender.Send(context.Background(), server.URL, event, "secret-key"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	r := <-got
	checks := map[string]string{
		"Content-Type":   "application/cloudevents+json",
		"Ce-Specversion": "1.0",
		"Ce-Type":        "jobtracker.session.terminal",
		"Ce-Source":      "jobtracker/cli",
		"Ce-Subject":     "J1",
		"Ce-Id":          event.ID,
		"User-Agent":     "jobtracker-test",
	}
	for k, want := range checks {
		if v := r.header.Get(k); v != want {
			t.Errorf("header %s = %q, want %q", k, v, want)
		}
	}
	if !Verify(r.body, r.header.Get(SignatureHeader), "secret-key") {
		t.Error("signature header does not verify against body")
	}

	var decoded CloudEvent
	if err := json.Unmarshal(r.body, &decoded); err != nil {
		t.Fatalf("body is not a CloudEvent: %v", err)
	}
	if decoded.Data["status"] != "COMPLETED" {
		t.Errorf("data = %v", decoded.Data)
	}
}

func TestSender_SendUnsigned(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(SignatureHeader) != "" {
			t.Error("unexpected signature header")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := NewSender(time.Second, "").Send(context.Background(), server.URL, New("t", "s", "", nil), "")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
}

func TestSender_SendErrorStatus(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown event type", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	err := NewSender(time.Second, "").Send(context.Background(), server.URL, New("t", "s", "", nil), "")
	if !IsClientError(err) {
		t.Fatalf("expected client error, got %v", err)
	}
	if err.Error() != "HTTP 422: unknown event type" {
		t.Errorf("Error() = %q", err.Error())
	}
}
