package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jacklau/dispatch/internal/model"
	"github.com/jacklau/dispatch/internal/retry"
)

var fastBackoff = retry.Backoff{MaxAttempts: 2, BaseDelay: time.Millisecond}

func sampleBatch() []model.Notification {
	return []model.Notification{
		{
			ID: "n1", Type: model.NotifyEscalation, Urgency: model.UrgencyHigh,
			TargetUserIDs: []string{"alice", "root"}, IssueID: "12",
			Message: `CRITICAL issue 12 "Checkout down" reached urgent after 9.0 business hours`,
		},
		{
			ID: "n2", Type: model.NotifyWorkloadImbalance, Urgency: model.UrgencyMedium,
			TargetUserIDs: []string{"bob"}, Message: "bob has 14 open issues",
		},
	}
}

func TestBuildSlackPayload_Structure(t *testing.T) {
	payload := BuildSlackPayload(sampleBatch())

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}

	if parsed["text"] != "2 dispatch notifications" {
		t.Errorf("unexpected fallback text: %v", parsed["text"])
	}
	blocks, ok := parsed["blocks"].([]interface{})
	if !ok {
		t.Fatal("expected blocks array")
	}
	// header + (section, context) per notification
	if len(blocks) != 5 {
		t.Fatalf("expected 5 blocks, got %d", len(blocks))
	}

	header := blocks[0].(map[string]interface{})
	if header["type"] != "header" {
		t.Errorf("expected header block, got %q", header["type"])
	}

	section := blocks[1].(map[string]interface{})
	text := section["text"].(map[string]interface{})["text"].(string)
	if !strings.HasPrefix(text, ":red_circle: *Escalation*") {
		t.Errorf("unexpected section text: %q", text)
	}

	ctxBlock := blocks[2].(map[string]interface{})
	elems := ctxBlock["elements"].([]interface{})
	ctxText := elems[0].(map[string]interface{})["text"].(string)
	if !strings.Contains(ctxText, "@alice, @root") {
		t.Errorf("context should list targets, got %q", ctxText)
	}
}

func TestBuildSlackPayload_CapsBlocks(t *testing.T) {
	var batch []model.Notification
	for i := 0; i < 40; i++ {
		batch = append(batch, model.Notification{ID: fmt.Sprint(i), Type: model.NotifyEscalation, Message: "m"})
	}
	payload := BuildSlackPayload(batch)
	if len(payload.Blocks) > slackMaxBlocks {
		t.Fatalf("expected at most %d blocks, got %d", slackMaxBlocks, len(payload.Blocks))
	}
	last := payload.Blocks[len(payload.Blocks)-1]
	if last.Type != "context" || !strings.Contains(last.Elements[0].Text, "more not shown") {
		t.Errorf("expected overflow note, got %+v", last)
	}
}

func TestSlackNotifier_Notify_VerifiesRequest(t *testing.T) {
	var gotBody []byte
	var gotContentType, gotMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotMethod = r.Method
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := NewSlackNotifier(server.URL).Notify(context.Background(), sampleBatch()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("expected POST method, got %q", gotMethod)
	}
	if gotContentType != "application/json" {
		t.Errorf("expected Content-Type 'application/json', got %q", gotContentType)
	}
	var payload slackPayload
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("request body is not valid slack payload JSON: %v", err)
	}
}

func TestSlackNotifier_EmptyBatchSkipped(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	if err := NewSlackNotifier(server.URL).Notify(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no requests, got %d", calls.Load())
	}
}

func TestSlackNotifier_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewSlackNotifier(server.URL, WithBackoff(fastBackoff))
	if err := n.Notify(context.Background(), sampleBatch()); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestSlackNotifier_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("no_service"))
	}))
	defer server.Close()

	n := NewSlackNotifier(server.URL, WithBackoff(retry.Backoff{MaxAttempts: 3, BaseDelay: time.Millisecond}))
	err := n.Notify(context.Background(), sampleBatch())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "no_service") {
		t.Errorf("error should carry status and body, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestSlackNotifier_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	n := NewSlackNotifier(server.URL, WithBackoff(fastBackoff))
	if err := n.Notify(context.Background(), sampleBatch()); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestSlackNotifier_Notify_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewSlackNotifier(server.URL).Notify(ctx, sampleBatch()); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestSlackNotifier_Notify_TimesOut(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timeout test in short mode")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewSlackNotifier(server.URL,
		WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}),
		WithBackoff(retry.Backoff{MaxAttempts: 1}),
	)
	err := n.Notify(context.Background(), sampleBatch())
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "Client.Timeout") && !strings.Contains(err.Error(), "deadline exceeded") {
		t.Errorf("expected timeout-related error, got: %v", err)
	}
}

func TestSlackNotifier_DefaultClientTimeout(t *testing.T) {
	n := NewSlackNotifier("http://example.com")
	if n.client.Timeout != 10*time.Second {
		t.Errorf("expected client timeout of 10s, got %v", n.client.Timeout)
	}
}
