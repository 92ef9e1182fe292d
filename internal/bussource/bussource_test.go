package bussource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sam-e/fabric/internal/domain"
	"github.com/sam-e/fabric/internal/queuesource"
)

var errBackendDown = errors.New("backend down")

type fakeBackend struct {
	mu       sync.Mutex
	enqueued map[string][]string
	failNext int // Enqueue fails this many more times before succeeding
}

func newFakeBackend() *fakeBackend { return &fakeBackend{enqueued: make(map[string][]string)} }

func (f *fakeBackend) EnsureQueue(ctx context.Context, name string) (string, error) { return name, nil }

func (f *fakeBackend) Enqueue(ctx context.Context, address, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errBackendDown
	}
	f.enqueued[address] = append(f.enqueued[address], body)
	return nil
}

func (f *fakeBackend) Receive(ctx context.Context, address string, maxMessages int) ([]queuesource.Message, error) {
	return nil, nil
}

func (f *fakeBackend) Delete(ctx context.Context, address string, msg queuesource.Message) error {
	return nil
}

func testGraph() *domain.ResourceGraph {
	return &domain.ResourceGraph{
		Buses: []*domain.EventBus{{Name: "AppBus"}},
		Queues: []*domain.Queue{{Name: "Orders"}},
		Rules: []*domain.EventRule{{
			Name: "OrderPlaced", BusName: "AppBus",
			Source: []string{"app.orders"}, DetailType: []string{"OrderPlaced"},
			Targets: []domain.RuleTarget{{Kind: domain.TargetQueue, QueueName: "Orders"}},
		}},
	}
}

func TestPutEventsRequiresTarget(t *testing.T) {
	s := New(testGraph(), nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/", "application/json", bytes.NewReader([]byte(`{"Entries":[]}`)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestPutEventsBuffersAndMatcherDispatches(t *testing.T) {
	backend := newFakeBackend()
	s := New(testGraph(), backend)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{
		"Entries": []map[string]any{
			{"Source": "app.orders", "DetailType": "OrderPlaced", "Detail": `{"id":1}`, "EventBusName": "AppBus"},
			{"Source": "app.orders", "DetailType": "OrderCancelled", "Detail": `{}`, "EventBusName": "AppBus"},
		},
	})

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/", bytes.NewReader(body))
	req.Header.Set("X-Amz-Target", "AWSEventBridge.PutEvents")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out putEventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Entries) != 2 {
		t.Fatalf("expected 2 result entries, got %d", len(out.Entries))
	}
	if out.Entries[0].EventId == "" {
		t.Fatal("expected first entry to get an EventId")
	}

	// Accepting an entry only buffers it; nothing is dispatched until the
	// matcher runs.
	if len(backend.enqueued["Orders"]) != 0 {
		t.Fatalf("expected no dispatch before the matcher runs, got %d", len(backend.enqueued["Orders"]))
	}

	s.matchOnce(context.Background())

	if len(backend.enqueued["Orders"]) != 1 {
		t.Fatalf("expected exactly 1 enqueued event for the matching entry, got %d", len(backend.enqueued["Orders"]))
	}

	s.mu.Lock()
	remaining := len(s.buffers["AppBus"])
	s.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected both entries (matched and unmatched) drained from the buffer, got %d remaining", remaining)
	}
}

func TestMatcherRetriesFailedDispatchOnNextTick(t *testing.T) {
	backend := newFakeBackend()
	backend.failNext = 1
	s := New(testGraph(), backend)

	s.acceptEntry(putEventsEntry{Source: "app.orders", DetailType: "OrderPlaced", EventBusName: "AppBus"})

	s.matchOnce(context.Background())
	if len(backend.enqueued["Orders"]) != 0 {
		t.Fatal("expected the failed dispatch to leave nothing enqueued")
	}
	s.mu.Lock()
	remaining := len(s.buffers["AppBus"])
	s.mu.Unlock()
	if remaining != 1 {
		t.Fatalf("expected the failed entry to stay buffered for retry, got %d remaining", remaining)
	}

	s.matchOnce(context.Background())
	if len(backend.enqueued["Orders"]) != 1 {
		t.Fatal("expected the retried dispatch to succeed on the second tick")
	}
}
