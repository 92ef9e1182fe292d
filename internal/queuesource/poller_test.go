package queuesource

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sam-e/fabric/internal/domain"
)

type fakeBackend struct {
	mu      sync.Mutex
	queues  map[string][]Message
	deleted []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{queues: make(map[string][]Message)}
}

func (f *fakeBackend) EnsureQueue(ctx context.Context, name string) (string, error) {
	return name, nil
}

func (f *fakeBackend) Enqueue(ctx context.Context, address, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[address] = append(f.queues[address], Message{ID: body, Body: body})
	return nil
}

func (f *fakeBackend) Receive(ctx context.Context, address string, maxMessages int) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.queues[address]
	if len(q) == 0 {
		return nil, nil
	}
	n := maxMessages
	if n > len(q) {
		n = len(q)
	}
	out := q[:n]
	f.queues[address] = q[n:]
	return out, nil
}

func (f *fakeBackend) Delete(ctx context.Context, address string, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, msg.ID)
	return nil
}

func TestPollOnceDispatchesOnSuccessWithoutDeleting(t *testing.T) {
	var received int
	invoker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received++
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"statusCode": 200})
	}))
	defer invoker.Close()

	backend := newFakeBackend()
	backend.Enqueue(context.Background(), "Orders", "order-1")

	graph := &domain.ResourceGraph{
		Queues: []*domain.Queue{{Name: "Orders"}},
		Functions: []*domain.Function{{
			Name: "Processor",
			Events: []domain.EventBinding{
				{Name: "Consume", Kind: domain.BindingQueueConsumer, Queue: &domain.QueueConsumerBinding{QueueName: "Orders"}},
			},
		}},
	}

	s := New(graph, backend, invoker.URL)
	s.pollOnce(context.Background(), graph.Queues[0], "Orders", s.consumersOf("Orders"))

	if received != 1 {
		t.Fatalf("expected invoker to be called once, got %d", received)
	}
	if len(backend.deleted) != 0 {
		t.Fatalf("expected the source to never delete a delivered message, got %v", backend.deleted)
	}
}

func TestPollOnceNeverDeletesOnFailure(t *testing.T) {
	invoker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer invoker.Close()

	backend := newFakeBackend()
	backend.Enqueue(context.Background(), "Orders", "order-1")

	graph := &domain.ResourceGraph{
		Queues: []*domain.Queue{{Name: "Orders"}},
		Functions: []*domain.Function{{
			Name: "Processor",
			Events: []domain.EventBinding{
				{Name: "Consume", Kind: domain.BindingQueueConsumer, Queue: &domain.QueueConsumerBinding{QueueName: "Orders"}},
			},
		}},
	}

	s := New(graph, backend, invoker.URL)
	s.pollOnce(context.Background(), graph.Queues[0], "Orders", s.consumersOf("Orders"))

	if len(backend.deleted) != 0 {
		t.Fatalf("expected no deletion on failed dispatch, got %v", backend.deleted)
	}
}

func TestConsumersOfFiltersByQueueName(t *testing.T) {
	graph := &domain.ResourceGraph{
		Functions: []*domain.Function{
			{Name: "A", Events: []domain.EventBinding{{Kind: domain.BindingQueueConsumer, Queue: &domain.QueueConsumerBinding{QueueName: "Orders"}}}},
			{Name: "B", Events: []domain.EventBinding{{Kind: domain.BindingQueueConsumer, Queue: &domain.QueueConsumerBinding{QueueName: "Other"}}}},
		},
	}
	s := New(graph, newFakeBackend(), "http://unused")
	consumers := s.consumersOf("Orders")
	if len(consumers) != 1 || consumers[0].Name != "A" {
		t.Fatalf("unexpected consumers: %+v", consumers)
	}
}
