package s3source

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sam-e/fabric/internal/domain"
	"github.com/sam-e/fabric/internal/queuesource"
)

type fakeBackend struct {
	mu       sync.Mutex
	enqueued map[string][]string
}

func newFakeBackend() *fakeBackend { return &fakeBackend{enqueued: make(map[string][]string)} }

func (f *fakeBackend) EnsureQueue(ctx context.Context, name string) (string, error) { return name, nil }

func (f *fakeBackend) Enqueue(ctx context.Context, address, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
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
		Buckets: []*domain.Bucket{{
			Name: "Uploads",
			Triggers: domain.Triggers{
				Queues:  []string{"Thumbnails"},
				Lambdas: []string{"DirectProcessor"},
			},
		}},
		Queues: []*domain.Queue{{Name: "Thumbnails"}},
	}
}

func TestNotifyDispatchesToQueueTriggers(t *testing.T) {
	backend := newFakeBackend()
	s := New(testGraph(), backend)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body := `{"Records":[{"eventName":"ObjectCreated:Put","s3":{"object":{"key":"a.png","size":10}}}]}`
	resp, err := http.Post(srv.URL+"/buckets/Uploads/notify", "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if len(backend.enqueued["Thumbnails"]) != 1 {
		t.Fatalf("expected 1 enqueued event, got %d", len(backend.enqueued["Thumbnails"]))
	}
}

func TestNotifyUnknownBucket(t *testing.T) {
	s := New(testGraph(), newFakeBackend())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/buckets/DoesNotExist/notify", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
