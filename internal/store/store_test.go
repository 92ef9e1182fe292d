package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sam-e/fabric/internal/invocation"
)

func TestTakeNextPendingIsFIFOAndSingleDelivery(t *testing.T) {
	s := New()
	first := invocation.NewAPIInvocation("Greeter", &invocation.GatewayRequest{})
	second := invocation.NewAPIInvocation("Greeter", &invocation.GatewayRequest{})
	s.Put(first)
	s.Put(second)

	got := s.TakeNextPending("Greeter")
	if got == nil || got.RequestID != first.RequestID {
		t.Fatalf("expected first invocation, got %+v", got)
	}
	if got.Status != invocation.StatusProcessing {
		t.Fatalf("status = %s, want Processing", got.Status)
	}

	got2 := s.TakeNextPending("Greeter")
	if got2 == nil || got2.RequestID != second.RequestID {
		t.Fatalf("expected second invocation, got %+v", got2)
	}

	if s.TakeNextPending("Greeter") != nil {
		t.Fatal("expected no more pending invocations")
	}
}

func TestTakeNextPendingConcurrentCallersNeverCollide(t *testing.T) {
	s := New()
	const n = 50
	for i := 0; i < n; i++ {
		s.Put(invocation.NewAPIInvocation("Greeter", &invocation.GatewayRequest{}))
	}

	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv := s.TakeNextPending("Greeter")
			if inv == nil {
				return
			}
			mu.Lock()
			if seen[inv.RequestID] {
				t.Errorf("request %s handed out twice", inv.RequestID)
			}
			seen[inv.RequestID] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("expected %d distinct invocations taken, got %d", n, len(seen))
	}
}

func TestCompleteWithResponseIsIdempotent(t *testing.T) {
	s := New()
	inv := invocation.NewAPIInvocation("Greeter", &invocation.GatewayRequest{})
	s.Put(inv)
	s.TakeNextPending("Greeter")

	resp := invocation.GatewayResponse{StatusCode: 200, Body: "ok"}
	if !s.CompleteWithResponse("Greeter", inv.RequestID, resp, nil) {
		t.Fatal("expected first completion to succeed")
	}
	if s.CompleteWithResponse("Greeter", inv.RequestID, invocation.GatewayResponse{StatusCode: 500}, nil) {
		t.Fatal("expected second completion to be a no-op")
	}

	got := s.FindByRequestID("Greeter", inv.RequestID)
	if got.Response.StatusCode != 200 {
		t.Fatalf("response was overwritten by the idempotent no-op call: %+v", got.Response)
	}
}

func TestCompleteWithErrorUnknownRequestIsNoOp(t *testing.T) {
	s := New()
	if s.CompleteWithError("Greeter", "does-not-exist", 502, "boom", nil) {
		t.Fatal("expected completion of an unknown request id to fail")
	}
}

func TestEvictProcessedOlderThan(t *testing.T) {
	s := New()
	inv := invocation.NewAPIInvocation("Greeter", &invocation.GatewayRequest{})
	inv.DateTime = time.Now().Add(-time.Hour)
	s.Put(inv)
	s.TakeNextPending("Greeter")
	s.CompleteWithResponse("Greeter", inv.RequestID, invocation.GatewayResponse{StatusCode: 200}, nil)

	stillPending := invocation.NewAPIInvocation("Greeter", &invocation.GatewayRequest{})
	s.Put(stillPending)

	evicted := s.EvictProcessedOlderThan(time.Now().Add(-time.Minute))
	if evicted != 1 {
		t.Fatalf("evicted = %d, want 1", evicted)
	}
	if s.FindByRequestID("Greeter", inv.RequestID) != nil {
		t.Fatal("expected the old processed invocation to be gone")
	}
	if s.FindByRequestID("Greeter", stillPending.RequestID) == nil {
		t.Fatal("expected the pending invocation to survive eviction")
	}
}

type fakeMirror struct {
	mu     sync.Mutex
	depths map[string][3]int
}

func (m *fakeMirror) SetQueueDepth(ctx context.Context, lambdaName string, pending, processing, processed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.depths == nil {
		m.depths = make(map[string][3]int)
	}
	m.depths[lambdaName] = [3]int{pending, processing, processed}
	return nil
}

func TestSetMirrorReceivesDepthUpdates(t *testing.T) {
	s := New()
	mirror := &fakeMirror{}
	s.SetMirror(mirror)

	inv := invocation.NewAPIInvocation("Greeter", &invocation.GatewayRequest{})
	s.Put(inv)

	mirror.mu.Lock()
	depth := mirror.depths["Greeter"]
	mirror.mu.Unlock()
	if depth[0] != 1 {
		t.Fatalf("expected mirror to observe 1 pending invocation, got %+v", depth)
	}
}
