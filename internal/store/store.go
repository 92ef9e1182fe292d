// Package store holds the Store: the only piece of shared mutable state in
// the invocation fabric. It maps a function's logical name to an ordered,
// in-memory FIFO of invocation records.
//
// # Lock discipline
//
// A single sync.RWMutex guards the outer map (lambda name -> queue). Each
// per-function queue is a plain slice; callers never hold the outer lock
// across a blocking operation. Selection (finding the oldest Pending record
// and flipping it to Processing) happens inside one write-lock critical
// section so two concurrent /next pollers for the same function can never
// observe the same Pending record — see Store.TakeNextPending.
//
// # Retention
//
// There is no persistent store; all state is process-local (spec's explicit
// Non-goal: no persistence of invocation history across restarts). Processed
// records are retained until the background sweep started by RunRetentionSweep
// evicts them, bounding memory growth under long-running development
// sessions.
package store

import (
	"sync"
	"time"

	"github.com/sam-e/fabric/internal/invocation"
	"github.com/sam-e/fabric/internal/metrics"
)

// Store is a process-wide, concurrency-safe mapping from lambda name to its
// FIFO of invocation records.
type Store struct {
	mu     sync.RWMutex
	queues map[string][]*invocation.Invocation
	mirror DepthMirror
}

// New returns an empty Store.
func New() *Store {
	return &Store{queues: make(map[string][]*invocation.Invocation)}
}

// Put appends a newly created invocation to its function's queue. Safe for
// concurrent use by any number of sources.
func (s *Store) Put(inv *invocation.Invocation) {
	s.mu.Lock()
	s.queues[inv.LambdaName] = append(s.queues[inv.LambdaName], inv)
	s.mu.Unlock()
	s.mirrorDepth(inv.LambdaName)
}

// TakeNextPending finds the oldest Pending record for lambdaName, flips it
// to Processing, and returns it. The find-flip is a single critical
// section: two concurrent callers against the same function queue always
// receive distinct records, and a record is never handed out twice.
func (s *Store) TakeNextPending(lambdaName string) *invocation.Invocation {
	s.mu.Lock()
	var taken *invocation.Invocation
	for _, inv := range s.queues[lambdaName] {
		if inv.Status == invocation.StatusPending {
			inv.Status = invocation.StatusProcessing
			taken = inv
			break
		}
	}
	s.mu.Unlock()

	if taken != nil {
		s.mirrorDepth(lambdaName)
	}
	return taken
}

// FindByRequestID returns the invocation with the given id in lambdaName's
// queue, regardless of status, or nil.
func (s *Store) FindByRequestID(lambdaName, requestID string) *invocation.Invocation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inv := range s.queues[lambdaName] {
		if inv.RequestID == requestID {
			return inv
		}
	}
	return nil
}

// CompleteWithResponse commits a function's successful response: sets the
// response body/headers and flips status to Processed. A Processing record
// that has already been completed is left untouched — completion is
// idempotent with respect to repeated delivery, not an error.
func (s *Store) CompleteWithResponse(lambdaName, requestID string, resp invocation.GatewayResponse, headers map[string]string) bool {
	s.mu.Lock()
	inv := s.find(lambdaName, requestID)
	ok := inv != nil && inv.Status != invocation.StatusProcessed
	if ok {
		inv.Response = resp
		inv.ResponseHeaders = headers
		inv.Status = invocation.StatusProcessed
	}
	s.mu.Unlock()

	if ok {
		s.mirrorDepth(lambdaName)
	}
	return ok
}

// CompleteWithError commits a function-reported error: the response slot is
// populated with a synthetic error body so the waiter is always released
// (spec §7, ProtocolError/FunctionError handling), status becomes Processed.
func (s *Store) CompleteWithError(lambdaName, requestID string, statusCode int, body string, headers map[string]string) bool {
	s.mu.Lock()
	inv := s.find(lambdaName, requestID)
	ok := inv != nil && inv.Status != invocation.StatusProcessed
	if ok {
		inv.Response = invocation.GatewayResponse{StatusCode: statusCode, Body: body}
		inv.ResponseHeaders = headers
		inv.Status = invocation.StatusProcessed
	}
	s.mu.Unlock()

	if ok {
		s.mirrorDepth(lambdaName)
	}
	return ok
}

// find locates an invocation by id within lambdaName's queue. Callers must
// hold s.mu.
func (s *Store) find(lambdaName, requestID string) *invocation.Invocation {
	for _, inv := range s.queues[lambdaName] {
		if inv.RequestID == requestID {
			return inv
		}
	}
	return nil
}

// QueueDepth returns the number of records currently held for lambdaName,
// split by status, for metrics and diagnostics.
func (s *Store) QueueDepth(lambdaName string) (pending, processing, processed int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inv := range s.queues[lambdaName] {
		switch inv.Status {
		case invocation.StatusPending:
			pending++
		case invocation.StatusProcessing:
			processing++
		case invocation.StatusProcessed:
			processed++
		}
	}
	return
}

// EvictProcessedOlderThan drops Processed records whose DateTime is older
// than cutoff, across every function queue. Called periodically by
// RunRetentionSweep.
func (s *Store) EvictProcessedOlderThan(cutoff time.Time) int {
	s.mu.Lock()
	evicted := 0
	var touched []string
	for name, q := range s.queues {
		kept := q[:0]
		changed := false
		for _, inv := range q {
			if inv.Status == invocation.StatusProcessed && inv.DateTime.Before(cutoff) {
				evicted++
				changed = true
				continue
			}
			kept = append(kept, inv)
		}
		s.queues[name] = kept
		if changed {
			touched = append(touched, name)
		}
	}
	s.mu.Unlock()

	for _, name := range touched {
		s.mirrorDepth(name)
	}
	return evicted
}

// RunRetentionSweep evicts Processed records older than retention on every
// tick until stop is closed, then samples each function's pending and
// processing depth into metrics.QueueDepth. It is the implementer-supplied upper bound spec §5
// requires ("a time-based sweep... is sufficient").
func (s *Store) RunRetentionSweep(stop <-chan struct{}, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.EvictProcessedOlderThan(time.Now().Add(-retention))
			s.mu.RLock()
			names := make([]string, 0, len(s.queues))
			for name := range s.queues {
				names = append(names, name)
			}
			s.mu.RUnlock()
			for _, name := range names {
				pending, processing, _ := s.QueueDepth(name)
				metrics.QueueDepth.WithLabelValues(name, "pending").Set(float64(pending))
				metrics.QueueDepth.WithLabelValues(name, "processing").Set(float64(processing))
			}
		}
	}
}
