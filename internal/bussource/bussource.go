// Package bussource is the C7 component: an HTTP listener implementing
// just enough of EventBridge's PutEvents wire contract to accept entries,
// buffer them per bus, and match/dispatch them to queue targets on a
// background cadence.
//
// # Wire contract
//
// PutEvents is dispatched the same way the AWS SDK calls it: a POST with an
// X-Amz-Target header of the form "<Prefix>.PutEvents" (exactly two
// dot-separated parts — anything else is a protocol error) and a JSON body
// of {"Entries": [...]}. The response shape mirrors the real API:
// {"FailedEntryCount": N, "Entries": [{"EventId": "..."} | {"ErrorCode":
// "...", "ErrorMessage": "..."}]}, one element per input entry in order.
// Accepting an entry only requires its target bus to exist; matching
// against rules happens later, off the request path.
//
// # Buffering and matching
//
// Each bus owns an append-only buffer of accepted entries. A background
// matcher, started by RunMatcher, sweeps every bus's buffer on a 500ms
// cadence: each entry is checked against every rule on its bus via
// domain.EventRule.Matches, and every match's queue targets receive the
// event via the same queuesource.Backend the queue source itself polls —
// so a queue-bound function sees a bus-originated message exactly like a
// directly-enqueued one. An entry is removed from the buffer once every
// matched target has been dispatched; a failed dispatch (the backend is
// unreachable) leaves the entry in the buffer for the next tick instead of
// dropping it, so a transient backend outage is retried rather than lost.
package bussource

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sam-e/fabric/internal/domain"
	"github.com/sam-e/fabric/internal/fabric"
	"github.com/sam-e/fabric/internal/invocation"
	"github.com/sam-e/fabric/internal/logging"
	"github.com/sam-e/fabric/internal/metrics"
	"github.com/sam-e/fabric/internal/queuesource"
)

// matchInterval is the background matcher's sweep cadence.
const matchInterval = 500 * time.Millisecond

// bufferedEntry is one accepted-but-not-yet-fully-dispatched PutEvents
// entry, parked on its bus's buffer until the matcher processes it.
type bufferedEntry struct {
	event *invocation.BusEvent
}

// Source serves PutEvents and, via RunMatcher, dispatches buffered entries
// to queue targets.
type Source struct {
	Graph   *domain.ResourceGraph
	Backend queuesource.Backend

	mu      sync.Mutex
	buffers map[string][]bufferedEntry // keyed by bus name
}

// New returns a Source bound to graph and backend.
func New(graph *domain.ResourceGraph, backend queuesource.Backend) *Source {
	return &Source{Graph: graph, Backend: backend, buffers: make(map[string][]bufferedEntry)}
}

// Handler returns the HTTP handler the bus source's listener serves.
func (s *Source) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handlePutEvents)
	return mux
}

type putEventsEntry struct {
	Source       string   `json:"Source"`
	DetailType   string   `json:"DetailType"`
	Detail       string   `json:"Detail"`
	EventBusName string   `json:"EventBusName"`
	Resources    []string `json:"Resources"`
}

type putEventsRequest struct {
	Entries []putEventsEntry `json:"Entries"`
}

type putEventsResultEntry struct {
	EventId      string `json:"EventId,omitempty"`
	ErrorCode    string `json:"ErrorCode,omitempty"`
	ErrorMessage string `json:"ErrorMessage,omitempty"`
}

type putEventsResponse struct {
	FailedEntryCount int                    `json:"FailedEntryCount"`
	Entries          []putEventsResultEntry `json:"Entries"`
}

func (s *Source) handlePutEvents(w http.ResponseWriter, r *http.Request) {
	target := r.Header.Get("X-Amz-Target")
	parts := strings.Split(target, ".")
	if len(parts) != 2 || parts[1] != "PutEvents" {
		writeError(w, fabric.ProtocolError("unsupported or missing X-Amz-Target: "+target))
		return
	}

	var req putEventsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fabric.ProtocolError("invalid PutEvents body: "+err.Error()))
		return
	}

	resp := putEventsResponse{Entries: make([]putEventsResultEntry, 0, len(req.Entries))}
	for _, entry := range req.Entries {
		result, ok := s.acceptEntry(entry)
		resp.Entries = append(resp.Entries, result)
		if !ok {
			resp.FailedEntryCount++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// acceptEntry validates an entry and appends it to its bus's buffer.
// Matching and dispatch happen later, in RunMatcher.
func (s *Source) acceptEntry(entry putEventsEntry) (putEventsResultEntry, bool) {
	busName := entry.EventBusName
	if busName == "" {
		return putEventsResultEntry{ErrorCode: "ValidationException", ErrorMessage: "EventBusName is required"}, false
	}
	if s.Graph.BusByName(busName) == nil {
		return putEventsResultEntry{ErrorCode: "ResourceNotFoundException", ErrorMessage: "no such event bus: " + busName}, false
	}

	eventID := uuid.NewString()
	busEvent := &invocation.BusEvent{
		ID:         eventID,
		DetailType: entry.DetailType,
		Source:     entry.Source,
		Time:       time.Now().UTC().Format(time.RFC3339),
		Region:     "us-east-1",
		Resources:  entry.Resources,
		Detail:     entry.Detail,
	}

	s.mu.Lock()
	s.buffers[busName] = append(s.buffers[busName], bufferedEntry{event: busEvent})
	s.mu.Unlock()

	return putEventsResultEntry{EventId: eventID}, true
}

// RunMatcher sweeps every bus's buffer on matchInterval until stop is
// closed. It is the background task spec.md §4.6 describes as owning all
// rule matching and dispatch, kept off the PutEvents request path.
func (s *Source) RunMatcher(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(matchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.matchOnce(ctx)
		}
	}
}

// matchOnce drains every bus's buffer, dispatches each entry against the
// current rule set, and re-buffers only the entries that failed to
// dispatch (so they are retried on the next tick).
func (s *Source) matchOnce(ctx context.Context) {
	s.mu.Lock()
	busNames := make([]string, 0, len(s.buffers))
	for name := range s.buffers {
		busNames = append(busNames, name)
	}
	s.mu.Unlock()

	for _, busName := range busNames {
		s.mu.Lock()
		pending := s.buffers[busName]
		s.buffers[busName] = nil
		s.mu.Unlock()

		var retry []bufferedEntry
		for _, be := range pending {
			if s.dispatchEntry(ctx, busName, be.event) {
				continue
			}
			retry = append(retry, be)
		}

		if len(retry) == 0 {
			continue
		}
		s.mu.Lock()
		s.buffers[busName] = append(retry, s.buffers[busName]...)
		s.mu.Unlock()
	}
}

// dispatchEntry matches event against every rule on busName and dispatches
// it to each match's targets. It returns false — meaning "keep this entry
// buffered for retry" — only when a target dispatch failed transiently;
// an unmatched entry or a permanently unroutable target is considered
// handled and is not retried.
func (s *Source) dispatchEntry(ctx context.Context, busName string, event *invocation.BusEvent) bool {
	matched := 0
	ok := true
	for _, rule := range s.Graph.Rules {
		if rule.BusName != busName || !rule.Matches(event.Source, event.DetailType) {
			continue
		}
		matched++
		if !s.dispatchToTargets(ctx, rule, event) {
			ok = false
		}
	}
	metrics.BusEventsTotal.WithLabelValues(busName, matchLabel(matched)).Inc()
	return ok
}

// dispatchToTargets fans event out to every target of rule. It returns
// false if any queue target's Enqueue failed and should be retried; an
// unknown queue or a function target is logged and treated as handled.
func (s *Source) dispatchToTargets(ctx context.Context, rule *domain.EventRule, event *invocation.BusEvent) bool {
	body, err := json.Marshal(event)
	if err != nil {
		logging.Op().Error("marshal bus event failed, dropping", "rule", rule.Name, "error", err)
		return true
	}

	ok := true
	for _, target := range rule.Targets {
		switch target.Kind {
		case domain.TargetQueue:
			q := s.Graph.QueueByName(target.QueueName)
			if q == nil {
				logging.Op().Warn("rule targets unknown queue, skipping", "rule", rule.Name, "queue", target.QueueName)
				continue
			}
			address, err := s.Backend.EnsureQueue(ctx, q.Name)
			if err != nil {
				logging.Op().Warn("ensure queue for bus target failed, will retry", "queue", q.Name, "error", err)
				ok = false
				continue
			}
			if err := s.Backend.Enqueue(ctx, address, string(body)); err != nil {
				logging.Op().Warn("enqueue bus event failed, will retry", "queue", q.Name, "error", err)
				ok = false
			}
		case domain.TargetFunction:
			// Lambda-as-bus-target is declared but not dispatched, matching
			// the S3 source's lambda-target warn-and-skip behaviour.
			logging.Op().Warn("rule targets a function directly, which bussource does not dispatch to; skipping", "rule", rule.Name, "function", target.Function)
		}
	}
	return ok
}

func matchLabel(matched int) string {
	if matched == 0 {
		return "unmatched"
	}
	return "matched"
}

func writeError(w http.ResponseWriter, err error) {
	status := fabric.HTTPStatus(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"__type":  string(fabric.KindOf(err)),
		"message": err.Error(),
	})
}
