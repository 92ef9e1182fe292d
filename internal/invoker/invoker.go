// Package invoker is the C4 component: the pull-based runtime API a
// function container polls (/next, /response, /error, /init/error) plus the
// single /invoke entrypoint every event source posts work to.
//
// # Invocation pipeline
//
// A source builds a gateway/queue/bus envelope, then calls Invoker.Invoke,
// which creates a Pending invocation.Invocation in the store and blocks
// until it reaches Processed or the configured invoke timeout elapses. The
// function's own container, running independently, discovers the Pending
// record by polling GET .../invocation/next, does its work, and reports the
// outcome via POST .../response or .../error — flipping the record to
// Processed and unblocking Invoke.
//
// # Concurrency
//
// Invoke does not use a condition variable or channel per request; it polls
// the store on a fixed interval (see waitPollInterval), matching the
// runtime API's own /next polling cadence described in the fabric's
// operating contract. This trades a small amount of latency for a pipeline
// with no per-invocation goroutine bookkeeping to leak.
//
// # Failure behaviour
//
// A function that never calls /response or /error strands its invocation in
// Processing until Invoke's wait times out; Invoke returns a
// fabric.Timeout in that case. A /error call always completes the
// invocation (see store.CompleteWithError) so a function's own crash is
// still observable by its caller rather than hanging it indefinitely.
package invoker

import (
	"context"
	"time"

	"github.com/sam-e/fabric/internal/circuitbreaker"
	"github.com/sam-e/fabric/internal/domain"
	"github.com/sam-e/fabric/internal/fabric"
	"github.com/sam-e/fabric/internal/invocation"
	"github.com/sam-e/fabric/internal/metrics"
	"github.com/sam-e/fabric/internal/observability"
	"github.com/sam-e/fabric/internal/store"
)

// waitPollInterval is how often Invoke re-checks the store for completion.
// 100ms mirrors the runtime API's own /next polling cadence.
const waitPollInterval = 100 * time.Millisecond

// Invoker owns the store and resource graph and implements the pipeline
// described in the package doc.
type Invoker struct {
	Graph    *domain.ResourceGraph
	Store    *store.Store
	Breakers *circuitbreaker.Registry
	Timeout  time.Duration
}

// New returns an Invoker bound to graph and st, waiting up to timeout for
// each /invoke call to complete.
func New(graph *domain.ResourceGraph, st *store.Store, timeout time.Duration) *Invoker {
	return &Invoker{
		Graph:    graph,
		Store:    st,
		Breakers: circuitbreaker.NewRegistry(),
		Timeout:  timeout,
	}
}

// Invoke creates inv in the store and blocks until it is Processed or ctx's
// deadline (capped at i.Timeout) elapses. It returns the invocation's final
// Response once complete.
func (i *Invoker) Invoke(ctx context.Context, inv *invocation.Invocation) (invocation.GatewayResponse, error) {
	if i.Graph.FunctionByName(inv.LambdaName) == nil {
		return invocation.GatewayResponse{}, fabric.NotFound("no such function: " + inv.LambdaName)
	}

	ctx, cancel := context.WithTimeout(ctx, i.Timeout)
	defer cancel()

	start := time.Now()
	i.Store.Put(inv)
	metrics.InvocationsTotal.WithLabelValues(inv.LambdaName, string(inv.Kind)).Inc()

	ctx, span := observability.StartSpan(ctx, "invoker.invoke",
		observability.AttrFunctionName.String(inv.LambdaName),
		observability.AttrRequestKind.String(string(inv.Kind)),
		observability.AttrRequestID.String(inv.RequestID),
	)
	defer span.End()

	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		if current := i.Store.FindByRequestID(inv.LambdaName, inv.RequestID); current != nil && current.Status == invocation.StatusProcessed {
			outcome := "success"
			if current.Response.StatusCode >= 400 {
				outcome = "error"
			}
			metrics.InvocationDurationSeconds.WithLabelValues(inv.LambdaName, outcome).Observe(time.Since(start).Seconds())
			observability.SetSpanOK(observability.SpanFromContext(ctx))
			return current.Response, nil
		}

		select {
		case <-ctx.Done():
			err := fabric.Timeout("invocation " + inv.RequestID + " timed out waiting for a response")
			observability.SetSpanError(observability.SpanFromContext(ctx), err)
			return invocation.GatewayResponse{}, err
		case <-ticker.C:
		}
	}
}

// Next returns the oldest Pending invocation for lambdaName, flipping it to
// Processing, or nil if none is waiting.
func (i *Invoker) Next(lambdaName string) *invocation.Invocation {
	inv := i.Store.TakeNextPending(lambdaName)
	if inv != nil {
		metrics.NextPollsTotal.WithLabelValues(lambdaName, "hit").Inc()
	} else {
		metrics.NextPollsTotal.WithLabelValues(lambdaName, "miss").Inc()
	}
	return inv
}

// Respond commits a function's successful response.
func (i *Invoker) Respond(lambdaName, requestID string, resp invocation.GatewayResponse, headers map[string]string) error {
	if !i.Store.CompleteWithResponse(lambdaName, requestID, resp, headers) {
		return fabric.NotFound("no pending invocation " + requestID + " for " + lambdaName)
	}
	return nil
}

// RespondError commits a function's reported failure as a synthetic 502
// gateway response so Invoke's waiter always unblocks (spec §7).
func (i *Invoker) RespondError(lambdaName, requestID, errorMessage string) error {
	body := `{"errorMessage":"` + errorMessage + `"}`
	if !i.Store.CompleteWithError(lambdaName, requestID, 502, body, nil) {
		return fabric.NotFound("no pending invocation " + requestID + " for " + lambdaName)
	}
	return nil
}
