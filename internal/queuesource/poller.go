package queuesource

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sam-e/fabric/internal/circuitbreaker"
	"github.com/sam-e/fabric/internal/domain"
	"github.com/sam-e/fabric/internal/invocation"
	"github.com/sam-e/fabric/internal/logging"
	"github.com/sam-e/fabric/internal/metrics"
)

// receiveBatchSize mirrors the original queue source's batch size.
const receiveBatchSize = 10

// settleDelay is how long a poller waits after confirming/creating its
// queue before issuing its first receive, giving a backend a moment to
// finish provisioning.
const settleDelay = 1 * time.Second

// pollInterval is the steady-state receive cadence.
const pollInterval = 500 * time.Millisecond

// Source runs one polling goroutine per declared queue, dispatching
// received batches to every function consuming that queue via the
// invoker's /invoke entrypoint.
type Source struct {
	Graph      *domain.ResourceGraph
	Backend    Backend
	InvokerURL string
	Client     *http.Client
	Breakers   *circuitbreaker.Registry
}

// New returns a Source; call RunAll to start a poller for every queue in
// graph.Queues.
func New(graph *domain.ResourceGraph, backend Backend, invokerURL string) *Source {
	return &Source{
		Graph:      graph,
		Backend:    backend,
		InvokerURL: invokerURL,
		Client:     http.DefaultClient,
		Breakers:   circuitbreaker.NewRegistry(),
	}
}

// RunAll starts a polling goroutine for every declared queue and blocks
// until stop is closed.
func (s *Source) RunAll(ctx context.Context, stop <-chan struct{}) {
	for _, q := range s.Graph.Queues {
		go s.run(ctx, q, stop)
	}
	<-stop
}

func (s *Source) run(ctx context.Context, q *domain.Queue, stop <-chan struct{}) {
	var address string
	for {
		var err error
		address, err = s.Backend.EnsureQueue(ctx, q.Name)
		if err == nil {
			break
		}
		logging.Op().Warn("ensure queue failed, will retry", "queue", q.Name, "error", err)
		select {
		case <-time.After(settleDelay):
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
	q.URL = address

	consumers := s.consumersOf(q.Name)
	if len(consumers) == 0 {
		logging.Op().Warn("queue has no function consumers, polling anyway", "queue", q.Name)
	}

	select {
	case <-time.After(settleDelay):
	case <-stop:
		return
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx, q, address, consumers)
		}
	}
}

func (s *Source) consumersOf(queueName string) []*domain.Function {
	var out []*domain.Function
	for _, fn := range s.Graph.Functions {
		for _, ev := range fn.Events {
			if ev.Kind == domain.BindingQueueConsumer && ev.Queue != nil && ev.Queue.QueueName == queueName {
				out = append(out, fn)
			}
		}
	}
	return out
}

func (s *Source) pollOnce(ctx context.Context, q *domain.Queue, address string, consumers []*domain.Function) {
	breaker := s.Breakers.Get(q.Name, circuitbreaker.Config{
		ErrorPct: 50, WindowDuration: 30 * time.Second, OpenDuration: 10 * time.Second, HalfOpenProbes: 1,
	})
	if breaker != nil && !breaker.Allow() {
		return
	}

	msgs, err := s.Backend.Receive(ctx, address, receiveBatchSize)
	if err != nil {
		if breaker != nil {
			breaker.RecordFailure()
		}
		metrics.QueueSourcePollsTotal.WithLabelValues(q.Name, "error").Inc()
		logging.Op().Warn("queue receive failed", "queue", q.Name, "error", err)
		return
	}
	if breaker != nil {
		breaker.RecordSuccess()
	}
	if len(msgs) == 0 {
		metrics.QueueSourcePollsTotal.WithLabelValues(q.Name, "empty").Inc()
		return
	}
	metrics.QueueSourcePollsTotal.WithLabelValues(q.Name, "received").Inc()

	event := toQueueEvent(q.Name, msgs)
	for _, fn := range consumers {
		s.dispatch(ctx, fn.Name, event)
	}
}

func toQueueEvent(queueName string, msgs []Message) *invocation.QueueEvent {
	ev := &invocation.QueueEvent{Records: make([]invocation.QueueMessage, 0, len(msgs))}
	for _, m := range msgs {
		ev.Records = append(ev.Records, invocation.QueueMessage{
			MessageID:     m.ID,
			ReceiptHandle: m.ReceiptHandle,
			Body:          m.Body,
			EventSource:   "aws:sqs",
			EventSourceARN: "arn:aws:sqs:us-east-1:123456789012:" + queueName,
			AWSRegion:     "us-east-1",
		})
	}
	return ev
}

type invokeRequest struct {
	LambdaName string                 `json:"lambda_name"`
	Kind       string                 `json:"kind"`
	QueueEvent *invocation.QueueEvent `json:"queue_event"`
}

func (s *Source) dispatch(ctx context.Context, lambdaName string, event *invocation.QueueEvent) bool {
	body, err := json.Marshal(invokeRequest{LambdaName: lambdaName, Kind: "queue", QueueEvent: event})
	if err != nil {
		logging.Op().Error("marshal queue invoke request failed", "function", lambdaName, "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.InvokerURL+"/invoke", bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		logging.Op().Warn("queue dispatch failed", "function", lambdaName, "error", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}
