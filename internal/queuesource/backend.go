// Package queuesource is the C6 component: it turns declared SQS-style
// queues into real queues against a backing service, polls them for
// function consumers, and also serves as the transport the bus and S3
// sources use to enqueue their own fan-out messages.
//
// # Backends
//
// Backend abstracts over two concrete implementations: an SQS-compatible
// backend (internal/queuesource.SQSBackend, grounded in the original
// implementation's actual use of SQS, pointed at a local endpoint via
// AWS_ENDPOINT_URL_SQS/AWS_ENDPOINT_URL) and a Redis-list backend
// (internal/queuesource.RedisListBackend) for development setups with no
// SQS-compatible endpoint available. Both implement the same narrow
// interface so the poller, the bus source, and the S3 source never know
// which one is in play.
//
// # Deletion is the handler's job
//
// The poller never deletes a message itself, even after a successful
// dispatch: spec §4.5 makes deletion the function handler's own
// responsibility, via its own client against the backing queue, so the
// handler controls exactly when a message is considered durably processed.
// A message the poller delivered therefore stays on the queue until either
// the handler deletes it directly or the backend's own redelivery (SQS's
// visibility timeout) hands it out again. No attempt is made to deduplicate
// a redelivered message.
package queuesource

import "context"

// Message is one queue entry received from a Backend, backend-agnostic.
type Message struct {
	ID            string
	ReceiptHandle string
	Body          string
}

// Backend is the narrow queue transport every fabric component that
// touches a queue (this package's poller, the bus source, the S3 source)
// depends on.
type Backend interface {
	// EnsureQueue returns the backend-specific address for queueName,
	// creating the queue if the backend requires it to exist first.
	EnsureQueue(ctx context.Context, queueName string) (string, error)
	// Enqueue appends body as a new message on the queue at address.
	Enqueue(ctx context.Context, address, body string) error
	// Receive returns up to maxMessages waiting on the queue at address.
	// An empty, nil-error result means the queue was polled and found
	// empty, not a failure.
	Receive(ctx context.Context, address string, maxMessages int) ([]Message, error)
	// Delete removes a successfully processed message so it is not
	// redelivered.
	Delete(ctx context.Context, address string, msg Message) error
}
