// Package invocation defines the unit of work the fabric schedules between
// event sources and function runtimes: the Invocation record and the
// gateway/queue/bus envelope shapes carried inside it.
package invocation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the invocation's position in the state machine described in
// spec §4.2. No transition is reversible.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusProcessed  Status = "Processed"
)

// RequestKind tags which variant of the request union is populated.
type RequestKind string

const (
	RequestKindAPI   RequestKind = "api"
	RequestKindQueue RequestKind = "queue"
	RequestKindBus   RequestKind = "bus"
)

// Invocation is the single unit of work tracked by the Store: a request
// payload, its status, its response slot, and the correlation id a waiter
// polls on.
type Invocation struct {
	RequestID  string      `json:"request_id"`
	DateTime   time.Time   `json:"date_time"`
	Status     Status      `json:"status"`
	LambdaName string      `json:"lambda_name"`
	Kind       RequestKind `json:"kind"`

	APIRequest *GatewayRequest `json:"api_request,omitempty"`
	QueueEvent *QueueEvent     `json:"queue_event,omitempty"`
	BusEvent   *BusEvent       `json:"bus_event,omitempty"`

	Response        GatewayResponse   `json:"response"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
}

// NewAPIInvocation constructs a Pending invocation carrying a gateway
// request, addressed to lambdaName.
func NewAPIInvocation(lambdaName string, req *GatewayRequest) *Invocation {
	return &Invocation{
		RequestID:  uuid.NewString(),
		DateTime:   time.Now(),
		Status:     StatusPending,
		LambdaName: lambdaName,
		Kind:       RequestKindAPI,
		APIRequest: req,
	}
}

// NewQueueInvocation constructs a Pending invocation carrying a batch of
// queue messages, addressed to lambdaName.
func NewQueueInvocation(lambdaName string, ev *QueueEvent) *Invocation {
	return &Invocation{
		RequestID:  uuid.NewString(),
		DateTime:   time.Now(),
		Status:     StatusPending,
		LambdaName: lambdaName,
		Kind:       RequestKindQueue,
		QueueEvent: ev,
	}
}

// NewBusInvocation constructs a Pending invocation carrying a single
// event-bridge-shaped event, addressed to lambdaName.
func NewBusInvocation(lambdaName string, ev *BusEvent) *Invocation {
	return &Invocation{
		RequestID:  uuid.NewString(),
		DateTime:   time.Now(),
		Status:     StatusPending,
		LambdaName: lambdaName,
		Kind:       RequestKindBus,
		BusEvent:   ev,
	}
}

// NextPayload returns the JSON value the runtime API's /next endpoint hands
// to a polling function: the gateway- or queue-event payload as-is, per
// spec §4.3-A.
func (inv *Invocation) NextPayload() (json.RawMessage, error) {
	switch inv.Kind {
	case RequestKindAPI:
		return json.Marshal(inv.APIRequest)
	case RequestKindQueue:
		return json.Marshal(inv.QueueEvent)
	case RequestKindBus:
		return json.Marshal(inv.BusEvent)
	default:
		return nil, fmt.Errorf("invocation %s: unknown request kind %q", inv.RequestID, inv.Kind)
	}
}
