package invoker

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sam-e/fabric/internal/fabric"
	"github.com/sam-e/fabric/internal/invocation"
	"github.com/sam-e/fabric/internal/logging"
)

// nextLongPollTimeout bounds how long a /next call blocks waiting for a
// Pending invocation before responding 404, mirroring the real Lambda
// runtime API's long-poll behaviour without a per-request goroutine: the
// handler just re-checks the store on waitPollInterval until this elapses.
const nextLongPollTimeout = 30 * time.Second

// handleNext serves GET /{fn}/2018-06-01/runtime/invocation/next. It
// long-polls the store for the oldest Pending invocation addressed to fn,
// returning it (with the runtime API's standard headers) once found, or 404
// if none arrives within nextLongPollTimeout.
func (i *Invoker) handleNext(w http.ResponseWriter, r *http.Request) {
	lambdaName := r.PathValue("fn")

	deadline := time.Now().Add(nextLongPollTimeout)
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		if inv := i.Next(lambdaName); inv != nil {
			writeNextResponse(w, inv)
			return
		}
		if time.Now().After(deadline) {
			writeError(w, fabric.NotFound("no pending invocation for "+lambdaName))
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func writeNextResponse(w http.ResponseWriter, inv *invocation.Invocation) {
	payload, err := inv.NextPayload()
	if err != nil {
		writeError(w, fabric.ProtocolError(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Lambda-Runtime-Aws-Request-Id", inv.RequestID)
	w.Header().Set("Lambda-Runtime-Deadline-Ms", strconv.FormatInt(time.Now().Add(nextLongPollTimeout).UnixMilli(), 10))
	w.Header().Set("Lambda-Runtime-Invoked-Function-Arn", "arn:aws:lambda:us-east-1:123456789012:function:"+inv.LambdaName)
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

// handleResponse serves POST .../invocation/{request_id}/response. For an
// API-kind invocation the body must decode as invocation.GatewayResponse;
// for queue/bus kinds, which have no HTTP response semantics of their own,
// the raw body is recorded as-is and the status is always treated as
// success, matching how the original source implementations ignore the
// function's return value for those triggers.
//
// The real HTTP headers this POST request arrived with are reconciled into
// the response's headers before it is recorded, taking priority over any
// header of the same name embedded in the body's own GatewayResponse.Headers
// — mirroring the original response handler, which always collects the raw
// request headers onto the invocation record rather than trusting only the
// body the function chose to send.
func (i *Invoker) handleResponse(w http.ResponseWriter, r *http.Request) {
	lambdaName := r.PathValue("fn")
	requestID := r.PathValue("request_id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, fabric.ProtocolError("reading response body: "+err.Error()))
		return
	}

	inv := i.Store.FindByRequestID(lambdaName, requestID)
	if inv == nil {
		writeError(w, fabric.NotFound("no pending invocation "+requestID+" for "+lambdaName))
		return
	}

	var resp invocation.GatewayResponse
	if inv.Kind == invocation.RequestKindAPI {
		if err := json.Unmarshal(body, &resp); err != nil {
			writeError(w, fabric.ProtocolError("invalid gateway response: "+err.Error()))
			return
		}
		if resp.StatusCode == 0 {
			resp.StatusCode = http.StatusOK
		}
	} else {
		resp = invocation.GatewayResponse{StatusCode: http.StatusOK, Body: string(body)}
	}

	resp.Headers = mergeTransportHeaders(r.Header, resp.Headers)

	if err := i.Respond(lambdaName, requestID, resp, resp.Headers); err != nil {
		writeError(w, err)
		return
	}
	logging.Default().Log(&logging.InvocationLog{
		RequestID: requestID, Function: lambdaName, Kind: string(inv.Kind),
		Success: resp.StatusCode < 400, StatusCode: resp.StatusCode,
	})
	w.WriteHeader(http.StatusAccepted)
}

// mergeTransportHeaders overlays every real HTTP header a response arrived
// with onto the headers embedded in its body; for a name present in both,
// transport wins. transport is the source of truth because it reflects what the function's
// HTTP client actually sent; embedded-only headers (declared in the body but
// not reflected as a real transport header) are preserved as-is.
func mergeTransportHeaders(transport http.Header, embedded map[string]string) map[string]string {
	merged := make(map[string]string, len(embedded)+len(transport))
	for k, v := range embedded {
		merged[k] = v
	}
	for k, values := range transport {
		if len(values) == 0 {
			continue
		}
		merged[k] = values[0]
	}
	return merged
}

// handleInvocationError serves POST .../invocation/{request_id}/error: a
// function reporting that it failed to process this one invocation.
func (i *Invoker) handleInvocationError(w http.ResponseWriter, r *http.Request) {
	lambdaName := r.PathValue("fn")
	requestID := r.PathValue("request_id")

	var body struct {
		ErrorMessage string `json:"errorMessage"`
		ErrorType    string `json:"errorType"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if err := i.RespondError(lambdaName, requestID, body.ErrorMessage); err != nil {
		writeError(w, err)
		return
	}
	logging.Default().Log(&logging.InvocationLog{
		RequestID: requestID, Function: lambdaName, Kind: "error",
		Success: false, Error: body.ErrorMessage, StatusCode: 502,
	})
	w.WriteHeader(http.StatusAccepted)
}

// handleInitError serves POST /{fn}/2018-06-01/runtime/init/error: a
// function reporting that it failed to initialize at all, before polling
// for any invocation. There is no pending record to complete — this is
// purely diagnostic, logged so an operator can see why a function never
// answered /next.
func (i *Invoker) handleInitError(w http.ResponseWriter, r *http.Request) {
	lambdaName := r.PathValue("fn")

	var body struct {
		ErrorMessage string `json:"errorMessage"`
		ErrorType    string `json:"errorType"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	logging.Op().Error("function init error", "function", lambdaName, "error_type", body.ErrorType, "error_message", body.ErrorMessage)
	w.WriteHeader(http.StatusAccepted)
}

// invokeRequest is the body /invoke accepts from an event source: exactly
// one of APIRequest/QueueEvent/BusEvent populated, selected by Kind.
type invokeRequest struct {
	LambdaName string                     `json:"lambda_name"`
	Kind       invocation.RequestKind     `json:"kind"`
	APIRequest *invocation.GatewayRequest `json:"api_request,omitempty"`
	QueueEvent *invocation.QueueEvent     `json:"queue_event,omitempty"`
	BusEvent   *invocation.BusEvent       `json:"bus_event,omitempty"`
}

// handleInvoke serves POST /invoke: the single entrypoint the API and queue
// sources use to submit work and wait for its outcome (the bus and S3
// sources only enqueue onto queues).
func (i *Invoker) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fabric.ProtocolError("invalid invoke request: "+err.Error()))
		return
	}

	var inv *invocation.Invocation
	switch req.Kind {
	case invocation.RequestKindAPI:
		if req.APIRequest == nil {
			writeError(w, fabric.ProtocolError("kind=api requires api_request"))
			return
		}
		inv = invocation.NewAPIInvocation(req.LambdaName, req.APIRequest)
	case invocation.RequestKindQueue:
		if req.QueueEvent == nil {
			writeError(w, fabric.ProtocolError("kind=queue requires queue_event"))
			return
		}
		inv = invocation.NewQueueInvocation(req.LambdaName, req.QueueEvent)
	case invocation.RequestKindBus:
		if req.BusEvent == nil {
			writeError(w, fabric.ProtocolError("kind=bus requires bus_event"))
			return
		}
		inv = invocation.NewBusInvocation(req.LambdaName, req.BusEvent)
	default:
		writeError(w, fabric.ProtocolError("unknown kind "+string(req.Kind)))
		return
	}

	resp, err := i.Invoke(r.Context(), inv)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, err error) {
	status := fabric.HTTPStatus(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"errorMessage": err.Error(),
		"errorType":    string(fabric.KindOf(err)),
	})
}
