// Package apisource is the C5 component: an HTTP listener that matches
// incoming requests against a function's declared API routes, synthesizes
// an API-Gateway-proxy-shaped request, and relays it through the invoker's
// /invoke entrypoint, returning whatever the function answers with.
//
// # Route table
//
// The route table is built once from domain.ResourceGraph.APIRoutes(),
// which already canonicalizes iteration order (sorted by function name).
// Each entry's regex was compiled during graph materialization
// (config.ParseTemplates / config.LoadGraphFromEnv); this package never
// recompiles a route per request.
//
// # Envelope synthesis
//
// The synthesized requestContext fabricates the same fixed identity fields
// the original client-side request builder used (account id
// 123456789012, api id 1234567890, source ip 0.0.0.0) since nothing in a
// local template carries real AWS account/API identifiers.
package apisource

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/sam-e/fabric/internal/domain"
	"github.com/sam-e/fabric/internal/invocation"
	"github.com/sam-e/fabric/internal/logging"
)

// fixedAccountID and fixedAPIID are fabricated identity fields; spec's
// local emulator has no real AWS account or API Gateway deployment behind
// it, so every request carries the same placeholder values the original
// Rust request builder used.
const (
	fixedAccountID = "123456789012"
	fixedAPIID     = "1234567890"
	fixedStage     = "Prod"
)

// Source matches incoming HTTP requests against a graph's declared API
// routes and relays matches to the invoker.
type Source struct {
	Graph      *domain.ResourceGraph
	InvokerURL string
	Client     *http.Client
}

// New returns a Source that calls invokerURL + "/invoke" for each matched
// request.
func New(graph *domain.ResourceGraph, invokerURL string) *Source {
	return &Source{Graph: graph, InvokerURL: invokerURL, Client: http.DefaultClient}
}

// Handler is the single catch-all HTTP handler this source's listener
// serves: every request is matched against the graph's route table.
func (s *Source) Handler() http.Handler {
	return http.HandlerFunc(s.serveHTTP)
}

func (s *Source) serveHTTP(w http.ResponseWriter, r *http.Request) {
	fn, binding, pathParams := s.match(r.Method, r.URL.Path)
	if fn == nil {
		http.NotFound(w, r)
		return
	}

	req, err := buildGatewayRequest(r, binding, pathParams)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := s.invoke(r.Context(), fn.Name, req)
	if err != nil {
		logging.Op().Warn("api invoke failed", "function", fn.Name, "path", r.URL.Path, "error", err)
		http.Error(w, "upstream invocation failed", http.StatusBadGateway)
		return
	}

	writeGatewayResponse(w, resp)
}

// match finds the first route (in the graph's canonical order) whose
// compiled regex and method both match. Path parameters are extracted from
// the regex's named capture groups.
func (s *Source) match(method, path string) (*domain.Function, *domain.APIRouteBinding, map[string]string) {
	for _, entry := range s.Graph.APIRoutes() {
		re := entry.Binding.Regex()
		if re == nil || !entry.Binding.MatchesMethod(method) {
			continue
		}
		m := re.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		params := make(map[string]string)
		for i, name := range re.SubexpNames() {
			if i == 0 || name == "" {
				continue
			}
			params[name] = m[i]
		}
		return entry.Function, entry.Binding, params
	}
	return nil, nil, nil
}

func buildGatewayRequest(r *http.Request, binding *domain.APIRouteBinding, pathParams map[string]string) (*invocation.GatewayRequest, error) {
	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(r.Header)+1)
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	headers["X-Forwarded-Proto"] = "http"

	query := make(map[string]string)
	for k := range r.URL.Query() {
		query[k] = r.URL.Query().Get(k)
	}

	return &invocation.GatewayRequest{
		Path:                  r.URL.Path,
		Resource:              binding.Path,
		PathParameters:        pathParams,
		QueryStringParameters: query,
		HTTPMethod:            r.Method,
		Headers:               headers,
		Body:                  string(bodyBytes),
		RequestContext: invocation.GatewayRequestContext{
			AccountID:  fixedAccountID,
			APIID:      fixedAPIID,
			Stage:      fixedStage,
			HTTPMethod: r.Method,
			Protocol:   r.Proto,
			Path:       "/" + fixedStage + r.URL.Path,
			Identity:   invocation.GatewayRequestIdentity{SourceIP: "0.0.0.0", UserAgent: r.UserAgent()},
		},
	}, nil
}

type invokeRequest struct {
	LambdaName string                     `json:"lambda_name"`
	Kind       string                     `json:"kind"`
	APIRequest *invocation.GatewayRequest `json:"api_request"`
}

func (s *Source) invoke(ctx context.Context, lambdaName string, req *invocation.GatewayRequest) (invocation.GatewayResponse, error) {
	body, err := json.Marshal(invokeRequest{LambdaName: lambdaName, Kind: "api", APIRequest: req})
	if err != nil {
		return invocation.GatewayResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.InvokerURL+"/invoke", bytes.NewReader(body))
	if err != nil {
		return invocation.GatewayResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(httpReq)
	if err != nil {
		return invocation.GatewayResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var payload struct {
			ErrorMessage string `json:"errorMessage"`
		}
		json.NewDecoder(resp.Body).Decode(&payload)
		return invocation.GatewayResponse{}, &invokeError{status: resp.StatusCode, message: payload.ErrorMessage}
	}

	var out invocation.GatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return invocation.GatewayResponse{}, err
	}
	return out, nil
}

type invokeError struct {
	status  int
	message string
}

func (e *invokeError) Error() string { return e.message }
