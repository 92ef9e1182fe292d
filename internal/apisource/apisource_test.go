package apisource

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sam-e/fabric/internal/domain"
	"github.com/sam-e/fabric/internal/invocation"
)

func testGraph(t *testing.T) *domain.ResourceGraph {
	t.Helper()
	binding := &domain.APIRouteBinding{Path: "/greet/{name}", Method: "GET"}
	if err := binding.CompileRoute(); err != nil {
		t.Fatal(err)
	}
	return &domain.ResourceGraph{
		Functions: []*domain.Function{{
			Name: "Greeter",
			Events: []domain.EventBinding{
				{Name: "Greet", Kind: domain.BindingAPIRoute, API: binding},
			},
		}},
	}
}

func TestMatchExtractsPathParameters(t *testing.T) {
	s := New(testGraph(t), "http://unused")
	fn, binding, params := s.match("GET", "/greet/alice")
	if fn == nil || fn.Name != "Greeter" {
		t.Fatalf("expected match against Greeter, got %+v", fn)
	}
	if binding.Path != "/greet/{name}" {
		t.Fatalf("unexpected binding: %+v", binding)
	}
	if params["name"] != "alice" {
		t.Fatalf("expected name=alice, got %+v", params)
	}
}

func TestMatchRejectsWrongMethod(t *testing.T) {
	s := New(testGraph(t), "http://unused")
	fn, _, _ := s.match("POST", "/greet/alice")
	if fn != nil {
		t.Fatal("expected no match for POST against a GET-only route")
	}
}

func TestServeHTTPRelaysToInvoker(t *testing.T) {
	invoker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			LambdaName string                     `json:"lambda_name"`
			Kind       string                     `json:"kind"`
			APIRequest *invocation.GatewayRequest `json:"api_request"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.LambdaName != "Greeter" || req.APIRequest.PathParameters["name"] != "alice" {
			t.Errorf("unexpected relayed request: %+v", req)
		}
		json.NewEncoder(w).Encode(invocation.GatewayResponse{
			StatusCode: 200,
			Body:       `{"greeting":"hi alice"}`,
		})
	}))
	defer invoker.Close()

	s := New(testGraph(t), invoker.URL)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/greet/alice")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}
}

func TestServeHTTPNotFoundForUnmatchedRoute(t *testing.T) {
	s := New(testGraph(t), "http://unused")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/no/such/route")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
