package invoker

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sam-e/fabric/internal/domain"
	"github.com/sam-e/fabric/internal/store"
)

func testGraph() *domain.ResourceGraph {
	return &domain.ResourceGraph{
		Functions: []*domain.Function{
			{Name: "Greeter", Image: "greet:latest", PackageType: domain.PackageTypeImage},
		},
	}
}

func TestInvokeRoundTrip(t *testing.T) {
	inv := New(testGraph(), store.New(), 2*time.Second)
	srv := httptest.NewServer(inv.NewServeMux())
	defer srv.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// poll /next until the invocation shows up
		var requestID string
		for requestID == "" {
			resp, err := http.Get(srv.URL + "/Greeter/2018-06-01/runtime/invocation/next")
			if err != nil {
				t.Error(err)
				return
			}
			if resp.StatusCode == http.StatusOK {
				requestID = resp.Header.Get("Lambda-Runtime-Aws-Request-Id")
			}
			resp.Body.Close()
			if requestID == "" {
				time.Sleep(20 * time.Millisecond)
			}
		}

		body, _ := json.Marshal(map[string]any{
			"statusCode": 200,
			"body":       `{"message":"hi"}`,
		})
		req, _ := http.NewRequest(http.MethodPost,
			srv.URL+"/Greeter/2018-06-01/runtime/invocation/"+requestID+"/response",
			bytes.NewReader(body))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Error(err)
			return
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			t.Errorf("response handler status = %d, want 202", resp.StatusCode)
		}
	}()

	payload := map[string]any{
		"lambda_name": "Greeter",
		"kind":        "api",
		"api_request": map[string]any{
			"path":           "/greet/world",
			"resource":       "/greet/{name}",
			"httpMethod":     "GET",
			"headers":        map[string]string{},
			"pathParameters": map[string]string{"name": "world"},
			"requestContext": map[string]any{
				"accountId": "123456789012", "apiId": "1234567890", "stage": "Prod",
				"requestId": "req-1", "protocol": "HTTP/1.1", "httpMethod": "GET",
				"path": "/Prod/greet/world", "identity": map[string]string{"sourceIp": "0.0.0.0"},
			},
		},
	}
	body, _ := json.Marshal(payload)
	resp, err := http.Post(srv.URL+"/invoke", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/invoke status = %d, want 200", resp.StatusCode)
	}

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["body"] != `{"message":"hi"}` {
		t.Fatalf("unexpected response body: %+v", got)
	}

	<-done
}

func TestInvokeUnknownFunction(t *testing.T) {
	inv := New(testGraph(), store.New(), 200*time.Millisecond)
	srv := httptest.NewServer(inv.NewServeMux())
	defer srv.Close()

	payload, _ := json.Marshal(map[string]any{
		"lambda_name": "DoesNotExist",
		"kind":        "api",
		"api_request": map[string]any{"path": "/x", "httpMethod": "GET"},
	})
	resp, err := http.Post(srv.URL+"/invoke", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestInvokeTimesOutWithoutResponse(t *testing.T) {
	inv := New(testGraph(), store.New(), 150*time.Millisecond)
	srv := httptest.NewServer(inv.NewServeMux())
	defer srv.Close()

	payload, _ := json.Marshal(map[string]any{
		"lambda_name": "Greeter",
		"kind":        "api",
		"api_request": map[string]any{"path": "/x", "httpMethod": "GET"},
	})
	resp, err := http.Post(srv.URL+"/invoke", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", resp.StatusCode)
	}
}

func TestMergeTransportHeadersPrefersTransport(t *testing.T) {
	transport := http.Header{"X-Custom": {"from-transport"}, "X-Only-Transport": {"t"}}
	embedded := map[string]string{"X-Custom": "from-body", "X-Only-Body": "b"}

	merged := mergeTransportHeaders(transport, embedded)

	if merged["X-Custom"] != "from-transport" {
		t.Fatalf("expected transport header to win, got %q", merged["X-Custom"])
	}
	if merged["X-Only-Transport"] != "t" || merged["X-Only-Body"] != "b" {
		t.Fatalf("expected headers unique to either side to survive, got %+v", merged)
	}
}

func TestHandleResponseReconcilesTransportHeaders(t *testing.T) {
	inv := New(testGraph(), store.New(), 2*time.Second)
	srv := httptest.NewServer(inv.NewServeMux())
	defer srv.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var requestID string
		for requestID == "" {
			resp, err := http.Get(srv.URL + "/Greeter/2018-06-01/runtime/invocation/next")
			if err != nil {
				t.Error(err)
				return
			}
			if resp.StatusCode == http.StatusOK {
				requestID = resp.Header.Get("Lambda-Runtime-Aws-Request-Id")
			}
			resp.Body.Close()
			if requestID == "" {
				time.Sleep(20 * time.Millisecond)
			}
		}

		body, _ := json.Marshal(map[string]any{
			"statusCode": 200,
			"body":       `{}`,
			"headers":    map[string]string{"X-Trace-Id": "body-value"},
		})
		req, _ := http.NewRequest(http.MethodPost,
			srv.URL+"/Greeter/2018-06-01/runtime/invocation/"+requestID+"/response",
			bytes.NewReader(body))
		req.Header.Set("X-Trace-Id", "transport-value")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Error(err)
			return
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			t.Errorf("response handler status = %d, want 202", resp.StatusCode)
		}
	}()

	payload, _ := json.Marshal(map[string]any{
		"lambda_name": "Greeter",
		"kind":        "api",
		"api_request": map[string]any{
			"path": "/greet/world", "resource": "/greet/{name}", "httpMethod": "GET",
			"headers": map[string]string{},
			"requestContext": map[string]any{
				"accountId": "123456789012", "apiId": "1234567890", "stage": "Prod",
				"requestId": "req-1", "protocol": "HTTP/1.1", "httpMethod": "GET",
				"path": "/Prod/greet/world", "identity": map[string]string{"sourceIp": "0.0.0.0"},
			},
		},
	})
	resp, err := http.Post(srv.URL+"/invoke", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	headers, _ := got["headers"].(map[string]any)
	if headers["X-Trace-Id"] != "transport-value" {
		t.Fatalf("expected the real transport header to win, got %+v", headers)
	}

	<-done
}
