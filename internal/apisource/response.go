package apisource

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/sam-e/fabric/internal/invocation"
)

// writeGatewayResponse translates a function's GatewayResponse back into a
// real HTTP response.
//
// # Header reconciliation
//
// A function declares response headers inside the JSON body it posts to
// /response, not via real transport headers (it never held an actual HTTP
// connection to set them on). writeGatewayResponse is what reconciles the
// two: every declared header is copied onto the real ResponseWriter before
// anything is written, so a function-set Content-Type or Set-Cookie ends up
// exactly where an HTTP client expects to find it.
//
// # Content-type negotiation
//
// If the function didn't declare its own Content-Type, one is inferred from
// the body: base64-flagged bodies become application/octet-stream, JSON-
// shaped bodies (leading '{' or '[') become application/json, HTML-shaped
// bodies (leading '<') become text/html, an empty body gets no
// Content-Type at all, and anything else falls back to text/plain.
func writeGatewayResponse(w http.ResponseWriter, resp invocation.GatewayResponse) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}

	if w.Header().Get("Content-Type") == "" {
		if ct := negotiateContentType(resp); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if resp.Body == "" {
		return
	}

	if resp.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(resp.Body)
		if err != nil {
			w.Write([]byte(resp.Body))
			return
		}
		w.Write(decoded)
		return
	}

	w.Write([]byte(resp.Body))
}

func negotiateContentType(resp invocation.GatewayResponse) string {
	if resp.Body == "" {
		return ""
	}
	if resp.IsBase64Encoded {
		return "application/octet-stream"
	}

	trimmed := strings.TrimSpace(resp.Body)
	switch {
	case strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "["):
		return "application/json"
	case strings.HasPrefix(trimmed, "<"):
		return "text/html"
	default:
		return "text/plain"
	}
}
