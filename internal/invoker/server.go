package invoker

import (
	"net/http"

	"github.com/sam-e/fabric/internal/observability"
)

// NewServeMux builds the HTTP handler for the invoker's listener: the
// per-function runtime API plus the shared /invoke entrypoint, wrapped in
// OpenTelemetry tracing middleware.
func (i *Invoker) NewServeMux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{fn}/2018-06-01/runtime/invocation/next", i.handleNext)
	mux.HandleFunc("POST /{fn}/2018-06-01/runtime/invocation/{request_id}/response", i.handleResponse)
	mux.HandleFunc("POST /{fn}/2018-06-01/runtime/invocation/{request_id}/error", i.handleInvocationError)
	mux.HandleFunc("POST /{fn}/2018-06-01/runtime/init/error", i.handleInitError)
	mux.HandleFunc("POST /invoke", i.handleInvoke)

	return observability.HTTPMiddleware(mux)
}
