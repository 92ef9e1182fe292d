// Package s3source is the C8 component: an HTTP webhook endpoint standing
// in for S3 object notifications. A caller posts a notification for a
// bucket; the source looks up that bucket's declared triggers and fans the
// event out to its queue targets via the same queuesource.Backend the
// queue source polls. Lambda-bound triggers are accepted but not
// dispatched — warned and skipped, matching the original implementation's
// behaviour, since wiring direct S3-to-Lambda delivery would duplicate the
// queue-based path without adding anything a local emulator needs.
package s3source

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sam-e/fabric/internal/domain"
	"github.com/sam-e/fabric/internal/fabric"
	"github.com/sam-e/fabric/internal/logging"
	"github.com/sam-e/fabric/internal/queuesource"
)

// Source dispatches bucket notifications to their declared queue triggers.
type Source struct {
	Graph   *domain.ResourceGraph
	Backend queuesource.Backend
}

// New returns a Source bound to graph and backend.
func New(graph *domain.ResourceGraph, backend queuesource.Backend) *Source {
	return &Source{Graph: graph, Backend: backend}
}

// Handler returns the HTTP handler the S3 source's listener serves:
// POST /buckets/{bucket}/notify.
func (s *Source) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /buckets/{bucket}/notify", s.handleNotify)
	return mux
}

// s3EventRecord mirrors aws_lambda_events::s3::S3EventRecord, trimmed to
// the fields a webhook caller actually supplies.
type s3EventRecord struct {
	EventName string `json:"eventName"`
	S3        struct {
		Object struct {
			Key  string `json:"key"`
			Size int64  `json:"size"`
		} `json:"object"`
	} `json:"s3"`
}

type s3Event struct {
	Records []s3EventRecord `json:"Records"`
}

func (s *Source) handleNotify(w http.ResponseWriter, r *http.Request) {
	bucketName := r.PathValue("bucket")
	bucket := s.Graph.BucketByName(bucketName)
	if bucket == nil {
		writeError(w, fabric.NotFound("no such bucket: "+bucketName))
		return
	}

	var event s3Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, fabric.ProtocolError("invalid S3 event: "+err.Error()))
		return
	}

	for _, fnName := range bucket.Triggers.Lambdas {
		logging.Op().Warn("bucket trigger targets a function directly, which s3source does not dispatch to; skipping", "bucket", bucketName, "function", fnName)
	}

	body, err := json.Marshal(event)
	if err != nil {
		writeError(w, fabric.ProtocolError("re-encode S3 event: "+err.Error()))
		return
	}

	for _, queueName := range bucket.Triggers.Queues {
		s.dispatchToQueue(r.Context(), queueName, string(body))
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Source) dispatchToQueue(ctx context.Context, queueName, body string) bool {
	q := s.Graph.QueueByName(queueName)
	if q == nil {
		logging.Op().Warn("bucket targets unknown queue, skipping", "queue", queueName)
		return false
	}
	address, err := s.Backend.EnsureQueue(ctx, q.Name)
	if err != nil {
		logging.Op().Warn("ensure queue for bucket trigger failed", "queue", q.Name, "error", err)
		return false
	}
	if err := s.Backend.Enqueue(ctx, address, body); err != nil {
		logging.Op().Warn("enqueue S3 event failed", "queue", q.Name, "error", err)
		return false
	}
	return true
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
