// Package httpapi implements the versioned HTTP/JSON surface spec §6
// names: the /v1/admin read endpoints, the /v1/logs transaction-log
// viewer, the /v1/pub and /v1/sub producer/consumer surfaces, and the
// unversioned debug-only /stats dump. It is a thin JSON skin over
// pkg/partition.Core and pkg/admin; no business logic lives here.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/pulsar-rust-broker/pkg/brokererr"
	"github.com/cuemby/pulsar-rust-broker/pkg/log"
	"github.com/cuemby/pulsar-rust-broker/pkg/metrics"
	"github.com/cuemby/pulsar-rust-broker/pkg/partition"
)

// Server is the broker's HTTP surface, backed by one process-wide Core.
type Server struct {
	core *partition.Core
	mux  *http.ServeMux
}

// NewServer builds a Server and registers every route against core.
func NewServer(core *partition.Core) *Server {
	mux := http.NewServeMux()
	s := &Server{core: core, mux: mux}

	s.registerAdminRoutes(mux)
	s.registerLogRoutes(mux)
	s.registerPubRoutes(mux)
	s.registerSubRoutes(mux)
	s.registerStatsRoutes(mux)

	return s
}

// Handler returns the HTTP handler for embedding in another server or for
// tests to drive directly with httptest.
func (s *Server) Handler() http.Handler {
	return s.withMetrics(s.mux)
}

// Start runs the HTTP server on addr and blocks until ListenAndServe
// returns; it always returns a non-nil error.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// withMetrics wraps every request with the APIRequestsTotal/
// APIRequestDuration instrumentation spec's ambient stack names.
func (s *Server) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("encode response", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	if be, ok := brokererr.As(err); ok {
		body := map[string]any{
			"error": be.Message,
			"code":  string(be.Kind),
		}
		if be.Kind == brokererr.KindPartitionNotOwned {
			body["owner_node_id"] = be.OwnerNode
		}
		writeJSON(w, be.Kind.HTTPStatus(), body)
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error": err.Error(),
		"code":  "STORAGE_FAILURE",
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return brokererr.InvalidRequest("decode request body: %v", err)
	}
	return nil
}
