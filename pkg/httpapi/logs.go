package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cuemby/pulsar-rust-broker/pkg/admin"
	"github.com/cuemby/pulsar-rust-broker/pkg/brokererr"
	"github.com/cuemby/pulsar-rust-broker/pkg/types"
)

// registerLogRoutes wires GET /v1/logs and its progressively more scoped
// forms. The transaction log is kept one-per-partition, so every depth
// still requires a topic and a partition; ledger and message narrow the
// LogFilter within that partition's log.
func (s *Server) registerLogRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/logs/topic/{topic}/partition/{partition}", s.handleLogs)
	mux.HandleFunc("GET /v1/logs/topic/{topic}/partition/{partition}/ledger/{ledger}", s.handleLogs)
	mux.HandleFunc("GET /v1/logs/topic/{topic}/partition/{partition}/ledger/{ledger}/message/{message}", s.handleLogs)
	mux.HandleFunc("GET /v1/logs", s.handleLogsUnscoped)
}

func (s *Server) handleLogsUnscoped(w http.ResponseWriter, r *http.Request) {
	writeError(w, brokererr.InvalidRequest("GET /v1/logs requires at least /topic/{t}/partition/{p}"))
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	topicID, partitionID, err := pathTopicPartition(r)
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, brokererr.InvalidRequest("invalid limit %q", raw))
			return
		}
		limit = n
	}
	detailed := q.Get("detailed") == "true"
	exact := q.Get("exact") == "true"

	var filter admin.LogFilter
	if raw := r.PathValue("ledger"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, brokererr.InvalidRequest("invalid ledger id %q", raw))
			return
		}
		filter.Ledger = types.LedgerID(n)
	}
	if raw := r.PathValue("message"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, brokererr.InvalidRequest("invalid message id %q", raw))
			return
		}
		filter.Message = types.MessageID(n)
	}
	if exact && (filter.Ledger == 0 || filter.Message == 0) {
		writeError(w, brokererr.InvalidRequest("exact=true requires topic, partition, ledger, and message"))
		return
	}

	var fromLSN uint64
	if raw := q.Get("from_lsn"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, brokererr.InvalidRequest("invalid from_lsn %q", raw))
			return
		}
		fromLSN = n
	}

	scan, err := admin.ScanLog(r.Context(), s.core, topicID, partitionID, fromLSN, limit, filter, detailed)
	if err != nil {
		writeError(w, err)
		return
	}

	switch preferredFormat(r) {
	case "text":
		writeLogsText(w, scan)
	case "html":
		writeLogsHTML(w, topicID, partitionID, scan)
	default:
		writeJSON(w, http.StatusOK, scan)
	}
}

// preferredFormat maps the Accept header to the three renderings spec §6
// names: json (default), text/plain, and text/html for the log viewer.
func preferredFormat(r *http.Request) string {
	accept := r.Header.Get("Accept")
	switch {
	case strings.Contains(accept, "text/html"):
		return "html"
	case strings.Contains(accept, "text/plain"):
		return "text"
	default:
		return "json"
	}
}

func writeLogsText(w http.ResponseWriter, scan admin.LogScan) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	for _, e := range scan.Entries {
		if e.Ref != nil {
			fmt.Fprintf(w, "lsn=%d ts=%d kind=%s ref=%s\n", e.LSN, e.TimestampMs, e.Kind, e.Ref.String())
		} else {
			fmt.Fprintf(w, "lsn=%d ts=%d kind=%s\n", e.LSN, e.TimestampMs, e.Kind)
		}
	}
	fmt.Fprintf(w, "# next_lsn=%d\n", scan.NextLSN)
}

func writeLogsHTML(w http.ResponseWriter, topicID types.TopicID, partitionID types.PartitionID, scan admin.LogScan) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "<html><head><title>log topic %d partition %d</title></head><body><table border=\"1\">\n", topicID, partitionID)
	fmt.Fprint(w, "<tr><th>LSN</th><th>timestamp_ms</th><th>kind</th><th>ref</th></tr>\n")
	for _, e := range scan.Entries {
		ref := ""
		if e.Ref != nil {
			ref = e.Ref.String()
		}
		fmt.Fprintf(w, "<tr><td>%d</td><td>%d</td><td>%s</td><td>%s</td></tr>\n", e.LSN, e.TimestampMs, e.Kind, ref)
	}
	fmt.Fprintf(w, "</table><p>next_lsn=%d</p></body></html>\n", scan.NextLSN)
}
