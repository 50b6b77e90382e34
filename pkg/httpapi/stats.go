package httpapi

import (
	"net/http"

	"github.com/cuemby/pulsar-rust-broker/pkg/admin"
	"github.com/cuemby/pulsar-rust-broker/pkg/brokererr"
	"github.com/cuemby/pulsar-rust-broker/pkg/metrics"
	"github.com/cuemby/pulsar-rust-broker/pkg/types"
)

// registerStatsRoutes wires the unversioned, debug-only /stats tree spec
// §6 names. Unlike /v1/logs this is a live aggregate snapshot (ledger
// state counts, subscription depths), not a log replay.
func (s *Server) registerStatsRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /stats", s.handleStatsAll)
	mux.HandleFunc("GET /stats/topic/{topic}", s.handleStatsTopic)
	mux.HandleFunc("GET /stats/topic/{topic}/partition/{partition}", s.handleStatsPartition)
	mux.HandleFunc("GET /stats/topic/{topic}/partition/{partition}/ledger/{ledger}", s.handleStatsLedger)
}

type partitionStats struct {
	Partition types.PartitionID                                     `json:"partition"`
	Ledgers   []metrics.LedgerCount                                 `json:"ledgers"`
	Depths    map[types.SubscriptionID]metrics.SubscriptionDepth `json:"subscription_depths"`
}

func (s *Server) handleStatsAll(w http.ResponseWriter, r *http.Request) {
	out := make(map[types.TopicID][]partitionStats)
	for _, topicID := range s.core.Topics() {
		out[topicID] = s.topicStats(topicID)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStatsTopic(w http.ResponseWriter, r *http.Request) {
	topicID, err := pathTopicID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.topicStats(topicID))
}

func (s *Server) topicStats(topicID types.TopicID) []partitionStats {
	var out []partitionStats
	for _, pid := range s.core.TopicPartitions(topicID) {
		out = append(out, partitionStats{
			Partition: pid,
			Ledgers:   s.core.PartitionLedgerCounts(topicID, pid),
			Depths:    s.core.PartitionSubscriptionDepths(topicID, pid),
		})
	}
	return out
}

func (s *Server) handleStatsPartition(w http.ResponseWriter, r *http.Request) {
	topicID, partitionID, err := pathTopicPartition(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, partitionStats{
		Partition: partitionID,
		Ledgers:   s.core.PartitionLedgerCounts(topicID, partitionID),
		Depths:    s.core.PartitionSubscriptionDepths(topicID, partitionID),
	})
}

func (s *Server) handleStatsLedger(w http.ResponseWriter, r *http.Request) {
	topicID, partitionID, err := pathTopicPartition(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ledgerID, err := pathUint64(r, "ledger")
	if err != nil {
		writeError(w, err)
		return
	}
	views, err := admin.LedgersForPartition(s.core, topicID, partitionID, false)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, v := range views {
		if v.ID == types.LedgerID(ledgerID) {
			writeJSON(w, http.StatusOK, v)
			return
		}
	}
	writeError(w, brokererr.NotFound("ledger %d", ledgerID))
}
