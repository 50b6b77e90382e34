package httpapi

import (
	"net/http"
	"strconv"

	"github.com/cuemby/pulsar-rust-broker/pkg/admin"
	"github.com/cuemby/pulsar-rust-broker/pkg/brokererr"
	"github.com/cuemby/pulsar-rust-broker/pkg/types"
)

// registerAdminRoutes wires the GET /v1/admin/... read-only tree spec §6
// names, using Go 1.22 ServeMux path patterns in place of a router
// library, same as the teacher's bare mux.HandleFunc approach.
func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/admin/nodes", s.handleAdminNodes)
	mux.HandleFunc("GET /v1/admin/node/{id}", s.handleAdminNode)
	mux.HandleFunc("GET /v1/admin/topics", s.handleAdminTopics)
	mux.HandleFunc("GET /v1/admin/topic/{topic}", s.handleAdminTopic)
	mux.HandleFunc("GET /v1/admin/topic/{topic}/partitions", s.handleAdminPartitions)
	mux.HandleFunc("GET /v1/admin/topic/{topic}/partition/{partition}", s.handleAdminPartition)
	mux.HandleFunc("GET /v1/admin/topic/{topic}/partition/{partition}/ledgers", s.handleAdminLedgers)
	mux.HandleFunc("GET /v1/admin/topic/{topic}/partition/{partition}/ledger/{ledger}", s.handleAdminLedger)
	mux.HandleFunc("GET /v1/admin/topic/{topic}/partition/{partition}/ledger/{ledger}/messageids", s.handleAdminLedgerMessageIDs)
	mux.HandleFunc("GET /v1/admin/topic/{topic}/partition/{partition}/ledger/{ledger}/message/{message}", s.handleAdminLedgerMessage)
	mux.HandleFunc("GET /v1/admin/topic/{topic}/subscriptions", s.handleAdminSubscriptions)
	mux.HandleFunc("GET /v1/admin/topic/{topic}/subscription/{sub}", s.handleAdminSubscription)
	mux.HandleFunc("GET /v1/admin/topic/{topic}/subscription/{sub}/messageids", s.handleAdminSubscriptionMessageIDs)
	mux.HandleFunc("GET /v1/admin/topic/{topic}/subscription/{sub}/message/{message}", s.handleAdminSubscriptionMessage)
}

func (s *Server) handleAdminNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, admin.DumpCatalog(s.core).Nodes)
}

func (s *Server) handleAdminNode(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	node, err := s.core.Catalog().Node(types.NodeID(id))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleAdminTopics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, admin.DumpCatalog(s.core).Topics)
}

func (s *Server) handleAdminTopic(w http.ResponseWriter, r *http.Request) {
	topicID, err := pathTopicID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	topic, err := s.core.Catalog().Topic(topicID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topic)
}

func (s *Server) handleAdminPartitions(w http.ResponseWriter, r *http.Request) {
	topicID, err := pathTopicID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.core.Catalog().PartitionsByTopic(topicID))
}

func (s *Server) handleAdminPartition(w http.ResponseWriter, r *http.Request) {
	_, partitionID, err := pathTopicPartition(r)
	if err != nil {
		writeError(w, err)
		return
	}
	part, err := s.core.Catalog().Partition(partitionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, part)
}

func (s *Server) handleAdminLedgers(w http.ResponseWriter, r *http.Request) {
	topicID, partitionID, err := pathTopicPartition(r)
	if err != nil {
		writeError(w, err)
		return
	}
	views, err := admin.LedgersForPartition(s.core, topicID, partitionID, false)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAdminLedger(w http.ResponseWriter, r *http.Request) {
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
	views, err := admin.LedgersForPartition(s.core, topicID, partitionID, true)
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

func (s *Server) handleAdminLedgerMessageIDs(w http.ResponseWriter, r *http.Request) {
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
	ids, err := admin.LedgerMessageIDs(s.core, topicID, partitionID, types.LedgerID(ledgerID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handleAdminLedgerMessage(w http.ResponseWriter, r *http.Request) {
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
	messageID, err := pathUint64(r, "message")
	if err != nil {
		writeError(w, err)
		return
	}
	msg, err := admin.Message(s.core, topicID, partitionID, types.LedgerID(ledgerID), types.MessageID(messageID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleAdminSubscriptions(w http.ResponseWriter, r *http.Request) {
	topicID, err := pathTopicID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.core.Catalog().SubscriptionsByTopic(topicID))
}

func (s *Server) handleAdminSubscription(w http.ResponseWriter, r *http.Request) {
	_, subID, err := pathTopicSub(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sub, err := s.core.Catalog().Subscription(subID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleAdminSubscriptionMessageIDs(w http.ResponseWriter, r *http.Request) {
	topicID, subID, err := pathTopicSub(r)
	if err != nil {
		writeError(w, err)
		return
	}
	refs, err := admin.UndeliveredForSubscription(s.core, topicID, subID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refs)
}

func (s *Server) handleAdminSubscriptionMessage(w http.ResponseWriter, r *http.Request) {
	topicID, subID, err := pathTopicSub(r)
	if err != nil {
		writeError(w, err)
		return
	}
	messageID, err := pathUint64(r, "message")
	if err != nil {
		writeError(w, err)
		return
	}
	status, err := admin.MessageStatusForSubscription(s.core, topicID, subID, types.MessageID(messageID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func pathUint64(r *http.Request, name string) (uint64, error) {
	n, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, brokererr.InvalidRequest("path parameter %q: %v", name, err)
	}
	return n, nil
}

func pathTopicID(r *http.Request) (types.TopicID, error) {
	n, err := pathUint64(r, "topic")
	return types.TopicID(n), err
}

func pathTopicPartition(r *http.Request) (types.TopicID, types.PartitionID, error) {
	topicID, err := pathTopicID(r)
	if err != nil {
		return 0, 0, err
	}
	n, err := pathUint64(r, "partition")
	return topicID, types.PartitionID(n), err
}

func pathTopicSub(r *http.Request) (types.TopicID, types.SubscriptionID, error) {
	topicID, err := pathTopicID(r)
	if err != nil {
		return 0, 0, err
	}
	n, err := pathUint64(r, "sub")
	return topicID, types.SubscriptionID(n), err
}
