package httpapi

import (
	"net/http"

	"github.com/cuemby/pulsar-rust-broker/pkg/brokererr"
	"github.com/cuemby/pulsar-rust-broker/pkg/types"
)

func (s *Server) registerPubRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/pub/ping", handlePing)
	mux.HandleFunc("GET /v1/pub/partitions/{topic_name}", s.handlePubPartitions)
	mux.HandleFunc("POST /v1/pub/message", s.handlePubMessage)
}

func handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pubPartitionsResponse answers "how many partitions does this topic have,
// and which node owns each" per spec §6's pub/partitions contract.
type pubPartitionsResponse struct {
	TopicID        types.TopicID                  `json:"topic_id"`
	PartitionCount int                            `json:"partition_count"`
	Owners         map[types.PartitionID]types.NodeID `json:"owners"`
}

func (s *Server) handlePubPartitions(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("topic_name")
	topic, err := s.core.Catalog().TopicByName(name)
	if err != nil {
		writeError(w, err)
		return
	}
	parts := s.core.Catalog().PartitionsByTopic(topic.ID)
	owners := make(map[types.PartitionID]types.NodeID, len(parts))
	for _, p := range parts {
		owners[p.ID] = p.OwnerNode
	}
	writeJSON(w, http.StatusOK, pubPartitionsResponse{
		TopicID:        topic.ID,
		PartitionCount: topic.PartitionCount,
		Owners:         owners,
	})
}

type publishRequest struct {
	TopicID     types.TopicID     `json:"topic_id"`
	PartitionID types.PartitionID `json:"partition_id"`
	// RequestID, if set, lets a retried publish (e.g. after a dropped
	// response) be deduplicated within types.RequestDedupWindow instead of
	// appending a second time.
	RequestID  string            `json:"request_id,omitempty"`
	Key        []byte            `json:"key,omitempty"`
	Timestamp  int64             `json:"timestamp,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type publishResponse struct {
	MessageRef string `json:"message_ref"`
}

func (s *Server) handlePubMessage(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Attributes) > 0 {
		size := 0
		for k, v := range req.Attributes {
			size += len(k) + len(v)
		}
		if size > types.MaxAttributeBytes {
			writeError(w, brokererr.InvalidRequest("attributes exceed %d bytes", types.MaxAttributeBytes))
			return
		}
	}
	ref, _, err := s.core.Publish(r.Context(), req.TopicID, req.PartitionID, req.RequestID, req.Key, req.Timestamp, req.Attributes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, publishResponse{MessageRef: ref.String()})
}
