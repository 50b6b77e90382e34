package httpapi

import (
	"net/http"

	"github.com/cuemby/pulsar-rust-broker/pkg/admin"
	"github.com/cuemby/pulsar-rust-broker/pkg/brokererr"
	"github.com/cuemby/pulsar-rust-broker/pkg/types"
)

func (s *Server) registerSubRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/sub/ping", handlePing)
	mux.HandleFunc("GET /v1/sub/nodes", s.handleSubNodes)
	mux.HandleFunc("POST /v1/sub/consumer", s.handleSubRegisterConsumer)
	mux.HandleFunc("DELETE /v1/sub/topic/{topic}/subscription/{sub}/consumer/{consumer}", s.handleSubUnregisterConsumer)
	mux.HandleFunc("GET /v1/sub/topic/{topic}/subscription/{sub}/consumer/{consumer}/message", s.handleSubNextMessage)
	mux.HandleFunc("POST /v1/sub/ack", s.handleSubAck)
	mux.HandleFunc("POST /v1/sub/nack", s.handleSubNack)
}

func (s *Server) handleSubNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, admin.DumpCatalog(s.core).Nodes)
}

type registerConsumerRequest struct {
	TopicID        types.TopicID        `json:"topic_id"`
	SubscriptionID types.SubscriptionID `json:"subscription_id"`
	MaxMessages    int                  `json:"max_messages,omitempty"`
}

type registerConsumerResponse struct {
	ConsumerID types.ConsumerID `json:"consumer_id"`
}

func (s *Server) handleSubRegisterConsumer(w http.ResponseWriter, r *http.Request) {
	var req registerConsumerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, err := s.core.RegisterConsumer(req.TopicID, req.SubscriptionID, req.MaxMessages)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, registerConsumerResponse{ConsumerID: id})
}

func (s *Server) handleSubUnregisterConsumer(w http.ResponseWriter, r *http.Request) {
	topicID, subID, err := pathTopicSub(r)
	if err != nil {
		writeError(w, err)
		return
	}
	consumerID, err := pathUint64(r, "consumer")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.core.UnregisterConsumer(r.Context(), topicID, subID, types.ConsumerID(consumerID)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type nextMessageResponse struct {
	MessageAckKey string            `json:"message_ack_key"`
	Key           []byte            `json:"key,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	PublishTimeMs int64             `json:"publish_time_ms"`
	DeliveryCount int               `json:"delivery_count"`
}

func (s *Server) handleSubNextMessage(w http.ResponseWriter, r *http.Request) {
	topicID, subID, err := pathTopicSub(r)
	if err != nil {
		writeError(w, err)
		return
	}
	consumerID, err := pathUint64(r, "consumer")
	if err != nil {
		writeError(w, err)
		return
	}
	lease, ok, err := s.core.NextForConsumer(r.Context(), topicID, subID, types.ConsumerID(consumerID))
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, nextMessageResponse{
		MessageAckKey: lease.Ref.String(),
		Key:           lease.Message.Key,
		Attributes:    lease.Message.Attributes,
		PublishTimeMs: lease.Message.PublishTimeMs,
		DeliveryCount: lease.DeliveryCount,
	})
}

// ackRequest is the single-key ack/nack body spec §9's Open Question (a)
// resolves to: one message_ack_key per request, not a batch of ids.
type ackRequest struct {
	SubscriptionID types.SubscriptionID `json:"subscription_id"`
	ConsumerID     types.ConsumerID     `json:"consumer_id"`
	MessageAckKey  string               `json:"message_ack_key"`
}

func (s *Server) handleSubAck(w http.ResponseWriter, r *http.Request) {
	ref, req, err := decodeAckRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.core.Ack(r.Context(), ref.Topic, req.SubscriptionID, req.ConsumerID, []types.MessageRef{ref}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleSubNack(w http.ResponseWriter, r *http.Request) {
	ref, req, err := decodeAckRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.core.Nack(r.Context(), ref.Topic, req.SubscriptionID, req.ConsumerID, []types.MessageRef{ref}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func decodeAckRequest(r *http.Request) (types.MessageRef, ackRequest, error) {
	var req ackRequest
	if err := decodeJSON(r, &req); err != nil {
		return types.MessageRef{}, req, err
	}
	ref, err := types.ParseMessageRef(req.MessageAckKey)
	if err != nil {
		return types.MessageRef{}, req, brokererr.InvalidRequest("%v", err)
	}
	return ref, req, nil
}
