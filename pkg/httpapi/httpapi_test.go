package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/pulsar-rust-broker/pkg/catalog"
	"github.com/cuemby/pulsar-rust-broker/pkg/partition"
	"github.com/cuemby/pulsar-rust-broker/pkg/txlog"
	"github.com/cuemby/pulsar-rust-broker/pkg/types"
	"github.com/cuemby/pulsar-rust-broker/pkg/wakeup"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := catalog.NewMemStore()
	cat, err := catalog.Load(store)
	require.NoError(t, err)
	require.NoError(t, cat.CreateNode(&types.Node{ID: 1, Host: "127.0.0.1", Port: 9000}))
	require.NoError(t, cat.CreateTopic(&types.Topic{ID: 1, Name: "orders", PartitionCount: 1}))
	sub := &types.Subscription{ID: 1, Topic: 1, Name: "fulfillment", Discipline: types.Shared, AckTimeout: time.Minute}
	require.NoError(t, cat.CreateSubscription(sub))
	require.NoError(t, cat.CreatePartition(&types.Partition{ID: 1, Topic: 1, OwnerNode: 1}))

	core := partition.NewCore(1, cat)
	e := partition.NewEngine(1, 1, 1, []*types.Subscription{sub}, txlog.NewInMemoryLog(), wakeup.NewRegistry[types.SubscriptionID]())
	require.NoError(t, e.Bootstrap(context.Background()))
	require.NoError(t, core.AddEngine(1, 1, e))

	return NewServer(core)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		r = httptest.NewRequest(method, path, bytes.NewReader(buf))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestPublishDeliverAckRoundTrip(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	w := do(t, h, http.MethodPost, "/v1/pub/message", publishRequest{
		TopicID: 1, PartitionID: 1, Key: []byte("k"), Attributes: map[string]string{"a": "1"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var pubResp publishResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pubResp))
	require.Equal(t, "1:1:1:1", pubResp.MessageRef)

	w = do(t, h, http.MethodPost, "/v1/sub/consumer", registerConsumerRequest{TopicID: 1, SubscriptionID: 1})
	require.Equal(t, http.StatusOK, w.Code)
	var consResp registerConsumerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &consResp))
	require.Equal(t, types.ConsumerID(1), consResp.ConsumerID)

	w = do(t, h, http.MethodGet, "/v1/sub/topic/1/subscription/1/consumer/1/message", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var msgResp nextMessageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgResp))
	require.Equal(t, "1:1:1:1", msgResp.MessageAckKey)

	w = do(t, h, http.MethodPost, "/v1/sub/ack", ackRequest{SubscriptionID: 1, ConsumerID: 1, MessageAckKey: "1:1:1:1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/v1/admin/topic/1/subscription/1/messageids", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var refs []types.MessageRef
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &refs))
	require.Empty(t, refs)
}

func TestNextMessageReturnsNoContentWhenEmpty(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	w := do(t, h, http.MethodPost, "/v1/sub/consumer", registerConsumerRequest{TopicID: 1, SubscriptionID: 1})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/v1/sub/topic/1/subscription/1/consumer/1/message", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestPublishUnknownPartitionReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	w := do(t, h, http.MethodPost, "/v1/pub/message", publishRequest{TopicID: 1, PartitionID: 99})
	require.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "NOT_FOUND", body["code"])
}

func TestAckUnknownKeyIsInvalidRequest(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	w := do(t, h, http.MethodPost, "/v1/sub/ack", ackRequest{SubscriptionID: 1, ConsumerID: 1, MessageAckKey: "garbage"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPubPartitionsReportsOwner(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	w := do(t, h, http.MethodGet, "/v1/pub/partitions/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp pubPartitionsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.PartitionCount)
	require.Equal(t, types.NodeID(1), resp.Owners[1])
}

func TestLogsRequiresTopicAndPartition(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	w := do(t, h, http.MethodGet, "/v1/logs", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogsTextFormat(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	do(t, h, http.MethodPost, "/v1/pub/message", publishRequest{TopicID: 1, PartitionID: 1})

	r := httptest.NewRequest(http.MethodGet, "/v1/logs/topic/1/partition/1", nil)
	r.Header.Set("Accept", "text/plain")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "kind=")
}
