package v1

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shenikar/disaster_coordination_system/internal/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialRealtime(t *testing.T, deps *testDeps, query string) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(deps.router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws" + query
	header := http.Header{}
	header.Set("X-API-Key", testAPIKey)

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readReply(t *testing.T, conn *websocket.Conn) wsReply {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var reply wsReply
	require.NoError(t, conn.ReadJSON(&reply))
	return reply
}

func TestRealtime_InitialTopicsAndEvents(t *testing.T) {
	deps := newTestHandler(t)
	conn := dialRealtime(t, deps, "?topics=global")

	ack := readReply(t, conn)
	assert.Equal(t, wsReplySubscribed, ack.Type)
	assert.Equal(t, eventbus.GlobalTopic, ack.Topic)
	assert.Equal(t, 1, deps.bus.SubscriberCount(eventbus.GlobalTopic))

	deps.bus.Publish(eventbus.GlobalTopic, eventbus.EventIncidentCreated, "42", map[string]string{"title": "Flood"})

	reply := readReply(t, conn)
	assert.Equal(t, wsReplyEvent, reply.Type)
	require.NotNil(t, reply.Event)
	assert.Equal(t, eventbus.EventIncidentCreated, reply.Event.Type)
	assert.Equal(t, "42", reply.Event.EntityID)
	assert.JSONEq(t, `{"title":"Flood"}`, string(reply.Event.Data))
}

func TestRealtime_JoinAndLeave(t *testing.T) {
	deps := newTestHandler(t)
	conn := dialRealtime(t, deps, "")
	topic := eventbus.IncidentTopic("42")

	require.NoError(t, conn.WriteJSON(wsCommand{Action: wsActionJoin, Topic: topic}))
	ack := readReply(t, conn)
	assert.Equal(t, wsReplySubscribed, ack.Type)
	assert.Equal(t, topic, ack.Topic)

	deps.bus.Publish(topic, eventbus.EventResourcesUpdated, "42", nil)
	reply := readReply(t, conn)
	require.Equal(t, wsReplyEvent, reply.Type)
	assert.Equal(t, topic, reply.Topic)

	require.NoError(t, conn.WriteJSON(wsCommand{Action: wsActionLeave, Topic: topic}))
	ack = readReply(t, conn)
	assert.Equal(t, wsReplyUnsubscribed, ack.Type)
	assert.Equal(t, 0, deps.bus.SubscriberCount(topic))
}

func TestRealtime_RejectsBadCommands(t *testing.T) {
	deps := newTestHandler(t)
	conn := dialRealtime(t, deps, "")

	require.NoError(t, conn.WriteJSON(wsCommand{Action: "shout", Topic: "global"}))
	reply := readReply(t, conn)
	assert.Equal(t, wsReplyError, reply.Type)
	assert.Equal(t, "unknown action", reply.Error)

	require.NoError(t, conn.WriteJSON(wsCommand{Action: wsActionJoin, Topic: "  "}))
	reply = readReply(t, conn)
	assert.Equal(t, wsReplyError, reply.Type)
	assert.Equal(t, "invalid topic", reply.Error)
}

func TestRealtime_DisconnectReleasesSubscriptions(t *testing.T) {
	deps := newTestHandler(t)
	conn := dialRealtime(t, deps, "?topics=global,incident_7")

	readReply(t, conn)
	readReply(t, conn)
	require.Equal(t, 1, deps.bus.SubscriberCount("incident_7"))

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return deps.bus.SubscriberCount(eventbus.GlobalTopic) == 0 && deps.bus.SubscriberCount("incident_7") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRealtime_RequiresAPIKey(t *testing.T) {
	deps := newTestHandler(t)
	server := httptest.NewServer(deps.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
