package v1

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shenikar/disaster_coordination_system/internal/eventbus"
	"github.com/sirupsen/logrus"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = wsPongWait * 9 / 10
	wsMaxMessageSize = 4096
	wsOutboxSize     = 64
	wsMaxTopicLength = 128

	wsActionJoin  = "join"
	wsActionLeave = "leave"

	wsReplySubscribed   = "subscribed"
	wsReplyUnsubscribed = "unsubscribed"
	wsReplyEvent        = "event"
	wsReplyError        = "error"
)

// EventSubscriber - источник подписок на темы шины событий
type EventSubscriber interface {
	Subscribe(topic string) *eventbus.Subscription
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsCommand struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

type wsReply struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic,omitempty"`
	Event *eventbus.Event `json:"event,omitempty"`
	Error string          `json:"error,omitempty"`
}

// @Summary Realtime event stream
// @Description Upgrade to WebSocket. Initial topics come from the topics query; clients send {"action":"join"|"leave","topic":"..."}.
// @Tags Realtime
// @Security ApiKeyAuth
// @Param topics query string false "Comma separated topics, e.g. global,incident_<id>"
// @Success 101 "Switching Protocols"
// @Router /ws [get]
func (h *Handler) realtime(c *gin.Context) {
	log := h.logger.WithField("method", "realtime")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	var topics []string
	for _, topic := range strings.Split(c.Query("topics"), ",") {
		if topic = strings.TrimSpace(topic); topic != "" && len(topic) <= wsMaxTopicLength {
			topics = append(topics, topic)
		}
	}

	session := newWSSession(conn, h.subscriber, log.WithField("remote", c.ClientIP()))
	log.WithField("topics", topics).Info("Realtime client connected")
	session.run(topics)
	log.Info("Realtime client disconnected")
}

// wsSession - одно WebSocket-соединение и его подписки
type wsSession struct {
	conn       *websocket.Conn
	subscriber EventSubscriber
	log        *logrus.Entry

	outbox     chan wsReply
	done       chan struct{}
	writerDone chan struct{}

	mu   sync.Mutex
	subs map[string]*eventbus.Subscription
	wg   sync.WaitGroup
}

func newWSSession(conn *websocket.Conn, subscriber EventSubscriber, log *logrus.Entry) *wsSession {
	return &wsSession{
		conn:       conn,
		subscriber: subscriber,
		log:        log,
		outbox:     make(chan wsReply, wsOutboxSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		subs:       make(map[string]*eventbus.Subscription),
	}
}

// run обслуживает соединение до его закрытия и снимает все подписки
func (s *wsSession) run(initialTopics []string) {
	go func() {
		defer close(s.writerDone)
		s.writeLoop()
	}()

	for _, topic := range initialTopics {
		s.join(topic)
	}
	s.readLoop()

	close(s.done)
	s.mu.Lock()
	for topic, sub := range s.subs {
		sub.Unsubscribe()
		delete(s.subs, topic)
	}
	s.mu.Unlock()
	s.wg.Wait()
	<-s.writerDone
	_ = s.conn.Close()
}

func (s *wsSession) readLoop() {
	s.conn.SetReadLimit(wsMaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var cmd wsCommand
		if err := s.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.WithError(err).Warn("Realtime connection closed unexpectedly")
			}
			return
		}

		topic := strings.TrimSpace(cmd.Topic)
		switch {
		case topic == "" || len(topic) > wsMaxTopicLength:
			s.send(wsReply{Type: wsReplyError, Topic: topic, Error: "invalid topic"})
		case cmd.Action == wsActionJoin:
			s.join(topic)
		case cmd.Action == wsActionLeave:
			s.leave(topic)
		default:
			s.send(wsReply{Type: wsReplyError, Topic: topic, Error: "unknown action"})
		}
	}
}

func (s *wsSession) writeLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case reply := <-s.outbox:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteJSON(reply); err != nil {
				s.log.WithError(err).Warn("Failed to write to realtime client")
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = s.conn.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// join подписывает соединение на тему; подтверждение уходит раньше первого события
func (s *wsSession) join(topic string) {
	s.mu.Lock()
	if _, ok := s.subs[topic]; !ok {
		sub := s.subscriber.Subscribe(topic)
		s.subs[topic] = sub
		s.send(wsReply{Type: wsReplySubscribed, Topic: topic})
		s.wg.Add(1)
		go s.forward(sub)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.send(wsReply{Type: wsReplySubscribed, Topic: topic})
}

func (s *wsSession) leave(topic string) {
	s.mu.Lock()
	sub, ok := s.subs[topic]
	delete(s.subs, topic)
	s.mu.Unlock()

	if ok {
		sub.Unsubscribe()
	}
	s.send(wsReply{Type: wsReplyUnsubscribed, Topic: topic})
}

func (s *wsSession) forward(sub *eventbus.Subscription) {
	defer s.wg.Done()
	for event := range sub.Events() {
		if !s.send(wsReply{Type: wsReplyEvent, Topic: sub.Topic(), Event: &event}) {
			return
		}
	}
}

func (s *wsSession) send(reply wsReply) bool {
	select {
	case s.outbox <- reply:
		return true
	case <-s.done:
		return false
	case <-s.writerDone:
		return false
	}
}
