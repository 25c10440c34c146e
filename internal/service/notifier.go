package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"debate_edu_backend/internal/model"
	"debate_edu_backend/pkg/logger"
	"debate_edu_backend/pkg/monitoring"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const eventChannelPrefix = "discussion:events:"

// ChangeEvent 数据变更通知。行内容已规范化为 camelCase，
// 订阅端不需要再做键名转换。
type ChangeEvent struct {
	Table            string                 `json:"table"`
	Op               string                 `json:"op"` // insert / update / delete
	SessionID        string                 `json:"sessionId"`
	ParticipantID    *string                `json:"participantId,omitempty"`
	VisibleToStudent bool                   `json:"visibleToStudent"`
	Row              map[string]interface{} `json:"row,omitempty"`
}

// Subscriber 一条 WebSocket 订阅连接
type Subscriber struct {
	hub       *SessionHub
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	SessionID string
	Role      model.UserRole
	// 学生订阅时填写，讲师订阅为空
	ParticipantID string
}

// Done 订阅被移除后关闭，对账等伴随 goroutine 以此退出
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// SessionHub 按会话维度管理订阅连接，并通过 Redis Pub/Sub
// 把变更事件广播到所有实例。Redis 不可用时退化为单实例本地广播。
type SessionHub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Subscriber]struct{}
	listeners   []func(ChangeEvent)

	redis  *redis.Client
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSessionHub(rdb *redis.Client) *SessionHub {
	return &SessionHub{
		subscribers: make(map[string]map[*Subscriber]struct{}),
		redis:       rdb,
		done:        make(chan struct{}),
	}
}

// Run 启动跨实例事件订阅循环，应在独立 goroutine 中调用
func (h *SessionHub) Run() {
	if h.redis == nil {
		close(h.done)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	pubsub := h.redis.PSubscribe(ctx, eventChannelPrefix+"*")
	defer pubsub.Close()
	defer close(h.done)

	for msg := range pubsub.Channel() {
		var event ChangeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			logger.Log.Warn("Discarding malformed change event", zap.Error(err))
			continue
		}
		h.deliver(event)
	}
}

func (h *SessionHub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	<-h.done
}

// Publish 发布一条变更事件。有 Redis 时经由 Pub/Sub 广播（包括本实例），
// 否则直接投递给本地订阅者。
func (h *SessionHub) Publish(event ChangeEvent) {
	monitoring.ChangeEventCounter.WithLabelValues(event.Table, "out").Inc()

	for _, fn := range h.snapshotListeners() {
		fn(event)
	}

	if h.redis != nil {
		payload, err := json.Marshal(event)
		if err != nil {
			logger.Log.Error("Failed to marshal change event", zap.Error(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := h.redis.Publish(ctx, eventChannelPrefix+event.SessionID, payload).Err(); err != nil {
			logger.Log.Error("Failed to publish change event, falling back to local delivery",
				zap.String("session_id", event.SessionID), zap.Error(err))
			h.deliver(event)
		}
		return
	}

	h.deliver(event)
}

// OnEvent 注册进程内事件回调（活跃度统计、话题聚类防抖等）
func (h *SessionHub) OnEvent(fn func(ChangeEvent)) {
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}

func (h *SessionHub) snapshotListeners() []func(ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]func(ChangeEvent), len(h.listeners))
	copy(out, h.listeners)
	return out
}

func (h *SessionHub) deliver(event ChangeEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	// send 只会在持有写锁时关闭，读锁内投递不会写到已关闭的通道
	h.mu.RLock()
	var kicked []*Subscriber
	for sub := range h.subscribers[event.SessionID] {
		if !sub.wants(event) {
			continue
		}
		select {
		case sub.send <- payload:
			monitoring.ChangeEventCounter.WithLabelValues(event.Table, "delivered").Inc()
		default:
			kicked = append(kicked, sub)
		}
	}
	h.mu.RUnlock()

	// 发送缓冲已满说明连接僵死，踢掉让客户端重连后走快照对账
	for _, sub := range kicked {
		logger.Log.Warn("Dropping slow subscriber",
			zap.String("session_id", sub.SessionID))
		h.Unsubscribe(sub)
	}
}

// wants 学生订阅过滤掉对学生不可见的变更；消息事件进一步限定在
// 学生自己的对话线内，其他参与者的发言只对讲师可见。
// 参与者与会话级事件不受限，身份字段已在发布端按匿名规则剥离。
func (s *Subscriber) wants(event ChangeEvent) bool {
	if s.Role != model.Student {
		return true
	}
	if !event.VisibleToStudent {
		return false
	}
	if event.Table == "discussion_messages" && event.ParticipantID != nil {
		return *event.ParticipantID == s.ParticipantID
	}
	return true
}

// Subscribe 注册连接并启动写循环
func (h *SessionHub) Subscribe(conn *websocket.Conn, sessionID string, role model.UserRole, participantID string) *Subscriber {
	sub := &Subscriber{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, 64),
		done:          make(chan struct{}),
		SessionID:     sessionID,
		Role:          role,
		ParticipantID: participantID,
	}

	h.mu.Lock()
	if h.subscribers[sessionID] == nil {
		h.subscribers[sessionID] = make(map[*Subscriber]struct{})
	}
	h.subscribers[sessionID][sub] = struct{}{}
	h.mu.Unlock()

	monitoring.SubscriberGauge.Inc()
	go sub.writeLoop()
	return sub
}

func (h *SessionHub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	subs := h.subscribers[sub.SessionID]
	if _, ok := subs[sub]; !ok {
		h.mu.Unlock()
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subscribers, sub.SessionID)
	}
	close(sub.send)
	close(sub.done)
	h.mu.Unlock()

	monitoring.SubscriberGauge.Dec()
}

// SubscriberCount 会话当前在线订阅数
func (h *SessionHub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[sessionID])
}

func (s *Subscriber) writeLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer s.conn.Close()

	for {
		select {
		case payload, ok := <-s.send:
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.hub.Unsubscribe(s)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.hub.Unsubscribe(s)
				return
			}
		}
	}
}

// SendSnapshot 推送一份快照帧。建连时发全量，之后周期对账只发补漏的增量，
// 客户端按消息 ID 与事件流合并。
func (s *Subscriber) SendSnapshot(kind string, data interface{}) error {
	payload, err := json.Marshal(map[string]interface{}{
		"table": kind,
		"op":    "snapshot",
		"row":   data,
	})
	if err != nil {
		return err
	}

	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	if _, ok := s.hub.subscribers[s.SessionID][s]; !ok {
		return websocket.ErrCloseSent
	}
	select {
	case s.send <- payload:
		return nil
	default:
		return websocket.ErrCloseSent
	}
}
