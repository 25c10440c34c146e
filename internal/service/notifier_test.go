package service

import (
	"encoding/json"
	"testing"

	"debate_edu_backend/internal/model"
)

// attach 绕过写循环直接挂一个订阅者，测试里从 send 通道读事件
func attach(hub *SessionHub, sessionID string, role model.UserRole, bufSize int) *Subscriber {
	sub := &Subscriber{
		hub:       hub,
		send:      make(chan []byte, bufSize),
		done:      make(chan struct{}),
		SessionID: sessionID,
		Role:      role,
	}
	hub.mu.Lock()
	if hub.subscribers[sessionID] == nil {
		hub.subscribers[sessionID] = make(map[*Subscriber]struct{})
	}
	hub.subscribers[sessionID][sub] = struct{}{}
	hub.mu.Unlock()
	return sub
}

func recvEvent(t *testing.T, sub *Subscriber) *ChangeEvent {
	t.Helper()
	select {
	case payload := <-sub.send:
		var event ChangeEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		return &event
	default:
		return nil
	}
}

func TestHubDeliversToSessionSubscribersOnly(t *testing.T) {
	hub := NewSessionHub(nil)
	inSession := attach(hub, "s1", model.Instructor, 8)
	otherSession := attach(hub, "s2", model.Instructor, 8)

	hub.Publish(ChangeEvent{
		Table:            "discussion_messages",
		Op:               "insert",
		SessionID:        "s1",
		VisibleToStudent: true,
	})

	if event := recvEvent(t, inSession); event == nil || event.SessionID != "s1" {
		t.Fatalf("expected delivery to session subscriber, got %v", event)
	}
	if event := recvEvent(t, otherSession); event != nil {
		t.Fatalf("event leaked across sessions: %v", event)
	}
}

func TestStudentSubscriberFiltersHiddenEvents(t *testing.T) {
	hub := NewSessionHub(nil)
	student := attach(hub, "s1", model.Student, 8)
	instructor := attach(hub, "s1", model.Instructor, 8)

	hub.Publish(ChangeEvent{
		Table:            "discussion_messages",
		Op:               "insert",
		SessionID:        "s1",
		VisibleToStudent: false,
	})

	if event := recvEvent(t, student); event != nil {
		t.Fatalf("hidden event leaked to student: %v", event)
	}
	if event := recvEvent(t, instructor); event == nil {
		t.Fatal("instructor must receive hidden events")
	}

	hub.Publish(ChangeEvent{
		Table:            "discussion_messages",
		Op:               "insert",
		SessionID:        "s1",
		VisibleToStudent: true,
	})
	if event := recvEvent(t, student); event == nil {
		t.Fatal("student must receive visible events")
	}
}

func TestStudentSubscriberScopedToOwnThread(t *testing.T) {
	hub := NewSessionHub(nil)
	student := attach(hub, "s1", model.Student, 8)
	student.ParticipantID = "p-1"
	instructor := attach(hub, "s1", model.Instructor, 8)

	// 其他参与者的对话线不进学生的事件流
	other := "p-2"
	hub.Publish(ChangeEvent{
		Table:            "discussion_messages",
		Op:               "insert",
		SessionID:        "s1",
		ParticipantID:    &other,
		VisibleToStudent: true,
	})
	if event := recvEvent(t, student); event != nil {
		t.Fatalf("foreign thread message leaked to student: %v", event)
	}
	if event := recvEvent(t, instructor); event == nil {
		t.Fatal("instructor must receive every thread")
	}

	// 自己的对话线正常送达
	own := "p-1"
	hub.Publish(ChangeEvent{
		Table:            "discussion_messages",
		Op:               "insert",
		SessionID:        "s1",
		ParticipantID:    &own,
		VisibleToStudent: true,
	})
	if event := recvEvent(t, student); event == nil {
		t.Fatal("student must receive own thread messages")
	}

	// 面向全场的系统消息没有参与者归属，照常送达
	hub.Publish(ChangeEvent{
		Table:            "discussion_messages",
		Op:               "insert",
		SessionID:        "s1",
		VisibleToStudent: true,
	})
	if event := recvEvent(t, student); event == nil {
		t.Fatal("student must receive session-wide messages")
	}

	// 参与者名单变更不按对话线过滤
	hub.Publish(ChangeEvent{
		Table:            "discussion_participants",
		Op:               "update",
		SessionID:        "s1",
		ParticipantID:    &other,
		VisibleToStudent: true,
	})
	if event := recvEvent(t, student); event == nil {
		t.Fatal("student must receive participant roster updates")
	}
}

func TestHubKicksSlowSubscriber(t *testing.T) {
	hub := NewSessionHub(nil)
	slow := attach(hub, "s1", model.Instructor, 1)

	// 第一条填满缓冲，第二条触发踢除
	hub.Publish(ChangeEvent{Table: "discussion_messages", SessionID: "s1", VisibleToStudent: true})
	hub.Publish(ChangeEvent{Table: "discussion_messages", SessionID: "s1", VisibleToStudent: true})

	if hub.SubscriberCount("s1") != 0 {
		t.Fatal("expected slow subscriber to be kicked")
	}
	// 缓冲里的第一条仍可读出，之后通道已关闭
	if _, ok := <-slow.send; !ok {
		t.Fatal("expected first buffered event to be readable")
	}
	if _, ok := <-slow.send; ok {
		t.Fatal("expected send channel to be closed")
	}
}

func TestHubUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewSessionHub(nil)
	sub := attach(hub, "s1", model.Instructor, 8)

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)

	if hub.SubscriberCount("s1") != 0 {
		t.Fatal("expected empty session after unsubscribe")
	}
}

func TestHubNotifiesProcessListeners(t *testing.T) {
	hub := NewSessionHub(nil)

	var got []ChangeEvent
	hub.OnEvent(func(event ChangeEvent) {
		got = append(got, event)
	})

	hub.Publish(ChangeEvent{Table: "discussion_participants", Op: "update", SessionID: "s1"})
	hub.Publish(ChangeEvent{Table: "discussion_messages", Op: "insert", SessionID: "s1"})

	if len(got) != 2 {
		t.Fatalf("expected 2 listener calls, got %d", len(got))
	}
	if got[0].Table != "discussion_participants" || got[1].Table != "discussion_messages" {
		t.Fatalf("unexpected listener events: %v", got)
	}
}
