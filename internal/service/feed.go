package service

import (
	"sort"
	"sync"

	"debate_edu_backend/internal/model"
)

// TranscriptFeed 把推送事件与轮询快照合并成一条一致的消息流。
// 推送与轮询两条路径会重复投递同一条消息，按消息 ID 去重，
// 任意交错顺序下合并结果一致。
type TranscriptFeed struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	messages []model.DiscussionMessage
}

func NewTranscriptFeed() *TranscriptFeed {
	return &TranscriptFeed{seen: make(map[string]struct{})}
}

// Add 插入一条消息，已存在时返回 false
func (f *TranscriptFeed) Add(msg model.DiscussionMessage) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(msg)
}

// Merge 合并一批消息（轮询快照），返回其中的新消息，保持排序
func (f *TranscriptFeed) Merge(msgs []model.DiscussionMessage) []model.DiscussionMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	var fresh []model.DiscussionMessage
	for _, msg := range msgs {
		if f.insert(msg) {
			fresh = append(fresh, msg)
		}
	}
	sortMessages(fresh)
	return fresh
}

// Snapshot 返回当前已合并消息的副本，按时间正序
func (f *TranscriptFeed) Snapshot() []model.DiscussionMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]model.DiscussionMessage, len(f.messages))
	copy(out, f.messages)
	return out
}

func (f *TranscriptFeed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *TranscriptFeed) insert(msg model.DiscussionMessage) bool {
	if _, ok := f.seen[msg.ID]; ok {
		return false
	}
	f.seen[msg.ID] = struct{}{}

	i := sort.Search(len(f.messages), func(i int) bool {
		return messageLess(msg, f.messages[i])
	})
	f.messages = append(f.messages, model.DiscussionMessage{})
	copy(f.messages[i+1:], f.messages[i:])
	f.messages[i] = msg
	return true
}

// messageLess 排序键为 (created_at, id)，ID 兜底保证全序
func messageLess(a, b model.DiscussionMessage) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func sortMessages(msgs []model.DiscussionMessage) {
	sort.Slice(msgs, func(i, j int) bool {
		return messageLess(msgs[i], msgs[j])
	})
}
