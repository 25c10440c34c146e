package service

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/repository"
	"debate_edu_backend/pkg/cache"
	"debate_edu_backend/pkg/logger"

	"go.uber.org/zap"
)

const (
	activityWindow    = 30 * time.Minute
	statsCacheTTL     = 10 * time.Second
	topicsCacheTTL    = time.Hour
	topicClusterLimit = 6

	// 话题重算防抖：消息风暴折叠为 2 秒后一次重算，
	// 两次重算之间至少间隔 30 秒
	topicDebounceDelay    = 2 * time.Second
	topicDebounceInterval = 30 * time.Second
)

// ActivityService 讲师概览的活跃度统计与话题聚类。
// 聚类开销大，由变更事件经防抖器触发异步重算，读路径只碰缓存。
type ActivityService struct {
	participantRepo *repository.ParticipantRepository
	msgRepo         *repository.MessageRepository
	cache           *cache.Cache

	mu         sync.Mutex
	debouncers map[string]*Debouncer
}

func NewActivityService(participantRepo *repository.ParticipantRepository, msgRepo *repository.MessageRepository, c *cache.Cache) *ActivityService {
	return &ActivityService{
		participantRepo: participantRepo,
		msgRepo:         msgRepo,
		cache:           c,
		debouncers:      make(map[string]*Debouncer),
	}
}

// Bind 挂到事件流上：消息与参与者变更触发话题重算
func (s *ActivityService) Bind(hub *SessionHub) {
	hub.OnEvent(func(event ChangeEvent) {
		switch event.Table {
		case "discussion_messages", "discussion_participants":
			s.debouncer(event.SessionID).Trigger()
		}
	})
}

func (s *ActivityService) debouncer(sessionID string) *Debouncer {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.debouncers[sessionID]
	if !ok {
		d = NewDebouncer(topicDebounceDelay, topicDebounceInterval, func() {
			s.recomputeTopics(sessionID)
		})
		s.debouncers[sessionID] = d
	}
	return d
}

// Stats 最近 30 分钟的每分钟消息数
func (s *ActivityService) Stats(sessionID string) (*model.ActivityStats, error) {
	cacheKey := "activity:" + sessionID
	if v, ok := s.cache.Get(cacheKey); ok {
		return v.(*model.ActivityStats), nil
	}

	now := time.Now().Truncate(time.Minute)
	since := now.Add(-activityWindow)
	msgs, err := s.msgRepo.ListRecentBySession(sessionID, since)
	if err != nil {
		return nil, err
	}

	buckets := int(activityWindow / time.Minute)
	stats := &model.ActivityStats{
		MessagesPerMinute: make([]int, buckets),
		Timestamps:        make([]time.Time, buckets),
	}
	for i := 0; i < buckets; i++ {
		stats.Timestamps[i] = since.Add(time.Duration(i) * time.Minute)
	}
	for _, msg := range msgs {
		i := int(msg.CreatedAt.Sub(since) / time.Minute)
		if i >= 0 && i < buckets {
			stats.MessagesPerMinute[i]++
		}
		stats.TotalMessages++
	}

	s.cache.Set(cacheKey, stats, statsCacheTTL)
	return stats, nil
}

// Topics 返回最近一次聚类结果；没有缓存时同步算一次
func (s *ActivityService) Topics(sessionID string) ([]model.TopicCluster, error) {
	if v, ok := s.cache.Get("topics:" + sessionID); ok {
		return v.([]model.TopicCluster), nil
	}
	return s.recomputeTopics(sessionID)
}

func (s *ActivityService) recomputeTopics(sessionID string) ([]model.TopicCluster, error) {
	participants, err := s.participantRepo.ListBySession(sessionID)
	if err != nil {
		logger.Log.Error("Topic recompute failed",
			zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}

	clusters := clusterByKeyword(participants)
	s.cache.Set("topics:"+sessionID, clusters, topicsCacheTTL)
	return clusters, nil
}

// clusterByKeyword 朴素的关键词聚类：统计已提交立场陈述与论据里的
// 高频词，按包含关系把参与者归入各关键词簇
func clusterByKeyword(participants []model.DiscussionParticipant) []model.TopicCluster {
	type doc struct {
		participantID string
		text          string
		sample        string
	}

	var docs []doc
	freq := make(map[string]int)
	for _, p := range participants {
		if !p.IsSubmitted {
			continue
		}
		parts := append([]string{p.StanceStatement}, p.Evidence...)
		text := strings.Join(parts, " ")
		sample := p.StanceStatement
		if sample == "" && len(p.Evidence) > 0 {
			sample = p.Evidence[0]
		}
		docs = append(docs, doc{participantID: p.ID, text: text, sample: sample})

		seen := make(map[string]bool)
		for _, token := range tokenize(text) {
			if !seen[token] {
				freq[token]++
				seen[token] = true
			}
		}
	}

	type kw struct {
		word  string
		count int
	}
	var keywords []kw
	for word, count := range freq {
		if count >= 2 {
			keywords = append(keywords, kw{word, count})
		}
	}
	sort.Slice(keywords, func(i, j int) bool {
		if keywords[i].count != keywords[j].count {
			return keywords[i].count > keywords[j].count
		}
		return keywords[i].word < keywords[j].word
	})
	if len(keywords) > topicClusterLimit {
		keywords = keywords[:topicClusterLimit]
	}

	var clusters []model.TopicCluster
	for i, k := range keywords {
		cluster := model.TopicCluster{
			ID:       fmt.Sprintf("topic-%d", i+1),
			Label:    k.word,
			Keywords: []string{k.word},
		}
		for _, d := range docs {
			if strings.Contains(d.text, k.word) {
				cluster.ParticipantIDs = append(cluster.ParticipantIDs, d.participantID)
				if cluster.SampleEvidence == "" {
					cluster.SampleEvidence = d.sample
				}
			}
		}
		cluster.ParticipantCount = len(cluster.ParticipantIDs)
		clusters = append(clusters, cluster)
	}
	return clusters
}

var topicStopwords = map[string]bool{
	"的": true, "是": true, "了": true, "我": true, "你": true,
	"他": true, "她": true, "我们": true, "认为": true, "觉得": true,
	"因为": true, "所以": true, "但是": true, "这个": true, "一个": true,
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"and": true, "or": true, "to": true, "of": true, "in": true,
	"that": true, "this": true, "it": true, "i": true, "we": true,
}

// tokenize 中英文混合的粗粒度切词：英文按单词，中文按二字窗口
func tokenize(text string) []string {
	var tokens []string
	var ascii strings.Builder
	var han []rune

	flushASCII := func() {
		if ascii.Len() > 1 {
			word := strings.ToLower(ascii.String())
			if !topicStopwords[word] {
				tokens = append(tokens, word)
			}
		}
		ascii.Reset()
	}
	flushHan := func() {
		for i := 0; i+1 < len(han); i++ {
			word := string(han[i : i+2])
			if !topicStopwords[word] {
				tokens = append(tokens, word)
			}
		}
		han = han[:0]
	}

	for _, r := range text {
		switch {
		case r >= 0x4E00 && r <= 0x9FFF:
			flushASCII()
			han = append(han, r)
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			flushHan()
			ascii.WriteRune(r)
		default:
			flushASCII()
			flushHan()
		}
	}
	flushASCII()
	flushHan()
	return tokens
}

// StopAll 停掉所有防抖器，优雅退出用
func (s *ActivityService) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.debouncers {
		d.Stop()
	}
}
