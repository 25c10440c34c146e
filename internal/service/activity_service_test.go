package service

import (
	"testing"
	"time"

	"debate_edu_backend/internal/model"
	"debate_edu_backend/pkg/cache"
)

func TestTokenizeMixedChineseEnglish(t *testing.T) {
	tokens := tokenize("AI 评分 is fair 数据隐私")

	want := map[string]bool{}
	for _, tok := range tokens {
		want[tok] = true
	}
	for _, expect := range []string{"ai", "fair", "评分", "数据", "据隐", "隐私"} {
		if !want[expect] {
			t.Errorf("expected token %q in %v", expect, tokens)
		}
	}
	// 停用词被丢弃
	if want["is"] {
		t.Errorf("stopword leaked into tokens: %v", tokens)
	}
}

func TestClusterByKeywordGroupsSharedTerms(t *testing.T) {
	make3 := func(id, statement string, evidence ...string) model.DiscussionParticipant {
		p := model.DiscussionParticipant{
			StanceStatement: statement,
			Evidence:        evidence,
			IsSubmitted:     true,
		}
		p.ID = id
		return p
	}

	participants := []model.DiscussionParticipant{
		make3("p1", "数据隐私是最大的风险", "算法会收集学生数据"),
		make3("p2", "数据隐私问题可以用加密解决"),
		make3("p3", "评分效率更重要", "人工评分太慢"),
		// 未提交的不参与聚类
		{StanceStatement: "数据隐私", IsSubmitted: false},
	}

	clusters := clusterByKeyword(participants)
	if len(clusters) == 0 {
		t.Fatal("expected at least one cluster")
	}

	var privacy *model.TopicCluster
	for i := range clusters {
		if clusters[i].Label == "隐私" || clusters[i].Label == "数据" {
			privacy = &clusters[i]
			break
		}
	}
	if privacy == nil {
		t.Fatalf("expected a privacy cluster, got %v", clusters)
	}
	if privacy.ParticipantCount != 2 {
		t.Fatalf("expected 2 participants in privacy cluster, got %d", privacy.ParticipantCount)
	}
	if privacy.SampleEvidence == "" {
		t.Fatal("expected a sample evidence line")
	}
}

func TestClusterByKeywordCapsClusterCount(t *testing.T) {
	var participants []model.DiscussionParticipant
	// 20 个参与者两两共享关键词，产生远超上限的候选簇
	words := []string{"隐私", "效率", "公平", "成本", "师资", "监管", "算法", "课堂", "评分", "教育"}
	for i, w := range words {
		for j := 0; j < 2; j++ {
			p := model.DiscussionParticipant{
				StanceStatement: "关于" + w + "的观点",
				IsSubmitted:     true,
			}
			p.ID = string(rune('a'+i)) + string(rune('0'+j))
			participants = append(participants, p)
		}
	}

	clusters := clusterByKeyword(participants)
	if len(clusters) > topicClusterLimit {
		t.Fatalf("expected at most %d clusters, got %d", topicClusterLimit, len(clusters))
	}
}

func TestActivityStatsBucketsMessagesByMinute(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t, "instructor-1")
	p := env.addParticipant(t, session.ID, "student-1")

	activity := NewActivityService(env.participantRepo, env.msgRepo, cache.NewWithClock(time.Now))
	pid := p.ID
	for i := 0; i < 4; i++ {
		msg := &model.DiscussionMessage{
			SessionID:          session.ID,
			ParticipantID:      &pid,
			Role:               model.RoleUser,
			Content:            "发言",
			IsVisibleToStudent: true,
		}
		if err := env.msgRepo.Create(msg); err != nil {
			t.Fatalf("failed to seed message: %v", err)
		}
	}

	stats, err := activity.Stats(session.ID)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalMessages != 4 {
		t.Fatalf("expected 4 messages in window, got %d", stats.TotalMessages)
	}
	if len(stats.MessagesPerMinute) != int(activityWindow/time.Minute) {
		t.Fatalf("expected %d buckets, got %d", int(activityWindow/time.Minute), len(stats.MessagesPerMinute))
	}

	sum := 0
	for _, n := range stats.MessagesPerMinute {
		sum += n
	}
	if sum != 4 {
		t.Fatalf("expected bucket counts to sum to 4, got %d", sum)
	}
}
