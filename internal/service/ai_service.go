package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"debate_edu_backend/internal/config"
	"debate_edu_backend/internal/model"
)

// ReplyRequest 一次 AI 回复生成所需的全部上下文
type ReplyRequest struct {
	Session     *model.DiscussionSession
	Participant *model.DiscussionParticipant
	// 参与者完整对话线，包含对学生隐藏的讲师引导消息
	History []model.DiscussionMessage
	Prompt  string
}

// ReplyGenerator 回复生成器。out 逐段输出回复内容；
// errChan 在出错时收到一个错误；两个通道都会在结束时关闭。
type ReplyGenerator interface {
	StreamReply(ctx context.Context, req ReplyRequest) (<-chan string, <-chan error)
}

type AIService struct {
	config config.AIConfig
	client *http.Client
}

func NewAIService(cfg config.AIConfig) *AIService {
	return &AIService{
		config: cfg,
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionResponse struct {
	Choices []struct {
		Message AIChatMessage `json:"message"`
		Delta   AIChatMessage `json:"delta"` // 流式响应
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// 各引导模式的辩论助教人设
var modePrompts = map[string]string{
	model.AIModeSocratic: "你是一位苏格拉底式的辩论助教。不要直接给出答案或替学生表态，" +
		"而是通过追问引导学生审视自己论证中的前提、证据和推理漏洞。每次回复聚焦一个问题，简短有力。",
	model.AIModeDebate: "你是学生的辩论对手。针对学生的立场提出有力的反方论点，" +
		"挑战其论据的可靠性，迫使学生为自己的观点辩护。保持尊重但不退让。",
	model.AIModeBalanced: "你是一位平衡视角的辩论助教。帮助学生同时看到正反两方的合理之处，" +
		"指出学生论证中被忽略的角度，鼓励其补充证据。",
	model.AIModeMinimal: "你是一位克制的辩论助教。只在学生的论证出现明显事实错误或逻辑谬误时简短提示，" +
		"其余时候用一两句话鼓励学生继续阐述。",
}

func (s *AIService) buildMessages(req ReplyRequest) []AIChatMessage {
	session := req.Session
	mode := session.Settings.AIMode
	persona, ok := modePrompts[mode]
	if !ok {
		persona = modePrompts[model.AIModeBalanced]
	}

	var sb strings.Builder
	sb.WriteString(persona)
	sb.WriteString(fmt.Sprintf("\n\n辩论话题：%s", session.Title))
	if session.Description != "" {
		sb.WriteString(fmt.Sprintf("\n话题说明：%s", session.Description))
	}
	if req.Participant.Stance != "" {
		label := req.Participant.Stance
		if l, ok := session.Settings.StanceLabels[label]; ok {
			label = l
		}
		sb.WriteString(fmt.Sprintf("\n该学生的立场：%s", label))
	}
	if req.Participant.StanceStatement != "" {
		sb.WriteString(fmt.Sprintf("\n学生的立场陈述：%s", req.Participant.StanceStatement))
	}
	sb.WriteString("\n\n用中文回复，不超过 200 字。")

	messages := []AIChatMessage{{Role: "system", Content: sb.String()}}

	for _, h := range req.History {
		switch h.Role {
		case model.RoleUser:
			messages = append(messages, AIChatMessage{Role: "user", Content: h.Content})
		case model.RoleAI:
			messages = append(messages, AIChatMessage{Role: "assistant", Content: h.Content})
		case model.RoleInstructor:
			// 讲师引导作为系统级指令注入，学生看不到这些消息
			messages = append(messages, AIChatMessage{
				Role:    "system",
				Content: "【讲师引导，请在后续回复中遵循】" + h.Content,
			})
		}
	}

	messages = append(messages, AIChatMessage{Role: "user", Content: req.Prompt})
	return messages
}

func (s *AIService) StreamReply(ctx context.Context, req ReplyRequest) (<-chan string, <-chan error) {
	out := make(chan string)
	errChan := make(chan error, 1)

	reqBody := map[string]interface{}{
		"model":    s.config.Model,
		"messages": s.buildMessages(req),
		"stream":   true,
	}
	jsonData, _ := json.Marshal(reqBody)

	go func() {
		defer close(out)
		defer close(errChan)

		httpReq, err := http.NewRequestWithContext(ctx, "POST", s.config.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
		if err != nil {
			errChan <- err
			return
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+s.config.APIKey)

		resp, err := s.client.Do(httpReq)
		if err != nil {
			errChan <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errChan <- fmt.Errorf("AI API error (status %d): %s", resp.StatusCode, string(body))
			return
		}

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					errChan <- err
				}
				break
			}

			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data: ") {
				continue
			}

			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				break
			}

			var streamResp ChatCompletionResponse
			if err := json.Unmarshal([]byte(data), &streamResp); err != nil {
				continue
			}

			if len(streamResp.Choices) > 0 {
				content := streamResp.Choices[0].Delta.Content
				if content != "" {
					select {
					case out <- content:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out, errChan
}

// CannedGenerator 未配置 AI API Key 时的本地回复生成器，
// 开发环境和端到端测试用，按固定片段流式输出。
type CannedGenerator struct {
	// 每段之间的间隔，模拟真实流式节奏；测试中置 0
	ChunkDelay time.Duration
}

func (g *CannedGenerator) StreamReply(ctx context.Context, req ReplyRequest) (<-chan string, <-chan error) {
	out := make(chan string)
	errChan := make(chan error, 1)

	chunks := []string{
		"这是一个值得深入讨论的观点。",
		"你提到的论据是否有可靠的来源支撑？",
		"试着从相反的立场想一想，对方最有力的反驳会是什么？",
	}

	go func() {
		defer close(out)
		defer close(errChan)
		for _, chunk := range chunks {
			if g.ChunkDelay > 0 {
				select {
				case <-time.After(g.ChunkDelay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errChan
}
