// Package gemini provides a client for the Google generative language API.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"alpha-chat-go/internal/config"
)

// ErrEmptyResponse 表示上游没有返回任何候选回复（通常是其自身的安全过滤拒绝了请求）。
var ErrEmptyResponse = errors.New("gemini returned no candidates")

// ChunkWriter 接收流式响应的增量分块。
// HTTP chunked 响应和 WebSocket 连接都实现了这个接口。
type ChunkWriter interface {
	WriteChunk(data []byte) error
}

// Message 表示一条角色消息，Role 为 "user" 或 "model"。
type Message struct {
	Role string
	Text string
}

// Request 描述一次生成调用。
type Request struct {
	// System 是随请求下发的系统指令。
	System string
	// History 是之前的对话消息，调用方负责过滤掉格式不完整的条目。
	History []Message
	// Message 是本次的用户输入。
	Message string
	// BlockNone 为 true 时，所有内容安全类别的阈值被设为不拦截。
	BlockNone bool
}

// Client defines the interface for a generative AI client.
type Client interface {
	// Generate 发起一次完整响应的生成调用。
	Generate(ctx context.Context, req Request) (string, error)
	// StreamGenerate 发起流式调用，将分块写入 writer，并返回累积的完整文本。
	StreamGenerate(ctx context.Context, req Request, w ChunkWriter) (string, error)
}

type geminiClient struct {
	cfg    config.GeminiConfig
	client *http.Client
}

// NewClient creates a new Gemini API client.
func NewClient(cfg config.GeminiConfig) Client {
	return &geminiClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

// ---- 请求/响应的线格式 ----

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generationConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content          `json:"system_instruction,omitempty"`
	Contents          []content         `json:"contents"`
	SafetySettings    []safetySetting   `json:"safetySettings,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

var harmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

func (c *geminiClient) buildRequest(req Request) generateRequest {
	out := generateRequest{}

	if req.System != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}

	for _, m := range req.History {
		out.Contents = append(out.Contents, content{Role: m.Role, Parts: []part{{Text: m.Text}}})
	}
	out.Contents = append(out.Contents, content{Role: "user", Parts: []part{{Text: req.Message}}})

	threshold := "BLOCK_MEDIUM_AND_ABOVE"
	if req.BlockNone {
		threshold = "BLOCK_NONE"
	}
	for _, cat := range harmCategories {
		out.SafetySettings = append(out.SafetySettings, safetySetting{Category: cat, Threshold: threshold})
	}

	if c.cfg.Temperature != 0 {
		t := c.cfg.Temperature
		out.GenerationConfig = &generationConfig{Temperature: &t}
	}
	return out
}

func (c *geminiClient) newHTTPRequest(ctx context.Context, endpoint string, body []byte) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)
	return httpReq, nil
}

// Generate 调用 generateContent 接口。
// 网络错误和 5xx 会以很小的重试预算重试（非流式调用是幂等的）。
func (c *geminiClient) Generate(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, c.cfg.Model)

	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		httpReq, err := c.newHTTPRequest(ctx, endpoint, body)
		if err != nil {
			return "", err
		}
		resp, err := c.client.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("failed to call gemini api: %w", err)
			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			respBody, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("gemini api returned %s: %s", resp.Status, string(respBody))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return "", fmt.Errorf("gemini api returned %s: %s", resp.Status, string(respBody))
		}

		var parsed generateResponse
		err = json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("failed to decode gemini response: %w", err)
		}
		return extractText(parsed)
	}
	return "", lastErr
}

// extractText 拼接首个候选的全部文本分段。
func extractText(resp generateResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// StreamGenerate 调用 streamGenerateContent 接口，按 SSE 分块转发。
// 流式调用不重试：一旦开始写出分块，重放会产生重复内容。
func (c *geminiClient) StreamGenerate(ctx context.Context, req Request, w ChunkWriter) (string, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.cfg.BaseURL, c.cfg.Model)

	httpReq, err := c.newHTTPRequest(ctx, endpoint, body)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to call gemini api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gemini api returned %s: %s", resp.Status, string(respBody))
	}

	var full strings.Builder
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return full.String(), fmt.Errorf("failed to read from stream: %w", err)
		}

		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if strings.TrimSpace(data) == "[DONE]" {
			break
		}

		var chunk generateResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		for _, p := range chunk.Candidates[0].Content.Parts {
			if p.Text == "" {
				continue
			}
			full.WriteString(p.Text)
			if err := w.WriteChunk([]byte(p.Text)); err != nil {
				return full.String(), fmt.Errorf("failed to write chunk: %w", err)
			}
		}
	}

	if strings.TrimSpace(full.String()) == "" {
		return "", ErrEmptyResponse
	}
	return full.String(), nil
}
