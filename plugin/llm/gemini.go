package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the Gemini API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient talks to the Gemini REST API (or anything wire-compatible,
// which is what the tests point it at).
type GeminiClient struct {
	apiKey  string
	baseURL string
	hc      *http.Client
}

// NewGeminiClient builds a client. baseURL may be empty for the default.
func NewGeminiClient(apiKey, baseURL string) *GeminiClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &GeminiClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		// No client timeout: a generation is allowed to run to completion
		// or failure; cancellation comes from ctx if at all.
		hc: &http.Client{},
	}
}

var _ Service = (*GeminiClient)(nil)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

func buildRequest(system string, messages []Message) geminiRequest {
	req := geminiRequest{}
	for _, m := range messages {
		req.Contents = append(req.Contents, geminiContent{
			Role:  m.Role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	if system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	return req
}

func (c *GeminiClient) post(ctx context.Context, url string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)
	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &UpstreamError{Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return resp, nil
}

// Complete makes a single blocking generation call.
func (c *GeminiClient) Complete(ctx context.Context, model, system string, messages []Message) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	resp, err := c.post(ctx, url, buildRequest(system, messages))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var apiResp struct {
		Candidates []struct {
			Content geminiContent `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", &UpstreamError{Err: err}
	}
	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		return "", &UpstreamError{Err: fmt.Errorf("empty response")}
	}
	var sb strings.Builder
	for _, p := range apiResp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

// Stream relays SSE chunks in arrival order. Chunks are forwarded verbatim;
// any transport or decode failure after the stream opened surfaces as an
// UpstreamError so the caller can discard its accumulator.
func (c *GeminiClient) Stream(ctx context.Context, model, system string, messages []Message, onChunk func(string) error) error {
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.baseURL, model)
	resp, err := c.post(ctx, url, buildRequest(system, messages))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	sawDone := false
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}
		var chunk struct {
			Candidates []struct {
				Content      geminiContent `json:"content"`
				FinishReason string        `json:"finishReason"`
			} `json:"candidates"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return &UpstreamError{Err: err}
		}
		if chunk.Error != nil {
			return &UpstreamError{Err: fmt.Errorf("%s", chunk.Error.Message)}
		}
		for _, cand := range chunk.Candidates {
			for _, p := range cand.Content.Parts {
				if p.Text == "" {
					continue
				}
				if err := onChunk(p.Text); err != nil {
					return err
				}
			}
			if cand.FinishReason != "" {
				sawDone = true
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return &UpstreamError{Err: err}
	}
	if !sawDone {
		return &UpstreamError{Err: fmt.Errorf("stream ended without a finish reason")}
	}
	return nil
}

// CountTokens delegates to the service's count endpoint; without an API key
// it falls back to the local estimator so the endpoint still works offline.
func (c *GeminiClient) CountTokens(ctx context.Context, model string, messages []Message) (int, error) {
	if c.apiKey == "" {
		return estimateTokens(messages)
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s:countTokens", c.baseURL, model)
	resp, err := c.post(ctx, url, geminiRequest{Contents: buildRequest("", messages).Contents})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var apiResp struct {
		TotalTokens int `json:"totalTokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return 0, &UpstreamError{Err: err}
	}
	return apiResp.TotalTokens, nil
}
