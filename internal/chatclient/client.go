// Package chatclient 是聊天接口的 Go 客户端
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashwinyue/sanctuary/internal/model"
)

// Client HTTP 客户端
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// New 创建客户端
//
// 流式响应可能持续很久，默认 HTTPClient 不设总超时。
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 60 * time.Second,
			},
		},
	}
}

// HTTPError 非 2xx 响应
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// Turn 发送给聊天接口的一轮对话
type Turn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	ImageData string `json:"imageData,omitempty"`
}

// ChatRequest 聊天请求，可选字段为空时服务端使用用户设置
type ChatRequest struct {
	ConversationID     string  `json:"conversationId,omitempty"`
	Messages           []Turn  `json:"messages"`
	Model              string  `json:"model,omitempty"`
	CustomInstructions *string `json:"customInstructions,omitempty"`
	MemoryMarkdown     *string `json:"memoryMarkdown,omitempty"`
	MemoryEnabled      *bool   `json:"memoryEnabled,omitempty"`
	ImageData          string  `json:"imageData,omitempty"`
}

// ConversationDetail 会话及其消息
type ConversationDetail struct {
	model.Conversation
	Messages []model.Message `json:"messages"`
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Login 登录并保存令牌
func (c *Client) Login(ctx context.Context, email, password string) error {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": email, "password": password,
	}, &resp); err != nil {
		return err
	}
	c.Token = resp.Token
	return nil
}

// CreateConversation 创建会话
func (c *Client) CreateConversation(ctx context.Context, title string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := c.do(ctx, http.MethodPost, "/api/v1/conversations", map[string]string{"title": title}, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations 列出会话
func (c *Client) ListConversations(ctx context.Context, search string) ([]model.Conversation, error) {
	path := "/api/v1/conversations"
	if search != "" {
		path += "?search=" + url.QueryEscape(search)
	}
	var resp struct {
		Conversations []model.Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// GetConversation 获取会话和全部消息
func (c *Client) GetConversation(ctx context.Context, id string) (*ConversationDetail, error) {
	var detail ConversationDetail
	if err := c.do(ctx, http.MethodGet, "/api/v1/conversations/"+url.PathEscape(id), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// AddMessage 保存一条消息
func (c *Client) AddMessage(ctx context.Context, conversationID, role, text, imageData string) (*model.Message, error) {
	var msg model.Message
	body := map[string]string{"role": role, "content_text": text}
	if imageData != "" {
		body["imageData"] = imageData
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/conversations/"+url.PathEscape(conversationID)+"/messages", body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Stop 请求服务端停止会话中的回复
func (c *Client) Stop(ctx context.Context, conversationID string) (bool, error) {
	var resp struct {
		Stopped bool `json:"stopped"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/chat/"+url.PathEscape(conversationID)+"/stop", nil, &resp); err != nil {
		return false, err
	}
	return resp.Stopped, nil
}

// OpenStream 发起聊天请求并返回 SSE 响应体
//
// 非 2xx 响应返回 *HTTPError，Body 为响应原文。
func (c *Client) OpenStream(ctx context.Context, req *ChatRequest) (io.ReadCloser, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/v1/chat", req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return resp.Body, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.Message != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Body: env.Message}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}
