// Package api is the REST collaborator surface consumed by the chat core:
// message history, send, read receipts, deletion, and the SSE side-channel
// subscription endpoints. It carries no transactional guarantees beyond the
// individual HTTP responses.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pawlink/pawlink-chat/pkg/models"
)

// MessageAPI is the collaborator interface the session controller and the
// poller depend on. Production code uses *Client; tests use a fake.
type MessageAPI interface {
	FetchMessages(ctx context.Context, chatID, userID string) ([]models.Message, error)
	SendMessage(ctx context.Context, chatID, text, userID string) error
	MarkRead(ctx context.Context, chatID, userID string) error
	DeleteMessage(ctx context.Context, chatID, messageID, userID string) error
}

// Subscriber is the out-of-band room confirmation surface used by the SSE
// transport variant.
type Subscriber interface {
	Subscribe(ctx context.Context, chatID, userID string) error
	Unsubscribe(ctx context.Context, chatID, userID string) error
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errRes struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&errRes)
		if errRes.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, errRes.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) FetchMessages(ctx context.Context, chatID, userID string) ([]models.Message, error) {
	var messages []models.Message
	path := fmt.Sprintf("/api/chats/%s/messages?user_id=%s", url.PathEscape(chatID), url.QueryEscape(userID))
	if err := c.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	return messages, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID, text, userID string) error {
	path := fmt.Sprintf("/api/chats/%s/messages?user_id=%s", url.PathEscape(chatID), url.QueryEscape(userID))
	body := map[string]string{
		"conversation_id": chatID,
		"text":            text,
		"sender_id":       userID,
	}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (c *Client) MarkRead(ctx context.Context, chatID, userID string) error {
	path := fmt.Sprintf("/api/chats/%s/read?user_id=%s", url.PathEscape(chatID), url.QueryEscape(userID))
	if err := c.do(ctx, http.MethodPut, path, nil, nil); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID, userID string) error {
	path := fmt.Sprintf("/api/chats/%s/messages/%s?user_id=%s",
		url.PathEscape(chatID), url.PathEscape(messageID), url.QueryEscape(userID))
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (c *Client) GetChats(ctx context.Context, userID string) ([]models.ChatSession, error) {
	var chats []models.ChatSession
	path := "/api/chats?user_id=" + url.QueryEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &chats); err != nil {
		return nil, fmt.Errorf("fetch chats: %w", err)
	}
	return chats, nil
}

// Subscribe confirms interest in a chat with the SSE push service. The
// confirmation must succeed before events for that chat are expected on the
// stream.
func (c *Client) Subscribe(ctx context.Context, chatID, userID string) error {
	path := fmt.Sprintf("/api/sse/subscribe/%s?user_id=%s", url.PathEscape(chatID), url.QueryEscape(userID))
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

func (c *Client) Unsubscribe(ctx context.Context, chatID, userID string) error {
	path := fmt.Sprintf("/api/sse/unsubscribe/%s?user_id=%s", url.PathEscape(chatID), url.QueryEscape(userID))
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}
