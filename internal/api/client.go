// Package api is the request/response data layer of the chat backend.
// The sync core treats it as an external collaborator: mutations and
// backfills go through here, while real-time updates arrive over the
// socket.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/lbarreto/chatsync/internal/model"
)

// Client is a thin JSON client over the chat REST endpoints, authorized
// with the session bearer token.
type Client struct {
	http *resty.Client
}

// NewClient creates a data-layer client for the given base URL and token.
func NewClient(baseURL, token string) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetTimeout(15*time.Second).
		SetHeader("Accept", "application/json")
	return &Client{http: rc}
}

// FetchChats returns the user's chat list with full entities, used to
// seed the chat-list cache and to refresh it after an invalidation.
func (c *Client) FetchChats(ctx context.Context) ([]model.Chat, error) {
	var out []model.Chat
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/api/chat/chats")
	if err != nil {
		return nil, fmt.Errorf("fetch chats: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch chats: %s", resp.Status())
	}
	return out, nil
}

// FetchMessages returns up to limit messages of a chat, most recent
// first, older than before when given.
func (c *Client) FetchMessages(ctx context.Context, chatID int64, limit int, before int64) ([]model.Message, error) {
	req := c.http.R().SetContext(ctx)
	if limit > 0 {
		req.SetQueryParam("limit", fmt.Sprint(limit))
	}
	if before > 0 {
		req.SetQueryParam("before", fmt.Sprint(before))
	}
	var out []model.Message
	resp, err := req.SetResult(&out).Get(fmt.Sprintf("/api/chat/chats/%d/messages", chatID))
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch messages: %s", resp.Status())
	}
	return out, nil
}

// SendMessage posts a message and returns the server-confirmed row with
// its assigned id and timestamp.
func (c *Client) SendMessage(ctx context.Context, chatID int64, body string, attachmentIDs []int64) (model.Message, error) {
	var out model.Message
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]any{"body": body, "attachment_ids": attachmentIDs}).
		SetResult(&out).
		Post(fmt.Sprintf("/api/chat/chats/%d/messages", chatID))
	if err != nil {
		return model.Message{}, fmt.Errorf("send message: %w", err)
	}
	if resp.IsError() {
		return model.Message{}, fmt.Errorf("send message: %s", resp.Status())
	}
	return out, nil
}

// EditMessage replaces a message body.
func (c *Client) EditMessage(ctx context.Context, chatID, messageID int64, body string) error {
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]any{"body": body}).
		Put(fmt.Sprintf("/api/chat/chats/%d/messages/%d", chatID, messageID))
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("edit message: %s", resp.Status())
	}
	return nil
}

// DeleteMessage deletes a message.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	resp, err := c.http.R().SetContext(ctx).
		Delete(fmt.Sprintf("/api/chat/chats/%d/messages/%d", chatID, messageID))
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("delete message: %s", resp.Status())
	}
	return nil
}

// ReactMessage toggles the current user's reaction on a message. The
// resulting reaction set arrives via the reaction_changed broadcast.
func (c *Client) ReactMessage(ctx context.Context, chatID, messageID int64, emoji string) error {
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]any{"emoji": emoji}).
		Post(fmt.Sprintf("/api/chat/chats/%d/messages/%d/reactions", chatID, messageID))
	if err != nil {
		return fmt.Errorf("react: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("react: %s", resp.Status())
	}
	return nil
}

// PinMessage pins or unpins a message.
func (c *Client) PinMessage(ctx context.Context, chatID, messageID int64, pinned bool) error {
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]any{"pinned": pinned}).
		Post(fmt.Sprintf("/api/chat/chats/%d/messages/%d/pin", chatID, messageID))
	if err != nil {
		return fmt.Errorf("pin message: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("pin message: %s", resp.Status())
	}
	return nil
}

// CreateChat creates a chat and returns the full entity.
func (c *Client) CreateChat(ctx context.Context, name string, memberIDs []int64) (model.Chat, error) {
	var out model.Chat
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]any{"name": name, "member_ids": memberIDs}).
		SetResult(&out).
		Post("/api/chat/chats")
	if err != nil {
		return model.Chat{}, fmt.Errorf("create chat: %w", err)
	}
	if resp.IsError() {
		return model.Chat{}, fmt.Errorf("create chat: %s", resp.Status())
	}
	return out, nil
}

// DeleteChat deletes a chat.
func (c *Client) DeleteChat(ctx context.Context, chatID int64) error {
	resp, err := c.http.R().SetContext(ctx).
		Delete(fmt.Sprintf("/api/chat/chats/%d", chatID))
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("delete chat: %s", resp.Status())
	}
	return nil
}
