package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient talks to the platform bridge over its REST surface. The bridge
// translates these calls into real chat-platform API requests and pushes
// observed events back to the parakarry event webhook.
type HTTPClient struct {
	base  string
	token string
	hc    *http.Client
}

// NewHTTPClient builds a client for the bridge at base (e.g.
// "http://127.0.0.1:9130"). token is sent as a bearer credential.
func NewHTTPClient(base, token string) *HTTPClient {
	return &HTTPClient{
		base:  base,
		token: token,
		hc:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: bad response body: %v", ErrDelivery, err)
		}
	}
	return resp.StatusCode, nil
}

func (c *HTTPClient) SendDirectMessage(ctx context.Context, userID, content string, attachments []string) (MessageRef, error) {
	var ref MessageRef
	payload := map[string]interface{}{"content": content, "attachments": attachments}
	status, err := c.do(ctx, http.MethodPost, "/users/"+userID+"/messages", payload, &ref)
	if err != nil {
		return ref, err
	}
	switch {
	case status == http.StatusForbidden || status == http.StatusNotFound:
		return ref, fmt.Errorf("%w: dm to %s rejected (%d)", ErrUnreachable, userID, status)
	case status >= 300:
		return ref, fmt.Errorf("%w: dm to %s returned %d", ErrDelivery, userID, status)
	}
	return ref, nil
}

func (c *HTTPClient) PostToChannel(ctx context.Context, channelID, content string, attachments []string) (MessageRef, error) {
	var ref MessageRef
	payload := map[string]interface{}{"content": content, "attachments": attachments}
	status, err := c.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", payload, &ref)
	if err != nil {
		return ref, err
	}
	if status >= 300 {
		return ref, fmt.Errorf("%w: post to %s returned %d", ErrDelivery, channelID, status)
	}
	return ref, nil
}

func (c *HTTPClient) CreateChannel(ctx context.Context, guildID, name, reason string) (ChannelRef, error) {
	var ref ChannelRef
	payload := map[string]interface{}{"name": name, "reason": reason}
	status, err := c.do(ctx, http.MethodPost, "/guilds/"+guildID+"/channels", payload, &ref)
	if err != nil {
		return ref, err
	}
	if status >= 300 {
		return ref, fmt.Errorf("%w: create channel returned %d", ErrDelivery, status)
	}
	return ref, nil
}

func (c *HTTPClient) DeleteChannel(ctx context.Context, channelID, reason string) error {
	payload := map[string]interface{}{"reason": reason}
	status, err := c.do(ctx, http.MethodDelete, "/channels/"+channelID, payload, nil)
	if err != nil {
		return err
	}
	// a channel already gone is fine; close paths race with manual deletion
	if status >= 300 && status != http.StatusNotFound {
		return fmt.Errorf("%w: delete channel returned %d", ErrDelivery, status)
	}
	return nil
}

func (c *HTTPClient) ResolveMember(ctx context.Context, guildID, userID string) (Member, error) {
	var m Member
	status, err := c.do(ctx, http.MethodGet, "/guilds/"+guildID+"/members/"+userID, nil, &m)
	if err != nil {
		return m, err
	}
	switch {
	case status == http.StatusNotFound:
		return m, ErrMemberNotFound
	case status >= 300:
		return m, fmt.Errorf("%w: resolve member returned %d", ErrDelivery, status)
	}
	return m, nil
}
